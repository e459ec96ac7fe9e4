package bot

import (
	"sync"

	"github.com/bwmarrin/discordgo"
)

// mockSession is an in-memory session implementation for tests. It records
// every call and can replay a Ready event on Open.
type mockSession struct {
	mu sync.Mutex

	openErr    error
	respondErr error

	handlers    []interface{}
	responses   []*discordgo.InteractionResponse
	followups   []*discordgo.WebhookParams
	channelMsgs []*discordgo.MessageSend
	created     []*discordgo.ApplicationCommand
	deleted     []string
	closed      bool

	readyOnOpen bool
	botUser     *discordgo.User
}

func newMockSession() *mockSession {
	return &mockSession{
		readyOnOpen: true,
		botUser:     &discordgo.User{ID: "bot-1", Username: "atelier"},
	}
}

func (m *mockSession) Open() error {
	if m.openErr != nil {
		return m.openErr
	}
	if m.readyOnOpen {
		m.fireReady()
	}
	return nil
}

func (m *mockSession) fireReady() {
	m.mu.Lock()
	handlers := append([]interface{}(nil), m.handlers...)
	m.mu.Unlock()
	for _, h := range handlers {
		if fn, ok := h.(func(*discordgo.Session, *discordgo.Ready)); ok {
			fn(nil, &discordgo.Ready{User: m.botUser})
		}
	}
}

func (m *mockSession) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockSession) AddHandler(handler interface{}) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, handler)
	return func() {}
}

func (m *mockSession) ApplicationCommandCreate(appID, guildID string, cmd *discordgo.ApplicationCommand, options ...discordgo.RequestOption) (*discordgo.ApplicationCommand, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	registered := *cmd
	registered.ID = "cmd-1"
	registered.ApplicationID = appID
	registered.GuildID = guildID
	m.created = append(m.created, &registered)
	return &registered, nil
}

func (m *mockSession) ApplicationCommandDelete(appID, guildID, cmdID string, options ...discordgo.RequestOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, cmdID)
	return nil
}

func (m *mockSession) InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error {
	if m.respondErr != nil {
		return m.respondErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, resp)
	return nil
}

func (m *mockSession) FollowupMessageCreate(interaction *discordgo.Interaction, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.followups = append(m.followups, data)
	return &discordgo.Message{ID: "msg-1"}, nil
}

func (m *mockSession) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channelMsgs = append(m.channelMsgs, data)
	return &discordgo.Message{ID: "msg-2"}, nil
}

func (m *mockSession) snapshot() (responses []*discordgo.InteractionResponse, followups []*discordgo.WebhookParams) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*discordgo.InteractionResponse(nil), m.responses...),
		append([]*discordgo.WebhookParams(nil), m.followups...)
}
