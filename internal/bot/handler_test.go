package bot

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/zulandar/atelier/internal/config"
	"github.com/zulandar/atelier/internal/models"
	"github.com/zulandar/atelier/internal/stability"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openBotTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(&models.Generation{}); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	return db
}

// mockGenerator counts calls and returns canned artifacts or an error.
type mockGenerator struct {
	mu        sync.Mutex
	calls     int
	lastReq   stability.GenerateRequest
	artifacts []stability.Artifact
	err       error
}

func (g *mockGenerator) Generate(ctx context.Context, req stability.GenerateRequest) ([]stability.Artifact, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.lastReq = req
	if g.err != nil {
		return nil, g.err
	}
	return g.artifacts, nil
}

func (g *mockGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func testConfig() *config.Config {
	cfg, err := config.Parse([]byte("discord:\n  token: test-token\nstability:\n  api_key: test-key\n"))
	if err != nil {
		panic(err)
	}
	return cfg
}

func newTestDaemon(t *testing.T, gen Generator) (*Daemon, *mockSession, *gorm.DB) {
	t.Helper()
	db := openBotTestDB(t)
	sess := newMockSession()
	d, err := NewDaemon(DaemonOpts{
		DB:        db,
		Config:    testConfig(),
		Generator: gen,
		Session:   sess,
	})
	if err != nil {
		t.Fatalf("new daemon: %v", err)
	}
	return d, sess, db
}

func imagineInteraction(userID, username string, opts []*discordgo.ApplicationCommandInteractionDataOption) *discordgo.InteractionCreate {
	options := append([]*discordgo.ApplicationCommandInteractionDataOption{
		{Name: "prompt", Type: discordgo.ApplicationCommandOptionString, Value: "a lighthouse at dusk"},
	}, opts...)
	return &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			Type:      discordgo.InteractionApplicationCommand,
			GuildID:   "guild-1",
			ChannelID: "chan-1",
			Member: &discordgo.Member{
				User: &discordgo.User{ID: userID, Username: username},
			},
			Data: discordgo.ApplicationCommandInteractionData{
				Name:    commandName,
				Options: options,
			},
		},
	}
}

func successArtifacts() []stability.Artifact {
	return []stability.Artifact{
		{Image: []byte{0x89, 'P', 'N', 'G'}, Seed: 1234, FinishReason: "SUCCESS"},
	}
}

func countRows(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var count int64
	if err := db.Model(&models.Generation{}).Count(&count).Error; err != nil {
		t.Fatalf("count rows: %v", err)
	}
	return count
}

func TestNewDaemon_Validation(t *testing.T) {
	db := openBotTestDB(t)
	gen := &mockGenerator{}
	cfg := testConfig()

	if _, err := NewDaemon(DaemonOpts{Config: cfg, Generator: gen}); err == nil {
		t.Error("expected error for nil db")
	}
	if _, err := NewDaemon(DaemonOpts{DB: db, Generator: gen}); err == nil {
		t.Error("expected error for nil config")
	}
	if _, err := NewDaemon(DaemonOpts{DB: db, Config: cfg}); err == nil {
		t.Error("expected error for nil generator")
	}

	noToken := testConfig()
	noToken.Discord.Token = ""
	if _, err := NewDaemon(DaemonOpts{DB: db, Config: noToken, Generator: gen}); err == nil {
		t.Error("expected error for missing token without injected session")
	}
}

func TestHandleInteraction_Success(t *testing.T) {
	gen := &mockGenerator{artifacts: successArtifacts()}
	d, sess, db := newTestDaemon(t, gen)

	d.handleInteraction(context.Background(), imagineInteraction("u1", "alice", nil))

	if gen.callCount() != 1 {
		t.Fatalf("generator calls = %d, want 1", gen.callCount())
	}

	responses, followups := sess.snapshot()
	if len(responses) != 1 || responses[0].Type != discordgo.InteractionResponseDeferredChannelMessageWithSource {
		t.Errorf("responses = %+v, want one deferred", responses)
	}
	if len(followups) != 1 {
		t.Fatalf("followups = %d, want 1", len(followups))
	}
	if len(followups[0].Embeds) != 1 || len(followups[0].Files) != 1 {
		t.Errorf("followup should carry embed and file: %+v", followups[0])
	}
	if !strings.HasSuffix(followups[0].Files[0].Name, ".png") {
		t.Errorf("file name = %q", followups[0].Files[0].Name)
	}

	if got := countRows(t, db); got != 1 {
		t.Errorf("usage rows = %d, want exactly 1", got)
	}

	var row models.Generation
	if err := db.First(&row).Error; err != nil {
		t.Fatalf("read row: %v", err)
	}
	if row.UserID != "u1" || row.Username != "alice" || row.Prompt != "a lighthouse at dusk" {
		t.Errorf("row = %+v", row)
	}
	if row.GuildID != "guild-1" || row.ChannelID != "chan-1" {
		t.Errorf("row channel fields = %+v", row)
	}
}

func TestHandleInteraction_CooldownRejectsSecondCall(t *testing.T) {
	gen := &mockGenerator{artifacts: successArtifacts()}
	d, sess, db := newTestDaemon(t, gen)

	now := time.Now()
	d.cooldown.now = func() time.Time { return now }

	d.handleInteraction(context.Background(), imagineInteraction("u1", "alice", nil))
	d.handleInteraction(context.Background(), imagineInteraction("u1", "alice", nil))

	if gen.callCount() != 1 {
		t.Fatalf("generator calls = %d, second call should be rejected", gen.callCount())
	}

	responses, _ := sess.snapshot()
	last := responses[len(responses)-1]
	if last.Type != discordgo.InteractionResponseChannelMessageWithSource {
		t.Fatalf("rejection response type = %v", last.Type)
	}
	if last.Data.Flags&discordgo.MessageFlagsEphemeral == 0 {
		t.Error("cooldown rejection should be ephemeral")
	}
	if !strings.Contains(last.Data.Content, "wait") {
		t.Errorf("rejection text = %q", last.Data.Content)
	}

	if got := countRows(t, db); got != 1 {
		t.Errorf("usage rows = %d, want 1", got)
	}
}

func TestHandleInteraction_CooldownExpires(t *testing.T) {
	gen := &mockGenerator{artifacts: successArtifacts()}
	d, _, _ := newTestDaemon(t, gen)

	now := time.Now()
	d.cooldown.now = func() time.Time { return now }
	d.handleInteraction(context.Background(), imagineInteraction("u1", "alice", nil))

	// Advance past the 10s default window.
	d.cooldown.now = func() time.Time { return now.Add(11 * time.Second) }
	d.handleInteraction(context.Background(), imagineInteraction("u1", "alice", nil))

	if gen.callCount() != 2 {
		t.Errorf("generator calls = %d, want 2 after window elapsed", gen.callCount())
	}
}

func TestHandleInteraction_CooldownPerUser(t *testing.T) {
	gen := &mockGenerator{artifacts: successArtifacts()}
	d, _, _ := newTestDaemon(t, gen)

	now := time.Now()
	d.cooldown.now = func() time.Time { return now }

	d.handleInteraction(context.Background(), imagineInteraction("u1", "alice", nil))
	d.handleInteraction(context.Background(), imagineInteraction("u2", "bob", nil))

	if gen.callCount() != 2 {
		t.Errorf("generator calls = %d, cooldown must be per-user", gen.callCount())
	}
}

func TestHandleInteraction_ConcurrencyCapRejectsWithoutAPICall(t *testing.T) {
	gen := &mockGenerator{artifacts: successArtifacts()}
	d, sess, db := newTestDaemon(t, gen)

	// Fill every slot (default max_concurrent is 2).
	for d.limiter.TryAcquire() {
	}

	d.handleInteraction(context.Background(), imagineInteraction("u1", "alice", nil))

	if gen.callCount() != 0 {
		t.Fatalf("generator calls = %d, want 0 when at capacity", gen.callCount())
	}

	responses, followups := sess.snapshot()
	if len(responses) != 1 || responses[0].Data == nil {
		t.Fatalf("responses = %+v, want one immediate rejection", responses)
	}
	if !strings.Contains(responses[0].Data.Content, "busy") {
		t.Errorf("rejection text = %q", responses[0].Data.Content)
	}
	if len(followups) != 0 {
		t.Errorf("followups = %d, want none", len(followups))
	}
	if got := countRows(t, db); got != 0 {
		t.Errorf("usage rows = %d, want 0", got)
	}
}

func TestHandleInteraction_ReleasesSlot(t *testing.T) {
	gen := &mockGenerator{artifacts: successArtifacts()}
	d, _, _ := newTestDaemon(t, gen)

	d.handleInteraction(context.Background(), imagineInteraction("u1", "alice", nil))

	if got := d.limiter.InFlight(); got != 0 {
		t.Errorf("in flight after completion = %d, want 0", got)
	}
}

func TestHandleInteraction_ModerationBlocks(t *testing.T) {
	gen := &mockGenerator{artifacts: successArtifacts()}
	db := openBotTestDB(t)
	sess := newMockSession()
	cfg := testConfig()
	cfg.Moderation.BannedKeywords = []string{"forbidden"}
	d, err := NewDaemon(DaemonOpts{DB: db, Config: cfg, Generator: gen, Session: sess})
	if err != nil {
		t.Fatal(err)
	}

	ic := imagineInteraction("u1", "alice", nil)
	ic.Data = discordgo.ApplicationCommandInteractionData{
		Name: commandName,
		Options: []*discordgo.ApplicationCommandInteractionDataOption{
			{Name: "prompt", Type: discordgo.ApplicationCommandOptionString, Value: "a FORBIDDEN thing"},
		},
	}
	d.handleInteraction(context.Background(), ic)

	if gen.callCount() != 0 {
		t.Errorf("generator calls = %d, want 0 for blocked prompt", gen.callCount())
	}
	responses, _ := sess.snapshot()
	if len(responses) != 1 || !strings.Contains(responses[0].Data.Content, "blocked") {
		t.Errorf("responses = %+v", responses)
	}
}

func TestHandleInteraction_APIErrorSurfaced(t *testing.T) {
	gen := &mockGenerator{err: &stability.APIError{StatusCode: http.StatusTooManyRequests, Message: "slow down"}}
	d, sess, db := newTestDaemon(t, gen)

	d.handleInteraction(context.Background(), imagineInteraction("u1", "alice", nil))

	_, followups := sess.snapshot()
	if len(followups) != 1 {
		t.Fatalf("followups = %d, want 1", len(followups))
	}
	if !strings.Contains(followups[0].Content, "rate limiting") {
		t.Errorf("followup text = %q", followups[0].Content)
	}
	if followups[0].Flags&discordgo.MessageFlagsEphemeral == 0 {
		t.Error("error followup should be ephemeral")
	}
	if got := countRows(t, db); got != 0 {
		t.Errorf("usage rows = %d, failed generation must not log", got)
	}
}

func TestHandleInteraction_FilteredArtifact(t *testing.T) {
	gen := &mockGenerator{artifacts: []stability.Artifact{
		{Image: []byte{1}, Seed: 1, FinishReason: "CONTENT_FILTERED"},
	}}
	d, sess, _ := newTestDaemon(t, gen)

	d.handleInteraction(context.Background(), imagineInteraction("u1", "alice", nil))

	_, followups := sess.snapshot()
	var imageFollowups, notices int
	for _, f := range followups {
		if len(f.Files) > 0 {
			imageFollowups++
		}
		if strings.Contains(f.Content, "safety filter") || strings.Contains(f.Content, "content filter") {
			notices++
		}
	}
	if imageFollowups != 0 {
		t.Errorf("image followups = %d, filtered artifact must not post", imageFollowups)
	}
	if notices == 0 {
		t.Error("expected a filter notice followup")
	}
}

func TestHandleInteraction_EmptyArtifacts(t *testing.T) {
	gen := &mockGenerator{artifacts: nil}
	d, sess, db := newTestDaemon(t, gen)

	d.handleInteraction(context.Background(), imagineInteraction("u1", "alice", nil))

	_, followups := sess.snapshot()
	if len(followups) != 1 || !strings.Contains(followups[0].Content, "empty") {
		t.Errorf("followups = %+v", followups)
	}
	if got := countRows(t, db); got != 0 {
		t.Errorf("usage rows = %d, want 0 for empty result", got)
	}
}

func TestHandleInteraction_ClampsParameters(t *testing.T) {
	gen := &mockGenerator{artifacts: successArtifacts()}
	d, _, _ := newTestDaemon(t, gen)

	d.handleInteraction(context.Background(), imagineInteraction("u1", "alice",
		[]*discordgo.ApplicationCommandInteractionDataOption{
			{Name: "steps", Type: discordgo.ApplicationCommandOptionInteger, Value: float64(500)},
			{Name: "cfg_scale", Type: discordgo.ApplicationCommandOptionNumber, Value: float64(99)},
			{Name: "width", Type: discordgo.ApplicationCommandOptionInteger, Value: float64(333)},
			{Name: "samples", Type: discordgo.ApplicationCommandOptionInteger, Value: float64(9)},
		}))

	gen.mu.Lock()
	req := gen.lastReq
	gen.mu.Unlock()

	if req.Steps != 80 {
		t.Errorf("steps = %d, want clamped to 80", req.Steps)
	}
	if req.CfgScale != 30 {
		t.Errorf("cfg_scale = %v, want clamped to 30", req.CfgScale)
	}
	if req.Width != 512 {
		t.Errorf("width = %d, want fallback 512", req.Width)
	}
	if req.Samples != 4 {
		t.Errorf("samples = %d, want clamped to 4", req.Samples)
	}
}

func TestRun_RegistersAndUnregistersGuildCommand(t *testing.T) {
	gen := &mockGenerator{artifacts: successArtifacts()}
	db := openBotTestDB(t)
	sess := newMockSession()
	cfg := testConfig()
	cfg.Discord.GuildID = "guild-9"
	d, err := NewDaemon(DaemonOpts{DB: db, Config: cfg, Generator: gen, Session: sess})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	// Wait for command registration.
	deadline := time.After(2 * time.Second)
	for {
		sess.mu.Lock()
		n := len(sess.created)
		sess.mu.Unlock()
		if n > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("command was never registered")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if len(sess.created) != 1 || sess.created[0].Name != commandName {
		t.Errorf("created commands = %+v", sess.created)
	}
	if sess.created[0].GuildID != "guild-9" {
		t.Errorf("command guild = %q", sess.created[0].GuildID)
	}
	if len(sess.deleted) != 1 {
		t.Errorf("deleted commands = %v, guild command should be removed on shutdown", sess.deleted)
	}
	if !sess.closed {
		t.Error("session should be closed after Run returns")
	}
}
