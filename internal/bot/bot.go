// Package bot implements the Discord daemon: slash command registration,
// the /imagine request path, and the scheduled usage digest.
package bot

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/zulandar/atelier/internal/config"
	"github.com/zulandar/atelier/internal/stability"
	"gorm.io/gorm"
)

// readyTimeout bounds how long Run waits for the gateway Ready event.
const readyTimeout = 30 * time.Second

// Generator abstracts the image generation call, enabling test mocks.
type Generator interface {
	Generate(ctx context.Context, req stability.GenerateRequest) ([]stability.Artifact, error)
}

// Daemon is the bot process. It connects to the Discord gateway, registers
// the /imagine command, and serves interactions until the context is
// cancelled.
type Daemon struct {
	db        *gorm.DB
	cfg       *config.Config
	gen       Generator
	sess      session
	cooldown  *Cooldown
	limiter   *Limiter
	moderator *Moderator

	mu        sync.Mutex
	appID     string
	commandID string
	readyCh   chan struct{}
	readyOnce sync.Once
}

// DaemonOpts holds parameters for creating a Daemon.
type DaemonOpts struct {
	DB        *gorm.DB
	Config    *config.Config
	Generator Generator
	// For testing: inject a mock session instead of the real gateway.
	Session session
}

// NewDaemon creates a Daemon with the given options.
func NewDaemon(opts DaemonOpts) (*Daemon, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("bot: db is required")
	}
	if opts.Config == nil {
		return nil, fmt.Errorf("bot: config is required")
	}
	if opts.Generator == nil {
		return nil, fmt.Errorf("bot: generator is required")
	}
	if opts.Session == nil && opts.Config.Discord.Token == "" {
		return nil, fmt.Errorf("bot: discord token is required")
	}

	return &Daemon{
		db:        opts.DB,
		cfg:       opts.Config,
		gen:       opts.Generator,
		sess:      opts.Session,
		cooldown:  NewCooldown(time.Duration(opts.Config.Limits.UserCooldownSec) * time.Second),
		limiter:   NewLimiter(opts.Config.Limits.MaxConcurrent),
		moderator: NewModerator(opts.Config.Moderation.BannedKeywords),
		readyCh:   make(chan struct{}),
	}, nil
}

// Run connects to the gateway, registers the slash command, and blocks
// until ctx is cancelled. On shutdown it removes guild-scoped commands and
// closes the session.
func (d *Daemon) Run(ctx context.Context) error {
	if d.sess == nil {
		dg, err := discordgo.New("Bot " + d.cfg.Discord.Token)
		if err != nil {
			return fmt.Errorf("bot: create session: %w", err)
		}
		dg.Identify.Intents = discordgo.IntentsGuilds
		d.sess = &realSession{s: dg}
	}

	d.sess.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		d.mu.Lock()
		d.appID = r.User.ID
		d.mu.Unlock()
		d.readyOnce.Do(func() { close(d.readyCh) })
		log.Printf("bot: logged in as %s (ID: %s)", r.User.Username, r.User.ID)
	})

	d.sess.AddHandler(func(_ *discordgo.Session, ic *discordgo.InteractionCreate) {
		if ic.Type != discordgo.InteractionApplicationCommand {
			return
		}
		if ic.ApplicationCommandData().Name != commandName {
			return
		}
		// Generation takes up to minutes; never block the event dispatch.
		go d.handleInteraction(ctx, ic)
	})

	if err := d.sess.Open(); err != nil {
		return fmt.Errorf("bot: open gateway: %w", err)
	}

	select {
	case <-d.readyCh:
	case <-ctx.Done():
		d.sess.Close()
		return ctx.Err()
	case <-time.After(readyTimeout):
		d.sess.Close()
		return fmt.Errorf("bot: gateway ready not received within %s", readyTimeout)
	}

	if err := d.registerCommand(); err != nil {
		d.sess.Close()
		return err
	}

	if d.cfg.Digest.Enabled && d.cfg.Digest.ChannelID != "" {
		go d.runDigestLoop(ctx)
	}

	<-ctx.Done()

	d.unregisterCommand()
	if err := d.sess.Close(); err != nil {
		return fmt.Errorf("bot: close session: %w", err)
	}
	return nil
}

// registerCommand creates the /imagine application command. Guild-scoped
// when a guild ID is configured (instant propagation), global otherwise.
func (d *Daemon) registerCommand() error {
	d.mu.Lock()
	appID := d.appID
	d.mu.Unlock()

	cmd, err := d.sess.ApplicationCommandCreate(appID, d.cfg.Discord.GuildID, applicationCommand())
	if err != nil {
		return fmt.Errorf("bot: register /%s: %w", commandName, err)
	}

	d.mu.Lock()
	d.commandID = cmd.ID
	d.mu.Unlock()

	scope := "globally"
	if d.cfg.Discord.GuildID != "" {
		scope = "to guild " + d.cfg.Discord.GuildID
	}
	log.Printf("bot: registered /%s %s", commandName, scope)
	return nil
}

// unregisterCommand removes a guild-scoped command on shutdown. Global
// commands are left registered and persist across restarts.
func (d *Daemon) unregisterCommand() {
	if d.cfg.Discord.GuildID == "" {
		return
	}

	d.mu.Lock()
	appID, cmdID := d.appID, d.commandID
	d.mu.Unlock()

	if cmdID == "" {
		return
	}
	if err := d.sess.ApplicationCommandDelete(appID, d.cfg.Discord.GuildID, cmdID); err != nil {
		log.Printf("bot: unregister /%s: %v", commandName, err)
	}
}
