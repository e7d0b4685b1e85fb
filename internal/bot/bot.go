// Package bot exposes the sync controller as Discord slash commands.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/schaermu/syncbot/internal/config"
)

// Session is the part of *discordgo.Session the bot talks to
type Session interface {
	Responder
	ApplicationCommandBulkOverwrite(appID string, guildID string, commands []*discordgo.ApplicationCommand, options ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error)
	UpdateWatchStatus(idle int, name string) error
}

// Bot connects the Discord gateway to the command registry
type Bot struct {
	cfg       atomic.Pointer[config.Config]
	session   Session
	gateway   *discordgo.Session
	registry  *Registry
	cooldowns *Cooldowns
	logger    *slog.Logger

	ctx       context.Context
	appID     atomic.Value // string
	startedAt time.Time
	now       func() time.Time
}

// New creates a bot for cfg. Call Open to connect.
func New(cfg *config.Config, syncer Syncer, logger *slog.Logger) (*Bot, error) {
	dg, err := discordgo.New("Bot " + cfg.Discord.Token)
	if err != nil {
		return nil, fmt.Errorf("error creating discord session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuilds

	b, err := newBot(cfg, dg, syncer, dg.HeartbeatLatency, logger)
	if err != nil {
		return nil, err
	}
	b.gateway = dg

	dg.AddHandler(b.onReady)
	dg.AddHandler(b.onInteraction)
	return b, nil
}

func newBot(cfg *config.Config, session Session, syncer Syncer, latency func() time.Duration, logger *slog.Logger) (*Bot, error) {
	b := &Bot{
		session:   session,
		cooldowns: NewCooldowns(cfg.Discord.CommandCooldown()),
		logger:    logger,
		ctx:       context.Background(),
		now:       time.Now,
	}
	b.cfg.Store(cfg)
	b.appID.Store(cfg.Discord.ClientID)
	b.startedAt = b.now()

	registry, err := newBuiltinRegistry(commandDeps{
		syncer:  syncer,
		uptime:  b.Uptime,
		latency: latency,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build command registry: %w", err)
	}
	b.registry = registry
	logger.Debug("command registry ready", "count", registry.Len())
	return b, nil
}

// Open connects to the gateway. ctx bounds the sync operations commands start.
func (b *Bot) Open(ctx context.Context) error {
	b.ctx = ctx
	b.startedAt = b.now()
	if err := b.gateway.Open(); err != nil {
		return fmt.Errorf("error opening discord connection: %w", err)
	}
	return nil
}

// Close disconnects from the gateway
func (b *Bot) Close() error {
	if b.gateway == nil {
		return nil
	}
	return b.gateway.Close()
}

// Config returns the active configuration
func (b *Bot) Config() *config.Config {
	return b.cfg.Load()
}

// Uptime returns the time since the bot was opened
func (b *Bot) Uptime() time.Duration {
	return b.now().Sub(b.startedAt)
}

// ReloadConfig swaps in cfg and re-registers the commands
func (b *Bot) ReloadConfig(cfg *config.Config) error {
	b.cfg.Store(cfg)
	b.cooldowns.SetInterval(cfg.Discord.CommandCooldown())
	if cfg.Discord.ClientID != "" {
		b.appID.Store(cfg.Discord.ClientID)
	}
	b.logger.Info("configuration reloaded")
	return b.RegisterCommands()
}

// RegisterCommands overwrites the application's commands with the registry.
// In development with a guild configured they are registered for that guild
// only, which takes effect immediately.
func (b *Bot) RegisterCommands() error {
	cfg := b.cfg.Load()
	appID, _ := b.appID.Load().(string)
	if appID == "" {
		return fmt.Errorf("application id unknown, set discord.client_id")
	}

	guildID := registrationGuild(cfg)
	defs := b.registry.Definitions()
	if _, err := b.session.ApplicationCommandBulkOverwrite(appID, guildID, defs); err != nil {
		return fmt.Errorf("failed to register commands: %w", err)
	}

	if guildID != "" {
		b.logger.Info("registered guild commands", "count", len(defs), "guild", guildID)
	} else {
		b.logger.Info("registered global commands", "count", len(defs))
	}
	return nil
}

func registrationGuild(cfg *config.Config) string {
	if cfg.IsDevelopment() && cfg.Discord.GuildID != "" {
		return cfg.Discord.GuildID
	}
	return ""
}

func (b *Bot) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	b.handleReady(r)
}

func (b *Bot) handleReady(r *discordgo.Ready) {
	if r.User != nil {
		b.logger.Info("logged in", "user", r.User.Username, "guilds", len(r.Guilds))
		b.appID.Store(r.User.ID)
	}
	if err := b.RegisterCommands(); err != nil {
		b.logger.Error("failed to register commands", "error", err)
	}

	activity := b.cfg.Load().Discord.Activity
	if err := b.session.UpdateWatchStatus(0, activity); err != nil {
		b.logger.Warn("failed to set presence", "error", err)
	}
}

func (b *Bot) onInteraction(_ *discordgo.Session, i *discordgo.InteractionCreate) {
	b.dispatch(b.ctx, i)
}

// dispatch routes an interaction to its command, enforcing the admin gate and
// the per-user cooldown. Handler failures are reported to the user.
func (b *Bot) dispatch(ctx context.Context, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}

	user := interactionUser(i)
	req := &Request{Interaction: i, User: user, responder: b.session}
	name := req.Name()
	logger := b.logger.With("command", name, "user", user.Username, "user_id", user.ID)

	cmd, ok := b.registry.Lookup(name)
	if !ok {
		logger.Warn("unknown command")
		b.replyError(logger, req, msgUnknown)
		return
	}

	if cmd.AdminOnly && !b.cfg.Load().Discord.IsAdmin(user.ID) {
		logger.Warn("command denied, user is not an admin")
		b.replyError(logger, req, msgNoPermission)
		return
	}

	if wait := b.cooldowns.Wait(name+":"+user.ID, b.now()); wait > 0 {
		b.replyError(logger, req, fmt.Sprintf("⏳ Please wait %.1f more second(s) before reusing `/%s`.", wait.Seconds(), name))
		return
	}

	logger.Info("executing command", "subcommand", req.Subcommand())
	if err := runHandler(ctx, cmd.Handler, req); err != nil {
		logger.Error("command failed", "error", err)
		b.replyError(logger, req, msgCommandFailed)
	}
}

func runHandler(ctx context.Context, h Handler, req *Request) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("command panicked: %v", r)
		}
	}()
	return h(ctx, req)
}

func (b *Bot) replyError(logger *slog.Logger, req *Request, msg string) {
	var err error
	if req.responded {
		err = req.Edit(msg)
	} else {
		err = req.ReplyEphemeral(msg)
	}
	if err != nil {
		logger.Error("failed to send error response", "error", err)
	}
}
