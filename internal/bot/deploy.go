package bot

import (
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/schaermu/syncbot/internal/config"
)

// CommandOverwriter replaces an application's slash commands
type CommandOverwriter interface {
	ApplicationCommandBulkOverwrite(appID string, guildID string, commands []*discordgo.ApplicationCommand, options ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error)
}

// DeployCommands publishes the builtin commands over REST without opening a
// gateway connection. Commands go to the configured guild when one is set,
// otherwise they are registered globally.
func DeployCommands(cfg *config.Config, logger *slog.Logger) error {
	if cfg.Discord.Token == "" {
		return fmt.Errorf("discord token is required")
	}
	dg, err := discordgo.New("Bot " + cfg.Discord.Token)
	if err != nil {
		return fmt.Errorf("error creating discord session: %w", err)
	}
	return deployCommands(dg, cfg, logger)
}

func deployCommands(s CommandOverwriter, cfg *config.Config, logger *slog.Logger) error {
	if cfg.Discord.ClientID == "" {
		return fmt.Errorf("discord client id is required")
	}

	defs := Definitions()
	logger.Info("started refreshing application commands", "count", len(defs))

	got, err := s.ApplicationCommandBulkOverwrite(cfg.Discord.ClientID, cfg.Discord.GuildID, defs)
	if err != nil {
		return fmt.Errorf("failed to deploy commands: %w", err)
	}

	logger.Info("successfully reloaded application commands", "count", len(got), "guild", cfg.Discord.GuildID)
	return nil
}
