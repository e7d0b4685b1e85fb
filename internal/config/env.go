package config

import (
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// DotEnvFile is the file loaded into the process environment before overrides
// are applied. Variables already present in the environment are not replaced.
var DotEnvFile = ".env"

// LookupFunc matches os.LookupEnv
type LookupFunc func(key string) (string, bool)

func loadDotEnv() {
	// A missing .env is the normal case outside development.
	_ = godotenv.Load(DotEnvFile)
}

// applyEnv overlays environment variables onto the file configuration.
func (c *Config) applyEnv(lookup LookupFunc) {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	str("SYNC_REPO_DIR", &c.Repo.Dir)
	str("GITHUB_BRANCH", &c.Repo.Branch)
	// A file-configured auth method wins over an ambient GITHUB_TOKEN.
	if c.Auth.SSHKeyFile == "" && c.Auth.HTTPSTokenFile == "" {
		str("GITHUB_TOKEN", &c.Auth.HTTPSToken)
	}
	str("DISCORD_TOKEN", &c.Discord.Token)
	str("DISCORD_CLIENT_ID", &c.Discord.ClientID)
	str("DISCORD_GUILD_ID", &c.Discord.GuildID)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FILE", &c.Log.File)
	str("NODE_ENV", &c.Environment)
	str("ENVIRONMENT", &c.Environment)

	// Anything other than the literal "true" disables auto-sync.
	if v, ok := lookup("GITHUB_AUTO_SYNC"); ok {
		c.Sync.Enabled = v == "true"
	}

	// Unparsable or non-positive values fall back to the default interval.
	if v, ok := lookup("GITHUB_SYNC_INTERVAL"); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			c.Sync.Interval = n
		} else {
			c.Sync.Interval = DefaultIntervalMinutes
		}
	}

	if v, ok := lookup("COMMAND_COOLDOWN"); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n >= 0 {
			c.Discord.CommandCooldownMS = n
		}
	}

	if v, ok := lookup("ADMIN_USER_IDS"); ok {
		c.Discord.AdminUserIDs = splitList(v)
	}
}

// splitList splits a comma separated list, dropping blanks
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
