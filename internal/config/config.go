package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Backend selects the implementation behind the version control facade
type Backend string

const (
	BackendShell Backend = "shell"
	BackendGoGit Backend = "go-git"
)

const (
	DefaultRemote          = "origin"
	DefaultBranch          = "main"
	DefaultIntervalMinutes = 30
	DefaultLogFile         = "logs/git-automation.log"
	DefaultCooldownMillis  = 5000
	EnvDevelopment         = "development"
	EnvProduction          = "production"
)

// ErrInvalid is wrapped by every validation failure
var ErrInvalid = errors.New("invalid configuration")

// Error reports a missing or malformed configuration value
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *Error) Unwrap() error { return ErrInvalid }

func invalid(field, format string, args ...any) error {
	return &Error{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Config represents the complete syncbot configuration
type Config struct {
	Environment string        `yaml:"environment"`
	Repo        RepoConfig    `yaml:"repo"`
	Sync        SyncConfig    `yaml:"sync"`
	Git         GitConfig     `yaml:"git"`
	Auth        AuthConfig    `yaml:"auth"`
	Discord     DiscordConfig `yaml:"discord"`
	Log         LogConfig     `yaml:"log"`
	Serve       ServeConfig   `yaml:"serve"`
	Reload      ReloadConfig  `yaml:"reload"`
}

// RepoConfig configures the working tree and the remote/branch pair it tracks
type RepoConfig struct {
	Dir    string `yaml:"dir"`
	Remote string `yaml:"remote"`
	Branch string `yaml:"branch"`
}

// SyncConfig configures the automatic sync loop
type SyncConfig struct {
	Enabled  bool `yaml:"enabled"`
	Interval int  `yaml:"interval"` // minutes
}

// IntervalDuration returns the sync interval as a duration
func (s SyncConfig) IntervalDuration() time.Duration {
	return time.Duration(s.Interval) * time.Minute
}

// GitConfig configures the git backend and commit identity
type GitConfig struct {
	Backend     Backend `yaml:"backend"`
	AuthorName  string  `yaml:"author_name"`
	AuthorEmail string  `yaml:"author_email"`
}

// AuthConfig configures Git authentication
type AuthConfig struct {
	SSHKeyFile     string `yaml:"ssh_key_file"`
	HTTPSTokenFile string `yaml:"https_token_file"`
	HTTPSToken     string `yaml:"https_token"`
}

// DiscordConfig configures the chat bot shell
type DiscordConfig struct {
	Token             string   `yaml:"token"`
	ClientID          string   `yaml:"client_id"`
	GuildID           string   `yaml:"guild_id"`
	AdminUserIDs      []string `yaml:"admin_user_ids"`
	CommandCooldownMS int      `yaml:"command_cooldown_ms"`
	Activity          string   `yaml:"activity"`
}

// CommandCooldown returns the per-user cooldown between commands
func (d DiscordConfig) CommandCooldown() time.Duration {
	return time.Duration(d.CommandCooldownMS) * time.Millisecond
}

// Enabled reports whether a bot token is configured
func (d DiscordConfig) Enabled() bool {
	return d.Token != ""
}

// IsAdmin reports whether the user may trigger mutating commands.
// An empty admin list allows everyone.
func (d DiscordConfig) IsAdmin(userID string) bool {
	if len(d.AdminUserIDs) == 0 {
		return true
	}
	for _, id := range d.AdminUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// LogConfig configures the log sink
type LogConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	File      string `yaml:"file"`
	MaxSizeMB int    `yaml:"max_size_mb"`
}

// ServeConfig configures the webhook trigger
type ServeConfig struct {
	Enabled                 bool     `yaml:"enabled"`
	ListenAddr              string   `yaml:"listen_addr"`
	GitHubWebhookSecretFile string   `yaml:"github_webhook_secret_file"`
	AllowedEventTypes       []string `yaml:"allowed_event_types"`
	AllowedRefs             []string `yaml:"allowed_refs"`
}

// ReloadConfig configures what happens after a pull changed the working tree
type ReloadConfig struct {
	Units []string `yaml:"units"`
}

// Load builds the configuration from an optional YAML file, a .env file and
// the process environment, in that order of precedence (last wins).
// An empty path skips the file.
func Load(path string) (*Config, error) {
	loadDotEnv()
	return load(path, os.LookupEnv)
}

func load(path string, lookup LookupFunc) (*Config, error) {
	var cfg Config

	if path != "" {
		path = os.ExpandEnv(path)

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}

		cfg.expandEnv()
	}

	cfg.applyEnv(lookup)
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// expandEnv expands environment variables in all string fields
func (c *Config) expandEnv() {
	c.Repo.Dir = os.ExpandEnv(c.Repo.Dir)
	c.Repo.Remote = os.ExpandEnv(c.Repo.Remote)
	c.Repo.Branch = os.ExpandEnv(c.Repo.Branch)
	c.Auth.SSHKeyFile = os.ExpandEnv(c.Auth.SSHKeyFile)
	c.Auth.HTTPSTokenFile = os.ExpandEnv(c.Auth.HTTPSTokenFile)
	c.Auth.HTTPSToken = os.ExpandEnv(c.Auth.HTTPSToken)
	c.Discord.Token = os.ExpandEnv(c.Discord.Token)
	c.Log.File = os.ExpandEnv(c.Log.File)
	c.Serve.ListenAddr = os.ExpandEnv(c.Serve.ListenAddr)
	c.Serve.GitHubWebhookSecretFile = os.ExpandEnv(c.Serve.GitHubWebhookSecretFile)
}

// applyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.Environment == "" {
		c.Environment = EnvDevelopment
	}
	if c.Repo.Dir == "" {
		c.Repo.Dir = "."
	}
	if c.Repo.Remote == "" {
		c.Repo.Remote = DefaultRemote
	}
	if c.Repo.Branch == "" {
		c.Repo.Branch = DefaultBranch
	}
	if c.Sync.Interval == 0 {
		c.Sync.Interval = DefaultIntervalMinutes
	}
	if c.Git.Backend == "" {
		c.Git.Backend = BackendShell
	}
	if c.Discord.CommandCooldownMS == 0 {
		c.Discord.CommandCooldownMS = DefaultCooldownMillis
	}
	if c.Discord.Activity == "" {
		c.Discord.Activity = "the repository"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Log.File == "" {
		c.Log.File = DefaultLogFile
	}
	if !filepath.IsAbs(c.Log.File) {
		base := installRoot()
		if base == "" {
			base = c.RepoDir()
		}
		c.Log.File = filepath.Join(base, c.Log.File)
	}
	if len(c.Serve.AllowedRefs) == 0 {
		c.Serve.AllowedRefs = []string{"refs/heads/" + c.Repo.Branch}
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Repo.Branch == "" {
		return invalid("repo.branch", "is required")
	}
	if c.Repo.Remote == "" {
		return invalid("repo.remote", "is required")
	}
	if c.Sync.Interval <= 0 {
		return invalid("sync.interval", "must be a positive number of minutes, got %d", c.Sync.Interval)
	}

	switch c.Git.Backend {
	case BackendShell, BackendGoGit:
		// valid
	default:
		return invalid("git.backend", "must be shell or go-git, got %q", c.Git.Backend)
	}

	// Only one auth method may be configured
	if c.Auth.SSHKeyFile != "" && (c.Auth.HTTPSTokenFile != "" || c.Auth.HTTPSToken != "") {
		return invalid("auth", "only one of ssh_key_file or an https token may be set")
	}
	if c.Auth.HTTPSTokenFile != "" && c.Auth.HTTPSToken != "" {
		return invalid("auth", "https_token_file and https_token are mutually exclusive")
	}

	if c.Discord.CommandCooldownMS < 0 {
		return invalid("discord.command_cooldown_ms", "must not be negative")
	}
	if c.Log.MaxSizeMB < 0 {
		return invalid("log.max_size_mb", "must not be negative")
	}

	switch c.Log.Format {
	case "text", "json":
		// valid
	default:
		return invalid("log.format", "must be text or json, got %q", c.Log.Format)
	}

	if c.Serve.Enabled {
		if c.Serve.ListenAddr == "" {
			return invalid("serve.listen_addr", "is required when serve is enabled")
		}
		if c.Serve.GitHubWebhookSecretFile == "" {
			return invalid("serve.github_webhook_secret_file", "is required when serve is enabled")
		}
	}

	return nil
}

// executable is replaced in tests
var executable = os.Executable

// installRoot is the parent of the directory holding the binary, so a
// relative log file lands next to bin/ whatever the working directory is.
// It returns "" when the binary cannot be located.
func installRoot() string {
	exe, err := executable()
	if err != nil || exe == "" {
		return ""
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Dir(filepath.Dir(exe))
}

// RepoDir returns the absolute path of the working tree
func (c *Config) RepoDir() string {
	dir, err := filepath.Abs(c.Repo.Dir)
	if err != nil {
		return c.Repo.Dir
	}
	return dir
}

// Token resolves the configured HTTPS token, reading the token file if needed.
// Returns an empty string when no token is configured.
func (a AuthConfig) Token() (string, error) {
	if a.HTTPSToken != "" {
		return a.HTTPSToken, nil
	}
	if a.HTTPSTokenFile == "" {
		return "", nil
	}
	data, err := os.ReadFile(a.HTTPSTokenFile)
	if err != nil {
		return "", fmt.Errorf("failed to read HTTPS token file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// AuthMethod returns a description of the configured auth method
func (c *Config) AuthMethod() string {
	if c.Auth.SSHKeyFile != "" {
		return "ssh"
	}
	if c.Auth.HTTPSTokenFile != "" || c.Auth.HTTPSToken != "" {
		return "https"
	}
	return "none"
}

// IsDevelopment reports whether commands should be registered per guild
func (c *Config) IsDevelopment() bool {
	return c.Environment == EnvDevelopment
}
