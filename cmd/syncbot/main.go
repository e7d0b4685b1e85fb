package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"os/user"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/schaermu/syncbot/internal/activation"
	"github.com/schaermu/syncbot/internal/bot"
	"github.com/schaermu/syncbot/internal/config"
	"github.com/schaermu/syncbot/internal/logging"
	"github.com/schaermu/syncbot/internal/sync"
	"github.com/schaermu/syncbot/internal/systemduser"
	"github.com/schaermu/syncbot/internal/vcs"
	"github.com/schaermu/syncbot/internal/webhook"
)

var (
	// Set by goreleaser
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// Global flags
	cfgFile   string
	logLevel  string
	logFormat string

	pushMessage string
)

// webhookSocketName is the FileDescriptorName of the activated webhook socket
const webhookSocketName = "webhook"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "syncbot",
	Short: "Keep a Git working tree in sync with its GitHub remote",
	Long: `syncbot commits and pushes local changes of a working tree, pulls commits
from its remote branch and runs a reload hook when new commits arrive.

It can run a single reconciliation cycle (e.g. from a systemd timer) or serve
continuously with a cron schedule, a Discord bot and a GitHub webhook.`,
	SilenceUsage: true,
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one reconciliation cycle",
	Long: `Sync commits and pushes local changes, then pulls remote commits.

Step failures are logged and do not change the exit status; it only fails
when setup fails.`,
	RunE: runSync,
}

var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Commit all local changes and push them",
	RunE:  runPush,
}

var pullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Pull remote changes and run the reload hook",
	RunE:  runPull,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show branch, ahead/behind counts and changed files",
	RunE:  runStatus,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run auto-sync, the Discord bot and the webhook server",
	Long: `Serve keeps running until interrupted. Depending on the configuration it
schedules reconciliation cycles, connects the Discord bot and accepts GitHub
push webhooks (on a systemd-activated socket when one is passed in).`,
	RunE: runServe,
}

var deployCommandsCmd = &cobra.Command{
	Use:   "deploy-commands",
	Short: "Register the Discord slash commands",
	RunE:  runDeployCommands,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		_, _ = fmt.Fprintf(out, "syncbot %s\n", version)
		_, _ = fmt.Fprintf(out, "  commit: %s\n", commit)
		_, _ = fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/syncbot/config.yaml if present)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error), overrides the config")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (text, json), overrides the config")

	pushCmd.Flags().StringVarP(&pushMessage, "message", "m", "", "commit message (default \"Manual sync: <user>\")")

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(pushCmd)
	rootCmd.AddCommand(pullCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(deployCommandsCmd)
	rootCmd.AddCommand(versionCmd)
}

// app holds what every command needs
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	closer io.Closer
}

func (a *app) Close() {
	_ = a.closer.Close()
}

// setup loads the configuration and opens the log sink
func setup() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, closer, err := logging.New(logging.FromConfig(cfg.Log))
	if err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}

	logger.Debug("configuration loaded",
		"repo_dir", cfg.RepoDir(),
		"remote", cfg.Repo.Remote,
		"branch", cfg.Repo.Branch,
		"backend", cfg.Git.Backend,
		"auth", cfg.AuthMethod(),
		"auto_sync", cfg.Sync.Enabled,
		"sync_interval", cfg.Sync.IntervalDuration(),
		"environment", cfg.Environment)

	return &app{cfg: cfg, logger: logger, closer: closer}, nil
}

// loadConfig reads the configuration and applies the logging flags
func loadConfig() (*config.Config, error) {
	path, err := resolveConfigPath(cfgFile)
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	applyFlagOverrides(cfg)
	return cfg, nil
}

// resolveConfigPath returns explicit, or the default config file when it
// exists, or "" to run from the environment only
func resolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", nil
	}
	path := filepath.Join(home, ".config", "syncbot", "config.yaml")
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("failed to stat config file: %w", err)
	}
	return path, nil
}

func applyFlagOverrides(cfg *config.Config) {
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
}

func newController(a *app) (*sync.Controller, error) {
	facade, err := vcs.New(a.cfg, a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create git backend: %w", err)
	}
	return sync.NewController(sync.SettingsFromConfig(a.cfg), facade, a.logger), nil
}

func runSync(cmd *cobra.Command, args []string) (err error) {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	a, err := setup()
	if err != nil {
		return err
	}
	defer a.Close()

	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("sync panicked", "panic", r)
			err = fmt.Errorf("sync panicked: %v", r)
		}
	}()

	ctrl, err := newController(a)
	if err != nil {
		return err
	}
	if hook := systemduser.RestartHook(systemduser.NewClient(), a.cfg.Reload.Units, a.logger); hook != nil {
		ctrl.SetReloadCallback(hook)
	}

	a.logger.Info("starting sync operation")
	out := ctrl.CheckAndSync(ctx)
	if out.Err != nil {
		a.logger.Warn("sync finished with errors, see log for details", "error", out.Err)
	}
	return nil
}

func runPush(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	a, err := setup()
	if err != nil {
		return err
	}
	defer a.Close()

	ctrl, err := newController(a)
	if err != nil {
		return err
	}

	msg := pushMessage
	if msg == "" {
		msg = sync.ManualCommitMessage(currentUser())
	}

	if !ctrl.CommitAndPush(ctx, msg) {
		return fmt.Errorf("push failed")
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Push successful!")
	return nil
}

func runPull(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	a, err := setup()
	if err != nil {
		return err
	}
	defer a.Close()

	ctrl, err := newController(a)
	if err != nil {
		return err
	}
	if hook := systemduser.RestartHook(systemduser.NewClient(), a.cfg.Reload.Units, a.logger); hook != nil {
		ctrl.SetReloadCallback(hook)
	}

	switch res := ctrl.PullAndReload(ctx); res {
	case sync.PullUpdated:
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Pull successful!")
	case sync.PullUpToDate:
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Already up to date!")
	default:
		return fmt.Errorf("pull failed: %s", res)
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	a, err := setup()
	if err != nil {
		return err
	}
	defer a.Close()

	ctrl, err := newController(a)
	if err != nil {
		return err
	}

	st, err := ctrl.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to read status: %w", err)
	}
	printStatus(cmd.OutOrStdout(), st)
	return nil
}

func printStatus(w io.Writer, st *vcs.Status) {
	_, _ = fmt.Fprintf(w, "branch:   %s\n", st.Branch)
	if st.Tracking != "" {
		_, _ = fmt.Fprintf(w, "tracking: %s\n", st.Tracking)
	}
	_, _ = fmt.Fprintf(w, "ahead:    %d\n", st.Ahead)
	_, _ = fmt.Fprintf(w, "behind:   %d\n", st.Behind)
	if st.Clean() {
		_, _ = fmt.Fprintln(w, "working tree clean")
		return
	}
	for _, f := range st.Files {
		_, _ = fmt.Fprintf(w, "  %s%s %s\n", f.Index, f.Worktree, f.Path)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	a, err := setup()
	if err != nil {
		return err
	}
	defer a.Close()

	ctrl, err := newController(a)
	if err != nil {
		return err
	}

	var discord *bot.Bot
	if a.cfg.Discord.Enabled() {
		discord, err = bot.New(a.cfg, ctrl, a.logger.With("component", "bot"))
		if err != nil {
			return err
		}
	}

	ctrl.SetReloadCallback(reloadCallback(discord, systemduser.NewClient(), a.logger))

	errCh := make(chan error, 1)
	if a.cfg.Serve.Enabled {
		server, err := webhook.NewServer(a.cfg.Serve, ctrl, a.logger.With("component", "webhook"))
		if err != nil {
			return err
		}
		ln, activated, err := activation.Listen(a.cfg.Serve.ListenAddr, webhookSocketName)
		if err != nil {
			return err
		}
		if activated {
			a.logger.Info("using systemd socket activation", "addr", ln.Addr().String())
		}
		go func() {
			if err := server.Start(ctx, ln); err != nil {
				errCh <- fmt.Errorf("webhook server: %w", err)
			}
		}()
	}

	if discord != nil {
		if err := discord.Open(ctx); err != nil {
			return err
		}
		defer func() {
			if err := discord.Close(); err != nil {
				a.logger.Warn("failed to close discord session", "error", err)
			}
		}()
		a.logger.Info("discord bot connected")
	}

	autoSync := ctrl.StartAutoSync(ctx)
	defer ctrl.Stop()

	if !autoSync && discord == nil && !a.cfg.Serve.Enabled {
		a.logger.Warn("nothing to serve: auto-sync, discord and webhook are all disabled")
	}

	a.logger.Info("syncbot running", "version", version)

	select {
	case <-ctx.Done():
		a.logger.Info("shutting down")
		return nil
	case err := <-errCh:
		a.logger.Error("shutting down after failure", "error", err)
		return err
	}
}

// reloadCallback reloads the configuration after a pull, swaps it into the
// bot (which re-registers its commands) and restarts the configured units
func reloadCallback(discord *bot.Bot, sd systemduser.Systemd, logger *slog.Logger) sync.ReloadFunc {
	return func(ctx context.Context) error {
		next, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to reload config: %w", err)
		}

		if discord != nil {
			if err := discord.ReloadConfig(next); err != nil {
				return err
			}
		}

		if hook := systemduser.RestartHook(sd, next.Reload.Units, logger); hook != nil {
			return hook(ctx)
		}
		return nil
	}
}

func runDeployCommands(cmd *cobra.Command, args []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := bot.DeployCommands(a.cfg, a.logger); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Commands deployed.")
	return nil
}

func currentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	if name := os.Getenv("USER"); name != "" {
		return name
	}
	return "cli"
}

func setupSignalHandler() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}
