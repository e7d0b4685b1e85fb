package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/schaermu/syncbot/internal/sync"
	"github.com/schaermu/syncbot/internal/vcs"
)

// Syncer is the part of *sync.Controller the bot drives
type Syncer interface {
	CommitAndPush(ctx context.Context, message string, paths ...string) bool
	PullAndReload(ctx context.Context) sync.PullResult
	Status(ctx context.Context) (*vcs.Status, error)
}

// commandDeps are the collaborators builtin command handlers close over
type commandDeps struct {
	syncer   Syncer
	uptime   func() time.Duration
	latency  func() time.Duration
	registry *Registry
}

const (
	msgPushing       = "📤 Pushing to GitHub..."
	msgPushOK        = "✅ Push successful!"
	msgPushFailed    = "❌ Push failed!"
	msgPulling       = "📥 Pulling from GitHub..."
	msgPullOK        = "✅ Pull successful!"
	msgPullUpToDate  = "✅ Already up to date!"
	msgPullFailed    = "❌ Pull failed!"
	msgStatusPending = "📊 Checking repository status..."
	msgCommandFailed = "There was an error while executing this command!"
	msgNoPermission  = "⛔ You do not have permission to use this command."
	msgUnknown       = "Unknown command."
)

func builtinCommands(deps commandDeps) []Command {
	return []Command{
		{
			Definition: &discordgo.ApplicationCommand{
				Name:        "sync",
				Description: "Synchronize the repository with GitHub",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionSubCommand,
						Name:        "push",
						Description: "Commit local changes and push them",
					},
					{
						Type:        discordgo.ApplicationCommandOptionSubCommand,
						Name:        "pull",
						Description: "Pull remote changes",
					},
					{
						Type:        discordgo.ApplicationCommandOptionSubCommand,
						Name:        "status",
						Description: "Show the repository status",
					},
				},
			},
			Handler:   deps.handleSync,
			AdminOnly: true,
		},
		{
			Definition: &discordgo.ApplicationCommand{
				Name:        "ping",
				Description: "Replies with Pong!",
			},
			Handler: deps.handlePing,
		},
		{
			Definition: &discordgo.ApplicationCommand{
				Name:        "uptime",
				Description: "Show how long the bot has been running",
			},
			Handler: deps.handleUptime,
		},
		{
			Definition: &discordgo.ApplicationCommand{
				Name:        "help",
				Description: "Show help menu",
			},
			Handler: deps.handleHelp,
		},
	}
}

// Definitions returns the definitions of every builtin command
func Definitions() []*discordgo.ApplicationCommand {
	registry, err := newBuiltinRegistry(commandDeps{})
	if err != nil {
		panic(err)
	}
	return registry.Definitions()
}

func newBuiltinRegistry(deps commandDeps) (*Registry, error) {
	registry := NewRegistry()
	deps.registry = registry
	for _, cmd := range builtinCommands(deps) {
		if err := registry.Register(cmd); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func (d commandDeps) handleSync(ctx context.Context, req *Request) error {
	switch sub := req.Subcommand(); sub {
	case "push":
		if err := req.Reply(msgPushing); err != nil {
			return err
		}
		msg := msgPushFailed
		if d.syncer.CommitAndPush(ctx, sync.ManualCommitMessage(req.User.Username)) {
			msg = msgPushOK
		}
		return req.Edit(msg)

	case "pull":
		if err := req.Reply(msgPulling); err != nil {
			return err
		}
		return req.Edit(pullMessage(d.syncer.PullAndReload(ctx)))

	case "status":
		// Status waits for running cycles and fetches, so answer first.
		if err := req.Reply(msgStatusPending); err != nil {
			return err
		}
		st, err := d.syncer.Status(ctx)
		if err != nil {
			return fmt.Errorf("failed to read repository status: %w", err)
		}
		return req.Edit(formatStatus(st))

	default:
		return fmt.Errorf("unknown sync subcommand %q", sub)
	}
}

func pullMessage(res sync.PullResult) string {
	switch res {
	case sync.PullUpdated:
		return msgPullOK
	case sync.PullUpToDate:
		return msgPullUpToDate
	default:
		return msgPullFailed
	}
}

func formatStatus(st *vcs.Status) string {
	var b strings.Builder
	b.WriteString("📊 **Repository status**\n")

	fmt.Fprintf(&b, "Branch: `%s`", st.Branch)
	if st.Tracking != "" {
		fmt.Fprintf(&b, " tracking `%s`", st.Tracking)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Ahead: %d, behind: %d\n", st.Ahead, st.Behind)

	if st.Clean() {
		b.WriteString("Working tree clean")
		return b.String()
	}

	fmt.Fprintf(&b, "Changes: %d file(s)", len(st.Files))
	const maxListed = 10
	for i, f := range st.Files {
		if i == maxListed {
			fmt.Fprintf(&b, "\n... and %d more", len(st.Files)-maxListed)
			break
		}
		fmt.Fprintf(&b, "\n`%s%s` %s", f.Index, f.Worktree, f.Path)
	}
	return b.String()
}

func (d commandDeps) handlePing(_ context.Context, req *Request) error {
	msg := "🏓 Pong!"
	if d.latency != nil {
		if l := d.latency(); l > 0 {
			msg = fmt.Sprintf("🏓 Pong! Latency: %dms", l.Milliseconds())
		}
	}
	return req.Reply(msg)
}

func (d commandDeps) handleUptime(_ context.Context, req *Request) error {
	return req.Reply("⏱️ Uptime: " + FormatUptime(d.uptime()))
}

func (d commandDeps) handleHelp(_ context.Context, req *Request) error {
	var b strings.Builder
	b.WriteString("📖 **Available commands**")
	for _, def := range d.registry.Definitions() {
		fmt.Fprintf(&b, "\n`/%s` %s", def.Name, def.Description)
		for _, opt := range def.Options {
			if opt.Type == discordgo.ApplicationCommandOptionSubCommand {
				fmt.Fprintf(&b, "\n  `/%s %s` %s", def.Name, opt.Name, opt.Description)
			}
		}
	}
	return req.ReplyEphemeral(b.String())
}
