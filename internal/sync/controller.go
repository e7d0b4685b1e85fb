// Package sync keeps a working tree and its remote branch in step.
//
// A Controller runs reconciliation cycles: local changes are committed and
// pushed, then new remote commits are pulled and a reload hook is notified.
// Cycles run on a cron schedule, at startup, and on demand.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	stdsync "sync"
	"time"

	"github.com/schaermu/syncbot/internal/config"
	"github.com/schaermu/syncbot/internal/vcs"
)

// ReloadFunc is invoked after a pull brought in new commits
type ReloadFunc func(ctx context.Context) error

// Settings is the immutable sync configuration of a Controller
type Settings struct {
	Remote   string
	Branch   string
	Enabled  bool
	Interval int // minutes
}

// SettingsFromConfig projects the relevant parts of cfg
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		Remote:   cfg.Repo.Remote,
		Branch:   cfg.Repo.Branch,
		Enabled:  cfg.Sync.Enabled,
		Interval: cfg.Sync.Interval,
	}
}

// Controller orchestrates sync cycles against one working tree
type Controller struct {
	settings Settings
	vcs      vcs.Facade
	logger   *slog.Logger

	// treeLock serializes every operation that touches the working tree.
	treeLock chan struct{}

	mu      stdsync.Mutex // guards running, pending, reload and sched
	running bool          // whether a CheckAndSync cycle is in progress
	pending bool          // whether another cycle was requested meanwhile
	reload  ReloadFunc
	sched   Scheduler

	newScheduler func() Scheduler
	startup      stdsync.WaitGroup
}

// NewController creates a controller for the facade's working tree
func NewController(settings Settings, facade vcs.Facade, logger *slog.Logger) *Controller {
	c := &Controller{
		settings: settings,
		vcs:      facade,
		logger:   logger,
		treeLock: make(chan struct{}, 1),
	}
	c.newScheduler = func() Scheduler { return newCronScheduler(logger) }
	return c
}

// SetReloadCallback registers fn, replacing any previous callback
func (c *Controller) SetReloadCallback(fn ReloadFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reload = fn
}

func (c *Controller) reloadCallback() ReloadFunc {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reload
}

func (c *Controller) lock(ctx context.Context) error {
	select {
	case c.treeLock <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) unlock() {
	<-c.treeLock
}

// Status reports the working tree state
func (c *Controller) Status(ctx context.Context) (*vcs.Status, error) {
	if err := c.lock(ctx); err != nil {
		return nil, err
	}
	defer c.unlock()

	return c.vcs.Status(ctx)
}

// CheckAndSync runs one full cycle and never fails: every step logs its own
// error and the first one is reported in the Outcome.
//
// Calls made while a cycle is running are coalesced: at most one follow-up
// cycle is queued and the caller gets an Outcome with Coalesced set.
func (c *Controller) CheckAndSync(ctx context.Context) Outcome {
	c.mu.Lock()
	if c.running {
		c.pending = true
		c.mu.Unlock()
		c.logger.Info("sync already in progress, queuing pending re-run")
		return Outcome{Coalesced: true}
	}
	c.running = true
	c.mu.Unlock()

	for {
		out := c.cycle(ctx)

		c.mu.Lock()
		if !c.pending || ctx.Err() != nil {
			c.running = false
			c.pending = false
			c.mu.Unlock()
			return out
		}
		c.pending = false
		c.mu.Unlock()

		c.logger.Info("re-running sync due to pending request")
	}
}

func (c *Controller) cycle(ctx context.Context) (out Outcome) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			out.Err = fmt.Errorf("sync cycle panicked: %v", r)
		}
		c.logOutcome(out, time.Since(start))
	}()

	if err := c.lock(ctx); err != nil {
		out.Err = err
		out.Pull = PullFailed
		return out
	}
	defer c.unlock()

	st, err := c.vcs.Status(ctx)
	if err != nil {
		c.logger.Error("failed to read repository status", "error", err)
		out.Err = fmt.Errorf("status: %w", err)
	} else if !st.Clean() {
		c.logger.Info("local changes detected", "files", len(st.Files))
		out.Committed, out.Pushed, err = c.commitAndPush(ctx, AutoCommitMessage(st.Paths()))
		if err != nil {
			out.Err = err
		}
	}

	// The status above may predate the push, so pullAndReload asks again.
	out.Pull, err = c.pullAndReload(ctx)
	out.Pulled = out.Pull.Updated()
	if err != nil && out.Err == nil {
		out.Err = err
	}
	return out
}

func (c *Controller) logOutcome(out Outcome, elapsed time.Duration) {
	attrs := []any{
		"committed", out.Committed,
		"pushed", out.Pushed,
		"pull", out.Pull.String(),
		"duration", elapsed.Round(time.Millisecond),
	}

	switch {
	case out.Err != nil:
		c.logger.Warn("sync cycle finished with errors", append(attrs, "error", out.Err)...)
	case !out.Committed && !out.Pulled:
		c.logger.Info("sync cycle complete, repository up to date", attrs...)
	default:
		c.logger.Info("sync cycle complete", attrs...)
	}
}

// CommitAndPush stages paths (everything when none are given), commits them
// with message and pushes to the configured remote. It returns true when the
// push succeeded or there was nothing to commit; failures are only logged.
func (c *Controller) CommitAndPush(ctx context.Context, message string, paths ...string) bool {
	if err := c.lock(ctx); err != nil {
		c.logger.Error("commit and push cancelled", "error", err)
		return false
	}
	defer c.unlock()

	_, _, err := c.commitAndPush(ctx, message, paths...)
	return err == nil
}

func (c *Controller) commitAndPush(ctx context.Context, message string, paths ...string) (committed, pushed bool, err error) {
	if err := c.vcs.StageAll(ctx, paths...); err != nil {
		c.logger.Error("failed to stage changes", "error", err)
		return false, false, fmt.Errorf("stage: %w", err)
	}

	st, err := c.vcs.Status(ctx)
	if err != nil {
		c.logger.Error("failed to read staged changes", "error", err)
		return false, false, fmt.Errorf("status: %w", err)
	}
	staged := st.Staged()
	if len(staged) == 0 {
		c.logger.Info("no changes to commit")
		return false, false, nil
	}

	if err := c.vcs.Commit(ctx, message); err != nil {
		if errors.Is(err, vcs.ErrNothingToCommit) {
			c.logger.Info("no changes to commit")
			return false, false, nil
		}
		c.logger.Error("failed to commit changes", "error", err)
		return false, false, fmt.Errorf("commit: %w", err)
	}
	c.logger.Info("committed changes", "files", len(staged), "message", message)

	if err := c.vcs.Push(ctx, c.settings.Remote, c.settings.Branch); err != nil {
		c.logger.Error("failed to push changes",
			"remote", c.settings.Remote,
			"branch", c.settings.Branch,
			"error", err)
		return true, false, fmt.Errorf("push: %w", err)
	}
	c.logger.Info("pushed changes", "remote", c.settings.Remote, "branch", c.settings.Branch)

	return true, true, nil
}

// PullAndReload pulls when the remote is ahead and then runs the reload
// callback, waiting for it to finish.
func (c *Controller) PullAndReload(ctx context.Context) PullResult {
	if err := c.lock(ctx); err != nil {
		c.logger.Error("pull cancelled", "error", err)
		return PullFailed
	}
	defer c.unlock()

	res, _ := c.pullAndReload(ctx)
	return res
}

func (c *Controller) pullAndReload(ctx context.Context) (PullResult, error) {
	st, err := c.vcs.Status(ctx)
	if err != nil {
		c.logger.Error("failed to check remote status", "error", err)
		return PullFailed, fmt.Errorf("status: %w", err)
	}

	if st.Behind == 0 {
		c.logger.Info("already up to date", "branch", c.settings.Branch)
		return PullUpToDate, nil
	}

	c.logger.Info("remote is ahead, pulling", "behind", st.Behind, "remote", c.settings.Remote, "branch", c.settings.Branch)
	if err := c.vcs.Pull(ctx, c.settings.Remote, c.settings.Branch); err != nil {
		c.logger.Error("failed to pull changes", "error", err)
		return PullFailed, fmt.Errorf("pull: %w", err)
	}
	c.logger.Info("pulled changes", "commits", st.Behind)

	if reload := c.reloadCallback(); reload != nil {
		if err := runReload(ctx, reload); err != nil {
			c.logger.Error("reload after pull failed", "error", err)
			return PullReloadFailed, err
		}
		c.logger.Info("reload after pull complete")
	}

	return PullUpdated, nil
}

func runReload(ctx context.Context, fn ReloadFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &CallbackError{Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	if err := fn(ctx); err != nil {
		return &CallbackError{Err: err}
	}
	return nil
}
