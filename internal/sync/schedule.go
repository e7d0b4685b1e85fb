package sync

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/schaermu/syncbot/internal/config"
)

// Scheduler runs registered jobs on a cron schedule. *cron.Cron satisfies it.
type Scheduler interface {
	AddFunc(spec string, cmd func()) (cron.EntryID, error)
	Start()
	Stop() context.Context
}

func newCronScheduler(logger *slog.Logger) *cron.Cron {
	l := cronLogger{logger: logger}
	return cron.New(
		cron.WithLogger(l),
		cron.WithChain(cron.Recover(l)),
	)
}

// cronLogger adapts slog to cron.Logger
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}

// cronSpec returns the schedule for running every interval minutes.
// Intervals that divide an hour align to the clock; others run relative to start.
func cronSpec(interval int) string {
	if interval <= 0 {
		interval = config.DefaultIntervalMinutes
	}
	switch {
	case interval == 60:
		return "0 * * * *"
	case interval < 60 && 60%interval == 0:
		return fmt.Sprintf("*/%d * * * *", interval)
	default:
		return fmt.Sprintf("@every %dm", interval)
	}
}

// StartAutoSync schedules CheckAndSync every configured interval and runs one
// cycle right away in the background. It does nothing and returns false when
// auto-sync is disabled.
func (c *Controller) StartAutoSync(ctx context.Context) bool {
	if !c.settings.Enabled {
		c.logger.Info("auto-sync disabled")
		return false
	}

	c.mu.Lock()
	if c.sched != nil {
		c.mu.Unlock()
		c.logger.Warn("auto-sync already started")
		return true
	}

	spec := cronSpec(c.settings.Interval)
	sched := c.newScheduler()
	if _, err := sched.AddFunc(spec, func() { c.CheckAndSync(ctx) }); err != nil {
		c.mu.Unlock()
		c.logger.Error("failed to schedule auto-sync", "schedule", spec, "error", err)
		return false
	}
	sched.Start()
	c.sched = sched
	c.mu.Unlock()

	c.logger.Info("auto-sync started", "interval_minutes", c.settings.Interval, "schedule", spec)

	c.startup.Add(1)
	go func() {
		defer c.startup.Done()
		c.logger.Info("running startup sync")
		c.CheckAndSync(ctx)
	}()

	return true
}

// Stop halts the scheduler and waits for running cycles to finish
func (c *Controller) Stop() {
	c.mu.Lock()
	sched := c.sched
	c.sched = nil
	c.mu.Unlock()

	if sched != nil {
		<-sched.Stop().Done()
		c.logger.Info("auto-sync stopped")
	}
	c.startup.Wait()
}
