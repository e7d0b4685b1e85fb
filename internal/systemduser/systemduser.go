// Package systemduser restarts systemd user units after the working tree changed.
package systemduser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// Systemd provides operations for interacting with systemd user units
type Systemd interface {
	// TryRestartUnits restarts the units that are currently running
	TryRestartUnits(ctx context.Context, units []string) error
	// IsAvailable checks if systemctl --user is accessible
	IsAvailable(ctx context.Context) (bool, error)
}

// runFunc runs systemctl with args and returns its combined output
type runFunc func(ctx context.Context, args ...string) ([]byte, error)

// Client implements Systemd by shelling out to systemctl --user
type Client struct {
	run runFunc
}

// NewClient creates a new systemd client
func NewClient() *Client {
	return &Client{run: runSystemctl}
}

func runSystemctl(ctx context.Context, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, "systemctl", args...).CombinedOutput()
}

// TryRestartUnits restarts the units with try-restart, which leaves stopped
// units alone
func (c *Client) TryRestartUnits(ctx context.Context, units []string) error {
	if len(units) == 0 {
		return nil
	}

	args := append([]string{"--user", "try-restart"}, units...)
	output, err := c.run(ctx, args...)
	if err != nil {
		return fmt.Errorf("systemctl try-restart failed: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}

// IsAvailable checks if systemctl --user is accessible
func (c *Client) IsAvailable(ctx context.Context) (bool, error) {
	_, err := c.run(ctx, "--user", "is-system-running")
	if err != nil {
		// degraded or starting systems exit non-zero but still answer
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() <= 3 {
			return true, nil
		}
		return false, fmt.Errorf("systemctl --user not available: %w", err)
	}
	return true, nil
}

// RestartHook returns a reload callback that try-restarts units. It returns
// nil when no units are configured.
func RestartHook(sd Systemd, units []string, logger *slog.Logger) func(ctx context.Context) error {
	if len(units) == 0 {
		return nil
	}
	units = append([]string(nil), units...)

	return func(ctx context.Context) error {
		logger.Info("restarting units after pull", "units", units)
		if err := sd.TryRestartUnits(ctx, units); err != nil {
			return err
		}
		logger.Info("units restarted", "units", units)
		return nil
	}
}
