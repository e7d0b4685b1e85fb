//go:build integration

package tier1

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/schaermu/syncbot/internal/testutil"
)

const defaultTimeout = 5 * time.Minute

// shimScript stands in for systemctl and records every invocation
const shimScript = `#!/bin/sh
echo "$(date +%Y-%m-%dT%H:%M:%S) $*" >> "$SYSTEMCTL_SHIM_LOG"
exit 0
`

// Harness runs a freshly built syncbot binary against throwaway repositories
type Harness struct {
	t       *testing.T
	binary  string
	binDir  string
	shimLog string
}

// NewHarness builds the binary and installs the systemctl shim
func NewHarness(t *testing.T, ctx context.Context) *Harness {
	t.Helper()

	h := &Harness{t: t, binDir: t.TempDir()}
	h.binary = filepath.Join(h.binDir, "syncbot")
	h.shimLog = filepath.Join(t.TempDir(), "systemctl.log")

	if err := h.build(ctx); err != nil {
		t.Fatalf("build binary: %v", err)
	}
	if err := os.WriteFile(filepath.Join(h.binDir, "systemctl"), []byte(shimScript), 0o755); err != nil {
		t.Fatalf("install systemctl shim: %v", err)
	}
	return h
}

func (h *Harness) build(ctx context.Context) error {
	h.t.Helper()

	projectRoot := testutil.ModuleRoot(h.t)

	h.t.Logf("Building %s", h.binary)
	cmd := exec.CommandContext(ctx, "go", "build", "-o", h.binary, "./cmd/syncbot")
	cmd.Dir = projectRoot
	cmd.Stdout = &testWriter{t: h.t, prefix: "[build] "}
	cmd.Stderr = &testWriter{t: h.t, prefix: "[build] "}
	return cmd.Run()
}

// Run executes the binary with args and returns stdout, stderr and the exit code
func (h *Harness) Run(ctx context.Context, args ...string) (string, string, int) {
	h.t.Helper()

	cmd := exec.CommandContext(ctx, h.binary, args...)
	cmd.Env = append(os.Environ(),
		"PATH="+h.binDir+string(os.PathListSeparator)+os.Getenv("PATH"),
		"SYSTEMCTL_SHIM_LOG="+h.shimLog,
		"GITHUB_AUTO_SYNC=false",
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	exitCode := 0
	if err := cmd.Run(); err != nil {
		exitErr, ok := err.(*exec.ExitError)
		if !ok {
			h.t.Fatalf("run %v: %v", args, err)
		}
		exitCode = exitErr.ExitCode()
	}
	return stdout.String(), stderr.String(), exitCode
}

// MustRun executes the binary and fails the test on a non-zero exit
func (h *Harness) MustRun(ctx context.Context, args ...string) string {
	h.t.Helper()
	stdout, stderr, code := h.Run(ctx, args...)
	if code != 0 {
		h.t.Fatalf("syncbot %v exited %d\nstdout: %s\nstderr: %s", args, code, stdout, stderr)
	}
	return stdout
}

// WriteConfig writes a config file for repoDir and returns its path
func (h *Harness) WriteConfig(repoDir string, units ...string) string {
	h.t.Helper()

	dir := h.t.TempDir()
	var b strings.Builder
	fmt.Fprintf(&b, "environment: production\nrepo:\n  dir: %s\n  branch: main\n", repoDir)
	b.WriteString("git:\n  author_name: syncbot\n  author_email: syncbot@test\n")
	fmt.Fprintf(&b, "log:\n  level: debug\n  file: %s\n", filepath.Join(dir, "syncbot.log"))
	if len(units) > 0 {
		b.WriteString("reload:\n  units:\n")
		for _, u := range units {
			fmt.Fprintf(&b, "    - %s\n", u)
		}
	}

	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(b.String()), 0o600); err != nil {
		h.t.Fatalf("write config: %v", err)
	}
	return path
}

// ReadShimLog reads and parses the systemctl shim log
func (h *Harness) ReadShimLog() []ShimLogEntry {
	h.t.Helper()

	f, err := os.Open(h.shimLog)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		h.t.Fatalf("open shim log: %v", err)
	}
	defer func() { _ = f.Close() }()

	var entries []ShimLogEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		// Parse: "2024-01-01T12:00:00 --user try-restart app.service"
		parts := strings.SplitN(scanner.Text(), " ", 2)
		if len(parts) != 2 {
			continue
		}
		entries = append(entries, ShimLogEntry{Timestamp: parts[0], Args: strings.Fields(parts[1])})
	}
	if err := scanner.Err(); err != nil {
		h.t.Fatalf("read shim log: %v", err)
	}
	return entries
}

// ClearShimLog clears the systemctl shim log
func (h *Harness) ClearShimLog() {
	h.t.Helper()
	if err := os.Remove(h.shimLog); err != nil && !os.IsNotExist(err) {
		h.t.Fatalf("clear shim log: %v", err)
	}
}

// ShimLogEntry represents a parsed systemctl shim log entry
type ShimLogEntry struct {
	Timestamp string
	Args      []string
}

// String returns a human-readable representation
func (e ShimLogEntry) String() string {
	return fmt.Sprintf("%s: systemctl %s", e.Timestamp, strings.Join(e.Args, " "))
}

// HasArgs checks if the entry starts with the given arguments
func (e ShimLogEntry) HasArgs(args ...string) bool {
	if len(e.Args) < len(args) {
		return false
	}
	for i, arg := range args {
		if e.Args[i] != arg {
			return false
		}
	}
	return true
}

// testWriter wraps test logging for command output
type testWriter struct {
	t      *testing.T
	prefix string
}

func (w *testWriter) Write(p []byte) (n int, err error) {
	for _, line := range strings.Split(string(p), "\n") {
		if line != "" {
			w.t.Log(w.prefix + line)
		}
	}
	return len(p), nil
}

var _ io.Writer = (*testWriter)(nil)
