package systemduser

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"testing"
)

type recordingRunner struct {
	calls  [][]string
	output string
	err    error
}

func (r *recordingRunner) run(_ context.Context, args ...string) ([]byte, error) {
	r.calls = append(r.calls, args)
	return []byte(r.output), r.err
}

func TestNewClient(t *testing.T) {
	c := NewClient()
	if c == nil || c.run == nil {
		t.Fatal("NewClient returned an unusable client")
	}
}

func TestTryRestartUnits_Empty(t *testing.T) {
	r := &recordingRunner{}
	c := &Client{run: r.run}

	if err := c.TryRestartUnits(context.Background(), []string{}); err != nil {
		t.Fatalf("TryRestartUnits with empty slice returned error: %v", err)
	}
	if len(r.calls) != 0 {
		t.Errorf("expected no systemctl calls, got %v", r.calls)
	}
}

func TestTryRestartUnits(t *testing.T) {
	r := &recordingRunner{}
	c := &Client{run: r.run}

	if err := c.TryRestartUnits(context.Background(), []string{"web.service", "worker.service"}); err != nil {
		t.Fatalf("TryRestartUnits returned error: %v", err)
	}

	want := [][]string{{"--user", "try-restart", "web.service", "worker.service"}}
	if !reflect.DeepEqual(r.calls, want) {
		t.Errorf("calls = %v, want %v", r.calls, want)
	}
}

func TestTryRestartUnits_Failure(t *testing.T) {
	r := &recordingRunner{output: "Failed to connect to bus\n", err: errors.New("exit status 1")}
	c := &Client{run: r.run}

	err := c.TryRestartUnits(context.Background(), []string{"web.service"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "Failed to connect to bus") {
		t.Errorf("error should include systemctl output, got %v", err)
	}
}

func TestIsAvailable(t *testing.T) {
	r := &recordingRunner{}
	c := &Client{run: r.run}

	ok, err := c.IsAvailable(context.Background())
	if err != nil || !ok {
		t.Fatalf("IsAvailable() = %v, %v", ok, err)
	}

	r.err = errors.New("exec: \"systemctl\": executable file not found in $PATH")
	ok, err = c.IsAvailable(context.Background())
	if err == nil || ok {
		t.Fatalf("IsAvailable() = %v, %v, want unavailable", ok, err)
	}
}

type fakeSystemd struct {
	units []string
	err   error
}

func (f *fakeSystemd) TryRestartUnits(_ context.Context, units []string) error {
	f.units = units
	return f.err
}

func (f *fakeSystemd) IsAvailable(context.Context) (bool, error) { return true, nil }

func TestRestartHook(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	if hook := RestartHook(&fakeSystemd{}, nil, logger); hook != nil {
		t.Error("expected nil hook without units")
	}

	sd := &fakeSystemd{}
	units := []string{"app.service"}
	hook := RestartHook(sd, units, logger)
	units[0] = "mutated.service"

	if err := hook(context.Background()); err != nil {
		t.Fatalf("hook returned error: %v", err)
	}
	if !reflect.DeepEqual(sd.units, []string{"app.service"}) {
		t.Errorf("restarted %v", sd.units)
	}

	sd.err = errors.New("boom")
	if err := hook(context.Background()); err == nil {
		t.Error("expected hook to return the restart error")
	}
}
