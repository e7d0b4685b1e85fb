package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestModuleRoot(t *testing.T) {
	root := ModuleRoot(t)

	if _, err := os.Stat(filepath.Join(root, "go.mod")); err != nil {
		t.Fatalf("go.mod not found at %s: %v", root, err)
	}
	if _, err := os.Stat(filepath.Join(root, "cmd", "syncbot")); err != nil {
		t.Errorf("cmd/syncbot not found under %s: %v", root, err)
	}
}

func TestExampleConfig(t *testing.T) {
	if _, err := os.Stat(ExampleConfig(t)); err != nil {
		t.Fatalf("example config missing: %v", err)
	}
}

func TestRemoteClone(t *testing.T) {
	remote := NewRemote(t, "main")
	dir := remote.Clone(t)

	if got := Git(t, dir, "rev-parse", "HEAD"); got != remote.Head(t) {
		t.Errorf("clone HEAD = %s, want %s", got, remote.Head(t))
	}
	if got := Git(t, dir, "rev-parse", "--abbrev-ref", "@{upstream}"); got != "origin/main" {
		t.Errorf("upstream = %q, want origin/main", got)
	}
}

func TestRemotePushFile(t *testing.T) {
	remote := NewRemote(t, "main")
	before := remote.Head(t)

	remote.PushFile(t, "app.txt", "v1\n", "Add app")

	if remote.Head(t) == before {
		t.Error("expected remote head to move after PushFile")
	}
}
