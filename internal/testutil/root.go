package testutil

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// ModuleRoot returns the directory holding syncbot's go.mod. It starts from
// this source file, so the result does not depend on the test's working
// directory.
func ModuleRoot(t testing.TB) string {
	t.Helper()

	_, file, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("testutil: cannot locate source file")
	}

	for dir := filepath.Dir(file); ; {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatalf("testutil: no go.mod above %s", file)
		}
		dir = parent
	}
}

// ExampleConfig returns the path of the shipped config.example.yaml
func ExampleConfig(t testing.TB) string {
	t.Helper()
	return filepath.Join(ModuleRoot(t), "config.example.yaml")
}
