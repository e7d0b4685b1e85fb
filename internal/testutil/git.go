package testutil

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// Remote is a bare repository that tests clone from and push to
type Remote struct {
	Dir    string
	Branch string
}

// NewRemote creates a bare repository on branch with one seeded commit
// containing README.md.
func NewRemote(t testing.TB, branch string) *Remote {
	t.Helper()

	dir := filepath.Join(t.TempDir(), "remote.git")
	Git(t, "", "init", "--bare", "-b", branch, dir)

	r := &Remote{Dir: dir, Branch: branch}

	seed := filepath.Join(t.TempDir(), "seed")
	Git(t, "", "clone", "--quiet", dir, seed)
	configure(t, seed)
	Git(t, seed, "symbolic-ref", "HEAD", "refs/heads/"+branch)
	CommitFile(t, seed, "README.md", "seed\n", "Initial commit")
	Git(t, seed, "push", "--quiet", "origin", branch)

	return r
}

// Clone creates a working tree tracking the remote branch and returns its path
func (r *Remote) Clone(t testing.TB) string {
	t.Helper()

	dir := filepath.Join(t.TempDir(), "work")
	Git(t, "", "clone", "--quiet", "--branch", r.Branch, r.Dir, dir)
	configure(t, dir)
	return dir
}

// PushFile commits a file from a throwaway clone, moving the remote ahead of
// every existing working tree.
func (r *Remote) PushFile(t testing.TB, name, content, msg string) {
	t.Helper()

	dir := r.Clone(t)
	CommitFile(t, dir, name, content, msg)
	Git(t, dir, "push", "--quiet", "origin", r.Branch)
}

// Head returns the commit hash the remote branch points to
func (r *Remote) Head(t testing.TB) string {
	t.Helper()
	return Git(t, r.Dir, "rev-parse", r.Branch)
}

// Git runs git in dir (or the current directory when dir is empty) and
// returns its trimmed output, failing the test on error.
func Git(t testing.TB, dir string, args ...string) string {
	t.Helper()

	if dir != "" {
		args = append([]string{"-C", dir}, args...)
	}
	cmd := exec.Command("git", args...)
	cmd.Env = append(os.Environ(), "LC_ALL=C", "GIT_TERMINAL_PROMPT=0")

	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %s: %v: %s", strings.Join(args, " "), err, out)
	}
	return strings.TrimSpace(string(out))
}

// WriteFile creates or overwrites a file inside a working tree
func WriteFile(t testing.TB, dir, name, content string) {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// CommitFile creates or overwrites a file and commits it.
func CommitFile(t testing.TB, dir, name, content, msg string) {
	t.Helper()

	WriteFile(t, dir, name, content)
	Git(t, dir, "add", "--", name)
	Git(t, dir, "commit", "--quiet", "-m", msg)
}

func configure(t testing.TB, dir string) {
	t.Helper()

	Git(t, dir, "config", "user.email", "test@test.com")
	Git(t, dir, "config", "user.name", "Test")
	Git(t, dir, "config", "commit.gpgsign", "false")
}
