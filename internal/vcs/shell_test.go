package vcs

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schaermu/syncbot/internal/testutil"
)

func newShellFixture(t *testing.T) (*testutil.Remote, string, *ShellClient) {
	t.Helper()

	remote := testutil.NewRemote(t, "main")
	dir := remote.Clone(t)
	client := NewShellClient(dir, Options{
		Remote:      "origin",
		Branch:      "main",
		AuthorName:  "syncbot",
		AuthorEmail: "syncbot@test",
	})
	return remote, dir, client
}

func TestShellClient_StatusClean(t *testing.T) {
	_, _, client := newShellFixture(t)

	st, err := client.Status(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "main", st.Branch)
	assert.Equal(t, "origin/main", st.Tracking)
	assert.True(t, st.Clean())
	assert.Zero(t, st.Ahead)
	assert.Zero(t, st.Behind)
}

func TestShellClient_CommitAndPush(t *testing.T) {
	ctx := context.Background()
	remote, dir, client := newShellFixture(t)

	testutil.WriteFile(t, dir, "notes/today.md", "hello\n")
	testutil.WriteFile(t, dir, "README.md", "changed\n")

	st, err := client.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"README.md", "notes/today.md"}, st.Paths())
	assert.Empty(t, st.Staged())

	require.NoError(t, client.StageAll(ctx))

	st, err = client.Status(ctx)
	require.NoError(t, err)
	assert.Len(t, st.Staged(), 2)

	require.NoError(t, client.Commit(ctx, "Auto-commit: README.md, notes/today.md"))

	st, err = client.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.Clean())
	assert.Equal(t, 1, st.Ahead)

	assert.Equal(t, "syncbot", testutil.Git(t, dir, "log", "-1", "--format=%an"))

	require.NoError(t, client.Push(ctx, "origin", "main"))
	assert.Equal(t, testutil.Git(t, dir, "rev-parse", "HEAD"), remote.Head(t))
}

func TestShellClient_StageSelectedPaths(t *testing.T) {
	ctx := context.Background()
	_, dir, client := newShellFixture(t)

	testutil.WriteFile(t, dir, "a.txt", "a\n")
	testutil.WriteFile(t, dir, "b.txt", "b\n")

	require.NoError(t, client.StageAll(ctx, "a.txt"))

	st, err := client.Status(ctx)
	require.NoError(t, err)
	staged := st.Staged()
	require.Len(t, staged, 1)
	assert.Equal(t, "a.txt", staged[0].Path)
}

func TestShellClient_CommitNothingStaged(t *testing.T) {
	_, _, client := newShellFixture(t)

	err := client.Commit(context.Background(), "empty")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNothingToCommit), "got %v", err)
}

func TestShellClient_BehindAndPull(t *testing.T) {
	ctx := context.Background()
	remote, dir, client := newShellFixture(t)

	remote.PushFile(t, "app.yaml", "v2\n", "Update app")

	st, err := client.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Behind)
	assert.Zero(t, st.Ahead)

	require.NoError(t, client.Pull(ctx, "origin", "main"))

	got, err := os.ReadFile(filepath.Join(dir, "app.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "v2\n", string(got))

	st, err = client.Status(ctx)
	require.NoError(t, err)
	assert.Zero(t, st.Behind)
}

func TestShellClient_PushRejectedWhenDiverged(t *testing.T) {
	ctx := context.Background()
	remote, dir, client := newShellFixture(t)

	remote.PushFile(t, "remote.txt", "remote\n", "Remote change")
	testutil.CommitFile(t, dir, "local.txt", "local\n", "Local change")

	err := client.Push(ctx, "origin", "main")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRejected), "got %v", err)

	var vcsErr *Error
	require.True(t, errors.As(err, &vcsErr))
	assert.Equal(t, "push", vcsErr.Op)
	assert.NotEmpty(t, vcsErr.Output)
}

func TestShellClient_PullConflictIsAborted(t *testing.T) {
	ctx := context.Background()
	remote, dir, client := newShellFixture(t)

	remote.PushFile(t, "README.md", "remote version\n", "Remote edit")
	testutil.CommitFile(t, dir, "README.md", "local version\n", "Local edit")

	err := client.Pull(ctx, "origin", "main")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConflict), "got %v", err)

	_, statErr := os.Stat(filepath.Join(dir, ".git", "MERGE_HEAD"))
	assert.True(t, os.IsNotExist(statErr), "merge should have been aborted")

	got, err := os.ReadFile(filepath.Join(dir, "README.md"))
	require.NoError(t, err)
	assert.Equal(t, "local version\n", string(got))

	st, err := client.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.Clean())
}

func TestShellClient_NotARepository(t *testing.T) {
	client := NewShellClient(t.TempDir(), Options{})

	_, err := client.Status(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotRepository), "got %v", err)
}

func TestShellClient_FetchFailureIsNotFatal(t *testing.T) {
	_, dir, _ := newShellFixture(t)
	client := NewShellClient(dir, Options{Remote: "missing", Branch: "main"})

	st, err := client.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "main", st.Branch)
}

func TestShellClient_ConfigureAuth(t *testing.T) {
	t.Run("ssh key", func(t *testing.T) {
		client := NewShellClient("/repo", Options{SSHKeyFile: "/keys/it's"})
		cmd := pushCmd()
		client.configureAuth(cmd)
		assert.Contains(t, cmd.Env, "GIT_SSH_COMMAND=ssh -i '/keys/it'\\''s' -o StrictHostKeyChecking=accept-new -F /dev/null")
	})

	t.Run("https token", func(t *testing.T) {
		client := NewShellClient("/repo", Options{Token: "s3cret"})
		cmd := pushCmd()
		client.configureAuth(cmd)

		assert.Contains(t, cmd.Env, "SYNCBOT_GIT_TOKEN=s3cret")
		assert.Equal(t, "-c", cmd.Args[1])
		assert.Contains(t, cmd.Args[2], "credential.helper=")
		assert.NotContains(t, cmd.Args[2], "s3cret")
	})
}

func pushCmd() *exec.Cmd {
	cmd := exec.Command("git", "-C", "/repo", "push", "origin", "main")
	cmd.Env = []string{}
	return cmd
}

func TestShellQuote(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "simple path", input: "/home/user/.ssh/key", want: "'/home/user/.ssh/key'"},
		{name: "path with spaces", input: "/home/my user/key", want: "'/home/my user/key'"},
		{name: "path with single quote", input: "/home/user's/key", want: "'/home/user'\\''s/key'"},
		{name: "empty string", input: "", want: "''"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := shellQuote(tt.input)
			if got != tt.want {
				t.Errorf("shellQuote(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestInsertGitFlags(t *testing.T) {
	tests := []struct {
		name  string
		args  []string
		flags []string
		want  []string
	}{
		{
			name:  "insert before pull",
			args:  []string{"git", "-C", "/dir", "pull", "--no-rebase", "origin", "main"},
			flags: []string{"-c", "cred=helper"},
			want:  []string{"git", "-c", "cred=helper", "-C", "/dir", "pull", "--no-rebase", "origin", "main"},
		},
		{
			name:  "empty args",
			args:  []string{},
			flags: []string{"-c", "key=value"},
			want:  []string{"-c", "key=value"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, insertGitFlags(tt.args, tt.flags...))
		})
	}
}
