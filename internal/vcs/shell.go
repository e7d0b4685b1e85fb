package vcs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// ShellClient implements Facade by shelling out to the git command
type ShellClient struct {
	dir  string
	opts Options
}

// NewShellClient creates a facade for the working tree at dir that uses the git command
func NewShellClient(dir string, opts Options) *ShellClient {
	return &ShellClient{dir: dir, opts: opts}
}

// Status fetches the tracked branch and parses `git status --porcelain=v2`
func (c *ShellClient) Status(ctx context.Context) (*Status, error) {
	if c.opts.Remote != "" && c.opts.Branch != "" {
		if _, err := c.git(ctx, "fetch", true, "fetch", "--quiet", c.opts.Remote, c.opts.Branch); err != nil {
			c.opts.logger().Debug("fetch before status failed", "remote", c.opts.Remote, "branch", c.opts.Branch, "error", err)
		}
	}

	out, err := c.git(ctx, "status", false, "status", "--porcelain=v2", "--branch", "-z", "--untracked-files=all")
	if err != nil {
		return nil, err
	}

	st, err := parsePorcelainV2([]byte(out))
	if err != nil {
		return nil, &Error{Op: "status", Err: err}
	}
	return st, nil
}

// StageAll runs `git add -A` for the given paths, or the whole tree
func (c *ShellClient) StageAll(ctx context.Context, paths ...string) error {
	if len(paths) == 0 {
		paths = []string{"."}
	}
	args := append([]string{"add", "-A", "--"}, paths...)
	_, err := c.git(ctx, "stage", false, args...)
	return err
}

// Commit records the index with the configured author identity
func (c *ShellClient) Commit(ctx context.Context, message string) error {
	_, err := c.git(ctx, "commit", false, "commit", "-m", message)
	return err
}

// Push pushes branch to remote. Rejections are never retried or forced.
func (c *ShellClient) Push(ctx context.Context, remote, branch string) error {
	_, err := c.git(ctx, "push", true, "push", remote, branch)
	return err
}

// Pull merges remote/branch into the current branch. A conflicted merge is
// aborted so the working tree is left as it was before the pull.
func (c *ShellClient) Pull(ctx context.Context, remote, branch string) error {
	_, err := c.git(ctx, "pull", true, "pull", "--no-rebase", "--no-edit", remote, branch)
	if err == nil {
		return nil
	}

	if errors.Is(err, ErrConflict) {
		if _, abortErr := c.git(ctx, "pull", false, "merge", "--abort"); abortErr != nil {
			c.opts.logger().Debug("merge abort after conflict failed", "error", abortErr)
		}
	}
	return err
}

// git runs a git subcommand inside the working tree and returns its combined output.
func (c *ShellClient) git(ctx context.Context, op string, remote bool, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", c.dir}, args...)...)
	// C locale keeps the output stable for classify.
	cmd.Env = append(os.Environ(), "LC_ALL=C", "GIT_TERMINAL_PROMPT=0")

	if c.opts.AuthorName != "" {
		cmd.Args = insertGitFlags(cmd.Args, "-c", "user.name="+c.opts.AuthorName)
	}
	if c.opts.AuthorEmail != "" {
		cmd.Args = insertGitFlags(cmd.Args, "-c", "user.email="+c.opts.AuthorEmail)
	}
	if remote {
		c.configureAuth(cmd)
	}

	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return string(output), &Error{Op: op, Kind: classify(string(output)), Output: string(output), Err: err}
	}
	return string(output), nil
}

// configureAuth sets up authentication for commands that talk to the remote
func (c *ShellClient) configureAuth(cmd *exec.Cmd) {
	// SSH authentication. The path is shell-quoted to prevent injection via crafted filenames.
	if c.opts.SSHKeyFile != "" {
		sshCmd := fmt.Sprintf("ssh -i %s -o StrictHostKeyChecking=accept-new -F /dev/null", shellQuote(c.opts.SSHKeyFile))
		cmd.Env = append(cmd.Env, "GIT_SSH_COMMAND="+sshCmd)
		return
	}

	// HTTPS token, handed to a credential helper through the environment so it
	// never appears in the argument list.
	if c.opts.Token != "" {
		cmd.Env = append(cmd.Env, "SYNCBOT_GIT_TOKEN="+c.opts.Token)
		cmd.Args = insertGitFlags(cmd.Args,
			"-c", `credential.helper=!f() { echo "username=x-access-token"; echo "password=$SYNCBOT_GIT_TOKEN"; }; f`,
		)
	}
}

// insertGitFlags inserts flags immediately after the "git" command name,
// before the subcommand.
func insertGitFlags(args []string, flags ...string) []string {
	if len(args) == 0 {
		return flags
	}
	result := make([]string, 0, len(args)+len(flags))
	result = append(result, args[0])
	result = append(result, flags...)
	result = append(result, args[1:]...)
	return result
}

// shellQuote wraps s in single quotes, escaping any embedded single quotes.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
