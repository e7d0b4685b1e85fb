package vcs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"
)

const (
	defaultAuthorName  = "syncbot"
	defaultAuthorEmail = "syncbot@localhost"
)

// GoGitClient implements Facade in-process with go-git.
// Pulls are fast-forward only; a diverged branch reports ErrRejected.
type GoGitClient struct {
	dir  string
	opts Options
	now  func() time.Time
}

// NewGoGitClient creates a go-git backed facade for the working tree at dir
func NewGoGitClient(dir string, opts Options) *GoGitClient {
	return &GoGitClient{dir: dir, opts: opts, now: time.Now}
}

func (c *GoGitClient) open(op string) (*git.Repository, error) {
	repo, err := git.PlainOpen(c.dir)
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, &Error{Op: op, Kind: ErrNotRepository, Err: err}
		}
		return nil, &Error{Op: op, Err: err}
	}
	return repo, nil
}

// Status fetches the tracked branch and reads the worktree status
func (c *GoGitClient) Status(ctx context.Context) (*Status, error) {
	repo, err := c.open("status")
	if err != nil {
		return nil, err
	}

	if c.opts.Remote != "" && c.opts.Branch != "" {
		if err := c.fetch(ctx, repo, c.opts.Remote, c.opts.Branch); err != nil {
			c.opts.logger().Debug("fetch before status failed", "remote", c.opts.Remote, "branch", c.opts.Branch, "error", err)
		}
	}

	wt, err := repo.Worktree()
	if err != nil {
		return nil, &Error{Op: "status", Err: err}
	}
	ws, err := wt.Status()
	if err != nil {
		return nil, &Error{Op: "status", Err: err}
	}

	st := &Status{}
	for path, fs := range ws {
		if fs.Staging == git.Unmodified && fs.Worktree == git.Unmodified {
			continue
		}
		st.Files = append(st.Files, FileStatus{
			Path:     path,
			Index:    changeKind(fs.Staging),
			Worktree: changeKind(fs.Worktree),
		})
	}
	sortFiles(st.Files)

	head, err := repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			// unborn branch
			return st, nil
		}
		return nil, &Error{Op: "status", Err: err}
	}
	if !head.Name().IsBranch() {
		st.Branch = "HEAD"
		return st, nil
	}
	st.Branch = head.Name().Short()

	if err := c.trackingCounts(repo, head, st); err != nil {
		return nil, &Error{Op: "status", Err: err}
	}
	return st, nil
}

// trackingCounts fills Tracking, Ahead and Behind from the branch's upstream config
func (c *GoGitClient) trackingCounts(repo *git.Repository, head *plumbing.Reference, st *Status) error {
	branchCfg, err := repo.Branch(st.Branch)
	if err != nil || branchCfg.Remote == "" || branchCfg.Merge == "" {
		return nil
	}

	upstream := plumbing.NewRemoteReferenceName(branchCfg.Remote, branchCfg.Merge.Short())
	st.Tracking = branchCfg.Remote + "/" + branchCfg.Merge.Short()

	ref, err := repo.Reference(upstream, true)
	if err != nil {
		// upstream is configured but has not been fetched yet
		return nil
	}

	local, err := ancestors(repo, head.Hash())
	if err != nil {
		return err
	}
	remote, err := ancestors(repo, ref.Hash())
	if err != nil {
		return err
	}

	for h := range local {
		if _, ok := remote[h]; !ok {
			st.Ahead++
		}
	}
	for h := range remote {
		if _, ok := local[h]; !ok {
			st.Behind++
		}
	}
	return nil
}

func ancestors(repo *git.Repository, from plumbing.Hash) (map[plumbing.Hash]struct{}, error) {
	iter, err := repo.Log(&git.LogOptions{From: from})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	seen := make(map[plumbing.Hash]struct{})
	err = iter.ForEach(func(commit *object.Commit) error {
		seen[commit.Hash] = struct{}{}
		return nil
	})
	return seen, err
}

// StageAll adds the given paths, or every change in the worktree
func (c *GoGitClient) StageAll(ctx context.Context, paths ...string) error {
	repo, err := c.open("stage")
	if err != nil {
		return err
	}
	wt, err := repo.Worktree()
	if err != nil {
		return &Error{Op: "stage", Err: err}
	}

	if len(paths) == 0 || (len(paths) == 1 && paths[0] == ".") {
		if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
			return &Error{Op: "stage", Err: err}
		}
		return nil
	}

	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return &Error{Op: "stage", Err: err}
		}
		if err := wt.AddWithOptions(&git.AddOptions{Path: p}); err != nil {
			return &Error{Op: "stage", Err: fmt.Errorf("failed to add %q: %w", p, err)}
		}
	}
	return nil
}

// Commit records the index using the configured author
func (c *GoGitClient) Commit(ctx context.Context, message string) error {
	repo, err := c.open("commit")
	if err != nil {
		return err
	}
	wt, err := repo.Worktree()
	if err != nil {
		return &Error{Op: "commit", Err: err}
	}

	sig := &object.Signature{Name: c.opts.AuthorName, Email: c.opts.AuthorEmail, When: c.now()}
	if sig.Name == "" {
		sig.Name = defaultAuthorName
	}
	if sig.Email == "" {
		sig.Email = defaultAuthorEmail
	}

	if _, err := wt.Commit(message, &git.CommitOptions{Author: sig, Committer: sig}); err != nil {
		if errors.Is(err, git.ErrEmptyCommit) {
			return &Error{Op: "commit", Kind: ErrNothingToCommit, Err: err}
		}
		return &Error{Op: "commit", Err: err}
	}
	return nil
}

// Push pushes the local branch to the same name on remote
func (c *GoGitClient) Push(ctx context.Context, remote, branch string) error {
	repo, err := c.open("push")
	if err != nil {
		return err
	}
	auth, err := c.authFor(repo, remote)
	if err != nil {
		return &Error{Op: "push", Kind: ErrAuth, Err: err}
	}

	ref := plumbing.NewBranchReferenceName(branch)
	err = repo.PushContext(ctx, &git.PushOptions{
		RemoteName: remote,
		RefSpecs:   []config.RefSpec{config.RefSpec(ref + ":" + ref)},
		Auth:       auth,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return &Error{Op: "push", Kind: classifyGoGit(err), Err: err}
	}
	return nil
}

// Pull fast-forwards the current branch to remote/branch
func (c *GoGitClient) Pull(ctx context.Context, remote, branch string) error {
	repo, err := c.open("pull")
	if err != nil {
		return err
	}
	wt, err := repo.Worktree()
	if err != nil {
		return &Error{Op: "pull", Err: err}
	}
	auth, err := c.authFor(repo, remote)
	if err != nil {
		return &Error{Op: "pull", Kind: ErrAuth, Err: err}
	}

	err = wt.PullContext(ctx, &git.PullOptions{
		RemoteName:    remote,
		ReferenceName: plumbing.NewBranchReferenceName(branch),
		SingleBranch:  true,
		Auth:          auth,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return &Error{Op: "pull", Kind: classifyGoGit(err), Err: err}
	}
	return nil
}

func (c *GoGitClient) fetch(ctx context.Context, repo *git.Repository, remote, branch string) error {
	auth, err := c.authFor(repo, remote)
	if err != nil {
		return err
	}
	spec := config.RefSpec(fmt.Sprintf("+%s:%s",
		plumbing.NewBranchReferenceName(branch),
		plumbing.NewRemoteReferenceName(remote, branch)))

	err = repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: remote,
		RefSpecs:   []config.RefSpec{spec},
		Auth:       auth,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return err
	}
	return nil
}

// authFor picks an auth method matching the remote's URL scheme
func (c *GoGitClient) authFor(repo *git.Repository, remote string) (transport.AuthMethod, error) {
	if c.opts.SSHKeyFile == "" && c.opts.Token == "" {
		return nil, nil
	}

	r, err := repo.Remote(remote)
	if err != nil {
		return nil, nil
	}
	urls := r.Config().URLs
	if len(urls) == 0 {
		return nil, nil
	}
	url := urls[0]

	if c.opts.SSHKeyFile != "" && (strings.HasPrefix(url, "git@") || strings.HasPrefix(url, "ssh://")) {
		keys, err := ssh.NewPublicKeysFromFile("git", c.opts.SSHKeyFile, "")
		if err != nil {
			return nil, fmt.Errorf("failed to load SSH key: %w", err)
		}
		return keys, nil
	}

	if c.opts.Token != "" && strings.HasPrefix(url, "https://") {
		return &http.BasicAuth{Username: "x-access-token", Password: c.opts.Token}, nil
	}

	return nil, nil
}

func classifyGoGit(err error) error {
	switch {
	case errors.Is(err, git.ErrNonFastForwardUpdate), errors.Is(err, git.ErrForceNeeded):
		return ErrRejected
	case errors.Is(err, git.ErrUnstagedChanges):
		return ErrConflict
	case errors.Is(err, transport.ErrAuthenticationRequired), errors.Is(err, transport.ErrAuthorizationFailed):
		return ErrAuth
	}
	return classify(err.Error())
}

func changeKind(code git.StatusCode) ChangeKind {
	switch code {
	case git.Unmodified:
		return Unmodified
	case git.UpdatedButUnmerged:
		return Unmerged
	default:
		return ChangeKind(code)
	}
}
