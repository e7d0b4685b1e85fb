// Package vcs is the version control facade used by the sync controller.
//
// Two backends implement Facade: ShellClient drives the git binary, GoGitClient
// works in-process through go-git. Both operate on a single working tree that
// tracks one remote/branch pair.
package vcs

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/schaermu/syncbot/internal/config"
)

// Facade provides the repository operations needed for synchronization
type Facade interface {
	// Status fetches the tracked branch (best effort) and reports the working tree state.
	Status(ctx context.Context) (*Status, error)
	// StageAll stages the given paths, or the whole tree when none are given.
	StageAll(ctx context.Context, paths ...string) error
	// Commit records the staged changes. Returns ErrNothingToCommit when nothing is staged.
	Commit(ctx context.Context, message string) error
	Push(ctx context.Context, remote, branch string) error
	Pull(ctx context.Context, remote, branch string) error
}

// ChangeKind is a single column of a file's status, using git's short-format letters
type ChangeKind byte

const (
	Unmodified  ChangeKind = '.'
	Modified    ChangeKind = 'M'
	TypeChanged ChangeKind = 'T'
	Added       ChangeKind = 'A'
	Deleted     ChangeKind = 'D'
	Renamed     ChangeKind = 'R'
	Copied      ChangeKind = 'C'
	Unmerged    ChangeKind = 'U'
	Untracked   ChangeKind = '?'
)

func (k ChangeKind) String() string {
	return string(rune(k))
}

// FileStatus is one changed path with its index and worktree state
type FileStatus struct {
	Path     string
	Index    ChangeKind
	Worktree ChangeKind
}

// Staged reports whether the index holds a change for this path
func (f FileStatus) Staged() bool {
	return f.Index != Unmodified && f.Index != Untracked
}

// Status is a snapshot of the working tree relative to its upstream
type Status struct {
	Branch string
	Files  []FileStatus
	Ahead  int
	Behind int
	// Tracking is the upstream ref (e.g. "origin/main"), empty when none is configured.
	Tracking string
}

// Clean reports whether there are no changed or untracked files
func (s *Status) Clean() bool {
	return len(s.Files) == 0
}

// Paths returns the paths of all changed files in status order
func (s *Status) Paths() []string {
	paths := make([]string, 0, len(s.Files))
	for _, f := range s.Files {
		paths = append(paths, f.Path)
	}
	return paths
}

// Staged returns the files with a change recorded in the index
func (s *Status) Staged() []FileStatus {
	var staged []FileStatus
	for _, f := range s.Files {
		if f.Staged() {
			staged = append(staged, f)
		}
	}
	return staged
}

func sortFiles(files []FileStatus) {
	slices.SortFunc(files, func(a, b FileStatus) int { return cmp.Compare(a.Path, b.Path) })
}

// Options configures a backend
type Options struct {
	// Remote and Branch select what Status fetches before reporting ahead/behind.
	Remote string
	Branch string

	SSHKeyFile string
	Token      string

	AuthorName  string
	AuthorEmail string

	Logger *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// New creates the facade selected by the configuration
func New(cfg *config.Config, logger *slog.Logger) (Facade, error) {
	token, err := cfg.Auth.Token()
	if err != nil {
		return nil, err
	}

	opts := Options{
		Remote:      cfg.Repo.Remote,
		Branch:      cfg.Repo.Branch,
		SSHKeyFile:  cfg.Auth.SSHKeyFile,
		Token:       token,
		AuthorName:  cfg.Git.AuthorName,
		AuthorEmail: cfg.Git.AuthorEmail,
		Logger:      logger,
	}

	switch cfg.Git.Backend {
	case config.BackendShell:
		return NewShellClient(cfg.RepoDir(), opts), nil
	case config.BackendGoGit:
		return NewGoGitClient(cfg.RepoDir(), opts), nil
	default:
		return nil, fmt.Errorf("unknown git backend %q", cfg.Git.Backend)
	}
}
