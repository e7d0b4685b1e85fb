package vcs

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Match them with errors.Is against a returned *Error.
var (
	ErrNotRepository   = errors.New("not a git repository")
	ErrAuth            = errors.New("authentication failed")
	ErrNetwork         = errors.New("remote unreachable")
	ErrRejected        = errors.New("rejected by remote")
	ErrConflict        = errors.New("merge conflict")
	ErrNothingToCommit = errors.New("nothing to commit")
)

// Error describes a failed repository operation
type Error struct {
	Op     string // status, stage, commit, push, pull
	Kind   error  // one of the Err* kinds, nil when unclassified
	Output string // combined git output, shell backend only
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("git ")
	b.WriteString(e.Op)
	if e.Kind != nil {
		b.WriteString(": ")
		b.WriteString(e.Kind.Error())
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if out := strings.TrimSpace(e.Output); out != "" {
		fmt.Fprintf(&b, " (%s)", firstLine(out))
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	var errs []error
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// classify maps git's (C locale) output to an error kind.
// Order matters: auth failures often also mention the remote being unreadable.
func classify(output string) error {
	out := strings.ToLower(output)

	switch {
	case containsAny(out, "not a git repository"):
		return ErrNotRepository
	case containsAny(out, "nothing to commit", "no changes added to commit", "nothing added to commit"):
		return ErrNothingToCommit
	case containsAny(out, "conflict", "automatic merge failed", "would be overwritten by merge"):
		return ErrConflict
	case containsAny(out, "[rejected]", "non-fast-forward", "fetch first", "failed to push some refs"):
		return ErrRejected
	case containsAny(out,
		"authentication failed", "authentication required", "permission denied",
		"could not read username", "could not read password", "invalid username or password",
		"returned error: 401", "returned error: 403", "authorization failed"):
		return ErrAuth
	case containsAny(out,
		"could not resolve host", "connection refused", "connection timed out",
		"network is unreachable", "no route to host", "unable to access",
		"could not read from remote repository", "no such host", "i/o timeout",
		"connection reset"):
		return ErrNetwork
	}
	return nil
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
