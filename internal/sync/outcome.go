package sync

import "fmt"

// PullResult reports what PullAndReload did
type PullResult int

const (
	// PullUpToDate means the remote was not ahead; nothing was pulled.
	PullUpToDate PullResult = iota
	// PullUpdated means new commits were pulled and the reload hook (if any) succeeded.
	PullUpdated
	// PullFailed means the status check or the pull itself failed.
	PullFailed
	// PullReloadFailed means the pull succeeded but the reload hook returned an error.
	PullReloadFailed
)

func (r PullResult) String() string {
	switch r {
	case PullUpToDate:
		return "up-to-date"
	case PullUpdated:
		return "updated"
	case PullFailed:
		return "failed"
	case PullReloadFailed:
		return "reload-failed"
	default:
		return fmt.Sprintf("PullResult(%d)", int(r))
	}
}

// Updated reports whether the working tree received new commits
func (r PullResult) Updated() bool {
	return r == PullUpdated || r == PullReloadFailed
}

// OK reports whether every step succeeded
func (r PullResult) OK() bool {
	return r == PullUpToDate || r == PullUpdated
}

// Outcome summarizes one CheckAndSync cycle
type Outcome struct {
	Committed bool
	Pushed    bool
	Pulled    bool
	Pull      PullResult
	// Err is the first failure of the cycle, nil when every step succeeded.
	Err error
	// Coalesced is set when the call was folded into a cycle that was already running.
	Coalesced bool
}

// CallbackError wraps a failure of the registered reload callback
type CallbackError struct {
	Err error
}

func (e *CallbackError) Error() string {
	return "reload callback failed: " + e.Err.Error()
}

func (e *CallbackError) Unwrap() error { return e.Err }
