package sync

import "strings"

const (
	autoCommitPrefix   = "Auto-commit: "
	manualCommitPrefix = "Manual sync: "

	// maxMessagePaths caps the path list in auto-commit messages, in characters.
	maxMessagePaths = 100
)

// AutoCommitMessage builds the message for changes picked up by a sync cycle.
// The comma-joined path list is cut at 100 characters, possibly mid-path.
func AutoCommitMessage(paths []string) string {
	joined := []rune(strings.Join(paths, ", "))
	if len(joined) > maxMessagePaths {
		joined = joined[:maxMessagePaths]
	}
	return autoCommitPrefix + string(joined)
}

// ManualCommitMessage attributes a manually triggered push to an operator
func ManualCommitMessage(user string) string {
	return manualCommitPrefix + user
}
