package vcs

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePorcelainV2(t *testing.T) {
	out := strings.Join([]string{
		"# branch.oid 1f2e3d",
		"# branch.head main",
		"# branch.upstream origin/main",
		"# branch.ab +2 -1",
		"1 .M N... 100644 100644 100644 aaa aaa src/app.go",
		"1 A. N... 000000 100644 100644 000 bbb new file.txt",
		"2 R. N... 100644 100644 100644 aaa aaa R100 renamed.txt",
		"old.txt",
		"u UU N... 100644 100644 100644 100644 h1 h2 h3 conflict.txt",
		"? untracked.txt",
		"! ignored.log",
		"",
	}, "\x00")

	st, err := parsePorcelainV2([]byte(out))
	require.NoError(t, err)

	assert.Equal(t, "main", st.Branch)
	assert.Equal(t, "origin/main", st.Tracking)
	assert.Equal(t, 2, st.Ahead)
	assert.Equal(t, 1, st.Behind)

	assert.Equal(t, []FileStatus{
		{Path: "src/app.go", Index: Unmodified, Worktree: Modified},
		{Path: "new file.txt", Index: Added, Worktree: Unmodified},
		{Path: "renamed.txt", Index: Renamed, Worktree: Unmodified},
		{Path: "conflict.txt", Index: Unmerged, Worktree: Unmerged},
		{Path: "untracked.txt", Index: Untracked, Worktree: Untracked},
	}, st.Files)

	staged := st.Staged()
	require.Len(t, staged, 3)
	assert.Equal(t, "new file.txt", staged[0].Path)
	assert.Equal(t, "renamed.txt", staged[1].Path)
	assert.Equal(t, "conflict.txt", staged[2].Path)
}

func TestParsePorcelainV2_NoUpstream(t *testing.T) {
	out := "# branch.oid (initial)\x00# branch.head main\x00"

	st, err := parsePorcelainV2([]byte(out))
	require.NoError(t, err)

	assert.Equal(t, "main", st.Branch)
	assert.Empty(t, st.Tracking)
	assert.Zero(t, st.Ahead)
	assert.Zero(t, st.Behind)
	assert.True(t, st.Clean())
}

func TestParsePorcelainV2_Detached(t *testing.T) {
	st, err := parsePorcelainV2([]byte("# branch.head (detached)\x00"))
	require.NoError(t, err)
	assert.Equal(t, "HEAD", st.Branch)
}

func TestParsePorcelainV2_Malformed(t *testing.T) {
	tests := []struct {
		name string
		out  string
	}{
		{name: "short ordinary record", out: "1 .M N... 100644\x00"},
		{name: "short rename record", out: "2 R. N... 100644 100644 100644 aaa aaa R100\x00"},
		{name: "bad ahead count", out: "# branch.ab +x -0\x00"},
		{name: "unknown record", out: "z what\x00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parsePorcelainV2([]byte(tt.out))
			assert.Error(t, err)
		})
	}
}
