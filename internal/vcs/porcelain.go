package vcs

import (
	"fmt"
	"strconv"
	"strings"
)

// parsePorcelainV2 parses the output of
// `git status --porcelain=v2 --branch -z --untracked-files=all`.
func parsePorcelainV2(out []byte) (*Status, error) {
	st := &Status{}
	records := strings.Split(string(out), "\x00")

	for i := 0; i < len(records); i++ {
		rec := records[i]
		if rec == "" {
			continue
		}

		switch rec[0] {
		case '#':
			if err := parseBranchHeader(st, rec); err != nil {
				return nil, err
			}

		case '1':
			// 1 <XY> <sub> <mH> <mI> <mW> <hH> <hI> <path>
			parts := strings.SplitN(rec, " ", 9)
			if len(parts) != 9 {
				return nil, fmt.Errorf("malformed status record %q", rec)
			}
			st.Files = append(st.Files, fileStatus(parts[1], parts[8]))

		case '2':
			// 2 <XY> <sub> <mH> <mI> <mW> <hH> <hI> <X><score> <path>, then <origPath>
			parts := strings.SplitN(rec, " ", 10)
			if len(parts) != 10 {
				return nil, fmt.Errorf("malformed rename record %q", rec)
			}
			st.Files = append(st.Files, fileStatus(parts[1], parts[9]))
			i++

		case 'u':
			// u <XY> <sub> <m1> <m2> <m3> <mW> <h1> <h2> <h3> <path>
			parts := strings.SplitN(rec, " ", 11)
			if len(parts) != 11 {
				return nil, fmt.Errorf("malformed unmerged record %q", rec)
			}
			st.Files = append(st.Files, FileStatus{Path: parts[10], Index: Unmerged, Worktree: Unmerged})

		case '?':
			if len(rec) < 3 {
				return nil, fmt.Errorf("malformed untracked record %q", rec)
			}
			st.Files = append(st.Files, FileStatus{Path: rec[2:], Index: Untracked, Worktree: Untracked})

		case '!':
			// ignored

		default:
			return nil, fmt.Errorf("unknown status record %q", rec)
		}
	}

	return st, nil
}

func parseBranchHeader(st *Status, rec string) error {
	key, value, _ := strings.Cut(strings.TrimPrefix(rec, "# "), " ")

	switch key {
	case "branch.head":
		if value == "(detached)" {
			st.Branch = "HEAD"
		} else {
			st.Branch = value
		}
	case "branch.upstream":
		st.Tracking = value
	case "branch.ab":
		a, b, ok := strings.Cut(value, " ")
		if !ok {
			return fmt.Errorf("malformed ahead/behind header %q", rec)
		}
		ahead, err := strconv.Atoi(strings.TrimPrefix(a, "+"))
		if err != nil {
			return fmt.Errorf("malformed ahead count %q: %w", a, err)
		}
		behind, err := strconv.Atoi(strings.TrimPrefix(b, "-"))
		if err != nil {
			return fmt.Errorf("malformed behind count %q: %w", b, err)
		}
		st.Ahead, st.Behind = ahead, behind
	}
	return nil
}

func fileStatus(xy, path string) FileStatus {
	fs := FileStatus{Path: path, Index: Unmodified, Worktree: Unmodified}
	if len(xy) == 2 {
		fs.Index = ChangeKind(xy[0])
		fs.Worktree = ChangeKind(xy[1])
	}
	return fs
}
