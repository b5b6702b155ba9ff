// Package merge implements a line-based three-way merge. Lines are compared by
// position only; an edit anywhere on a line that both sides touched is a
// collision for the whole line.
package merge

import (
	"strings"

	"concord/internal/diff"
)

// Conflict marker lines
const (
	MarkerLocal  = "<<<<<<< LOCAL"
	MarkerSep    = "======="
	MarkerRemote = ">>>>>>> REMOTE"
)

// ReasonNoCommonAncestor is reported when no base content is available
const ReasonNoCommonAncestor = "no common ancestor - cannot auto-merge"

// Result is the outcome of a three-way merge
type Result struct {
	Success            bool   `json:"success"`
	MergedContent      string `json:"merged_content,omitempty"`
	Reason             string `json:"reason,omitempty"`
	HasConflictMarkers bool   `json:"has_conflict_markers,omitempty"`
	// Conflicts holds the 1-based line positions that collided
	Conflicts []int `json:"conflicts,omitempty"`
}

type line struct {
	text string
	ok   bool
}

func at(lines []string, i int) line {
	if i < len(lines) {
		return line{text: lines[i], ok: true}
	}
	return line{}
}

func appendLine(out []string, l line) []string {
	if !l.ok {
		return out
	}
	return append(out, l.text)
}

// Auto merges mine and theirs against base. A nil base means there is no
// common ancestor and the merge fails without producing content.
//
// Auto is a pure function of its inputs.
func Auto(base *string, mine, theirs string) Result {
	if base == nil {
		return Result{Success: false, Reason: ReasonNoCommonAncestor}
	}

	baseLines := diff.SplitLines(*base)
	mineLines := diff.SplitLines(mine)
	theirLines := diff.SplitLines(theirs)

	n := max(len(baseLines), len(mineLines), len(theirLines))
	out := make([]string, 0, n)
	var conflicts []int

	for i := 0; i < n; i++ {
		b, m, t := at(baseLines, i), at(mineLines, i), at(theirLines, i)

		// a side with no line at i contributes nothing, so deletions stay deleted
		switch {
		case m == t:
			out = appendLine(out, m)
		case m == b:
			out = appendLine(out, t)
		case t == b:
			out = appendLine(out, m)
		default:
			out = append(out, MarkerLocal, m.text, MarkerSep, t.text, MarkerRemote)
			conflicts = append(conflicts, i+1)
		}
	}

	merged := strings.Join(out, "\n")
	if len(conflicts) > 0 {
		return Result{
			Success:            false,
			MergedContent:      merged,
			Reason:             "conflicting changes on the same lines",
			HasConflictMarkers: true,
			Conflicts:          conflicts,
		}
	}

	return Result{Success: true, MergedContent: merged}
}

// TwoWay renders a whole-buffer preview with local and remote content
// separated by conflict markers.
func TwoWay(local, remote string) string {
	return strings.Join([]string{MarkerLocal, local, MarkerSep, remote, MarkerRemote}, "\n")
}
