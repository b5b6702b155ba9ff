// internal/diff/diff.go
package diff

import (
	"bytes"
	"fmt"
	"strings"
)

// Line is a single added or deleted line, keyed by its 1-based position
type Line struct {
	Line    int    `json:"line"`
	Content string `json:"content"`
}

// Modification is a position where both buffers have a line but they differ
type Modification struct {
	Line int    `json:"line"`
	From string `json:"from"`
	To   string `json:"to"`
}

// Result contains the complete positional diff
type Result struct {
	Additions     []Line         `json:"additions"`
	Deletions     []Line         `json:"deletions"`
	Modifications []Modification `json:"modifications"`
}

// SplitLines splits a buffer on newline. An empty buffer is a single empty line.
func SplitLines(content string) []string {
	return strings.Split(content, "\n")
}

// Diff compares a and b position by position. It does no alignment, so an
// inserted line shows up as a run of modifications followed by an addition.
func Diff(a, b string) *Result {
	oldLines := SplitLines(a)
	newLines := SplitLines(b)

	result := &Result{
		Additions:     []Line{},
		Deletions:     []Line{},
		Modifications: []Modification{},
	}

	n := max(len(oldLines), len(newLines))
	for i := 0; i < n; i++ {
		switch {
		case i >= len(oldLines):
			result.Additions = append(result.Additions, Line{Line: i + 1, Content: newLines[i]})
		case i >= len(newLines):
			result.Deletions = append(result.Deletions, Line{Line: i + 1, Content: oldLines[i]})
		case oldLines[i] != newLines[i]:
			result.Modifications = append(result.Modifications, Modification{
				Line: i + 1,
				From: oldLines[i],
				To:   newLines[i],
			})
		}
	}

	return result
}

// Empty reports whether the two buffers were identical
func (r *Result) Empty() bool {
	return r == nil || len(r.Additions)+len(r.Deletions)+len(r.Modifications) == 0
}

// Changes returns the total number of differing positions
func (r *Result) Changes() int {
	if r == nil {
		return 0
	}
	return len(r.Additions) + len(r.Deletions) + len(r.Modifications)
}

// Format returns a string representation of the diff, ordered by line number
func (r *Result) Format() string {
	if r.Empty() {
		return ""
	}

	var buf bytes.Buffer
	a, d, m := 0, 0, 0
	for a < len(r.Additions) || d < len(r.Deletions) || m < len(r.Modifications) {
		next := -1
		pick := ""
		if m < len(r.Modifications) {
			next, pick = r.Modifications[m].Line, "m"
		}
		if d < len(r.Deletions) && (next == -1 || r.Deletions[d].Line < next) {
			next, pick = r.Deletions[d].Line, "d"
		}
		if a < len(r.Additions) && (next == -1 || r.Additions[a].Line < next) {
			pick = "a"
		}

		switch pick {
		case "m":
			mod := r.Modifications[m]
			fmt.Fprintf(&buf, "@@ %d @@\n- %s\n+ %s\n", mod.Line, mod.From, mod.To)
			m++
		case "d":
			fmt.Fprintf(&buf, "@@ %d @@\n- %s\n", r.Deletions[d].Line, r.Deletions[d].Content)
			d++
		case "a":
			fmt.Fprintf(&buf, "@@ %d @@\n+ %s\n", r.Additions[a].Line, r.Additions[a].Content)
			a++
		}
	}

	return buf.String()
}
