package diff

import (
	"strings"

	difflib "github.com/pmezard/go-difflib/difflib"
)

// DefaultContext is the number of unchanged lines shown around each hunk
const DefaultContext = 3

// Unified renders an LCS-aligned unified diff of a against b for human
// review. It never feeds the merge, which stays positional. A negative
// context means DefaultContext; zero shows changed lines only.
func Unified(name string, a, b string, context int) (string, error) {
	if a == b {
		return "", nil
	}
	if context < 0 {
		context = DefaultContext
	}

	u := difflib.UnifiedDiff{
		A:        splitKeepNL(a),
		B:        splitKeepNL(b),
		FromFile: "a/" + name,
		ToFile:   "b/" + name,
		FromDate: "local",
		ToDate:   "remote",
		Context:  context,
	}
	return difflib.GetUnifiedDiffString(u)
}

func splitKeepNL(s string) []string {
	if s == "" {
		return []string{}
	}
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		return lines[:len(lines)-1]
	}
	// difflib expects every line to end with a newline
	if last := lines[len(lines)-1]; !strings.HasSuffix(last, "\n") {
		lines[len(lines)-1] = last + "\n"
	}
	return lines
}
