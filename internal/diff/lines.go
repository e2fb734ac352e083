package diff

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// ContextLines is the number of unchanged lines shown around each hunk.
const ContextLines = 3

const noNewline = "\n\\ No newline at end of file\n"

// LineDiff renders a unified diff of before and after labelled with the
// document ID. Identical inputs produce an empty string.
func LineDiff(documentID, before, after string) (string, error) {
	if before == after {
		return "", nil
	}
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        splitLines(before),
		B:        splitLines(after),
		FromFile: "a/" + documentID,
		ToFile:   "b/" + documentID,
		Context:  ContextLines,
	})
}

// splitLines keeps line terminators so that a change to the final newline
// alone still shows up as a differing line.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	last := len(lines) - 1
	if !strings.HasSuffix(lines[last], "\n") {
		lines[last] += noNewline
	}
	return lines
}

// countChanges returns the number of added and removed lines in a unified diff.
func countChanges(unified string) (added, removed int) {
	lines := strings.Split(unified, "\n")
	if len(lines) >= 2 && strings.HasPrefix(lines[0], "--- ") && strings.HasPrefix(lines[1], "+++ ") {
		lines = lines[2:]
	}
	for _, line := range lines {
		switch {
		case strings.HasPrefix(line, "+"):
			added++
		case strings.HasPrefix(line, "-"):
			removed++
		}
	}
	return added, removed
}
