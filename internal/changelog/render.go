package changelog

import (
	"fmt"
	"io"
	"strings"

	"github.com/roach88/docsync/internal/model"
)

// RenderOptions controls text rendering.
type RenderOptions struct {
	// Diff includes each entry's diff body, indented under the summary.
	Diff bool
}

// Render writes entries as plain text in the order given.
func Render(w io.Writer, entries []model.ChangelogEntry, opts RenderOptions) error {
	for i, e := range entries {
		if i > 0 {
			if _, err := fmt.Fprintln(w); err != nil {
				return err
			}
		}
		if err := renderEntry(w, e, opts); err != nil {
			return err
		}
	}
	return nil
}

// RenderText is Render into a string.
func RenderText(entries []model.ChangelogEntry, opts RenderOptions) string {
	var b strings.Builder
	_ = Render(&b, entries, opts)
	return b.String()
}

func renderEntry(w io.Writer, e model.ChangelogEntry, opts RenderOptions) error {
	var b strings.Builder
	fmt.Fprintf(&b, "#%d %s %s %s\n", e.Seq, e.CommittedAt.UTC().Format("2006-01-02 15:04:05Z"), e.DocumentID, e.Kind)
	fmt.Fprintf(&b, "    %s\n", e.Summary)
	if e.Author != "" {
		fmt.Fprintf(&b, "    by %s\n", e.Author)
	}
	if opts.Diff && e.DiffBody != "" {
		for _, line := range strings.Split(strings.TrimSuffix(e.DiffBody, "\n"), "\n") {
			fmt.Fprintf(&b, "    %s\n", line)
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}
