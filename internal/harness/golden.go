package harness

import (
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/docsync/internal/changelog"
	"github.com/roach88/docsync/internal/model"
)

// Transcript renders a result as plain text: one line per cycle run with its
// failures, then the committed changelog with diffs.
func Transcript(name string, result *Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "scenario: %s\n\n", name)
	for i, run := range result.Runs {
		writeRun(&b, i+1, run)
	}
	b.WriteString("\nchangelog:\n")
	b.WriteString(changelog.RenderText(result.Changelog, changelog.RenderOptions{Diff: true}))
	return b.String()
}

func writeRun(b *strings.Builder, n int, run model.CycleRun) {
	fmt.Fprintf(b, "cycle %d %s %s processed=%d failed=%d entries=%d",
		n, run.ID, run.Status, run.Processed, run.Failed, run.EntriesCreated)
	if run.FirstSeq > 0 {
		fmt.Fprintf(b, " seq=%d..%d", run.FirstSeq, run.LastSeq)
	}
	b.WriteString("\n")
	for _, f := range run.Failures {
		fmt.Fprintf(b, "    %s %s: %s\n", f.Kind, f.DocumentID, f.Cause)
	}
	if run.Error != "" {
		fmt.Fprintf(b, "    error: %s\n", run.Error)
	}
}

// RunWithGolden executes a scenario and compares its transcript against a
// golden file stored in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns an error if the scenario cannot run. Test failure (via goldie)
// occurs if the transcript doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	AssertGolden(t, scenario.Name, result)
	return result, nil
}

// AssertGolden compares an existing result's transcript against a golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, []byte(Transcript(scenarioName, result)))
}
