package harness

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/docsync/internal/model"
	"github.com/roach88/docsync/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes the changelog to help debug the failure.
type AssertionError struct {
	Type      string                 // Assertion type for categorization
	Expected  string                 // Human-readable expected outcome
	Actual    string                 // Human-readable actual outcome
	Changelog []model.ChangelogEntry // Final changelog for context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nChangelog:\n")
	for _, entry := range e.Changelog {
		fmt.Fprintf(&buf, "  #%d %s %s (%s)\n", entry.Seq, entry.DocumentID, entry.Kind, entry.CycleID)
	}
	return buf.String()
}

// AssertionContext provides what store-backed assertions need.
type AssertionContext struct {
	Store *store.Store
	Ctx   context.Context
	Runs  []model.CycleRun
}

// EvaluateAssertions checks every assertion and returns the failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, assertion := range assertions {
		var err error
		switch assertion.Type {
		case AssertSnapshotPresent, AssertSnapshotAbsent:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: %s requires database context", i, assertion.Type)
				break
			}
			if assertion.Type == AssertSnapshotPresent {
				err = assertSnapshotPresent(actx, result, assertion)
			} else {
				err = assertSnapshotAbsent(actx, result, assertion)
			}
		case AssertChangelogCount:
			err = assertChangelogCount(result.Changelog, assertion)
		case AssertChangelogSequence:
			err = assertChangelogSequence(result.Changelog, assertion)
		case AssertChangelogContains:
			err = assertChangelogContains(result.Changelog, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}
		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}

func assertSnapshotPresent(actx *AssertionContext, result *Result, a Assertion) error {
	snap, err := actx.Store.GetSnapshot(actx.Ctx, a.Document)
	if errors.Is(err, store.ErrNotFound) {
		return &AssertionError{
			Type:      a.Type,
			Expected:  fmt.Sprintf("snapshot for %s", a.Document),
			Actual:    "no snapshot",
			Changelog: result.Changelog,
		}
	}
	if err != nil {
		return fmt.Errorf("%s %s: %w", a.Type, a.Document, err)
	}

	if a.Cycle == 0 {
		return nil
	}
	if a.Cycle > len(actx.Runs) {
		return fmt.Errorf("%s %s: cycle %d did not run", a.Type, a.Document, a.Cycle)
	}
	if want := actx.Runs[a.Cycle-1].ID; snap.CycleID != want {
		return &AssertionError{
			Type:      a.Type,
			Expected:  fmt.Sprintf("snapshot for %s from cycle %d (%s)", a.Document, a.Cycle, want),
			Actual:    fmt.Sprintf("snapshot from %s", snap.CycleID),
			Changelog: result.Changelog,
		}
	}
	return nil
}

func assertSnapshotAbsent(actx *AssertionContext, result *Result, a Assertion) error {
	snap, err := actx.Store.GetSnapshot(actx.Ctx, a.Document)
	switch {
	case err == nil:
		return &AssertionError{
			Type:      a.Type,
			Expected:  fmt.Sprintf("no snapshot for %s", a.Document),
			Actual:    fmt.Sprintf("snapshot from %s", snap.CycleID),
			Changelog: result.Changelog,
		}
	case !errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%s %s: %w", a.Type, a.Document, err)
	}

	_, err = actx.Store.GetDocument(actx.Ctx, a.Document)
	switch {
	case err == nil:
		return &AssertionError{
			Type:      a.Type,
			Expected:  fmt.Sprintf("no record for %s", a.Document),
			Actual:    "document record still present",
			Changelog: result.Changelog,
		}
	case !errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%s %s: %w", a.Type, a.Document, err)
	}
	return nil
}

func assertChangelogCount(entries []model.ChangelogEntry, a Assertion) error {
	if len(entries) != *a.Count {
		return &AssertionError{
			Type:      a.Type,
			Expected:  fmt.Sprintf("%d entries", *a.Count),
			Actual:    fmt.Sprintf("%d entries", len(entries)),
			Changelog: entries,
		}
	}
	return nil
}

func assertChangelogSequence(entries []model.ChangelogEntry, a Assertion) error {
	seqs := make([]int64, len(entries))
	for i, e := range entries {
		seqs[i] = e.Seq
	}
	if !slices.Equal(seqs, a.Sequence) {
		return &AssertionError{
			Type:      a.Type,
			Expected:  fmt.Sprintf("%v", a.Sequence),
			Actual:    fmt.Sprintf("%v", seqs),
			Changelog: entries,
		}
	}
	return nil
}

func assertChangelogContains(entries []model.ChangelogEntry, a Assertion) error {
	n := 0
	for _, e := range entries {
		if e.DocumentID == a.Document && (a.Kind == "" || string(e.Kind) == a.Kind) {
			n++
		}
	}

	what := a.Document
	if a.Kind != "" {
		what += " " + a.Kind
	}
	switch {
	case a.Count != nil && n != *a.Count:
		return &AssertionError{
			Type:      a.Type,
			Expected:  fmt.Sprintf("%d entries for %s", *a.Count, what),
			Actual:    fmt.Sprintf("%d entries", n),
			Changelog: entries,
		}
	case a.Count == nil && n == 0:
		return &AssertionError{
			Type:      a.Type,
			Expected:  fmt.Sprintf("an entry for %s", what),
			Actual:    "none",
			Changelog: entries,
		}
	}
	return nil
}
