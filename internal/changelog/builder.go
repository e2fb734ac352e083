// Package changelog turns a cycle's change descriptors into ordered,
// numbered changelog entries and renders entries for people to read.
package changelog

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/roach88/docsync/internal/diff"
	"github.com/roach88/docsync/internal/model"
)

// Pending returns how many entries Build will produce for descs, which is the
// size of the sequence block to reserve.
func Pending(descs []model.ChangeDescriptor) int {
	n := 0
	for _, d := range descs {
		if d.Kind != model.KindUnchanged {
			n++
		}
	}
	return n
}

// Build drops unchanged descriptors, orders the rest by document ID and
// numbers them firstSeq, firstSeq+1, ... Each document may appear once.
func Build(cycleID string, firstSeq int64, committedAt time.Time, descs []model.ChangeDescriptor) ([]model.ChangelogEntry, error) {
	changed := make([]model.ChangeDescriptor, 0, len(descs))
	for _, d := range descs {
		if !d.Kind.Valid() {
			return nil, fmt.Errorf("build changelog: %s: unknown change kind %q", d.DocumentID, d.Kind)
		}
		if d.Kind != model.KindUnchanged {
			changed = append(changed, d)
		}
	}
	if len(changed) == 0 {
		return []model.ChangelogEntry{}, nil
	}
	if firstSeq <= 0 {
		return nil, fmt.Errorf("build changelog: invalid first sequence %d", firstSeq)
	}

	slices.SortStableFunc(changed, func(a, b model.ChangeDescriptor) int {
		return model.CompareIDs(a.DocumentID, b.DocumentID)
	})

	entries := make([]model.ChangelogEntry, len(changed))
	for i, d := range changed {
		if i > 0 && d.DocumentID == changed[i-1].DocumentID {
			return nil, fmt.Errorf("build changelog: duplicate descriptor for %s", d.DocumentID)
		}
		entries[i] = model.ChangelogEntry{
			Seq:          firstSeq + int64(i),
			DocumentID:   d.DocumentID,
			Kind:         d.Kind,
			Summary:      Summarize(d),
			DiffBody:     d.DiffBody,
			Author:       attribution(d),
			PreviousHash: d.PreviousHash,
			NewHash:      d.NewHash,
			CycleID:      cycleID,
			CommittedAt:  committedAt,
		}
	}
	return entries, nil
}

// Summarize renders a one-line description of a change.
func Summarize(d model.ChangeDescriptor) string {
	subject := d.DocumentID
	if doc := latest(d); doc != nil && doc.Title != "" && doc.Title != d.DocumentID {
		subject = fmt.Sprintf("%s %q", d.DocumentID, doc.Title)
	}

	switch d.Kind {
	case model.KindAdded:
		if d.Current != nil && d.Current.State() != "" {
			return fmt.Sprintf("%s added (state: %s)", subject, d.Current.State())
		}
		return subject + " added"
	case model.KindRemoved:
		return subject + " removed"
	case model.KindContentModified:
		st := diff.BodyStats(d)
		s := fmt.Sprintf("%s content updated (+%d -%d)", subject, st.Added, st.Removed)
		if len(d.MetadataChanges) > 0 {
			s += "; " + formatChanges(d.MetadataChanges)
		}
		return s
	case model.KindMetadataModified:
		return subject + " metadata updated: " + formatChanges(d.MetadataChanges)
	}
	return subject + " unchanged"
}

func formatChanges(changes []model.FieldChange) string {
	parts := make([]string, len(changes))
	for i, c := range changes {
		parts[i] = fmt.Sprintf("%s: %s -> %s", c.Field, orNone(c.Old), orNone(c.New))
	}
	return strings.Join(parts, ", ")
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

// latest is the most recent known version of the document.
func latest(d model.ChangeDescriptor) *model.TrackedDocument {
	if d.Current != nil {
		return d.Current
	}
	return d.Previous
}

// attribution prefers the last committer, then the declared authors.
func attribution(d model.ChangeDescriptor) string {
	doc := latest(d)
	if doc == nil {
		return ""
	}
	if doc.Author != "" {
		return doc.Author
	}
	return doc.Metadata["authors"]
}
