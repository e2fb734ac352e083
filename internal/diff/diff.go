package diff

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/docsync/internal/model"
)

// ErrInvalidDocument is returned when a document cannot be compared.
var ErrInvalidDocument = errors.New("invalid document")

// Stats summarizes a unified diff body.
type Stats struct {
	Added   int
	Removed int
}

// BodyStats counts added and removed lines in a descriptor's diff body.
func BodyStats(d model.ChangeDescriptor) Stats {
	a, r := countChanges(d.DiffBody)
	return Stats{Added: a, Removed: r}
}

// Diff compares current with its previous baseline.
//
//   - no baseline: added
//   - content hash differs: content_modified, with a line diff
//   - metadata hash differs: metadata_modified
//   - otherwise: unchanged
//
// Field-level metadata changes are reported for both modified kinds.
func Diff(current model.TrackedDocument, previous *model.Baseline) (model.ChangeDescriptor, error) {
	if err := validate(current); err != nil {
		return model.ChangeDescriptor{}, err
	}

	cur := current
	desc := model.ChangeDescriptor{
		DocumentID: current.ID,
		NewHash:    current.ContentHash,
		Current:    &cur,
	}

	if previous == nil {
		desc.Kind = model.KindAdded
		return desc, nil
	}

	prev := previous.Document
	desc.Previous = &prev
	desc.PreviousHash = previous.Snapshot.ContentHash

	switch {
	case current.ContentHash != previous.Snapshot.ContentHash:
		body, err := LineDiff(current.ID, prev.Body, current.Body)
		if err != nil {
			return model.ChangeDescriptor{}, fmt.Errorf("diff %s: %w", current.ID, err)
		}
		if body == "" {
			// Hashes disagree but the stored body matches: the baseline row
			// is out of step with its snapshot.
			return model.ChangeDescriptor{}, fmt.Errorf("diff %s: %w: baseline body does not match snapshot hash",
				current.ID, ErrInvalidDocument)
		}
		desc.Kind = model.KindContentModified
		desc.DiffBody = body
		desc.MetadataChanges = MetadataChanges(prev, current)
	case current.MetadataHash != previous.Snapshot.MetadataHash:
		desc.Kind = model.KindMetadataModified
		desc.MetadataChanges = MetadataChanges(prev, current)
	default:
		desc.Kind = model.KindUnchanged
	}
	return desc, nil
}

// Removed reports every baseline whose document is absent from the listing.
// Documents in excluded are skipped. Results are ordered by document ID.
func Removed(baselines map[string]model.Baseline, listed map[string]struct{}, excluded map[string]struct{}) []model.ChangeDescriptor {
	var out []model.ChangeDescriptor
	for id, b := range baselines {
		if _, ok := listed[id]; ok {
			continue
		}
		if _, ok := excluded[id]; ok {
			continue
		}
		prev := b.Document
		out = append(out, model.ChangeDescriptor{
			DocumentID:   id,
			Kind:         model.KindRemoved,
			PreviousHash: b.Snapshot.ContentHash,
			Previous:     &prev,
		})
	}
	slices.SortFunc(out, func(a, b model.ChangeDescriptor) int { return model.CompareIDs(a.DocumentID, b.DocumentID) })
	return out
}

// MetadataChanges lists title and metadata fields that differ, sorted by
// field name. The title is reported as field "title".
func MetadataChanges(prev, cur model.TrackedDocument) []model.FieldChange {
	var changes []model.FieldChange
	if prev.Title != cur.Title {
		changes = append(changes, model.FieldChange{Field: "title", Old: prev.Title, New: cur.Title})
	}
	seen := make(map[string]struct{}, len(prev.Metadata)+len(cur.Metadata))
	for k := range prev.Metadata {
		seen[k] = struct{}{}
	}
	for k := range cur.Metadata {
		seen[k] = struct{}{}
	}
	for k := range seen {
		if prev.Metadata[k] != cur.Metadata[k] {
			changes = append(changes, model.FieldChange{Field: k, Old: prev.Metadata[k], New: cur.Metadata[k]})
		}
	}
	slices.SortFunc(changes, func(a, b model.FieldChange) int { return strings.Compare(a.Field, b.Field) })
	return changes
}

func validate(d model.TrackedDocument) error {
	if d.ID == "" {
		return fmt.Errorf("diff: %w: empty document ID", ErrInvalidDocument)
	}
	if d.ContentHash != model.ContentHash(d.Body) {
		return fmt.Errorf("diff %s: %w: content hash does not match body", d.ID, ErrInvalidDocument)
	}
	return nil
}
