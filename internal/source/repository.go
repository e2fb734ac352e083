package source

import (
	"context"
	"time"
)

// Ref identifies one document in a repository listing.
type Ref struct {
	ID     string
	Number int
	// Path is relative to the repository root and selects the parser by extension.
	Path string
}

// RawDocument is an unparsed document as read from a repository.
type RawDocument struct {
	Ref          Ref
	Body         []byte
	LastModified time.Time
	// Author is the last committer, when the repository can tell.
	Author string
}

// Repository is a read-only document corpus. Implementations must be safe
// to call repeatedly and concurrently; reads never mutate the corpus.
type Repository interface {
	List(ctx context.Context) ([]Ref, error)
	Read(ctx context.Context, ref Ref) (RawDocument, error)
}
