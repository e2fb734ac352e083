package source

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/docsync/internal/model"
)

type memDoc struct {
	ref      Ref
	body     string
	modified time.Time
	author   string
}

// MemoryRepository is an in-process corpus with injectable failures.
type MemoryRepository struct {
	mu       sync.RWMutex
	docs     map[string]memDoc
	readErrs map[string]error
	listErr  error
	reads    atomic.Int64
}

// NewMemoryRepository returns an empty corpus.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		docs:     make(map[string]memDoc),
		readErrs: make(map[string]error),
	}
}

// Put adds or replaces a document. The parser is chosen from path's extension;
// an empty path defaults to Markdown.
func (m *MemoryRepository) Put(id, path, body string, modified time.Time, author string) {
	_, n, _ := model.ParseID(id)
	if path == "" {
		path = fmt.Sprintf("%04d/README.md", n)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[id] = memDoc{ref: Ref{ID: id, Number: n, Path: path}, body: body, modified: modified, author: author}
}

// Delete removes a document from the corpus.
func (m *MemoryRepository) Delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, id)
}

// Reset empties the corpus and clears injected failures.
func (m *MemoryRepository) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs = make(map[string]memDoc)
	m.readErrs = make(map[string]error)
	m.listErr = nil
}

// FailRead makes every read of id return err until ClearFailures.
func (m *MemoryRepository) FailRead(id string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readErrs[id] = err
}

// FailList makes List return err until ClearFailures.
func (m *MemoryRepository) FailList(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listErr = err
}

// ClearFailures removes all injected errors.
func (m *MemoryRepository) ClearFailures() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readErrs = make(map[string]error)
	m.listErr = nil
}

// Reads reports how many Read calls were made.
func (m *MemoryRepository) Reads() int64 {
	return m.reads.Load()
}

// List returns refs ordered by document ID.
func (m *MemoryRepository) List(ctx context.Context) ([]Ref, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	refs := make([]Ref, 0, len(m.docs))
	for _, d := range m.docs {
		refs = append(refs, d.ref)
	}
	slices.SortFunc(refs, func(a, b Ref) int {
		return cmp.Or(model.CompareIDs(a.ID, b.ID), cmp.Compare(a.Path, b.Path))
	})
	return refs, nil
}

// Read returns the stored body or the injected failure for ref.ID.
func (m *MemoryRepository) Read(ctx context.Context, ref Ref) (RawDocument, error) {
	m.reads.Add(1)
	if err := ctx.Err(); err != nil {
		return RawDocument{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err, ok := m.readErrs[ref.ID]; ok {
		return RawDocument{}, err
	}
	d, ok := m.docs[ref.ID]
	if !ok {
		return RawDocument{}, fmt.Errorf("read %s: document no longer exists", ref.ID)
	}
	return RawDocument{Ref: d.ref, Body: []byte(d.body), LastModified: d.modified, Author: d.author}, nil
}
