package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/roach88/docsync/internal/model"
)

// readmeNames are tried in order inside each numbered directory.
var readmeNames = []string{"README.md", "README.adoc"}

// DirRepository reads a corpus laid out as <root>/<NNNN>/README.{md,adoc}.
type DirRepository struct {
	Root   string
	Prefix string
}

// NewDirRepository returns a repository rooted at root. IDs are formed as
// <prefix>-<number>.
func NewDirRepository(root, prefix string) *DirRepository {
	return &DirRepository{Root: root, Prefix: prefix}
}

// List returns one ref per numbered directory that holds a README.
func (r *DirRepository) List(ctx context.Context) ([]Ref, error) {
	entries, err := os.ReadDir(r.Root)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", r.Root, err)
	}

	var refs []Ref
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !e.IsDir() {
			continue
		}
		n, ok := parseNumber(e.Name())
		if !ok {
			continue
		}
		for _, name := range readmeNames {
			rel := filepath.Join(e.Name(), name)
			if _, err := os.Stat(filepath.Join(r.Root, rel)); err == nil {
				refs = append(refs, Ref{ID: model.FormatID(r.Prefix, n), Number: n, Path: filepath.ToSlash(rel)})
				break
			}
		}
	}
	return refs, nil
}

// Read loads one document. LastModified is the file's modification time.
func (r *DirRepository) Read(ctx context.Context, ref Ref) (RawDocument, error) {
	if err := ctx.Err(); err != nil {
		return RawDocument{}, err
	}
	path := filepath.Join(r.Root, filepath.FromSlash(ref.Path))
	body, err := os.ReadFile(path)
	if err != nil {
		return RawDocument{}, fmt.Errorf("read %s: %w", ref.ID, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return RawDocument{}, fmt.Errorf("stat %s: %w", ref.ID, err)
	}
	return RawDocument{Ref: ref, Body: body, LastModified: info.ModTime().UTC()}, nil
}

// parseNumber accepts all-digit directory names such as "0042".
func parseNumber(name string) (int, bool) {
	if name == "" {
		return 0, false
	}
	for _, c := range name {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(name)
	if err != nil {
		return 0, false
	}
	return n, true
}
