package source

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"os/exec"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/roach88/docsync/internal/model"
)

// GitRepository reads documents from a git revision through the git CLI.
// The working tree is never modified, so a cycle sees one consistent commit
// even while the checkout is being updated.
type GitRepository struct {
	// RepoRoot is the working copy (or bare repository) to run git in.
	RepoRoot string
	// Rev is the revision to read, e.g. "HEAD" or "origin/main".
	Rev string
	// Dir is the corpus directory inside the repository; empty means the root.
	Dir    string
	Prefix string
}

// NewGitRepository returns a repository reading rev in repoRoot.
func NewGitRepository(repoRoot, rev, dir, prefix string) *GitRepository {
	if rev == "" {
		rev = "HEAD"
	}
	return &GitRepository{RepoRoot: repoRoot, Rev: rev, Dir: strings.Trim(dir, "/"), Prefix: prefix}
}

// List walks the tree at Rev for <dir>/<NNNN>/README.{md,adoc}.
func (g *GitRepository) List(ctx context.Context) ([]Ref, error) {
	args := []string{"ls-tree", "-r", "--name-only", g.Rev}
	if g.Dir != "" {
		args = append(args, "--", g.Dir)
	}
	out, err := g.git(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", g.Rev, err)
	}

	paths := make(map[int]string)
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		rel := line
		if g.Dir != "" {
			rel = strings.TrimPrefix(line, g.Dir+"/")
		}
		dir, name := path.Split(rel)
		n, ok := parseNumber(strings.TrimSuffix(dir, "/"))
		if !ok {
			continue
		}
		switch name {
		case "README.md":
			paths[n] = line
		case "README.adoc":
			if _, ok := paths[n]; !ok {
				paths[n] = line
			}
		}
	}

	refs := make([]Ref, 0, len(paths))
	for n, p := range paths {
		refs = append(refs, Ref{ID: model.FormatID(g.Prefix, n), Number: n, Path: p})
	}
	slices.SortFunc(refs, func(a, b Ref) int { return cmp.Compare(a.Number, b.Number) })
	return refs, nil
}

// Read returns the blob at Rev plus the author and time of the last commit
// that touched it.
func (g *GitRepository) Read(ctx context.Context, ref Ref) (RawDocument, error) {
	body, err := g.git(ctx, "show", g.Rev+":"+ref.Path)
	if err != nil {
		return RawDocument{}, fmt.Errorf("read %s: %w", ref.ID, err)
	}

	out, err := g.git(ctx, "log", "-1", "--format=%an <%ae>%x00%cI", g.Rev, "--", ref.Path)
	if err != nil {
		return RawDocument{}, fmt.Errorf("log %s: %w", ref.ID, err)
	}

	raw := RawDocument{Ref: ref, Body: body}
	author, when, ok := strings.Cut(strings.TrimSpace(string(out)), "\x00")
	if ok {
		raw.Author = author
		if t, err := time.Parse(time.RFC3339, when); err == nil {
			raw.LastModified = t.UTC()
		}
	}
	return raw, nil
}

func (g *GitRepository) git(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = g.RepoRoot

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("git %s failed: %w\n%s", args[0], err, stderr.String())
	}
	return out, nil
}
