package source

import (
	"context"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// initGitRepo creates a repository with one commit, skipping when git is unavailable.
func initGitRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	root := t.TempDir()
	run := func(args ...string) {
		t.Helper()
		cmd := exec.Command("git", args...)
		cmd.Dir = root
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, "git %v: %s", args, out)
	}

	run("init", "-q")
	run("config", "user.name", "Ada Lovelace")
	run("config", "user.email", "ada@example.com")
	run("config", "commit.gpgsign", "false")
	writeFile(t, root, "rfd/0001/README.md", "---\nstate: draft\n---\n# One\n")
	writeFile(t, root, "rfd/0002/README.adoc", "= Two\n:state: published\n\nbody\n")
	writeFile(t, root, "rfd/0002/diagram.svg", "<svg/>\n")
	writeFile(t, root, "other/0003/README.md", "outside the corpus dir\n")
	run("add", ".")
	run("commit", "-q", "-m", "initial")
	return root
}

func TestGitRepositoryListAndRead(t *testing.T) {
	root := initGitRepo(t)
	repo := NewGitRepository(root, "HEAD", "rfd", "RFD")
	ctx := context.Background()

	refs, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, Ref{ID: "RFD-1", Number: 1, Path: "rfd/0001/README.md"}, refs[0])
	assert.Equal(t, Ref{ID: "RFD-2", Number: 2, Path: "rfd/0002/README.adoc"}, refs[1])

	doc, err := repo.Read(ctx, refs[0])
	require.NoError(t, err)
	assert.Equal(t, "---\nstate: draft\n---\n# One\n", string(doc.Body))
	assert.Equal(t, "Ada Lovelace <ada@example.com>", doc.Author)
	assert.False(t, doc.LastModified.IsZero())
}

func TestGitRepositoryBadRevision(t *testing.T) {
	root := initGitRepo(t)
	repo := NewGitRepository(root, "no-such-branch", "rfd", "RFD")

	_, err := repo.List(context.Background())
	assert.ErrorContains(t, err, "git ls-tree failed")
}
