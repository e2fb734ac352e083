package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// corpus is a directory corpus plus a database path in a temp dir.
type corpus struct {
	root string
	db   string
}

func newCorpus(t *testing.T) *corpus {
	t.Helper()
	dir := t.TempDir()
	root := filepath.Join(dir, "rfd")
	require.NoError(t, os.MkdirAll(root, 0o755))
	return &corpus{root: root, db: filepath.Join(dir, "docsync.db")}
}

func (c *corpus) write(t *testing.T, number int, body string) {
	t.Helper()
	dir := filepath.Join(c.root, fmt.Sprintf("%04d", number))
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte(body), 0o644))
}

func (c *corpus) remove(t *testing.T, number int) {
	t.Helper()
	require.NoError(t, os.RemoveAll(filepath.Join(c.root, fmt.Sprintf("%04d", number))))
}

// args prefixes a command line with the corpus flags.
func (c *corpus) args(command string, extra ...string) []string {
	args := []string{command, "--db", c.db, "--source", c.root, "--prefix", "P"}
	return append(args, extra...)
}

// execute runs the root command and returns stdout and stderr.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

const (
	helloBody  = "---\ntitle: Hello\nstate: published\n---\nline one\nline two\nline three\n"
	widgetBody = "# Retire the widget\n\nWidgets are obsolete.\n"
)

// seed writes two documents and commits them in one cycle.
func seed(t *testing.T) *corpus {
	t.Helper()
	c := newCorpus(t)
	c.write(t, 100, helloBody)
	c.write(t, 101, widgetBody)
	_, _, err := execute(t, c.args("sync")...)
	require.NoError(t, err)
	return c
}
