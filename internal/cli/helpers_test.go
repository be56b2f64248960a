package cli

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/roach88/captable/internal/document"
	"github.com/roach88/captable/internal/model"
)

// execute runs cmd with args and returns what it wrote to stdout. Logs
// are discarded.
func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	if args == nil {
		args = []string{} // nil makes cobra fall back to os.Args
	}
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// writeDocument saves doc under a fresh temp dir and returns its path.
func writeDocument(t *testing.T, doc model.Document) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cap.json")
	require.NoError(t, document.Save(path, doc))
	return path
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func readDocument(t *testing.T, path string) model.Document {
	t.Helper()
	doc, err := document.Load(path)
	require.NoError(t, err)
	return doc
}
