package tools

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileToolPlainTextAndCSV(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("line one\nline two"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data.csv"), []byte("a,b\n1,2\n"), 0o644))

	tool := NewFileTool(dir)
	out, err := tool.Call(context.Background(), map[string]any{"files": []any{"notes.txt", "data.csv"}})
	require.NoError(t, err)

	assert.Contains(t, out, "File: notes.txt\nline one\nline two")
	assert.Contains(t, out, "File: data.csv\na\tb\n1\t2")
}

func TestFileToolMissingFile(t *testing.T) {
	tool := NewFileTool(t.TempDir())
	out, err := tool.Call(context.Background(), map[string]any{"files": []any{"absent.txt"}})
	require.NoError(t, err)
	assert.Contains(t, out, "[document_parser] Failed to parse absent.txt:")
}

func TestFileToolRejectsEscapingPath(t *testing.T) {
	tool := NewFileTool(t.TempDir())
	out, err := tool.Call(context.Background(), map[string]any{"files": []any{"../../etc/passwd"}})
	require.NoError(t, err)
	assert.Contains(t, out, "path escapes file directory")
}

func TestFileToolEmptyArgs(t *testing.T) {
	tool := NewFileTool(t.TempDir())
	out, err := tool.Call(context.Background(), map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "Error: 'files' parameter is required and cannot be empty.", out)
}
