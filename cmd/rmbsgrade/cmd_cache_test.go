package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheClear(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cache")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "abc.json.zst"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "def.json.zst"), []byte("y"), 0o644))

	out, err := runRoot(t, "cache", "clear", "--cache-dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Cache cleared")
	assert.Contains(t, out, "(2 entries)")

	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}

func TestCacheClear_MissingDir(t *testing.T) {
	out, err := runRoot(t, "cache", "clear", "--cache-dir", filepath.Join(t.TempDir(), "nothing"))
	require.NoError(t, err)
	assert.Contains(t, out, "(0 entries)")
}

func TestCacheClear_RefusesForeignFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("keep me"), 0o644))

	_, err := runRoot(t, "cache", "clear", "--cache-dir", dir)
	require.ErrorContains(t, err, "refusing to delete")

	_, err = os.Stat(filepath.Join(dir, "notes.txt"))
	require.NoError(t, err)
}
