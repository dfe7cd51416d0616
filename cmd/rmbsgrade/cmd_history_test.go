package main

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spboyer/rmbsgrade/internal/store"
)

func seedHistory(t *testing.T) string {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "history.db")
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	first := sampleOutcome()
	first.RunID = "aaaa1111-first"
	first.Timestamp = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, st.SaveRun(context.Background(), first))

	second := sampleOutcome()
	second.RunID = "bbbb2222-second"
	second.Timestamp = first.Timestamp.Add(24 * time.Hour)
	second.Records[0].Overall = 4.5
	require.NoError(t, st.SaveRun(context.Background(), second))
	return dbPath
}

func TestHistory_ListRuns(t *testing.T) {
	dbPath := seedHistory(t)

	out, err := runRoot(t, "history", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "aaaa1111")
	assert.Contains(t, out, "bbbb2222")
	assert.Less(t, strings.Index(out, "bbbb2222"), strings.Index(out, "aaaa1111"), "newest run first")

	out, err = runRoot(t, "history", "--db", dbPath, "--limit", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "bbbb2222")
	assert.NotContains(t, out, "aaaa1111")
}

func TestHistory_Empty(t *testing.T) {
	out, err := runRoot(t, "history", "--db", filepath.Join(t.TempDir(), "empty.db"))
	require.NoError(t, err)
	assert.Contains(t, out, "No runs recorded.")
}

func TestHistory_Show(t *testing.T) {
	dbPath := seedHistory(t)

	out, err := runRoot(t, "history", "show", "aaaa", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Run aaaa1111-first")
	assert.Contains(t, out, "alice")
	assert.Contains(t, out, "no_entry_point")

	_, err = runRoot(t, "history", "show", "zzzz", "--db", dbPath)
	require.ErrorIs(t, err, store.ErrRunNotFound)
}

func TestHistory_Candidate(t *testing.T) {
	dbPath := seedHistory(t)

	out, err := runRoot(t, "history", "candidate", "alice", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "4.50")
	assert.Contains(t, out, "5.00")
	assert.Less(t, strings.Index(out, "bbbb2222"), strings.Index(out, "aaaa1111"))

	out, err = runRoot(t, "history", "candidate", "nobody", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "No results recorded for nobody.")
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "abc", shortID("abc"))
	assert.Equal(t, "3f2a9c1e", shortID("3f2a9c1e-0000-4000-8000-000000000001"))
}
