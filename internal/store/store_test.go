package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spboyer/rmbsgrade/internal/models"
	"github.com/spboyer/rmbsgrade/internal/rating"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleRun(id string, at time.Time, overall float64) *models.RunOutcome {
	d := 0
	return &models.RunOutcome{
		RunID:     id,
		Timestamp: at,
		Setup: models.RunSetup{
			FixtureSet:     "default",
			TimeoutMs:      10000,
			DistanceScale:  3,
			Samples:        3,
			SampleStrategy: "median",
			Workers:        4,
		},
		Digest: models.RunDigest{Candidates: 2, Resolved: 1, AvgOverall: overall / 2, MaxOverall: overall},
		Records: []models.ScoreRecord{
			{
				Candidate:     "zed",
				LoadErrorKind: models.ErrorKindNoEntryPoint,
				LoadError:     "no entry point found",
				Fixtures:      map[string]models.FixtureDetail{},
				Tiers:         map[string]models.TierDetail{},
				Grade:         "F",
			},
			{
				Candidate:        "alice",
				AlgorithmScore:   5,
				PerformanceScore: 4,
				Overall:          overall,
				Grade:            "B",
				Fixtures: map[string]models.FixtureDetail{
					"basic": {Expected: rating.BBB, Actual: rating.BBB, Correctness: 1, Weight: 1, Distance: &d},
				},
				Tiers: map[string]models.TierDetail{
					"small_100": {Size: 100, ReferenceMs: 20, ElapsedMs: 3, Score: 5},
				},
			},
		},
	}
}

func TestSaveAndListRuns(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveRun(ctx, sampleRun("run-a", t0, 4)))
	require.NoError(t, s.SaveRun(ctx, sampleRun("run-b", t0.Add(time.Hour), 4.5)))
	// Sub-second timestamps still order correctly.
	require.NoError(t, s.SaveRun(ctx, sampleRun("run-c", t0.Add(time.Hour+500*time.Millisecond), 3)))

	runs, err := s.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, []string{"run-c", "run-b", "run-a"}, []string{runs[0].ID, runs[1].ID, runs[2].ID})
	assert.Equal(t, "default", runs[0].FixtureSet)
	assert.Equal(t, 2, runs[0].Candidates)
	assert.Equal(t, 1, runs[0].Resolved)
	assert.True(t, runs[2].StartedAt.Equal(t0))

	limited, err := s.ListRuns(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
}

func TestSaveRun_DuplicateIDRollsBack(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	run := sampleRun("dup", time.Now(), 4)

	require.NoError(t, s.SaveRun(ctx, run))
	require.Error(t, s.SaveRun(ctx, run))

	records, err := s.RunRecords(ctx, "dup")
	require.NoError(t, err)
	require.Len(t, records, 2)
}

func TestRunRecords(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	run := sampleRun("run-1", time.Now(), 4.2)
	require.NoError(t, s.SaveRun(ctx, run))

	records, err := s.RunRecords(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	// Ordered by candidate name.
	assert.Equal(t, "alice", records[0].Candidate)
	assert.Equal(t, run.Records[1], records[0])
	assert.Equal(t, models.ErrorKindNoEntryPoint, records[1].LoadErrorKind)

	_, err = s.RunRecords(ctx, "missing")
	require.ErrorIs(t, err, ErrRunNotFound)
}

func TestResolveRunID(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveRun(ctx, sampleRun("abc123", time.Now(), 1)))
	require.NoError(t, s.SaveRun(ctx, sampleRun("abd456", time.Now(), 1)))

	id, err := s.ResolveRunID(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, "abc123", id)

	_, err = s.ResolveRunID(ctx, "ab")
	require.ErrorContains(t, err, "ambiguous")

	_, err = s.ResolveRunID(ctx, "zzz")
	require.ErrorIs(t, err, ErrRunNotFound)
}

func TestResolveRunID_WildcardsAreLiteral(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveRun(ctx, sampleRun("a_c123", time.Now(), 1)))
	require.NoError(t, s.SaveRun(ctx, sampleRun("abc999", time.Now(), 1)))

	id, err := s.ResolveRunID(ctx, "a_c")
	require.NoError(t, err)
	assert.Equal(t, "a_c123", id)

	_, err = s.ResolveRunID(ctx, "%")
	require.ErrorIs(t, err, ErrRunNotFound)
}

func TestCandidateHistory(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.SaveRun(ctx, sampleRun("r1", t0, 3)))
	require.NoError(t, s.SaveRun(ctx, sampleRun("r2", t0.Add(24*time.Hour), 4)))

	history, err := s.CandidateHistory(ctx, "alice", 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "r2", history[0].RunID)
	assert.Equal(t, 4.0, history[0].Overall)
	assert.True(t, history[0].Resolved)

	history, err = s.CandidateHistory(ctx, "zed", 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.False(t, history[0].Resolved)

	history, err = s.CandidateHistory(ctx, "nobody", 0)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.SaveRun(context.Background(), sampleRun("keep", time.Now(), 2)))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close() //nolint:errcheck
	assert.Equal(t, path, s.Path())
	runs, err := s.ListRuns(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
}
