package harness

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/spboyer/rmbsgrade/internal/cache"
	"github.com/spboyer/rmbsgrade/internal/config"
	"github.com/spboyer/rmbsgrade/internal/discovery"
	"github.com/spboyer/rmbsgrade/internal/fixtures"
	"github.com/spboyer/rmbsgrade/internal/loader"
	"github.com/spboyer/rmbsgrade/internal/models"
	"github.com/spboyer/rmbsgrade/internal/portfolio"
	"github.com/spboyer/rmbsgrade/internal/rating"
	"github.com/spboyer/rmbsgrade/internal/scoring"
	"github.com/spboyer/rmbsgrade/internal/telemetry"
)

const exactSource = `
def calculate_credit_rating(portfolio):
    return "BBB"
`

// writeSubmission creates a one-file submission directory under root.
func writeSubmission(t *testing.T, root, name, source string) discovery.Submission {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "credit_rating.py"), []byte(source), 0o644))
	return discovery.Submission{Name: name, Dir: dir}
}

func testConfig(opts ...config.Option) *config.HarnessConfig {
	base := []config.Option{
		config.WithTimeout(time.Second),
		config.WithSamples(1),
		config.WithWarmup(0),
		config.WithWorkers(2),
	}
	return config.NewHarnessConfig(fixtures.Default(), append(base, opts...)...)
}

func expectedRatings() map[string]rating.Rating {
	out := map[string]rating.Rating{}
	for _, f := range fixtures.Default().Fixtures() {
		out[f.Name] = f.Expected
	}
	return out
}

// behaviour decides what a mocked candidate returns for a portfolio.
type behaviour func(p portfolio.Portfolio) models.ExecutionResult

// perfect answers every fixture correctly and every tier within its reference time.
func perfect(p portfolio.Portfolio) models.ExecutionResult {
	if r, ok := expectedRatings()[p.Name()]; ok {
		return models.NewSuccess(r, time.Millisecond)
	}
	return models.NewSuccess(rating.A, time.Millisecond)
}

func crashing(portfolio.Portfolio) models.ExecutionResult {
	return models.NewFailure(models.ErrorKindInvocationFailure, "ZeroDivisionError: division by zero")
}

// mockCandidates routes Execute calls to a behaviour keyed by submission directory name.
func mockCandidates(t *testing.T, behaviours map[string]behaviour) (*MockInvoker, *atomic.Int32) {
	t.Helper()
	ctrl := gomock.NewController(t)
	inv := NewMockInvoker(ctrl)
	var calls atomic.Int32

	inv.EXPECT().Probe(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	inv.EXPECT().Execute(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, b *models.CandidateBinding, p portfolio.Portfolio, _ time.Duration) models.ExecutionResult {
			calls.Add(1)
			if ctx.Err() != nil {
				return models.NewFailure(models.ErrorKindInvocationFailure, "evaluation cancelled")
			}
			fn, ok := behaviours[filepath.Base(b.Root)]
			if !assert.True(t, ok, "unexpected candidate %s", b.Root) {
				return models.NewFailure(models.ErrorKindInvocationFailure, "unexpected candidate")
			}
			return fn(p)
		}).AnyTimes()
	return inv, &calls
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	inv := NewMockInvoker(gomock.NewController(t))
	_, err := New(config.NewHarnessConfig(fixtures.Default(), config.WithTimeout(0)), inv)
	require.ErrorIs(t, err, config.ErrInvalidConfig)

	_, err = New(config.NewHarnessConfig(nil), inv)
	require.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestEvaluate_PerfectCandidate(t *testing.T) {
	root := t.TempDir()
	sub := writeSubmission(t, root, "alice", exactSource)
	inv, _ := mockCandidates(t, map[string]behaviour{"alice": perfect})

	e, err := New(testConfig(), inv)
	require.NoError(t, err)

	rec := e.Evaluate(context.Background(), sub)
	assert.Equal(t, "alice", rec.Candidate)
	assert.True(t, rec.Resolved())
	require.NotNil(t, rec.Binding)
	assert.Equal(t, "calculate_credit_rating", rec.Binding.Function)
	assert.InDelta(t, 5.0, rec.AlgorithmScore, 1e-9)
	assert.InDelta(t, 5.0, rec.PerformanceScore, 1e-9)
	assert.Len(t, rec.Fixtures, 4)
	assert.Len(t, rec.Tiers, 3)
	for name, d := range rec.Fixtures {
		assert.Equal(t, 1.0, d.Correctness, name)
	}
	assert.False(t, rec.Cached)
}

func TestEvaluate_NoEntryPoint(t *testing.T) {
	root := t.TempDir()
	sub := writeSubmission(t, root, "bob", "def _helper(x, y):\n    return x\n")

	ctrl := gomock.NewController(t)
	inv := NewMockInvoker(ctrl)
	// Nothing resolvable means no candidate code is ever run.
	inv.EXPECT().Probe(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
	inv.EXPECT().Execute(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	e, err := New(testConfig(), inv)
	require.NoError(t, err)

	rec := e.Evaluate(context.Background(), sub)
	assert.False(t, rec.Resolved())
	assert.Equal(t, models.ErrorKindNoEntryPoint, rec.LoadErrorKind)
	assert.Nil(t, rec.Binding)
	assert.Zero(t, rec.AlgorithmScore)
	assert.Zero(t, rec.PerformanceScore)
	for _, d := range rec.Fixtures {
		assert.Equal(t, models.ErrorKindNoEntryPoint, d.ErrorKind)
	}
}

func TestEvaluate_ImportFailure(t *testing.T) {
	root := t.TempDir()
	sub := writeSubmission(t, root, "carol", exactSource)

	ctrl := gomock.NewController(t)
	inv := NewMockInvoker(ctrl)
	inv.EXPECT().Probe(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(errors.New("ModuleNotFoundError: No module named 'numpy'")).AnyTimes()
	inv.EXPECT().Execute(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	e, err := New(testConfig(), inv)
	require.NoError(t, err)

	rec := e.Evaluate(context.Background(), sub)
	assert.Equal(t, models.ErrorKindImportFailure, rec.LoadErrorKind)
	assert.Contains(t, rec.LoadError, "numpy")
	assert.Zero(t, rec.AlgorithmScore)
}

func TestEvaluateAll_FailuresAreIsolated(t *testing.T) {
	root := t.TempDir()
	subs := []discovery.Submission{
		writeSubmission(t, root, "zoe", exactSource),
		writeSubmission(t, root, "alice", exactSource),
		writeSubmission(t, root, "bob", "x = 1\n"),
		writeSubmission(t, root, "carol", exactSource),
	}
	inv, _ := mockCandidates(t, map[string]behaviour{
		"alice": perfect,
		"carol": crashing,
		"zoe":   perfect,
	})

	e, err := New(testConfig(), inv)
	require.NoError(t, err)

	records := e.EvaluateAll(context.Background(), subs)
	require.Len(t, records, 4)

	names := make([]string, len(records))
	for i, r := range records {
		names[i] = r.Candidate
	}
	assert.Equal(t, []string{"alice", "bob", "carol", "zoe"}, names)

	assert.InDelta(t, 5.0, records[0].AlgorithmScore, 1e-9)
	assert.Equal(t, models.ErrorKindNoEntryPoint, records[1].LoadErrorKind)

	// carol resolves but every call fails.
	assert.True(t, records[2].Resolved())
	assert.Zero(t, records[2].AlgorithmScore)
	assert.Zero(t, records[2].PerformanceScore)
	assert.Equal(t, models.ErrorKindInvocationFailure, records[2].Fixtures["basic"].ErrorKind)

	assert.Equal(t, records[0].AlgorithmScore, records[3].AlgorithmScore)
	assert.Equal(t, records[0].PerformanceScore, records[3].PerformanceScore)
}

func TestEvaluateAll_Concurrency(t *testing.T) {
	root := t.TempDir()
	var subs []discovery.Submission
	behaviours := map[string]behaviour{}

	var mu sync.Mutex
	active := map[string]int{}
	maxCandidates, maxFixtures := 0, 0

	for _, name := range []string{"a", "b", "c", "d", "e"} {
		subs = append(subs, writeSubmission(t, root, name, exactSource))
		behaviours[name] = func(p portfolio.Portfolio) models.ExecutionResult {
			mu.Lock()
			active[name]++
			maxCandidates = max(maxCandidates, len(active))
			maxFixtures = max(maxFixtures, active[name])
			mu.Unlock()

			time.Sleep(5 * time.Millisecond)

			mu.Lock()
			if active[name]--; active[name] == 0 {
				delete(active, name)
			}
			mu.Unlock()
			return perfect(p)
		}
	}
	inv, _ := mockCandidates(t, behaviours)

	e, err := New(testConfig(config.WithWorkers(2), config.WithFixtureParallelism(2)), inv)
	require.NoError(t, err)

	records := e.EvaluateAll(context.Background(), subs)
	require.Len(t, records, 5)
	for _, r := range records {
		assert.InDelta(t, 5.0, r.AlgorithmScore, 1e-9, r.Candidate)
	}
	assert.LessOrEqual(t, maxCandidates, 2)
	assert.LessOrEqual(t, maxFixtures, 2)
}

func TestEvaluateAll_Cancelled(t *testing.T) {
	root := t.TempDir()
	subs := []discovery.Submission{
		writeSubmission(t, root, "alice", exactSource),
		writeSubmission(t, root, "bob", exactSource),
	}
	inv, _ := mockCandidates(t, map[string]behaviour{"alice": perfect, "bob": perfect})

	c := cache.New(t.TempDir())
	e, err := New(testConfig(), inv, WithCache(c))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	records := e.EvaluateAll(ctx, subs)
	require.Len(t, records, 2)
	for _, r := range records {
		assert.Zero(t, r.AlgorithmScore, r.Candidate)
	}
	// Incomplete results are never cached.
	assert.Zero(t, c.Len())
}

func TestEvaluate_CacheHit(t *testing.T) {
	root := t.TempDir()
	sub := writeSubmission(t, root, "alice", exactSource)
	inv, calls := mockCandidates(t, map[string]behaviour{"alice": perfect})

	c := cache.New(t.TempDir())
	e, err := New(testConfig(), inv, WithCache(c))
	require.NoError(t, err)

	var events []EventType
	var mu sync.Mutex
	e.OnProgress(func(ev ProgressEvent) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, ev.EventType)
	})

	first := e.Evaluate(context.Background(), sub)
	require.False(t, first.Cached)
	n := calls.Load()
	require.Positive(t, n)
	assert.Equal(t, 1, c.Len())

	second := e.Evaluate(context.Background(), sub)
	assert.True(t, second.Cached)
	assert.Equal(t, n, calls.Load(), "cache hit must not run the candidate")
	assert.Equal(t, first.AlgorithmScore, second.AlgorithmScore)
	assert.Equal(t, first.PerformanceScore, second.PerformanceScore)
	assert.Contains(t, events, EventCandidateCached)

	t.Run("source change invalidates", func(t *testing.T) {
		require.NoError(t, os.WriteFile(filepath.Join(sub.Dir, "credit_rating.py"), []byte(exactSource+"\n# v2\n"), 0o644))
		third := e.Evaluate(context.Background(), sub)
		assert.False(t, third.Cached)
		assert.Greater(t, calls.Load(), n)
	})
}

func TestEvaluate_ProgressEvents(t *testing.T) {
	root := t.TempDir()
	sub := writeSubmission(t, root, "alice", exactSource)
	inv, _ := mockCandidates(t, map[string]behaviour{"alice": perfect})

	e, err := New(testConfig(), inv)
	require.NoError(t, err)

	var mu sync.Mutex
	counts := map[EventType]int{}
	var order []EventType
	e.OnProgress(func(ev ProgressEvent) {
		mu.Lock()
		defer mu.Unlock()
		counts[ev.EventType]++
		order = append(order, ev.EventType)
		assert.Equal(t, "alice", ev.Candidate)
	})

	e.Evaluate(context.Background(), sub)

	assert.Equal(t, 1, counts[EventCandidateStart])
	assert.Equal(t, 1, counts[EventCandidateResolved])
	assert.Equal(t, 4, counts[EventFixtureComplete])
	assert.Equal(t, 3, counts[EventTierComplete])
	assert.Equal(t, 1, counts[EventCandidateComplete])
	require.NotEmpty(t, order)
	assert.Equal(t, EventCandidateStart, order[0])
	assert.Equal(t, EventCandidateComplete, order[len(order)-1])
}

func TestRun(t *testing.T) {
	root := t.TempDir()
	subs := []discovery.Submission{
		writeSubmission(t, root, "alice", exactSource),
		writeSubmission(t, root, "bob", "x = 1\n"),
	}
	inv, _ := mockCandidates(t, map[string]behaviour{"alice": perfect})

	external, err := scoring.ParseExternalScores([]byte("alice:\n  structure: 5\n  tests: 5\n  code_quality: 5\n  documentation: 5\n"))
	require.NoError(t, err)

	m := telemetry.New()
	e, err := New(testConfig(), inv, WithExternalScores(external), WithMetrics(m))
	require.NoError(t, err)

	var runEvents []EventType
	e.OnProgress(func(ev ProgressEvent) {
		if ev.EventType == EventRunStart || ev.EventType == EventRunComplete {
			runEvents = append(runEvents, ev.EventType)
		}
	})

	out := e.Run(context.Background(), subs)
	require.NotNil(t, out)
	assert.NotEmpty(t, out.RunID)
	assert.False(t, out.Timestamp.IsZero())
	assert.Equal(t, "default", out.Setup.FixtureSet)
	assert.Equal(t, int64(1000), out.Setup.TimeoutMs)
	assert.Equal(t, []EventType{EventRunStart, EventRunComplete}, runEvents)

	require.Len(t, out.Records, 2)
	alice, bob := out.Records[0], out.Records[1]
	assert.InDelta(t, 5.0, alice.Overall, 1e-9)
	assert.Equal(t, "A+", alice.Grade)
	assert.Zero(t, bob.Overall)
	assert.Equal(t, "F", bob.Grade)

	assert.Equal(t, 2, out.Digest.Candidates)
	assert.Equal(t, 1, out.Digest.Resolved)
	assert.Equal(t, 1, out.Digest.Unresolved)
	assert.InDelta(t, 2.5, out.Digest.AvgOverall, 1e-9)
	assert.InDelta(t, 5.0, out.Digest.MaxOverall, 1e-9)
}

func TestDigest(t *testing.T) {
	assert.Equal(t, models.RunDigest{DurationMs: 3}, Digest(nil, 3*time.Millisecond))

	records := []models.ScoreRecord{
		{Candidate: "a", AlgorithmScore: 4, PerformanceScore: 2, Overall: 3},
		{Candidate: "b", AlgorithmScore: 2, PerformanceScore: 4, Overall: 1},
		{Candidate: "c", LoadErrorKind: models.ErrorKindTimeout},
	}
	d := Digest(records, time.Second)
	assert.Equal(t, 3, d.Candidates)
	assert.Equal(t, 2, d.Resolved)
	assert.Equal(t, 1, d.Unresolved)
	assert.InDelta(t, 2.0, d.AvgAlgorithm, 1e-9)
	assert.InDelta(t, 2.0, d.AvgPerformance, 1e-9)
	assert.InDelta(t, 4.0/3, d.AvgOverall, 1e-9)
	assert.InDelta(t, 3.0, d.MaxOverall, 1e-9)
	assert.Equal(t, int64(1000), d.DurationMs)
}

func TestEvaluate_LoaderRulesFromConfig(t *testing.T) {
	root := t.TempDir()
	sub := writeSubmission(t, root, "dave", "def evaluate(records):\n    return len(records)\n")
	inv, _ := mockCandidates(t, map[string]behaviour{"dave": perfect})

	e, err := New(testConfig(), inv)
	require.NoError(t, err)
	rec := e.Evaluate(context.Background(), sub)
	assert.Equal(t, models.ErrorKindNoEntryPoint, rec.LoadErrorKind)

	rules := loader.DefaultRules()
	rules.MinScore = 30
	e, err = New(testConfig(config.WithLoaderRules(rules)), inv)
	require.NoError(t, err)
	rec = e.Evaluate(context.Background(), sub)
	require.True(t, rec.Resolved())
	assert.Equal(t, "evaluate", rec.Binding.Function)
	assert.Equal(t, models.ShapeList, rec.Binding.Shape)
}
