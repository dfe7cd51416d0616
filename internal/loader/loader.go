// Package loader resolves the rating entry point of a submission. Discovery is
// static (tree-sitter); candidate code only runs if an import probe is
// configured, and then in a separate process.
package loader

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spboyer/rmbsgrade/internal/discovery"
	"github.com/spboyer/rmbsgrade/internal/models"
)

const (
	maxSourceBytes  = 2 << 20
	maxAlternatives = 5
)

// ErrNoEntryPoint is wrapped by a loader Error of kind no_entry_point.
var ErrNoEntryPoint = errors.New("no entry point found")

// Error is a resolution failure. It is a candidate fault, not a harness
// error: the candidate still gets a ScoreRecord.
type Error struct {
	Kind models.ErrorKind
	Root string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Root, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Prober imports a bound module in isolation and reports import errors.
type Prober interface {
	Probe(ctx context.Context, binding *models.CandidateBinding) error
}

// Loader finds and ranks entry points.
type Loader struct {
	rules  Rules
	prober Prober
}

// Option configures a Loader.
type Option func(*Loader)

// WithRules replaces the default ranking rules.
func WithRules(r Rules) Option {
	return func(l *Loader) { l.rules = r }
}

// WithImportProbe makes Resolve verify that the selected module imports,
// falling back to the best candidate in another file when it does not.
func WithImportProbe(p Prober) Option {
	return func(l *Loader) { l.prober = p }
}

// New creates a Loader.
func New(opts ...Option) *Loader {
	l := &Loader{rules: DefaultRules()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Candidates returns every plausible entry point under root, best first.
// Ties are broken by relative file path, then line, so the order is
// deterministic.
func (l *Loader) Candidates(ctx context.Context, root string) ([]models.EntryPoint, error) {
	files, err := discovery.PythonSources(root)
	if err != nil {
		return nil, err
	}

	var eps []models.EntryPoint
	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		content, err := readSource(filepath.Join(root, filepath.FromSlash(rel)))
		if err != nil {
			slog.Debug("skipping source file", "file", rel, "error", err)
			continue
		}
		defs, err := parseDefinitions(ctx, content)
		if err != nil {
			slog.Debug("skipping unparsable file", "file", rel, "error", err)
			continue
		}
		for _, def := range defs {
			score, strategy, shape, ok := l.rules.rank(def)
			if !ok {
				continue
			}
			eps = append(eps, models.EntryPoint{
				File:      rel,
				Module:    moduleName(rel),
				Function:  def.function,
				Class:     def.class,
				Line:      def.line,
				Param:     def.positional[0],
				Shape:     shape,
				Strategy:  strategy,
				RankScore: score,
			})
		}
	}

	slices.SortStableFunc(eps, func(a, b models.EntryPoint) int {
		return cmp.Or(
			cmp.Compare(b.RankScore, a.RankScore),
			strings.Compare(a.File, b.File),
			cmp.Compare(a.Line, b.Line),
		)
	})
	return eps, nil
}

// Resolve selects the entry point of the submission at root.
func (l *Loader) Resolve(ctx context.Context, root string) (*models.CandidateBinding, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, &Error{Kind: models.ErrorKindNoEntryPoint, Root: root, Err: err}
	}

	eps, err := l.Candidates(ctx, absRoot)
	if err != nil {
		return nil, &Error{Kind: models.ErrorKindNoEntryPoint, Root: absRoot, Err: fmt.Errorf("%w: %v", ErrNoEntryPoint, err)}
	}
	if len(eps) == 0 {
		return nil, &Error{Kind: models.ErrorKindNoEntryPoint, Root: absRoot, Err: ErrNoEntryPoint}
	}

	failedFiles := map[string]bool{}
	var firstErr error
	for i, ep := range eps {
		if failedFiles[ep.File] {
			continue
		}
		binding := bind(absRoot, eps, i)
		if l.prober == nil {
			return binding, nil
		}
		probeErr := l.prober.Probe(ctx, binding)
		if probeErr == nil {
			return binding, nil
		}
		if ctx.Err() != nil {
			return nil, &Error{Kind: models.ErrorKindImportFailure, Root: absRoot, Err: ctx.Err()}
		}
		slog.Debug("import probe failed", "root", absRoot, "entry_point", ep.Qualified(), "error", probeErr)
		if firstErr == nil {
			firstErr = probeErr
		}
		failedFiles[ep.File] = true
	}
	return nil, &Error{Kind: models.ErrorKindImportFailure, Root: absRoot, Err: firstErr}
}

func bind(root string, eps []models.EntryPoint, chosen int) *models.CandidateBinding {
	b := &models.CandidateBinding{EntryPoint: eps[chosen], Root: root}
	for i, ep := range eps {
		if i == chosen {
			continue
		}
		if len(b.Alternatives) == maxAlternatives {
			break
		}
		b.Alternatives = append(b.Alternatives, ep)
	}
	return b
}

func readSource(p string) ([]byte, error) {
	info, err := os.Stat(p)
	if err != nil {
		return nil, err
	}
	if info.Size() > maxSourceBytes {
		return nil, fmt.Errorf("file is %d bytes, limit is %d", info.Size(), maxSourceBytes)
	}
	return os.ReadFile(p)
}

// moduleName converts a slash-separated relative path to a dotted module name.
func moduleName(rel string) string {
	rel = strings.TrimSuffix(rel, ".py")
	if path.Base(rel) == "__init__" && path.Dir(rel) != "." {
		rel = path.Dir(rel)
	}
	return strings.ReplaceAll(rel, "/", ".")
}
