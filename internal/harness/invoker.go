package harness

import (
	"context"
	"time"

	"github.com/spboyer/rmbsgrade/internal/loader"
	"github.com/spboyer/rmbsgrade/internal/models"
	"github.com/spboyer/rmbsgrade/internal/portfolio"
	"github.com/spboyer/rmbsgrade/internal/telemetry"
)

//go:generate mockgen -source=invoker.go -destination=mock_invoker_test.go -package=harness

// Invoker runs candidate code in isolation. *sandbox.Executor implements it.
type Invoker interface {
	Execute(ctx context.Context, b *models.CandidateBinding, p portfolio.Portfolio, timeout time.Duration) models.ExecutionResult
	Probe(ctx context.Context, b *models.CandidateBinding, timeout time.Duration) error
}

// instrumented records every invocation made through it.
type instrumented struct {
	next    Invoker
	metrics *telemetry.Metrics
	phase   string
}

func (i instrumented) Execute(ctx context.Context, b *models.CandidateBinding, p portfolio.Portfolio, timeout time.Duration) models.ExecutionResult {
	res := i.next.Execute(ctx, b, p, timeout)
	i.metrics.ObserveInvocation(i.phase, res)
	return res
}

// NewProber adapts inv to the loader's import probe, bounding each probe by timeout.
func NewProber(inv Invoker, timeout time.Duration) loader.Prober {
	return prober{next: inv, timeout: timeout}
}

type prober struct {
	next    Invoker
	timeout time.Duration
}

func (p prober) Probe(ctx context.Context, b *models.CandidateBinding) error {
	return p.next.Probe(ctx, b, p.timeout)
}
