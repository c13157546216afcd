// Package pipeline wires routing, validation, enhancement, retries, and the
// feedback ledger into the request flow: classify, delegate or keep local,
// generate, gate, and record.
package pipeline

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"overseer/internal/criteria"
	"overseer/internal/enhance"
	"overseer/internal/ledger"
	"overseer/internal/routing"
	"overseer/internal/types"
	"overseer/internal/validation"
)

// Options tune the supervisor.
type Options struct {
	// MaxRetries bounds regeneration: maxRetries+1 worker invocations total.
	// Zero means a single attempt; negative picks the default.
	MaxRetries  int
	AutoEnhance bool
	OutputMode  types.OutputMode
	// Concurrency bounds ProcessAll. Zero means 4.
	Concurrency int
}

// Supervisor owns the full request lifecycle. Safe for concurrent Process
// calls; each request works against its own registry snapshot.
type Supervisor struct {
	policy   *routing.Policy
	registry *criteria.Registry
	worker   types.Worker
	enhancer *enhance.Engine
	ledger   *ledger.Ledger
	adjuster *ledger.Adjuster
	opts     Options
	logger   *zap.Logger
}

func NewSupervisor(policy *routing.Policy, registry *criteria.Registry, worker types.Worker,
	led *ledger.Ledger, opts Options, logger *zap.Logger) *Supervisor {
	if logger == nil {
		logger = zap.NewNop()
	}
	// Zero is a valid setting (single attempt, no retries); only an unset
	// negative value falls back to the default.
	if opts.MaxRetries < 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.OutputMode == "" {
		opts.OutputMode = types.OutputText
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	s := &Supervisor{
		policy:   policy,
		registry: registry,
		worker:   worker,
		enhancer: enhance.NewEngine(logger),
		ledger:   led,
		opts:     opts,
		logger:   logger,
	}
	if led != nil {
		s.adjuster = ledger.NewAdjuster(led, registry, logger)
	}
	return s
}

// Process runs one request end to end. Requests that do not warrant
// delegation return immediately with Delegated=false and no artifact; the
// caller handles those locally. A FAILED outcome is a normal result, not an
// error; errors are reserved for cancellation and infrastructure failures.
func (s *Supervisor) Process(ctx context.Context, req types.Request) (*types.PipelineResult, error) {
	result, err := s.process(ctx, req)
	if err != nil {
		return result, err
	}
	s.sweep(ctx)
	return result, nil
}

func (s *Supervisor) process(ctx context.Context, req types.Request) (*types.PipelineResult, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	decision := s.policy.Decide(req.Text, req.Context)
	result := &types.PipelineResult{
		RequestID: req.ID,
		Category:  decision.Category,
		Decision:  decision,
		Delegated: decision.ShouldDelegate,
	}

	if !decision.ShouldDelegate {
		s.logger.Debug("request handled locally",
			zap.String("request_id", req.ID),
			zap.String("category", string(decision.Category)),
			zap.Int("estimated_cost", decision.EstimatedCost))
		result.Disposition = types.DispositionPass
		return result, nil
	}

	// The snapshot freezes criteria for this request; ledger-driven weight
	// nudges only affect later requests.
	engine := validation.NewEngine(s.registry.Snapshot(), s.logger)
	coordinator := NewCoordinator(s.worker, engine, s.enhancer, s.ledger,
		s.opts.MaxRetries, s.opts.AutoEnhance, s.opts.OutputMode, s.logger)

	outcome, err := coordinator.Run(ctx, req, decision.Category)
	result.Attempts = outcome.Attempts
	result.AttemptCount = len(outcome.Attempts)
	result.Disposition = outcome.Disposition
	result.FinalArtifact = outcome.FinalArtifact
	result.AggregateScore = outcome.Aggregate
	result.Issues = outcome.Issues

	if err != nil {
		if errors.Is(err, ErrRetriesExhausted) {
			result.Disposition = types.DispositionFailed
			result.FinalArtifact = ""
			s.logger.Warn("request failed after exhausting retries",
				zap.String("request_id", req.ID),
				zap.Int("attempts", result.AttemptCount))
			return result, nil
		}
		return result, err
	}
	return result, nil
}

// ProcessAll runs a batch with bounded concurrency. The ledger sweep happens
// once, after the whole batch, so every request in the batch scores against
// a stable registry.
func (s *Supervisor) ProcessAll(ctx context.Context, reqs []types.Request) ([]*types.PipelineResult, error) {
	results := make([]*types.PipelineResult, len(reqs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)
	for i, req := range reqs {
		g.Go(func() error {
			r, err := s.process(ctx, req)
			results[i] = r
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	s.sweep(ctx)
	return results, nil
}

// sweep applies ledger-driven weight adjustments between requests. Failures
// never block the pipeline.
func (s *Supervisor) sweep(ctx context.Context) {
	if s.adjuster == nil {
		return
	}
	applied, err := s.adjuster.Sweep(context.WithoutCancel(ctx))
	if err != nil {
		s.logger.Warn("feedback sweep failed", zap.Error(err))
		return
	}
	if applied > 0 {
		s.logger.Info("feedback sweep adjusted criteria", zap.Int("adjustments", applied))
	}
}
