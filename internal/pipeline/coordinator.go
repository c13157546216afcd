package pipeline

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"overseer/internal/enhance"
	"overseer/internal/ledger"
	"overseer/internal/types"
	"overseer/internal/validation"
)

// =============================================================================
// RETRY COORDINATOR
// =============================================================================

// DefaultMaxRetries allows two retries after the first attempt, three worker
// invocations total.
const DefaultMaxRetries = 2

// ErrRetriesExhausted is returned when every allowed attempt ended in
// REGENERATE or a worker failure.
var ErrRetriesExhausted = errors.New("retries exhausted without a passing artifact")

// Coordinator drives the generate / validate / gate loop for one delegated
// request. One coordinator serves one request; the validation engine it
// holds is bound to a single registry snapshot for the whole loop.
type Coordinator struct {
	worker      types.Worker
	engine      *validation.Engine
	enhancer    *enhance.Engine
	ledger      *ledger.Ledger
	maxRetries  int
	autoEnhance bool
	outputMode  types.OutputMode
	logger      *zap.Logger
}

// Outcome is the coordinator's terminal state for a request.
type Outcome struct {
	Attempts      []types.Attempt
	FinalArtifact string
	Disposition   types.Disposition
	Aggregate     float64
	Issues        []types.Issue
}

func NewCoordinator(worker types.Worker, engine *validation.Engine, enhancer *enhance.Engine,
	led *ledger.Ledger, maxRetries int, autoEnhance bool, mode types.OutputMode, logger *zap.Logger) *Coordinator {
	if maxRetries < 0 {
		maxRetries = DefaultMaxRetries
	}
	if mode == "" {
		mode = types.OutputText
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		worker:      worker,
		engine:      engine,
		enhancer:    enhancer,
		ledger:      led,
		maxRetries:  maxRetries,
		autoEnhance: autoEnhance,
		outputMode:  mode,
		logger:      logger,
	}
}

// Run executes at most maxRetries+1 worker invocations and returns the
// terminal outcome. PASS and ENHANCE outcomes carry an artifact; FAILED
// carries only the attempt history alongside ErrRetriesExhausted.
// Cancellation is honored at every phase boundary and recorded as its own
// attempt before returning.
func (c *Coordinator) Run(ctx context.Context, req types.Request, category types.TaskCategory) (*Outcome, error) {
	out := &Outcome{Disposition: types.DispositionFailed}
	var lastResult *types.ValidationResult

	for attempt := 1; attempt <= c.maxRetries+1; attempt++ {
		if err := ctx.Err(); err != nil {
			return out, c.recordCancelled(ctx, req, category, out, attempt, err)
		}

		prompt := BuildPrompt(req, category)
		if attempt > 1 {
			prompt = BuildRetryPrompt(req, category, attempt-1, lastResult)
		}

		artifact, err := c.worker.Invoke(ctx, prompt, c.outputMode)
		if err != nil {
			if ctx.Err() != nil {
				return out, c.recordCancelled(ctx, req, category, out, attempt, err)
			}
			c.recordAttempt(ctx, req, category, out, types.Attempt{
				Index:       attempt,
				Disposition: types.DispositionRegenerate,
				Kind:        types.AttemptWorkerFailure,
				ErrorDetail: err.Error(),
			}, nil)
			lastResult = nil
			continue
		}

		if err := ctx.Err(); err != nil {
			return out, c.recordCancelled(ctx, req, category, out, attempt, err)
		}

		result := c.engine.Validate(artifact, category, req)
		thresholds := c.engine.Thresholds(category)
		disposition := validation.Decide(result, thresholds)
		lastResult = result

		c.logger.Debug("attempt gated",
			zap.String("request_id", req.ID),
			zap.Int("attempt", attempt),
			zap.Float64("aggregate", result.Aggregate),
			zap.String("disposition", string(disposition)))

		switch disposition {
		case types.DispositionPass:
			c.recordAttempt(ctx, req, category, out, types.Attempt{
				Index:       attempt,
				Artifact:    artifact,
				Result:      result,
				Disposition: disposition,
				Kind:        types.AttemptQuality,
			}, result)
			out.FinalArtifact = artifact
			out.Disposition = types.DispositionPass
			out.Aggregate = result.Aggregate
			out.Issues = result.Issues
			return out, nil

		case types.DispositionEnhance:
			final, finalResult := c.enhanceOnce(artifact, result, category, req)
			finalDisposition := types.DispositionEnhance
			if validation.Decide(finalResult, thresholds) == types.DispositionPass {
				finalDisposition = types.DispositionPass
			}
			c.recordAttempt(ctx, req, category, out, types.Attempt{
				Index:       attempt,
				Artifact:    final,
				Result:      finalResult,
				Disposition: finalDisposition,
				Kind:        types.AttemptQuality,
			}, finalResult)
			out.FinalArtifact = final
			out.Disposition = finalDisposition
			out.Aggregate = finalResult.Aggregate
			out.Issues = finalResult.Issues
			return out, nil

		default: // REGENERATE
			c.recordAttempt(ctx, req, category, out, types.Attempt{
				Index:       attempt,
				Artifact:    artifact,
				Result:      result,
				Disposition: disposition,
				Kind:        types.AttemptQuality,
			}, result)
		}
	}

	if lastResult != nil {
		out.Aggregate = lastResult.Aggregate
		out.Issues = lastResult.Issues
	}
	return out, fmt.Errorf("request %s: %w", req.ID, ErrRetriesExhausted)
}

// enhanceOnce applies a single enhancement pass and re-validates. The result
// is terminal either way: an enhanced artifact that still misses the pass
// threshold ships as ENHANCE with its residual issues, it never re-enters
// the retry loop.
func (c *Coordinator) enhanceOnce(artifact string, result *types.ValidationResult,
	category types.TaskCategory, req types.Request) (string, *types.ValidationResult) {
	if !c.autoEnhance || c.enhancer == nil {
		return artifact, result
	}
	repaired := c.enhancer.Enhance(artifact, result)
	if !repaired.Changed {
		return artifact, result
	}
	revalidated := c.engine.Validate(repaired.Artifact, category, req)
	c.logger.Debug("enhanced artifact revalidated",
		zap.String("request_id", req.ID),
		zap.Float64("before", result.Aggregate),
		zap.Float64("after", revalidated.Aggregate),
		zap.Strings("applied", repaired.Applied),
		zap.Strings("residual", repaired.Residual))
	return repaired.Artifact, revalidated
}

func (c *Coordinator) recordAttempt(ctx context.Context, req types.Request, category types.TaskCategory,
	out *Outcome, attempt types.Attempt, result *types.ValidationResult) {
	out.Attempts = append(out.Attempts, attempt)

	if c.ledger == nil {
		return
	}
	entry := &types.LedgerEntry{
		RequestID:   req.ID,
		Attempt:     attempt.Index,
		Category:    category,
		Disposition: attempt.Disposition,
		Kind:        types.EntryAttempt,
		AttemptKind: attempt.Kind,
		Detail:      attempt.ErrorDetail,
	}
	if result != nil {
		entry.Score = result.Aggregate
		entry.Issues = result.FailingNames()
	}
	if err := c.ledger.Record(ctx, entry); err != nil {
		c.logger.Warn("ledger append failed", zap.String("request_id", req.ID), zap.Error(err))
	}
}

// recordCancelled appends the cancellation marker and returns the context
// error. Recording uses a detached context so the append itself is not
// cancelled mid-write.
func (c *Coordinator) recordCancelled(ctx context.Context, req types.Request, category types.TaskCategory,
	out *Outcome, attempt int, cause error) error {
	out.Disposition = types.DispositionFailed
	c.recordAttempt(context.WithoutCancel(ctx), req, category, out, types.Attempt{
		Index:       attempt,
		Disposition: types.DispositionFailed,
		Kind:        types.AttemptCancelled,
		ErrorDetail: cause.Error(),
	}, nil)
	return ctx.Err()
}
