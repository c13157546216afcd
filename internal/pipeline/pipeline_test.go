package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/goleak"

	"overseer/internal/criteria"
	"overseer/internal/ledger"
	"overseer/internal/routing"
	"overseer/internal/types"
	"overseer/internal/worker"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const researchText = "Survey recent papers on approximate nearest neighbor search"

// Scores well above the research pass threshold: full coverage, references,
// resolved citations, clean structure.
const passingArtifact = `# Approximate Nearest Neighbor Search: A Survey

Approximate nearest neighbor search trades exact results for large speedups
and has been studied extensively across the information retrieval and
database communities over the last decade, with many papers published.

## Graph Methods

Graph-based indexes such as HNSW [1] connect each vector to a small number
of neighbors and search by greedy traversal, which gives strong recall at
low latency for most practical workloads and datasets.

## Quantization Methods

Product quantization [2] compresses vectors into compact codes so that
distance computations run against the compressed representation, cutting
memory cost by an order of magnitude while keeping recall acceptable.

## References

[1] Malkov and Yashunin (2018). Efficient and robust approximate nearest neighbor search using hierarchical navigable small world graphs.
[2] Jegou, Douze and Schmid (2011). Product quantization for nearest neighbor search.
`

// Scores below the research enhance threshold: no coverage, no structure,
// no references. Not critical, so the gate says REGENERATE.
const rejectedArtifact = `Nothing to report about this particular topic at this time. More investigation would be required before anything useful can be written down here.`

func newSupervisor(t *testing.T, w types.Worker, opts Options) (*Supervisor, *ledger.Ledger) {
	t.Helper()
	led, err := ledger.Open(filepath.Join(t.TempDir(), "ledger.db"), nil)
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	t.Cleanup(func() { led.Close() })

	registry, err := criteria.NewRegistry()
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	policy := routing.NewPolicy(nil, nil)
	return NewSupervisor(policy, registry, w, led, opts, nil), led
}

func researchRequest(id string) types.Request {
	// strong_match plus large_context: two weak factors, so the request
	// delegates regardless of cost.
	return types.Request{
		ID:      id,
		Text:    researchText,
		Context: map[string]string{"notes": "prior reading list from the last review cycle"},
	}
}

func TestProcessLocalRequest(t *testing.T) {
	mock := worker.NewMockWorker(worker.MockTurn{Artifact: passingArtifact})
	s, _ := newSupervisor(t, mock, Options{})

	result, err := s.Process(context.Background(), types.Request{Text: "what is 2+2"})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.Delegated {
		t.Error("trivial request must not delegate")
	}
	if result.AttemptCount != 0 || mock.Calls() != 0 {
		t.Errorf("local request must not invoke the worker (attempts=%d calls=%d)",
			result.AttemptCount, mock.Calls())
	}
}

func TestProcessPassFirstAttempt(t *testing.T) {
	mock := worker.NewMockWorker(worker.MockTurn{Artifact: passingArtifact})
	s, led := newSupervisor(t, mock, Options{})
	ctx := context.Background()

	result, err := s.Process(ctx, researchRequest("req-pass"))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !result.Delegated {
		t.Fatalf("expected delegation, factors: %v", result.Decision.TriggeredFactors)
	}
	if result.Disposition != types.DispositionPass {
		t.Fatalf("disposition = %s, issues: %+v", result.Disposition, result.Issues)
	}
	if result.AttemptCount != 1 || result.FinalArtifact == "" {
		t.Errorf("attempts=%d artifact_len=%d", result.AttemptCount, len(result.FinalArtifact))
	}

	entries, err := led.ForRequest(ctx, "req-pass")
	if err != nil {
		t.Fatalf("ForRequest: %v", err)
	}
	if len(entries) != 1 || entries[0].Disposition != types.DispositionPass {
		t.Errorf("ledger entries: %+v", entries)
	}
}

// Two worker failures consume retries; the third attempt passes.
func TestProcessWorkerFailuresThenPass(t *testing.T) {
	mock := worker.NewMockWorker(
		worker.MockTurn{Err: errors.New("connection reset")},
		worker.MockTurn{Err: errors.New("connection reset")},
		worker.MockTurn{Artifact: passingArtifact},
	)
	s, led := newSupervisor(t, mock, Options{MaxRetries: DefaultMaxRetries})
	ctx := context.Background()

	result, err := s.Process(ctx, researchRequest("req-flaky"))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.Disposition != types.DispositionPass {
		t.Fatalf("disposition = %s", result.Disposition)
	}
	if result.AttemptCount != 3 || mock.Calls() != 3 {
		t.Errorf("attempts=%d calls=%d, want 3/3", result.AttemptCount, mock.Calls())
	}

	entries, err := led.ForRequest(ctx, "req-flaky")
	if err != nil {
		t.Fatalf("ForRequest: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("ledger entries = %d, want 3", len(entries))
	}
	if entries[0].AttemptKind != types.AttemptWorkerFailure || entries[1].AttemptKind != types.AttemptWorkerFailure {
		t.Errorf("first two entries should be worker failures: %+v", entries[:2])
	}
	if entries[2].AttemptKind != types.AttemptQuality {
		t.Errorf("final entry should be quality-scored: %+v", entries[2])
	}
}

func TestProcessExhaustsRetries(t *testing.T) {
	mock := worker.NewMockWorker(worker.MockTurn{Artifact: rejectedArtifact})
	s, _ := newSupervisor(t, mock, Options{MaxRetries: DefaultMaxRetries})

	result, err := s.Process(context.Background(), researchRequest("req-bad"))
	if err != nil {
		t.Fatalf("exhaustion is a result, not an error: %v", err)
	}
	if result.Disposition != types.DispositionFailed {
		t.Fatalf("disposition = %s, score %.3f", result.Disposition, result.AggregateScore)
	}
	if result.FinalArtifact != "" {
		t.Error("FAILED results must not carry an artifact")
	}
	if mock.Calls() != DefaultMaxRetries+1 {
		t.Errorf("worker invoked %d times, bound is %d", mock.Calls(), DefaultMaxRetries+1)
	}

	// Retry prompts must carry the full rejection report.
	if len(mock.Prompts) < 2 {
		t.Fatalf("prompts = %d", len(mock.Prompts))
	}
	retry := mock.Prompts[1]
	if !strings.Contains(retry, "Previous Attempt 1 Rejected") ||
		!strings.Contains(retry, "Aggregate score") ||
		!strings.Contains(retry, "failing:") {
		t.Errorf("retry prompt missing the validation report:\n%s", retry)
	}
}

// max_retries: 0 means exactly one worker invocation, no regeneration.
func TestProcessMaxRetriesZeroSingleAttempt(t *testing.T) {
	mock := worker.NewMockWorker(worker.MockTurn{Artifact: rejectedArtifact})
	s, _ := newSupervisor(t, mock, Options{MaxRetries: 0})

	result, err := s.Process(context.Background(), researchRequest("req-single"))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if mock.Calls() != 1 {
		t.Fatalf("worker invoked %d times, want exactly 1", mock.Calls())
	}
	if result.Disposition != types.DispositionFailed || result.AttemptCount != 1 {
		t.Errorf("disposition=%s attempts=%d, want FAILED after one attempt",
			result.Disposition, result.AttemptCount)
	}
}

// With auto-enhance off, an enhance-band artifact ships exactly as the
// worker produced it, still tagged ENHANCE with its issues.
func TestProcessEnhanceDisabledShipsUnrepaired(t *testing.T) {
	artifact := strings.Split(passingArtifact, "## References")[0]
	mock := worker.NewMockWorker(worker.MockTurn{Artifact: artifact})
	s, _ := newSupervisor(t, mock, Options{AutoEnhance: false})

	result, err := s.Process(context.Background(), researchRequest("req-noenh"))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.Disposition != types.DispositionEnhance {
		t.Fatalf("disposition = %s, score %.3f", result.Disposition, result.AggregateScore)
	}
	if result.FinalArtifact != artifact {
		t.Error("artifact must ship unmodified when auto-enhance is off")
	}
	if strings.Contains(result.FinalArtifact, "## References") {
		t.Error("no repair may run with auto-enhance off")
	}
	if mock.Calls() != 1 || len(result.Issues) == 0 {
		t.Errorf("calls=%d issues=%d, want single attempt with surfaced issues",
			mock.Calls(), len(result.Issues))
	}
}

// An enhance-band artifact whose failures have no mechanical repair ships as
// terminal ENHANCE with its residual issues. The loop never re-enters.
func TestProcessEnhanceIsTerminal(t *testing.T) {
	artifact := `Debugging notes for the crash in the parser module, explained in detail below.

The root cause is a nil map access inside the parser state table. The crash
happens because the lookup table is never initialized when the configuration
omits the grammar path, so the first insert hits a nil map and panics.`

	mock := worker.NewMockWorker(worker.MockTurn{Artifact: artifact})
	s, _ := newSupervisor(t, mock, Options{AutoEnhance: true})

	req := types.Request{
		ID:      "req-debug",
		Text:    "Debug the crash in the parser module and explain the failure in detail",
		Context: map[string]string{"trace": "panic: assignment to entry in nil map"},
	}
	result, err := s.Process(context.Background(), req)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.Category != types.CategoryDebug {
		t.Fatalf("category = %s", result.Category)
	}
	if result.Disposition != types.DispositionEnhance {
		t.Fatalf("disposition = %s, score %.3f, issues %+v",
			result.Disposition, result.AggregateScore, result.Issues)
	}
	if mock.Calls() != 1 {
		t.Errorf("enhance must not trigger another worker invocation, calls=%d", mock.Calls())
	}
	if result.FinalArtifact == "" || len(result.Issues) == 0 {
		t.Error("terminal ENHANCE must carry the artifact and its residual issues")
	}
}

// An enhance-band artifact whose only failures are repairable crosses the
// pass threshold after one enhancement pass.
func TestProcessEnhancePromotesToPass(t *testing.T) {
	artifact := strings.Split(passingArtifact, "## References")[0]
	mock := worker.NewMockWorker(worker.MockTurn{Artifact: artifact})
	s, _ := newSupervisor(t, mock, Options{AutoEnhance: true})

	result, err := s.Process(context.Background(), researchRequest("req-enh"))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.Disposition != types.DispositionPass {
		t.Fatalf("disposition = %s, score %.3f, issues %+v",
			result.Disposition, result.AggregateScore, result.Issues)
	}
	if mock.Calls() != 1 {
		t.Errorf("enhancement promoted without retry, but calls=%d", mock.Calls())
	}
	if !strings.Contains(result.FinalArtifact, "## References") {
		t.Error("repaired artifact should carry the inserted References section")
	}
}

func TestProcessCancellationRecorded(t *testing.T) {
	mock := worker.NewMockWorker(worker.MockTurn{Artifact: passingArtifact})
	s, led := newSupervisor(t, mock, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := s.Process(ctx, researchRequest("req-cancel"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(result.Attempts) != 1 || result.Attempts[0].Kind != types.AttemptCancelled {
		t.Fatalf("attempts = %+v", result.Attempts)
	}

	entries, lerr := led.ForRequest(context.Background(), "req-cancel")
	if lerr != nil {
		t.Fatalf("ForRequest: %v", lerr)
	}
	if len(entries) != 1 || entries[0].AttemptKind != types.AttemptCancelled {
		t.Errorf("cancellation not recorded: %+v", entries)
	}
}

func TestProcessAllKeepsOrder(t *testing.T) {
	mock := worker.NewMockWorker(worker.MockTurn{Artifact: passingArtifact})
	s, _ := newSupervisor(t, mock, Options{Concurrency: 2})

	reqs := []types.Request{
		{ID: "batch-0", Text: "what is 2+2"},
		researchRequest("batch-1"),
	}
	results, err := s.ProcessAll(context.Background(), reqs)
	if err != nil {
		t.Fatalf("ProcessAll: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d", len(results))
	}
	if results[0].RequestID != "batch-0" || results[0].Delegated {
		t.Errorf("results[0] = %+v", results[0])
	}
	if results[1].RequestID != "batch-1" || results[1].Disposition != types.DispositionPass {
		t.Errorf("results[1] = %+v", results[1])
	}
}

func TestBuildPromptIncludesContextInStableOrder(t *testing.T) {
	req := types.Request{
		Text:    "summarize the incident",
		Context: map[string]string{"b-log": "two", "a-log": "one"},
	}
	p1 := BuildPrompt(req, types.CategoryReport)
	p2 := BuildPrompt(req, types.CategoryReport)
	if p1 != p2 {
		t.Error("prompt construction must be deterministic")
	}
	if strings.Index(p1, "a-log") > strings.Index(p1, "b-log") {
		t.Error("context blobs must render in sorted name order")
	}
}
