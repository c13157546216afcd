package types

import (
	"context"
)

// OutputMode selects the wire format requested from the worker.
type OutputMode string

const (
	OutputText OutputMode = "text"
	OutputJSON OutputMode = "json"
)

// Worker is the external generation collaborator. It is invoked with a
// prompt and returns the raw artifact text. A non-nil error covers both
// execution failures and timeouts; callers treat either as a failed attempt.
// Implementations must honor context cancellation and deadlines.
type Worker interface {
	Invoke(ctx context.Context, prompt string, mode OutputMode) (string, error)
}
