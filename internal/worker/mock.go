package worker

import (
	"context"
	"errors"
	"sync"

	"overseer/internal/types"
)

// MockWorker replays a scripted sequence of outcomes, one per invocation.
// Used by pipeline tests and by the dry-run mode of the CLI.
type MockWorker struct {
	mu      sync.Mutex
	script  []MockTurn
	calls   int
	Prompts []string // prompts received, in order
}

// MockTurn is one scripted invocation outcome.
type MockTurn struct {
	Artifact string
	Err      error
}

func NewMockWorker(turns ...MockTurn) *MockWorker {
	return &MockWorker{script: turns}
}

// Invoke returns the next scripted turn. Once the script is exhausted the
// last turn repeats, so a trailing success makes the mock converge.
func (m *MockWorker) Invoke(ctx context.Context, prompt string, _ types.OutputMode) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Prompts = append(m.Prompts, prompt)
	if len(m.script) == 0 {
		m.calls++
		return "", errors.New("mock worker has no scripted turns")
	}
	idx := m.calls
	if idx >= len(m.script) {
		idx = len(m.script) - 1
	}
	m.calls++
	turn := m.script[idx]
	return turn.Artifact, turn.Err
}

// Calls reports how many times Invoke ran.
func (m *MockWorker) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
