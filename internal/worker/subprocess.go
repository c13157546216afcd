// Package worker provides the external generation backends the pipeline
// delegates to: a CLI subprocess, an HTTP endpoint, and a scripted mock for
// tests. All implementations satisfy types.Worker and honor context
// cancellation.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"overseer/internal/types"
)

// DefaultTimeout bounds a single worker invocation when the config does not
// override it.
const DefaultTimeout = 300 * time.Second

// SubprocessWorker shells out to a local CLI, e.g.
// `claude -p <prompt> --output-format json --model <model>`.
type SubprocessWorker struct {
	command string
	args    []string // fixed args placed before the prompt flags
	model   string
	timeout time.Duration
	logger  *zap.Logger
}

// cliResponse is the JSON envelope emitted by the CLI in json output mode.
type cliResponse struct {
	Result string `json:"result"`
	Error  *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func NewSubprocessWorker(command string, args []string, model string, timeout time.Duration, logger *zap.Logger) *SubprocessWorker {
	if command == "" {
		command = "claude"
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubprocessWorker{
		command: command,
		args:    args,
		model:   model,
		timeout: timeout,
		logger:  logger,
	}
}

// Invoke runs the CLI with the prompt and returns the artifact text.
// Cancellation errors keep their context sentinel so the caller can tell a
// cancelled request from a failed one.
func (w *SubprocessWorker) Invoke(ctx context.Context, prompt string, mode types.OutputMode) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	args := w.buildArgs(prompt, mode)
	cmd := exec.CommandContext(ctx, w.command, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	w.logger.Debug("subprocess worker finished",
		zap.String("command", w.command),
		zap.Duration("elapsed", time.Since(start)),
		zap.Error(err))

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("worker timed out after %v: %w", w.timeout, ctx.Err())
		}
		if errors.Is(ctx.Err(), context.Canceled) {
			return "", fmt.Errorf("worker invocation cancelled: %w", ctx.Err())
		}
		return "", fmt.Errorf("worker execution failed: %w (stderr: %s)", err, strings.TrimSpace(stderr.String()))
	}

	if mode == types.OutputJSON {
		return parseCLIResponse(stdout.Bytes())
	}
	out := strings.TrimSpace(stdout.String())
	if out == "" {
		return "", errors.New("worker produced empty output")
	}
	return out, nil
}

func (w *SubprocessWorker) buildArgs(prompt string, mode types.OutputMode) []string {
	args := append([]string(nil), w.args...)
	args = append(args, "-p", prompt)
	if mode == types.OutputJSON {
		args = append(args, "--output-format", "json")
	}
	if w.model != "" {
		args = append(args, "--model", w.model)
	}
	return args
}

// parseCLIResponse extracts the artifact text from the CLI's JSON envelope.
func parseCLIResponse(data []byte) (string, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return "", errors.New("empty response from worker")
	}
	var resp cliResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("decode worker response: %w", err)
	}
	if resp.Error != nil {
		return "", fmt.Errorf("worker reported error: %s (%s)", resp.Error.Message, resp.Error.Type)
	}
	if strings.TrimSpace(resp.Result) == "" {
		return "", errors.New("worker response carried no result text")
	}
	return resp.Result, nil
}
