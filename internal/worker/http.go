package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"overseer/internal/types"
)

// maxTransientRetries bounds the in-worker retry loop for 429/5xx responses.
// Quality retries are the coordinator's job; this only smooths transient
// transport noise.
const maxTransientRetries = 2

// HTTPWorker posts prompts to a messages-style completion endpoint.
type HTTPWorker struct {
	endpoint string
	model    string
	apiKey   string
	client   *http.Client
	logger   *zap.Logger
}

type httpRequest struct {
	Model     string        `json:"model"`
	MaxTokens int           `json:"max_tokens"`
	Messages  []httpMessage `json:"messages"`
}

type httpMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type httpResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func NewHTTPWorker(endpoint, model, apiKey string, timeout time.Duration, logger *zap.Logger) *HTTPWorker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPWorker{
		endpoint: endpoint,
		model:    model,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

// Invoke posts the prompt and returns the concatenated text blocks of the
// response. The output mode is advisory here; the endpoint always answers
// JSON and the text is extracted either way.
func (w *HTTPWorker) Invoke(ctx context.Context, prompt string, _ types.OutputMode) (string, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.client.Timeout)
		defer cancel()
	}

	body, err := json.Marshal(httpRequest{
		Model:     w.model,
		MaxTokens: 8192,
		Messages:  []httpMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("encode worker request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= maxTransientRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Duration(1<<uint(attempt-1)) * time.Second):
			}
		}

		text, retryable, err := w.post(ctx, body)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !retryable {
			return "", err
		}
		w.logger.Debug("retrying transient worker failure",
			zap.Int("attempt", attempt+1), zap.Error(err))
	}
	return "", lastErr
}

func (w *HTTPWorker) post(ctx context.Context, body []byte) (text string, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", false, fmt.Errorf("build worker request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if w.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+w.apiKey)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", false, ctx.Err()
		}
		return "", true, fmt.Errorf("worker request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return "", true, fmt.Errorf("read worker response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return "", true, fmt.Errorf("worker endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if resp.StatusCode != http.StatusOK {
		return "", false, fmt.Errorf("worker endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	out, err := parseHTTPResponse(data)
	if err != nil {
		return "", false, err
	}
	return out, false, nil
}

func parseHTTPResponse(data []byte) (string, error) {
	var resp httpResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("decode worker response: %w", err)
	}
	if resp.Error != nil {
		return "", fmt.Errorf("worker reported error: %s (%s)", resp.Error.Message, resp.Error.Type)
	}
	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", errors.New("worker response carried no text blocks")
	}
	return text, nil
}
