package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// HTTPClient embeds text via a local Ollama-shaped /api/embeddings endpoint.
// One call is issued per input text since the Ollama embeddings API takes a
// single prompt per request.
type HTTPClient struct {
	url    string
	model  string
	client *http.Client
	log    zerolog.Logger
}

// NewHTTPClient builds an embedder against the given endpoint and model
// name. url is typically config.Config.EmbeddingURL and model is
// config.Config.EmbeddingModel.
func NewHTTPClient(url, model string, log zerolog.Logger) *HTTPClient {
	return &HTTPClient{
		url:   url,
		model: model,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log,
	}
}

// Available reports true whenever a model name is configured.
func (c *HTTPClient) Available() bool { return c.model != "" }

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed requests one embedding per text, sequentially, retrying each
// request on transient failure with exponential backoff.
func (c *HTTPClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := c.embedOne(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed text %d of %d: %w", i+1, len(texts), err)
		}
		out[i] = vec
	}
	return out, nil
}

func (c *HTTPClient) embedOne(ctx context.Context, text string) ([]float32, error) {
	var result []float32

	operation := func() error {
		vec, err := c.doRequest(ctx, text)
		if err != nil {
			if !isRetryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		result = vec
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(
		backoff.NewExponentialBackOff(), 5,
	), ctx)

	err := backoff.RetryNotify(operation, policy, func(err error, wait time.Duration) {
		c.log.Warn().Err(err).Dur("wait", wait).Msg("embedding request failed, retrying")
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *HTTPClient) doRequest(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embedRequest{Model: c.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, &statusError{code: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, backoff.Permanent(fmt.Errorf("embedding endpoint returned %d: %s", resp.StatusCode, payload))
	}

	var parsed embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("decode embed response: %w", err))
	}
	return parsed.Embedding, nil
}

// statusError marks an HTTP response status worth retrying (429 or 5xx).
type statusError struct{ code int }

func (e *statusError) Error() string { return fmt.Sprintf("embedding endpoint returned %d", e.code) }

// isRetryable decides whether a failed embedding request is worth retrying:
// context cancellation never is, network timeouts and 429/5xx status codes
// are, everything else is treated as permanent.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	var se *statusError
	if errors.As(err, &se) {
		return true
	}
	return false
}
