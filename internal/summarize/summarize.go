// Package summarize merges a group of near-duplicate knowledge items into
// one consolidated piece of content via the Anthropic API, the same Claude
// Haiku call BeadsLog uses to compact closed issues down to a short
// summary before archiving them.
package summarize

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"os"
	"strings"
	"text/template"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	defaultModel   = "claude-3-5-haiku-20241022"
	maxRetries     = 3
	initialBackoff = 1 * time.Second
)

// ErrAPIKeyRequired is returned when no API key is available.
var ErrAPIKeyRequired = errors.New("summarize: ANTHROPIC_API_KEY required")

// Merger reduces several near-duplicate knowledge contents into one. The
// consolidation sweep falls back to keeping the longest original content
// when no Merger is configured, so this is entirely optional.
type Merger interface {
	Merge(ctx context.Context, contents []string) (string, error)
}

// Claude merges duplicate knowledge contents via a single Messages.New
// call, retried with exponential backoff on transient failures.
type Claude struct {
	client         anthropic.Client
	model          anthropic.Model
	tmpl           *template.Template
	maxRetries     int
	initialBackoff time.Duration
}

// New builds a Claude merger. Env var ANTHROPIC_API_KEY takes precedence
// over an explicit apiKey argument.
func New(apiKey string) (*Claude, error) {
	if envKey := os.Getenv("ANTHROPIC_API_KEY"); envKey != "" {
		apiKey = envKey
	}
	if apiKey == "" {
		return nil, ErrAPIKeyRequired
	}

	tmpl, err := template.New("merge").Parse(mergePromptTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse merge template: %w", err)
	}

	return &Claude{
		client:         anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:          defaultModel,
		tmpl:           tmpl,
		maxRetries:     maxRetries,
		initialBackoff: initialBackoff,
	}, nil
}

// Merge asks Claude to fold the given near-duplicate contents into one
// concise statement that preserves every distinct fact across them.
func (c *Claude) Merge(ctx context.Context, contents []string) (string, error) {
	if len(contents) == 0 {
		return "", fmt.Errorf("merge: no contents given")
	}
	if len(contents) == 1 {
		return contents[0], nil
	}

	labeled := make([]string, len(contents))
	for i, content := range contents {
		labeled[i] = fmt.Sprintf("Note %d: %s", i+1, content)
	}

	var prompt strings.Builder
	if err := c.tmpl.Execute(&prompt, mergeData{Items: labeled}); err != nil {
		return "", fmt.Errorf("render merge prompt: %w", err)
	}
	return c.callWithRetry(ctx, prompt.String())
}

func (c *Claude) callWithRetry(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	params := anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: 256,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			wait := c.initialBackoff * time.Duration(math.Pow(2, float64(attempt-1)))
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		message, err := c.client.Messages.New(ctx, params)
		if err == nil {
			if len(message.Content) == 0 {
				return "", fmt.Errorf("merge response had no content blocks")
			}
			block := message.Content[0]
			if block.Type != "text" {
				return "", fmt.Errorf("merge response block was %s, not text", block.Type)
			}
			return strings.TrimSpace(block.Text), nil
		}

		lastErr = err
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if !isRetryable(err) {
			return "", fmt.Errorf("non-retryable merge error: %w", err)
		}
	}
	return "", fmt.Errorf("merge failed after %d retries: %w", c.maxRetries+1, lastErr)
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	return false
}

type mergeData struct {
	Items []string
}

const mergePromptTemplate = `You are merging several near-duplicate notes recorded about the same
project into a single, concise statement. Preserve every distinct fact;
drop only redundant repetition. Reply with the merged statement alone, no
preamble.

{{range .Items}}{{.}}
{{end}}`
