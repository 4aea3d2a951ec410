// Package client talks to the external text-generation service.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"

	"parity/internal/assistant"
	dErrors "parity/pkg/domain-errors"
	"parity/pkg/platform/circuit"
)

const (
	defaultTimeout  = 15 * time.Second
	defaultAttempts = 3
	defaultDelay    = 200 * time.Millisecond
	maxResponseSize = 1 << 20
)

// Client posts prompts to the generation endpoint. Network failures and 5xx
// or 429 answers are retried; other 4xx answers are not. Requests that still
// fail after retries trip the breaker, which then rejects calls until its
// cooldown elapses.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	attempts   uint
	delay      time.Duration
	breaker    *circuit.Breaker
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

func WithAttempts(n uint) Option {
	return func(c *Client) {
		if n > 0 {
			c.attempts = n
		}
	}
}

func WithDelay(d time.Duration) Option {
	return func(c *Client) { c.delay = d }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(c *Client) {
		if b != nil {
			c.breaker = b
		}
	}
}

func New(endpoint, apiKey string, opts ...Option) (*Client, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, errors.New("assistant endpoint is required")
	}
	c := &Client{
		endpoint:   endpoint,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: defaultTimeout},
		attempts:   defaultAttempts,
		delay:      defaultDelay,
		breaker:    circuit.New("assistant-generator"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type generateResponse struct {
	Answer string `json:"answer"`
}

// statusError is a non-2xx answer from the service.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("generation service returned %d: %s", e.status, e.body)
}

// Generate sends the prompt and returns the answer text verbatim.
func (c *Client) Generate(ctx context.Context, prompt assistant.Prompt) (string, error) {
	if !c.breaker.Allow() {
		return "", dErrors.New(dErrors.CodeUpstreamUnavailable, "generation service unavailable")
	}
	body, err := json.Marshal(prompt)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode prompt")
	}

	var answer string
	err = retry.Do(
		func() error {
			var err error
			answer, err = c.post(ctx, body)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(c.delay),
		retry.LastErrorOnly(true),
		retry.RetryIf(retryable),
		retry.OnRetry(func(n uint, err error) {
			if c.logger != nil {
				c.logger.WarnContext(ctx, "retrying generation request",
					"attempt", n+1,
					"error", err,
				)
			}
		}),
	)
	if err != nil {
		var se *statusError
		if errors.As(err, &se) && !retryable(err) {
			return "", dErrors.Wrap(err, dErrors.CodeInternal, "generation service rejected the request")
		}
		if ctx.Err() == nil {
			c.recordFailure(ctx)
		}
		return "", dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, "generation service unavailable")
	}
	if _, change := c.breaker.RecordSuccess(); change.Closed && c.logger != nil {
		c.logger.InfoContext(ctx, "generation service recovered", "breaker", c.breaker.Name())
	}
	return answer, nil
}

func (c *Client) recordFailure(ctx context.Context) {
	if _, change := c.breaker.RecordFailure(); change.Opened && c.logger != nil {
		c.logger.WarnContext(ctx, "generation service failing; breaker opened", "breaker", c.breaker.Name())
	}
}

func (c *Client) post(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", retry.Unrecoverable(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &statusError{status: resp.StatusCode, body: strings.TrimSpace(string(raw))}
	}

	var out generateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", retry.Unrecoverable(fmt.Errorf("decode generation response: %w", err))
	}
	return out.Answer, nil
}

func retryable(err error) bool {
	if !retry.IsRecoverable(err) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.status >= 500 || se.status == http.StatusTooManyRequests
	}
	return true
}
