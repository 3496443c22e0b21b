// Package completion provides the completion capability over an
// OpenAI-compatible API, with retry on transient failures and an upstream
// rate guard.
package completion

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/knowledged/internal/config"
	"github.com/fyrsmithlabs/knowledged/internal/kberr"
)

// Request is one completion call. Model and sampling parameters come from
// the effective per-organization configuration.
type Request struct {
	Model       string
	Temperature float64
	MaxTokens   int
	System      string
	User        string
}

// Completer is the completion capability.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Client is the production Completer backed by langchaingo's OpenAI client.
type Client struct {
	llm          *openai.LLM
	limiter      *rate.Limiter
	maxRetries   int
	retryBackoff time.Duration
	log          *zap.Logger
}

// NewClient builds a Completer from config.
func NewClient(cfg config.CompletionConfig, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	llm, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithToken(cfg.APIKey),
	)
	if err != nil {
		return nil, fmt.Errorf("creating completion client: %w", err)
	}

	var limiter *rate.Limiter
	if cfg.RatePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1)
	}
	return &Client{
		llm:          llm,
		limiter:      limiter,
		maxRetries:   cfg.MaxRetries,
		retryBackoff: cfg.RetryBackoff,
		log:          logger,
	}, nil
}

// Complete runs the completion with bounded retries on transient upstream
// failures. Permanent failures (invalid request) surface immediately.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}

	messages := buildMessages(req)
	opts := []llms.CallOption{
		llms.WithModel(req.Model),
		llms.WithTemperature(req.Temperature),
		llms.WithMaxTokens(req.MaxTokens),
	}

	backoff := c.retryBackoff
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		resp, err := c.llm.GenerateContent(ctx, messages, opts...)
		if err == nil {
			if len(resp.Choices) == 0 {
				return "", fmt.Errorf("completion returned no choices: %w", kberr.ErrUpstreamPermanent)
			}
			return resp.Choices[0].Content, nil
		}
		lastErr = err

		if !transient(err) {
			return "", fmt.Errorf("completion request rejected: %v: %w", err, kberr.ErrUpstreamPermanent)
		}
		if attempt == c.maxRetries {
			break
		}
		c.log.Warn("completion failed, retrying",
			zap.Int("attempt", attempt+1),
			zap.Error(err))
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return "", fmt.Errorf("completion after %d retries: %v: %w", c.maxRetries, lastErr, kberr.ErrUpstreamTransient)
}

// buildMessages lays out the prompt as one system message followed by one
// human message.
func buildMessages(req Request) []llms.MessageContent {
	return []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, req.System),
		llms.TextParts(schema.ChatMessageTypeHuman, req.User),
	}
}

// transient classifies upstream failures worth retrying: timeouts, rate
// limits and 5xx responses. Anything else is treated as a permanent,
// invalid-input failure.
func transient(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"timeout", "deadline exceeded", "connection refused", "connection reset",
		"rate limit", "429", "500", "502", "503", "504", "overloaded",
		"temporarily unavailable",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
