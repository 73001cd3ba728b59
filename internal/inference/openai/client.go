// Package openai provides OpenAI-compatible reasoning and communication
// collaborators for the triage pipeline. Any endpoint speaking the chat
// completions protocol works; only the base URL and model change.
package openai

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// BackendName identifies this collaborator family in stage output.
const BackendName = "openai_compatible"

// Config holds connection and sampling settings for an OpenAI-compatible
// endpoint. Zero values select conservative defaults.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Timeout     time.Duration // per-request; default 30s
	MaxRetries  int           // default 1
	Backoff     time.Duration // default 500ms
	Temperature float32       // default 0.2
	MaxTokens   int           // default 600
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 1
	}
	if c.Backoff <= 0 {
		c.Backoff = 500 * time.Millisecond
	}
	if c.Temperature == 0 {
		c.Temperature = 0.2
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 600
	}
	return c
}

// breaker is a small per-client circuit breaker: after threshold failures
// inside the rolling window, calls fail fast until the cooldown passes.
type breaker struct {
	mu          sync.Mutex
	failures    int
	lastFailure time.Time
	openUntil   time.Time
	lastError   string

	threshold int
	cooldown  time.Duration
	window    time.Duration
}

func newBreaker() *breaker {
	return &breaker{threshold: 2, cooldown: 15 * time.Second, window: time.Minute}
}

func (b *breaker) check() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if remaining := time.Until(b.openUntil); remaining > 0 {
		return fmt.Errorf("circuit open (%.1fs remaining): %s", remaining.Seconds(), b.lastError)
	}
	return nil
}

func (b *breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.openUntil = time.Time{}
	b.lastError = ""
}

func (b *breaker) recordFailure(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now()
	if !b.lastFailure.IsZero() && now.Sub(b.lastFailure) > b.window {
		b.failures = 0
	}
	b.failures++
	b.lastFailure = now
	b.lastError = err.Error()
	if b.failures >= b.threshold {
		b.openUntil = now.Add(b.cooldown)
	}
}

// Client wraps an OpenAI-compatible chat endpoint with retries and a
// circuit breaker. Safe for concurrent use.
type Client struct {
	cfg     Config
	api     *openai.Client
	breaker *breaker
}

// NewClient builds a client for the configured endpoint.
func NewClient(cfg Config) (*Client, error) {
	cfg = cfg.withDefaults()
	if cfg.Model == "" {
		return nil, errors.New("openai: model is required")
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}

	return &Client{
		cfg:     cfg,
		api:     openai.NewClientWithConfig(oc),
		breaker: newBreaker(),
	}, nil
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.cfg.Model }

// chat sends a system+user exchange and returns the assistant text.
func (c *Client) chat(ctx context.Context, system, user string) (string, error) {
	if err := c.breaker.check(); err != nil {
		return "", err
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(c.cfg.Backoff * time.Duration(attempt)):
			}
		}

		text, err := c.chatOnce(ctx, system, user)
		if err == nil {
			c.breaker.recordSuccess()
			return text, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}

	c.breaker.recordFailure(lastErr)
	return "", lastErr
}

func (c *Client) chatOnce(ctx context.Context, system, user string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion: empty response")
	}
	return resp.Choices[0].Message.Content, nil
}
