// Package llm is the chat-completion capability used to pick tables, write
// SQL and summarize results. Providers are interchangeable behind Completer.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/duckmesh/tabletalk/internal/observability"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

type Prompt struct {
	System string
	User   string
}

type Completer interface {
	Complete(ctx context.Context, prompt Prompt) (string, error)
	Name() string
}

// TransientError marks failures worth retrying: rate limits, overloaded or
// failing upstreams, dropped connections.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return "transient llm error: " + e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

func IsTransient(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}

type Config struct {
	Provider    string
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// New builds the configured provider wrapped with request metrics.
func New(ctx context.Context, cfg Config) (Completer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("llm api key is required")
	}

	var (
		completer Completer
		err       error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderOpenAI:
		completer, err = NewOpenAICompleter(cfg)
	case ProviderAnthropic:
		completer, err = NewAnthropicCompleter(cfg)
	case ProviderGemini:
		completer, err = NewGeminiCompleter(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return Observe(completer), nil
}

// Observe records latency and outcome of every call made through next.
func Observe(next Completer) Completer {
	return observed{next: next}
}

type observed struct {
	next Completer
}

func (o observed) Name() string {
	return o.next.Name()
}

func (o observed) Complete(ctx context.Context, prompt Prompt) (string, error) {
	start := time.Now()
	reply, err := o.next.Complete(ctx, prompt)
	observability.ObserveLLMRequest(o.next.Name(), err, time.Since(start))
	return reply, err
}
