// Package nl2sql turns a natural-language question about one table into a
// single SELECT statement.
package nl2sql

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/duckmesh/tabletalk/internal/llm"
	"github.com/duckmesh/tabletalk/internal/observability"
)

var ErrGeneration = errors.New("sql generation failed")

const systemPrompt = "You are a strict SQL generator."

type Request struct {
	Question string
	// Schema is the table's column description, inserted verbatim.
	Schema string
	Table  string
}

type Config struct {
	MaxRetries int
	RetryBase  time.Duration
	RetryStep  time.Duration
}

func DefaultConfig() Config {
	return Config{MaxRetries: 2, RetryBase: time.Second, RetryStep: 2 * time.Second}
}

type Synthesizer struct {
	completer  llm.Completer
	cfg        Config
	logger     *slog.Logger
	newBackOff func() backoff.BackOff
}

type Option func(*Synthesizer)

// WithBackOff replaces the linear wait schedule.
func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(s *Synthesizer) {
		s.newBackOff = newBackOff
	}
}

func New(completer llm.Completer, cfg Config, logger *slog.Logger, opts ...Option) *Synthesizer {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	s := &Synthesizer{
		completer: completer,
		cfg:       cfg,
		logger:    observability.LoggerOrDiscard(logger),
	}
	s.newBackOff = func() backoff.BackOff {
		return &LinearBackOff{Base: s.cfg.RetryBase, Step: s.cfg.RetryStep}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Generate asks the model for SQL up to MaxRetries+1 times. Both model
// failures and outputs that fail validation are retried.
func (s *Synthesizer) Generate(ctx context.Context, req Request) (string, error) {
	prompt := llm.Prompt{System: systemPrompt, User: BuildPrompt(req)}
	attempts := s.cfg.MaxRetries + 1
	attempt := 0

	sql, err := backoff.Retry(ctx, func() (string, error) {
		attempt++
		raw, err := s.completer.Complete(ctx, prompt)
		if err != nil {
			observability.IncrementSQLGenerationAttempt("llm_error")
			s.logger.Error("sql generation attempt failed",
				slog.Int("attempt", attempt),
				slog.Int("attempts", attempts),
				slog.Any("error", err),
			)
			return "", err
		}
		sql := CleanSQL(raw)
		if err := Validate(sql, req.Table); err != nil {
			observability.IncrementSQLGenerationAttempt("invalid")
			s.logger.Warn("generated sql rejected",
				slog.Int("attempt", attempt),
				slog.Int("attempts", attempts),
				slog.String("sql", sql),
				slog.Any("error", err),
			)
			return "", err
		}
		observability.IncrementSQLGenerationAttempt("ok")
		return sql, nil
	},
		backoff.WithBackOff(s.newBackOff()),
		backoff.WithMaxTries(uint(attempts)),
		backoff.WithMaxElapsedTime(0),
	)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("%w: %w", ErrGeneration, ctxErr)
		}
		return "", fmt.Errorf("%w after %d attempts: %w", ErrGeneration, attempt, err)
	}
	return sql, nil
}

func BuildPrompt(req Request) string {
	return fmt.Sprintf(`You are an SQL expert. Convert the user request into a valid SQL query ONLY.

TABLE NAME: %[1]s

COLUMNS (use exactly these, comma-separated):
%[2]s

RULES:
- Use only the table `+"`%[1]s`"+`.
- Do not guess or rename columns; use exactly the provided column names.
- Return ONLY the SQL query. No explanation, no commentary, no code fences.
- Ensure the query is a SELECT statement and references the table name.

User Query: %[3]s
`, req.Table, req.Schema, req.Question)
}

// CleanSQL strips markdown fences and collapses whitespace runs.
func CleanSQL(text string) string {
	text = strings.ReplaceAll(text, "```sql", "")
	text = strings.ReplaceAll(text, "```", "")
	return strings.Join(strings.Fields(text), " ")
}

// Validate is a shape check only: a SELECT that mentions the table.
func Validate(sql, table string) error {
	lowered := strings.ToLower(strings.TrimSpace(sql))
	switch {
	case lowered == "":
		return fmt.Errorf("empty sql")
	case !strings.HasPrefix(lowered, "select"):
		return fmt.Errorf("sql is not a select statement: %q", sql)
	case !strings.Contains(lowered, strings.ToLower(table)):
		return fmt.Errorf("sql does not reference table %q", table)
	}
	return nil
}
