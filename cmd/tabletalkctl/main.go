package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/duckmesh/tabletalk/internal/cli/tabletalkctl"
)

func main() {
	options := tabletalkctl.Options{
		BaseURL:   envOr("TABLETALK_API_URL", "http://localhost:8080"),
		SessionID: strings.TrimSpace(os.Getenv("TABLETALK_SESSION_ID")),
		Timeout:   parseDurationWithDefault(strings.TrimSpace(os.Getenv("TABLETALK_CLI_TIMEOUT")), 3*time.Minute),
		Stdout:    os.Stdout,
		Stderr:    os.Stderr,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := tabletalkctl.Run(ctx, os.Args[1:], options)
	stop()
	os.Exit(code)
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func parseDurationWithDefault(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid TABLETALK_CLI_TIMEOUT %q; using %s\n", raw, fallback)
		return fallback
	}
	return parsed
}
