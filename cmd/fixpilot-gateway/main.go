// Command fixpilot-gateway serves the websocket gateway that drives guided
// repair sessions: clients connect to /v1/live, stream camera frames, and
// receive step guidance and speech.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/fixpilot-ai/fixpilot/pkg/core"
	"github.com/fixpilot-ai/fixpilot/pkg/core/providers/gemini"
	"github.com/fixpilot-ai/fixpilot/pkg/gateway/config"
	"github.com/fixpilot-ai/fixpilot/pkg/gateway/live/session"
	gatewayserver "github.com/fixpilot-ai/fixpilot/pkg/gateway/server"
	"github.com/fixpilot-ai/fixpilot/pkg/store"
)

func run(ctx context.Context, logger *slog.Logger) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	var opts []gemini.Option
	if cfg.GeminiModel != "" {
		opts = append(opts, gemini.WithModel(cfg.GeminiModel))
	}
	provider, err := gemini.New(ctx, cfg.GeminiAPIKey, opts...)
	if err != nil {
		return fmt.Errorf("gemini provider: %w", err)
	}
	providers := core.Providers{
		Plan:       provider,
		Guidance:   provider,
		Answer:     provider,
		Substitute: provider,
	}

	var recorder session.Recorder
	if cfg.DatabaseURL != "" {
		st, err := store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()
		recorder = st
		logger.Info("session history enabled")
	} else {
		logger.Info("session history disabled, no database configured")
	}

	return gatewayserver.New(cfg, providers, recorder, logger).Run(ctx)
}

func runMain(ctx context.Context, stderr io.Writer) int {
	logger := slog.New(slog.NewJSONHandler(stderr, nil))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger); err != nil {
		fmt.Fprintf(stderr, "fixpilot-gateway: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(runMain(context.Background(), os.Stderr))
}
