package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/contexttype/contexttype/internal/activation"
	"github.com/contexttype/contexttype/internal/auth"
	"github.com/contexttype/contexttype/internal/config"
	"github.com/contexttype/contexttype/internal/mlscorer"
	"github.com/contexttype/contexttype/internal/redact"
	"github.com/contexttype/contexttype/internal/server"
	"github.com/contexttype/contexttype/internal/session"
	"github.com/contexttype/contexttype/internal/suggest"
	"github.com/contexttype/contexttype/internal/telemetry"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the context detection HTTP service",
	Long: `Start the HTTP service.

Endpoints:
  GET    /healthz
  GET    /v1/status
  POST   /v1/context/detect
  POST   /v1/context/score
  GET    /v1/sessions/{id}      DELETE restarts the session
  GET    /v1/detections/{id}
  POST   /v1/suggestions

The service stops on Ctrl+C or SIGTERM, draining activation events and
flushing telemetry before it exits.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if serveAddr != "" {
			cfg.Server.Addr = serveAddr
		}
		return runServe(cmd.Context(), cfg, cfgFile)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "HTTP listen address (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context, cfg *config.Config, path string) error {
	a, err := auth.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}

	var predictor mlscorer.Predictor
	if cfg.ML.Enabled {
		model, err := mlscorer.LoadModel(cfg.ML.BundleDir, cfg.ML.LibraryPath)
		if err != nil {
			// Rules alone still serve every request.
			redact.Logf("ml scorer unavailable, using rules only: %v", err)
		} else {
			defer model.Close()
			predictor = model
			redact.Logf("ml scorer loaded from %s", cfg.ML.BundleDir)
		}
	}

	suggester, err := buildSuggester(cfg.Suggestions)
	if err != nil {
		return err
	}

	tel, err := telemetry.NewProvider(ctx, cfg.Telemetry, version)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	em, err := activation.FromConfig(cfg.Activation, tel.RecordDelivery)
	if err != nil {
		tel.Shutdown(context.Background())
		return fmt.Errorf("activation: %w", err)
	}

	srv := server.New(cfg, server.Deps{
		Auth:      a,
		Sessions:  session.NewStore(cfg.Sessions.TTL, cfg.Sessions.MaxSessions),
		Predictor: predictor,
		Suggester: suggester,
		Emitter:   em,
		Telemetry: tel,
	})

	if cfg.Detector.HotReload && path != "" {
		go func() {
			if err := config.Watch(ctx, path, srv.ApplyDetector); err != nil {
				redact.Logf("config watch stopped: %v", err)
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return err
	case <-ctx.Done():
	}

	redact.Logf("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// buildSuggester puts the configured upstream in front of the static lists.
func buildSuggester(sc config.SuggestionsConfig) (*suggest.Fallback, error) {
	if sc.Provider != "openai" {
		return suggest.NewFallback(nil, nil), nil
	}
	llm, err := suggest.NewOpenAI(suggest.OpenAIOptions{
		BaseURL:     sc.BaseURL,
		APIKey:      sc.ResolveAPIKey(),
		Model:       sc.Model,
		Timeout:     sc.Timeout,
		MaxRetries:  sc.MaxRetries,
		MaxTokens:   sc.MaxTokens,
		Temperature: sc.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("suggestions: %w", err)
	}
	return suggest.NewFallback(llm, nil), nil
}
