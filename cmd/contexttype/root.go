package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/contexttype/contexttype/internal/config"
	"github.com/contexttype/contexttype/internal/detect"
	"github.com/contexttype/contexttype/internal/redact"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	cfgFile      string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "contexttype",
	Short: "Writing-context detection for adaptive keyboards",
	Long: `contexttype decides whether the text being typed is code, an email or a chat
message, and when a newly detected context may replace the one already held.

It runs as an HTTP service (serve) or offline against a single text (detect),
a recorded typing session (replay) or a latency benchmark (bench).`,
	Version:      version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "contexttype.yaml", "config file (missing file means defaults)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)
}

// loadConfig reads and validates the config, and turns on debug logging when
// asked to.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	redact.SetDebug(cfg.Logging.Debug)
	return cfg, nil
}

func newController(cfg *config.Config, clock detect.Clock) *detect.Controller {
	return detect.NewController(
		detect.WithScorer(detect.NewRuleScorer(cfg.Detector.Weights)),
		detect.WithThresholds(cfg.Detector.Thresholds),
		detect.WithClock(clock),
	)
}

func writeOutput(w io.Writer, format string, v any) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml", "":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q (want yaml or json)", format)
	}
}
