package main

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/stat"

	"github.com/contexttype/contexttype/internal/config"
	"github.com/contexttype/contexttype/internal/detect"
	"github.com/contexttype/contexttype/internal/mlscorer"
)

var (
	benchN     int
	benchTexts []string
	benchML    bool
)

// benchCorpus mixes all three contexts, short and long.
var benchCorpus = []string{
	"function calculateTotal(items) { return items.reduce((a, b) => a + b, 0); }",
	"const user = await fetchUser(id);",
	"Dear Hiring Manager,\nThank you for your time and consideration. Please let me know if you need anything else.\nBest regards,",
	"Hi Sarah, I hope this email finds you well.",
	"lol omg that's hilarious 😂",
	"hey wanna grab food later?? idk where tho",
	"the quick brown fox jumps over the lazy dog",
}

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Measure evaluation latency",
	Long: `Run the controller over a fixed corpus and report latency quantiles.

Examples:
  contexttype bench -n 5000
  contexttype bench --text 'def main():' --text 'see you soon'
  contexttype bench --ml --config contexttype.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		scorer := detect.Scorer(detect.NewRuleScorer(cfg.Detector.Weights))
		if benchML {
			model, err := mlscorer.LoadModel(cfg.ML.BundleDir, cfg.ML.LibraryPath)
			if err != nil {
				return fmt.Errorf("load ml scorer: %w", err)
			}
			defer model.Close()
			minConf := cfg.ML.MinConfidence
			if minConf <= 0 {
				minConf = model.MinConfidence()
			}
			scorer = mlscorer.NewHybrid(model, scorer, minConf, cfg.ML.MaxTextChars)
		}

		texts := benchTexts
		if len(texts) == 0 {
			texts = benchCorpus
		}
		summary := runBench(cfg, scorer, texts, benchN)
		return writeOutput(cmd.OutOrStdout(), outputFormat, summary)
	},
}

func init() {
	benchCmd.Flags().IntVarP(&benchN, "iterations", "n", 1000, "evaluations to time")
	benchCmd.Flags().StringArrayVar(&benchTexts, "text", nil, "text to evaluate (repeatable; default is a mixed corpus)")
	benchCmd.Flags().BoolVar(&benchML, "ml", false, "score with the ml model from the config")
	rootCmd.AddCommand(benchCmd)
}

type benchSummary struct {
	N        int     `json:"n" yaml:"n"`
	Texts    int     `json:"texts" yaml:"texts"`
	MeanMs   float64 `json:"mean_ms" yaml:"mean_ms"`
	StdDevMs float64 `json:"stddev_ms" yaml:"stddev_ms"`
	P50Ms    float64 `json:"p50_ms" yaml:"p50_ms"`
	P95Ms    float64 `json:"p95_ms" yaml:"p95_ms"`
	P99Ms    float64 `json:"p99_ms" yaml:"p99_ms"`
	MaxMs    float64 `json:"max_ms" yaml:"max_ms"`
}

func runBench(cfg *config.Config, scorer detect.Scorer, texts []string, n int) benchSummary {
	if n <= 0 {
		n = 1
	}
	ctrl := detect.NewController(
		detect.WithScorer(scorer),
		detect.WithThresholds(cfg.Detector.Thresholds),
	)

	// Warmup
	for _, t := range texts {
		ctrl.Evaluate(detect.NewSwitchState(), t, detect.Code)
	}

	samples := make([]float64, n)
	state := detect.NewSwitchState()
	held := detect.Context("")
	for i := 0; i < n; i++ {
		text := texts[i%len(texts)]
		start := time.Now()
		res := ctrl.Evaluate(state, text, held)
		samples[i] = float64(time.Since(start)) / float64(time.Millisecond)
		held = res.Context
	}

	sort.Float64s(samples)
	mean, std := stat.MeanStdDev(samples, nil)
	if math.IsNaN(std) {
		std = 0
	}
	return benchSummary{
		N:        n,
		Texts:    len(texts),
		MeanMs:   mean,
		StdDevMs: std,
		P50Ms:    stat.Quantile(0.50, stat.Empirical, samples, nil),
		P95Ms:    stat.Quantile(0.95, stat.Empirical, samples, nil),
		P99Ms:    stat.Quantile(0.99, stat.Empirical, samples, nil),
		MaxMs:    samples[len(samples)-1],
	}
}
