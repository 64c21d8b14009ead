package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/contexttype/contexttype/internal/config"
	"github.com/contexttype/contexttype/internal/detect"
)

var (
	detectPrevious string
	detectExplain  bool
)

var detectCmd = &cobra.Command{
	Use:   "detect [text...]",
	Short: "Classify one text",
	Long: `Classify a single text and print the decision.

With no arguments the text is read from stdin. --previous sets the context
currently held, so the switching gates apply; without it the result is the
ungated first evaluation of a session.

Examples:
  contexttype detect 'function calculateTotal(items) {'
  contexttype detect --previous code 'Dear Hiring Manager,'
  pbpaste | contexttype detect --explain -o json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		var text string
		if len(args) > 0 {
			text = strings.Join(args, " ")
		} else {
			b, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("read stdin: %w", err)
			}
			text = strings.TrimRight(string(b), "\n")
		}
		previous, err := detect.ParseContext(detectPrevious)
		if err != nil {
			return err
		}
		out := runDetect(cfg, text, previous, detectExplain)
		return writeOutput(cmd.OutOrStdout(), outputFormat, out)
	},
}

func init() {
	detectCmd.Flags().StringVar(&detectPrevious, "previous", "", "context currently held: code, email or chat")
	detectCmd.Flags().BoolVar(&detectExplain, "explain", false, "include the rule hits behind the scores")
	rootCmd.AddCommand(detectCmd)
}

type detectOutput struct {
	Context       detect.Context              `json:"context" yaml:"context"`
	Confidence    float64                     `json:"confidence" yaml:"confidence"`
	Decision      detect.Decision             `json:"decision" yaml:"decision"`
	Switched      bool                        `json:"switched" yaml:"switched"`
	Scores        detect.ScoreSet             `json:"scores" yaml:"scores"`
	Alternatives  []detect.Alternative        `json:"alternative_contexts" yaml:"alternative_contexts"`
	AtBoundary    bool                        `json:"at_sentence_boundary" yaml:"at_sentence_boundary"`
	StrongSignals map[detect.Context][]string `json:"strong_signals,omitempty" yaml:"strong_signals,omitempty"`
	Hits          []detect.Hit                `json:"hits,omitempty" yaml:"hits,omitempty"`
}

func runDetect(cfg *config.Config, text string, previous detect.Context, explain bool) detectOutput {
	ctrl := newController(cfg, detect.SystemClock{})
	res := ctrl.Evaluate(detect.NewSwitchState(), text, previous)
	out := detectOutput{
		Context:       res.Context,
		Confidence:    res.Confidence,
		Decision:      res.Decision,
		Switched:      res.Switched,
		Scores:        res.Scores,
		Alternatives:  res.Alternatives(),
		AtBoundary:    detect.AtSentenceBoundary(text),
		StrongSignals: detect.StrongSignals(text),
	}
	if explain {
		out.Hits = detect.NewRuleScorer(cfg.Detector.Weights).Explain(text)
	}
	return out
}
