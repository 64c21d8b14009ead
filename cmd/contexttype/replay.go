package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/contexttype/contexttype/internal/config"
	"github.com/contexttype/contexttype/internal/detect"
)

var (
	replayWords    bool
	replayInterval time.Duration
)

var replayCmd = &cobra.Command{
	Use:   "replay [file]",
	Short: "Replay a recorded typing session through the controller",
	Long: `Replay a typing session against a simulated clock, so cooldowns behave as
they did when the text was typed.

The input is JSON lines, one snapshot of the text buffer per line:

  {"at_ms": 0,    "text": "function calc"}
  {"at_ms": 400,  "text": "function calculateTotal("}
  {"at_ms": 9000, "restart": true}

With --words the input is plain text instead: each line is one message,
typed a word at a time --interval apart, carrying the held context from one
message to the next.

Reads stdin when no file is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		in := cmd.InOrStdin()
		if len(args) == 1 && args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			in = f
		}

		var steps []replayStep
		if replayWords {
			steps, err = wordSteps(in, replayInterval)
		} else {
			steps, err = readSteps(in)
		}
		if err != nil {
			return err
		}
		return writeOutput(cmd.OutOrStdout(), outputFormat, runReplay(cfg, steps))
	},
}

func init() {
	replayCmd.Flags().BoolVar(&replayWords, "words", false, "treat input as messages typed word by word")
	replayCmd.Flags().DurationVar(&replayInterval, "interval", 300*time.Millisecond, "gap between words with --words")
	rootCmd.AddCommand(replayCmd)
}

// replayStep is one snapshot of the buffer.
type replayStep struct {
	AtMillis int64  `json:"at_ms"`
	Text     string `json:"text"`
	Restart  bool   `json:"restart,omitempty"`
}

type replayRow struct {
	AtMillis   int64           `json:"at_ms" yaml:"at_ms"`
	Text       string          `json:"text" yaml:"text"`
	Context    detect.Context  `json:"context" yaml:"context"`
	Confidence float64         `json:"confidence" yaml:"confidence"`
	Decision   detect.Decision `json:"decision" yaml:"decision"`
	Switched   bool            `json:"switched,omitempty" yaml:"switched,omitempty"`
}

type replayOutput struct {
	Steps    []replayRow    `json:"steps" yaml:"steps"`
	Switches int            `json:"switches" yaml:"switches"`
	Final    detect.Context `json:"final" yaml:"final"`
}

func readSteps(r io.Reader) ([]replayStep, error) {
	var steps []replayStep
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4<<20)
	line := 0
	for sc.Scan() {
		line++
		raw := strings.TrimSpace(sc.Text())
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		var st replayStep
		if err := json.Unmarshal([]byte(raw), &st); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if n := len(steps); n > 0 && st.AtMillis < steps[n-1].AtMillis {
			return nil, fmt.Errorf("line %d: at_ms goes backwards (%d after %d)", line, st.AtMillis, steps[n-1].AtMillis)
		}
		steps = append(steps, st)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return steps, nil
}

// wordSteps types every line of r out word by word.
func wordSteps(r io.Reader, interval time.Duration) ([]replayStep, error) {
	var steps []replayStep
	var at int64
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		words := strings.Fields(sc.Text())
		for i := range words {
			at += interval.Milliseconds()
			steps = append(steps, replayStep{AtMillis: at, Text: strings.Join(words[:i+1], " ")})
		}
	}
	return steps, sc.Err()
}

// replayClock is advanced by the replay loop, never by wall time.
type replayClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *replayClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *replayClock) set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func runReplay(cfg *config.Config, steps []replayStep) replayOutput {
	start := time.Unix(0, 0).UTC()
	clk := &replayClock{now: start}
	ctrl := newController(cfg, clk)
	state := detect.NewSwitchState()

	out := replayOutput{Steps: make([]replayRow, 0, len(steps))}
	var held detect.Context
	for _, st := range steps {
		clk.set(start.Add(time.Duration(st.AtMillis) * time.Millisecond))
		if st.Restart {
			state.Reset()
			held = ""
			continue
		}
		res := ctrl.Evaluate(state, st.Text, held)
		held = res.Context
		if res.Switched {
			out.Switches++
		}
		out.Steps = append(out.Steps, replayRow{
			AtMillis:   st.AtMillis,
			Text:       st.Text,
			Context:    res.Context,
			Confidence: res.Confidence,
			Decision:   res.Decision,
			Switched:   res.Switched,
		})
	}
	out.Final = held
	return out
}
