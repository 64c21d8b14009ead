package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/contexttype/contexttype/internal/mockllm"
)

var (
	mockAddr  string
	mockDelay time.Duration
)

var mockLLMCmd = &cobra.Command{
	Use:   "mock-llm",
	Short: "Run an OpenAI-compatible mock for the suggestion provider",
	Long: `Run a local chat-completions endpoint that answers with canned next-word
arrays per context, for trying suggestions without an API key.

Point the service at it with:
  suggestions:
    provider: openai
    base_url: http://127.0.0.1:18080/v1
    api_key: mock`,
	RunE: func(cmd *cobra.Command, args []string) error {
		srv, err := mockllm.Start(mockllm.Options{Addr: mockAddr, Delay: mockDelay})
		if err != nil {
			return err
		}
		<-cmd.Context().Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	},
}

func init() {
	mockLLMCmd.Flags().StringVar(&mockAddr, "addr", "", "listen address (default 127.0.0.1:$MOCK_LLM_PORT or 18080)")
	mockLLMCmd.Flags().DurationVar(&mockDelay, "delay", 0, "per-request delay (default $MOCK_LLM_DELAY_MS or 20ms; negative disables)")
	rootCmd.AddCommand(mockLLMCmd)
}
