package main

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/goalrunner/internal/devbackend"
	"github.com/example/goalrunner/internal/providers/llm"
)

var devbackendAddr string

var devbackendCmd = &cobra.Command{
	Use:   "devbackend",
	Short: "Run a local reasoning backend on top of a language model",
	Long: `Starts a reasoning backend speaking the same HTTP protocol the orchestrator
expects. Tasks are planned and executed by the configured provider (openai,
anthropic, gemini), or by a deterministic mock when no key is set.

Examples:
  goalrunner devbackend
  LLM_PROVIDER=anthropic ANTHROPIC_API_KEY=... goalrunner devbackend --addr :8888`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		addr := cfg.DevBackend.Addr
		if devbackendAddr != "" {
			addr = devbackendAddr
		}

		client, err := llm.New(ctx, cfg.LLM(logger))
		if err != nil {
			return err
		}
		if c, ok := client.(llm.Closer); ok {
			defer c.Close()
		}
		logger.Info("language model ready", zap.String("provider", cfg.DevBackend.Provider), zap.String("model", cfg.DevBackend.Model))

		srv := devbackend.New(client, devbackend.Config{
			Token:       cfg.DevBackend.Token,
			PublicURL:   cfg.DevBackend.PublicURL,
			FetchClient: &http.Client{Timeout: cfg.DevBackend.Timeout},
			Logger:      logger,
		})
		return listen(ctx, logger.Named("devbackend"), addr, srv.Handler())
	},
}

func init() {
	devbackendCmd.Flags().StringVar(&devbackendAddr, "addr", "", "Listen address (overrides devbackend.addr)")
}
