package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/example/goalrunner/internal/api"
	"github.com/example/goalrunner/internal/backend"
	"github.com/example/goalrunner/internal/orchestrator"
)

const shutdownTimeout = 10 * time.Second

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the orchestrator over HTTP for a browser front end",
	Long: `Starts an HTTP server exposing the run state, a server-sent event feed of
changes, and endpoints to submit goals, chat, upload images and request a
summary. CORS is open for local development.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		addr := cfg.Server.Addr
		if serveAddr != "" {
			addr = serveAddr
		}

		orch := orchestrator.New(backend.New(cfg.BackendClient(logger)),
			orchestrator.WithModels(cfg.RunModels()),
			orchestrator.WithPacer(orchestrator.FixedPacing(cfg.Pacing.Interval)),
			orchestrator.WithLogger(logger),
		)
		srv := api.New(ctx, orch, logger)
		mux := http.NewServeMux()
		srv.RegisterRoutes(mux)

		err := listen(ctx, logger.Named("serve"), addr, api.CORS(mux))
		srv.Wait()
		return err
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides server.addr)")
}

// listen serves h on addr until ctx is done, then shuts down gracefully.
func listen(ctx context.Context, lg *zap.Logger, addr string, h http.Handler) error {
	hs := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lg.Info("listening", zap.String("addr", addr))
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		lg.Info("shutting down", zap.String("addr", addr))
		return hs.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
