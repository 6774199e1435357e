package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"airr.io/student-analytics/internal/api"
	"airr.io/student-analytics/internal/config"
	"airr.io/student-analytics/internal/core"
	"airr.io/student-analytics/internal/logging"
	"airr.io/student-analytics/internal/store"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "airr",
		Short: "AIRR student analytics service",
		Long: `AIRR answers natural-language questions about student records.

Run without a subcommand to start the HTTP server.`,
		SilenceUsage: true,
	}

	serveCmd := newServeCmd()
	rootCmd.RunE = serveCmd.RunE
	rootCmd.Flags().AddFlagSet(serveCmd.Flags())
	rootCmd.AddCommand(serveCmd, newCSVCmd())
	return rootCmd
}

func newServeCmd() *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, foundDotEnv := config.Load()
			if port != "" {
				cfg.HTTPPort = port
			}
			return runServe(cmd.Context(), cfg, foundDotEnv)
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "HTTP port (overrides HTTP_PORT)")
	return cmd
}

func runServe(ctx context.Context, cfg config.Config, foundDotEnv bool) error {
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	if !foundDotEnv {
		logger.Info("no .env file found, using process environment")
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", zap.Error(err))
		return err
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbStore, err := store.NewSQLiteStore(cfg.DatabaseURL, logger)
	if err != nil {
		logger.Error("failed to initialize database", zap.Error(err))
		return err
	}
	defer dbStore.Close()

	llmService, err := core.NewLLMService(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, logger)
	if err != nil {
		logger.Error("failed to initialize LLM service", zap.Error(err))
		return err
	}
	defer llmService.Close()

	fetcher := core.NewRemoteFetcher(cfg.RemoteFetchTimeout, cfg.RemoteMaxBytes, logger)
	chatService, err := core.NewChatService(dbStore, llmService, fetcher, logger)
	if err != nil {
		logger.Error("failed to initialize chat service", zap.Error(err))
		return err
	}

	apiHandler := api.NewAPIHandler(chatService, logger, cfg.MaxUploadBytes)
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      api.NewRouter(apiHandler),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // LLM calls can take time
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting server", zap.String("addr", srv.Addr), zap.String("model", cfg.GeminiModel))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("could not listen on %s: %w", srv.Addr, err)
		}
		return nil
	})
	if cfg.SessionIdleTTL > 0 {
		g.Go(func() error {
			return chatService.RunEviction(gctx, cfg.SessionIdleTTL, min(cfg.SessionIdleTTL, time.Minute))
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped with error", zap.Error(err))
		return err
	}
	logger.Info("server exited gracefully")
	return nil
}
