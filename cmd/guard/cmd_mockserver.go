package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/straja-ai/lightning-guard/internal/intel"
	"github.com/straja-ai/lightning-guard/internal/mockserver"
)

var (
	mockAddr  string
	mockDelay time.Duration
)

var mockServerCmd = &cobra.Command{
	Use:   "mock-server",
	Short: "Run a local mock analysis service for development",
	Long: `Serve /api/analyze-text and /api/analyze-file on a local address.
Verdicts come from the built-in heuristic rules.`,
	Args: cobra.NoArgs,
	RunE: runMockServer,
}

func init() {
	mockServerCmd.Flags().StringVar(&mockAddr, "addr", "", "Listen address (overrides mock_server.addr)")
	mockServerCmd.Flags().DurationVar(&mockDelay, "delay", -1, "Artificial response delay (overrides mock_server.delay)")
}

func runMockServer(cmd *cobra.Command, args []string) error {
	addr := cfg.MockServer.Addr
	if mockAddr != "" {
		addr = mockAddr
	}
	delay := cfg.MockServer.Delay
	if mockDelay >= 0 {
		delay = mockDelay
	}

	log := logger
	if !cfg.MockServer.Verbose && !verbose {
		log = logger.WithOptions(zap.IncreaseLevel(zap.InfoLevel))
	}

	shutdown, baseURL, err := mockserver.Start(addr, mockserver.Options{
		Delay:  delay,
		Engine: intel.NewRegexBundle(),
		Logger: log.Named("mock"),
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "mock analysis service listening on %s (set %s=%s)\n",
		baseURL, cfg.API.BaseURLEnv, baseURL)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown mock server: %w", err)
	}
	logger.Info("mock analysis service stopped")
	return nil
}
