package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/straja-ai/lightning-guard/cmd/guard/tui"
)

var tuiStyle string

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Start the interactive terminal UI (default)",
	RunE:  runTUI,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&tuiStyle, "style", "auto", "Result rendering style (auto, dark, light, notty)")
}

func runTUI(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bridge := &tui.Bridge{}
	s, err := newSession(ctx, cfg, logger, sessionOptions{
		Notifier: bridge,
		OnChange: bridge.OnChange,
	})
	if err != nil {
		return err
	}
	defer s.Close(context.Background())

	return tui.Run(ctx, s.coord, bridge, tui.Options{Style: tuiStyle})
}
