package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/straja-ai/lightning-guard/internal/config"
	"github.com/straja-ai/lightning-guard/internal/logging"
)

var (
	// Global flags
	configPath string
	verbose    bool
	strategy   string
	apiURL     string

	cfg    *config.Config
	logger *zap.Logger

	// version is set at build time with -ldflags "-X main.version=...".
	version = "dev"
)

// exitCodeError lets a command choose the process exit status.
type exitCodeError struct {
	code int
	msg  string
}

func (e *exitCodeError) Error() string { return e.msg }

var rootCmd = &cobra.Command{
	Use:   "guard",
	Short: "Lightning Guard - check messages and files for scams, phishing and malware",
	Long: `Lightning Guard sends a message and/or file attachments to an analysis
service and shows a threat verdict: level, confidence, category, details and
recommendations.

Run without arguments to start the interactive terminal UI.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if strategy != "" {
			loaded.Analyzer.Strategy = strategy
		}
		if apiURL != "" {
			loaded.API.BaseURL = apiURL
		}
		if err := config.Validate(loaded); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		cfg = loaded

		logCfg := logging.Config{
			Level:   cfg.Logging.Level,
			Format:  cfg.Logging.Format,
			Verbose: verbose,
		}
		if interactive(cmd) {
			// The TUI owns the terminal; log to a file or nowhere.
			if cfg.Logging.File == "" {
				logger = zap.NewNop()
				return nil
			}
			logCfg.OutputPaths = []string{cfg.Logging.File}
		}
		logger, err = logging.New(logCfg)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runTUI,
}

// interactive reports whether cmd runs the TUI. It compares names rather
// than command values to avoid an initialization cycle through rootCmd.
func interactive(cmd *cobra.Command) bool {
	return !cmd.HasParent() || cmd.Name() == "tui"
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "guard.yaml", "Path to config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&strategy, "strategy", "", "Analyzer strategy: remote or heuristic (overrides config)")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "Analysis service base URL (overrides config and env)")

	rootCmd.Version = version

	rootCmd.AddCommand(tuiCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(mockServerCmd)
	rootCmd.AddCommand(benchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		var exitErr *exitCodeError
		if errors.As(err, &exitErr) {
			if exitErr.msg != "" {
				fmt.Fprintln(os.Stderr, exitErr.msg)
			}
			os.Exit(exitErr.code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
