package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/straja-ai/lightning-guard/cmd/guard/tui"
	"github.com/straja-ai/lightning-guard/internal/attachment"
	"github.com/straja-ai/lightning-guard/internal/coordinator"
	"github.com/straja-ai/lightning-guard/internal/verdict"
)

var (
	analyzeText  string
	analyzeFiles []string
	analyzeJSON  bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze text and/or files once and print the verdict",
	Long: `Submit one analysis and print the verdict.

Use --text - to read the message from stdin. The exit status is 2 when the
verdict is danger, 1 on errors and 0 otherwise.`,
	Example: `  guard analyze --text "Your parcel is held, pay the fee at http://bit.ly/x"
  guard analyze --file screenshot.png --file invoice.pdf.exe --json`,
	Args: cobra.NoArgs,
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVarP(&analyzeText, "text", "t", "", "Message text to analyze ('-' reads stdin)")
	analyzeCmd.Flags().StringArrayVarP(&analyzeFiles, "file", "f", nil, "File to attach (repeatable)")
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "Print the verdict as JSON")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	text := analyzeText
	if text == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		text = string(data)
	}

	blobs, err := attachment.LoadFiles(ctx, analyzeFiles)
	if err != nil {
		return err
	}

	s, err := newSession(ctx, cfg, logger, sessionOptions{})
	if err != nil {
		return err
	}
	defer s.Close(context.Background())

	s.coord.SetText(text)
	if added := s.coord.AddFiles(blobs...); len(added) < len(blobs) {
		logger.Warn("some files were not attached: attachment limit reached",
			zap.Int("requested", len(blobs)),
			zap.Int("limit", cfg.Attachments.Max))
	}

	if err := s.coord.Analyze(ctx); err != nil {
		return err
	}

	st := s.coord.State()
	if st.Phase == coordinator.PhaseFailed {
		return fmt.Errorf("analysis failed: %s", st.Message())
	}
	if st.Result == nil {
		return fmt.Errorf("analysis produced no result")
	}

	out := cmd.OutOrStdout()
	if err := printVerdict(out, *st.Result, analyzeJSON); err != nil {
		return err
	}
	if st.Result.ThreatLevel == verdict.ThreatDanger {
		return &exitCodeError{code: 2}
	}
	return nil
}

func printVerdict(w io.Writer, res verdict.Result, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	style := tuiStyle
	if !isTerminal(w) {
		style = "notty"
	}
	r, err := tui.NewRenderer(style, 80)
	if err != nil {
		logger.Debug("markdown renderer unavailable", zap.Error(err))
		r = nil
	}
	_, err = fmt.Fprintln(w, strings.TrimRight(tui.RenderResult(r, res), "\n"))
	return err
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
