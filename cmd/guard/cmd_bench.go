package main

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/straja-ai/lightning-guard/internal/attachment"
	"github.com/straja-ai/lightning-guard/internal/coordinator"
	"github.com/straja-ai/lightning-guard/internal/mockserver"
)

var (
	benchN     int
	benchText  string
	benchFiles []string
	benchMock  bool
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Submit the same analysis repeatedly and report latency",
	Args:  cobra.NoArgs,
	RunE:  runBench,
}

func init() {
	benchCmd.Flags().IntVarP(&benchN, "iterations", "n", 50, "Number of iterations")
	benchCmd.Flags().StringVar(&benchText, "text", "URGENT: verify your account at http://192.168.1.10/login within 24 hours.", "Message text to analyze")
	benchCmd.Flags().StringArrayVarP(&benchFiles, "file", "f", nil, "File to attach (repeatable)")
	benchCmd.Flags().BoolVar(&benchMock, "mock", false, "Start an in-process mock service and benchmark against it")
}

type benchStats struct {
	N      int
	Failed int
	Avg    time.Duration
	P50    time.Duration
	P95    time.Duration
}

func summarize(durations []time.Duration, failed int) benchStats {
	st := benchStats{N: len(durations), Failed: failed}
	if len(durations) == 0 {
		return st
	}
	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var total time.Duration
	for _, d := range sorted {
		total += d
	}
	st.Avg = total / time.Duration(len(sorted))
	st.P50 = sorted[len(sorted)/2]
	idx := int(float64(len(sorted)) * 0.95)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	st.P95 = sorted[idx]
	return st
}

func runBench(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if benchN <= 0 {
		benchN = 1
	}

	runCfg := *cfg
	runCfg.Attachments.ClearOnSuccess = false
	if benchMock {
		shutdown, baseURL, err := mockserver.Start("127.0.0.1:0", mockserver.Options{Logger: logger.Named("mock")})
		if err != nil {
			return err
		}
		defer shutdown(context.Background())
		runCfg.API.BaseURL = baseURL
	}

	blobs, err := attachment.LoadFiles(ctx, benchFiles)
	if err != nil {
		return err
	}

	s, err := newSession(ctx, &runCfg, logger, sessionOptions{})
	if err != nil {
		return err
	}
	defer s.Close(context.Background())

	s.coord.SetText(benchText)
	s.coord.AddFiles(blobs...)

	// Warmup
	if err := s.coord.Analyze(ctx); err != nil {
		return err
	}

	durations := make([]time.Duration, 0, benchN)
	failed := 0
	for i := 0; i < benchN; i++ {
		start := time.Now()
		if err := s.coord.Analyze(ctx); err != nil {
			return err
		}
		d := time.Since(start)
		if st := s.coord.State(); st.Phase == coordinator.PhaseFailed {
			failed++
			logger.Debug("bench iteration failed", zap.Int("iteration", i), zap.String("error", st.Message()))
			continue
		}
		durations = append(durations, d)
	}

	st := summarize(durations, failed)
	ms := func(d time.Duration) float64 { return float64(d.Microseconds()) / 1000.0 }
	fmt.Fprintf(cmd.OutOrStdout(), "bench: n=%d failed=%d avg_ms=%.2f p50_ms=%.2f p95_ms=%.2f strategy=%s attachments=%d\n",
		st.N, st.Failed, ms(st.Avg), ms(st.P50), ms(st.P95), runCfg.Analyzer.Strategy, len(s.coord.Attachments()))
	return nil
}
