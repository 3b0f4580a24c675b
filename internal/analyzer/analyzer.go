package analyzer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/straja-ai/lightning-guard/internal/attachment"
	"github.com/straja-ai/lightning-guard/internal/config"
	"github.com/straja-ai/lightning-guard/internal/intel"
	"github.com/straja-ai/lightning-guard/internal/telemetry"
	"github.com/straja-ai/lightning-guard/internal/verdict"
)

// ErrInputRequired is returned when a request has neither text nor attachments.
var ErrInputRequired = errors.New("please enter text or attach files to analyze")

// Analyzer is the interface for every strategy that turns user input into a verdict.
type Analyzer interface {
	Analyze(ctx context.Context, req Request) (*verdict.Result, error)
}

// Request is a snapshot of the user's input at submission time.
type Request struct {
	Text        string
	Attachments []attachment.Attachment
}

// TrimmedText returns the text as it is transmitted.
func (r Request) TrimmedText() string {
	return strings.TrimSpace(r.Text)
}

// Validate rejects requests that carry nothing to analyze.
func (r Request) Validate() error {
	if r.TrimmedText() == "" && len(r.Attachments) == 0 {
		return ErrInputRequired
	}
	return nil
}

// Options carries shared collaborators for analyzer construction.
type Options struct {
	Logger    *zap.Logger
	Telemetry *telemetry.Provider
}

// New selects the analyzer strategy named in cfg.
func New(cfg *config.Config, opts Options) (Analyzer, error) {
	if cfg == nil {
		return nil, errors.New("analyzer: config is nil")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Analyzer.Strategy)) {
	case "", config.StrategyRemote:
		return NewRemote(RemoteConfig{
			BaseURL:          cfg.API.BaseURL,
			Timeout:          cfg.API.Timeout,
			MaxResponseBytes: cfg.API.MaxResponseBytes,
			Logger:           opts.Logger,
			Telemetry:        opts.Telemetry,
		}), nil
	case config.StrategyHeuristic:
		return NewHeuristic(intel.NewRegexBundle(), opts.Logger), nil
	default:
		return nil, fmt.Errorf("analyzer: unknown strategy %q", cfg.Analyzer.Strategy)
	}
}

// Name reports a short label for a strategy, used in logs and metrics.
func Name(a Analyzer) string {
	switch a.(type) {
	case *Remote:
		return config.StrategyRemote
	case *Heuristic:
		return config.StrategyHeuristic
	case *Fake:
		return "fake"
	default:
		return fmt.Sprintf("%T", a)
	}
}
