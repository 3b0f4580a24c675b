package analyzer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/straja-ai/lightning-guard/internal/intel"
	"github.com/straja-ai/lightning-guard/internal/verdict"
)

// Heuristic analyzes input locally with an intel.Engine and never touches
// the network.
type Heuristic struct {
	engine intel.Engine
	logger *zap.Logger
}

func NewHeuristic(engine intel.Engine, logger *zap.Logger) *Heuristic {
	if engine == nil {
		engine = intel.NewRegexBundle()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Heuristic{engine: engine, logger: logger}
}

func (h *Heuristic) Analyze(ctx context.Context, req Request) (*verdict.Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(req.Attachments))
	for _, a := range req.Attachments {
		names = append(names, a.Blob.Name)
	}

	res, err := h.engine.Analyze(ctx, req.TrimmedText(), names)
	if err != nil {
		return nil, fmt.Errorf("heuristic analysis: %w", err)
	}

	v := res.Verdict()
	st := h.engine.Status()
	h.logger.Debug("heuristic verdict",
		zap.String("bundle", st.BundleID),
		zap.String("bundle_version", st.BundleVersion),
		zap.Int("hits", len(res.Hits)),
		zap.Int("score", res.Score),
		zap.String("threat_level", string(v.ThreatLevel)))
	return &v, nil
}
