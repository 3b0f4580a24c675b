package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/straja-ai/lightning-guard/internal/analyzer"
	"github.com/straja-ai/lightning-guard/internal/attachment"
	"github.com/straja-ai/lightning-guard/internal/config"
	"github.com/straja-ai/lightning-guard/internal/coordinator"
	"github.com/straja-ai/lightning-guard/internal/notify"
	"github.com/straja-ai/lightning-guard/internal/telemetry"
)

// session bundles everything one command needs to run analyses.
type session struct {
	cfg       *config.Config
	logger    *zap.Logger
	telemetry *telemetry.Provider
	emitter   *notify.Emitter
	analyzer  analyzer.Analyzer
	coord     *coordinator.Coordinator
}

type sessionOptions struct {
	// Notifier receives notices in addition to the configured sinks.
	Notifier notify.Notifier
	OnChange func(coordinator.State)
}

func newSession(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts sessionOptions) (*session, error) {
	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:  cfg.Telemetry.Enabled,
		Endpoint: cfg.Telemetry.Endpoint,
		Protocol: cfg.Telemetry.Protocol,
		Service:  "lightning-guard",
		Version:  version,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	emitter, err := notify.FromConfig(cfg.Notify, logger)
	if err != nil {
		tp.Shutdown(ctx)
		return nil, fmt.Errorf("init notifier: %w", err)
	}

	a, err := analyzer.New(cfg, analyzer.Options{Logger: logger, Telemetry: tp})
	if err != nil {
		emitter.Close(ctx)
		tp.Shutdown(ctx)
		return nil, err
	}

	store := attachment.NewStore(
		attachment.WithMax(cfg.Attachments.Max),
		attachment.WithPreviews(attachment.NewTempDirPreviews(cfg.Attachments.PreviewDir)),
		attachment.WithLogger(logger),
	)

	coord, err := coordinator.New(coordinator.Options{
		Analyzer:       a,
		Store:          store,
		Notifier:       notify.Multi(emitter, opts.Notifier),
		Telemetry:      tp,
		Logger:         logger,
		ClearOnSuccess: cfg.Attachments.ClearOnSuccess,
		OnChange:       opts.OnChange,
	})
	if err != nil {
		emitter.Close(ctx)
		tp.Shutdown(ctx)
		return nil, err
	}

	logger.Debug("session ready",
		zap.String("strategy", analyzer.Name(a)),
		zap.Int("max_attachments", store.Max()))

	return &session{
		cfg:       cfg,
		logger:    logger,
		telemetry: tp,
		emitter:   emitter,
		analyzer:  a,
		coord:     coord,
	}, nil
}

// Close tears down the coordinator first so pending notices are flushed
// by the emitter before telemetry shuts down.
func (s *session) Close(ctx context.Context) {
	s.coord.Close()
	s.emitter.Close(ctx)
	s.telemetry.Shutdown(ctx)
}
