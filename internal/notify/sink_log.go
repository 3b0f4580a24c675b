package notify

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/straja-ai/lightning-guard/internal/config"
)

// LogSink writes notices to a zap logger at a level matching the notice.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger.Named("notice")}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Deliver(_ context.Context, n Notice) error {
	lvl := zapcore.InfoLevel
	switch n.Level {
	case LevelWarning:
		lvl = zapcore.WarnLevel
	case LevelError:
		lvl = zapcore.ErrorLevel
	}
	if ce := s.logger.Check(lvl, n.Title); ce != nil {
		ce.Write(
			zap.String("notice_id", n.ID),
			zap.String("description", n.Description),
			zap.String("variant", string(n.Variant)),
		)
	}
	return nil
}

func (s *LogSink) Close(context.Context) error {
	return nil
}

// FromConfig builds an Emitter with a log sink plus one webhook sink per
// configured endpoint.
func FromConfig(cfg config.NotifyConfig, logger *zap.Logger) (*Emitter, error) {
	sinks := []Sink{NewLogSink(logger)}
	for _, wh := range cfg.Webhooks {
		sink, err := NewWebhookSink(wh.URL, wh.Headers, wh.Timeout, ParseLevel(wh.MinLevel))
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, sink)
	}
	return NewEmitter(EmitterConfig{
		QueueSize:       cfg.QueueSize,
		Workers:         cfg.Workers,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, sinks, logger), nil
}
