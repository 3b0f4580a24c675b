// Package coordinator owns the lifecycle of a single analysis session: the
// user's draft text, the attachment store and the request state machine
// (Idle, Analyzing, Settled, Failed). Presentation layers drive it through
// intents and render State snapshots.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/straja-ai/lightning-guard/internal/analyzer"
	"github.com/straja-ai/lightning-guard/internal/attachment"
	"github.com/straja-ai/lightning-guard/internal/notify"
	"github.com/straja-ai/lightning-guard/internal/redact"
	"github.com/straja-ai/lightning-guard/internal/telemetry"
	"github.com/straja-ai/lightning-guard/internal/verdict"
)

var (
	// ErrBusy is returned when Analyze is called while a request is in flight.
	ErrBusy = errors.New("coordinator: analysis already in progress")
	// ErrClosed is returned by Analyze after Close.
	ErrClosed = errors.New("coordinator: closed")
	// ErrInputRequired mirrors analyzer.ErrInputRequired so callers can
	// test against either.
	ErrInputRequired = analyzer.ErrInputRequired
)

// Phase is the coarse request state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseAnalyzing
	PhaseSettled
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseAnalyzing:
		return "analyzing"
	case PhaseSettled:
		return "settled"
	case PhaseFailed:
		return "failed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// State is an immutable snapshot of the coordinator.
// Result is set only in PhaseSettled, Err only in PhaseFailed.
type State struct {
	Phase  Phase
	Result *verdict.Result
	Err    error
}

// Message returns the failure text shown to the user.
func (s State) Message() string {
	if s.Err == nil {
		return ""
	}
	return s.Err.Error()
}

// Options configures a Coordinator. Analyzer is required.
type Options struct {
	Analyzer  analyzer.Analyzer
	Store     *attachment.Store
	Notifier  notify.Notifier
	Telemetry *telemetry.Provider
	Logger    *zap.Logger

	// ClearOnSuccess empties the attachment store after a settled analysis.
	ClearOnSuccess bool
	// OnChange is called after every state transition, outside the lock.
	OnChange func(State)
}

// Coordinator is safe for concurrent use.
type Coordinator struct {
	analyzer       analyzer.Analyzer
	strategy       string
	store          *attachment.Store
	notifier       notify.Notifier
	telemetry      *telemetry.Provider
	logger         *zap.Logger
	clearOnSuccess bool
	onChange       func(State)

	// life orders store mutations against Close. It is taken before mu
	// and held across store I/O so mu stays free for reads.
	life sync.RWMutex

	mu     sync.Mutex
	text   string
	state  State
	closed bool
}

func New(opts Options) (*Coordinator, error) {
	if opts.Analyzer == nil {
		return nil, errors.New("coordinator: analyzer is required")
	}
	store := opts.Store
	if store == nil {
		store = attachment.NewStore(attachment.WithLogger(opts.Logger))
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.Nop
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		analyzer:       opts.Analyzer,
		strategy:       analyzer.Name(opts.Analyzer),
		store:          store,
		notifier:       notifier,
		telemetry:      opts.Telemetry,
		logger:         logger,
		clearOnSuccess: opts.ClearOnSuccess,
		onChange:       opts.OnChange,
	}, nil
}

// State returns the current snapshot.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Busy reports whether a request is in flight.
func (c *Coordinator) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Phase == PhaseAnalyzing
}

func (c *Coordinator) Text() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.text
}

func (c *Coordinator) Attachments() []attachment.Attachment {
	return c.store.List()
}

// SetText replaces the draft text. It is accepted in every phase and only
// affects the next submission.
func (c *Coordinator) SetText(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.text = text
}

// AddFiles appends blobs to the store and returns the attachments that
// survived the cap.
func (c *Coordinator) AddFiles(blobs ...attachment.Blob) []attachment.Attachment {
	c.life.RLock()
	defer c.life.RUnlock()
	if c.isClosed() {
		return nil
	}
	added := c.store.Add(blobs...)
	c.logger.Debug("attachments added",
		zap.Int("requested", len(blobs)),
		zap.Int("retained", len(added)),
		zap.Int("total", c.store.Len()))
	return added
}

// RemoveFile drops the attachment with id. Unknown ids are ignored.
func (c *Coordinator) RemoveFile(id string) bool {
	c.life.RLock()
	defer c.life.RUnlock()
	if c.isClosed() {
		return false
	}
	return c.store.Remove(id)
}

// Analyze submits the current draft and blocks until the analyzer answers.
// Analysis failures are reported through State and the notifier; the
// returned error is reserved for ErrInputRequired, ErrBusy and ErrClosed.
func (c *Coordinator) Analyze(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state.Phase == PhaseAnalyzing {
		c.mu.Unlock()
		return ErrBusy
	}
	req := analyzer.Request{Text: c.text, Attachments: c.store.List()}
	if err := req.Validate(); err != nil {
		c.mu.Unlock()
		c.logger.Info("analysis rejected: no input")
		c.notifier.Notify(ctx, notify.InputRequired())
		c.telemetry.RecordAnalysis(ctx, c.strategy, "rejected", "", 0, 0)
		return err
	}
	c.state = State{Phase: PhaseAnalyzing}
	st := c.state
	c.mu.Unlock()
	c.changed(st)

	c.logger.Info("analysis started",
		zap.String("strategy", c.strategy),
		zap.String("text_preview", redact.Preview(req.TrimmedText(), 60)),
		zap.Int("attachments", len(req.Attachments)))

	start := time.Now()
	res, err := c.analyzer.Analyze(ctx, req)
	elapsed := time.Since(start)
	if err == nil && res == nil {
		err = errors.New("analyzer returned no result")
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.logger.Debug("analysis result discarded after close", zap.Duration("elapsed", elapsed))
		return ErrClosed
	}
	if err != nil {
		c.state = State{Phase: PhaseFailed, Err: err}
	} else {
		c.state = State{Phase: PhaseSettled, Result: res}
	}
	st = c.state
	c.mu.Unlock()

	durMs := float64(elapsed.Microseconds()) / 1000.0
	if err != nil {
		c.logger.Warn("analysis failed", zap.Error(err), zap.Duration("elapsed", elapsed))
		c.notifier.Notify(ctx, notify.Failure(err.Error()))
		c.telemetry.RecordAnalysis(ctx, c.strategy, "failed", "", len(req.Attachments), durMs)
	} else {
		c.logger.Info("analysis settled",
			zap.String("threat_level", string(res.ThreatLevel)),
			zap.Float64("confidence", res.Confidence),
			zap.Strings("anomalies", res.Anomalies),
			zap.Duration("elapsed", elapsed))
		if c.clearOnSuccess {
			c.store.Clear()
		}
		c.notifier.Notify(ctx, notify.AnalysisComplete(res.ThreatLevel))
		c.telemetry.RecordAnalysis(ctx, c.strategy, "settled", string(res.ThreatLevel), len(req.Attachments), durMs)
	}
	c.changed(st)
	return nil
}

// Close clears the store, releasing every preview. A request in flight is
// left to finish but its result is discarded and State is frozen at the
// snapshot taken here. Close is idempotent.
func (c *Coordinator) Close() {
	c.life.Lock()
	defer c.life.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.text = ""
	c.mu.Unlock()

	c.store.Clear()
	c.logger.Debug("coordinator closed")
}

func (c *Coordinator) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Coordinator) changed(st State) {
	if c.onChange != nil {
		c.onChange(st)
	}
}
