package notify

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/straja-ai/lightning-guard/internal/verdict"
)

// Variant selects how a notice is styled by the presentation.
type Variant string

const (
	VariantDefault     Variant = "default"
	VariantDestructive Variant = "destructive"
)

// Level orders notices for sinks that filter by severity.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

func (l Level) rank() int {
	switch l {
	case LevelWarning:
		return 1
	case LevelError:
		return 2
	default:
		return 0
	}
}

// AtLeast reports whether l is as severe as min.
func (l Level) AtLeast(min Level) bool {
	return l.rank() >= min.rank()
}

// ParseLevel maps a config string onto a Level. Unknown values mean info.
func ParseLevel(s string) Level {
	switch Level(strings.ToLower(strings.TrimSpace(s))) {
	case LevelWarning:
		return LevelWarning
	case LevelError:
		return LevelError
	default:
		return LevelInfo
	}
}

// Notice is a transient user-facing message.
type Notice struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Variant     Variant   `json:"variant"`
	Level       Level     `json:"level"`
	Timestamp   time.Time `json:"timestamp"`
}

// Notifier receives notices. Implementations must not block for long.
type Notifier interface {
	Notify(ctx context.Context, n Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notice)

func (f NotifierFunc) Notify(ctx context.Context, n Notice) {
	if f != nil {
		f(ctx, n)
	}
}

// Nop discards every notice.
var Nop Notifier = NotifierFunc(func(context.Context, Notice) {})

// Multi fans a notice out to several notifiers in order.
func Multi(ns ...Notifier) Notifier {
	out := make([]Notifier, 0, len(ns))
	for _, n := range ns {
		if n != nil {
			out = append(out, n)
		}
	}
	return NotifierFunc(func(ctx context.Context, n Notice) {
		for _, t := range out {
			t.Notify(ctx, n)
		}
	})
}

func newNotice(title, description string, variant Variant, level Level) Notice {
	return Notice{
		ID:          uuid.NewString(),
		Title:       title,
		Description: description,
		Variant:     variant,
		Level:       level,
		Timestamp:   time.Now().UTC(),
	}
}

// InputRequired is raised when the user submits nothing.
func InputRequired() Notice {
	return newNotice("Input Required", "Please enter text or attach files to analyze.", VariantDestructive, LevelWarning)
}

// AnalysisComplete announces a settled verdict.
func AnalysisComplete(level verdict.ThreatLevel) Notice {
	n := newNotice("Analysis Complete", "Threat level: "+strings.ToUpper(string(level)), VariantDefault, LevelInfo)
	switch level {
	case verdict.ThreatDanger:
		n.Variant = VariantDestructive
		n.Level = LevelError
	case verdict.ThreatWarning:
		n.Level = LevelWarning
	}
	return n
}

// Failure reports a failed analysis with the error message.
func Failure(msg string) Notice {
	if strings.TrimSpace(msg) == "" {
		msg = "Something went wrong"
	}
	return newNotice("Error", msg, VariantDestructive, LevelError)
}
