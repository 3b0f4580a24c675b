package analyzer

import (
	"context"
	"sync"

	"github.com/straja-ai/lightning-guard/internal/verdict"
)

// Fake is an in-memory Analyzer for tests. It records every request it
// receives and answers with Result or Error.
type Fake struct {
	Result verdict.Result
	Error  error

	// Hook, when set, runs before the answer is returned. Tests use it to
	// hold a request in flight.
	Hook func(ctx context.Context, req Request)

	mu    sync.Mutex
	calls []Request
}

func NewFake(res verdict.Result) *Fake {
	return &Fake{Result: res}
}

func (f *Fake) Analyze(ctx context.Context, req Request) (*verdict.Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.calls = append(f.calls, req)
	hook := f.Hook
	res, ferr := f.Result, f.Error
	f.mu.Unlock()

	if hook != nil {
		hook(ctx, req)
	}
	if ferr != nil {
		return nil, ferr
	}
	return &res, nil
}

// Calls returns a copy of the recorded requests.
func (f *Fake) Calls() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Request, len(f.calls))
	copy(out, f.calls)
	return out
}
