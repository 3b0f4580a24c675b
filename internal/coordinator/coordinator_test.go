package coordinator

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/straja-ai/lightning-guard/internal/analyzer"
	"github.com/straja-ai/lightning-guard/internal/attachment"
	"github.com/straja-ai/lightning-guard/internal/notify"
	"github.com/straja-ai/lightning-guard/internal/verdict"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"))
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []notify.Notice
}

func (r *recordingNotifier) Notify(_ context.Context, n notify.Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

func (r *recordingNotifier) titles() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.notices))
	for _, n := range r.notices {
		out = append(out, n.Title)
	}
	return out
}

func (r *recordingNotifier) last() notify.Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.notices[len(r.notices)-1]
}

type trackedPreview struct {
	released *int32
}

func (p *trackedPreview) URL() string        { return "file:///tmp/preview" }
func (p *trackedPreview) Bounds() (int, int) { return 1, 1 }

func (p *trackedPreview) Release() error {
	atomic.AddInt32(p.released, 1)
	return nil
}

type trackingAllocator struct {
	allocated int32
	released  int32

	// When set, Allocate signals entered and blocks until gate closes.
	entered chan struct{}
	gate    chan struct{}
}

func (a *trackingAllocator) Allocate(attachment.Blob) (attachment.Preview, error) {
	if a.gate != nil {
		a.entered <- struct{}{}
		<-a.gate
	}
	atomic.AddInt32(&a.allocated, 1)
	return &trackedPreview{released: &a.released}, nil
}

func pngBlob(name string) attachment.Blob {
	return attachment.Blob{Name: name, MIMEType: "image/png", Data: []byte{0x89, 'P', 'N', 'G'}}
}

func newTestCoordinator(t *testing.T, a analyzer.Analyzer, opts Options) (*Coordinator, *recordingNotifier, *trackingAllocator) {
	t.Helper()
	alloc := &trackingAllocator{}
	rec := &recordingNotifier{}
	opts.Analyzer = a
	if opts.Store == nil {
		opts.Store = attachment.NewStore(attachment.WithPreviews(alloc))
	}
	opts.Notifier = rec
	c, err := New(opts)
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}
	t.Cleanup(c.Close)
	return c, rec, alloc
}

func TestNewRequiresAnalyzer(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatalf("expected error without analyzer")
	}
}

func TestEmptyInputStaysIdle(t *testing.T) {
	fake := analyzer.NewFake(verdict.Result{ThreatLevel: verdict.ThreatSafe})
	c, rec, _ := newTestCoordinator(t, fake, Options{})

	c.SetText("   \n\t")
	err := c.Analyze(context.Background())
	if !errors.Is(err, ErrInputRequired) || !errors.Is(err, analyzer.ErrInputRequired) {
		t.Fatalf("expected ErrInputRequired, got %v", err)
	}
	if st := c.State(); st.Phase != PhaseIdle {
		t.Fatalf("expected idle, got %s", st.Phase)
	}
	if len(fake.Calls()) != 0 {
		t.Fatalf("analyzer must not be called")
	}
	if got := rec.titles(); len(got) != 1 || got[0] != "Input Required" {
		t.Fatalf("unexpected notices %v", got)
	}
}

func TestSettledWithDangerNotice(t *testing.T) {
	res := verdict.Result{ThreatLevel: verdict.ThreatDanger, Confidence: 91, Category: "Phishing", Details: "d", Recommendations: []string{"r"}}
	fake := analyzer.NewFake(res)

	var phases []Phase
	var mu sync.Mutex
	c, rec, _ := newTestCoordinator(t, fake, Options{OnChange: func(s State) {
		mu.Lock()
		phases = append(phases, s.Phase)
		mu.Unlock()
	}})

	c.SetText("  click here  ")
	c.AddFiles(pngBlob("a.png"))
	if err := c.Analyze(context.Background()); err != nil {
		t.Fatalf("analyze: %v", err)
	}

	st := c.State()
	if st.Phase != PhaseSettled || st.Result == nil || st.Result.ThreatLevel != verdict.ThreatDanger {
		t.Fatalf("unexpected state %+v", st)
	}
	n := rec.last()
	if n.Title != "Analysis Complete" || n.Description != "Threat level: DANGER" || n.Variant != notify.VariantDestructive {
		t.Fatalf("unexpected notice %+v", n)
	}

	calls := fake.Calls()
	if len(calls) != 1 || calls[0].Text != "  click here  " || len(calls[0].Attachments) != 1 {
		t.Fatalf("unexpected calls %+v", calls)
	}
	if len(c.Attachments()) != 1 {
		t.Fatalf("attachments must be kept by default")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(phases) != 2 || phases[0] != PhaseAnalyzing || phases[1] != PhaseSettled {
		t.Fatalf("unexpected transitions %v", phases)
	}
}

func TestFailedIsReenterable(t *testing.T) {
	fake := analyzer.NewFake(verdict.Result{ThreatLevel: verdict.ThreatSafe})
	fake.Error = &analyzer.ServerError{StatusCode: 429, Body: "rate limited"}
	c, rec, _ := newTestCoordinator(t, fake, Options{})

	c.SetText("hello")
	if err := c.Analyze(context.Background()); err != nil {
		t.Fatalf("analyze: %v", err)
	}
	st := c.State()
	if st.Phase != PhaseFailed || st.Message() != "rate limited" || st.Result != nil {
		t.Fatalf("unexpected state %+v", st)
	}
	if c.Busy() {
		t.Fatalf("busy flag must be cleared after failure")
	}
	if n := rec.last(); n.Title != "Error" || n.Description != "rate limited" {
		t.Fatalf("unexpected notice %+v", n)
	}

	fake.Error = nil
	if err := c.Analyze(context.Background()); err != nil {
		t.Fatalf("second analyze: %v", err)
	}
	if st := c.State(); st.Phase != PhaseSettled || st.Err != nil {
		t.Fatalf("expected settled after retry, got %+v", st)
	}
	if len(fake.Calls()) != 2 {
		t.Fatalf("expected two calls, got %d", len(fake.Calls()))
	}
}

func TestSecondAnalyzeWhileBusyIsIgnored(t *testing.T) {
	var hits int32
	release := make(chan struct{})
	entered := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			close(entered)
		}
		<-release
		_, _ = io.WriteString(w, `{"threatLevel":"safe","confidence":80}`)
	}))
	defer srv.Close()

	remote := analyzer.NewRemote(analyzer.RemoteConfig{BaseURL: srv.URL})
	c, _, _ := newTestCoordinator(t, remote, Options{})
	c.SetText("is this ok?")

	done := make(chan error, 1)
	go func() { done <- c.Analyze(context.Background()) }()

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatalf("request never reached the server")
	}
	if !c.Busy() {
		t.Fatalf("expected busy while in flight")
	}
	if err := c.Analyze(context.Background()); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first analyze: %v", err)
	}
	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Fatalf("expected exactly one request, got %d", n)
	}
	if st := c.State(); st.Phase != PhaseSettled || st.Result.Confidence != 80 {
		t.Fatalf("unexpected state %+v", st)
	}
}

func TestMutationsDuringAnalyzingAffectNextSubmission(t *testing.T) {
	fake := analyzer.NewFake(verdict.Result{ThreatLevel: verdict.ThreatWarning})
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	fake.Hook = func(context.Context, analyzer.Request) {
		once.Do(func() {
			close(entered)
			<-release
		})
	}
	c, _, _ := newTestCoordinator(t, fake, Options{})
	c.SetText("first")
	first := c.AddFiles(pngBlob("one.png"))

	done := make(chan error, 1)
	go func() { done <- c.Analyze(context.Background()) }()
	<-entered

	c.SetText("second")
	c.RemoveFile(first[0].ID)
	c.AddFiles(pngBlob("two.png"), pngBlob("three.png"))
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("analyze: %v", err)
	}

	if err := c.Analyze(context.Background()); err != nil {
		t.Fatalf("second analyze: %v", err)
	}

	calls := fake.Calls()
	if len(calls) != 2 {
		t.Fatalf("expected two calls, got %d", len(calls))
	}
	if calls[0].Text != "first" || len(calls[0].Attachments) != 1 || calls[0].Attachments[0].Blob.Name != "one.png" {
		t.Fatalf("first snapshot changed: %+v", calls[0])
	}
	if calls[1].Text != "second" || len(calls[1].Attachments) != 2 || calls[1].Attachments[0].Blob.Name != "two.png" {
		t.Fatalf("unexpected second snapshot: %+v", calls[1])
	}
}

func TestCloseDiscardsLateResultAndReleasesPreviews(t *testing.T) {
	fake := analyzer.NewFake(verdict.Result{ThreatLevel: verdict.ThreatDanger})
	entered := make(chan struct{})
	release := make(chan struct{})
	fake.Hook = func(context.Context, analyzer.Request) {
		close(entered)
		<-release
	}

	var changes int32
	c, rec, alloc := newTestCoordinator(t, fake, Options{OnChange: func(State) { atomic.AddInt32(&changes, 1) }})
	c.SetText("x")
	c.AddFiles(pngBlob("a.png"), pngBlob("b.png"), attachment.Blob{Name: "c.txt", MIMEType: "text/plain"})

	done := make(chan error, 1)
	go func() { done <- c.Analyze(context.Background()) }()
	<-entered

	c.Close()
	if got := atomic.LoadInt32(&alloc.released); got != 2 {
		t.Fatalf("expected 2 previews released on close, got %d", got)
	}
	if len(c.Attachments()) != 0 {
		t.Fatalf("expected empty store after close")
	}
	closedState, closedBusy := c.State(), c.Busy()

	close(release)
	if err := <-done; !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed for discarded result, got %v", err)
	}
	if st := c.State(); st != closedState || c.Busy() != closedBusy {
		t.Fatalf("state changed after close: %v -> %v", closedState.Phase, st.Phase)
	}
	if got := rec.titles(); len(got) != 0 {
		t.Fatalf("no notice expected after close, got %v", got)
	}
	if atomic.LoadInt32(&changes) != 1 {
		t.Fatalf("expected only the analyzing transition, got %d", changes)
	}

	c.SetText("ignored")
	if c.Text() != "" || c.AddFiles(pngBlob("late.png")) != nil || c.RemoveFile("x") {
		t.Fatalf("intents after close must be no-ops")
	}
	if err := c.Analyze(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	c.Close()
	if got := atomic.LoadInt32(&alloc.released); got != 2 {
		t.Fatalf("previews must be released exactly once, got %d", got)
	}
}

func TestAddFilesDoesNotBlockReads(t *testing.T) {
	fake := analyzer.NewFake(verdict.Result{ThreatLevel: verdict.ThreatSafe})
	c, _, alloc := newTestCoordinator(t, fake, Options{})
	alloc.entered = make(chan struct{}, 1)
	alloc.gate = make(chan struct{})

	added := make(chan int, 1)
	go func() { added <- len(c.AddFiles(pngBlob("slow.png"))) }()
	<-alloc.entered

	reads := make(chan struct{})
	go func() {
		c.SetText("typed while loading")
		_ = c.State()
		_ = c.Busy()
		close(reads)
	}()
	select {
	case <-reads:
	case <-time.After(2 * time.Second):
		close(alloc.gate)
		t.Fatalf("reads blocked while a preview was being written")
	}

	closed := make(chan struct{})
	go func() {
		c.Close()
		close(closed)
	}()
	select {
	case <-closed:
		t.Fatalf("Close returned while AddFiles was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(alloc.gate)
	if n := <-added; n != 1 {
		t.Fatalf("expected the in-progress add to complete, got %d", n)
	}
	<-closed
	if a, r := atomic.LoadInt32(&alloc.allocated), atomic.LoadInt32(&alloc.released); a != 1 || r != 1 {
		t.Fatalf("expected the preview released by Close, allocated=%d released=%d", a, r)
	}
}

func TestClearOnSuccess(t *testing.T) {
	fake := analyzer.NewFake(verdict.Result{ThreatLevel: verdict.ThreatSafe})
	c, _, alloc := newTestCoordinator(t, fake, Options{ClearOnSuccess: true})
	c.AddFiles(pngBlob("a.png"))
	if err := c.Analyze(context.Background()); err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if len(c.Attachments()) != 0 || atomic.LoadInt32(&alloc.released) != 1 {
		t.Fatalf("expected store cleared after success")
	}

	fake.Error = errors.New("down")
	c.AddFiles(pngBlob("b.png"))
	if err := c.Analyze(context.Background()); err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if len(c.Attachments()) != 1 {
		t.Fatalf("failure must keep attachments")
	}
}

func TestConcurrentIntents(t *testing.T) {
	fake := analyzer.NewFake(verdict.Result{ThreatLevel: verdict.ThreatSafe})
	c, _, alloc := newTestCoordinator(t, fake, Options{})
	c.SetText("seed")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				switch (i + j) % 4 {
				case 0:
					c.AddFiles(pngBlob("p.png"))
				case 1:
					if list := c.Attachments(); len(list) > 0 {
						c.RemoveFile(list[0].ID)
					}
				case 2:
					err := c.Analyze(context.Background())
					if err != nil && !errors.Is(err, ErrBusy) {
						t.Errorf("unexpected analyze error: %v", err)
					}
				default:
					_ = c.State()
				}
			}
		}(i)
	}
	wg.Wait()

	if n := len(c.Attachments()); n > attachment.DefaultMax {
		t.Fatalf("store exceeded cap: %d", n)
	}
	c.Close()
	if a, r := atomic.LoadInt32(&alloc.allocated), atomic.LoadInt32(&alloc.released); a != r {
		t.Fatalf("allocated %d previews but released %d", a, r)
	}
}
