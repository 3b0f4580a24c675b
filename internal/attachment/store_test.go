package attachment

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type countingPreview struct {
	id       string
	releases *int
	mu       *sync.Mutex
	failWith error
}

func (p *countingPreview) URL() string        { return "mem://" + p.id }
func (p *countingPreview) Bounds() (int, int) { return 1, 1 }
func (p *countingPreview) Release() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	*p.releases++
	return p.failWith
}

type countingAllocator struct {
	mu       sync.Mutex
	n        int
	releases map[string]*int
	failWith error
}

func newCountingAllocator() *countingAllocator {
	return &countingAllocator{releases: make(map[string]*int)}
}

func (a *countingAllocator) Allocate(b Blob) (Preview, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.n++
	id := fmt.Sprintf("p%d", a.n)
	count := 0
	a.releases[id] = &count
	return &countingPreview{id: id, releases: &count, mu: &a.mu, failWith: a.failWith}, nil
}

func (a *countingAllocator) releaseCount(p Preview) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return *a.releases[p.(*countingPreview).id]
}

func (a *countingAllocator) allReleasedOnce(t *testing.T, except map[string]bool) {
	t.Helper()
	a.mu.Lock()
	defer a.mu.Unlock()
	for id, n := range a.releases {
		if except[id] {
			if *n != 0 {
				t.Fatalf("preview %s still in store but released %d times", id, *n)
			}
			continue
		}
		if *n != 1 {
			t.Fatalf("preview %s released %d times, want 1", id, *n)
		}
	}
}

func img(name string) Blob  { return Blob{Name: name, MIMEType: "image/png", Data: []byte{1}} }
func text(name string) Blob { return Blob{Name: name, MIMEType: "text/plain", Data: []byte("x")} }

func ids(list []Attachment) []string {
	out := make([]string, 0, len(list))
	for _, a := range list {
		out = append(out, a.Blob.Name)
	}
	return out
}

func TestAddCreatesPreviewOnlyForImages(t *testing.T) {
	alloc := newCountingAllocator()
	s := NewStore(WithPreviews(alloc))

	added := s.Add(img("a.png"), text("b.txt"), Blob{Name: "empty.bin"})
	if len(added) != 3 {
		t.Fatalf("expected 3 attachments, got %d", len(added))
	}
	if added[0].Preview == nil {
		t.Fatalf("expected preview for image")
	}
	if added[1].Preview != nil || added[2].Preview != nil {
		t.Fatalf("expected no preview for non-image blobs")
	}
	if added[0].ID == added[1].ID {
		t.Fatalf("expected unique ids, got %q twice", added[0].ID)
	}
}

func TestAddNineKeepsFirstEight(t *testing.T) {
	alloc := newCountingAllocator()
	s := NewStore(WithPreviews(alloc))

	var blobs []Blob
	for i := 1; i <= 9; i++ {
		blobs = append(blobs, img(fmt.Sprintf("f%d.png", i)))
	}
	added := s.Add(blobs...)

	if s.Len() != 8 {
		t.Fatalf("expected 8 attachments, got %d", s.Len())
	}
	want := []string{"f1.png", "f2.png", "f3.png", "f4.png", "f5.png", "f6.png", "f7.png", "f8.png"}
	if diff := cmp.Diff(want, ids(s.List())); diff != "" {
		t.Fatalf("kept attachments (-want +got):\n%s", diff)
	}
	if len(added) != 8 {
		t.Fatalf("expected 8 retained from this call, got %d", len(added))
	}
	if alloc.n != 9 {
		t.Fatalf("expected 9 previews allocated, got %d", alloc.n)
	}
	if got := *alloc.releases["p9"]; got != 1 {
		t.Fatalf("expected evicted preview released once, got %d", got)
	}
	for _, a := range s.List() {
		if n := alloc.releaseCount(a.Preview); n != 0 {
			t.Fatalf("kept preview %s released %d times", a.ID, n)
		}
	}
}

func TestAddToFullStoreEvictsNewcomers(t *testing.T) {
	alloc := newCountingAllocator()
	s := NewStore(WithPreviews(alloc), WithMax(2))

	s.Add(img("a.png"), img("b.png"))
	added := s.Add(img("c.png"))
	if len(added) != 0 {
		t.Fatalf("expected newcomer to be evicted, got %v", ids(added))
	}
	if diff := cmp.Diff([]string{"a.png", "b.png"}, ids(s.List())); diff != "" {
		t.Fatalf("store contents (-want +got):\n%s", diff)
	}
}

func TestRemove(t *testing.T) {
	alloc := newCountingAllocator()
	s := NewStore(WithPreviews(alloc))
	added := s.Add(img("a.png"), text("b.txt"), img("c.png"))

	if !s.Remove(added[0].ID) {
		t.Fatalf("expected remove to succeed")
	}
	if s.Remove(added[0].ID) {
		t.Fatalf("expected second remove to be a no-op")
	}
	if s.Remove("missing") {
		t.Fatalf("expected unknown id to be a no-op")
	}
	if n := alloc.releaseCount(added[0].Preview); n != 1 {
		t.Fatalf("expected removed preview released once, got %d", n)
	}
	if !s.Remove(added[1].ID) {
		t.Fatalf("expected non-image remove to succeed")
	}
	if diff := cmp.Diff([]string{"c.png"}, ids(s.List())); diff != "" {
		t.Fatalf("store contents (-want +got):\n%s", diff)
	}
}

func TestClearReleasesEverything(t *testing.T) {
	alloc := newCountingAllocator()
	s := NewStore(WithPreviews(alloc))
	s.Add(img("a.png"), img("b.png"), text("c.txt"))

	s.Clear()
	s.Clear()

	if s.Len() != 0 {
		t.Fatalf("expected empty store, got %d", s.Len())
	}
	alloc.allReleasedOnce(t, nil)
}

func TestReleaseErrorsAreSwallowed(t *testing.T) {
	alloc := newCountingAllocator()
	alloc.failWith = errors.New("already revoked")
	s := NewStore(WithPreviews(alloc))
	added := s.Add(img("a.png"), img("b.png"))

	if !s.Remove(added[0].ID) {
		t.Fatalf("expected remove to succeed despite release error")
	}
	s.Clear()
	if s.Len() != 0 {
		t.Fatalf("expected empty store")
	}
}

func TestListIsSnapshot(t *testing.T) {
	s := NewStore(WithPreviews(newCountingAllocator()))
	s.Add(text("a.txt"))
	list := s.List()
	list[0].ID = "mutated"
	if s.List()[0].ID == "mutated" {
		t.Fatalf("List must return a copy")
	}
}

func TestRandomOperationsHonorCapAndReleaseOnce(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	alloc := newCountingAllocator()
	s := NewStore(WithPreviews(alloc))

	for step := 0; step < 500; step++ {
		switch rng.Intn(3) {
		case 0, 1:
			n := rng.Intn(4) + 1
			blobs := make([]Blob, n)
			for i := range blobs {
				blobs[i] = img(fmt.Sprintf("s%d_%d.png", step, i))
			}
			s.Add(blobs...)
		default:
			list := s.List()
			if len(list) > 0 {
				s.Remove(list[rng.Intn(len(list))].ID)
			}
		}
		if s.Len() > DefaultMax {
			t.Fatalf("step %d: store holds %d > %d", step, s.Len(), DefaultMax)
		}
	}

	live := make(map[string]bool)
	for _, a := range s.List() {
		live[a.Preview.(*countingPreview).id] = true
	}
	alloc.allReleasedOnce(t, live)

	s.Clear()
	alloc.allReleasedOnce(t, nil)
}

func TestConcurrentMutation(t *testing.T) {
	s := NewStore(WithPreviews(newCountingAllocator()))
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				added := s.Add(img(fmt.Sprintf("g%d_%d.png", i, j)))
				for _, a := range added {
					s.Remove(a.ID)
				}
				_ = s.List()
			}
		}(i)
	}
	wg.Wait()
	if s.Len() > DefaultMax {
		t.Fatalf("cap exceeded under concurrency: %d", s.Len())
	}
}
