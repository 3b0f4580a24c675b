package attachment

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// DefaultMax is the number of attachments kept by a store unless configured otherwise.
const DefaultMax = 8

// Attachment is one pending file plus its optional preview handle.
// Preview is non-nil iff the blob is an image and allocation succeeded.
type Attachment struct {
	ID      string
	Blob    Blob
	Preview Preview
}

// Store is an ordered, bounded list of attachments. It owns every preview
// handle it hands out and releases each one exactly once when the entry
// leaves the store. All methods are safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	max      int
	previews PreviewAllocator
	logger   *zap.Logger
	seq      uint64
	items    []Attachment
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithMax sets the attachment cap. Non-positive values keep DefaultMax.
func WithMax(n int) StoreOption {
	return func(s *Store) {
		if n > 0 {
			s.max = n
		}
	}
}

// WithPreviews sets the allocator used for image previews.
func WithPreviews(a PreviewAllocator) StoreOption {
	return func(s *Store) {
		if a != nil {
			s.previews = a
		}
	}
}

// WithLogger sets the logger used for swallowed preview errors.
func WithLogger(l *zap.Logger) StoreOption {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewStore creates an empty store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		max:    DefaultMax,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.previews == nil {
		s.previews = NewTempDirPreviews("")
	}
	return s
}

// Max returns the configured cap.
func (s *Store) Max() int { return s.max }

// Add appends one attachment per blob and then trims the list to the cap,
// keeping the oldest entries. It returns the attachments from this call that
// survived trimming.
func (s *Store) Add(blobs ...Blob) []Attachment {
	if len(blobs) == 0 {
		return nil
	}

	s.mu.Lock()
	fresh := make([]Attachment, 0, len(blobs))
	for _, b := range blobs {
		s.seq++
		fresh = append(fresh, Attachment{
			ID:   fmt.Sprintf("%06d_%s", s.seq, b.Name),
			Blob: b,
		})
	}
	s.mu.Unlock()

	for i := range fresh {
		if !fresh[i].Blob.IsImage() {
			continue
		}
		p, err := s.previews.Allocate(fresh[i].Blob)
		if err != nil {
			s.logger.Warn("preview allocation failed",
				zap.String("attachment", fresh[i].ID),
				zap.Error(err))
			continue
		}
		fresh[i].Preview = p
	}

	s.mu.Lock()
	merged := append(s.items, fresh...)
	var evicted []Attachment
	if len(merged) > s.max {
		evicted = append(evicted, merged[s.max:]...)
		merged = merged[:s.max:s.max]
	}
	s.items = merged
	kept := make(map[string]struct{}, len(merged))
	for _, a := range merged {
		kept[a.ID] = struct{}{}
	}
	s.mu.Unlock()

	for _, a := range evicted {
		s.logger.Debug("attachment evicted over cap",
			zap.String("attachment", a.ID),
			zap.Int("max", s.max))
		s.release(a)
	}

	retained := make([]Attachment, 0, len(fresh))
	for _, a := range fresh {
		if _, ok := kept[a.ID]; ok {
			retained = append(retained, a)
		}
	}
	return retained
}

// Remove drops the attachment with id and releases its preview. Unknown ids
// are ignored.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	idx := -1
	for i, a := range s.items {
		if a.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	removed := s.items[idx]
	next := make([]Attachment, 0, len(s.items)-1)
	next = append(next, s.items[:idx]...)
	next = append(next, s.items[idx+1:]...)
	s.items = next
	s.mu.Unlock()

	s.release(removed)
	return true
}

// Clear removes every attachment, releasing all previews.
func (s *Store) Clear() {
	s.mu.Lock()
	items := s.items
	s.items = nil
	s.mu.Unlock()

	for _, a := range items {
		s.release(a)
	}
}

// List returns a snapshot of the attachments in insertion order.
func (s *Store) List() []Attachment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Attachment, len(s.items))
	copy(out, s.items)
	return out
}

// Len returns the number of attachments currently held.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *Store) release(a Attachment) {
	if a.Preview == nil {
		return
	}
	if err := a.Preview.Release(); err != nil {
		s.logger.Debug("preview release failed",
			zap.String("attachment", a.ID),
			zap.Error(err))
	}
}
