package custody

import (
	"sync"

	"github.com/dtn7/dtn7-core/bundle"
)

// MemoryStore is a non-persistent Store, used in tests that don't need to
// exercise the badgerhold-backed durability path.
type MemoryStore struct {
	mu      sync.Mutex
	records map[bundle.BundleNumber]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[bundle.BundleNumber]Record)}
}

func (s *MemoryStore) Put(r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[r.Number] = r
	return nil
}

func (s *MemoryStore) Get(num bundle.BundleNumber) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[num]
	return r, ok, nil
}

func (s *MemoryStore) Delete(num bundle.BundleNumber) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, num)
	return nil
}

func (s *MemoryStore) All() ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	return out, nil
}
