package custody

import (
	"github.com/timshannon/badgerhold"

	"github.com/dtn7/dtn7-core/bundle"
)

// BadgerStore is the durable custody Store: records survive a process
// restart, mirroring what the original firmware got for free by keeping
// custody state in static RAM across a non-volatile reset.
type BadgerStore struct {
	bh *badgerhold.Store
}

// NewBadgerStore opens (creating if absent) a badgerhold database at dir.
func NewBadgerStore(dir string) (*BadgerStore, error) {
	opts := badgerhold.DefaultOptions
	opts.Dir = dir
	opts.ValueDir = dir

	bh, err := badgerhold.Open(opts)
	if err != nil {
		return nil, err
	}

	return &BadgerStore{bh: bh}, nil
}

// Close releases the underlying database.
func (s *BadgerStore) Close() error {
	return s.bh.Close()
}

func (s *BadgerStore) Put(r Record) error {
	err := s.bh.Upsert(uint32(r.Number), r)
	return err
}

func (s *BadgerStore) Get(num bundle.BundleNumber) (Record, bool, error) {
	var r Record
	err := s.bh.Get(uint32(num), &r)
	if err == badgerhold.ErrNotFound {
		return Record{}, false, nil
	} else if err != nil {
		return Record{}, false, err
	}
	return r, true, nil
}

func (s *BadgerStore) Delete(num bundle.BundleNumber) error {
	err := s.bh.Delete(uint32(num), Record{})
	if err == badgerhold.ErrNotFound {
		return nil
	}
	return err
}

func (s *BadgerStore) All() ([]Record, error) {
	var records []Record
	if err := s.bh.Find(&records, nil); err != nil {
		return nil, err
	}
	return records, nil
}
