package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/dtn7/dtn7-core/bundle"
)

const indexFileName = "bundle_list"

type slotState struct {
	indexRecord
	Priority  bundle.ProcessingFlags
	Protected bool
}

// FileStore is the on-disk Storage implementation: one file per bundle
// number holding its exact encoded bytes, plus a single binary index file
// recording every slot's metadata for fast startup replay.
type FileStore struct {
	mu sync.Mutex

	dir   string
	slots map[bundle.BundleNumber]*slotState

	capacity int
	dirty    bool

	lockFd int

	log *log.Entry
}

// NewFileStore opens (creating if absent) a FileStore rooted at dir with
// room for capacity slots. An advisory flock on a lock file beside the index
// (bundle_list.lock) guards against a second process accidentally sharing
// the directory.
func NewFileStore(dir string, capacity int) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: creating directory: %w", err)
	}

	fs := &FileStore{
		dir:      dir,
		slots:    make(map[bundle.BundleNumber]*slotState),
		capacity: capacity,
		lockFd:   -1,
		log:      log.WithField("component", "storage"),
	}

	lockPath := filepath.Join(dir, indexFileName+".lock")
	fd, err := unix.Open(lockPath, unix.O_CREAT|unix.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("storage: opening lock file: %w", err)
	}
	if err := unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("storage: acquiring index lock (already running?): %w", err)
	}
	fs.lockFd = fd

	if err := fs.replayIndex(); err != nil {
		return nil, err
	}

	return fs, nil
}

// Close rewrites the index if it has unsaved changes, then releases the
// advisory lock. The FileStore is unusable afterwards.
func (fs *FileStore) Close() error {
	if fs.lockFd < 0 {
		return nil
	}
	fs.mu.Lock()
	if fs.dirty {
		if err := fs.writeIndex(); err != nil {
			fs.log.WithField("error", err).Warn("storage: index rewrite on close failed")
		}
	}
	fs.mu.Unlock()
	_ = unix.Flock(fs.lockFd, unix.LOCK_UN)
	err := unix.Close(fs.lockFd)
	fs.lockFd = -1
	return err
}

func (fs *FileStore) indexPath() string {
	return filepath.Join(fs.dir, indexFileName)
}

func (fs *FileStore) bundlePath(num bundle.BundleNumber) string {
	return filepath.Join(fs.dir, fmt.Sprintf("%d.b", uint32(num)))
}

// replayIndex loads bundle_list, discarding (with a log entry) any record
// whose backing file is missing or fails codec validation — per the startup
// contract, a corrupt slot never blocks the rest of the store from coming up.
func (fs *FileStore) replayIndex() error {
	f, err := os.Open(fs.indexPath())
	if os.IsNotExist(err) {
		return nil
	} else if err != nil {
		return newError(ErrKindIndexCorrupt, err.Error())
	}
	defer f.Close()

	for {
		rec, err := decodeIndexRecord(f)
		if err != nil {
			break
		}

		data, rerr := os.ReadFile(fs.bundlePath(rec.Number))
		if rerr != nil {
			fs.log.WithFields(log.Fields{"bundle_number": rec.Number, "error": rerr}).
				Warn("storage: dropping slot with missing backing file")
			continue
		}

		b, derr := bundle.FromBytes(data)
		if derr != nil {
			fs.log.WithFields(log.Fields{"bundle_number": rec.Number, "error": derr}).
				Warn("storage: dropping slot that failed codec validation")
			continue
		}

		fs.slots[rec.Number] = &slotState{indexRecord: rec, Priority: b.ProcessingFlags.Priority()}
	}

	return nil
}

// writeIndex rewrites bundle_list from the current in-memory slot set.
// Called after eviction sweeps and on Close rather than after every
// mutation, to amortize write cost as the spec requires.
func (fs *FileStore) writeIndex() error {
	tmp := fs.indexPath() + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return newError(ErrKindBackingStoreIO, err.Error())
	}

	for _, s := range fs.slots {
		if _, err := f.Write(encodeIndexRecord(s.indexRecord)); err != nil {
			f.Close()
			return newError(ErrKindBackingStoreIO, err.Error())
		}
	}

	if err := f.Sync(); err != nil {
		f.Close()
		return newError(ErrKindBackingStoreIO, err.Error())
	}
	if err := f.Close(); err != nil {
		return newError(ErrKindBackingStoreIO, err.Error())
	}
	if err := os.Rename(tmp, fs.indexPath()); err != nil {
		return newError(ErrKindBackingStoreIO, err.Error())
	}

	fs.dirty = false
	return nil
}

// Save implements Storage.
func (fs *FileStore) Save(b *bundle.Bundle, now uint32) (bundle.BundleNumber, error) {
	num := b.ID()

	fs.mu.Lock()
	defer fs.mu.Unlock()

	if _, exists := fs.slots[num]; exists {
		return num, nil
	}

	data, err := b.ToBytes()
	if err != nil {
		return 0, newError(ErrKindBackingStoreIO, "encoding bundle: "+err.Error())
	}

	if len(fs.slots) >= fs.capacity {
		if !fs.evictForIncoming(b.ProcessingFlags.Priority()) {
			return 0, newError(ErrKindFull, "store full and no lower-priority victim available")
		}
	}

	if err := os.WriteFile(fs.bundlePath(num), data, 0o644); err != nil {
		return 0, newError(ErrKindBackingStoreIO, err.Error())
	}

	fs.slots[num] = &slotState{
		indexRecord: indexRecord{
			Number:     num,
			RecordTime: now,
			Lifetime:   b.Lifetime,
			Size:       uint16(len(data)),
		},
		Priority: b.ProcessingFlags.Priority(),
	}
	fs.dirty = true

	return num, nil
}

// evictForIncoming implements the under-pressure eviction policy: evict the
// lowest-priority, non-custody-protected slot if it is strictly lower
// priority than the incoming bundle. Returns false if no eligible victim
// exists, in which case Save must report ErrKindFull.
func (fs *FileStore) evictForIncoming(incoming bundle.ProcessingFlags) bool {
	var victim bundle.BundleNumber
	var victimPriority bundle.ProcessingFlags = bundle.PriorityExpedited + 1
	var victimRecordTime uint32
	found := false

	for num, s := range fs.slots {
		if s.Protected {
			continue
		}
		if !found || s.Priority < victimPriority ||
			(s.Priority == victimPriority && s.RecordTime < victimRecordTime) {
			victim, victimPriority, victimRecordTime, found = num, s.Priority, s.RecordTime, true
		}
	}

	if !found || victimPriority >= incoming {
		return false
	}

	delete(fs.slots, victim)
	_ = os.Remove(fs.bundlePath(victim))
	fs.dirty = true

	fs.log.WithFields(log.Fields{"evicted": victim, "reason": ReasonDepletedStorage}).
		Info("storage: evicted lower-priority bundle under pressure")

	return true
}

// Read implements Storage.
func (fs *FileStore) Read(num bundle.BundleNumber) (bundle.Bundle, error) {
	fs.mu.Lock()
	_, exists := fs.slots[num]
	fs.mu.Unlock()

	if !exists {
		return bundle.Bundle{}, newError(ErrKindNotFound, fmt.Sprintf("bundle %d not in storage", num))
	}

	data, err := os.ReadFile(fs.bundlePath(num))
	if err != nil {
		return bundle.Bundle{}, newError(ErrKindBackingStoreIO, err.Error())
	}

	b, err := bundle.FromBytes(data)
	if err != nil {
		return bundle.Bundle{}, newError(ErrKindBackingStoreIO, "decoding stored bundle: "+err.Error())
	}

	return b, nil
}

// Delete implements Storage.
func (fs *FileStore) Delete(num bundle.BundleNumber, reason DeleteReason) (DeletionNotice, error) {
	b, err := fs.Read(num)
	if err != nil {
		return DeletionNotice{}, err
	}

	fs.mu.Lock()
	delete(fs.slots, num)
	fs.dirty = true
	fs.mu.Unlock()

	if err := os.Remove(fs.bundlePath(num)); err != nil && !os.IsNotExist(err) {
		return DeletionNotice{}, newError(ErrKindBackingStoreIO, err.Error())
	}

	return DeletionNotice{Number: num, Bundle: b, Reason: reason}, nil
}

// FreeSpace implements Storage.
func (fs *FileStore) FreeSpace() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.capacity - len(fs.slots)
}

// List implements Storage.
func (fs *FileStore) List() []bundle.BundleNumber {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	out := make([]bundle.BundleNumber, 0, len(fs.slots))
	for num := range fs.slots {
		out = append(out, num)
	}
	return out
}

// Sweep implements Storage.
func (fs *FileStore) Sweep(now uint32) []DeletionNotice {
	fs.mu.Lock()
	var expired []bundle.BundleNumber
	for num, s := range fs.slots {
		if s.Protected {
			continue
		}
		if s.RecordTime+s.Lifetime < now {
			expired = append(expired, num)
		}
	}
	fs.mu.Unlock()

	notices := make([]DeletionNotice, 0, len(expired))
	for _, num := range expired {
		notice, err := fs.Delete(num, ReasonLifetimeExpired)
		if err != nil {
			fs.log.WithFields(log.Fields{"bundle_number": num, "error": err}).
				Warn("storage: sweep failed to delete expired slot")
			continue
		}
		notices = append(notices, notice)
	}

	fs.mu.Lock()
	if fs.dirty {
		if err := fs.writeIndex(); err != nil {
			fs.log.WithField("error", err).Warn("storage: index rewrite failed")
		}
	}
	fs.mu.Unlock()

	return notices
}

// Protect marks num as held under custody, exempting it from lifetime
// eviction and pressure eviction until Unprotect is called.
func (fs *FileStore) Protect(num bundle.BundleNumber) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if s, ok := fs.slots[num]; ok {
		s.Protected = true
	}
}

// Unprotect releases a prior Protect.
func (fs *FileStore) Unprotect(num bundle.BundleNumber) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if s, ok := fs.slots[num]; ok {
		s.Protected = false
	}
}
