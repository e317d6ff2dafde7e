// Package storage is the slotted persistent bundle store: one backing file
// per bundle number plus a fixed-width binary index, lifetime-based
// eviction, priority-based eviction under pressure, and content-hash
// de-duplication.
package storage

import "github.com/dtn7/dtn7-core/bundle"

// DeleteReason is why a bundle left storage, mirroring the reasons a status
// report or custody signal may need to cite.
type DeleteReason int

const (
	ReasonDelivered DeleteReason = iota
	ReasonLifetimeExpired
	ReasonDepletedStorage
	ReasonCustodyReleased
	ReasonExplicit
)

func (r DeleteReason) String() string {
	switch r {
	case ReasonDelivered:
		return "delivered"
	case ReasonLifetimeExpired:
		return "lifetime expired"
	case ReasonDepletedStorage:
		return "depleted storage"
	case ReasonCustodyReleased:
		return "custody released"
	case ReasonExplicit:
		return "explicit"
	default:
		return "unknown"
	}
}

// ErrorKind distinguishes the fixed set of storage failures.
type ErrorKind int

const (
	ErrKindFull ErrorKind = iota
	ErrKindNotFound
	ErrKindBackingStoreIO
	ErrKindIndexCorrupt
)

func (k ErrorKind) String() string {
	switch k {
	case ErrKindFull:
		return "full"
	case ErrKindNotFound:
		return "not found"
	case ErrKindBackingStoreIO:
		return "backing store I/O error"
	case ErrKindIndexCorrupt:
		return "index corrupt"
	default:
		return "unknown storage error"
	}
}

// Error is returned by every Storage method that can fail in a distinguishable way.
type Error struct {
	Kind ErrorKind
	msg  string
}

func newError(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, msg: msg}
}

func (e *Error) Error() string {
	return "storage: " + e.Kind.String() + ": " + e.msg
}

// DeletionNotice carries the bundle that was removed so a caller can decide
// whether a deletion status report is owed, without re-reading the bytes.
type DeletionNotice struct {
	Number bundle.BundleNumber
	Bundle bundle.Bundle
	Reason DeleteReason
}

// Storage is the contract the Bundle Agent depends on; FileStore is the only
// production implementation, but tests may substitute an in-memory one.
type Storage interface {
	// Save persists b under its content-addressed BundleNumber. If a bundle
	// with that number already exists, Save is a no-op and returns the
	// existing number (idempotent). now is the monotonic record time used
	// for eviction.
	Save(b *bundle.Bundle, now uint32) (bundle.BundleNumber, error)

	// Read decodes and returns the bundle stored under num.
	Read(num bundle.BundleNumber) (bundle.Bundle, error)

	// Delete removes num's slot and backing bytes, returning the bundle that
	// was stored there so the caller can emit any deletion status report.
	Delete(num bundle.BundleNumber, reason DeleteReason) (DeletionNotice, error)

	// FreeSpace reports the number of unused slots.
	FreeSpace() int

	// List returns every currently stored BundleNumber; order is unspecified.
	List() []bundle.BundleNumber

	// Sweep evicts every bundle whose record_time+lifetime has elapsed as of
	// now, returning a notice per eviction. Called periodically, not on
	// every mutation.
	Sweep(now uint32) []DeletionNotice

	// Protect exempts num from lifetime and pressure eviction while a
	// custody record for it exists.
	Protect(num bundle.BundleNumber)

	// Unprotect reverses a prior Protect.
	Unprotect(num bundle.BundleNumber)
}
