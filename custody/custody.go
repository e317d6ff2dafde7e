// Package custody tracks bundles this node has accepted custody of,
// schedules retransmissions on a single global timer, and produces the
// custody signals that drive the rest of the protocol.
package custody

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtn7-core/bundle"
	"github.com/dtn7/dtn7-core/storage"
)

// DefaultRetransmitInterval is RETRANSMIT_INTERVAL_SECONDS's default.
const DefaultRetransmitInterval = 1000

// DefaultRetransmitLimit bounds how many times a record is retransmitted
// before the node gives up and deletes the bundle.
const DefaultRetransmitLimit = 5

// Record is one bundle currently under this node's custody.
type Record struct {
	Number             bundle.BundleNumber `badgerholdKey:"Number"`
	CustodianNode      uint32
	RetransmitDeadline uint32
	RetransmitCounter  int
}

// Decision is the result of Decide.
type Decision int

const (
	DeclineCustody Decision = iota
	AcceptCustody
)

// Store is the persistence boundary for custody records, satisfied by
// BadgerStore in production and MemoryStore in tests.
type Store interface {
	Put(r Record) error
	Get(num bundle.BundleNumber) (Record, bool, error)
	Delete(num bundle.BundleNumber) error
	All() ([]Record, error)
}

// Module implements the custody transfer state machine described by the
// Custody Module component: accept/decline, release on inbound success
// signal, retransmit on failure or timer expiry.
type Module struct {
	mu sync.Mutex

	maxEntries         int
	retransmitInterval uint32
	retransmitLimit    int

	store   Store
	storage storage.Storage

	self bundle.EndpointID

	// Forward is invoked to re-inject a stored bundle into the agent's
	// forward queue during a retransmit.
	Forward func(b bundle.Bundle)

	// EmitSignal is invoked to send a custody signal bundle to its destination.
	EmitSignal func(dest bundle.EndpointID, signal *bundle.CustodySignal)

	// EmitStatusReport is invoked to send a status report bundle to its
	// destination, used when a retransmit limit is exceeded: the bundle is
	// dropped and, per §4.2, a deletion report (not a custody signal) is what
	// gets announced to report_to.
	EmitStatusReport func(dest bundle.EndpointID, report *bundle.StatusReport)

	log *log.Entry
}

// NewModule constructs a Module. self identifies this node's endpoint for
// the "source is not self OR custodian was already self" acceptance check
// and for rewriting an accepted bundle's custodian.
func NewModule(self bundle.EndpointID, maxEntries int, retransmitInterval uint32, retransmitLimit int, store Store, backing storage.Storage) *Module {
	return &Module{
		maxEntries:         maxEntries,
		retransmitInterval: retransmitInterval,
		retransmitLimit:    retransmitLimit,
		store:              store,
		storage:            backing,
		self:               self,
		log:                log.WithField("component", "custody"),
	}
}

// Decide implements §4.4's decide(handle). On acceptance, b.Custodian is
// rewritten to this node, the record is persisted, the bundle is protected
// in storage against eviction, and a custody-accepted signal is emitted to
// the previous custodian.
func (m *Module) Decide(b *bundle.Bundle, now uint32) (Decision, error) {
	if !b.ProcessingFlags.Has(bundle.RequestCustody) {
		return DeclineCustody, nil
	}

	m.mu.Lock()
	count, err := m.count()
	m.mu.Unlock()
	if err != nil {
		return DeclineCustody, err
	}
	if count >= m.maxEntries {
		return DeclineCustody, nil
	}

	if b.Source.Node == m.self.Node && b.Custodian.Node != m.self.Node {
		return DeclineCustody, nil
	}

	previousCustodian := b.Custodian
	b.Custodian = m.self

	rec := Record{
		Number:             b.ID(),
		CustodianNode:      previousCustodian.Node,
		RetransmitDeadline: now + m.retransmitInterval,
		RetransmitCounter:  0,
	}

	m.mu.Lock()
	err = m.store.Put(rec)
	m.mu.Unlock()
	if err != nil {
		return DeclineCustody, err
	}
	m.storage.Protect(rec.Number)

	if m.EmitSignal != nil {
		signal := bundle.NewCustodySignal(b, true, bundle.CustodyNoAdditionalInformation, now)
		m.EmitSignal(previousCustodian, signal)
	}

	return AcceptCustody, nil
}

func (m *Module) count() (int, error) {
	all, err := m.store.All()
	if err != nil {
		return 0, err
	}
	return len(all), nil
}

// Release implements §4.4's release(custody_signal): called on an inbound
// custody-success signal. A release is authoritative over any in-flight
// retransmit — the retransmit sweep simply finds the record gone.
func (m *Module) Release(signal *bundle.CustodySignal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, exists, err := m.store.Get(signal.RefBundle)
	if err != nil {
		return err
	}
	if !exists {
		m.log.WithField("bundle_number", signal.RefBundle).Debug("custody: release for unknown bundle, ignored")
		return nil
	}

	if err := m.store.Delete(signal.RefBundle); err != nil {
		return err
	}
	m.storage.Unprotect(signal.RefBundle)
	if _, err := m.storage.Delete(signal.RefBundle, storage.ReasonCustodyReleased); err != nil {
		m.log.WithFields(log.Fields{"bundle_number": signal.RefBundle, "error": err}).
			Warn("custody: release could not delete bundle from storage")
	}

	return nil
}

// RetransmitOne implements §4.4's retransmit(custody_signal) for a single
// record explicitly failed (as opposed to the periodic sweep driving
// expired deadlines). now is used to re-arm the deadline.
func (m *Module) RetransmitOne(num bundle.BundleNumber, now uint32) error {
	m.mu.Lock()
	rec, exists, err := m.store.Get(num)
	m.mu.Unlock()
	if err != nil {
		return err
	}
	if !exists {
		m.log.WithField("bundle_number", num).Debug("custody: retransmit for unknown bundle, ignored")
		return nil
	}

	return m.retransmitRecord(rec, now)
}

func (m *Module) retransmitRecord(rec Record, now uint32) error {
	if rec.RetransmitCounter >= m.retransmitLimit {
		m.log.WithField("bundle_number", rec.Number).Info("custody: retransmit limit exceeded, dropping bundle")

		m.mu.Lock()
		_ = m.store.Delete(rec.Number)
		m.storage.Unprotect(rec.Number)
		m.mu.Unlock()

		notice, err := m.storage.Delete(rec.Number, storage.ReasonExplicit)
		if err != nil {
			return err
		}
		if m.EmitStatusReport != nil && notice.Bundle.OwesDeletionReport(m.self) {
			report := bundle.NewStatusReport(&notice.Bundle, bundle.DeletedBundle, bundle.NoNextNodeContact, now)
			m.EmitStatusReport(notice.Bundle.ReportTo, report)
		}
		return nil
	}

	b, err := m.storage.Read(rec.Number)
	if err != nil {
		return err
	}

	rec.RetransmitDeadline = now + m.retransmitInterval
	rec.RetransmitCounter++

	m.mu.Lock()
	err = m.store.Put(rec)
	m.mu.Unlock()
	if err != nil {
		return err
	}

	if m.Forward != nil {
		m.Forward(b)
	}
	return nil
}

// Sweep re-evaluates every record's deadline and retransmits the overdue
// ones. It computes no next deadline; RetransmitTimer calls it at a fixed
// resolution. A record released since the snapshot was taken is skipped.
func (m *Module) Sweep(now uint32) error {
	m.mu.Lock()
	all, err := m.store.All()
	m.mu.Unlock()
	if err != nil {
		return err
	}

	for _, rec := range all {
		if rec.RetransmitDeadline > now {
			continue
		}
		m.mu.Lock()
		_, exists, err := m.store.Get(rec.Number)
		m.mu.Unlock()
		if err != nil || !exists {
			continue
		}
		if err := m.retransmitRecord(rec, now); err != nil {
			m.log.WithFields(log.Fields{"bundle_number": rec.Number, "error": err}).
				Warn("custody: retransmit failed")
		}
	}

	return nil
}
