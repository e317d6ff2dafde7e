package agent

import (
	"os"
	"testing"

	"github.com/dtn7/dtn7-core/bundle"
	"github.com/dtn7/dtn7-core/custody"
	"github.com/dtn7/dtn7-core/redundancy"
	"github.com/dtn7/dtn7-core/storage"
)

// fakeNetwork records every frame handed to Send, keyed by neighbor, and can
// be told to fail the next N sends to exercise the "leave in storage on
// failure" path.
type fakeNetwork struct {
	sent     map[uint32][][]byte
	failNext int
}

func newFakeNetwork() *fakeNetwork {
	return &fakeNetwork{sent: make(map[uint32][][]byte)}
}

func (f *fakeNetwork) Send(neighbor uint32, frame []byte) error {
	if f.failNext > 0 {
		f.failNext--
		return errSendFailed
	}
	f.sent[neighbor] = append(f.sent[neighbor], frame)
	return nil
}

type sendError struct{}

func (sendError) Error() string { return "fake network: send failed" }

var errSendFailed = sendError{}

func newTestAgent(t *testing.T, self bundle.EndpointID) (*Agent, *fakeNetwork, storage.Storage) {
	t.Helper()

	dir, err := os.MkdirTemp("", "agent-test-*")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	store, err := storage.NewFileStore(dir, 16)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	cust := custody.NewModule(self, 16, custody.DefaultRetransmitInterval, custody.DefaultRetransmitLimit,
		custody.NewMemoryStore(), store)

	filter := redundancy.NewRotatingBloom(2, 64, 100)
	net := newFakeNetwork()

	a := New(self, store, cust, filter, net)
	cust.Forward = func(b bundle.Bundle) {
		a.Post(Event{Kind: EvSendBundle, Bundle: &b})
	}
	cust.EmitSignal = func(dest bundle.EndpointID, signal *bundle.CustodySignal) {
		payload, err := bundle.EncodeAdministrativeRecord(signal)
		if err != nil {
			return
		}
		b := bundle.New(bundle.AdministrativeRecordPayload, dest, self, 0, 0, 3600)
		b.AddBlock(bundle.NewBlock(bundle.PayloadBlockType, 0, payload))
		a.Post(Event{Kind: EvSendAdminRecord, Bundle: &b})
	}
	cust.EmitStatusReport = func(dest bundle.EndpointID, report *bundle.StatusReport) {
		payload, err := bundle.EncodeAdministrativeRecord(report)
		if err != nil {
			return
		}
		b := bundle.New(bundle.AdministrativeRecordPayload, dest, self, 0, 0, 3600)
		b.AddBlock(bundle.NewBlock(bundle.PayloadBlockType, 0, payload))
		a.Post(Event{Kind: EvSendAdminRecord, Bundle: &b})
	}

	return a, net, store
}

func dataBundle(flags bundle.ProcessingFlags, dest, src bundle.EndpointID, seq uint32) bundle.Bundle {
	b := bundle.New(flags|bundle.SingletonDestination, dest, src, 1000, seq, 3600)
	b.AddBlock(bundle.NewBlock(bundle.PayloadBlockType, 0, []byte("hello")))
	return b
}

// TestLocalDelivery covers §8's local-delivery scenario: a bundle destined
// for this node's own service_id reaches a registered application's queue.
func TestLocalDelivery(t *testing.T) {
	self := bundle.EndpointID{Node: 1, Service: 0}
	a, _, _ := newTestAgent(t, self)

	queue := make(chan Message, QueueDepth)
	a.Post(Event{Kind: EvApplicationRegistration, ServiceID: 7, Queue: queue, Active: true})
	a.HandleOne(100)

	b := dataBundle(0, bundle.EndpointID{Node: 1, Service: 7}, bundle.EndpointID{Node: 2, Service: 0}, 1)
	a.Post(Event{Kind: EvReceiveBundle, Bundle: &b})
	a.HandleOne(100)

	select {
	case msg := <-queue:
		if _, ok := msg.(SubmitDataMessage); !ok {
			t.Fatalf("expected SubmitDataMessage, got %T", msg)
		}
	default:
		t.Fatal("expected a message delivered to the registered application")
	}
}

// TestDuplicateSuppression covers §8's redundancy scenario: the same bundle
// delivered twice reaches the application only once.
func TestDuplicateSuppression(t *testing.T) {
	self := bundle.EndpointID{Node: 1, Service: 0}
	a, _, _ := newTestAgent(t, self)

	queue := make(chan Message, QueueDepth)
	a.Post(Event{Kind: EvApplicationRegistration, ServiceID: 7, Queue: queue, Active: true})
	a.HandleOne(100)

	b1 := dataBundle(0, bundle.EndpointID{Node: 1, Service: 7}, bundle.EndpointID{Node: 2, Service: 0}, 1)
	b2 := b1
	b2.Blocks = append([]bundle.Block(nil), b1.Blocks...)

	a.Post(Event{Kind: EvReceiveBundle, Bundle: &b1})
	a.HandleOne(100)
	a.Post(Event{Kind: EvReceiveBundle, Bundle: &b2})
	a.HandleOne(100)

	if len(queue) != 1 {
		t.Fatalf("expected exactly one delivery, got %d", len(queue))
	}
}

// TestForwarding covers §8's forwarding scenario: a bundle destined for a
// different node is handed to the network once that node is a known,
// active neighbor.
func TestForwarding(t *testing.T) {
	self := bundle.EndpointID{Node: 1, Service: 0}
	a, net, st := newTestAgent(t, self)

	b := dataBundle(0, bundle.EndpointID{Node: 2, Service: 7}, bundle.EndpointID{Node: 1, Service: 0}, 1)
	a.Post(Event{Kind: EvSendBundle, Bundle: &b})
	a.HandleOne(100) // dispatch -> forward -> save -> post bundle_in_storage
	a.HandleOne(100) // bundle_in_storage -> forwardingPass, neighbor unknown, nothing sent

	if len(net.sent[2]) != 0 {
		t.Fatal("expected no send before the neighbor is known")
	}
	if len(st.List()) != 1 {
		t.Fatalf("expected the bundle to remain in storage, got %d entries", len(st.List()))
	}

	a.Post(Event{Kind: EvPeerAlive, Neighbor: 2})
	a.HandleOne(100) // peer_alive -> markNeighbor + forwardingPass

	if len(net.sent[2]) != 1 {
		t.Fatalf("expected exactly one send to neighbor 2, got %d", len(net.sent[2]))
	}
}

// TestCustodyTransfer covers §8's custody scenario: accepting a bundle
// requesting custody rewrites its custodian and emits an accepted signal to
// the previous custodian.
func TestCustodyTransfer(t *testing.T) {
	self := bundle.EndpointID{Node: 1, Service: 0}
	a, net, _ := newTestAgent(t, self)

	prevCustodian := bundle.EndpointID{Node: 2, Service: 0}
	b := dataBundle(bundle.RequestCustody, bundle.EndpointID{Node: 3, Service: 7}, bundle.EndpointID{Node: 2, Service: 0}, 1)
	b.Custodian = prevCustodian

	a.Post(Event{Kind: EvPeerAlive, Neighbor: 2})
	a.HandleOne(100)

	a.Post(Event{Kind: EvSendBundle, Bundle: &b})
	a.HandleOne(100) // dispatch -> forward: custody.Decide accepts, emits signal event, saves, posts bundle_in_storage

	// Drain whatever events were queued (the accepted signal, then bundle_in_storage).
	for a.HandleOne(100) {
	}

	if len(net.sent[2]) == 0 {
		t.Fatal("expected a custody-accepted signal sent toward the previous custodian")
	}
}

// TestLifetimeExpiry covers §8's expiry scenario: a bundle whose lifetime
// has elapsed by the time it is swept is removed from storage.
func TestLifetimeExpiry(t *testing.T) {
	self := bundle.EndpointID{Node: 1, Service: 0}
	_, _, st := newTestAgent(t, self)

	b := dataBundle(0, bundle.EndpointID{Node: 9, Service: 7}, bundle.EndpointID{Node: 1, Service: 0}, 1)
	b.CreationTimestamp = 100
	b.Lifetime = 10

	num, err := st.Save(&b, 100)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	notices := st.Sweep(200)
	found := false
	for _, n := range notices {
		if n.Number == num {
			found = true
		}
	}
	if !found {
		t.Fatal("expected the expired bundle to be swept")
	}
	if _, err := st.Read(num); err == nil {
		t.Fatal("expected the expired bundle to be gone from storage")
	}
}

// TestSendBundleNotifiesSenderOnSuccess covers §6's application-interface
// requirement that a send's originating registration learns its bundle made
// it into storage.
func TestSendBundleNotifiesSenderOnSuccess(t *testing.T) {
	self := bundle.EndpointID{Node: 1, Service: 0}
	a, _, _ := newTestAgent(t, self)

	queue := make(chan Message, QueueDepth)
	a.Post(Event{Kind: EvApplicationRegistration, ServiceID: 5, Queue: queue, Active: true})
	a.HandleOne(100)

	b := dataBundle(0, bundle.EndpointID{Node: 2, Service: 7}, bundle.EndpointID{Node: 1, Service: 5}, 1)
	a.Post(Event{Kind: EvSendBundle, Bundle: &b, ServiceID: 5})
	a.HandleOne(100)

	select {
	case msg := <-queue:
		stored, ok := msg.(BundleStoredMessage)
		if !ok {
			t.Fatalf("expected BundleStoredMessage, got %T", msg)
		}
		if stored.Number != b.ID() {
			t.Fatalf("expected stored number %v, got %v", b.ID(), stored.Number)
		}
	default:
		t.Fatal("expected a bundle_stored reply to the sending registration")
	}
}

// TestSendBundleNotifiesSenderOnFailure covers the converse: a send that
// fails to persist (storage full) is reported as bundle_store_failed.
func TestSendBundleNotifiesSenderOnFailure(t *testing.T) {
	self := bundle.EndpointID{Node: 1, Service: 0}

	dir, err := os.MkdirTemp("", "agent-full-test-*")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	store, err := storage.NewFileStore(dir, 1)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	cust := custody.NewModule(self, 16, custody.DefaultRetransmitInterval, custody.DefaultRetransmitLimit,
		custody.NewMemoryStore(), store)
	a := New(self, store, cust, redundancy.NewRotatingBloom(2, 64, 100), newFakeNetwork())

	filler := dataBundle(0, bundle.EndpointID{Node: 2, Service: 7}, bundle.EndpointID{Node: 1, Service: 0}, 1)
	a.Post(Event{Kind: EvSendBundle, Bundle: &filler})
	a.HandleOne(100)
	a.HandleOne(100)

	queue := make(chan Message, QueueDepth)
	a.Post(Event{Kind: EvApplicationRegistration, ServiceID: 5, Queue: queue, Active: true})
	a.HandleOne(100)

	overflow := dataBundle(0, bundle.EndpointID{Node: 3, Service: 7}, bundle.EndpointID{Node: 1, Service: 5}, 2)
	a.Post(Event{Kind: EvSendBundle, Bundle: &overflow, ServiceID: 5})
	a.HandleOne(100)

	select {
	case msg := <-queue:
		if _, ok := msg.(BundleStoreFailedMessage); !ok {
			t.Fatalf("expected BundleStoreFailedMessage, got %T", msg)
		}
	default:
		t.Fatal("expected a bundle_store_failed reply to the sending registration")
	}
}

// TestStorageSweepEmitsDeletionReport covers §8's expiry scenario at the
// agent level: sweeping an expired bundle that requested a deletion report
// sends a status report toward report_to.
func TestStorageSweepEmitsDeletionReport(t *testing.T) {
	self := bundle.EndpointID{Node: 1, Service: 0}
	a, net, st := newTestAgent(t, self)

	reportTo := bundle.EndpointID{Node: 9, Service: 0}
	b := dataBundle(bundle.StatusRequestDeletion, bundle.EndpointID{Node: 2, Service: 7}, reportTo, 1)
	b.CreationTimestamp = 100
	b.Lifetime = 10

	if _, err := st.Save(&b, 100); err != nil {
		t.Fatalf("Save: %v", err)
	}

	a.Post(Event{Kind: EvPeerAlive, Neighbor: 9})
	a.HandleOne(200)

	a.Post(Event{Kind: EvStorageSweep})
	for a.HandleOne(200) {
	}

	if len(net.sent[9]) == 0 {
		t.Fatal("expected a deletion status report sent toward report_to")
	}
}

// TestStorageSweepSkipsReportWithoutFlag covers the negative case: a swept
// bundle that never asked for a deletion report produces no status report.
func TestStorageSweepSkipsReportWithoutFlag(t *testing.T) {
	self := bundle.EndpointID{Node: 1, Service: 0}
	a, net, st := newTestAgent(t, self)

	reportTo := bundle.EndpointID{Node: 9, Service: 0}
	b := dataBundle(0, bundle.EndpointID{Node: 2, Service: 7}, reportTo, 1)
	b.CreationTimestamp = 100
	b.Lifetime = 10

	if _, err := st.Save(&b, 100); err != nil {
		t.Fatalf("Save: %v", err)
	}

	a.Post(Event{Kind: EvPeerAlive, Neighbor: 9})
	a.HandleOne(200)

	a.Post(Event{Kind: EvStorageSweep})
	for a.HandleOne(200) {
	}

	if len(net.sent[9]) != 0 {
		t.Fatal("expected no status report without StatusRequestDeletion")
	}
}

// TestPersistenceAcrossRestart covers §8's persistence scenario at the
// agent level: a bundle saved via the agent survives a fresh FileStore
// opened against the same directory.
func TestPersistenceAcrossRestart(t *testing.T) {
	self := bundle.EndpointID{Node: 1, Service: 0}

	dir, err := os.MkdirTemp("", "agent-restart-*")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	defer os.RemoveAll(dir)

	store, err := storage.NewFileStore(dir, 16)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	cust := custody.NewModule(self, 16, custody.DefaultRetransmitInterval, custody.DefaultRetransmitLimit,
		custody.NewMemoryStore(), store)
	a := New(self, store, cust, redundancy.NewRotatingBloom(2, 64, 100), newFakeNetwork())

	b := dataBundle(0, bundle.EndpointID{Node: 9, Service: 7}, bundle.EndpointID{Node: 1, Service: 0}, 1)
	a.Post(Event{Kind: EvSendBundle, Bundle: &b})
	a.HandleOne(100)
	a.HandleOne(100)
	num := b.ID()

	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := storage.NewFileStore(dir, 16)
	if err != nil {
		t.Fatalf("reopen NewFileStore: %v", err)
	}
	defer reopened.Close()

	if _, err := reopened.Read(num); err != nil {
		t.Fatalf("expected bundle to survive restart, Read failed: %v", err)
	}
}
