package custody

import (
	"os"
	"testing"

	"github.com/dtn7/dtn7-core/bundle"
	"github.com/dtn7/dtn7-core/storage"
)

func newTestModule(t *testing.T) (*Module, storage.Storage) {
	t.Helper()
	dir, err := os.MkdirTemp("", "dtn-custody-test-*")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	fs, err := storage.NewFileStore(dir, 20)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	t.Cleanup(func() { fs.Close() })

	self := bundle.EndpointID{Node: 1, Service: 0}
	m := NewModule(self, DefaultRetransmitLimit, DefaultRetransmitInterval, DefaultRetransmitLimit, NewMemoryStore(), fs)
	return m, fs
}

func custodyBundle() bundle.Bundle {
	b := bundle.New(
		bundle.RequestCustody|bundle.SingletonDestination,
		bundle.EndpointID{Node: 1, Service: 25},
		bundle.EndpointID{Node: 2, Service: 99},
		1000, 1, 3600,
	)
	b.AddBlock(bundle.NewBlock(bundle.PayloadBlockType, bundle.LastBlock, []byte("custody payload")))
	return b
}

func TestDecideAcceptsAndRewritesCustodian(t *testing.T) {
	m, fs := newTestModule(t)
	b := custodyBundle()
	originalCustodian := b.Custodian

	var signaledTo bundle.EndpointID
	var signaled *bundle.CustodySignal
	m.EmitSignal = func(dest bundle.EndpointID, signal *bundle.CustodySignal) {
		signaledTo = dest
		signaled = signal
	}

	if _, err := fs.Save(&b, 1000); err != nil {
		t.Fatalf("Save: %v", err)
	}

	decision, err := m.Decide(&b, 1000)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if decision != AcceptCustody {
		t.Fatalf("expected AcceptCustody, got %v", decision)
	}
	if b.Custodian.Node != 1 {
		t.Fatalf("expected custodian rewritten to self, got %+v", b.Custodian)
	}
	if signaledTo != originalCustodian {
		t.Fatalf("expected signal to previous custodian %+v, got %+v", originalCustodian, signaledTo)
	}
	if signaled == nil || !signaled.Succeeded {
		t.Fatalf("expected an accepted custody signal, got %+v", signaled)
	}
}

func TestDecideDeclinesWithoutCustodyFlag(t *testing.T) {
	m, _ := newTestModule(t)
	b := bundle.New(bundle.SingletonDestination,
		bundle.EndpointID{Node: 1}, bundle.EndpointID{Node: 2}, 1000, 1, 3600)
	b.AddBlock(bundle.NewBlock(bundle.PayloadBlockType, bundle.LastBlock, []byte("x")))

	decision, err := m.Decide(&b, 1000)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if decision != DeclineCustody {
		t.Fatalf("expected DeclineCustody, got %v", decision)
	}
}

func TestReleaseDeletesRecordAndBundle(t *testing.T) {
	m, fs := newTestModule(t)
	b := custodyBundle()

	if _, err := fs.Save(&b, 1000); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := m.Decide(&b, 1000); err != nil {
		t.Fatalf("Decide: %v", err)
	}

	signal := bundle.NewCustodySignal(&b, true, bundle.CustodyNoAdditionalInformation, 1001)
	if err := m.Release(signal); err != nil {
		t.Fatalf("Release: %v", err)
	}

	if _, exists, err := m.store.Get(b.ID()); err != nil {
		t.Fatalf("Get: %v", err)
	} else if exists {
		t.Fatal("expected custody record to be deleted after release")
	}
	if _, err := fs.Read(b.ID()); err == nil {
		t.Fatal("expected bundle to be deleted from storage after release")
	}
}

func TestReleaseUnknownBundleIgnored(t *testing.T) {
	m, _ := newTestModule(t)
	signal := &bundle.CustodySignal{Succeeded: true, RefBundle: bundle.BundleNumber(12345)}
	if err := m.Release(signal); err != nil {
		t.Fatalf("Release of unknown bundle should be silently ignored, got %v", err)
	}
}

func TestSweepRetransmitsOverdueRecord(t *testing.T) {
	m, fs := newTestModule(t)
	b := custodyBundle()

	if _, err := fs.Save(&b, 1000); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := m.Decide(&b, 1000); err != nil {
		t.Fatalf("Decide: %v", err)
	}

	var forwarded *bundle.Bundle
	m.Forward = func(fb bundle.Bundle) { forwarded = &fb }

	if err := m.Sweep(1000 + DefaultRetransmitInterval + 1); err != nil {
		t.Fatalf("Sweep: %v", err)
	}

	if forwarded == nil || forwarded.ID() != b.ID() {
		t.Fatalf("expected bundle to be retransmitted, forwarded=%v", forwarded)
	}

	rec, exists, err := m.store.Get(b.ID())
	if err != nil || !exists {
		t.Fatalf("expected record to survive one retransmit, exists=%v err=%v", exists, err)
	}
	if rec.RetransmitCounter != 1 {
		t.Fatalf("expected retransmit counter 1, got %d", rec.RetransmitCounter)
	}
}

func TestRetransmitLimitExceededDropsBundle(t *testing.T) {
	m, fs := newTestModule(t)
	m.retransmitLimit = 0

	b := bundle.New(
		bundle.RequestCustody|bundle.StatusRequestDeletion|bundle.SingletonDestination,
		bundle.EndpointID{Node: 1, Service: 25},
		bundle.EndpointID{Node: 2, Service: 99},
		1000, 1, 3600,
	)
	b.AddBlock(bundle.NewBlock(bundle.PayloadBlockType, bundle.LastBlock, []byte("custody payload")))

	if _, err := fs.Save(&b, 1000); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := m.Decide(&b, 1000); err != nil {
		t.Fatalf("Decide: %v", err)
	}

	var reportedTo bundle.EndpointID
	var reports []*bundle.StatusReport
	m.EmitStatusReport = func(dest bundle.EndpointID, r *bundle.StatusReport) {
		reportedTo = dest
		reports = append(reports, r)
	}

	if err := m.RetransmitOne(b.ID(), 1000+DefaultRetransmitInterval+1); err != nil {
		t.Fatalf("RetransmitOne: %v", err)
	}

	if _, exists, _ := m.store.Get(b.ID()); exists {
		t.Fatal("expected record to be removed after retransmit limit exceeded")
	}
	if _, err := fs.Read(b.ID()); err == nil {
		t.Fatal("expected bundle to be deleted from storage after retransmit limit exceeded")
	}

	if len(reports) != 1 {
		t.Fatalf("expected exactly one status report emitted on limit exceeded, got %d", len(reports))
	}
	if !reports[0].StatusInformation[bundle.DeletedBundle].Asserted || reports[0].ReportReason != bundle.NoNextNodeContact {
		t.Fatalf("expected a deleted-bundle status report, got %+v", reports[0])
	}
	if reportedTo != b.ReportTo {
		t.Fatalf("expected the report addressed to report_to %+v, got %+v", b.ReportTo, reportedTo)
	}
}
