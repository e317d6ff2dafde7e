package agent

import (
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtn7-core/bundle"
	"github.com/dtn7/dtn7-core/custody"
	"github.com/dtn7/dtn7-core/storage"
)

// dispatch implements §4.5's dispatch algorithm: administrative records
// addressed here are consumed internally, other bundles addressed here are
// delivered to a matching registration (subject to duplicate suppression),
// and everything else takes the forwarding path. sender is the registration
// that originated an application's EvSendBundle, or zero if none did.
func (a *Agent) dispatch(b *bundle.Bundle, now uint32, sender uint32) {
	if b.Destination.Node == a.Self.Node && b.IsAdministrativeRecord() {
		a.handleAdministrativeRecord(b, now)
		return
	}

	if b.Destination.Node == a.Self.Node {
		a.localDeliver(b)
		return
	}

	a.forward(b, now, sender)
}

func (a *Agent) handleAdministrativeRecord(b *bundle.Bundle, now uint32) {
	payload, err := b.PayloadBlock()
	if err != nil {
		a.log.WithField("error", err).Warn("agent: administrative record bundle missing payload")
		return
	}

	code, err := bundle.DecodeAdministrativeRecordType(payload.Payload)
	if err != nil {
		a.log.WithField("error", err).Warn("agent: malformed administrative record")
		return
	}

	switch code {
	case bundle.CustodySignalRecordType:
		signal, err := bundle.DecodeCustodySignal(payload.Payload)
		if err != nil {
			a.log.WithField("error", err).Warn("agent: malformed custody signal")
			return
		}

		if signal.Succeeded {
			if err := a.custody.Release(&signal); err != nil {
				a.log.WithField("error", err).Warn("agent: custody release failed")
			}
		} else {
			if err := a.custody.RetransmitOne(signal.RefBundle, now); err != nil {
				a.log.WithField("error", err).Warn("agent: custody retransmit failed")
			}
		}

	case bundle.StatusReportRecordType:
		report, err := bundle.DecodeStatusReport(payload.Payload)
		if err != nil {
			a.log.WithField("error", err).Warn("agent: malformed status report")
			return
		}
		a.log.WithFields(log.Fields{"report": report.String()}).Info("agent: received status report")

	default:
		a.log.WithField("type", code).Warn("agent: unknown administrative record type")
	}
}

// localDeliver implements step 2: deliver to every active registration on
// the destination service, applying the redundancy filter around the
// whole fan-out rather than per-registration.
func (a *Agent) localDeliver(b *bundle.Bundle) {
	num := b.ID()

	if a.redundancy.Check(num) {
		return
	}

	a.regMu.Lock()
	var matches []*Registration
	for _, r := range a.regs {
		if r.Active && r.ServiceID == b.Destination.Service {
			matches = append(matches, r)
		}
	}
	a.regMu.Unlock()

	if len(matches) == 0 {
		return
	}

	handle := &pendingHandle{bundle: *b, refcount: int32(len(matches))}
	a.pendingMu.Lock()
	a.pending[num] = handle
	a.pendingMu.Unlock()

	delivered := 0
	for _, r := range matches {
		if r.post(SubmitDataMessage{Bundle: *b}) {
			delivered++
		} else {
			a.log.WithFields(log.Fields{"service": r.ServiceID, "bundle": num}).
				Warn("agent: application queue full, dropping delivery")
		}
	}

	if delivered > 0 {
		a.redundancy.Set(num)
	} else {
		a.pendingMu.Lock()
		delete(a.pending, num)
		a.pendingMu.Unlock()
	}
}

// processingFinished implements the processing_finished event: an
// application releases a delivered handle. When every recipient has
// finished, the bundle is no longer owned by the agent; if it also happens
// to be sitting in storage, it is deleted with ReasonDelivered. Custody is
// not consulted: a bundle under custody is deleted the same way.
func (a *Agent) processingFinished(num bundle.BundleNumber) {
	a.pendingMu.Lock()
	handle, ok := a.pending[num]
	if !ok {
		a.pendingMu.Unlock()
		a.log.WithField("bundle", num).Debug("agent: processing_finished for unknown handle, ignored")
		return
	}
	handle.refcount--
	done := handle.refcount <= 0
	if done {
		delete(a.pending, num)
	}
	a.pendingMu.Unlock()

	if !done {
		return
	}

	if _, err := a.storage.Delete(num, storage.ReasonDelivered); err != nil {
		a.log.WithField("bundle", num).Debug("agent: processing_finished bundle was not in storage")
	}
}

// forward implements step 3: offer custody, then unconditionally persist
// (Save is idempotent, acting as the de-dup check), then signal the
// forwarding pass. If sender names the registration that asked for this
// send, it is told whether the bundle made it into storage.
func (a *Agent) forward(b *bundle.Bundle, now uint32, sender uint32) {
	decision, err := a.custody.Decide(b, now)
	if err != nil {
		a.log.WithField("error", err).Warn("agent: custody decision failed")
	}

	num, err := a.storage.Save(b, now)
	if err != nil {
		a.log.WithFields(log.Fields{"bundle": b, "error": err}).Warn("agent: storage save failed")
		a.notifySender(sender, BundleStoreFailedMessage{})
		return
	}

	// Decide ran before the slot existed, so its Protect found nothing to mark.
	if decision == custody.AcceptCustody {
		a.storage.Protect(num)
	}

	a.notifySender(sender, BundleStoredMessage{Number: num})

	a.Post(Event{Kind: EvBundleInStorage, Number: num})
}

// notifySender posts msg to the registration that originated a send, if any.
func (a *Agent) notifySender(sender uint32, msg Message) {
	if sender == 0 {
		return
	}

	a.regMu.Lock()
	r, ok := a.regs[sender]
	a.regMu.Unlock()
	if !ok {
		return
	}

	if !r.post(msg) {
		a.log.WithField("service", sender).Warn("agent: application queue full, dropping send confirmation")
	}
}

// sweepStorage drives storage's own lifetime/pressure eviction and checks
// every resulting notice against §4.2's deletion-report rule.
func (a *Agent) sweepStorage(now uint32) {
	for _, notice := range a.storage.Sweep(now) {
		a.reportDeletion(notice, now)
	}
}

// reportDeletion emits a deletion status report to notice.Bundle.ReportTo
// when the bundle wasn't delivered, asked for a deletion report, and this
// node isn't the bundle's own source.
func (a *Agent) reportDeletion(notice storage.DeletionNotice, now uint32) {
	if notice.Reason == storage.ReasonDelivered {
		return
	}
	if !notice.Bundle.OwesDeletionReport(a.Self) {
		return
	}

	report := bundle.NewStatusReport(&notice.Bundle, bundle.DeletedBundle, deletionReportReason(notice.Reason), now)
	a.emitStatusReport(notice.Bundle.ReportTo, report, now)
}

// deletionReportReason maps why a bundle left storage onto the reason code
// a DeletedBundle status item should cite.
func deletionReportReason(reason storage.DeleteReason) bundle.StatusReportReason {
	switch reason {
	case storage.ReasonLifetimeExpired:
		return bundle.LifetimeExpired
	case storage.ReasonDepletedStorage:
		return bundle.DepletedStorage
	default:
		return bundle.NoInformation
	}
}

// emitStatusReport wraps report in an administrative-record bundle addressed
// to dest and re-enters it through the same event loop as any other outbound
// send, mirroring how a custody signal is wrapped and posted.
func (a *Agent) emitStatusReport(dest bundle.EndpointID, report *bundle.StatusReport, now uint32) {
	payload, err := bundle.EncodeAdministrativeRecord(report)
	if err != nil {
		a.log.WithField("error", err).Warn("agent: failed to encode status report")
		return
	}

	b := bundle.New(bundle.AdministrativeRecordPayload, dest, a.Self, now, 0, 3600)
	b.AddBlock(bundle.NewBlock(bundle.PayloadBlockType, 0, payload))
	a.Post(Event{Kind: EvSendAdminRecord, Bundle: &b})
}
