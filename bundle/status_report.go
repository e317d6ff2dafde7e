package bundle

import (
	"fmt"
	"io"
	"strings"

	"github.com/dtn7/cboring"
)

// StatusReportReason is the reason code carried by a StatusReport.
type StatusReportReason uint64

const (
	NoInformation              StatusReportReason = 0
	LifetimeExpired            StatusReportReason = 1
	TransmissionCanceled       StatusReportReason = 3
	DepletedStorage            StatusReportReason = 4
	DestEndpointUnintelligible StatusReportReason = 5
	NoRouteToDestination       StatusReportReason = 6
	NoNextNodeContact          StatusReportReason = 7
	BlockUnintelligible        StatusReportReason = 8
)

func (r StatusReportReason) String() string {
	switch r {
	case NoInformation:
		return "no additional information"
	case LifetimeExpired:
		return "lifetime expired"
	case TransmissionCanceled:
		return "transmission canceled"
	case DepletedStorage:
		return "depleted storage"
	case DestEndpointUnintelligible:
		return "destination endpoint unintelligible"
	case NoRouteToDestination:
		return "no known route to destination"
	case NoNextNodeContact:
		return "no timely contact with next node"
	case BlockUnintelligible:
		return "block unintelligible"
	default:
		return "unknown reason"
	}
}

// StatusInformationPos enumerates the bundle lifecycle events a status
// report can assert.
type StatusInformationPos int

const (
	ReceivedBundle StatusInformationPos = iota
	ForwardedBundle
	DeliveredBundle
	DeletedBundle

	maxStatusInformationPos
)

func (p StatusInformationPos) String() string {
	switch p {
	case ReceivedBundle:
		return "received"
	case ForwardedBundle:
		return "forwarded"
	case DeliveredBundle:
		return "delivered"
	case DeletedBundle:
		return "deleted"
	default:
		return "unknown"
	}
}

// BundleStatusItem is one element of a StatusReport's status information
// array: whether this event happened and, if the bundle requested status
// report timestamps, when.
type BundleStatusItem struct {
	Asserted        bool
	Time            uint32
	StatusRequested bool
}

func NewBundleStatusItem(asserted bool) BundleStatusItem {
	return BundleStatusItem{Asserted: asserted}
}

func NewTimeReportingBundleStatusItem(t uint32) BundleStatusItem {
	return BundleStatusItem{Asserted: true, Time: t, StatusRequested: true}
}

func (bsi *BundleStatusItem) MarshalCbor(w io.Writer) error {
	arrLen := uint64(1)
	if bsi.Asserted && bsi.StatusRequested {
		arrLen = 2
	}

	if err := cboring.WriteArrayLength(arrLen, w); err != nil {
		return err
	}
	if err := cboring.WriteBoolean(bsi.Asserted, w); err != nil {
		return err
	}
	if arrLen == 2 {
		if err := cboring.WriteUInt(uint64(bsi.Time), w); err != nil {
			return err
		}
	}
	return nil
}

func (bsi *BundleStatusItem) UnmarshalCbor(r io.Reader) error {
	n, err := cboring.ReadArrayLength(r)
	if err != nil {
		return err
	}
	if n != 1 && n != 2 {
		return fmt.Errorf("BundleStatusItem: array length %d, want 1 or 2", n)
	}

	asserted, err := cboring.ReadBoolean(r)
	if err != nil {
		return err
	}
	bsi.Asserted = asserted

	if n == 2 {
		t, err := cboring.ReadUInt(r)
		if err != nil {
			return err
		}
		bsi.Time = uint32(t)
		bsi.StatusRequested = true
	}
	return nil
}

// StatusReport reports a single lifecycle event for a referenced bundle,
// carried as the sole payload of a bundle whose AdministrativeRecordPayload
// flag is set; the record travels in the bundle's ordinary PAYLOAD block.
type StatusReport struct {
	StatusInformation []BundleStatusItem
	ReportReason      StatusReportReason
	RefBundle         BundleNumber
}

// NewStatusReport builds the status report for one lifecycle event of ref,
// requesting a timestamp when ref asked for one via RequestStatusTime.
func NewStatusReport(ref *Bundle, event StatusInformationPos, reason StatusReportReason, now uint32) *StatusReport {
	sr := &StatusReport{
		StatusInformation: make([]BundleStatusItem, maxStatusInformationPos),
		ReportReason:      reason,
		RefBundle:         ref.ID(),
	}

	for i := range sr.StatusInformation {
		pos := StatusInformationPos(i)
		switch {
		case pos == event && ref.ProcessingFlags.Has(RequestStatusTime):
			sr.StatusInformation[i] = NewTimeReportingBundleStatusItem(now)
		case pos == event:
			sr.StatusInformation[i] = NewBundleStatusItem(true)
		default:
			sr.StatusInformation[i] = NewBundleStatusItem(false)
		}
	}
	return sr
}

func (sr *StatusReport) RecordTypeCode() AdministrativeRecordTypeCode {
	return StatusReportRecordType
}

func (sr *StatusReport) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(3, w); err != nil {
		return err
	}

	if err := cboring.WriteArrayLength(uint64(len(sr.StatusInformation)), w); err != nil {
		return err
	}
	for i := range sr.StatusInformation {
		if err := sr.StatusInformation[i].MarshalCbor(w); err != nil {
			return fmt.Errorf("marshalling BundleStatusItem: %w", err)
		}
	}

	if err := cboring.WriteUInt(uint64(sr.ReportReason), w); err != nil {
		return err
	}

	return cboring.WriteUInt(uint64(sr.RefBundle), w)
}

func (sr *StatusReport) UnmarshalCbor(r io.Reader) error {
	n, err := cboring.ReadArrayLength(r)
	if err != nil {
		return err
	}
	if n != 3 {
		return fmt.Errorf("StatusReport: array length %d, want 3", n)
	}

	itemCount, err := cboring.ReadArrayLength(r)
	if err != nil {
		return err
	}
	sr.StatusInformation = make([]BundleStatusItem, itemCount)
	for i := range sr.StatusInformation {
		if err := sr.StatusInformation[i].UnmarshalCbor(r); err != nil {
			return fmt.Errorf("unmarshalling BundleStatusItem: %w", err)
		}
	}

	reason, err := cboring.ReadUInt(r)
	if err != nil {
		return err
	}
	sr.ReportReason = StatusReportReason(reason)

	ref, err := cboring.ReadUInt(r)
	if err != nil {
		return err
	}
	sr.RefBundle = BundleNumber(ref)

	return nil
}

func (sr StatusReport) String() string {
	var b strings.Builder
	fmt.Fprint(&b, "StatusReport([")
	for i, si := range sr.StatusInformation {
		if !si.Asserted {
			continue
		}
		fmt.Fprintf(&b, "%v ", StatusInformationPos(i))
	}
	fmt.Fprintf(&b, "], %v, bundle %d)", sr.ReportReason, sr.RefBundle)
	return b.String()
}
