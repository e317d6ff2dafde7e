package bundle

import (
	"fmt"
	"io"

	"github.com/dtn7/cboring"
)

// CustodySignalReason mirrors the reason codes the original uDTN firmware's
// custody-signal.c assigns when refusing custody; this profile keeps the
// same numbering so a captured trace reads the same way.
type CustodySignalReason uint64

const (
	CustodyNoAdditionalInformation    CustodySignalReason = 0
	CustodyRedundantReception         CustodySignalReason = 3
	CustodyDepletedStorage            CustodySignalReason = 4
	CustodyDestEndpointUnintelligible CustodySignalReason = 5
	CustodyNoRouteToDestination       CustodySignalReason = 6
	CustodyNoTimelyContact            CustodySignalReason = 7
	CustodyBlockUnintelligible        CustodySignalReason = 8
)

func (r CustodySignalReason) String() string {
	switch r {
	case CustodyNoAdditionalInformation:
		return "no additional information"
	case CustodyRedundantReception:
		return "redundant reception"
	case CustodyDepletedStorage:
		return "depleted storage"
	case CustodyDestEndpointUnintelligible:
		return "destination endpoint unintelligible"
	case CustodyNoRouteToDestination:
		return "no known route to destination"
	case CustodyNoTimelyContact:
		return "no timely contact with next node"
	case CustodyBlockUnintelligible:
		return "block unintelligible"
	default:
		return "unknown reason"
	}
}

// CustodySignal reports the outcome of a custody transfer request for
// RefBundle: either acceptance (Succeeded) or a refusal with Reason.
type CustodySignal struct {
	Succeeded bool
	Reason    CustodySignalReason
	Timestamp uint32
	RefBundle BundleNumber
}

// NewCustodySignal builds the signal sent back to a bundle's current
// custodian in response to a custody transfer decision.
func NewCustodySignal(ref *Bundle, succeeded bool, reason CustodySignalReason, now uint32) *CustodySignal {
	return &CustodySignal{
		Succeeded: succeeded,
		Reason:    reason,
		Timestamp: now,
		RefBundle: ref.ID(),
	}
}

func (cs *CustodySignal) RecordTypeCode() AdministrativeRecordTypeCode {
	return CustodySignalRecordType
}

func (cs *CustodySignal) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(4, w); err != nil {
		return err
	}
	if err := cboring.WriteBoolean(cs.Succeeded, w); err != nil {
		return err
	}
	if err := cboring.WriteUInt(uint64(cs.Reason), w); err != nil {
		return err
	}
	if err := cboring.WriteUInt(uint64(cs.Timestamp), w); err != nil {
		return err
	}
	return cboring.WriteUInt(uint64(cs.RefBundle), w)
}

func (cs *CustodySignal) UnmarshalCbor(r io.Reader) error {
	n, err := cboring.ReadArrayLength(r)
	if err != nil {
		return err
	}
	if n != 4 {
		return fmt.Errorf("CustodySignal: array length %d, want 4", n)
	}

	succeeded, err := cboring.ReadBoolean(r)
	if err != nil {
		return err
	}
	cs.Succeeded = succeeded

	reason, err := cboring.ReadUInt(r)
	if err != nil {
		return err
	}
	cs.Reason = CustodySignalReason(reason)

	ts, err := cboring.ReadUInt(r)
	if err != nil {
		return err
	}
	cs.Timestamp = uint32(ts)

	ref, err := cboring.ReadUInt(r)
	if err != nil {
		return err
	}
	cs.RefBundle = BundleNumber(ref)

	return nil
}

func (cs CustodySignal) String() string {
	if cs.Succeeded {
		return fmt.Sprintf("CustodySignal(accepted, bundle %d)", cs.RefBundle)
	}
	return fmt.Sprintf("CustodySignal(refused: %v, bundle %d)", cs.Reason, cs.RefBundle)
}
