package agent

import "github.com/dtn7/dtn7-core/bundle"

// EventKind tags the events the Agent's run loop consumes from its single
// input queue, per the "dispatch by tagged command enum" design.
type EventKind int

const (
	EvApplicationRegistration EventKind = iota
	EvApplicationStatus
	EvApplicationRemove
	EvSendBundle
	EvReceiveBundle
	EvProcessingFinished
	EvBundleInStorage
	EvSendAdminRecord
	EvBeacon
	EvPeerAlive
	EvStorageSweep
)

func (k EventKind) String() string {
	switch k {
	case EvApplicationRegistration:
		return "application_registration"
	case EvApplicationStatus:
		return "application_status"
	case EvApplicationRemove:
		return "application_remove"
	case EvSendBundle:
		return "send_bundle"
	case EvReceiveBundle:
		return "receive_bundle"
	case EvProcessingFinished:
		return "processing_finished"
	case EvBundleInStorage:
		return "bundle_in_storage"
	case EvSendAdminRecord:
		return "send_admin_record"
	case EvBeacon:
		return "beacon"
	case EvPeerAlive:
		return "peer_alive"
	case EvStorageSweep:
		return "storage_sweep"
	default:
		return "unknown"
	}
}

// Event is the single sum type posted into the Agent's queue. Only the
// fields relevant to Kind are populated.
type Event struct {
	Kind EventKind

	Bundle *bundle.Bundle
	Number bundle.BundleNumber

	// ServiceID is the registration a bundle was registered under
	// (EvApplicationRegistration/EvApplicationStatus/EvApplicationRemove), or,
	// for EvSendBundle, the registration that originated the send and wants a
	// bundle_stored/bundle_store_failed reply. Zero means no reply is owed
	// (the event wasn't raised by an application, e.g. a custody retransmit).
	ServiceID uint32
	Queue     chan Message
	Active    bool

	Neighbor uint32
}
