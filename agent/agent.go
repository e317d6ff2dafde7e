// Package agent implements the Bundle Agent: the single-threaded
// cooperative event loop that owns the registration table and routes
// bundles between the network, storage, custody, and local applications.
package agent

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtn7-core/bundle"
	"github.com/dtn7/dtn7-core/custody"
	"github.com/dtn7/dtn7-core/redundancy"
	"github.com/dtn7/dtn7-core/storage"
)

// EventQueueDepth is the Agent's own bounded input queue capacity.
const EventQueueDepth = 16

// Network is the minimal boundary the Agent needs from a convergence layer:
// hand a frame to a known neighbor. Concrete transports (QUIC, LoRa) live in
// a separate package and are never imported here, preserving the
// network/agent boundary the wire format doesn't care about.
type Network interface {
	Send(neighbor uint32, frame []byte) error
}

type neighborEntry struct {
	LastSeen uint32
	Active   bool
}

// Agent is the Bundle Agent: it owns the registration table and holds
// references to storage, custody, and the redundancy filter.
type Agent struct {
	Self bundle.EndpointID

	storage    storage.Storage
	custody    *custody.Module
	redundancy redundancy.Filter
	network    Network

	events chan Event

	regMu sync.Mutex
	regs  map[uint32]*Registration

	pendingMu sync.Mutex
	pending   map[bundle.BundleNumber]*pendingHandle

	neighborMu sync.Mutex
	neighbors  map[uint32]*neighborEntry

	log *log.Entry
}

type pendingHandle struct {
	bundle   bundle.Bundle
	refcount int32
}

// New constructs an Agent. The custody module's Forward/EmitSignal callbacks
// should be wired after construction to Post an EvSendBundle/EvSendAdminRecord
// event so retransmits and custody signals re-enter the same event loop as
// any other send.
func New(self bundle.EndpointID, store storage.Storage, cust *custody.Module, filter redundancy.Filter, net Network) *Agent {
	return &Agent{
		Self:       self,
		storage:    store,
		custody:    cust,
		redundancy: filter,
		network:    net,
		events:     make(chan Event, EventQueueDepth),
		regs:       make(map[uint32]*Registration),
		pending:    make(map[bundle.BundleNumber]*pendingHandle),
		neighbors:  make(map[uint32]*neighborEntry),
		log:        log.WithField("component", "agent"),
	}
}

// Post enqueues an event, returning false if the queue was full. Per the
// concurrency model, network-sourced events are dropped (with a log entry)
// on failure; application-sourced events are the caller's to retry.
func (a *Agent) Post(ev Event) bool {
	select {
	case a.events <- ev:
		return true
	default:
		a.log.WithField("event", ev.Kind).Warn("agent: event queue full, dropping")
		return false
	}
}

// Run drains the event queue until stop is closed. It is meant to run in
// its own goroutine, standing in for the single cooperative process the
// design describes.
func (a *Agent) Run(stop <-chan struct{}, now func() uint32) {
	for {
		select {
		case <-stop:
			return
		case ev := <-a.events:
			a.handle(ev, now())
		}
	}
}

// HandleOne processes exactly one already-queued event, used by tests that
// want synchronous control instead of running Run in a goroutine.
func (a *Agent) HandleOne(now uint32) bool {
	select {
	case ev := <-a.events:
		a.handle(ev, now)
		return true
	default:
		return false
	}
}

func (a *Agent) handle(ev Event, now uint32) {
	switch ev.Kind {
	case EvApplicationRegistration:
		a.regMu.Lock()
		a.regs[ev.ServiceID] = &Registration{ServiceID: ev.ServiceID, Queue: ev.Queue, Active: ev.Active}
		a.regMu.Unlock()

	case EvApplicationStatus:
		a.regMu.Lock()
		if r, ok := a.regs[ev.ServiceID]; ok {
			r.Active = ev.Active
		}
		a.regMu.Unlock()

	case EvApplicationRemove:
		a.regMu.Lock()
		delete(a.regs, ev.ServiceID)
		a.regMu.Unlock()

	case EvSendBundle:
		if ev.Bundle == nil {
			return
		}
		b := ev.Bundle
		if now > b.CreationTimestamp {
			elapsed := now - b.CreationTimestamp
			if elapsed < b.Lifetime {
				b.Lifetime -= elapsed
			} else {
				b.Lifetime = 0
			}
		}
		a.dispatch(b, now, ev.ServiceID)

	case EvReceiveBundle:
		if ev.Bundle == nil {
			return
		}
		a.dispatch(ev.Bundle, now, 0)

	case EvSendAdminRecord:
		if ev.Bundle == nil {
			return
		}
		a.dispatch(ev.Bundle, now, 0)

	case EvProcessingFinished:
		a.processingFinished(ev.Number)

	case EvBundleInStorage:
		a.forwardingPass()

	case EvStorageSweep:
		a.sweepStorage(now)

	case EvBeacon:
		a.markNeighbor(ev.Neighbor, now)
		a.forwardingPass()

	case EvPeerAlive:
		a.markNeighbor(ev.Neighbor, now)
		a.forwardingPass()

	default:
		a.log.WithField("event", ev.Kind).Warn("agent: unknown event kind")
	}
}
