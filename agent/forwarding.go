package agent

import (
	log "github.com/sirupsen/logrus"
)

// markNeighbor records that neighbor was seen alive at now, via either a
// beacon overheard on a broadcast-capable CLA or an explicit peer_alive
// event from a connection-oriented one.
func (a *Agent) markNeighbor(neighbor uint32, now uint32) {
	a.neighborMu.Lock()
	defer a.neighborMu.Unlock()

	if n, ok := a.neighbors[neighbor]; ok {
		n.LastSeen = now
		n.Active = true
		return
	}
	a.neighbors[neighbor] = &neighborEntry{LastSeen: now, Active: true}
}

// activeNeighbor reports whether neighbor is currently known and active.
func (a *Agent) activeNeighbor(neighbor uint32) bool {
	a.neighborMu.Lock()
	defer a.neighborMu.Unlock()

	n, ok := a.neighbors[neighbor]
	return ok && n.Active
}

// forwardingPass walks everything sitting in storage and hands each bundle
// whose destination is a currently active neighbor to the network. It is
// triggered whenever a new bundle lands in storage or a neighbor's liveness
// changes, rather than on a fixed timer: both are the only events that can
// turn a previously unforwardable bundle into a forwardable one.
//
// A bundle that fails to send, or whose destination isn't a known neighbor
// yet, is simply left in storage for the next pass; forwardingPass never
// deletes on the Agent's own initiative.
func (a *Agent) forwardingPass() {
	for _, num := range a.storage.List() {
		b, err := a.storage.Read(num)
		if err != nil {
			continue
		}

		if b.Destination.Node == a.Self.Node {
			continue
		}
		if !a.activeNeighbor(b.Destination.Node) {
			continue
		}

		frame, err := b.ToBytes()
		if err != nil {
			a.log.WithFields(log.Fields{"bundle": num, "error": err}).Warn("agent: forwarding pass failed to encode bundle")
			continue
		}

		if err := a.network.Send(b.Destination.Node, frame); err != nil {
			a.log.WithFields(log.Fields{"bundle": num, "neighbor": b.Destination.Node, "error": err}).
				Debug("agent: forwarding pass send failed, leaving bundle in storage")
			continue
		}
	}
}
