// Package discovery implements UDP multicast neighbor discovery, feeding
// the Bundle Agent's beacon and peer_alive events from the outside without
// either side knowing anything about the other's wire format.
package discovery

import (
	"bytes"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dtn7/cboring"
	"github.com/schollz/peerdiscovery"
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtn7-core/agent"
)

const (
	multicastAddress4 = "224.23.23.23"
	multicastAddress6 = "ff02::23"
	multicastPort     = 35039
)

// beacon is the small CBOR payload broadcast on the multicast group: just
// enough for a receiver to recognize which node answered and where to
// reach it for a connection-oriented CLA.
type beacon struct {
	Node uint32
	Port uint32
}

func (b *beacon) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(2, w); err != nil {
		return err
	}
	if err := cboring.WriteUInt(uint64(b.Node), w); err != nil {
		return err
	}
	return cboring.WriteUInt(uint64(b.Port), w)
}

func (b *beacon) UnmarshalCbor(r io.Reader) error {
	n, err := cboring.ReadArrayLength(r)
	if err != nil {
		return err
	}
	if n != 2 {
		return fmt.Errorf("discovery: beacon array length %d, expected 2", n)
	}
	node, err := cboring.ReadUInt(r)
	if err != nil {
		return err
	}
	port, err := cboring.ReadUInt(r)
	if err != nil {
		return err
	}
	b.Node, b.Port = uint32(node), uint32(port)
	return nil
}

func encodeBeacon(b beacon) ([]byte, error) {
	var buf bytes.Buffer
	if err := b.MarshalCbor(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeBeacon(data []byte) (beacon, error) {
	var b beacon
	err := b.UnmarshalCbor(bytes.NewReader(data))
	return b, err
}

// Service periodically broadcasts this node's presence and reports
// neighbors it hears from into the Bundle Agent: the first response from a
// node becomes a beacon event, every one after that a peer_alive event.
type Service struct {
	self uint32
	post func(agent.Event)

	mu   sync.Mutex
	seen map[uint32]bool

	stop4, stop6 chan struct{}
}

// NewService starts broadcasting self's presence (and listening for
// others') at the given interval over IPv4, IPv6, or both. Discovered
// neighbors are reported by calling post.
func NewService(self uint32, listenPort uint32, post func(agent.Event), interval time.Duration, ipv4, ipv6 bool) (*Service, error) {
	svc := &Service{
		self: self,
		post: post,
		seen: make(map[uint32]bool),
	}

	payload, err := encodeBeacon(beacon{Node: self, Port: listenPort})
	if err != nil {
		return nil, err
	}

	groups := []struct {
		active  bool
		address string
		stop    *chan struct{}
		version peerdiscovery.IPVersion
		notify  func(peerdiscovery.Discovered)
	}{
		{ipv4, multicastAddress4, &svc.stop4, peerdiscovery.IPv4, svc.notify},
		{ipv6, multicastAddress6, &svc.stop6, peerdiscovery.IPv6, svc.notify},
	}

	for _, g := range groups {
		if !g.active {
			continue
		}
		*g.stop = make(chan struct{})

		settings := peerdiscovery.Settings{
			Limit:            -1,
			Port:             fmt.Sprintf("%d", multicastPort),
			MulticastAddress: g.address,
			Payload:          payload,
			Delay:            interval,
			TimeLimit:        -1,
			StopChan:         *g.stop,
			AllowSelf:        true,
			IPVersion:        g.version,
			Notify:           g.notify,
		}

		errCh := make(chan error, 1)
		go func() {
			_, discoverErr := peerdiscovery.Discover(settings)
			errCh <- discoverErr
		}()

		select {
		case err := <-errCh:
			if err != nil {
				return nil, fmt.Errorf("discovery: starting peerdiscovery: %w", err)
			}
		case <-time.After(time.Second):
		}
	}

	return svc, nil
}

func (s *Service) notify(discovered peerdiscovery.Discovered) {
	b, err := decodeBeacon(discovered.Payload)
	if err != nil {
		log.WithFields(log.Fields{"peer": discovered.Address, "error": err}).
			Debug("discovery: malformed beacon, ignored")
		return
	}
	if b.Node == s.self {
		return
	}

	s.mu.Lock()
	firstTime := !s.seen[b.Node]
	s.seen[b.Node] = true
	s.mu.Unlock()

	kind := agent.EvPeerAlive
	if firstTime {
		kind = agent.EvBeacon
	}
	s.post(agent.Event{Kind: kind, Neighbor: b.Node})
}

// Stop ends both multicast listeners, if running.
func (s *Service) Stop() {
	if s.stop4 != nil {
		close(s.stop4)
	}
	if s.stop6 != nil {
		close(s.stop6)
	}
}
