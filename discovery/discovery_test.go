package discovery

import (
	"testing"

	"github.com/dtn7/dtn7-core/agent"
	"github.com/schollz/peerdiscovery"
)

func TestBeaconCborRoundTrip(t *testing.T) {
	tests := []beacon{
		{Node: 1, Port: 8000},
		{Node: 1337, Port: 0},
		{Node: 4294967295, Port: 65535},
	}

	for _, in := range tests {
		data, err := encodeBeacon(in)
		if err != nil {
			t.Fatalf("encodeBeacon(%+v): %v", in, err)
		}

		out, err := decodeBeacon(data)
		if err != nil {
			t.Fatalf("decodeBeacon: %v", err)
		}

		if out != in {
			t.Fatalf("round-trip mismatch: in=%+v out=%+v", in, out)
		}
	}
}

func TestNotifyFirstContactIsBeaconThenPeerAlive(t *testing.T) {
	var kinds []agent.EventKind
	s := &Service{
		self: 1,
		seen: make(map[uint32]bool),
		post: func(ev agent.Event) { kinds = append(kinds, ev.Kind) },
	}

	payload, err := encodeBeacon(beacon{Node: 2, Port: 9000})
	if err != nil {
		t.Fatalf("encodeBeacon: %v", err)
	}
	discovered := peerdiscovery.Discovered{Address: "192.0.2.1", Payload: payload}

	s.notify(discovered)
	s.notify(discovered)

	if len(kinds) != 2 {
		t.Fatalf("expected 2 events, got %d", len(kinds))
	}
	if kinds[0] != agent.EvBeacon {
		t.Errorf("first contact kind = %v, want EvBeacon", kinds[0])
	}
	if kinds[1] != agent.EvPeerAlive {
		t.Errorf("second contact kind = %v, want EvPeerAlive", kinds[1])
	}
}

func TestNotifyIgnoresSelf(t *testing.T) {
	var calls int
	s := &Service{
		self: 1,
		seen: make(map[uint32]bool),
		post: func(ev agent.Event) { calls++ },
	}

	payload, err := encodeBeacon(beacon{Node: 1, Port: 9000})
	if err != nil {
		t.Fatalf("encodeBeacon: %v", err)
	}
	s.notify(peerdiscovery.Discovered{Address: "192.0.2.1", Payload: payload})

	if calls != 0 {
		t.Fatalf("expected self-beacon to be ignored, got %d calls", calls)
	}
}
