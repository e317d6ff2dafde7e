package appagent

import (
	"testing"

	"github.com/dtn7/dtn7-core/agent"
	"github.com/dtn7/dtn7-core/bundle"
)

func TestPingAgentRepliesToDelivery(t *testing.T) {
	self := bundle.EndpointID{Node: 1, Service: 5}
	now := func() uint32 { return 42 }
	p := NewPingAgent(self, 5, now)

	src := bundle.New(bundle.SingletonDestination, self, bundle.EndpointID{Node: 2, Service: 0}, 10, 0, 3600)
	src.AddBlock(bundle.NewBlock(bundle.PayloadBlockType, 0, []byte("ping")))

	p.Inbox() <- agent.SubmitDataMessage{Bundle: src}

	ev := <-p.Outbox()
	if ev.Kind != agent.EvSendBundle || ev.Bundle == nil {
		t.Fatalf("expected a send_bundle event with a bundle, got %+v", ev)
	}
	if ev.Bundle.Destination != src.ReportTo {
		t.Fatalf("expected pong addressed to the original report-to endpoint")
	}

	close(p.Inbox())
}

func TestRESTAgentSendParsesEndpoint(t *testing.T) {
	eid, err := parseEndpointID("dtn://3.7")
	if err != nil {
		t.Fatalf("parseEndpointID: %v", err)
	}
	if eid.Node != 3 || eid.Service != 7 {
		t.Fatalf("parsed wrong endpoint: %+v", eid)
	}

	if _, err := parseEndpointID("not-an-endpoint"); err == nil {
		t.Fatal("expected an error parsing a malformed endpoint id")
	}
}
