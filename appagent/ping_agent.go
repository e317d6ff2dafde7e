package appagent

import (
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtn7-core/agent"
	"github.com/dtn7/dtn7-core/bundle"
)

// PingAgent acknowledges every bundle delivered to it with a "pong" payload
// sent back to the sender's report-to endpoint.
type PingAgent struct {
	self      bundle.EndpointID
	serviceID uint32

	inbox  chan agent.Message
	outbox chan agent.Event

	now func() uint32
}

// NewPingAgent creates a PingAgent registered under serviceID, sourcing its
// replies from self. now supplies the creation timestamp for outgoing pongs.
func NewPingAgent(self bundle.EndpointID, serviceID uint32, now func() uint32) *PingAgent {
	p := &PingAgent{
		self:      self,
		serviceID: serviceID,
		inbox:     make(chan agent.Message, agent.QueueDepth),
		outbox:    make(chan agent.Event, agent.QueueDepth),
		now:       now,
	}

	go p.run()

	return p
}

func (p *PingAgent) log() *log.Entry {
	return log.WithField("component", "ping_agent")
}

func (p *PingAgent) run() {
	defer close(p.outbox)

	for msg := range p.inbox {
		switch m := msg.(type) {
		case agent.SubmitDataMessage:
			p.pong(m.Bundle)
		default:
			p.log().WithField("message", msg).Debug("ping agent ignoring unsupported message")
		}
	}
}

func (p *PingAgent) pong(b bundle.Bundle) {
	now := p.now()
	reply := bundle.New(bundle.SingletonDestination, b.ReportTo, p.self, now, 0, b.Lifetime)
	reply.AddBlock(bundle.NewBlock(bundle.PayloadBlockType, 0, []byte("pong")))

	p.log().WithFields(log.Fields{"to": b.ReportTo, "bundle": b.ID()}).Info("ping agent replying")
	p.outbox <- agent.Event{Kind: agent.EvSendBundle, Bundle: &reply, ServiceID: p.serviceID}
}

func (p *PingAgent) ServiceID() uint32           { return p.serviceID }
func (p *PingAgent) Inbox() chan agent.Message   { return p.inbox }
func (p *PingAgent) Outbox() chan agent.Event    { return p.outbox }
