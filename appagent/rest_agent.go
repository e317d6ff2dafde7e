package appagent

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtn7-core/agent"
	"github.com/dtn7/dtn7-core/bundle"
)

// parseEndpointID parses the "dtn://node.service" form bundle.EndpointID.String produces.
func parseEndpointID(s string) (bundle.EndpointID, error) {
	var node, service uint32
	if _, err := fmt.Sscanf(s, "dtn://%d.%d", &node, &service); err != nil {
		return bundle.EndpointID{}, fmt.Errorf("malformed endpoint id %q: %w", s, err)
	}
	return bundle.EndpointID{Node: node, Service: service}, nil
}

// RESTAgent exposes a minimal HTTP API under a mux.Router subtree: poll for
// delivered bundles and submit new ones as JSON. Unlike the push-style
// WebSocketAgent, a client must poll /fetch for new arrivals.
type RESTAgent struct {
	self      bundle.EndpointID
	serviceID uint32
	now       func() uint32

	inbox  chan agent.Message
	outbox chan agent.Event

	mu      sync.Mutex
	mailbox []restBundle
}

type restBundle struct {
	Source  string `json:"source"`
	Payload []byte `json:"payload"`
}

type restSendRequest struct {
	Destination string `json:"destination"`
	Payload     []byte `json:"payload"`
	Lifetime    uint32 `json:"lifetime"`
}

type restErrorResponse struct {
	Error string `json:"error"`
}

// NewRESTAgent creates a RESTAgent registered under serviceID and wires its
// routes onto router: POST /send and GET /fetch.
func NewRESTAgent(router *mux.Router, self bundle.EndpointID, serviceID uint32, now func() uint32) *RESTAgent {
	ra := &RESTAgent{
		self:      self,
		serviceID: serviceID,
		now:       now,
		inbox:     make(chan agent.Message, agent.QueueDepth),
		outbox:    make(chan agent.Event, agent.QueueDepth),
	}

	router.HandleFunc("/send", ra.handleSend).Methods(http.MethodPost)
	router.HandleFunc("/fetch", ra.handleFetch).Methods(http.MethodGet)

	go ra.run()

	return ra
}

func (ra *RESTAgent) log() *log.Entry {
	return log.WithField("component", "rest_agent")
}

func (ra *RESTAgent) run() {
	defer close(ra.outbox)

	for msg := range ra.inbox {
		switch m := msg.(type) {
		case agent.SubmitDataMessage:
			ra.mu.Lock()
			ra.mailbox = append(ra.mailbox, restBundle{
				Source:  m.Bundle.Source.String(),
				Payload: payloadOf(m.Bundle),
			})
			ra.mu.Unlock()
		default:
			ra.log().WithField("message", msg).Debug("rest agent ignoring unsupported message")
		}
	}
}

func payloadOf(b bundle.Bundle) []byte {
	blk, err := b.PayloadBlock()
	if err != nil {
		return nil
	}
	return blk.Payload
}

func (ra *RESTAgent) handleFetch(w http.ResponseWriter, r *http.Request) {
	ra.mu.Lock()
	bundles := ra.mailbox
	ra.mailbox = nil
	ra.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(bundles)
}

func (ra *RESTAgent) handleSend(w http.ResponseWriter, r *http.Request) {
	var req restSendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(restErrorResponse{Error: err.Error()})
		return
	}

	dest, err := parseEndpointID(req.Destination)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(restErrorResponse{Error: err.Error()})
		return
	}

	lifetime := req.Lifetime
	if lifetime == 0 {
		lifetime = 3600
	}

	b := bundle.New(bundle.SingletonDestination, dest, ra.self, ra.now(), 0, lifetime)
	b.AddBlock(bundle.NewBlock(bundle.PayloadBlockType, 0, req.Payload))

	ra.outbox <- agent.Event{Kind: agent.EvSendBundle, Bundle: &b, ServiceID: ra.serviceID}

	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(restErrorResponse{})
}

func (ra *RESTAgent) ServiceID() uint32         { return ra.serviceID }
func (ra *RESTAgent) Inbox() chan agent.Message { return ra.inbox }
func (ra *RESTAgent) Outbox() chan agent.Event  { return ra.outbox }
