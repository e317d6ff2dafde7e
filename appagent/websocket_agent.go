package appagent

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtn7-core/agent"
	"github.com/dtn7/dtn7-core/bundle"
)

// WebSocketAgent pushes every bundle delivered to its service_id out to
// every currently connected WebSocket client, and turns each inbound
// WebSocket message (text or binary) into an outbound bundle addressed to
// self. Unlike
// RESTAgent, delivery is push-based: no polling.
type WebSocketAgent struct {
	self      bundle.EndpointID
	serviceID uint32
	now       func() uint32

	inbox  chan agent.Message
	outbox chan agent.Event

	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

// NewWebSocketAgent creates a WebSocketAgent registered under serviceID.
// ServeHTTP must be wired to an HTTP route by the caller.
func NewWebSocketAgent(self bundle.EndpointID, serviceID uint32, now func() uint32) *WebSocketAgent {
	w := &WebSocketAgent{
		self:      self,
		serviceID: serviceID,
		now:       now,
		inbox:     make(chan agent.Message, agent.QueueDepth),
		outbox:    make(chan agent.Event, agent.QueueDepth),
		upgrader:  websocket.Upgrader{},
		conns:     make(map[*websocket.Conn]struct{}),
	}

	go w.run()

	return w
}

func (w *WebSocketAgent) log() *log.Entry {
	return log.WithField("component", "websocket_agent")
}

func (w *WebSocketAgent) run() {
	defer close(w.outbox)

	for msg := range w.inbox {
		switch m := msg.(type) {
		case agent.SubmitDataMessage:
			w.broadcast(payloadOf(m.Bundle))
		default:
			w.log().WithField("message", msg).Debug("websocket agent ignoring unsupported message")
		}
	}
}

func (w *WebSocketAgent) broadcast(payload []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for conn := range w.conns {
		if err := conn.WriteMessage(websocket.BinaryMessage, payload); err != nil {
			w.log().WithField("error", err).Debug("websocket agent write failed, dropping connection")
			_ = conn.Close()
			delete(w.conns, conn)
		}
	}
}

// ServeHTTP upgrades the request to a WebSocket and pumps inbound frames
// into outgoing bundles until the connection closes.
func (w *WebSocketAgent) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	conn, err := w.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		w.log().WithField("error", err).Warn("websocket upgrade failed")
		return
	}

	w.mu.Lock()
	w.conns[conn] = struct{}{}
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		delete(w.conns, conn)
		w.mu.Unlock()
		_ = conn.Close()
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}

		b := bundle.New(bundle.SingletonDestination, w.self, w.self, w.now(), 0, 3600)
		b.AddBlock(bundle.NewBlock(bundle.PayloadBlockType, 0, payload))
		w.outbox <- agent.Event{Kind: agent.EvSendBundle, Bundle: &b, ServiceID: w.serviceID}
	}
}

func (w *WebSocketAgent) ServiceID() uint32         { return w.serviceID }
func (w *WebSocketAgent) Inbox() chan agent.Message { return w.inbox }
func (w *WebSocketAgent) Outbox() chan agent.Event  { return w.outbox }
