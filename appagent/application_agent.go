// Package appagent collects the application-facing ApplicationAgent
// implementations: ways for a local process to register a service_id and
// exchange bundles with the Bundle Agent's event loop.
package appagent

import "github.com/dtn7/dtn7-core/agent"

// ApplicationAgent is something the Bundle Agent can register a service_id
// for. Inbox delivers SubmitDataMessage values the agent posts for this
// service; Outbox carries Events the application wants the agent to act on
// (chiefly send_bundle). The composition root owns pumping Outbox into
// Agent.Post and registering Inbox via an application_registration event.
type ApplicationAgent interface {
	ServiceID() uint32
	Inbox() chan agent.Message
	Outbox() chan agent.Event
}

// Pump forwards every event an ApplicationAgent produces on its Outbox into
// the Agent's own queue, until Outbox is closed. Meant to run in its own
// goroutine, one per registered application.
func Pump(a *agent.Agent, app ApplicationAgent) {
	for ev := range app.Outbox() {
		a.Post(ev)
	}
}
