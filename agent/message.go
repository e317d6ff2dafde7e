package agent

import "github.com/dtn7/dtn7-core/bundle"

// Message is the tagged union of events the Agent posts to a registered
// application's queue. Application code type-switches on the concrete type.
type Message interface {
	isMessage()
}

// SubmitDataMessage carries a locally-destined bundle down to the owning application.
type SubmitDataMessage struct {
	Bundle bundle.Bundle
}

func (SubmitDataMessage) isMessage() {}

// BundleStoredMessage confirms the last bundle an application sent was
// accepted into storage on the forwarding path.
type BundleStoredMessage struct {
	Number bundle.BundleNumber
}

func (BundleStoredMessage) isMessage() {}

// BundleStoreFailedMessage reports that the last bundle an application sent
// could not be accepted (storage full).
type BundleStoreFailedMessage struct{}

func (BundleStoreFailedMessage) isMessage() {}
