package agent

// QueueDepth is the default bounded capacity of a registration's message queue.
const QueueDepth = 16

// Registration maps a service_id to the application queue receiving its
// bundles. At most one registration exists per service_id at any time.
type Registration struct {
	ServiceID uint32
	Queue     chan Message
	Active    bool
}

// NewRegistration creates a Registration with a freshly allocated, bounded queue.
func NewRegistration(serviceID uint32) *Registration {
	return &Registration{
		ServiceID: serviceID,
		Queue:     make(chan Message, QueueDepth),
		Active:    true,
	}
}

// post attempts a non-blocking send; false means the queue was full and the
// event must be dropped by the caller (network-sourced) or retried (application-sourced).
func (r *Registration) post(msg Message) bool {
	select {
	case r.Queue <- msg:
		return true
	default:
		return false
	}
}
