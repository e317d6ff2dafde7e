package bundle

import "fmt"

// EndpointID identifies a receiver within this node or a neighboring one. In
// this profile an endpoint is simply a (node, service) pair of unsigned
// 32-bit numbers; there is no string URI or scheme dictionary.
type EndpointID struct {
	Node    uint32
	Service uint32
}

// NoneEndpoint is the null endpoint, analogous to dtn:none in RFC 5050.
var NoneEndpoint = EndpointID{Node: 0, Service: 0}

// IsNone reports whether this is the null endpoint.
func (e EndpointID) IsNone() bool {
	return e == NoneEndpoint
}

func (e EndpointID) String() string {
	return fmt.Sprintf("dtn://%d.%d", e.Node, e.Service)
}
