// Package model defines shared types for the proxy.
package model

import (
	"net"
	"strconv"
)

// MethodKind is the forwarding strategy a request method selects.
type MethodKind int

const (
	// MethodOther covers every method relayed as a single request/response.
	MethodOther MethodKind = iota
	// MethodConnect is the CONNECT tunnel method.
	MethodConnect
)

// String returns the strategy label for the kind.
func (k MethodKind) String() string {
	if k == MethodConnect {
		return "tunnel"
	}
	return "direct"
}

// KindOf derives the MethodKind for a method token. Matching is exact, as sent.
func KindOf(method string) MethodKind {
	if method == "CONNECT" {
		return MethodConnect
	}
	return MethodOther
}

// Request is the routing view of one inbound message. It is built once per
// connection and not mutated afterwards.
type Request struct {
	Method  string
	Kind    MethodKind
	Target  string
	Version string
	// Headers keeps keys as received; the last occurrence of a name wins.
	Headers map[string]string
	Host    string
	Port    int
	// Raw is the complete inbound byte sequence, forwarded verbatim.
	Raw []byte
	// Body is the part of Raw after the blank line ending the header block.
	// For CONNECT these are tunnel bytes the client sent ahead of the ack.
	Body []byte
}

// Addr returns the request's own destination as host:port.
func (r *Request) Addr() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(r.Port))
}
