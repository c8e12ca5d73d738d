// Package router decides where a parsed request is sent and how it is relayed.
package router

import (
	"rserver/internal/config"
	"rserver/internal/model"
)

// Route is the outcome of routing one request.
type Route struct {
	// Addr is the host:port the single outbound connection is made to.
	Addr string
	// Strategy selects the relay: MethodConnect tunnels, MethodOther relays once.
	Strategy model.MethodKind
	// ViaUpstream reports whether Addr is the configured upstream proxy.
	ViaUpstream bool
}

// Resolve routes req. With the upstream proxy enabled every request,
// CONNECT included, goes to the upstream address unmodified; otherwise the
// request's own host and port are used.
func Resolve(req *model.Request, upstream *config.UpstreamConfig) Route {
	r := Route{Strategy: req.Kind}
	if upstream != nil && upstream.Enabled {
		r.Addr = upstream.Addr()
		r.ViaUpstream = true
		return r
	}
	r.Addr = req.Addr()
	return r
}
