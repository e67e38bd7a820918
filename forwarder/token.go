// Package forwarder implements the reactor-per-worker connection
// forwarder: each worker owns its own netpoller and a disjoint set of
// file descriptors, so a connection never hops goroutines once accepted
// and no per-connection lock is needed.
package forwarder

// Kind tags what a readiness token refers to. The poller's readiness
// event always carries one of these, plus a *Connection for client and
// backend tokens — never a bare fd or an aliased fd/pointer union — so
// dispatch never has to guess what woke it up.
type Kind int

const (
	KindListen Kind = iota
	KindClient
	KindBackend
)

func (k Kind) String() string {
	switch k {
	case KindListen:
		return "listen"
	case KindClient:
		return "client"
	case KindBackend:
		return "backend"
	default:
		return "unknown"
	}
}

// Token is the uniform readiness token every netpoller implementation
// hands back from Wait. Conn is nil for KindListen tokens, which carry no
// per-connection state.
type Token struct {
	Kind Kind
	Conn *Connection
}
