package forwarder

import (
	"time"

	"github.com/Megallm/ultrabalancer-sub000/core/atomicx"
	"github.com/Megallm/ultrabalancer-sub000/core/registry"
)

// State is a connection pair's position in the lifecycle: accepted
// (Connected), backend connect in flight (Connecting), shuttling bytes
// (Forwarding), one direction finished (HalfClosedC when the client sent
// its FIN first, HalfClosedB for the backend), and tear-down (Closing).
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateForwarding
	StateHalfClosedC
	StateHalfClosedB
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateForwarding:
		return "forwarding"
	case StateHalfClosedC:
		return "half_closed_client"
	case StateHalfClosedB:
		return "half_closed_backend"
	case StateClosing:
		return "closing"
	default:
		return "disconnected"
	}
}

// Connection is one half of a client<->backend pair. A client Connection
// and its backend Connection always point at each other through Peer, so
// closing one side never requires a lookup to find the other. All
// mutable fields below are touched only by the one reactor goroutine
// that owns the pair.
type Connection struct {
	FD         int
	Kind       Kind
	RemoteAddr string
	Backend    *registry.Backend
	Peer       *Connection

	State State

	acquiredAt time.Time

	// out holds bytes that couldn't be written immediately (EAGAIN, or
	// arrived while the backend was still connecting); the reactor arms
	// EPOLLOUT and drains it on the next writable event.
	out []byte

	// readEOF is set once this side's read half has seen EOF (or a read
	// error); its peer's write half is shut down after out drains.
	readEOF bool

	// readPaused is set while read interest is withdrawn because the
	// peer has undrained output — the backpressure valve.
	readPaused bool

	// wrShutdown is set once SHUT_WR has been issued on this fd.
	wrShutdown bool

	// shutAfterDrain requests a SHUT_WR on this fd as soon as out
	// empties, propagating the peer's EOF without truncating buffered
	// bytes.
	shutAfterDrain bool

	// awaitHeader is set on a client Connection while the listener's
	// PROXY protocol option holds routing back until the advertised
	// source address has been read; hdr accumulates the header bytes.
	awaitHeader bool
	hdr         []byte

	closed atomicx.Bool
}

// markClosed returns true exactly once, to the caller that should
// actually tear the fd down; every later call returns false. Both ends of
// a pair are only ever closed from the reactor that owns them, so this
// load-then-set has no concurrent writer to race against.
func (c *Connection) markClosed() bool {
	if c.closed.Load() {
		return false
	}
	c.closed.Set(true)
	return true
}
