package forwarder

import (
	"net"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/Megallm/ultrabalancer-sub000/core/balancer"
	"github.com/Megallm/ultrabalancer-sub000/core/ratelimit"
	"github.com/Megallm/ultrabalancer-sub000/core/registry"
	"github.com/Megallm/ultrabalancer-sub000/core/stick"
	"github.com/Megallm/ultrabalancer-sub000/listener"
)

const readBufSize = 16 * 1024

// Deps bundles the shared routing state a reactor consults to turn a
// freshly accepted client connection into a chosen, live backend
// connection.
type Deps struct {
	Registry  *registry.Registry
	Algorithm balancer.Algorithm
	Sticky    *stick.Table
	Limiter   *ratelimit.Limiter
	RouteName string

	// ProxyProto defers backend selection on each accepted connection
	// until a PROXY protocol v1/v2 header has been consumed; the
	// advertised source address then drives source-hash and stickiness
	// instead of the socket peer.
	ProxyProto bool
}

// reactor owns one netpoller and every connection registered on it. A
// Forwarder runs one reactor per worker, so once a connection is
// accepted it never crosses a goroutine boundary again.
type reactor struct {
	id         int
	poller     netpoller
	deps       *Deps
	listenFD   int
	listenAddr string

	mu    sync.Mutex
	conns map[int]*Connection
}

func newReactor(id int, deps *Deps) (*reactor, error) {
	p, err := newPoller()
	if err != nil {
		return nil, err
	}
	return &reactor{id: id, poller: p, deps: deps, conns: make(map[int]*Connection, 1024)}, nil
}

func (r *reactor) run(stopCh <-chan struct{}) {
	for {
		select {
		case <-stopCh:
			return
		default:
		}

		events, err := r.poller.Wait(500 * time.Millisecond)
		if err != nil {
			continue
		}

		for _, ev := range events {
			tok := ev.Token
			if tok.Kind == KindListen {
				r.onAcceptable()
				continue
			}

			// a failed non-blocking connect surfaces as EPOLLERR; let
			// the Connecting writable path read SO_ERROR and close, so
			// the failure reason is observed rather than assumed
			if ev.Err && tok.Conn.State != StateConnecting {
				r.closePair(tok.Conn)
				continue
			}
			if ev.Writable || (ev.Err && tok.Conn.State == StateConnecting) {
				r.onWritable(tok.Conn)
			}
			if ev.Readable {
				r.onReadable(tok.Conn)
			}
		}
	}
}

// onAcceptable drains every pending connection on the listen socket in
// one pass, until accept4 returns EAGAIN, so a burst of simultaneous
// SYNs costs one readiness event rather than one per connection.
func (r *reactor) onAcceptable() {
	for {
		nfd, sa, err := unix.Accept4(r.listenFD, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			return
		}
		_ = unix.SetsockoptInt(nfd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
		r.dispatch(nfd, sockaddrString(sa))
	}
}

// dispatch picks a backend for a newly accepted client fd, starts a
// non-blocking connect to it, and registers both halves of the pair on
// this reactor's poller. Nothing here blocks: the connect proceeds as
// EINPROGRESS and completes on the backend fd's first writable event.
func (r *reactor) dispatch(clientFD int, remote string) {
	if r.deps.Limiter != nil && !r.deps.Limiter.Allow(r.deps.RouteName) {
		_ = unix.Close(clientFD)
		return
	}

	if r.deps.ProxyProto {
		// routing has to wait for the advertised source address
		cc := &Connection{FD: clientFD, Kind: KindClient, RemoteAddr: remote,
			acquiredAt: time.Now(), State: StateConnected, awaitHeader: true}
		r.mu.Lock()
		r.conns[clientFD] = cc
		r.mu.Unlock()
		_ = r.poller.Add(clientFD, &Token{Kind: KindClient, Conn: cc})
		return
	}

	cc := &Connection{FD: clientFD, Kind: KindClient, RemoteAddr: remote,
		acquiredAt: time.Now(), State: StateConnected}
	r.mu.Lock()
	r.conns[clientFD] = cc
	r.mu.Unlock()
	_ = r.poller.Add(clientFD, &Token{Kind: KindClient, Conn: cc})

	if !r.connectBackend(cc, nil) {
		r.closePair(cc)
	}
}

// connectBackend picks a backend for cc (whose RemoteAddr is final by
// now), starts the non-blocking connect and registers the backend half.
// initial carries client bytes that arrived before selection — a PROXY
// header's payload tail — and is queued for the backend. Returns false
// when no backend could be engaged.
func (r *reactor) connectBackend(cc *Connection, initial []byte) bool {
	backends := r.deps.Registry.IterHealthy(registry.RoleGeneric, true)
	if len(backends) == 0 {
		return false
	}

	chosen := r.pickBackend(backends, cc.RemoteAddr)
	if chosen == nil {
		return false
	}

	backendFD, sa, err := openBackendSocket(chosen.Addr())
	if err != nil {
		return false
	}

	chosen.Acquire()

	bc := &Connection{FD: backendFD, Kind: KindBackend, Backend: chosen,
		acquiredAt: cc.acquiredAt, State: StateConnecting}
	cc.Backend = chosen
	cc.State = StateConnected
	cc.Peer, bc.Peer = bc, cc
	if len(initial) > 0 {
		bc.out = append(bc.out, initial...)
	}

	r.mu.Lock()
	r.conns[backendFD] = bc
	r.mu.Unlock()

	_ = r.poller.Add(backendFD, &Token{Kind: KindBackend, Conn: bc})

	switch err := unix.Connect(backendFD, sa); err {
	case nil:
		// loopback connects can complete synchronously
		r.connectDone(bc)
		if len(bc.out) > 0 {
			_ = r.poller.EnableWrite(backendFD)
		}
	case unix.EINPROGRESS:
		_ = r.poller.EnableWrite(backendFD)
	default:
		chosen.Release(0, true)
		cc.Backend = nil
		r.closeOne(bc)
		cc.Peer = nil
		return false
	}
	return true
}

// connectDone moves a Connecting backend (and its client) to Forwarding.
func (r *reactor) connectDone(bc *Connection) {
	bc.State = StateForwarding
	if bc.Peer != nil {
		bc.Peer.State = StateForwarding
	}
}

func (r *reactor) pickBackend(backends []*registry.Backend, remote string) *registry.Backend {
	if r.deps.Sticky != nil {
		if e, ok := r.deps.Sticky.Get(remote); ok {
			for _, b := range backends {
				if b.ID == e.BackendID {
					return b
				}
			}
		}
	}

	b, err := r.deps.Algorithm.Pick(backends, balancer.Key{SourceAddr: remote})
	if err != nil {
		return nil
	}
	if r.deps.Sticky != nil {
		_, _ = r.deps.Sticky.GetOrCreate(remote, b.ID)
	}
	return b
}

func (r *reactor) onReadable(c *Connection) {
	if c.closed.Load() || c.State == StateConnecting || c.readEOF {
		return
	}
	if c.awaitHeader {
		r.readProxyHeader(c)
		return
	}
	buf := make([]byte, readBufSize)
	for {
		n, err := unix.Read(c.FD, buf)
		if n > 0 {
			r.forward(c, buf[:n])
			if c.readPaused {
				// backpressure engaged mid-drain; the kernel buffer
				// holds the rest until the peer empties its queue
				return
			}
		}
		switch {
		case err == unix.EAGAIN:
			return
		case err != nil || n == 0:
			r.halfClose(c)
			return
		case n < len(buf):
			return
		}
	}
}

// readProxyHeader accumulates client bytes until a full PROXY protocol
// header parses, then swaps in the advertised source address and engages
// the backend with whatever payload followed the header.
func (r *reactor) readProxyHeader(c *Connection) {
	buf := make([]byte, 512)
	for {
		n, err := unix.Read(c.FD, buf)
		if n > 0 {
			c.hdr = append(c.hdr, buf[:n]...)
			remote, consumed, perr := listener.ParseProxyHeader(c.hdr)
			switch perr {
			case nil:
				payload := c.hdr[consumed:]
				c.hdr = nil
				c.awaitHeader = false
				if remote != "" {
					c.RemoteAddr = remote
				}
				if !r.connectBackend(c, payload) {
					r.closePair(c)
				}
				return
			case listener.ErrProxyIncomplete:
				// keep reading
			default:
				r.closePair(c)
				return
			}
		}
		switch {
		case err == unix.EAGAIN:
			return
		case err != nil || n == 0:
			r.closePair(c)
			return
		}
	}
}

// forward hands data read from c to its peer: buffered while the peer is
// still connecting or already backlogged, written through otherwise.
// Whenever the peer ends up with outstanding bytes, read interest on c
// is withdrawn until the peer drains. This is the backpressure valve.
func (r *reactor) forward(c *Connection, data []byte) {
	peer := c.Peer
	if peer == nil || peer.wrShutdown {
		return
	}

	if peer.State == StateConnecting || len(peer.out) > 0 {
		peer.out = append(peer.out, data...)
		r.pauseRead(c)
		return
	}

	n, err := unix.Write(peer.FD, data)
	if err != nil && err != unix.EAGAIN {
		r.closePair(c)
		return
	}
	if n < 0 {
		n = 0
	}
	if n < len(data) {
		peer.out = append(peer.out, data[n:]...)
		_ = r.poller.EnableWrite(peer.FD)
		r.pauseRead(c)
	}
}

func (r *reactor) pauseRead(c *Connection) {
	if c.readPaused || c.readEOF {
		return
	}
	c.readPaused = true
	_ = r.poller.DisableRead(c.FD)
}

func (r *reactor) resumeRead(c *Connection) {
	if c == nil || !c.readPaused || c.readEOF {
		return
	}
	c.readPaused = false
	_ = r.poller.EnableRead(c.FD)
}

func (r *reactor) onWritable(c *Connection) {
	if c.closed.Load() {
		return
	}
	if c.State == StateConnecting {
		soerr, err := unix.GetsockoptInt(c.FD, unix.SOL_SOCKET, unix.SO_ERROR)
		if err != nil || soerr != 0 {
			r.closePair(c)
			return
		}
		r.connectDone(c)
	}

	if len(c.out) > 0 {
		n, err := unix.Write(c.FD, c.out)
		if err != nil && err != unix.EAGAIN {
			r.closePair(c)
			return
		}
		if n > 0 {
			c.out = c.out[n:]
		}
	}
	if len(c.out) > 0 {
		_ = r.poller.EnableWrite(c.FD)
		return
	}

	_ = r.poller.DisableWrite(c.FD)
	if c.shutAfterDrain {
		c.shutAfterDrain = false
		r.shutdownWrite(c)
	}
	r.resumeRead(c.Peer)
	r.maybeRelease(c)
}

// halfClose handles EOF (or a read error) on c's read half: stop reading
// c, propagate the FIN to the peer's write half once everything buffered
// for it has drained, and tear the pair down only when both directions
// have finished (spec's HalfClosedC/HalfClosedB path).
func (r *reactor) halfClose(c *Connection) {
	if c.readEOF {
		return
	}
	c.readEOF = true
	c.readPaused = false
	_ = r.poller.DisableRead(c.FD)

	st := StateHalfClosedB
	if c.Kind == KindClient {
		st = StateHalfClosedC
	}
	peer := c.Peer
	if peer != nil && peer.readEOF {
		st = StateClosing
	}
	c.State = st
	if peer != nil {
		peer.State = st
	}

	if peer != nil {
		if len(peer.out) == 0 && peer.State != StateConnecting {
			r.shutdownWrite(peer)
		} else {
			peer.shutAfterDrain = true
		}
	}

	r.maybeRelease(c)
}

func (r *reactor) shutdownWrite(c *Connection) {
	if c.wrShutdown {
		return
	}
	c.wrShutdown = true
	_ = unix.Shutdown(c.FD, unix.SHUT_WR)
}

// maybeRelease tears the pair down once both read halves have seen EOF
// and neither side still holds undrained bytes.
func (r *reactor) maybeRelease(c *Connection) {
	peer := c.Peer
	if peer == nil {
		if c.readEOF {
			r.closePair(c)
		}
		return
	}
	if c.readEOF && peer.readEOF && len(c.out) == 0 && len(peer.out) == 0 {
		r.closePair(c)
	}
}

// closePair tears down both halves of a client/backend pair and releases
// the backend's load accounting exactly once, regardless of which side
// triggered the close or how many paths race to it within one event
// batch (closeOne's markClosed gate decides the single winner).
func (r *reactor) closePair(c *Connection) {
	c.State = StateClosing
	if c.Peer != nil {
		c.Peer.State = StateClosing
	}

	client := c
	if c.Kind != KindClient {
		client = c.Peer
	}

	clientClosedNow := false
	if r.closeOne(c) && c == client {
		clientClosedNow = true
	}
	if c.Peer != nil && r.closeOne(c.Peer) && c.Peer == client {
		clientClosedNow = true
	}

	if clientClosedNow && client.Backend != nil {
		client.Backend.Release(time.Since(client.acquiredAt), false)
	}
}

func (r *reactor) closeOne(c *Connection) bool {
	if c == nil || !c.markClosed() {
		return false
	}
	r.mu.Lock()
	delete(r.conns, c.FD)
	r.mu.Unlock()
	_ = r.poller.Remove(c.FD)
	_ = unix.Close(c.FD)
	return true
}

func (r *reactor) connectionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// openBackendSocket builds a non-blocking TCP socket plus the sockaddr
// to connect it to. Registry entries carry pre-resolved IPs in
// production; the lookup fallback covers hostname-configured backends,
// and runs only once per accepted connection on a miss.
func openBackendSocket(addr string) (int, unix.Sockaddr, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, nil, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0, nil, err
	}

	ip := net.ParseIP(host)
	if ip == nil {
		ips, err := net.LookupIP(host)
		if err != nil || len(ips) == 0 {
			return 0, nil, err
		}
		ip = ips[0]
	}

	var (
		domain int
		sa     unix.Sockaddr
	)
	if ip4 := ip.To4(); ip4 != nil {
		domain = unix.AF_INET
		v := &unix.SockaddrInet4{Port: port}
		copy(v.Addr[:], ip4)
		sa = v
	} else {
		domain = unix.AF_INET6
		v := &unix.SockaddrInet6{Port: port}
		copy(v.Addr[:], ip.To16())
		sa = v
	}

	fd, err := unix.Socket(domain, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return 0, nil, err
	}
	_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
	return fd, sa, nil
}

func sockaddrString(sa unix.Sockaddr) string {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		return net.JoinHostPort(net.IP(v.Addr[:]).String(), strconv.Itoa(v.Port))
	case *unix.SockaddrInet6:
		return net.JoinHostPort(net.IP(v.Addr[:]).String(), strconv.Itoa(v.Port))
	default:
		return "unknown"
	}
}
