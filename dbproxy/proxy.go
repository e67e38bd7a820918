// Package dbproxy is the DB-mode front end: it accepts client
// connections, sniffs the wire protocol from the first bytes, classifies
// the opening statement and hands the connection to a backend chosen by
// the session router — primary for writes and transactions, a fresh
// replica for reads. Once the relay starts the client owns the protocol
// handshake, so routing decisions are made per connection; the session
// table carries transaction pins across connections from the same
// client.
package dbproxy

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	libtls "github.com/Megallm/ultrabalancer-sub000/certificates"
	"github.com/Megallm/ultrabalancer-sub000/core/registry"
	"github.com/Megallm/ultrabalancer-sub000/dbproxy/classify"
	"github.com/Megallm/ultrabalancer-sub000/dbproxy/pool"
	"github.com/Megallm/ultrabalancer-sub000/dbproxy/router"
	liblog "github.com/Megallm/ultrabalancer-sub000/logger"
)

const (
	// firstByteWait bounds how long the front end waits for a
	// client-first protocol (PostgreSQL startup, Redis inline command)
	// before treating the session as server-first (MySQL handshake) and
	// routing it to the primary unclassified.
	firstByteWait = 250 * time.Millisecond

	acquireTimeout = 5 * time.Second
	sniffBufSize   = 8 * 1024
)

// Config sizes the front end and its per-backend pools.
type Config struct {
	Listen         string
	MaxSessions    int
	MaxConns       int
	IdleTimeout    time.Duration
	MaxLifetime    time.Duration
	LagThresholdMS int64

	// TLS, when set, terminates TLS on the accepted client connections;
	// the backend side stays plaintext (the usual sidecar split).
	TLS *libtls.Config
}

// Proxy owns one DB-mode listener, the session router behind it and one
// connection pool per backend.
type Proxy struct {
	cfg Config
	reg *registry.Registry
	rtr *router.Router
	log liblog.FuncLog

	ln       net.Listener
	mu       sync.Mutex
	pools    map[uint32]*pool.Pool
	wg       sync.WaitGroup
	stopCh   chan struct{}
	stopOnce sync.Once
}

func New(cfg Config, reg *registry.Registry, log liblog.FuncLog) *Proxy {
	p := &Proxy{
		cfg:    cfg,
		reg:    reg,
		log:    log,
		pools:  make(map[uint32]*pool.Pool),
		stopCh: make(chan struct{}),
	}
	p.rtr = router.New(router.Config{
		MaxSessions:    cfg.MaxSessions,
		LagThresholdMS: cfg.LagThresholdMS,
	}, reg, p.poolFor)
	return p
}

// Router exposes the session router for stats and tests.
func (p *Proxy) Router() *router.Router { return p.rtr }

// Addr reports the bound listen address, nil until Serve has bound it.
func (p *Proxy) Addr() net.Addr {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ln == nil {
		return nil
	}
	return p.ln.Addr()
}

// PoolStats snapshots every live backend pool, keyed by backend address.
func (p *Proxy) PoolStats() map[string]pool.Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]pool.Stats, len(p.pools))
	for id, pl := range p.pools {
		name := "unknown"
		if b := p.reg.Find(id); b != nil {
			name = b.Addr()
		}
		out[name] = pl.Stats()
	}
	return out
}

func (p *Proxy) poolFor(b *registry.Backend) *pool.Pool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pl, ok := p.pools[b.ID]; ok {
		return pl
	}

	addr := b.Addr()
	proto := b.Protocol
	pl := pool.New(pool.Config{
		MaxConns:       p.cfg.MaxConns,
		IdleTimeout:    p.cfg.IdleTimeout,
		MaxLifetime:    p.cfg.MaxLifetime,
		AcquireTimeout: acquireTimeout,
		ReapInterval:   30 * time.Second,
	}, func(ctx context.Context) (pool.Conn, error) {
		var d net.Dialer
		c, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, err
		}
		return &relayConn{Conn: c, proto: proto}, nil
	})
	p.pools[b.ID] = pl
	return pl
}

// Serve accepts client connections until Stop closes the listener.
func (p *Proxy) Serve() error {
	ln, err := net.Listen("tcp", p.cfg.Listen)
	if err != nil {
		return err
	}
	if p.cfg.TLS != nil {
		ln = tls.NewListener(ln, p.cfg.TLS.New().TlsConfig(""))
	}
	p.mu.Lock()
	p.ln = ln
	p.mu.Unlock()

	for {
		c, err := ln.Accept()
		if err != nil {
			select {
			case <-p.stopCh:
				return nil
			default:
				return err
			}
		}
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.handle(c)
		}()
	}
}

// Stop closes the listener, waits for in-flight relays to finish and
// drains every pool.
func (p *Proxy) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.mu.Lock()
	if p.ln != nil {
		_ = p.ln.Close()
	}
	p.mu.Unlock()
	p.wg.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, pl := range p.pools {
		pl.Close()
	}
}

func (p *Proxy) handle(client net.Conn) {
	defer func() { _ = client.Close() }()

	key := sessionKey(client.RemoteAddr())

	// Client-first protocols deliver their opening frame immediately;
	// a server-first protocol leaves the read to time out, and the
	// session is routed unclassified.
	buf := make([]byte, sniffBufSize)
	_ = client.SetReadDeadline(time.Now().Add(firstByteWait))
	n, rerr := client.Read(buf)
	_ = client.SetReadDeadline(time.Time{})
	if rerr != nil && n == 0 {
		var ne net.Error
		if !errors.As(rerr, &ne) || !ne.Timeout() {
			return
		}
	}

	var query string
	if n > 0 {
		if proto, err := classify.SniffProtocol(buf[:n]); err == nil {
			if q, err := classify.ExtractQuery(proto, buf[:n]); err == nil {
				query = q
			}
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), acquireTimeout)
	conn, backend, err := p.rtr.Route(ctx, key, query)
	cancel()
	if err != nil {
		p.log().Warning("db route for %s failed: %v", key, err)
		return
	}

	backend.Acquire()
	start := time.Now()
	failed := p.relay(client, conn, buf[:n])
	backend.Release(time.Since(start), failed)

	// the handshake state on the wire belongs to this client; the
	// connection cannot be reused by another session
	p.poolFor(backend).Discard(conn)
}

// relay forwards bytes both ways until either side closes. Returns true
// when the relay ended on something other than a clean EOF.
func (p *Proxy) relay(client net.Conn, backend pool.Conn, first []byte) bool {
	if len(first) > 0 {
		if _, err := backend.Write(first); err != nil {
			return true
		}
	}

	errCh := make(chan error, 2)
	go func() {
		_, err := io.Copy(backend, client)
		errCh <- err
	}()
	go func() {
		_, err := io.Copy(client, backend)
		errCh <- err
	}()

	err := <-errCh
	// unblock the other copy direction
	_ = client.Close()
	_ = backend.Close()
	<-errCh

	return err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed)
}

// sessionKey identifies a client session by source IP, so a client's
// next connection inherits its transaction pin.
func sessionKey(addr net.Addr) string {
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}

// relayConn is the pool's view of a raw backend connection.
type relayConn struct {
	net.Conn
	proto registry.Protocol
}

var redisPing = []byte("*1\r\n$4\r\nPING\r\n")
var redisPong = []byte("+PONG\r\n")

// Ping validates an idle connection. Redis allows a real protocol ping
// on a raw connection; for PostgreSQL and MySQL the client owns the
// handshake, so the check is limited to detecting a dead or half-closed
// peer with a short deadline read.
func (c *relayConn) Ping() error {
	if c.proto == registry.ProtocolRedis {
		_ = c.SetDeadline(time.Now().Add(time.Second))
		defer func() { _ = c.SetDeadline(time.Time{}) }()
		if _, err := c.Write(redisPing); err != nil {
			return err
		}
		resp := make([]byte, len(redisPong))
		if _, err := io.ReadFull(c.Conn, resp); err != nil {
			return err
		}
		if string(resp) != string(redisPong) {
			return errors.New("unexpected ping reply")
		}
		return nil
	}

	_ = c.SetReadDeadline(time.Now().Add(10 * time.Millisecond))
	defer func() { _ = c.SetReadDeadline(time.Time{}) }()
	one := make([]byte, 1)
	if _, err := c.Conn.Read(one); err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return nil
		}
		return err
	}
	// a silent idle connection has no business sending bytes
	return errors.New("unexpected data on idle connection")
}
