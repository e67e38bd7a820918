// Package pool implements the DB-mode backend connection pool: a
// bounded idle/active split per backend, background reaping of
// expired/idle connections, and protocol-level ping validation before
// handing an idle connection back out. A ping is used instead of a
// one-byte MSG_PEEK because MSG_PEEK cannot observe a half-closed TLS
// session, and the DB wire protocols all define a cheap ping frame.
package pool

import (
	"context"
	"net"
	"sync"
	"time"

	liberr "github.com/Megallm/ultrabalancer-sub000/errors"
)

// Conn is the minimal connection contract the pool manages. Production
// callers wrap a net.Conn to a DB backend; tests use a fake that embeds
// net.Conn and overrides Ping and Close.
type Conn interface {
	net.Conn
	// Ping performs a liveness check and returns an error if the
	// connection is no longer usable. The DB proxy's connections send a
	// Redis PING to Redis backends; for PostgreSQL and MySQL backends they
	// send no protocol frame and only do a short deadline read that
	// detects a closed peer.
	Ping() error
}

// Dialer opens a fresh Conn to the pool's backend.
type Dialer func(ctx context.Context) (Conn, error)

// ErrPoolExhausted is returned when Acquire's deadline elapses with no
// idle connection freed and the pool already at MaxConns.
var ErrPoolExhausted = liberr.ErrCodePoolExhausted.Error(nil)

type pooledConn struct {
	conn       Conn
	createdAt  time.Time
	lastUsedAt time.Time
}

func (p *pooledConn) expired(maxLifetime time.Duration) bool {
	return maxLifetime > 0 && time.Since(p.createdAt) > maxLifetime
}

func (p *pooledConn) idleExpired(idleTimeout time.Duration) bool {
	return idleTimeout > 0 && time.Since(p.lastUsedAt) > idleTimeout
}

// Config controls pool sizing and timeouts.
type Config struct {
	MinConns       int
	MaxConns       int
	IdleTimeout    time.Duration
	MaxLifetime    time.Duration
	AcquireTimeout time.Duration
	ReapInterval   time.Duration
}

func DefaultConfig() Config {
	return Config{
		MinConns:       0,
		MaxConns:       50,
		IdleTimeout:    5 * time.Minute,
		MaxLifetime:    30 * time.Minute,
		AcquireTimeout: 5 * time.Second,
		ReapInterval:   30 * time.Second,
	}
}

// Pool manages connections to a single backend.
type Pool struct {
	cfg    Config
	dial   Dialer
	mu     sync.Mutex
	cond   *sync.Cond
	idle   []*pooledConn
	active map[*pooledConn]struct{}
	total  int

	closed bool
	stopCh chan struct{}
}

func New(cfg Config, dial Dialer) *Pool {
	if cfg.MaxConns <= 0 {
		cfg = DefaultConfig()
	}
	p := &Pool{
		cfg:    cfg,
		dial:   dial,
		active: make(map[*pooledConn]struct{}),
		stopCh: make(chan struct{}),
	}
	p.cond = sync.NewCond(&p.mu)
	go p.reapLoop()
	if cfg.MinConns > 0 {
		go p.warmUp()
	}
	return p
}

func (p *Pool) warmUp() {
	for i := 0; i < p.cfg.MinConns; i++ {
		p.mu.Lock()
		if p.closed || p.total >= p.cfg.MinConns {
			p.mu.Unlock()
			return
		}
		p.total++
		p.mu.Unlock()

		c, err := p.dial(context.Background())
		if err != nil {
			p.mu.Lock()
			p.total--
			p.mu.Unlock()
			return
		}
		now := time.Now()
		pc := &pooledConn{conn: c, createdAt: now, lastUsedAt: now}

		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			_ = c.Close()
			return
		}
		p.idle = append(p.idle, pc)
		p.mu.Unlock()
	}
}

// Acquire tries an idle connection first (reaping expired ones as it
// scans) and ping-validates it, opens a new connection if under
// MaxConns, or waits on the release condvar until AcquireTimeout or the
// ctx deadline elapses.
func (p *Pool) Acquire(ctx context.Context) (Conn, error) {
	deadline := time.Now().Add(p.cfg.AcquireTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	p.mu.Lock()
	for {
		select {
		case <-ctx.Done():
			p.mu.Unlock()
			return nil, ctx.Err()
		default:
		}

		if p.closed {
			p.mu.Unlock()
			return nil, ErrPoolClosed
		}

		for len(p.idle) > 0 {
			pc := p.idle[len(p.idle)-1]
			p.idle = p.idle[:len(p.idle)-1]

			if pc.expired(p.cfg.MaxLifetime) {
				_ = pc.conn.Close()
				p.total--
				continue
			}
			if err := pc.conn.Ping(); err != nil {
				_ = pc.conn.Close()
				p.total--
				continue
			}
			pc.lastUsedAt = time.Now()
			p.active[pc] = struct{}{}
			p.mu.Unlock()
			return pc.conn, nil
		}

		if p.total < p.cfg.MaxConns {
			p.total++
			p.mu.Unlock()

			c, err := p.dial(ctx)
			if err != nil {
				p.mu.Lock()
				p.total--
				p.mu.Unlock()
				return nil, err
			}
			now := time.Now()
			pc := &pooledConn{conn: c, createdAt: now, lastUsedAt: now}
			p.mu.Lock()
			p.active[pc] = struct{}{}
			p.mu.Unlock()
			return c, nil
		}

		p.mu.Unlock()
		p.mu.Lock()
		remaining := time.Until(deadline)
		if remaining <= 0 {
			p.mu.Unlock()
			return nil, ErrPoolExhausted
		}
		timer := time.AfterFunc(remaining, func() { p.cond.Broadcast() })
		p.cond.Wait()
		timer.Stop()

		if p.closed {
			p.mu.Unlock()
			return nil, ErrPoolClosed
		}
		if time.Now().After(deadline) {
			p.mu.Unlock()
			return nil, ErrPoolExhausted
		}
	}
}

// Release returns conn to the idle pool, or closes it outright if the
// pool has been closed in the meantime.
func (p *Pool) Release(conn Conn) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var found *pooledConn
	for pc := range p.active {
		if pc.conn == conn {
			found = pc
			break
		}
	}
	if found == nil {
		_ = conn.Close()
		return
	}
	delete(p.active, found)

	if p.closed {
		_ = conn.Close()
		p.total--
		return
	}

	found.lastUsedAt = time.Now()
	p.idle = append(p.idle, found)
	p.cond.Broadcast()
}

// Discard closes conn outright instead of returning it to idle — used
// when the caller knows the connection failed mid-use.
func (p *Pool) Discard(conn Conn) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for pc := range p.active {
		if pc.conn == conn {
			delete(p.active, pc)
			break
		}
	}
	_ = conn.Close()
	p.total--
	p.cond.Broadcast()
}

func (p *Pool) reapLoop() {
	ticker := time.NewTicker(p.cfg.ReapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.reapIdle()
		case <-p.stopCh:
			return
		}
	}
}

func (p *Pool) reapIdle() {
	p.mu.Lock()
	defer p.mu.Unlock()

	kept := p.idle[:0]
	for _, pc := range p.idle {
		if pc.expired(p.cfg.MaxLifetime) || pc.idleExpired(p.cfg.IdleTimeout) {
			_ = pc.conn.Close()
			p.total--
			continue
		}
		kept = append(kept, pc)
	}
	p.idle = kept
}

// Stats is the pool's exported gauge set.
type Stats struct {
	Active  int
	Idle    int
	Total   int
	Waiting int
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{Active: len(p.active), Idle: len(p.idle), Total: p.total}
}

// Close drains the pool: idle connections are closed immediately, active
// ones are closed as Release is called on them.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.stopCh)
	for _, pc := range p.idle {
		_ = pc.conn.Close()
		p.total--
	}
	p.idle = nil
	p.cond.Broadcast()
}

// ErrPoolClosed is returned by Acquire once Close has been called.
var ErrPoolClosed = liberr.ErrCodePoolExhausted.Error(nil)
