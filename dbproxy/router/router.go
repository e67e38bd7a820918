// Package router ties the DB-mode pieces together: classify the query,
// consult the per-session stickiness table, choose a backend (primary
// for writes and transactions, the least-loaded fresh replica for
// reads), and acquire a pooled connection to it. One Router serves one
// DB-mode frontend.
package router

import (
	"context"
	"time"

	libcch "github.com/Megallm/ultrabalancer-sub000/cache"
	"github.com/Megallm/ultrabalancer-sub000/core/registry"
	"github.com/Megallm/ultrabalancer-sub000/dbproxy/classify"
	"github.com/Megallm/ultrabalancer-sub000/dbproxy/pool"
	"github.com/Megallm/ultrabalancer-sub000/dbproxy/session"
	liberr "github.com/Megallm/ultrabalancer-sub000/errors"
)

// ErrNoBackend is returned when no healthy backend matches the query's
// routing class.
var ErrNoBackend = liberr.ErrCodeUnresolvedBackend.Error(nil)

// Config bounds the router's session table and read routing.
type Config struct {
	MaxSessions    int
	LagThresholdMS int64
}

// PoolProvider returns (creating on first use) the connection pool bound
// to one backend. The router never dials itself.
type PoolProvider func(b *registry.Backend) *pool.Pool

// Router routes classified queries for one DB protocol.
type Router struct {
	cfg      Config
	reg      *registry.Registry
	sessions *session.Table
	pools    PoolProvider

	// classified caches query-text -> command so a hot statement (the
	// same prepared SELECT issued thousands of times a second) skips the
	// keyword scan.
	classified libcch.Cache[string, classify.Command]
}

func New(cfg Config, reg *registry.Registry, pools PoolProvider) *Router {
	if cfg.LagThresholdMS <= 0 {
		cfg.LagThresholdMS = 500
	}
	return &Router{
		cfg:        cfg,
		reg:        reg,
		sessions:   session.New(cfg.MaxSessions),
		pools:      pools,
		classified: libcch.New[string, classify.Command](context.Background(), 5*time.Minute),
	}
}

func (r *Router) classify(query string) classify.Command {
	if cmd, _, ok := r.classified.Load(query); ok {
		return cmd
	}
	cmd := classify.Classify(query)
	r.classified.Store(query, cmd)
	return cmd
}

// Sessions exposes the stickiness table for stats and tests.
func (r *Router) Sessions() *session.Table { return r.sessions }

// Route classifies query text for sessionKey and returns a pooled
// connection to the chosen backend. The returned backend is pinned to
// the session while a transaction is open or after a session-variable
// statement, so every later query on the session lands on the same
// server.
func (r *Router) Route(ctx context.Context, sessionKey, query string) (pool.Conn, *registry.Backend, error) {
	cmd := r.classify(query)

	var chosen *registry.Backend
	if id, ok := r.sessions.Lookup(sessionKey); ok && id > 0 {
		if b := r.reg.Find(id); b != nil && b.IsHealthy() {
			chosen = b
		} else if r.sessionPinned(sessionKey) {
			// a pinned session whose backend died cannot be silently
			// rerouted mid-transaction
			return nil, nil, ErrNoBackend
		}
	}

	if chosen == nil {
		var err error
		chosen, err = r.pick(cmd)
		if err != nil {
			return nil, nil, err
		}
	}

	requiresSticky := cmd == classify.CommandTransactionBegin || cmd == classify.CommandSessionVar
	if requiresSticky || r.sessionPinned(sessionKey) {
		if err := r.sessions.Pin(sessionKey, chosen.ID); err != nil {
			return nil, nil, err
		}
	}
	r.sessions.Observe(sessionKey, cmd)
	if cmd == classify.CommandTransactionEnd {
		r.sessions.Release(sessionKey)
	}

	p := r.pools(chosen)
	conn, err := p.Acquire(ctx)
	if err != nil {
		return nil, nil, err
	}
	return conn, chosen, nil
}

func (r *Router) sessionPinned(sessionKey string) bool {
	_, ok := r.sessions.Lookup(sessionKey)
	return ok
}

// pick selects the backend class for a query: reads go to the healthy
// replica with the fewest active connections whose replication lag is
// under threshold, falling back to the primary; everything else goes to
// the primary.
func (r *Router) pick(cmd classify.Command) (*registry.Backend, error) {
	if cmd == classify.CommandRead {
		if b := r.bestReplica(); b != nil {
			return b, nil
		}
	}
	return r.primary()
}

func (r *Router) bestReplica() *registry.Backend {
	var best *registry.Backend
	for _, b := range r.reg.IterHealthy(registry.RoleReplica, false) {
		if b.ReplicationLagMS() >= r.cfg.LagThresholdMS {
			continue
		}
		if best == nil ||
			b.ActiveConns() < best.ActiveConns() ||
			(b.ActiveConns() == best.ActiveConns() && b.ReplicationLagMS() < best.ReplicationLagMS()) {
			best = b
		}
	}
	return best
}

func (r *Router) primary() (*registry.Backend, error) {
	for _, b := range r.reg.IterHealthy(registry.RolePrimary, false) {
		return b, nil
	}
	return nil, ErrNoBackend
}

// ReleaseSession drops a client's pin on disconnect.
func (r *Router) ReleaseSession(sessionKey string) {
	r.sessions.Release(sessionKey)
}
