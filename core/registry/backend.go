// Package registry implements the backend registry: backend records
// live in a fixed-capacity slice owned by the load balancer instance,
// and pointers into that slice are stable for the backend's lifetime.
// Fields mutated from the forwarder's hot path (active conns, response
// time, failed conns) are lock-free atomics so the selection engine can
// read a consistent snapshot without taking a lock.
package registry

import (
	"net"
	"strconv"
	"time"

	"github.com/Megallm/ultrabalancer-sub000/core/atomicx"
	liberr "github.com/Megallm/ultrabalancer-sub000/errors"
)

// Role classifies a backend for selection and DB routing.
type Role int

const (
	RolePrimary Role = iota
	RoleReplica
	RoleDown
	RoleBackup
	RoleGeneric
)

func (r Role) String() string {
	switch r {
	case RolePrimary:
		return "primary"
	case RoleReplica:
		return "replica"
	case RoleDown:
		return "down"
	case RoleBackup:
		return "backup"
	default:
		return "generic"
	}
}

// Protocol tags a backend for the DB-aware router; Unset means a plain L4/L7
// backend with no protocol sniffing involved.
type Protocol int

const (
	ProtocolUnset Protocol = iota
	ProtocolPostgres
	ProtocolMySQL
	ProtocolRedis
)

// Backend is one target server record. Identity and policy fields are
// set once at creation; liveness/load fields are atomic.
type Backend struct {
	// Identity & policy — written once under the registry's construction
	// lock, read freely afterwards without synchronisation.
	ID       uint32
	Host     string
	Port     int
	Weight   int
	Role     Role
	Protocol Protocol

	// Liveness, mutated by the health checker only.
	healthy            atomicx.Bool
	consecutiveSuccess atomicx.Int64
	consecutiveFailure atomicx.Int64
	lastCheckNano      atomicx.Int64
	lastChangeNano     atomicx.Int64

	// Load, mutated by the forwarder / DB pool.
	activeConns    atomicx.Int64
	totalConns     atomicx.Int64
	failedConns    atomicx.Int64
	responseTimeNS atomicx.Int64

	// ReplicationLagMS is updated by the PostgreSQL richer health probe
	// and consulted by the DB read-routing step.
	replicationLagMS atomicx.Int64

	MaxConns int
}

func (b *Backend) Addr() string {
	return net.JoinHostPort(b.Host, strconv.Itoa(b.Port))
}

// IsHealthy reads the lock-free healthy bit.
func (b *Backend) IsHealthy() bool { return b.healthy.Load() }

// SetHealthy is called only by the health checker.
func (b *Backend) SetHealthy(v bool, now time.Time) {
	if b.healthy.Load() != v {
		b.lastChangeNano.Store(now.UnixNano())
	}
	b.healthy.Set(v)
}

func (b *Backend) LastChange() time.Time {
	return time.Unix(0, b.lastChangeNano.Load())
}

func (b *Backend) RecordCheck(ok bool, now time.Time) {
	b.lastCheckNano.Store(now.UnixNano())
	if ok {
		b.consecutiveSuccess.Add(1)
		b.consecutiveFailure.Store(0)
	} else {
		b.consecutiveFailure.Add(1)
		b.consecutiveSuccess.Store(0)
	}
}

func (b *Backend) ConsecutiveSuccess() int64 { return b.consecutiveSuccess.Load() }
func (b *Backend) ConsecutiveFailure() int64 { return b.consecutiveFailure.Load() }
func (b *Backend) LastCheck() time.Time      { return time.Unix(0, b.lastCheckNano.Load()) }

func (b *Backend) ActiveConns() int64 { return b.activeConns.Load() }
func (b *Backend) TotalConns() int64  { return b.totalConns.Load() }
func (b *Backend) FailedConns() int64 { return b.failedConns.Load() }
func (b *Backend) ResponseTimeNS() int64 {
	return b.responseTimeNS.Load()
}
func (b *Backend) ReplicationLagMS() int64 { return b.replicationLagMS.Load() }
func (b *Backend) SetReplicationLagMS(ms int64) {
	b.replicationLagMS.Store(ms)
}

// EffectiveWeight never returns 0 so weighted formulas never divide by zero.
func (b *Backend) EffectiveWeight() int {
	if b.Weight <= 0 {
		return 1
	}
	return b.Weight
}

// Acquire increments active/total conns. It must be paired with exactly
// one Release per connection.
func (b *Backend) Acquire() {
	b.activeConns.Add(1)
	b.totalConns.Add(1)
}

// Release decrements active conns and records a single response-time
// sample; a connection contributes exactly one sample, on close.
func (b *Backend) Release(responseTime time.Duration, failed bool) {
	b.activeConns.Add(-1)
	if failed {
		b.failedConns.Add(1)
	}
	b.responseTimeNS.Store(responseTime.Nanoseconds())
}

// AtCapacity reports whether active_conns has reached MaxConns (0 = unbounded).
func (b *Backend) AtCapacity() bool {
	if b.MaxConns <= 0 {
		return false
	}
	return b.activeConns.Load() >= int64(b.MaxConns)
}

// Registry owns the fixed-capacity backend arena. Pointers returned by Add
// are stable for the backend's lifetime (never reallocated, never freed
// while referenced by a live connection — callers are responsible for
// quiescing connections before Remove).
type Registry struct {
	lock  atomicx.TicketLock
	nextID uint32
	byID  map[uint32]*Backend
	order []*Backend // stable iteration order, append-only except Remove compaction
}

func New(capacity int) *Registry {
	return &Registry{
		byID:  make(map[uint32]*Backend, capacity),
		order: make([]*Backend, 0, capacity),
	}
}

// Add registers a new backend and returns its stable id.
func (r *Registry) Add(host string, port int, weight int, role Role, proto Protocol) *Backend {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.nextID++
	b := &Backend{
		ID:       r.nextID,
		Host:     host,
		Port:     port,
		Weight:   weight,
		Role:     role,
		Protocol: proto,
	}
	b.healthy.Set(false)
	r.byID[b.ID] = b
	r.order = append(r.order, b)
	return b
}

// Find returns the backend for id, or nil.
func (r *Registry) Find(id uint32) *Backend {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.byID[id]
}

// FindByAddr is used by config reload to match an existing backend before
// creating a duplicate.
func (r *Registry) FindByAddr(host string, port int) *Backend {
	r.lock.Lock()
	defer r.lock.Unlock()
	for _, b := range r.order {
		if b.Host == host && b.Port == port {
			return b
		}
	}
	return nil
}

// Remove deletes a backend from the registry. Callers must ensure no live
// connection still references it.
func (r *Registry) Remove(id uint32) {
	r.lock.Lock()
	defer r.lock.Unlock()
	delete(r.byID, id)
	for i, b := range r.order {
		if b.ID == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Snapshot returns a stable-order slice of all backends for a given role
// filter (anyRole true ignores role and returns every backend). The slice is a fresh copy of the
// pointer list so selection algorithms can range over it without holding
// the registry lock.
func (r *Registry) Snapshot(role Role, anyRole bool) []*Backend {
	r.lock.Lock()
	defer r.lock.Unlock()

	out := make([]*Backend, 0, len(r.order))
	for _, b := range r.order {
		if anyRole || b.Role == role {
			out = append(out, b)
		}
	}
	return out
}

// IterHealthy returns only the backends currently marked healthy, for the
// given role filter.
func (r *Registry) IterHealthy(role Role, anyRole bool) []*Backend {
	all := r.Snapshot(role, anyRole)
	out := all[:0:0]
	for _, b := range all {
		if b.IsHealthy() {
			out = append(out, b)
		}
	}
	return out
}

// All returns every registered backend regardless of role or health.
func (r *Registry) All() []*Backend {
	return r.Snapshot(RoleGeneric, true)
}

// Len returns the number of registered backends.
func (r *Registry) Len() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return len(r.order)
}

// ErrUnresolvedBackend is returned when a route target or preferred-backend
// id does not resolve to a live registry entry. The name is not threaded
// through the coded error itself; callers log it alongside the error.
func ErrUnresolvedBackend() liberr.Error {
	return liberr.ErrCodeUnresolvedBackend.Error(nil)
}
