// Package balancer implements the selection algorithms: round-robin,
// least-connections, source-hash, uri-hash, weighted-random,
// least-response-time and consistent-hash. Every algorithm consumes a
// read-only snapshot of healthy backends from core/registry and never
// mutates backend state itself; the forwarder alone does Acquire/Release
// accounting.
package balancer

import (
	"math/rand"

	"github.com/Megallm/ultrabalancer-sub000/core/atomicx"
	"github.com/Megallm/ultrabalancer-sub000/core/hashing"
	"github.com/Megallm/ultrabalancer-sub000/core/registry"
	"github.com/Megallm/ultrabalancer-sub000/core/ring"
	liberr "github.com/Megallm/ultrabalancer-sub000/errors"
)

// ErrNoHealthyBackend is the sentinel the forwarder checks for on the
// hot path. No target is a plain control-flow signal, not a coded,
// logged error.
var ErrNoHealthyBackend = liberr.ErrCodeUnresolvedBackend.Error(nil)

// Key carries the request-scoped inputs an algorithm may need. Not every
// field applies to every algorithm: round-robin and least-connections
// ignore all of them, source-hash uses SourceAddr, uri-hash uses URI.
type Key struct {
	SourceAddr string
	URI        string
}

// Algorithm selects one backend out of a snapshot. Implementations must be
// safe for concurrent use by multiple forwarder workers.
type Algorithm interface {
	Name() string
	Pick(backends []*registry.Backend, key Key) (*registry.Backend, error)
}

// New constructs the named algorithm, returning ErrCodeInvalidAlgorithm
// for an unrecognised name.
func New(name string) (Algorithm, error) {
	switch name {
	case "round_robin", "round-robin", "":
		return &RoundRobin{}, nil
	case "least_connections", "least-connections", "least-conn":
		return &LeastConnections{}, nil
	case "source_hash", "source-hash", "ip-hash":
		return &SourceHash{}, nil
	case "uri_hash", "uri-hash":
		return &URIHash{}, nil
	case "weighted_random", "weighted-random", "weighted":
		return &WeightedRandom{}, nil
	case "least_response_time", "least-response-time", "response-time":
		return &LeastResponseTime{}, nil
	case "consistent_hash", "consistent-hash":
		return &ConsistentHash{ring: ring.New(ring.DefaultReplicas)}, nil
	default:
		return nil, liberr.ErrCodeInvalidAlgorithm.Error(nil)
	}
}

// RoundRobin cycles through the snapshot slot by slot. The cursor is a
// process-wide atomic counter so ordering is fair across workers even
// though the underlying snapshot changes shape as backends come and go.
type RoundRobin struct {
	cursor atomicx.Int64
}

func (r *RoundRobin) Name() string { return "round_robin" }

func (r *RoundRobin) Pick(backends []*registry.Backend, _ Key) (*registry.Backend, error) {
	if len(backends) == 0 {
		return nil, ErrNoHealthyBackend
	}
	idx := r.cursor.Add(1) - 1
	return backends[int(idx)%len(backends)], nil
}

// LeastConnections scans the snapshot for the backend with the lowest
// weighted load, active_conns * 256 / effective_weight, so a weight-4
// backend absorbs four times the connections of a weight-1 peer before
// the two compare equal. Ties broken by registration order.
type LeastConnections struct{}

func (l *LeastConnections) Name() string { return "least_connections" }

func (l *LeastConnections) Pick(backends []*registry.Backend, _ Key) (*registry.Backend, error) {
	if len(backends) == 0 {
		return nil, ErrNoHealthyBackend
	}
	best := backends[0]
	bestLoad := weightedLoad(best)
	for _, b := range backends[1:] {
		if load := weightedLoad(b); load < bestLoad {
			best, bestLoad = b, load
		}
	}
	return best, nil
}

func weightedLoad(b *registry.Backend) int64 {
	return b.ActiveConns() * 256 / int64(b.EffectiveWeight())
}

// SourceHash maps the client's source address onto the snapshot by a
// stable modulo-hash, giving the same client the same backend as long as
// the snapshot's membership is unchanged.
type SourceHash struct{}

func (s *SourceHash) Name() string { return "source_hash" }

func (s *SourceHash) Pick(backends []*registry.Backend, key Key) (*registry.Backend, error) {
	if len(backends) == 0 {
		return nil, ErrNoHealthyBackend
	}
	h := hashing.HashKey([]byte(key.SourceAddr))
	return backends[int(h%uint64(len(backends)))], nil
}

// URIHash is SourceHash's sibling keyed on the L7 request URI instead of
// the client address.
type URIHash struct{}

func (u *URIHash) Name() string { return "uri_hash" }

func (u *URIHash) Pick(backends []*registry.Backend, key Key) (*registry.Backend, error) {
	if len(backends) == 0 {
		return nil, ErrNoHealthyBackend
	}
	h := hashing.HashKey([]byte(key.URI))
	return backends[int(h%uint64(len(backends)))], nil
}

// WeightedRandom picks a backend with probability proportional to its
// effective weight, using the cumulative-sum technique.
type WeightedRandom struct{}

func (w *WeightedRandom) Name() string { return "weighted_random" }

func (w *WeightedRandom) Pick(backends []*registry.Backend, _ Key) (*registry.Backend, error) {
	if len(backends) == 0 {
		return nil, ErrNoHealthyBackend
	}
	total := 0
	for _, b := range backends {
		total += b.EffectiveWeight()
	}
	if total <= 0 {
		return backends[rand.Intn(len(backends))], nil
	}
	r := rand.Intn(total)
	acc := 0
	for _, b := range backends {
		acc += b.EffectiveWeight()
		if r < acc {
			return b, nil
		}
	}
	return backends[len(backends)-1], nil
}

// LeastResponseTime picks the backend minimising
// response_time_ns * (active_conns + 1), so a fast historical sample
// stops winning once the backend is saturated with in-flight work.
// Falls back to least-connections when every sample is still zero (a
// cold backend that has never served a request).
type LeastResponseTime struct{}

func (l *LeastResponseTime) Name() string { return "least_response_time" }

func (l *LeastResponseTime) Pick(backends []*registry.Backend, _ Key) (*registry.Backend, error) {
	if len(backends) == 0 {
		return nil, ErrNoHealthyBackend
	}
	var best *registry.Backend
	var bestScore int64 = -1
	for _, b := range backends {
		rt := b.ResponseTimeNS()
		if rt == 0 {
			continue
		}
		score := rt * (b.ActiveConns() + 1)
		if bestScore == -1 || score < bestScore {
			best, bestScore = b, score
		}
	}
	if best == nil {
		return (&LeastConnections{}).Pick(backends, Key{})
	}
	return best, nil
}

// ConsistentHash delegates to core/ring, rebuilding the ring whenever the
// snapshot's membership changes since the last Pick.
type ConsistentHash struct {
	ring *ring.Ring
}

func (c *ConsistentHash) Name() string { return "consistent_hash" }

func (c *ConsistentHash) Pick(backends []*registry.Backend, key Key) (*registry.Backend, error) {
	if len(backends) == 0 {
		return nil, ErrNoHealthyBackend
	}
	if c.ring.NeedsRebuild(backends) {
		c.ring.Rebuild(backends)
	}
	k := key.URI
	if k == "" {
		k = key.SourceAddr
	}
	b := c.ring.Lookup(k)
	if b == nil {
		return nil, ErrNoHealthyBackend
	}
	return b, nil
}
