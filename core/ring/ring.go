// Package ring implements the consistent-hash virtual-node ring the
// consistent-hash selection algorithm sits on top of: per-backend
// virtual nodes (replicas * weight) hashed with ketama MD5, sorted,
// looked up with sort.Search and wrap-around.
package ring

import (
	"sort"
	"sync"

	"github.com/Megallm/ultrabalancer-sub000/core/hashing"
	"github.com/Megallm/ultrabalancer-sub000/core/registry"
)

// DefaultReplicas is the per-weight-unit vnode count.
const DefaultReplicas = 150

type entry struct {
	hash    uint32
	backend *registry.Backend
}

// Ring is an RWMutex-guarded sorted vnode table, rebuilt wholesale on
// membership change. Full rebuild keeps the lookup table simple and
// branch-predictable.
type Ring struct {
	mu       sync.RWMutex
	replicas int
	entries  []entry
	memberOf map[uint32]struct{} // backend ids present in the last Rebuild, for change detection
}

func New(replicas int) *Ring {
	if replicas <= 0 {
		replicas = DefaultReplicas
	}
	return &Ring{replicas: replicas, memberOf: make(map[uint32]struct{})}
}

// Rebuild replaces the ring wholesale from the given backend set.
// ConsistentHash.Pick calls it only when NeedsRebuild reports that the
// snapshot's membership has changed.
func (r *Ring) Rebuild(backends []*registry.Backend) {
	entries := make([]entry, 0, len(backends)*r.replicas)
	members := make(map[uint32]struct{}, len(backends))
	for _, b := range backends {
		members[b.ID] = struct{}{}
		vnodes := r.replicas * b.EffectiveWeight()
		for i := 0; i < vnodes; i++ {
			h := hashing.KetamaHash(b.Addr(), i)
			entries = append(entries, entry{hash: h, backend: b})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].hash < entries[j].hash })

	r.mu.Lock()
	r.entries = entries
	r.memberOf = members
	r.mu.Unlock()
}

// NeedsRebuild reports whether the given backend set's membership differs
// from the ring's last Rebuild, letting ConsistentHash.Pick skip the O(n
// log n) rebuild on the common case of an unchanged healthy set.
func (r *Ring) NeedsRebuild(backends []*registry.Backend) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(backends) != len(r.memberOf) {
		return true
	}
	for _, b := range backends {
		if _, ok := r.memberOf[b.ID]; !ok {
			return true
		}
	}
	return false
}

// Lookup finds the first vnode whose hash is >= the key's hash, wrapping to
// the first entry when the key hashes past the last vnode.
func (r *Ring) Lookup(key string) *registry.Backend {
	h := hashing.KetamaHashKey(key)

	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.entries) == 0 {
		return nil
	}
	idx := sort.Search(len(r.entries), func(i int) bool {
		return r.entries[i].hash >= h
	})
	if idx >= len(r.entries) {
		idx = 0
	}
	return r.entries[idx].backend
}

// Empty reports whether the ring currently has zero vnodes.
func (r *Ring) Empty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries) == 0
}
