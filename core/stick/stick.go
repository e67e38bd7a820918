// Package stick implements the sticky table: client-key -> backend-id
// persistence with bounded capacity, LRU eviction of unreferenced
// entries and decaying per-entry rate counters.
//
// The hot path (Get/GetOrCreate) never takes anything heavier than a per-bucket
// TicketLock (core/atomicx), so a forwarder worker never blocks behind a
// slow peer. A read-only adapter exposes entries through the generic
// key/value table shape (database/kvtable) so the stats package can Walk
// the table without the forwarder's hot path paying the
// driver-indirection cost on every lookup.
package stick

import (
	"time"

	"github.com/Megallm/ultrabalancer-sub000/core/atomicx"
)

// Entry is one sticky-table record. Its index within its bucket's entries
// slice can change when another entry is evicted or expired (the last entry
// is moved into the freed slot); backend identity is a plain uint32 id so the
// table never holds a pointer the registry could have freed.
type Entry struct {
	Key        string
	BackendID  uint32
	createdAt  int64
	lastSeen   atomicx.Int64
	refs       atomicx.Int64
	rate       atomicx.Int64 // decaying hit counter, halved once per decay window
	rateWindow atomicx.Int64 // nanosecond timestamp of the last decay

	counters Counters
}

func (e *Entry) LastSeen() time.Time { return time.Unix(0, e.lastSeen.Load()) }
func (e *Entry) Refs() int64         { return e.refs.Load() }

// bucket is one shard of the table: its own index map, entry slice and LRU
// order, so contention on one key's shard never blocks another shard's
// readers. Removed entries are swap-deleted from the slice.
type bucket struct {
	lock    atomicx.TicketLock
	byKey   map[string]int
	entries []*Entry
	lru     []string // front = least-recently-used, updated on every access
}

// Table is a fixed-capacity, shard-striped sticky table. Capacity is
// enforced per-bucket (capacity/numBuckets, rounded up) rather than
// globally, trading a little memory slack for lock-free bucket
// independence.
type Table struct {
	clock       atomicx.Clock
	buckets     []*bucket
	bucketCap   int
	decayWindow time.Duration
}

const numBuckets = 64

// Option configures a Table at construction.
type Option func(*Table)

// WithClock injects a deterministic clock for tests.
func WithClock(c atomicx.Clock) Option {
	return func(t *Table) { t.clock = c }
}

// WithDecayWindow overrides the default 30s rate-halving window.
func WithDecayWindow(d time.Duration) Option {
	return func(t *Table) { t.decayWindow = d }
}

// New builds a Table with the given total capacity spread across shards.
func New(capacity int, opts ...Option) *Table {
	if capacity <= 0 {
		capacity = 1024
	}
	perBucket := (capacity + numBuckets - 1) / numBuckets
	t := &Table{
		clock:       atomicx.SystemClock,
		buckets:     make([]*bucket, numBuckets),
		bucketCap:   perBucket,
		decayWindow: 30 * time.Second,
	}
	for i := range t.buckets {
		t.buckets[i] = &bucket{byKey: make(map[string]int, perBucket)}
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

func (t *Table) bucketFor(key string) *bucket {
	h := fnv32(key)
	return t.buckets[h%uint32(len(t.buckets))]
}

func fnv32(s string) uint32 {
	const offset32 = 2166136261
	const prime32 = 16777619
	h := uint32(offset32)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= prime32
	}
	return h
}

// Get returns the entry for key if present, bumping its LRU position and
// last-seen timestamp. Returns nil, false on a miss.
func (t *Table) Get(key string) (*Entry, bool) {
	b := t.bucketFor(key)
	b.lock.Lock()
	defer b.lock.Unlock()

	idx, ok := b.byKey[key]
	if !ok {
		return nil, false
	}
	e := b.entries[idx]
	now := t.clock.NowNano()
	e.lastSeen.Store(now)
	t.bumpRate(e, now)
	b.touchLRU(key)
	return e, true
}

// GetOrCreate returns the existing entry for key, or creates one bound to
// backendID, evicting the least-recently-used unreferenced entry first if
// the owning bucket is at capacity.
func (t *Table) GetOrCreate(key string, backendID uint32) (*Entry, error) {
	b := t.bucketFor(key)
	b.lock.Lock()
	defer b.lock.Unlock()

	if idx, ok := b.byKey[key]; ok {
		e := b.entries[idx]
		now := t.clock.NowNano()
		e.lastSeen.Store(now)
		t.bumpRate(e, now)
		b.touchLRU(key)
		return e, nil
	}

	if len(b.byKey) >= t.bucketCap {
		if !b.evictOneLocked() {
			return nil, ErrTableFull
		}
	}

	now := t.clock.NowNano()
	e := &Entry{Key: key, BackendID: backendID, createdAt: now}
	e.lastSeen.Store(now)
	e.refs.Store(1)
	e.rateWindow.Store(now)
	idx := len(b.entries)
	b.entries = append(b.entries, e)
	b.byKey[key] = idx
	b.lru = append(b.lru, key)
	return e, nil
}

// bumpRate halves the rate counter once per decay window, then
// increments it: a cheap decaying-average approximation.
func (t *Table) bumpRate(e *Entry, now int64) {
	last := e.rateWindow.Load()
	if time.Duration(now-last) >= t.decayWindow {
		e.rate.Store(e.rate.Load() / 2)
		e.rateWindow.Store(now)
	}
	e.rate.Add(1)
}

// touchLRU moves key to the back (most-recently-used end) of the bucket's
// LRU list. Linear scan is fine: bucketCap is small (total capacity /64).
func (b *bucket) touchLRU(key string) {
	for i, k := range b.lru {
		if k == key {
			b.lru = append(b.lru[:i], b.lru[i+1:]...)
			break
		}
	}
	b.lru = append(b.lru, key)
}

// evictOneLocked removes the least-recently-used entry with zero refs.
// Caller must hold b.lock. Returns false if every entry is still referenced.
func (b *bucket) evictOneLocked() bool {
	for i, key := range b.lru {
		idx, ok := b.byKey[key]
		if !ok {
			continue
		}
		if b.entries[idx].refs.Load() > 0 {
			continue
		}
		b.lru = append(b.lru[:i], b.lru[i+1:]...)
		delete(b.byKey, key)
		last := len(b.entries) - 1
		b.entries[idx] = b.entries[last]
		b.entries = b.entries[:last]
		if idx != last {
			b.byKey[b.entries[idx].Key] = idx
		}
		return true
	}
	return false
}

// Release drops the reference that GetOrCreate takes when it creates the
// entry (Get and GetOrCreate on an existing key take none), so the entry
// becomes eligible for eviction once refs reaches zero.
func (t *Table) Release(key string) {
	b := t.bucketFor(key)
	b.lock.Lock()
	defer b.lock.Unlock()
	if idx, ok := b.byKey[key]; ok {
		b.entries[idx].refs.Add(-1)
	}
}

// Expire removes every entry whose last-seen time is older than ttl and
// whose refs have reached zero; called periodically off the hot path.
func (t *Table) Expire(ttl time.Duration) int {
	now := t.clock.NowNano()
	removed := 0
	for _, b := range t.buckets {
		b.lock.Lock()
		for i := 0; i < len(b.lru); {
			key := b.lru[i]
			idx, ok := b.byKey[key]
			if !ok {
				i++
				continue
			}
			e := b.entries[idx]
			if e.refs.Load() > 0 || time.Duration(now-e.lastSeen.Load()) < ttl {
				i++
				continue
			}
			b.lru = append(b.lru[:i], b.lru[i+1:]...)
			delete(b.byKey, key)
			last := len(b.entries) - 1
			b.entries[idx] = b.entries[last]
			b.entries = b.entries[:last]
			if idx != last {
				b.byKey[b.entries[idx].Key] = idx
			}
			removed++
		}
		b.lock.Unlock()
	}
	return removed
}

// Len returns the total number of live entries across all buckets.
func (t *Table) Len() int {
	n := 0
	for _, b := range t.buckets {
		b.lock.Lock()
		n += len(b.byKey)
		b.lock.Unlock()
	}
	return n
}

// Walk calls fn for a snapshot of every live entry, used by the stats
// exporter and the kvtable adapter below. fn returning false stops the walk.
func (t *Table) Walk(fn func(key string, backendID uint32, refs, rate int64) bool) {
	for _, b := range t.buckets {
		b.lock.Lock()
		snap := make([]*Entry, len(b.entries))
		copy(snap, b.entries)
		b.lock.Unlock()
		for _, e := range snap {
			if !fn(e.Key, e.BackendID, e.refs.Load(), e.rate.Load()) {
				return
			}
		}
	}
}
