// Package session implements the per-client session stickiness table:
// once a session issues a transaction-start command it is pinned to its
// current backend until the matching commit or rollback, so a
// load-balancer reshuffle never splits a transaction across two
// connections.
package session

import (
	"sync"
	"time"

	"github.com/Megallm/ultrabalancer-sub000/dbproxy/classify"
	liberr "github.com/Megallm/ultrabalancer-sub000/errors"
)

// ErrAllSessionsTransactional is returned when the table is full and every
// session is mid-transaction, so none can be evicted without corrupting a
// client's in-flight work. It carries its own code, distinct from the
// no-backend error; the DB proxy logs it and closes the client connection,
// as it does for every routing failure.
var ErrAllSessionsTransactional = liberr.ErrCodeSessionTableFull.Error(nil)

// State is one session's pinning record.
type State struct {
	BackendID     uint32
	Transactional bool
	lastSeen      time.Time
}

// Table is a bounded, mutex-guarded map from session key (typically the
// client connection's remote address, or a protocol-level session id for
// pooled DB connections) to its pinned backend.
type Table struct {
	mu       sync.Mutex
	sessions map[string]*State
	capacity int
}

func New(capacity int) *Table {
	if capacity <= 0 {
		capacity = 4096
	}
	return &Table{sessions: make(map[string]*State, capacity), capacity: capacity}
}

// Pin binds key to backendID. If the table is at capacity it evicts the
// oldest non-transactional session first; if every session is
// transactional it returns ErrAllSessionsTransactional rather than evicting
// a session mid-transaction.
func (t *Table) Pin(key string, backendID uint32) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if s, ok := t.sessions[key]; ok {
		s.BackendID = backendID
		s.lastSeen = time.Now()
		return nil
	}

	if len(t.sessions) >= t.capacity {
		if !t.evictOldestNonTransactionalLocked() {
			return ErrAllSessionsTransactional
		}
	}

	t.sessions[key] = &State{BackendID: backendID, lastSeen: time.Now()}
	return nil
}

func (t *Table) evictOldestNonTransactionalLocked() bool {
	var oldestKey string
	var oldestTime time.Time
	found := false
	for k, s := range t.sessions {
		if s.Transactional {
			continue
		}
		if !found || s.lastSeen.Before(oldestTime) {
			oldestKey, oldestTime, found = k, s.lastSeen, true
		}
	}
	if !found {
		return false
	}
	delete(t.sessions, oldestKey)
	return true
}

// Lookup returns the pinned backend for key, if any.
func (t *Table) Lookup(key string) (uint32, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[key]
	if !ok {
		return 0, false
	}
	s.lastSeen = time.Now()
	return s.BackendID, true
}

// Observe updates a session's transactional flag based on the classified
// command just issued on it: a TransactionBegin sets it, a
// TransactionEnd clears it.
func (t *Table) Observe(key string, cmd classify.Command) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[key]
	if !ok {
		return
	}
	switch {
	case classify.IsTransactional(cmd):
		s.Transactional = true
	case cmd == classify.CommandTransactionEnd:
		s.Transactional = false
	}
}

// Release removes a session's pin entirely, e.g. on client disconnect.
func (t *Table) Release(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sessions, key)
}

// Len returns the number of currently pinned sessions.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}
