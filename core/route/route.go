// Package route implements the L7 route table: priority-ordered rules
// matched by AND-conjunction over host/path/header predicates, each
// resolving to a weighted set of backend targets guarded by a circuit
// breaker.
package route

import (
	"math/rand"
	"strings"
	"sync"

	"github.com/Megallm/ultrabalancer-sub000/core/atomicx"
	"github.com/Megallm/ultrabalancer-sub000/core/registry"
	liberr "github.com/Megallm/ultrabalancer-sub000/errors"
)

// Matcher is one AND-conjoined predicate set for a Rule.
type Matcher struct {
	Host        string            // exact match, empty = any
	PathPrefix  string            // empty = any
	HeaderEqual map[string]string // all must match, empty = any
}

func (m Matcher) matches(host, path string, headers map[string]string) bool {
	if m.Host != "" && m.Host != host {
		return false
	}
	if m.PathPrefix != "" && !strings.HasPrefix(path, m.PathPrefix) {
		return false
	}
	for k, v := range m.HeaderEqual {
		if headers[k] != v {
			return false
		}
	}
	return true
}

// Target is one weighted backend a rule can resolve to.
type Target struct {
	BackendID uint32
	Weight    int
}

// Rule is one route-table row: a name, a priority (lower sorts first), a
// matcher and a weighted target set.
type Rule struct {
	Name     string
	Priority int
	Matcher  Matcher
	Targets  []Target
}

// CircuitState is the breaker's three-state machine.
type CircuitState int

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// Breaker is the circuit breaker of one route target: closed counts
// consecutive failures and trips to open once they reach Threshold; open
// waits Timeout then moves to half-open; half-open allows HalfOpenRequests
// trial requests and closes on the first success or re-opens on the first
// failure. Every method, Allow included, takes mu, so state transitions are
// serialised and only one caller flips the state.
type Breaker struct {
	Threshold        int64
	TimeoutNano      int64
	HalfOpenRequests int64

	mu            sync.Mutex
	state         CircuitState
	failures      atomicx.Int64
	openedAtNano  atomicx.Int64
	halfOpenUsed  atomicx.Int64
	clock         atomicx.Clock
}

func NewBreaker(threshold int, timeoutNano int64, halfOpenRequests int, clock atomicx.Clock) *Breaker {
	if clock == nil {
		clock = atomicx.SystemClock
	}
	if halfOpenRequests <= 0 {
		halfOpenRequests = 1
	}
	return &Breaker{
		Threshold:        int64(threshold),
		TimeoutNano:      timeoutNano,
		HalfOpenRequests: int64(halfOpenRequests),
		clock:            clock,
	}
}

// Allow reports whether a request may proceed, transitioning open->half-open
// once Timeout has elapsed (checked and flipped under mu, so concurrent
// callers cannot all flip the state at once).
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateHalfOpen:
		return b.halfOpenUsed.Add(1) <= b.HalfOpenRequests
	default: // open
		if b.clock.NowNano()-b.openedAtNano.Load() < b.TimeoutNano {
			return false
		}
		b.state = StateHalfOpen
		b.halfOpenUsed.Store(0)
		return b.halfOpenUsed.Add(1) <= b.HalfOpenRequests
	}
}

func (b *Breaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// RecordSuccess closes the breaker from half-open, or resets the failure
// counter when closed.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateHalfOpen {
		b.state = StateClosed
	}
	b.failures.Store(0)
}

// RecordFailure increments the consecutive-failure counter and trips the
// breaker when it crosses Threshold (from closed) or immediately (from
// half-open, per the standard half-open-fails-once-reopens rule).
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateHalfOpen {
		b.state = StateOpen
		b.openedAtNano.Store(b.clock.NowNano())
		return
	}
	if b.failures.Add(1) >= b.Threshold {
		b.state = StateOpen
		b.openedAtNano.Store(b.clock.NowNano())
	}
}

// Table is the priority-ordered, RWMutex-guarded route table. Reload
// (config hot-swap) replaces the rules slice wholesale under the write
// lock instead of mutating it in place.
type Table struct {
	mu       sync.RWMutex
	rules    []*Rule
	breakers map[string]*Breaker // keyed by target "rule/backendID"
}

func NewTable() *Table {
	return &Table{breakers: make(map[string]*Breaker)}
}

// Add inserts a rule, keeping rules sorted by ascending priority.
func (t *Table) Add(r *Rule) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rules = append(t.rules, r)
	sortRulesLocked(t.rules)
}

func sortRulesLocked(rules []*Rule) {
	for i := 1; i < len(rules); i++ {
		for j := i; j > 0 && rules[j].Priority < rules[j-1].Priority; j-- {
			rules[j], rules[j-1] = rules[j-1], rules[j]
		}
	}
}

// Remove deletes the rule whose name matches exactly. No prefix or glob
// matching, so an operator never removes more than one rule at a time.
func (t *Table) Remove(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, r := range t.rules {
		if r.Name == name {
			t.rules = append(t.rules[:i], t.rules[i+1:]...)
			return true
		}
	}
	return false
}

// Reload replaces the entire rule set wholesale.
func (t *Table) Reload(rules []*Rule) {
	t.mu.Lock()
	defer t.mu.Unlock()
	sortRulesLocked(rules)
	t.rules = rules
}

// ErrNoMatch is returned when no rule's matcher accepts the request.
var ErrNoMatch = liberr.ErrCodeUnresolvedBackend.Error(nil)

// Match finds the first (lowest-priority-number) rule matching host/path/
// headers, in priority order.
func (t *Table) Match(host, path string, headers map[string]string) (*Rule, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, r := range t.rules {
		if r.Matcher.matches(host, path, headers) {
			return r, nil
		}
	}
	return nil, ErrNoMatch
}

// BreakerFor returns (creating if absent) the circuit breaker guarding one
// rule's target backend.
func (t *Table) BreakerFor(ruleName string, backendID uint32, threshold int, timeoutNano int64, halfOpenRequests int) *Breaker {
	key := breakerKey(ruleName, backendID)

	t.mu.RLock()
	b, ok := t.breakers[key]
	t.mu.RUnlock()
	if ok {
		return b
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if b, ok = t.breakers[key]; ok {
		return b
	}
	b = NewBreaker(threshold, timeoutNano, halfOpenRequests, atomicx.SystemClock)
	t.breakers[key] = b
	return b
}

func breakerKey(ruleName string, backendID uint32) string {
	var sb strings.Builder
	sb.WriteString(ruleName)
	sb.WriteByte('/')
	sb.WriteString(itoa(backendID))
	return sb.String()
}

func itoa(id uint32) string {
	if id == 0 {
		return "0"
	}
	var buf [10]byte
	i := len(buf)
	for id > 0 {
		i--
		buf[i] = byte('0' + id%10)
		id /= 10
	}
	return string(buf[i:])
}

// PickTarget chooses a weighted target from the rule whose breaker is
// currently closed or half-open-and-allowed, skipping open-circuit targets.
func (t *Table) PickTarget(r *Rule, threshold int, timeoutNano int64, halfOpenRequests int) (*Target, *Breaker, error) {
	total := 0
	type cand struct {
		tgt Target
		brk *Breaker
	}
	cands := make([]cand, 0, len(r.Targets))
	for _, tg := range r.Targets {
		b := t.BreakerFor(r.Name, tg.BackendID, threshold, timeoutNano, halfOpenRequests)
		if !b.Allow() {
			continue
		}
		w := tg.Weight
		if w <= 0 {
			w = 1
		}
		total += w
		cands = append(cands, cand{tgt: tg, brk: b})
	}
	if len(cands) == 0 {
		return nil, nil, registry.ErrUnresolvedBackend()
	}
	if total <= 0 {
		c := cands[rand.Intn(len(cands))]
		return &c.tgt, c.brk, nil
	}
	r2 := rand.Intn(total)
	acc := 0
	for _, c := range cands {
		w := c.tgt.Weight
		if w <= 0 {
			w = 1
		}
		acc += w
		if r2 < acc {
			return &c.tgt, c.brk, nil
		}
	}
	last := cands[len(cands)-1]
	return &last.tgt, last.brk, nil
}

// RuleStat is one rule's exported summary for the stats package.
type RuleStat struct {
	Name         string
	TotalTargets int
	OpenBreakers int
}

// Snapshot reports every rule's target count and how many of its
// per-target breakers are currently open, for the stats exporter.
func (t *Table) Snapshot() []RuleStat {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]RuleStat, 0, len(t.rules))
	for _, r := range t.rules {
		open := 0
		for _, tg := range r.Targets {
			if b, ok := t.breakers[breakerKey(r.Name, tg.BackendID)]; ok && b.State() == StateOpen {
				open++
			}
		}
		out = append(out, RuleStat{Name: r.Name, TotalTargets: len(r.Targets), OpenBreakers: open})
	}
	return out
}
