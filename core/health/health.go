// Package health implements the scheduled backend prober: a single
// scheduler goroutine dispatches wire-level probes across a bounded
// worker set, each backend accumulates consecutive-success/failure
// counts, and rise/fall thresholds gate the healthy bit with hysteresis
// so a single flaky probe never flaps a backend in or out of rotation.
// The probe wire formats live in probes.go.
package health

import (
	"sync"
	"time"

	libtls "github.com/Megallm/ultrabalancer-sub000/certificates"
	"github.com/Megallm/ultrabalancer-sub000/core/registry"
)

// ProbeKind selects the wire-level check a backend expects.
type ProbeKind int

const (
	ProbeTCP ProbeKind = iota
	ProbeHTTP
	ProbeHTTPS
	ProbeMySQL
	ProbePostgres
	ProbeRedis
)

// Config controls scheduling cadence and hysteresis. Interval applies to
// a backend in steady state; FastInterval takes over right after a
// health transition (so the next confirmation arrives quickly) and
// DownInterval while the backend is down (so a dead host is not hammered
// at the steady-state rate).
type Config struct {
	Interval      time.Duration
	FastInterval  time.Duration
	DownInterval  time.Duration
	Timeout       time.Duration
	RiseThreshold int
	FallThreshold int
	MaxConcurrent int
	Kind          ProbeKind
	HTTPPath      string // URI for Probe{HTTP,HTTPS}
	ExpectStatus  []int  // empty means accept [200,400)
	TLSSkipVerify bool

	// TLS, when set, supplies the client TLS settings (root CAs, client
	// pair, version bounds, ciphers) for the HTTPS probe; nil means a
	// default config gated only by TLSSkipVerify.
	TLS *libtls.Config
}

func DefaultConfig() Config {
	return Config{
		Interval:      2 * time.Second,
		FastInterval:  500 * time.Millisecond,
		DownInterval:  5 * time.Second,
		Timeout:       1 * time.Second,
		RiseThreshold: 2,
		FallThreshold: 3,
		MaxConcurrent: 10,
		Kind:          ProbeTCP,
		HTTPPath:      "/",
	}
}

// LagProber measures a replica's replication lag in milliseconds; wired
// by the CLI against the real database driver so this package never
// links one.
type LagProber func(b *registry.Backend) (int64, error)

// backendTarget is the per-backend scheduling record: when its next probe
// is due and whether the last pass transitioned it (which arms the fast
// interval for the next one).
type backendTarget struct {
	backend     *registry.Backend
	nextDue     time.Time
	justFlipped bool
}

// Checker runs Config's probe against every backend in a registry, each
// on its own inter/fastinter/downinter cadence.
type Checker struct {
	cfg       Config
	reg       *registry.Registry
	stopCh    chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
	onChange  func(b *registry.Backend, healthy bool)
	lagProber LagProber

	mu      sync.Mutex
	targets map[uint32]*backendTarget
}

// New builds a Checker; onChange (optional) is invoked whenever a
// backend's health bit flips, letting callers (the CLI logs the flip and
// publishes it to the cluster) react without polling the registry
// themselves.
func New(cfg Config, reg *registry.Registry, onChange func(b *registry.Backend, healthy bool)) *Checker {
	if cfg.Interval <= 0 {
		cfg = DefaultConfig()
	}
	if cfg.FastInterval <= 0 {
		cfg.FastInterval = cfg.Interval / 4
	}
	if cfg.DownInterval <= 0 {
		cfg.DownInterval = cfg.Interval * 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Second
	}
	if cfg.RiseThreshold <= 0 {
		cfg.RiseThreshold = 2
	}
	if cfg.FallThreshold <= 0 {
		cfg.FallThreshold = 3
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 10
	}
	return &Checker{
		cfg:      cfg,
		reg:      reg,
		stopCh:   make(chan struct{}),
		onChange: onChange,
		targets:  make(map[uint32]*backendTarget),
	}
}

// SetLagProber installs the replication-lag measurement used by the
// richer PostgreSQL probe mode. Must be called before Start.
func (c *Checker) SetLagProber(p LagProber) { c.lagProber = p }

// Start launches the scheduler goroutine, running one full pass
// immediately before settling into per-backend cadence.
func (c *Checker) Start() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.runDue(time.Now())
		tick := c.cfg.FastInterval
		if tick > c.cfg.Interval {
			tick = c.cfg.Interval
		}
		ticker := time.NewTicker(tick)
		defer ticker.Stop()
		for {
			select {
			case now := <-ticker.C:
				c.runDue(now)
			case <-c.stopCh:
				return
			}
		}
	}()
}

// Stop halts the scheduler and waits for the in-flight pass to finish.
// Safe to call more than once.
func (c *Checker) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.wg.Wait()
}

// runDue probes every backend whose next-due time has passed, bounded by
// MaxConcurrent in-flight probes.
func (c *Checker) runDue(now time.Time) {
	due := c.collectDue(now)
	if len(due) == 0 {
		return
	}

	sem := make(chan struct{}, c.cfg.MaxConcurrent)
	var wg sync.WaitGroup
	for _, t := range due {
		t := t
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			start := time.Now()
			ok := c.probe(t)
			t.backend.RecordCheck(ok, start)
			flipped := c.applyHysteresis(t.backend, start)
			c.reschedule(t, flipped, start)
		}()
	}
	wg.Wait()
}

// collectDue syncs the target map against the registry (new backends get
// an immediate first probe) and returns every target at or past nextDue.
func (c *Checker) collectDue(now time.Time) []*backendTarget {
	c.mu.Lock()
	defer c.mu.Unlock()

	live := make(map[uint32]struct{})
	for _, b := range c.reg.All() {
		live[b.ID] = struct{}{}
		if _, ok := c.targets[b.ID]; !ok {
			c.targets[b.ID] = &backendTarget{backend: b, nextDue: now}
		}
	}
	for id := range c.targets {
		if _, ok := live[id]; !ok {
			delete(c.targets, id)
		}
	}

	var due []*backendTarget
	for _, t := range c.targets {
		if !t.nextDue.After(now) {
			due = append(due, t)
		}
	}
	return due
}

// reschedule arms the target's next probe: fastinter right after a
// transition, downinter while down, inter otherwise.
func (c *Checker) reschedule(t *backendTarget, flipped bool, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var next time.Duration
	switch {
	case flipped:
		next = c.cfg.FastInterval
	case !t.backend.IsHealthy():
		next = c.cfg.DownInterval
	default:
		next = c.cfg.Interval
	}
	t.justFlipped = flipped
	t.nextDue = now.Add(next)
}

// applyHysteresis flips the healthy bit only once the relevant threshold
// is crossed; returns whether a transition happened.
func (c *Checker) applyHysteresis(b *registry.Backend, now time.Time) bool {
	wasHealthy := b.IsHealthy()
	var nowHealthy bool
	switch {
	case !wasHealthy && b.ConsecutiveSuccess() >= int64(c.cfg.RiseThreshold):
		nowHealthy = true
	case wasHealthy && b.ConsecutiveFailure() >= int64(c.cfg.FallThreshold):
		nowHealthy = false
	default:
		nowHealthy = wasHealthy
	}
	if nowHealthy == wasHealthy {
		return false
	}
	b.SetHealthy(nowHealthy, now)
	if c.onChange != nil {
		c.onChange(b, nowHealthy)
	}
	return true
}
