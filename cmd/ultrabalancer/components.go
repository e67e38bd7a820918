package main

import (
	"context"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"time"

	spfcbr "github.com/spf13/cobra"
	dgbcfg "github.com/lni/dragonboat/v3/config"

	libclu "github.com/Megallm/ultrabalancer-sub000/cluster"
	libcfg "github.com/Megallm/ultrabalancer-sub000/config"
	libctx "github.com/Megallm/ultrabalancer-sub000/context"
	libbal "github.com/Megallm/ultrabalancer-sub000/core/balancer"
	libhlt "github.com/Megallm/ultrabalancer-sub000/core/health"
	librat "github.com/Megallm/ultrabalancer-sub000/core/ratelimit"
	libreg "github.com/Megallm/ultrabalancer-sub000/core/registry"
	librte "github.com/Megallm/ultrabalancer-sub000/core/route"
	libstk "github.com/Megallm/ultrabalancer-sub000/core/stick"
	libdbg "github.com/Megallm/ultrabalancer-sub000/database/gorm"
	libdbp "github.com/Megallm/ultrabalancer-sub000/dbproxy"
	liberr "github.com/Megallm/ultrabalancer-sub000/errors"
	libfwd "github.com/Megallm/ultrabalancer-sub000/forwarder"
	liblsn "github.com/Megallm/ultrabalancer-sub000/listener"
	liblog "github.com/Megallm/ultrabalancer-sub000/logger"
	libsts "github.com/Megallm/ultrabalancer-sub000/stats"
)

// base carries the Component plumbing shared by every concrete
// component below.
type base struct {
	key     string
	ctx     context.Context
	get     libcfg.FuncComponentGet
	started bool
}

func (b *base) Init(key string, ctx context.Context, get libcfg.FuncComponentGet, _ libcfg.FuncViper, _ liblog.FuncLog) {
	b.key = key
	b.ctx = ctx
	b.get = get
}

func (b *base) RegisterFlag(_ *spfcbr.Command) error { return nil }
func (b *base) IsStarted() bool                      { return b.started }
func (b *base) Dependencies() []string               { return nil }

// proxyComponent owns the dataplane: registry, selection algorithm,
// sticky table, rate limiter, listeners and the forwarder reactors.
type proxyComponent struct {
	base
	cfg *libcfg.ProxyConfig
	log liblog.FuncLog

	registry  *libreg.Registry
	algorithm libbal.Algorithm
	sticky    *libstk.Table
	limiter   *librat.Limiter
	routes    *librte.Table
	listeners []*liblsn.Listener
	forwarder *libfwd.Forwarder
	stopCh    chan struct{}
}

func (p *proxyComponent) Type() string { return "proxy" }

func (p *proxyComponent) Start() liberr.Error {
	alg, err := libbal.New(p.cfg.Algorithm)
	if err != nil {
		return liberr.ErrCodeInvalidAlgorithm.Error(err)
	}
	p.algorithm = alg

	p.registry = libreg.New(len(p.cfg.Backends))
	for _, b := range p.cfg.Backends {
		bk := p.registry.Add(b.Host, b.Port, b.Weight, parseRole(b.Role), parseProtocol(b.Protocol))
		bk.MaxConns = b.MaxConns
		// until the first probe lands, a configured backend is assumed up,
		// otherwise a cold start with health checks disabled routes nothing
		bk.SetHealthy(true, time.Now())
	}

	p.sticky = libstk.New(p.cfg.StickySize)
	if p.cfg.RateLimit.Enabled {
		p.limiter = librat.New(librat.Config{
			RequestsPerSecond: p.cfg.RateLimit.RequestsPerSecond,
			BurstSize:         p.cfg.RateLimit.BurstSize,
			CleanupInterval:   5 * time.Minute,
			IdleTimeout:       10 * time.Minute,
		}, nil)
	}

	p.routes = librte.NewTable()
	for _, rc := range p.cfg.Routes {
		rule := &librte.Rule{
			Name:     rc.Name,
			Priority: rc.Priority,
			Matcher:  librte.Matcher{Host: rc.Host, PathPrefix: rc.PathPrefix, HeaderEqual: rc.Headers},
		}
		for _, tc := range rc.Targets {
			if bk := p.findBackend(tc.Backend); bk != nil {
				rule.Targets = append(rule.Targets, librte.Target{BackendID: bk.ID, Weight: tc.Weight})
			}
		}
		p.routes.Add(rule)
	}

	workers := p.cfg.Workers
	if workers <= 0 {
		workers = 2 * runtime.NumCPU()
	}

	var fds []int
	for i := 0; i < workers; i++ {
		lc := liblsn.DefaultConfig("worker-"+strconv.Itoa(i), p.cfg.Listen)
		lc.ProxyProto = p.cfg.ProxyProto
		l := liblsn.New(lc)
		if e := l.Bind(); e != nil {
			for _, pl := range p.listeners {
				_ = pl.Close()
			}
			p.listeners = nil
			return e
		}
		p.listeners = append(p.listeners, l)
		fds = append(fds, l.FD())
	}

	p.forwarder = libfwd.New(&libfwd.Deps{
		Registry:   p.registry,
		Algorithm:  p.algorithm,
		Sticky:     p.sticky,
		Limiter:    p.limiter,
		RouteName:  "default",
		ProxyProto: p.cfg.ProxyProto,
	})
	if err := p.forwarder.Start(fds, p.cfg.Listen); err != nil {
		for _, pl := range p.listeners {
			_ = pl.Close()
		}
		p.listeners = nil
		return liberr.ErrCodeBindFailed.Error(err)
	}

	p.stopCh = make(chan struct{})
	go p.expireSticky(p.cfg.StickyTTL.Time())

	p.started = true
	p.log().Info("proxy listening on %s with %d reactors, algorithm %s",
		p.cfg.Listen, workers, p.algorithm.Name())
	return nil
}

// expireSticky ages idle affinity entries out on a fixed cadence, so the
// table's LRU is not the only bound on stale entries.
func (p *proxyComponent) expireSticky(ttl time.Duration) {
	tick := time.NewTicker(time.Minute)
	defer tick.Stop()
	for {
		select {
		case <-p.stopCh:
			return
		case <-tick.C:
			p.sticky.Expire(ttl)
		}
	}
}

func (p *proxyComponent) Reload() liberr.Error {
	// backends may be added at runtime; listeners and workers are fixed
	// until restart
	for _, b := range p.cfg.Backends {
		if p.registry.FindByAddr(b.Host, b.Port) == nil {
			bk := p.registry.Add(b.Host, b.Port, b.Weight, parseRole(b.Role), parseProtocol(b.Protocol))
			bk.SetHealthy(true, time.Now())
		}
	}
	return nil
}

func (p *proxyComponent) Stop() {
	if p.stopCh != nil {
		close(p.stopCh)
		p.stopCh = nil
	}
	if p.forwarder != nil {
		p.forwarder.Stop()
	}
	for _, l := range p.listeners {
		_ = l.Close()
	}
	if p.limiter != nil {
		p.limiter.Stop()
	}
	p.started = false
}

func (p *proxyComponent) findBackend(addr string) *libreg.Backend {
	host, portStr, ok := strings.Cut(addr, ":")
	if !ok {
		return nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil
	}
	return p.registry.FindByAddr(host, port)
}

func parseRole(s string) libreg.Role {
	switch s {
	case "primary":
		return libreg.RolePrimary
	case "replica":
		return libreg.RoleReplica
	case "backup":
		return libreg.RoleBackup
	default:
		return libreg.RoleGeneric
	}
}

func parseProtocol(s string) libreg.Protocol {
	switch s {
	case "postgres":
		return libreg.ProtocolPostgres
	case "mysql":
		return libreg.ProtocolMySQL
	case "redis":
		return libreg.ProtocolRedis
	default:
		return libreg.ProtocolUnset
	}
}

// healthComponent runs the active prober against the proxy's registry.
type healthComponent struct {
	base
	cfg     *libcfg.ProxyConfig
	px      *proxyComponent
	log     liblog.FuncLog
	checker *libhlt.Checker
	view    *libclu.HealthView
}

func (h *healthComponent) Type() string { return "health" }
func (h *healthComponent) Dependencies() []string { return []string{"proxy"} }

func (h *healthComponent) Start() liberr.Error {
	hc := h.cfg.Health
	cfg := libhlt.Config{
		Interval:      hc.Interval.Time(),
		FastInterval:  hc.FastInterval.Time(),
		DownInterval:  hc.DownInterval.Time(),
		Timeout:       hc.Timeout.Time(),
		RiseThreshold: hc.Rise,
		FallThreshold: hc.Fall,
		Kind:          parseProbeKind(hc.Kind),
		HTTPPath:      hc.HTTPPath,
		ExpectStatus:  hc.ExpectStatus,
		TLSSkipVerify: hc.TLSSkipVerify,
		TLS:           hc.TLS,
	}

	h.checker = libhlt.New(cfg, h.px.registry, func(b *libreg.Backend, healthy bool) {
		h.log().Info("backend %s is now %s", b.Addr(), upDown(healthy))
		if h.view != nil {
			ctx, cancel := context.WithTimeout(h.ctx, 2*time.Second)
			defer cancel()
			if e := h.view.PublishTransition(ctx, b.Addr(), healthy); e != nil {
				h.log().Warning("cluster publish for %s failed: %v", b.Addr(), e)
			}
		}
	})
	h.checker.Start()
	h.started = true
	return nil
}

func (h *healthComponent) Reload() liberr.Error {
	h.Stop()
	return h.Start()
}

func (h *healthComponent) Stop() {
	if h.checker != nil {
		h.checker.Stop()
	}
	h.started = false
}

func parseProbeKind(s string) libhlt.ProbeKind {
	switch s {
	case "http":
		return libhlt.ProbeHTTP
	case "https":
		return libhlt.ProbeHTTPS
	case "mysql":
		return libhlt.ProbeMySQL
	case "postgres":
		return libhlt.ProbePostgres
	case "redis":
		return libhlt.ProbeRedis
	default:
		return libhlt.ProbeTCP
	}
}

func upDown(healthy bool) string {
	if healthy {
		return "UP"
	}
	return "DOWN"
}

// dbProxyComponent runs the DB-mode front end: protocol sniffing,
// read/write splitting and per-session transaction pinning over the
// shared backend registry.
type dbProxyComponent struct {
	base
	cfg *libcfg.ProxyConfig
	px  *proxyComponent
	log liblog.FuncLog

	proxy *libdbp.Proxy
}

func (d *dbProxyComponent) Type() string          { return "dbproxy" }
func (d *dbProxyComponent) Dependencies() []string { return []string{"proxy"} }

func (d *dbProxyComponent) Start() liberr.Error {
	dc := d.cfg.DBProxy
	d.proxy = libdbp.New(libdbp.Config{
		Listen:         dc.Listen,
		MaxSessions:    dc.MaxSessions,
		MaxConns:       dc.MaxConns,
		IdleTimeout:    dc.IdleTimeout.Time(),
		MaxLifetime:    dc.MaxLifetime.Time(),
		LagThresholdMS: dc.LagThresholdMS,
		TLS:            dc.TLS,
	}, d.px.registry, d.log)

	errCh := make(chan error, 1)
	go func() { errCh <- d.proxy.Serve() }()
	select {
	case err := <-errCh:
		if err != nil {
			return liberr.ErrCodeBindFailed.Error(err)
		}
	case <-time.After(100 * time.Millisecond):
	}

	d.started = true
	d.log().Info("db proxy listening on %s", dc.Listen)
	return nil
}

func (d *dbProxyComponent) Reload() liberr.Error { return nil }

func (d *dbProxyComponent) Stop() {
	if d.proxy != nil {
		d.proxy.Stop()
	}
	d.started = false
}

// statsComponent serves the read-only export endpoints and, when a DSN
// is configured, the periodic gorm persistence sink.
type statsComponent struct {
	base
	cfg *libcfg.ProxyConfig
	px  *proxyComponent
	log liblog.FuncLog

	server *http.Server
	cancel context.CancelFunc
}

func (s *statsComponent) Type() string { return "stats" }
func (s *statsComponent) Dependencies() []string { return []string{"proxy"} }

func (s *statsComponent) Start() liberr.Error {
	collector := &libsts.Collector{
		Registry: s.px.registry,
		Routes:   s.px.routes,
		Sticky:   s.px.sticky,
		ReactorFetch: func() []libsts.ReactorStat {
			var out []libsts.ReactorStat
			for _, r := range s.px.forwarder.Stats() {
				out = append(out, libsts.ReactorStat{ID: r.ID, Connections: r.Connections})
			}
			return out
		},
		PoolFetch: func() []libsts.PoolStat {
			dp, ok := s.get("dbproxy").(*dbProxyComponent)
			if !ok || dp == nil || dp.proxy == nil {
				return nil
			}
			var out []libsts.PoolStat
			for name, ps := range dp.proxy.PoolStats() {
				out = append(out, libsts.PoolStat{
					Name: name, Active: ps.Active, Idle: ps.Idle,
					Total: ps.Total, Waiting: ps.Waiting,
				})
			}
			return out
		},
	}

	s.server = &http.Server{Addr: s.cfg.StatsAddr, Handler: libsts.NewRouter(collector)}
	if s.cfg.StatsTLS != nil {
		s.server.TLSConfig = s.cfg.StatsTLS.New().TlsConfig("")
	}
	go func() {
		var err error
		if s.server.TLSConfig != nil {
			err = s.server.ListenAndServeTLS("", "")
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.log().Error("stats server: %v", err)
		}
	}()

	if s.cfg.DBProxy.StatsDSN != "" {
		sink, err := libsts.NewSink(&libdbg.Config{
			Driver: libdbg.DriverFromString(s.cfg.DBProxy.StatsDSNDriver),
			Name:   "stats",
			DSN:    s.cfg.DBProxy.StatsDSN,
		}, collector, s.log, time.Minute)
		if err != nil {
			s.log().Warning("stats sink disabled: %v", err)
		} else {
			// the sink outlives individual requests but not the component:
			// detach from the manager context's cancellation and stop it
			// from this component's own Stop instead
			var ctx context.Context
			ctx, s.cancel = context.WithCancel(libctx.IsolateParent(s.ctx))
			go sink.Run(ctx)
		}
	}

	s.started = true
	s.log().Info("stats export on %s", s.cfg.StatsAddr)
	return nil
}

func (s *statsComponent) Reload() liberr.Error { return nil }

func (s *statsComponent) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.server.Shutdown(ctx)
	}
	s.started = false
}

// clusterComponent replicates backend-health transitions across load
// balancer instances through the raft-backed health state machine.
type clusterComponent struct {
	base
	cfg *libcfg.ProxyConfig
	px  *proxyComponent
	log liblog.FuncLog

	cluster libclu.Cluster
}

func (c *clusterComponent) Type() string { return "cluster" }
func (c *clusterComponent) Dependencies() []string { return []string{"proxy"} }

func (c *clusterComponent) Start() liberr.Error {
	nhc := dgbcfg.NodeHostConfig{
		RaftAddress:    c.cfg.Cluster.Listen,
		NodeHostDir:    "/var/lib/ultrabalancer/raft",
		RTTMillisecond: 200,
	}
	cl, err := libclu.NewCluster(&nhc)
	if err != nil {
		return libclu.ErrorNodeHostNew.Error(err)
	}

	cl.SetConfig(dgbcfg.Config{
		NodeID:             c.cfg.Cluster.NodeID,
		ClusterID:          1,
		ElectionRTT:        10,
		HeartbeatRTT:       1,
		CheckQuorum:        true,
		SnapshotEntries:    1000,
		CompactionOverhead: 100,
	})
	cl.SetFctCreateSTM(libclu.NewHealthStateMachine)

	members := make(map[uint64]string, len(c.cfg.Cluster.Join))
	for _, j := range c.cfg.Cluster.Join {
		idStr, addr, ok := strings.Cut(j, "=")
		if !ok {
			continue
		}
		id, e := strconv.ParseUint(idStr, 10, 64)
		if e != nil {
			continue
		}
		members[id] = addr
	}
	cl.SetMemberInit(libclu.Config{InitMember: members}.GetInitMember())

	if e := cl.ClusterStart(false); e != nil {
		return e
	}
	c.cluster = cl

	// hook the health checker's publish path if it is registered
	view := libclu.NewHealthView(cl)
	if hc, ok := c.get("health").(*healthComponent); ok && hc != nil {
		hc.view = view
	}

	c.started = true
	c.log().Info("cluster node %d on %s", c.cfg.Cluster.NodeID, c.cfg.Cluster.Listen)
	return nil
}

func (c *clusterComponent) Reload() liberr.Error { return nil }

func (c *clusterComponent) Stop() {
	if c.cluster != nil {
		_ = c.cluster.ClusterStop(true)
	}
	c.started = false
}
