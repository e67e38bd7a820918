// Package stats implements the read-only statistics export: a Collector
// gathers a point-in-time Snapshot from the registry, forwarder
// reactors, DB pool and sticky table, and a set of exporters render it
// as CSV, JSON, HTML and Prometheus text exposition.
package stats

import (
	"time"

	"github.com/Megallm/ultrabalancer-sub000/core/registry"
	"github.com/Megallm/ultrabalancer-sub000/core/route"
	"github.com/Megallm/ultrabalancer-sub000/core/stick"
)

// BackendStat is one backend's exported row.
type BackendStat struct {
	ID               uint32
	Addr             string
	Role             string
	Healthy          bool
	ActiveConns      int64
	TotalConns       int64
	FailedConns      int64
	ResponseTimeNS   int64
	ReplicationLagMS int64
	Weight           int
}

// ReactorStat is one forwarder worker's connection gauge.
type ReactorStat struct {
	ID          int
	Connections int
}

// RouteStat summarises one route rule's circuit breakers.
type RouteStat struct {
	Name         string
	OpenBreakers int
	TotalTargets int
}

// PoolStat is one DB connection pool's gauges.
type PoolStat struct {
	Name    string
	Active  int
	Idle    int
	Total   int
	Waiting int
}

// Snapshot is a point-in-time export of the routing statistics.
// Renderers never mutate it, so one Snapshot can fan out to every
// format concurrently.
type Snapshot struct {
	Timestamp   time.Time
	Backends    []BackendStat
	Reactors    []ReactorStat
	Routes      []RouteStat
	Pools       []PoolStat
	StickyCount int
}

// Collector gathers a Snapshot from the live routing state.
type Collector struct {
	Registry *registry.Registry
	Routes   *route.Table
	Sticky   *stick.Table

	// ReactorFetch and PoolFetch are injected rather than typed directly
	// against forwarder.Forwarder / dbproxy/pool.Pool so this package
	// never imports either; the caller (cmd/ultrabalancer) adapts their
	// stats into ReactorStat and PoolStat rows.
	ReactorFetch func() []ReactorStat
	PoolFetch    func() []PoolStat
}

func (c *Collector) Collect() Snapshot {
	snap := Snapshot{Timestamp: time.Now()}

	for _, b := range c.Registry.All() {
		snap.Backends = append(snap.Backends, BackendStat{
			ID:               b.ID,
			Addr:             b.Addr(),
			Role:             b.Role.String(),
			Healthy:          b.IsHealthy(),
			ActiveConns:      b.ActiveConns(),
			TotalConns:       b.TotalConns(),
			FailedConns:      b.FailedConns(),
			ResponseTimeNS:   b.ResponseTimeNS(),
			ReplicationLagMS: b.ReplicationLagMS(),
			Weight:           b.EffectiveWeight(),
		})
	}

	if c.Routes != nil {
		for _, rs := range c.Routes.Snapshot() {
			snap.Routes = append(snap.Routes, RouteStat{
				Name:         rs.Name,
				OpenBreakers: rs.OpenBreakers,
				TotalTargets: rs.TotalTargets,
			})
		}
	}

	if c.ReactorFetch != nil {
		snap.Reactors = c.ReactorFetch()
	}
	if c.PoolFetch != nil {
		snap.Pools = c.PoolFetch()
	}
	if c.Sticky != nil {
		snap.StickyCount = c.Sticky.Len()
	}

	return snap
}
