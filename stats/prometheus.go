package stats

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PromCollector adapts a Collector to the prometheus.Collector contract,
// so the /metrics endpoint always serves a fresh snapshot instead of a
// gauge set someone has to remember to update.
type PromCollector struct {
	collector *Collector

	backendUp       *prometheus.Desc
	backendActive   *prometheus.Desc
	backendTotal    *prometheus.Desc
	backendFailed   *prometheus.Desc
	backendRespTime *prometheus.Desc
	backendLag      *prometheus.Desc
	reactorConns    *prometheus.Desc
	routeOpen       *prometheus.Desc
	poolActive      *prometheus.Desc
	poolIdle        *prometheus.Desc
	stickyEntries   *prometheus.Desc
}

func NewPromCollector(c *Collector) *PromCollector {
	backendLabels := []string{"backend", "role"}
	return &PromCollector{
		collector: c,
		backendUp: prometheus.NewDesc(
			"ultrabalancer_backend_up", "Backend healthy bit.", backendLabels, nil),
		backendActive: prometheus.NewDesc(
			"ultrabalancer_backend_active_connections", "In-flight connections per backend.", backendLabels, nil),
		backendTotal: prometheus.NewDesc(
			"ultrabalancer_backend_total_connections", "Connections served per backend.", backendLabels, nil),
		backendFailed: prometheus.NewDesc(
			"ultrabalancer_backend_failed_connections", "Failed connections per backend.", backendLabels, nil),
		backendRespTime: prometheus.NewDesc(
			"ultrabalancer_backend_response_time_ns", "Last observed response time per backend.", backendLabels, nil),
		backendLag: prometheus.NewDesc(
			"ultrabalancer_backend_replication_lag_ms", "Replication lag per replica backend.", backendLabels, nil),
		reactorConns: prometheus.NewDesc(
			"ultrabalancer_reactor_connections", "Open connections per reactor.", []string{"reactor"}, nil),
		routeOpen: prometheus.NewDesc(
			"ultrabalancer_route_open_breakers", "Open circuit breakers per route.", []string{"route"}, nil),
		poolActive: prometheus.NewDesc(
			"ultrabalancer_db_pool_active", "Active DB pool connections.", []string{"pool"}, nil),
		poolIdle: prometheus.NewDesc(
			"ultrabalancer_db_pool_idle", "Idle DB pool connections.", []string{"pool"}, nil),
		stickyEntries: prometheus.NewDesc(
			"ultrabalancer_sticky_entries", "Live sticky-table entries.", nil, nil),
	}
}

func (p *PromCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- p.backendUp
	ch <- p.backendActive
	ch <- p.backendTotal
	ch <- p.backendFailed
	ch <- p.backendRespTime
	ch <- p.backendLag
	ch <- p.reactorConns
	ch <- p.routeOpen
	ch <- p.poolActive
	ch <- p.poolIdle
	ch <- p.stickyEntries
}

func (p *PromCollector) Collect(ch chan<- prometheus.Metric) {
	snap := p.collector.Collect()

	for _, b := range snap.Backends {
		up := 0.0
		if b.Healthy {
			up = 1.0
		}
		ch <- prometheus.MustNewConstMetric(p.backendUp, prometheus.GaugeValue, up, b.Addr, b.Role)
		ch <- prometheus.MustNewConstMetric(p.backendActive, prometheus.GaugeValue, float64(b.ActiveConns), b.Addr, b.Role)
		ch <- prometheus.MustNewConstMetric(p.backendTotal, prometheus.CounterValue, float64(b.TotalConns), b.Addr, b.Role)
		ch <- prometheus.MustNewConstMetric(p.backendFailed, prometheus.CounterValue, float64(b.FailedConns), b.Addr, b.Role)
		ch <- prometheus.MustNewConstMetric(p.backendRespTime, prometheus.GaugeValue, float64(b.ResponseTimeNS), b.Addr, b.Role)
		ch <- prometheus.MustNewConstMetric(p.backendLag, prometheus.GaugeValue, float64(b.ReplicationLagMS), b.Addr, b.Role)
	}
	for _, r := range snap.Reactors {
		ch <- prometheus.MustNewConstMetric(p.reactorConns, prometheus.GaugeValue, float64(r.Connections), itoa(r.ID))
	}
	for _, r := range snap.Routes {
		ch <- prometheus.MustNewConstMetric(p.routeOpen, prometheus.GaugeValue, float64(r.OpenBreakers), r.Name)
	}
	for _, pl := range snap.Pools {
		ch <- prometheus.MustNewConstMetric(p.poolActive, prometheus.GaugeValue, float64(pl.Active), pl.Name)
		ch <- prometheus.MustNewConstMetric(p.poolIdle, prometheus.GaugeValue, float64(pl.Idle), pl.Name)
	}
	ch <- prometheus.MustNewConstMetric(p.stickyEntries, prometheus.GaugeValue, float64(snap.StickyCount))
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	var buf [12]byte
	at := len(buf)
	for i > 0 {
		at--
		buf[at] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		at--
		buf[at] = '-'
	}
	return string(buf[at:])
}
