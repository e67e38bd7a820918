package stats

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"text/template"
)

// WriteCSV renders one backend row per line with a header, field order
// matching the BackendStat struct.
func WriteCSV(w io.Writer, snap Snapshot) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{
		"id", "addr", "role", "healthy", "active_conns", "total_conns",
		"failed_conns", "response_time_ns", "replication_lag_ms", "weight",
	}); err != nil {
		return err
	}
	for _, b := range snap.Backends {
		rec := []string{
			strconv.FormatUint(uint64(b.ID), 10),
			b.Addr,
			b.Role,
			strconv.FormatBool(b.Healthy),
			strconv.FormatInt(b.ActiveConns, 10),
			strconv.FormatInt(b.TotalConns, 10),
			strconv.FormatInt(b.FailedConns, 10),
			strconv.FormatInt(b.ResponseTimeNS, 10),
			strconv.FormatInt(b.ReplicationLagMS, 10),
			strconv.Itoa(b.Weight),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteJSON renders the whole snapshot as one indented JSON document.
func WriteJSON(w io.Writer, snap Snapshot) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}

var htmlPage = template.Must(template.New("stats").Parse(`<!DOCTYPE html>
<html>
<head><title>UltraBalancer Statistics</title></head>
<body>
<h1>UltraBalancer Statistics</h1>
<p>Generated {{.Timestamp}}</p>
<h2>Backends</h2>
<table border="1" cellpadding="4">
<tr><th>ID</th><th>Address</th><th>Role</th><th>Healthy</th><th>Active</th><th>Total</th><th>Failed</th><th>RT (ns)</th><th>Lag (ms)</th><th>Weight</th></tr>
{{range .Backends}}<tr><td>{{.ID}}</td><td>{{.Addr}}</td><td>{{.Role}}</td><td>{{.Healthy}}</td><td>{{.ActiveConns}}</td><td>{{.TotalConns}}</td><td>{{.FailedConns}}</td><td>{{.ResponseTimeNS}}</td><td>{{.ReplicationLagMS}}</td><td>{{.Weight}}</td></tr>
{{end}}</table>
<h2>Reactors</h2>
<table border="1" cellpadding="4">
<tr><th>ID</th><th>Connections</th></tr>
{{range .Reactors}}<tr><td>{{.ID}}</td><td>{{.Connections}}</td></tr>
{{end}}</table>
<h2>Routes</h2>
<table border="1" cellpadding="4">
<tr><th>Name</th><th>Targets</th><th>Open breakers</th></tr>
{{range .Routes}}<tr><td>{{.Name}}</td><td>{{.TotalTargets}}</td><td>{{.OpenBreakers}}</td></tr>
{{end}}</table>
<h2>DB pools</h2>
<table border="1" cellpadding="4">
<tr><th>Name</th><th>Active</th><th>Idle</th><th>Total</th></tr>
{{range .Pools}}<tr><td>{{.Name}}</td><td>{{.Active}}</td><td>{{.Idle}}</td><td>{{.Total}}</td></tr>
{{end}}</table>
<p>Sticky entries: {{.StickyCount}}</p>
</body>
</html>
`))

// WriteHTML renders the read-only status page.
func WriteHTML(w io.Writer, snap Snapshot) error {
	return htmlPage.Execute(w, snap)
}
