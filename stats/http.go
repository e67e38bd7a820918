package stats

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter serves the four export formats over HTTP:
//
//	GET /stats          -> JSON
//	GET /stats.csv      -> CSV
//	GET /stats.html     -> HTML status page
//	GET /metrics        -> Prometheus text exposition
//
// The router is read-only and safe to bind on an internal address only.
func NewRouter(c *Collector) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	reg := prometheus.NewRegistry()
	reg.MustRegister(NewPromCollector(c))
	metricsHandler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})

	r.GET("/stats", func(ctx *gin.Context) {
		ctx.Header("Content-Type", "application/json")
		ctx.Status(http.StatusOK)
		_ = WriteJSON(ctx.Writer, c.Collect())
	})
	r.GET("/stats.csv", func(ctx *gin.Context) {
		ctx.Header("Content-Type", "text/csv")
		ctx.Status(http.StatusOK)
		_ = WriteCSV(ctx.Writer, c.Collect())
	})
	r.GET("/stats.html", func(ctx *gin.Context) {
		ctx.Header("Content-Type", "text/html; charset=utf-8")
		ctx.Status(http.StatusOK)
		_ = WriteHTML(ctx.Writer, c.Collect())
	})
	r.GET("/metrics", gin.WrapH(metricsHandler))

	return r
}
