package metrics

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/gustycube/uptime-probe/internal/health"
)

var (
	PollsTotal      = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "uptime_polls_total", Help: "polls performed"}, []string{"status"})
	PollLatency     = prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: "uptime_poll_latency_seconds", Help: "poll latency", Buckets: prometheus.DefBuckets}, []string{"status"})
	CertInspections = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "uptime_cert_inspections_total", Help: "tls inspections by result"}, []string{"result"})
	ActivePollers   = prometheus.NewGauge(prometheus.GaugeOpts{Name: "uptime_active_pollers", Help: "pollers currently in progress"})
	ReportsTotal    = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "uptime_reports_total", Help: "endpoint reports by aggregation result"}, []string{"result"})
)

func init() {
	prometheus.MustRegister(PollsTotal, PollLatency, CertInspections, ActivePollers, ReportsTotal)
}

// Router exposes /metrics and the health endpoints.
func Router(healthHandler *health.Handler) http.Handler {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health", healthHandler.HealthHandler)
	r.Get("/ready", healthHandler.ReadinessHandler)
	r.Get("/live", healthHandler.LivenessHandler)
	return r
}

func ServeWithHealth(addr string, healthHandler *health.Handler, log *zap.SugaredLogger) {
	if err := http.ListenAndServe(addr, Router(healthHandler)); err != nil {
		log.Warnw("metrics server stopped", "err", err)
	}
}
