package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ValidationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geofence_validations_total",
		Help: "Total point validations by outcome",
	}, []string{"outcome"})
	PathValidationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geofence_path_validations_total",
		Help: "Total path validations by outcome",
	}, []string{"outcome"})
	ValidationDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "geofence_validation_duration_ms",
		Help:    "Validation duration in milliseconds",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 20, 50, 100, 200},
	})
	ViolationsRecordedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geofence_violations_recorded_total",
		Help: "Total violations appended to session logs",
	}, []string{"type"})
	DataUnavailableTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "geofence_data_unavailable_total",
		Help: "Validations degraded because boundary data was not resident",
	})
	UnknownRegionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "geofence_unknown_regions_total",
		Help: "Assigned region names that could not be resolved",
	})
	BoundaryLoadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geofence_boundary_loads_total",
		Help: "Boundary data loads by status",
	}, []string{"status"})
	RegionsLoaded = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "geofence_regions_loaded",
		Help: "Number of regions resident in the boundary store",
	})
	AuditWriteFailTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "geofence_audit_write_fail_total",
		Help: "Violation audit sink write failures",
	})
	GeoIPLookupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geofence_geoip_lookups_total",
		Help: "GeoIP lookups by source and status",
	}, []string{"source", "status"})
	HTTPRejectedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "geofence_http_rate_limited_total",
		Help: "Requests rejected by the rate limiter",
	})
)

func init() {
	prometheus.MustRegister(ValidationsTotal)
	prometheus.MustRegister(PathValidationsTotal)
	prometheus.MustRegister(ValidationDurationMs)
	prometheus.MustRegister(ViolationsRecordedTotal)
	prometheus.MustRegister(DataUnavailableTotal)
	prometheus.MustRegister(UnknownRegionsTotal)
	prometheus.MustRegister(BoundaryLoadsTotal)
	prometheus.MustRegister(RegionsLoaded)
	prometheus.MustRegister(AuditWriteFailTotal)
	prometheus.MustRegister(GeoIPLookupsTotal)
	prometheus.MustRegister(HTTPRejectedTotal)
}

// 文档注释：返回 Prometheus 指标监听器
// 背景：统一暴露注册指标到 /metrics 路径，供 Prometheus 抓取；在路由层挂载。
func Handler() http.Handler { return promhttp.Handler() }
