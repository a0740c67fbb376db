package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics структура для метрик Prometheus
type Metrics struct {
	BookingsCreated   *prometheus.CounterVec
	BookingsExtended  prometheus.Counter
	BookingsCancelled prometheus.Counter
	BookingRejections *prometheus.CounterVec
	ZonesClosed       prometheus.Counter
	ZonesReopened     prometheus.Counter
	ZoneCacheHits     prometheus.Counter
	ZoneCacheMisses   prometheus.Counter
	HTTPRequests      *prometheus.CounterVec
	HTTPDuration      *prometheus.HistogramVec
	SyncTasksTotal    *prometheus.CounterVec
}

// New создает новые метрики и регистрирует их в reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		BookingsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bronizone_bookings_created_total",
			Help: "Total number of bookings created",
		}, []string{"mode"}),

		BookingsExtended: factory.NewCounter(prometheus.CounterOpts{
			Name: "bronizone_bookings_extended_total",
			Help: "Total number of booking extensions",
		}),

		BookingsCancelled: factory.NewCounter(prometheus.CounterOpts{
			Name: "bronizone_bookings_cancelled_total",
			Help: "Total number of bookings cancelled",
		}),

		BookingRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bronizone_booking_rejections_total",
			Help: "Total number of rejected booking attempts",
		}, []string{"reason"}),

		ZonesClosed: factory.NewCounter(prometheus.CounterOpts{
			Name: "bronizone_zones_closed_total",
			Help: "Total number of zone closures",
		}),

		ZonesReopened: factory.NewCounter(prometheus.CounterOpts{
			Name: "bronizone_zones_reopened_total",
			Help: "Total number of automatic zone reopenings",
		}),

		ZoneCacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "bronizone_zone_cache_hits_total",
			Help: "Zone listing cache hits",
		}),

		ZoneCacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "bronizone_zone_cache_misses_total",
			Help: "Zone listing cache misses",
		}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bronizone_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"endpoint", "status"}),

		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bronizone_http_request_duration_seconds",
			Help:    "Time spent handling HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),

		SyncTasksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bronizone_sync_tasks_total",
			Help: "Report sync tasks by outcome",
		}, []string{"outcome"}),
	}
}

// NewDefault регистрирует метрики в глобальном регистре Prometheus.
func NewDefault() *Metrics {
	return New(prometheus.DefaultRegisterer)
}
