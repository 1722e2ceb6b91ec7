package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "radio",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "radio",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10, 30},
	}, []string{"method", "path"})

	ListenersConnected = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "radio",
		Name:      "listeners_connected",
		Help:      "Number of currently connected WebSocket listeners.",
	})

	BroadcastsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "radio",
		Name:      "broadcasts_total",
		Help:      "Total WebSocket broadcasts by event type.",
	}, []string{"event"})

	SongsAiredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "radio",
		Name:      "songs_aired_total",
		Help:      "Total number of songs sent to listeners for playback.",
	})

	PrefetchTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "radio",
		Name:      "prefetch_total",
		Help:      "Total pre-fetch pipeline runs by outcome.",
	}, []string{"outcome"})

	ExtractorDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "radio",
		Name:      "extractor_duration_seconds",
		Help:      "Duration of stream URL extraction in seconds.",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 90},
	})

	ExtractorCacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "radio",
		Name:      "extractor_cache_hits_total",
		Help:      "Total stream URL resolutions served from the TTL cache.",
	})

	AnnouncementsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "radio",
		Name:      "announcements_total",
		Help:      "Total DJ announcements generated by outcome.",
	}, []string{"outcome"})

	ScheduleRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "radio",
		Name:      "schedule_runs_total",
		Help:      "Total schedule executions by outcome.",
	}, []string{"outcome"})

	AdminTakeoversTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "radio",
		Name:      "admin_takeovers_total",
		Help:      "Total broadcaster takeovers that completed the grace window.",
	})

	ChatMessagesDeletedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "radio",
		Name:      "chat_messages_deleted_total",
		Help:      "Total chat messages removed by the retention job.",
	})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		ListenersConnected,
		BroadcastsTotal,
		SongsAiredTotal,
		PrefetchTotal,
		ExtractorDuration,
		ExtractorCacheHitsTotal,
		AnnouncementsTotal,
		ScheduleRunsTotal,
		AdminTakeoversTotal,
		ChatMessagesDeletedTotal,
	)
}
