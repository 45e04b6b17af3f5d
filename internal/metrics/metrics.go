package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "engine",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "engine",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10, 30},
	}, []string{"method", "path"})

	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "engine",
		Name:      "active_sessions",
		Help:      "Number of currently open torrent sessions.",
	})

	DownloadSpeedBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "engine",
		Name:      "download_speed_bytes",
		Help:      "Current aggregate download speed in bytes per second.",
	})

	UploadSpeedBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "engine",
		Name:      "upload_speed_bytes",
		Help:      "Current aggregate upload speed in bytes per second.",
	})

	EngineTasksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "engine",
		Name:      "tasks_total",
		Help:      "Engine tasks executed by result (ok, error, panic, dropped).",
	}, []string{"result"})

	EngineTaskDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "engine",
		Name:      "task_duration_seconds",
		Help:      "Time spent running a single engine task.",
		Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	})

	EngineQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "engine",
		Name:      "task_queue_depth",
		Help:      "Tasks waiting for the engine goroutine at the last drain.",
	})

	PieceEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "engine",
		Name:      "piece_events_total",
		Help:      "Piece state events handled by sessions, by kind.",
	}, []string{"kind"})

	BlockedReaders = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "engine",
		Name:      "blocked_readers",
		Help:      "Readers currently waiting for a piece.",
	})

	ReaderWakeupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "engine",
		Name:      "reader_wakeups_total",
		Help:      "Blocked reads released, by reason (finished, cancelled, context).",
	}, []string{"reason"})

	DeadlineSubmissionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "engine",
		Name:      "deadline_submissions_total",
		Help:      "Piece deadline sets computed by the download controller, by outcome.",
	}, []string{"outcome"})

	MetadataFetchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "engine",
		Name:      "metadata_fetch_seconds",
		Help:      "Time from session start until metadata was available.",
		Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 180},
	})

	MetadataTimeoutsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "engine",
		Name:      "metadata_timeouts_total",
		Help:      "Session starts aborted because metadata did not arrive in time.",
	})

	ResumeDataTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "engine",
		Name:      "resume_data_total",
		Help:      "Resume data operations by outcome (saved, loaded, corrupt, failed).",
	}, []string{"outcome"})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		ActiveSessions,
		DownloadSpeedBytes,
		UploadSpeedBytes,
		EngineTasksTotal,
		EngineTaskDuration,
		EngineQueueDepth,
		PieceEventsTotal,
		BlockedReaders,
		ReaderWakeupsTotal,
		DeadlineSubmissionsTotal,
		MetadataFetchDuration,
		MetadataTimeoutsTotal,
		ResumeDataTotal,
	)
}
