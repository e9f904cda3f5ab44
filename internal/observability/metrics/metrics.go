package metrics

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "fieldwatch_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	ingestRequests *prometheus.CounterVec
	ingestLatency  *prometheus.HistogramVec
	ingestReadings prometheus.Counter

	samplesAppended prometheus.Counter
	pointsReaped    prometheus.Counter

	alarmTransitions *prometheus.CounterVec
	notifySends      *prometheus.CounterVec

	connectivityFlips *prometheus.CounterVec
)

// Init registers observability metrics and DB-backed gauges.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		ingestRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_requests_total",
				Help: "Total ingest requests by result",
			},
			[]string{"result"},
		)
		ingestLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "ingest_latency_seconds",
				Help:    "Ingest latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		ingestReadings = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_readings_total",
				Help: "Total point readings processed",
			},
		)

		samplesAppended = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "samples_appended_total",
				Help: "Total throttled samples persisted",
			},
		)
		pointsReaped = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "points_reaped_total",
				Help: "Total points reaped after full report batches",
			},
		)

		alarmTransitions = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alarm_transitions_total",
				Help: "Total alarm state transitions by direction",
			},
			[]string{"transition"},
		)
		notifySends = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "notify_sends_total",
				Help: "Total notification sends by result",
			},
			[]string{"result"},
		)

		connectivityFlips = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "connectivity_flips_total",
				Help: "Total connectivity status flips by new state",
			},
			[]string{"state"},
		)

		prometheus.MustRegister(
			ingestRequests,
			ingestLatency,
			ingestReadings,
			samplesAppended,
			pointsReaped,
			alarmTransitions,
			notifySends,
			connectivityFlips,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveIngest records ingest request duration and result.
func ObserveIngest(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if ingestRequests != nil {
		ingestRequests.WithLabelValues(result).Inc()
	}
	if ingestLatency != nil {
		ingestLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// AddIngestReadings increments processed reading count.
func AddIngestReadings(count int) {
	if count <= 0 {
		return
	}
	if ingestReadings != nil {
		ingestReadings.Add(float64(count))
	}
}

// IncSampleAppended increments the persisted sample counter.
func IncSampleAppended() {
	if samplesAppended != nil {
		samplesAppended.Inc()
	}
}

// AddPointsReaped increments the reap counter by count.
func AddPointsReaped(count int) {
	if count <= 0 {
		return
	}
	if pointsReaped != nil {
		pointsReaped.Add(float64(count))
	}
}

// IncAlarmTransition increments alarm transition counters.
func IncAlarmTransition(transition string) {
	if transition == "" {
		transition = "unknown"
	}
	if alarmTransitions != nil {
		alarmTransitions.WithLabelValues(transition).Inc()
	}
}

// IncNotifySend increments notification send counters.
func IncNotifySend(result string) {
	if result == "" {
		result = resultSuccess
	}
	if notifySends != nil {
		notifySends.WithLabelValues(result).Inc()
	}
}

// IncConnectivityFlip increments connectivity edge counters.
func IncConnectivityFlip(state string) {
	if state == "" {
		state = "unknown"
	}
	if connectivityFlips != nil {
		connectivityFlips.WithLabelValues(state).Inc()
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError

	TransitionActive   = "active"
	TransitionInactive = "inactive"

	StateOnline  = "online"
	StateOffline = "offline"
)

func registerDBMetrics(db *sql.DB, logger *log.Logger) {
	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "clients_connected",
			Help: "Clients currently marked connected",
		},
		func() float64 {
			return queryCount(db, logger, "SELECT COUNT(*) FROM clients WHERE connected = TRUE")
		},
	))

	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "alarms_active",
			Help: "Alarms currently active",
		},
		func() float64 {
			return queryCount(db, logger, "SELECT COUNT(*) FROM alarms WHERE active = TRUE")
		},
	))

	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "db_open_connections",
			Help: "Open database connections",
		},
		func() float64 {
			return float64(db.Stats().OpenConnections)
		},
	))
}

func queryCount(db *sql.DB, logger *log.Logger, query string) float64 {
	if db == nil {
		return 0
	}
	var count int64
	if err := db.QueryRow(query).Scan(&count); err != nil {
		if logger != nil {
			logger.Printf("metrics query failed: %v", err)
		}
		return 0
	}
	if count < 0 {
		return 0
	}
	return float64(count)
}
