package metrics

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "bridge_"

	resultSuccess = "success"
	resultError   = "error"
	resultSkipped = "skipped"
)

var (
	registerOnce sync.Once

	commandResults *prometheus.CounterVec
	deviceLatency  *prometheus.HistogramVec

	ingestCycles      *prometheus.CounterVec
	ingestCommands    prometheus.Counter
	reconnectAttempts *prometheus.CounterVec
	linkState         prometheus.Gauge
	livenessLevel     prometheus.Gauge

	reportErrors *prometheus.CounterVec
	decodeSkips  *prometheus.CounterVec

	pushMessages *prometheus.CounterVec
	mailboxDrops prometheus.Counter
	mailboxDepth prometheus.Gauge
	statePublish *prometheus.CounterVec
)

// Init registers bridge metrics and, when db is set, journal-backed gauges.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		commandResults = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "command_results_total",
				Help: "Total terminal commands by remote status",
			},
			[]string{"status"},
		)
		deviceLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "device_request_latency_seconds",
				Help:    "Device request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"intent", "result"},
		)

		ingestCycles = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_cycles_total",
				Help: "Total ingestion cycles by result",
			},
			[]string{"result"},
		)
		ingestCommands = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_commands_total",
				Help: "Total commands received from the source",
			},
		)
		reconnectAttempts = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "reconnect_attempts_total",
				Help: "Total link connect attempts by result",
			},
			[]string{"result"},
		)
		linkState = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "link_state",
				Help: "Link state (0 disconnected, 1 connecting, 2 ready)",
			},
		)
		livenessLevel = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "liveness_level",
				Help: "Liveness level (0 healthy, 1 session down, 2 network down)",
			},
		)

		reportErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "report_errors_total",
				Help: "Total status write-back failures by stage",
			},
			[]string{"stage"},
		)
		decodeSkips = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "decode_skips_total",
				Help: "Total skipped payload fields by source",
			},
			[]string{"source"},
		)

		pushMessages = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "push_messages_total",
				Help: "Total push messages by result",
			},
			[]string{"result"},
		)
		mailboxDrops = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "mailbox_drops_total",
				Help: "Total push commands dropped because the mailbox was full",
			},
		)
		mailboxDepth = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "mailbox_depth",
				Help: "Push commands waiting in the mailbox",
			},
		)
		statePublish = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "state_publish_total",
				Help: "Total periodic device state publishes by result",
			},
			[]string{"result"},
		)

		prometheus.MustRegister(
			commandResults,
			deviceLatency,
			ingestCycles,
			ingestCommands,
			reconnectAttempts,
			linkState,
			livenessLevel,
			reportErrors,
			decodeSkips,
			pushMessages,
			mailboxDrops,
			mailboxDepth,
			statePublish,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// IncCommandResult increments the terminal command counter.
func IncCommandResult(status string) {
	if status == "" {
		status = "unknown"
	}
	if commandResults != nil {
		commandResults.WithLabelValues(status).Inc()
	}
}

// ObserveDeviceRequest records a device call.
func ObserveDeviceRequest(intent, result string, duration time.Duration) {
	if intent == "" {
		intent = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if deviceLatency != nil {
		deviceLatency.WithLabelValues(intent, result).Observe(duration.Seconds())
	}
}

// IncIngestCycle counts an ingestion cycle and the commands it yielded.
func IncIngestCycle(result string, commands int) {
	if result == "" {
		result = resultSuccess
	}
	if ingestCycles != nil {
		ingestCycles.WithLabelValues(result).Inc()
	}
	if ingestCommands != nil && commands > 0 {
		ingestCommands.Add(float64(commands))
	}
}

// IncReconnectAttempt counts a link connect attempt.
func IncReconnectAttempt(result string) {
	if result == "" {
		result = resultSuccess
	}
	if reconnectAttempts != nil {
		reconnectAttempts.WithLabelValues(result).Inc()
	}
}

// SetLinkState publishes the supervisor state.
func SetLinkState(state int) {
	if linkState != nil {
		linkState.Set(float64(state))
	}
}

// SetLivenessLevel publishes the heartbeat level.
func SetLivenessLevel(level int) {
	if livenessLevel != nil {
		livenessLevel.Set(float64(level))
	}
}

// IncReportError counts a failed status write-back.
func IncReportError(stage string) {
	if stage == "" {
		stage = "unknown"
	}
	if reportErrors != nil {
		reportErrors.WithLabelValues(stage).Inc()
	}
}

// AddDecodeSkips counts skipped payload fields.
func AddDecodeSkips(source string, count int) {
	if count <= 0 {
		return
	}
	if source == "" {
		source = "unknown"
	}
	if decodeSkips != nil {
		decodeSkips.WithLabelValues(source).Add(float64(count))
	}
}

// IncPushMessage counts an inbound push message.
func IncPushMessage(result string) {
	if result == "" {
		result = resultSuccess
	}
	if pushMessages != nil {
		pushMessages.WithLabelValues(result).Inc()
	}
}

// IncMailboxDrop counts a dropped push command.
func IncMailboxDrop() {
	if mailboxDrops != nil {
		mailboxDrops.Inc()
	}
}

// SetMailboxDepth records how many push commands are queued.
func SetMailboxDepth(depth int) {
	if mailboxDepth != nil {
		mailboxDepth.Set(float64(depth))
	}
}

// IncStatePublish counts a periodic state publish.
func IncStatePublish(result string) {
	if result == "" {
		result = resultSuccess
	}
	if statePublish != nil {
		statePublish.WithLabelValues(result).Inc()
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
	ResultSkipped = resultSkipped
)
