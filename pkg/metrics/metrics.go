package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// 通知派发结果计数
	DispatchCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_dispatch_total",
			Help: "Total number of dispatch attempts by channel and recorded status",
		},
		[]string{"channel", "status"}, // status: SENT, FAILED, QUEUED
	)

	// Broker 发布与降级
	BrokerPublishCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_broker_publish_total",
			Help: "Queue envelopes handed to the broker or to direct processing",
		},
		[]string{"route"}, // route: broker, fallback_absent, fallback_error
	)

	UnrecognizedChannelCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notification_unrecognized_channel_total",
			Help: "Queue envelopes dropped because their channel type is unknown",
		},
	)

	AuditFailureCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notification_audit_write_failures_total",
			Help: "Audit record writes that failed and were absorbed",
		},
	)

	// Worker pool
	WorkerTaskCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_pool_tasks_total",
			Help: "Worker pool task outcomes",
		},
		[]string{"task", "outcome"}, // outcome: ok, error, rejected
	)

	WorkerQueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_pool_queue_depth",
			Help: "Tasks waiting per priority lane",
		},
		[]string{"priority"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 open, 2 half-open)",
		},
		[]string{"name"},
	)

	// MQ 消费延迟（毫秒）
	MQConsumeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mq_consume_latency_ms",
			Help:    "MQ message consumption latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10ms to ~10s
		},
		[]string{"routing_key", "queue"},
	)

	ConsumerOutcomeCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mq_consumer_messages_total",
			Help: "Consumed messages by final action",
		},
		[]string{"action"}, // action: ack, requeue, dead_letter
	)

	// 数据库查询延迟（秒）
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"operation", "table"},
	)

	SlowQueryCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "db_slow_queries_total",
			Help: "Queries slower than the configured threshold",
		},
	)

	// HTTP 请求延迟（秒）
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)
)

// IncrementDispatch 记录一次派发结果
func IncrementDispatch(channel, status string) {
	DispatchCount.WithLabelValues(channel, status).Inc()
}

func IncrementBrokerRoute(route string) {
	BrokerPublishCount.WithLabelValues(route).Inc()
}

func IncrementUnrecognizedChannel() {
	UnrecognizedChannelCount.Inc()
}

func IncrementAuditFailure() {
	AuditFailureCount.Inc()
}

func IncrementWorkerTask(task, outcome string) {
	WorkerTaskCount.WithLabelValues(task, outcome).Inc()
}

func SetWorkerQueueDepth(priority string, depth int) {
	WorkerQueueDepth.WithLabelValues(priority).Set(float64(depth))
}

func SetCircuitBreakerState(name string, state int) {
	CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}

// RecordMQConsumeLatency 记录 MQ 消费延迟
func RecordMQConsumeLatency(routingKey, queue string, duration time.Duration) {
	MQConsumeLatency.WithLabelValues(routingKey, queue).Observe(float64(duration.Milliseconds()))
}

func IncrementConsumerOutcome(action string) {
	ConsumerOutcomeCount.WithLabelValues(action).Inc()
}

// RecordDBQueryDuration 记录数据库查询延迟
func RecordDBQueryDuration(operation, table string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// IncrementSlowQuery counts a slow query; the SQL text itself only goes to the log.
func IncrementSlowQuery() {
	SlowQueryCount.Inc()
}

// RecordHTTPRequestDuration 记录 HTTP 请求延迟
func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}
