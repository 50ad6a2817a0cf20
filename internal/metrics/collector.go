// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRequestSize     *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// 编排指标
	stateTransitions *prometheus.CounterVec
	subtaskTotal     *prometheus.CounterVec
	subtaskDuration  *prometheus.HistogramVec
	runsTotal        *prometheus.CounterVec

	// 检查点指标
	checkpointSaves *prometheus.CounterVec

	// 审批指标
	approvalEvents *prometheus.CounterVec

	// 共识面板指标
	panelEvaluations *prometheus.CounterVec

	// 执行台账指标
	ledgerHits   prometheus.Counter
	ledgerMisses prometheus.Counter

	// 数据库指标
	dbConnectionsOpen *prometheus.GaugeVec
	dbConnectionsIdle *prometheus.GaugeVec
	dbQueryDuration   *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.httpRequestSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_size_bytes",
			Help:      "HTTP request size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	c.httpResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	// 编排指标
	c.stateTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Total number of orchestration state transitions",
		},
		[]string{"from_state", "to_state", "event"},
	)

	c.subtaskTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subtask_executions_total",
			Help:      "Total number of subtask executions",
		},
		[]string{"agent_id", "status"},
	)

	c.subtaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "subtask_execution_duration_seconds",
			Help:      "Subtask execution duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"agent_id"},
	)

	c.runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total number of orchestration runs",
		},
		[]string{"status"},
	)

	// 检查点指标
	c.checkpointSaves = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkpoint_saves_total",
			Help:      "Total number of checkpoint saves",
		},
		[]string{"status"},
	)

	// 审批指标
	c.approvalEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "approval_events_total",
			Help:      "Total number of approval gate events",
		},
		[]string{"type"},
	)

	// 共识面板指标
	c.panelEvaluations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "panel_evaluations_total",
			Help:      "Total number of consensus panel evaluations",
		},
		[]string{"confidence", "tie_break"},
	)

	// 执行台账指标
	c.ledgerHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_hits_total",
			Help:      "Total number of execution ledger hits",
		},
	)

	c.ledgerMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_misses_total",
			Help:      "Total number of execution ledger misses",
		},
	)

	// 数据库指标
	c.dbConnectionsOpen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_open",
			Help:      "Number of open database connections",
		},
		[]string{"database"},
	)

	c.dbConnectionsIdle = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_idle",
			Help:      "Number of idle database connections",
		},
		[]string{"database"},
	)

	c.dbQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "db_query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"database", "operation"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, requestSize, responseSize int64) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.httpRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// =============================================================================
// 🎭 编排指标记录
// =============================================================================

// RecordStateTransition 记录状态机转换
func (c *Collector) RecordStateTransition(fromState, toState, event string) {
	c.stateTransitions.WithLabelValues(fromState, toState, event).Inc()
}

// RecordSubtaskExecution 记录子任务执行
func (c *Collector) RecordSubtaskExecution(agentID, status string, duration time.Duration) {
	c.subtaskTotal.WithLabelValues(agentID, status).Inc()
	c.subtaskDuration.WithLabelValues(agentID).Observe(duration.Seconds())
}

// RecordRun 记录一次编排运行的结束状态
func (c *Collector) RecordRun(status string) {
	c.runsTotal.WithLabelValues(status).Inc()
}

// RecordCheckpointSave 记录检查点保存
func (c *Collector) RecordCheckpointSave(status string) {
	c.checkpointSaves.WithLabelValues(status).Inc()
}

// RecordApprovalEvent 记录审批事件
func (c *Collector) RecordApprovalEvent(eventType string) {
	c.approvalEvents.WithLabelValues(eventType).Inc()
}

// RecordPanelEvaluation 记录共识面板评估
func (c *Collector) RecordPanelEvaluation(confidence string, tieBreak bool) {
	tb := "false"
	if tieBreak {
		tb = "true"
	}
	c.panelEvaluations.WithLabelValues(confidence, tb).Inc()
}

// RecordLedgerHit 记录执行台账命中
func (c *Collector) RecordLedgerHit() {
	c.ledgerHits.Inc()
}

// RecordLedgerMiss 记录执行台账未命中
func (c *Collector) RecordLedgerMiss() {
	c.ledgerMisses.Inc()
}

// =============================================================================
// 🗄️ 数据库指标记录
// =============================================================================

// RecordDBConnections 记录数据库连接数
func (c *Collector) RecordDBConnections(database string, open, idle int) {
	c.dbConnectionsOpen.WithLabelValues(database).Set(float64(open))
	c.dbConnectionsIdle.WithLabelValues(database).Set(float64(idle))
}

// RecordDBQuery 记录数据库查询
func (c *Collector) RecordDBQuery(database, operation string, duration time.Duration) {
	c.dbQueryDuration.WithLabelValues(database, operation).Observe(duration.Seconds())
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
