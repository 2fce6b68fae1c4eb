package orders

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ============================================================
// Prometheus метрики координатора ордеров
// ============================================================

// ============ Метрики латентности ============

// GrantLatency - время от запроса id до его получения от шлюза
var GrantLatency = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "orderflow",
		Subsystem: "orders",
		Name:      "grant_latency_ms",
		Help:      "Time from next id request to identifier grant in milliseconds",
		Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
	},
)

// SubmitLatency - время от постановки в очередь до отправки шлюзу
var SubmitLatency = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "orderflow",
		Subsystem: "orders",
		Name:      "submit_latency_ms",
		Help:      "Time from enqueue to gateway submission in milliseconds",
		Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
	},
)

// ============ Счётчики событий ============

// SubmissionsTotal - итоги запросов на размещение
var SubmissionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "orderflow",
		Subsystem: "orders",
		Name:      "submissions_total",
		Help:      "Total number of order submissions by result",
	},
	[]string{"result", "reason"}, // result: submitted, rejected, failed
)

// GrantsTotal - полученные от шлюза id
var GrantsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "orderflow",
		Subsystem: "orders",
		Name:      "grants_total",
		Help:      "Identifier grants by outcome",
	},
	[]string{"outcome"}, // used, ignored, timeout
)

// GatewayEventsTotal - обработанные события шлюза
var GatewayEventsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "orderflow",
		Subsystem: "orders",
		Name:      "gateway_events_total",
		Help:      "Gateway events processed by type",
	},
	[]string{"type"},
)

// CancelsTotal - итоги отмен
var CancelsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "orderflow",
		Subsystem: "orders",
		Name:      "cancels_total",
		Help:      "Cancel requests by outcome",
	},
	[]string{"outcome"}, // confirmed, unconfirmed, not_found, failed
)

// FillsTotal - исполненные ордера
var FillsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "orderflow",
		Subsystem: "orders",
		Name:      "fills_total",
		Help:      "Filled orders by kind",
	},
	[]string{"kind"}, // sale, fill
)

// ============ Метрики состояния ============

// QueueDepth - запросы в очереди на отправку
var QueueDepth = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "orderflow",
		Subsystem: "orders",
		Name:      "queue_depth",
		Help:      "Requests waiting for an identifier grant",
	},
)

// OpenOrdersGauge - размер таблицы открытых ордеров
var OpenOrdersGauge = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "orderflow",
		Subsystem: "orders",
		Name:      "open_orders",
		Help:      "Current number of open orders",
	},
)

// LedgerSize - размер журнала тикеров
var LedgerSize = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "orderflow",
		Subsystem: "orders",
		Name:      "ledger_records",
		Help:      "Current number of ticker ledger records",
	},
)

// ============ Вспомогательные функции ============

// RecordSubmission записывает итог запроса
func RecordSubmission(result string, err error) {
	reason := ""
	if err != nil {
		reason = rejectionReason(err)
	}
	SubmissionsTotal.WithLabelValues(result, reason).Inc()
}

// RecordGrant записывает полученный id
func RecordGrant(outcome string, latencyMs float64) {
	GrantsTotal.WithLabelValues(outcome).Inc()
	if outcome == "used" {
		GrantLatency.Observe(latencyMs)
	}
}

// RecordCancel записывает итог отмены
func RecordCancel(outcome CancelOutcome) {
	CancelsTotal.WithLabelValues(string(outcome)).Inc()
}

// UpdateStateGauges обновляет метрики состояния
func UpdateStateGauges(queue, open, ledger int) {
	QueueDepth.Set(float64(queue))
	OpenOrdersGauge.Set(float64(open))
	LedgerSize.Set(float64(ledger))
}
