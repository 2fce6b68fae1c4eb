package bus

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PublishedTotal - опубликованные события по топикам
var PublishedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "orderflow",
		Subsystem: "bus",
		Name:      "published_total",
		Help:      "Total number of events published on the bus",
	},
	[]string{"topic"},
)

// DroppedTotal - события, отброшенные из-за переполнения буфера подписчика
var DroppedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "orderflow",
		Subsystem: "bus",
		Name:      "dropped_total",
		Help:      "Number of events dropped because a subscriber buffer was full",
	},
	[]string{"topic"},
)

// HandlerPanics - паники в обработчиках подписчиков
var HandlerPanics = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "orderflow",
		Subsystem: "bus",
		Name:      "handler_panics_total",
		Help:      "Number of recovered panics in bus handlers",
	},
	[]string{"topic"},
)

// SubscribersGauge - текущее количество подписчиков
var SubscribersGauge = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "orderflow",
		Subsystem: "bus",
		Name:      "subscribers",
		Help:      "Current number of subscribers per topic",
	},
	[]string{"topic"},
)

func typeName(v interface{}) string {
	if v == nil {
		return "nil"
	}
	return fmt.Sprintf("%T", v)
}
