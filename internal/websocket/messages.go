package websocket

import (
	"time"

	"orderflow/internal/bus"
	"orderflow/internal/models"
)

// MessageType определяет тип WebSocket сообщения
type MessageType string

// Типы WebSocket сообщений
const (
	// MessageTypeOpenOrders - полная таблица открытых ордеров после каждого изменения
	MessageTypeOpenOrders MessageType = "openOrders"

	// MessageTypeOrderStatus - изменение статуса ордера
	MessageTypeOrderStatus MessageType = "orderStatus"

	// MessageTypeOrderFilled - ордер исполнен, с записью о продаже для выхода из позиции
	MessageTypeOrderFilled MessageType = "orderFilled"

	// MessageTypeOrderSubmitted - ордер получил тикер и отправлен шлюзу
	MessageTypeOrderSubmitted MessageType = "orderSubmitted"

	// MessageTypeOrderCancel - итог отмены ордера
	MessageTypeOrderCancel MessageType = "orderCancel"
)

// BaseMessage - базовая структура для всех WebSocket сообщений
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
}

// OpenOrdersMessage - снимок таблицы открытых ордеров
type OpenOrdersMessage struct {
	BaseMessage
	Orders []models.OpenOrderEntry `json:"orders"`
}

// OrderStatusMessage - изменение статуса ордера
type OrderStatusMessage struct {
	BaseMessage
	Order       *models.OpenOrderEntry `json:"order,omitempty"`
	OrderStatus models.StatusReport    `json:"order_status"`
}

// OrderFilledMessage - исполнение ордера
type OrderFilledMessage struct {
	BaseMessage
	Sale  *models.SaleRecord    `json:"sale,omitempty"`
	Order models.OpenOrderEntry `json:"order"`
}

// OrderSubmittedMessage - запись журнала тикеров для отправленного ордера
type OrderSubmittedMessage struct {
	BaseMessage
	Record models.TickerOrderRecord `json:"record"`
}

// OrderCancelMessage - итог отмены
type OrderCancelMessage struct {
	BaseMessage
	OrderID int64  `json:"order_id"`
	Outcome string `json:"outcome"`
}

// NewStreamMessage переводит событие шины в сообщение клиенту.
// nil для payload неизвестного типа.
func NewStreamMessage(ev bus.Event) interface{} {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	base := func(t MessageType) BaseMessage {
		return BaseMessage{Type: t, Timestamp: at}
	}

	switch p := ev.Payload.(type) {
	case models.OpenOrdersEvent:
		orders := p.Orders
		if orders == nil {
			orders = []models.OpenOrderEntry{}
		}
		return &OpenOrdersMessage{BaseMessage: base(MessageTypeOpenOrders), Orders: orders}

	case models.OrderStatusEvent:
		return &OrderStatusMessage{
			BaseMessage: base(MessageTypeOrderStatus),
			Order:       p.Order,
			OrderStatus: p.OrderStatus,
		}

	case models.OrderFilledEvent:
		return &OrderFilledMessage{
			BaseMessage: base(MessageTypeOrderFilled),
			Sale:        p.Sale,
			Order:       p.Order,
		}

	case models.OrderSubmittedEvent:
		return &OrderSubmittedMessage{BaseMessage: base(MessageTypeOrderSubmitted), Record: p.Record}

	case models.OrderCancelEvent:
		return &OrderCancelMessage{
			BaseMessage: base(MessageTypeOrderCancel),
			OrderID:     p.OrderID,
			Outcome:     p.Outcome,
		}
	}

	return nil
}
