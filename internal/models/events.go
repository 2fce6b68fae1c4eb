package models

// Payload событий внутренней шины. Топики описаны в internal/bus.

// OpenOrdersEvent - снимок таблицы открытых ордеров (OPEN_ORDERS)
type OpenOrdersEvent struct {
	Orders []OpenOrderEntry `json:"orders"`
}

// OrderStatusEvent - нормализованный статус + найденный открытый ордер (ORDER_STATUS).
// Order == nil если ордера нет в таблице.
type OrderStatusEvent struct {
	Order       *OpenOrderEntry `json:"order"`
	OrderStatus StatusReport    `json:"order_status"`
}

// OrderFilledEvent - исполненный ордер и, для выходных сделок, запись о продаже (ORDER_FILLED)
type OrderFilledEvent struct {
	Sale  *SaleRecord    `json:"sale"`
	Order OpenOrderEntry `json:"order"`
}

// OrderSubmittedEvent - ордер отправлен шлюзу и записан в журнал тикеров (ORDER_SUBMITTED)
type OrderSubmittedEvent struct {
	Record TickerOrderRecord `json:"record"`
}

// OrderCancelEvent - итог отмены ордера (ORDER_CANCEL)
type OrderCancelEvent struct {
	OrderID int64  `json:"order_id"`
	Outcome string `json:"outcome"` // confirmed, unconfirmed, not_found
}

// PlaceOrderEvent - команда стратегии разместить ордер (PLACE_ORDER)
type PlaceOrderEvent struct {
	StockOrder OrderRequest `json:"stock_order"`
	Unique     bool         `json:"unique"`
}
