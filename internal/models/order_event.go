package models

import "time"

// OrderEventRecord - строка журнала жизненного цикла ордеров (таблица order_events).
// Журнал хранит только статусы, сами сделки (SaleRecord) не сохраняются.
type OrderEventRecord struct {
	ID        string      `json:"id" db:"id"`                 // ULID
	Kind      string      `json:"kind" db:"kind"`             // submitted, status, filled, cancel
	OrderID   int64       `json:"order_id" db:"order_id"`     // ticker id или id брокера
	PermID    int64       `json:"perm_id" db:"perm_id"`
	Symbol    string      `json:"symbol" db:"symbol"`
	Action    string      `json:"action" db:"action"`         // BUY, SELL
	Status    OrderStatus `json:"status" db:"status"`
	Filled    float64     `json:"filled" db:"filled"`
	AvgPrice  float64     `json:"avg_price" db:"avg_price"`   // средняя цена исполнения
	Detail    string      `json:"detail,omitempty" db:"detail"` // исход отмены, причина удержания
	CreatedAt time.Time   `json:"created_at" db:"created_at"`
}

// Виды событий журнала
const (
	OrderEventSubmitted = "submitted"
	OrderEventStatus    = "status"
	OrderEventFilled    = "filled"
	OrderEventCancel    = "cancel"
)
