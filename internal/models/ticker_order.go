package models

import (
	"strconv"
	"time"
)

// TickerOrderRecord - запись журнала тикеров: связывает короткоживущий
// ticker id с запросом стратегии и постоянным id брокера
type TickerOrderRecord struct {
	Key      string        `json:"key"`       // symbol:tickerId
	TickerID int64         `json:"ticker_id"` // id выданный шлюзом для отправки
	PermID   int64         `json:"perm_id,omitempty"`
	Symbol   string        `json:"symbol"`
	Status   OrderStatus   `json:"status"`
	Request  *OrderRequest `json:"request,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TickerKey формирует составной ключ записи журнала
func TickerKey(symbol string, tickerID int64) string {
	return symbol + ":" + strconv.FormatInt(tickerID, 10)
}
