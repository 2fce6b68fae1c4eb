package models

import "time"

// SaleRecord - завершённая сделка, созданная по исполнению выходного ордера
type SaleRecord struct {
	ID         string    `json:"id"`
	Symbol     string    `json:"symbol"`
	Capital    float64   `json:"capital"`
	EntryPrice float64   `json:"entry_price"`
	ExitPrice  float64   `json:"exit_price"`
	EntryTime  time.Time `json:"entry_time"`
	ExitTime   time.Time `json:"exit_time"`

	// Profit = EntryPrice - ExitPrice.
	// Знак сохранён как в исходной системе (для лонга выглядит инвертированным).
	Profit float64 `json:"profit"`
}
