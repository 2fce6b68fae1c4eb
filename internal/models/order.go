package models

import (
	"math"
	"time"
)

// Action - направление ордера
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

// OrderType - тип ордера в терминах шлюза
type OrderType string

const (
	OrderTypeMarket          OrderType = "MKT"
	OrderTypeLimit           OrderType = "LMT"
	OrderTypeStop            OrderType = "STP"
	OrderTypeStopLimit       OrderType = "STP LMT"
	OrderTypeTrailingStop    OrderType = "TRAIL"
	OrderTypeMarketOnClose   OrderType = "MOC"
	OrderTypeLimitOnClose    OrderType = "LOC"
	OrderTypeMarketIfTouched OrderType = "MIT"
	OrderTypeLimitIfTouched  OrderType = "LIT"
)

// OrderRequest представляет запрос стратегии на размещение ордера
//
// После постановки в очередь не меняется: очередь хранит копию по значению.
type OrderRequest struct {
	Symbol string    `json:"symbol" yaml:"symbol"`
	Action Action    `json:"action" yaml:"action"`
	Size   float64   `json:"size" yaml:"size"`
	Type   OrderType `json:"type" yaml:"type"`

	// Позиционные параметры команды ордера (количество, лимит, стоп ...).
	// Числовые значения передаются в команду по порядку, остальные игнорируются.
	Parameters []interface{} `json:"parameters" yaml:"parameters"`

	// Описание инструмента
	Contract ContractKind `json:"contract,omitempty" yaml:"contract,omitempty"`
	Expiry   string       `json:"expiry,omitempty" yaml:"expiry,omitempty"`
	Strike   float64      `json:"strike,omitempty" yaml:"strike,omitempty"`
	Right    string       `json:"right,omitempty" yaml:"right,omitempty"` // C или P
	Currency string       `json:"currency,omitempty" yaml:"currency,omitempty"`
	Exchange string       `json:"exchange,omitempty" yaml:"exchange,omitempty"`

	// Метаданные выхода из сделки
	ExitTrade  bool        `json:"exit_trade,omitempty" yaml:"exit_trade,omitempty"`
	Capital    float64     `json:"capital,omitempty" yaml:"capital,omitempty"`
	ExitParams *ExitParams `json:"exit_params,omitempty" yaml:"exit_params,omitempty"`
}

// ExitParams - цены и время входа/выхода закрываемой сделки
type ExitParams struct {
	EntryPrice float64   `json:"entry_price" yaml:"entry_price"`
	ExitPrice  float64   `json:"exit_price" yaml:"exit_price"`
	EntryTime  time.Time `json:"entry_time" yaml:"entry_time"`
	ExitTime   time.Time `json:"exit_time" yaml:"exit_time"`
}

// HasFiniteSize проверяет что размер - конечное число
func (r OrderRequest) HasFiniteSize() bool {
	return !math.IsNaN(r.Size) && !math.IsInf(r.Size, 0)
}

// NumericParameters возвращает числовые параметры в исходном порядке
func (r OrderRequest) NumericParameters() []float64 {
	out := make([]float64, 0, len(r.Parameters))
	for _, p := range r.Parameters {
		switch v := p.(type) {
		case float64:
			out = append(out, v)
		case float32:
			out = append(out, float64(v))
		case int:
			out = append(out, float64(v))
		case int64:
			out = append(out, float64(v))
		case int32:
			out = append(out, float64(v))
		}
	}
	return out
}

// Clone возвращает глубокую копию запроса (срез параметров и ExitParams не разделяются)
func (r OrderRequest) Clone() OrderRequest {
	c := r
	if r.Parameters != nil {
		c.Parameters = make([]interface{}, len(r.Parameters))
		copy(c.Parameters, r.Parameters)
	}
	if r.ExitParams != nil {
		ep := *r.ExitParams
		c.ExitParams = &ep
	}
	return c
}
