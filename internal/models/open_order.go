package models

// OpenOrderEntry - открытый ордер в том виде, в каком его прислал шлюз:
// ордер + контракт + состояние. Обновляется только целиком.
type OpenOrderEntry struct {
	OrderID  int64      `json:"order_id"`
	Contract Contract   `json:"contract"`
	Order    Order      `json:"order"`
	State    OrderState `json:"order_state"`
}

// Symbol возвращает символ инструмента
func (e OpenOrderEntry) Symbol() string {
	return e.Contract.Symbol
}

// Action возвращает направление ордера
func (e OpenOrderEntry) Action() Action {
	return e.Order.Action
}

// StatusReport - нормализованный статус ордера (payload события orderStatus)
type StatusReport struct {
	OrderID       int64       `json:"order_id"`
	Status        OrderStatus `json:"status"`
	Filled        float64     `json:"filled"`
	Remaining     float64     `json:"remaining"`
	AvgFillPrice  float64     `json:"avg_fill_price"`
	PermID        int64       `json:"perm_id"`
	ParentID      int64       `json:"parent_id"`
	LastFillPrice float64     `json:"last_fill_price"`
	ClientID      int64       `json:"client_id"`
	WhyHeld       string      `json:"why_held,omitempty"`
}
