package models

// ContractKind - тип инструмента (secType в терминах шлюза)
type ContractKind string

const (
	ContractStock  ContractKind = "STK"
	ContractOption ContractKind = "OPT"
	ContractFuture ContractKind = "FUT"
	ContractForex  ContractKind = "CASH"
	ContractCFD    ContractKind = "CFD"
	ContractCombo  ContractKind = "BAG"
	ContractIndex  ContractKind = "IND"
	ContractFOP    ContractKind = "FOP"
)

// Contract - дескриптор инструмента, который передаётся шлюзу
type Contract struct {
	ConID       int64        `json:"con_id,omitempty"`
	Symbol      string       `json:"symbol"`
	SecType     ContractKind `json:"sec_type"`
	Exchange    string       `json:"exchange,omitempty"`
	Currency    string       `json:"currency,omitempty"`
	Expiry      string       `json:"expiry,omitempty"` // lastTradeDateOrContractMonth
	Strike      float64      `json:"strike,omitempty"`
	Right       string       `json:"right,omitempty"`
	Multiplier  string       `json:"multiplier,omitempty"`
	LocalSymbol string       `json:"local_symbol,omitempty"`
}

// Order - команда ордера в формате шлюза
type Order struct {
	OrderID         int64     `json:"order_id,omitempty"`
	ClientID        int64     `json:"client_id,omitempty"`
	PermID          int64     `json:"perm_id,omitempty"`
	ParentID        int64     `json:"parent_id,omitempty"`
	Action          Action    `json:"action"`
	TotalQuantity   float64   `json:"total_quantity"`
	OrderType       OrderType `json:"order_type"`
	LmtPrice        float64   `json:"lmt_price,omitempty"`
	AuxPrice        float64   `json:"aux_price,omitempty"`
	TrailingPercent float64   `json:"trailing_percent,omitempty"`
	TIF             string    `json:"tif,omitempty"`
	Transmit        bool      `json:"transmit"`
}

// OrderState - состояние ордера, которое шлюз присылает вместе с openOrder
type OrderState struct {
	Status             OrderStatus `json:"status"`
	Commission         float64     `json:"commission,omitempty"`
	CommissionCurrency string      `json:"commission_currency,omitempty"`
	WarningText        string      `json:"warning_text,omitempty"`
}
