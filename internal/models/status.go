package models

// OrderStatus - статус ордера в терминах шлюза
type OrderStatus string

const (
	StatusPendingSubmit OrderStatus = "PendingSubmit"
	StatusPendingCancel OrderStatus = "PendingCancel"
	StatusPreSubmitted  OrderStatus = "PreSubmitted"
	StatusSubmitted     OrderStatus = "Submitted"
	StatusApiPending    OrderStatus = "ApiPending"
	StatusApiCancelled  OrderStatus = "ApiCancelled"
	StatusCancelled     OrderStatus = "Cancelled"
	StatusFilled        OrderStatus = "Filled"
	StatusInactive      OrderStatus = "Inactive"

	// StatusError не приходит от шлюза: ставится в журнале тикеров,
	// когда шлюз отклонил отправку
	StatusError OrderStatus = "Error"
)

// IsPending возвращает true пока ордер ждёт исполнения
// (именно эти статусы блокируют повторный ордер по символу)
func (s OrderStatus) IsPending() bool {
	return s == StatusPendingSubmit || s == StatusPreSubmitted || s == StatusSubmitted
}

// IsTerminal возвращает true для статусов без дальнейших переходов
func (s OrderStatus) IsTerminal() bool {
	return s == StatusFilled || s == StatusCancelled || s == StatusApiCancelled
}

// IsCancelled возвращает true если отмена подтверждена шлюзом
func (s OrderStatus) IsCancelled() bool {
	return s == StatusCancelled || s == StatusApiCancelled
}

// ClosesOpenOrder возвращает true если ордер нужно убрать из таблицы открытых ордеров.
// PendingCancel сюда входит, хотя терминальным не является.
func (s OrderStatus) ClosesOpenOrder() bool {
	return s.IsTerminal() || s == StatusPendingCancel
}
