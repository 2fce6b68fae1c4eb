package gateway

import (
	"context"
	"fmt"
	"strings"

	"orderflow/internal/models"
)

// Gateway определяет интерфейс брокерской сессии, через которую идут ордера
//
// Все вызовы fire-and-forget: подтверждения приходят асинхронно через Events().
type Gateway interface {
	// Name возвращает имя реализации шлюза
	Name() string

	// RequestNextID запрашивает следующий свободный id ордера.
	// На каждый вызов шлюз присылает ровно одно событие NextValidID.
	RequestNextID(ctx context.Context, hint int64) error

	// PlaceOrder отправляет ордер с выданным id
	PlaceOrder(ctx context.Context, id int64, contract models.Contract, order models.Order) error

	// CancelOrder отменяет ордер по id
	CancelOrder(ctx context.Context, id int64) error

	// RequestAllOpenOrders запрашивает все открытые ордера:
	// поток OpenOrder, затем один OpenOrderEnd
	RequestAllOpenOrders(ctx context.Context) error

	// Events возвращает канал событий шлюза
	Events() <-chan Event

	// Close закрывает сессию
	Close() error
}

// Event - событие шлюза. Реализации: NextValidID, OpenOrder, OpenOrderEnd, OrderStatus, *Error.
type Event interface {
	EventName() string
}

// NextValidID - выдан id для следующего ордера
type NextValidID struct {
	OrderID int64 `json:"order_id"`
}

// OpenOrder - ордер из набора открытых ордеров шлюза
type OpenOrder struct {
	OrderID  int64             `json:"order_id"`
	Contract models.Contract   `json:"contract"`
	Order    models.Order      `json:"order"`
	State    models.OrderState `json:"order_state"`
}

// OpenOrderEnd - конец снимка открытых ордеров
type OpenOrderEnd struct{}

// OrderStatus - изменение статуса ордера
type OrderStatus struct {
	models.StatusReport
}

func (NextValidID) EventName() string  { return "nextValidId" }
func (OpenOrder) EventName() string    { return "openOrder" }
func (OpenOrderEnd) EventName() string { return "openOrderEnd" }
func (OrderStatus) EventName() string  { return "orderStatus" }
func (*Error) EventName() string       { return "error" }

// Entry переводит событие в запись таблицы открытых ордеров
func (o OpenOrder) Entry() models.OpenOrderEntry {
	return models.OpenOrderEntry{
		OrderID:  o.OrderID,
		Contract: o.Contract,
		Order:    o.Order,
		State:    o.State,
	}
}

// Коды ошибок шлюза
const (
	CodeNoValidID            = 103   // дубликат id ордера
	CodeCannotFindOrder      = 135   // не найден ордер с таким id
	CodeNotConnected         = 504   // нет соединения
	CodeOrderCancelNotFound  = 10147 // ордер для отмены не найден
	CodeOrderRejected        = 201   // ордер отклонён
	CodeConnectivityLost     = 1100
	CodeConnectivityRestored = 1102
)

// Error представляет ошибку шлюза. Одновременно событие потока Events().
type Error struct {
	Gateway  string
	ID       int64 // id ордера/запроса, -1 если ошибка не относится к ордеру
	Code     int
	Message  string
	Original error
}

func (e *Error) Error() string {
	if e.ID > 0 {
		return fmt.Sprintf("%s: [%d] order %d: %s", e.Gateway, e.Code, e.ID, e.Message)
	}
	return fmt.Sprintf("%s: [%d] %s", e.Gateway, e.Code, e.Message)
}

// Unwrap возвращает оригинальную ошибку для поддержки errors.Is() и errors.As()
func (e *Error) Unwrap() error {
	return e.Original
}

// IsCancelNotFound сообщает, что шлюз не нашёл ордер для отмены
func (e *Error) IsCancelNotFound() bool {
	if e.Code == CodeOrderCancelNotFound || e.Code == CodeCannotFindOrder {
		return true
	}
	return strings.Contains(e.Message, "needs to be cancelled is not found")
}

// IsWarning сообщает, что ошибка информационная и не означает отказа по ордеру
func (e *Error) IsWarning() bool {
	return e.Code == 399 || (e.Code >= 2100 && e.Code < 2200)
}

// CancelNotFoundMessage - текст ошибки шлюза при отмене неизвестного ордера
func CancelNotFoundMessage(id int64) string {
	return fmt.Sprintf("OrderId %d that needs to be cancelled is not found", id)
}
