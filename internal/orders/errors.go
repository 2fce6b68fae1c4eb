package orders

import (
	"errors"

	"orderflow/internal/gateway"
)

// Отказы проверки запроса (DedupGuard)
var (
	ErrInvalidSymbol         = errors.New("order symbol is empty")
	ErrInvalidSize           = errors.New("order size is not a finite number")
	ErrDuplicatePendingOrder = errors.New("order for symbol is already pending")
	ErrDuplicateOpenOrder    = errors.New("open order for symbol and action already exists")
)

// Ошибки попытки отправки
var (
	ErrQueueEmpty           = errors.New("identifier granted but no request is queued")
	ErrMissingParameters    = gateway.ErrMissingParameters
	ErrUnsupportedOrderType = gateway.ErrUnsupportedOrderType
	ErrDuplicateTicker      = errors.New("ticker key already exists in ledger")
	ErrGrantTimeout         = errors.New("timed out waiting for next order id")
	ErrGatewayUnavailable   = errors.New("gateway call failed")
)

// Ошибки отмены и жизненного цикла
var (
	ErrCancelTargetNotFound = errors.New("order to cancel not found")
	ErrNoSession            = errors.New("no active gateway session")
	ErrCoordinatorStopped   = errors.New("order coordinator stopped")
)

// IsRejection возвращает true для отказов проверки, после которых запрос не ставится в очередь
func IsRejection(err error) bool {
	return errors.Is(err, ErrInvalidSymbol) ||
		errors.Is(err, ErrInvalidSize) ||
		errors.Is(err, ErrDuplicatePendingOrder) ||
		errors.Is(err, ErrDuplicateOpenOrder)
}
