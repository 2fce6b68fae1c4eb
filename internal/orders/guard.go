package orders

import (
	"errors"
	"fmt"

	"orderflow/internal/models"
)

// Options - параметры размещения ордера
type Options struct {
	// Unique - не более одного ожидающего/открытого ордера на символ
	Unique bool `json:"unique"`
}

// queuedSymbols сообщает, стоит ли запрос по символу в очереди на отправку
type queuedSymbols interface {
	HasSymbol(symbol string) bool
}

// CanSubmit проверяет, может ли запрос быть поставлен в очередь.
// Состояние не меняет; nil означает разрешение.
func CanSubmit(req models.OrderRequest, opts Options, ledger *Ledger, table *OpenOrderTable, queued queuedSymbols) error {
	if req.Symbol == "" {
		return ErrInvalidSymbol
	}
	if !req.HasFiniteSize() {
		return fmt.Errorf("%w: size=%v symbol=%s", ErrInvalidSize, req.Size, req.Symbol)
	}

	if !opts.Unique {
		return nil
	}

	if ledger.HasPending(req.Symbol) || (queued != nil && queued.HasSymbol(req.Symbol)) {
		return fmt.Errorf("%w: action=%s symbol=%s", ErrDuplicatePendingOrder, req.Action, req.Symbol)
	}
	if table.HasSymbolAction(req.Symbol, req.Action) {
		return fmt.Errorf("%w: action=%s symbol=%s", ErrDuplicateOpenOrder, req.Action, req.Symbol)
	}

	return nil
}

// rejectionReason - метка отказа для метрик
func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidSymbol):
		return "invalid_symbol"
	case errors.Is(err, ErrInvalidSize):
		return "invalid_size"
	case errors.Is(err, ErrDuplicatePendingOrder):
		return "duplicate_pending"
	case errors.Is(err, ErrDuplicateOpenOrder):
		return "duplicate_open"
	case errors.Is(err, ErrQueueEmpty):
		return "queue_empty"
	case errors.Is(err, ErrMissingParameters):
		return "missing_parameters"
	case errors.Is(err, ErrUnsupportedOrderType):
		return "unsupported_type"
	case errors.Is(err, ErrDuplicateTicker):
		return "duplicate_ticker"
	case errors.Is(err, ErrGrantTimeout):
		return "grant_timeout"
	case errors.Is(err, ErrGatewayUnavailable):
		return "gateway_unavailable"
	case errors.Is(err, ErrCoordinatorStopped):
		return "stopped"
	default:
		return "other"
	}
}
