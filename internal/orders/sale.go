package orders

import (
	"time"

	"orderflow/internal/models"
	"orderflow/pkg/utils"
)

// NewSale строит запись о продаже по выходному запросу.
// Profit = EntryPrice - ExitPrice, знак сохранён как есть.
func NewSale(req models.OrderRequest, now time.Time) *models.SaleRecord {
	sale := &models.SaleRecord{
		ID:      utils.NewID(now),
		Symbol:  req.Symbol,
		Capital: req.Capital,
	}
	if ep := req.ExitParams; ep != nil {
		sale.EntryPrice = ep.EntryPrice
		sale.ExitPrice = ep.ExitPrice
		sale.EntryTime = ep.EntryTime
		sale.ExitTime = ep.ExitTime
	}
	sale.Profit = sale.EntryPrice - sale.ExitPrice
	return sale
}

// TranslateFill переводит исполнение ордера в событие ORDER_FILLED.
// Для ордера без записи в журнале тикеров события нет (ok == false).
func TranslateFill(rec *models.TickerOrderRecord, order models.OpenOrderEntry, now time.Time) (ev models.OrderFilledEvent, ok bool) {
	if rec == nil {
		return models.OrderFilledEvent{}, false
	}

	ev = models.OrderFilledEvent{Order: order}
	if rec.Request != nil && rec.Request.ExitTrade {
		ev.Sale = NewSale(*rec.Request, now)
	}
	return ev, true
}
