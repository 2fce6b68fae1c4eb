package orders

import (
	"fmt"

	"go.uber.org/zap"

	"orderflow/internal/bus"
	"orderflow/internal/gateway"
	"orderflow/internal/models"
)

// handleEvent - точка входа всех событий шлюза (горутина координатора)
func (c *Coordinator) handleEvent(ev gateway.Event) {
	GatewayEventsTotal.WithLabelValues(ev.EventName()).Inc()

	switch e := ev.(type) {
	case gateway.NextValidID:
		c.onGrant(e.OrderID)
	case gateway.OpenOrder:
		c.onOpenOrder(e)
	case gateway.OpenOrderEnd:
		c.onOpenOrderEnd()
	case gateway.OrderStatus:
		c.onOrderStatus(e)
	case *gateway.Error:
		c.onGatewayError(e)
	default:
		c.logger.Warn("unknown gateway event", zap.String("event", ev.EventName()))
	}
}

// onOpenOrder: замена записи таблицы, обновление журнала тикеров, трансляция исполнения
func (c *Coordinator) onOpenOrder(e gateway.OpenOrder) {
	c.active.Store(true)

	entry := e.Entry()
	status := entry.State.Status

	if !c.table.Apply(entry) {
		c.logger.Debug("order closed, removed from open orders",
			zap.Int64("order_id", e.OrderID),
			zap.String("symbol", entry.Symbol()),
			zap.String("status", string(status)),
		)
	}

	for _, q := range c.queries {
		q.collect(entry)
	}

	c.updateLedger(e, entry)

	if status.IsCancelled() {
		c.resolveCancels(e.OrderID, CancelConfirmed, nil)
	}

	c.publishOpenOrders()
}

// updateLedger привязывает permId и статус к записи журнала тикеров
func (c *Coordinator) updateLedger(e gateway.OpenOrder, entry models.OpenOrderEntry) {
	rec, ok := c.ledger.FindByTickerID(e.OrderID)
	if !ok {
		rec, ok = c.ledger.FindByPermID(e.Order.PermID)
	}
	if !ok {
		return
	}

	now := c.now()
	prev := rec.Status
	status := entry.State.Status

	if e.Order.PermID != 0 {
		rec.PermID = e.Order.PermID
	}
	rec.Status = status
	rec.UpdatedAt = now
	c.ledger.Upsert(rec)

	if status == models.StatusFilled && prev != models.StatusFilled {
		c.translateFill(&rec, entry)
	}

	if c.cfg.Retention == RetentionEvictTerminal && evictable(status) {
		c.ledger.Remove(rec.TickerID)
		c.logger.Debug("ledger record evicted",
			zap.String("key", rec.Key),
			zap.String("status", string(status)),
		)
	}
}

// translateFill публикует ORDER_FILLED: с записью о продаже для выходной сделки
func (c *Coordinator) translateFill(rec *models.TickerOrderRecord, entry models.OpenOrderEntry) {
	ev, ok := TranslateFill(rec, entry, c.now())
	if !ok {
		return
	}

	if ev.Sale != nil {
		FillsTotal.WithLabelValues("sale").Inc()
		c.logger.Info("order filled, sale created",
			zap.String("symbol", entry.Symbol()),
			zap.String("action", string(entry.Action())),
			zap.Float64("qty", entry.Order.TotalQuantity),
			zap.Float64("profit", ev.Sale.Profit),
		)
	} else {
		FillsTotal.WithLabelValues("fill").Inc()
		c.logger.Info("order filled, no sale created",
			zap.String("symbol", entry.Symbol()),
			zap.String("action", string(entry.Action())),
			zap.Float64("qty", entry.Order.TotalQuantity),
		)
	}

	c.bus.Publish(bus.TopicOrderFilled, ev)
}

// onOrderStatus публикует нормализованный статус вместе с открытым ордером, если он известен
func (c *Coordinator) onOrderStatus(e gateway.OrderStatus) {
	report := e.StatusReport

	var order *models.OpenOrderEntry
	if entry, ok := c.table.Get(report.OrderID); ok {
		order = &entry
	}

	c.bus.Publish(bus.TopicOrderStatus, models.OrderStatusEvent{
		Order:       order,
		OrderStatus: report,
	})

	if report.Status.IsCancelled() && c.resolveCancels(report.OrderID, CancelConfirmed, nil) {
		c.publishOpenOrders()
	}
}

// onOpenOrderEnd: граница полного снимка. Завершает разовые запросы и публикует таблицу.
func (c *Coordinator) onOpenOrderEnd() {
	if len(c.queries) > 0 {
		// первый запрос зарегистрирован раньше всех и видел больше всего событий
		c.table.ReplaceAll(c.queries[0].entries)
		for _, q := range c.queries {
			q.resolve(q.entries, nil)
		}
		c.queries = nil
	}

	c.publishOpenOrders()
}

// evictable - статусы, после которых запись журнала тикеров больше не меняется
func evictable(s models.OrderStatus) bool {
	return s.IsTerminal() || s == models.StatusError
}

// onGatewayError: потеря связи, not found для отмены, отказ в размещении ордера из журнала
func (c *Coordinator) onGatewayError(e *gateway.Error) {
	switch e.Code {
	case gateway.CodeConnectivityLost:
		// события после потери связи относятся уже к следующей сессии
		c.detached = true
		c.dropSession("gateway connectivity lost", fmt.Errorf("%w: %s", ErrGatewayUnavailable, e.Message))
		return
	case gateway.CodeConnectivityRestored:
		c.logger.Info("gateway connectivity restored")
		return
	}

	if e.ID > 0 && e.IsCancelNotFound() {
		if c.resolveCancels(e.ID, CancelNotFound, fmt.Errorf("%w: order %d", ErrCancelTargetNotFound, e.ID)) {
			return
		}
	}

	if e.ID > 0 && !e.IsWarning() && !e.IsCancelNotFound() {
		if rec, ok := c.ledger.FindByTickerID(e.ID); ok {
			rec.Status = models.StatusError
			rec.UpdatedAt = c.now()
			c.ledger.Upsert(rec)
			c.logger.Warn("order rejected by gateway",
				zap.String("key", rec.Key),
				zap.Int("code", e.Code),
				zap.String("message", e.Message),
			)
			if c.cfg.Retention == RetentionEvictTerminal {
				c.ledger.Remove(rec.TickerID)
			}
			return
		}
	}

	c.logger.Warn("gateway error",
		zap.Int64("id", e.ID),
		zap.Int("code", e.Code),
		zap.String("message", e.Message),
	)
}

func (c *Coordinator) publishOpenOrders() {
	c.bus.Publish(bus.TopicOpenOrders, models.OpenOrdersEvent{Orders: c.table.Snapshot()})
}
