package orders

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"orderflow/internal/bus"
	"orderflow/internal/models"
)

// CancelOutcome - итог отмены ордера
type CancelOutcome string

const (
	// CancelConfirmed - шлюз подтвердил отмену (Cancelled/ApiCancelled)
	CancelConfirmed CancelOutcome = "confirmed"
	// CancelUnconfirmed - подтверждение не пришло за CancelTimeout
	CancelUnconfirmed CancelOutcome = "unconfirmed"
	// CancelNotFound - шлюз не нашёл ордер
	CancelNotFound CancelOutcome = "not_found"
	// CancelFailed - вызов шлюза завершился ошибкой
	CancelFailed CancelOutcome = "failed"
)

// OK возвращает true, если вызывающая сторона может считать ордер отменённым
func (o CancelOutcome) OK() bool {
	return o == CancelConfirmed || o == CancelUnconfirmed
}

type cancelResult struct {
	outcome CancelOutcome
	err     error
}

// cancelWaiter - ожидание подтверждения отмены
type cancelWaiter struct {
	orderID int64
	seq     uint64
	result  chan cancelResult
	timer   *time.Timer
}

type cancelTimeout struct {
	orderID int64
	seq     uint64
}

// Cancel отменяет ордер и ждёт первого из: подтверждения, ошибки "not found", таймаута.
// Подтверждение и таймаут убирают ордер из таблицы открытых ордеров.
func (c *Coordinator) Cancel(ctx context.Context, orderID int64) (CancelOutcome, error) {
	result := make(chan cancelResult, 1)

	if err := c.do(ctx, func() { c.startCancel(orderID, result) }); err != nil {
		return CancelFailed, err
	}

	select {
	case r := <-result:
		return r.outcome, r.err
	case <-ctx.Done():
		return CancelFailed, ctx.Err()
	case <-c.stopped:
		select {
		case r := <-result:
			return r.outcome, r.err
		default:
			return CancelFailed, ErrCoordinatorStopped
		}
	}
}

func (c *Coordinator) startCancel(orderID int64, result chan cancelResult) {
	if c.isLost() {
		result <- cancelResult{outcome: CancelFailed, err: errSessionLost}
		return
	}

	ctx, cancel := context.WithTimeout(c.ctx, c.cfg.CallTimeout)
	err := c.gw.CancelOrder(ctx, orderID)
	cancel()

	if err != nil {
		RecordCancel(CancelFailed)
		c.logger.Error("cancel order failed", zap.Int64("order_id", orderID), zap.Error(err))
		result <- cancelResult{outcome: CancelFailed, err: fmt.Errorf("%w: cancel order: %v", ErrGatewayUnavailable, err)}
		return
	}

	c.cancelSeq++
	w := &cancelWaiter{orderID: orderID, seq: c.cancelSeq, result: result}
	w.timer = time.AfterFunc(c.cfg.CancelTimeout, func() {
		select {
		case c.cancelTimeouts <- cancelTimeout{orderID: w.orderID, seq: w.seq}:
		case <-c.ctx.Done():
		}
	})
	c.cancels[orderID] = append(c.cancels[orderID], w)

	c.logger.Debug("cancel requested", zap.Int64("order_id", orderID))
}

// resolveCancels завершает все ожидания отмены ордера. false - ожиданий не было.
func (c *Coordinator) resolveCancels(orderID int64, outcome CancelOutcome, err error) bool {
	waiters := c.cancels[orderID]
	if len(waiters) == 0 {
		return false
	}
	delete(c.cancels, orderID)

	for _, w := range waiters {
		w.timer.Stop()
		w.result <- cancelResult{outcome: outcome, err: err}
	}
	c.finishCancel(orderID, outcome)
	return true
}

func (c *Coordinator) onCancelTimeout(t cancelTimeout) {
	waiters := c.cancels[t.orderID]
	for i, w := range waiters {
		if w.seq != t.seq {
			continue
		}
		waiters = append(waiters[:i:i], waiters[i+1:]...)
		if len(waiters) == 0 {
			delete(c.cancels, t.orderID)
		} else {
			c.cancels[t.orderID] = waiters
		}

		w.result <- cancelResult{outcome: CancelUnconfirmed}
		c.finishCancel(t.orderID, CancelUnconfirmed)
		c.publishOpenOrders()
		return
	}
}

func (c *Coordinator) finishCancel(orderID int64, outcome CancelOutcome) {
	RecordCancel(outcome)
	if outcome.OK() {
		c.table.Remove(orderID)
	}

	c.bus.Publish(bus.TopicOrderCancel, models.OrderCancelEvent{
		OrderID: orderID,
		Outcome: string(outcome),
	})

	c.logger.Info("cancel resolved",
		zap.Int64("order_id", orderID),
		zap.String("outcome", string(outcome)),
	)
}

// cancelAllWaiters завершает все ожидания отмены ошибкой (остановка координатора)
func (c *Coordinator) cancelAllWaiters(err error) {
	for id, waiters := range c.cancels {
		for _, w := range waiters {
			w.timer.Stop()
			w.result <- cancelResult{outcome: CancelFailed, err: err}
		}
		delete(c.cancels, id)
	}
}
