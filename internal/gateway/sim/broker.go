package sim

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"orderflow/internal/gateway"
	"orderflow/internal/models"
)

// ErrClosed возвращается после Close
var ErrClosed = errors.New("sim gateway closed")

// Config - параметры симулятора брокера
type Config struct {
	StartID      int64         // первый выдаваемый id ордера
	AutoFill     bool          // исполнять рыночные ордера автоматически
	FillDelay    time.Duration // задержка автоисполнения
	DefaultPrice float64       // цена исполнения, если цена символа не задана
	ClientID     int64
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() Config {
	return Config{
		StartID:      1,
		AutoFill:     true,
		FillDelay:    200 * time.Millisecond,
		DefaultPrice: 100,
		ClientID:     0,
	}
}

// simOrder - ордер внутри симулятора
type simOrder struct {
	id       int64
	permID   int64
	contract models.Contract
	order    models.Order
	status   models.OrderStatus
	filled   float64
	avgPrice float64
}

// Broker - брокер в памяти процесса, реализующий gateway.Gateway
//
// События отдаются через внутреннюю неограниченную очередь, поэтому вызовы
// шлюза никогда не блокируются на потребителе Events().
type Broker struct {
	cfg    Config
	logger *zap.Logger

	mu         sync.Mutex
	orders     map[int64]*simOrder
	prices     map[string]float64
	nextID     int64
	nextPermID int64
	closed     bool

	queueMu sync.Mutex
	queue   []gateway.Event
	notify  chan struct{}

	events chan gateway.Event
	done   chan struct{}
	wg     sync.WaitGroup
}

// New создаёт симулятор
func New(cfg Config, logger *zap.Logger) *Broker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.StartID <= 0 {
		cfg.StartID = 1
	}
	if cfg.DefaultPrice <= 0 {
		cfg.DefaultPrice = 100
	}

	b := &Broker{
		cfg:        cfg,
		logger:     logger.With(zap.String("gateway", "sim")),
		orders:     make(map[int64]*simOrder),
		prices:     make(map[string]float64),
		nextID:     cfg.StartID,
		nextPermID: 1_000_000,
		notify:     make(chan struct{}, 1),
		events:     make(chan gateway.Event, 64),
		done:       make(chan struct{}),
	}

	b.wg.Add(1)
	go b.pump()

	return b
}

// Name возвращает имя шлюза
func (b *Broker) Name() string {
	return gateway.ModeSim
}

// Events возвращает канал событий
func (b *Broker) Events() <-chan gateway.Event {
	return b.events
}

// SetPrice задаёт цену исполнения для символа
func (b *Broker) SetPrice(symbol string, price float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prices[symbol] = price
}

// RequestNextID выдаёт id не меньше hint и не пересекающийся с уже использованными
func (b *Broker) RequestNextID(ctx context.Context, hint int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	id := b.nextID
	if hint > id {
		id = hint
	}
	b.nextID = id + 1
	b.mu.Unlock()

	b.emit(gateway.NextValidID{OrderID: id})
	return nil
}

// PlaceOrder принимает ордер и публикует Submitted
func (b *Broker) PlaceOrder(ctx context.Context, id int64, contract models.Contract, order models.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	if _, exists := b.orders[id]; exists {
		b.mu.Unlock()
		b.emit(&gateway.Error{
			Gateway: gateway.ModeSim,
			ID:      id,
			Code:    gateway.CodeNoValidID,
			Message: "Duplicate order id",
		})
		return nil
	}

	b.nextPermID++
	order.OrderID = id
	order.PermID = b.nextPermID
	order.ClientID = b.cfg.ClientID

	so := &simOrder{
		id:       id,
		permID:   b.nextPermID,
		contract: contract,
		order:    order,
		status:   models.StatusSubmitted,
	}
	b.orders[id] = so
	if id >= b.nextID {
		b.nextID = id + 1
	}
	openEv, statusEv := b.snapshotLocked(so)
	autoFill := b.cfg.AutoFill && order.OrderType == models.OrderTypeMarket
	if autoFill {
		b.wg.Add(1)
	}
	b.mu.Unlock()

	b.logger.Debug("order accepted",
		zap.Int64("order_id", id),
		zap.String("symbol", contract.Symbol),
		zap.String("action", string(order.Action)),
		zap.Float64("qty", order.TotalQuantity),
	)

	b.emit(openEv)
	b.emit(statusEv)

	if autoFill {
		go func() {
			defer b.wg.Done()
			select {
			case <-time.After(b.cfg.FillDelay):
				_ = b.Fill(id, 0)
			case <-b.done:
			}
		}()
	}

	return nil
}

// CancelOrder отменяет ордер; для неизвестного ордера шлюз присылает ошибку 10147
func (b *Broker) CancelOrder(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	so, ok := b.orders[id]
	if !ok || so.status.IsTerminal() {
		b.mu.Unlock()
		b.emit(&gateway.Error{
			Gateway: gateway.ModeSim,
			ID:      id,
			Code:    gateway.CodeOrderCancelNotFound,
			Message: gateway.CancelNotFoundMessage(id),
		})
		return nil
	}
	so.status = models.StatusCancelled
	statusEv, openEv := b.statusFirstLocked(so)
	b.mu.Unlock()

	b.emit(statusEv)
	b.emit(openEv)
	return nil
}

// RequestAllOpenOrders публикует все неисполненные ордера и OpenOrderEnd
func (b *Broker) RequestAllOpenOrders(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	evs := make([]gateway.Event, 0, len(b.orders)+1)
	for _, so := range b.orders {
		if so.status.IsTerminal() {
			continue
		}
		open, _ := b.snapshotLocked(so)
		evs = append(evs, open)
	}
	b.mu.Unlock()

	evs = append(evs, gateway.OpenOrderEnd{})
	b.emit(evs...)
	return nil
}

// Fill исполняет ордер полностью. price <= 0 - цена символа или цена по умолчанию.
func (b *Broker) Fill(id int64, price float64) error {
	b.mu.Lock()
	so, ok := b.orders[id]
	if !ok {
		b.mu.Unlock()
		return errors.New("sim: order not found")
	}
	if so.status.IsTerminal() {
		b.mu.Unlock()
		return nil
	}
	if price <= 0 {
		price = b.prices[so.contract.Symbol]
	}
	if price <= 0 {
		price = b.cfg.DefaultPrice
	}
	so.status = models.StatusFilled
	so.filled = so.order.TotalQuantity
	so.avgPrice = price
	statusEv, openEv := b.statusFirstLocked(so)
	b.mu.Unlock()

	b.logger.Debug("order filled", zap.Int64("order_id", id), zap.Float64("price", price))

	b.emit(statusEv)
	b.emit(openEv)
	return nil
}

// Reject отклоняет ордер с ошибкой шлюза
func (b *Broker) Reject(id int64, message string) {
	b.mu.Lock()
	if so, ok := b.orders[id]; ok {
		so.status = models.StatusInactive
	}
	b.mu.Unlock()

	b.emit(&gateway.Error{
		Gateway: gateway.ModeSim,
		ID:      id,
		Code:    gateway.CodeOrderRejected,
		Message: message,
	})
}

// Close останавливает симулятор и закрывает канал событий
func (b *Broker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	close(b.done)
	b.wg.Wait()
	close(b.events)
	return nil
}

func (b *Broker) snapshotLocked(so *simOrder) (gateway.OpenOrder, gateway.OrderStatus) {
	open := gateway.OpenOrder{
		OrderID:  so.id,
		Contract: so.contract,
		Order:    so.order,
		State:    models.OrderState{Status: so.status},
	}
	status := gateway.OrderStatus{StatusReport: models.StatusReport{
		OrderID:       so.id,
		Status:        so.status,
		Filled:        so.filled,
		Remaining:     so.order.TotalQuantity - so.filled,
		AvgFillPrice:  so.avgPrice,
		PermID:        so.permID,
		LastFillPrice: so.avgPrice,
		ClientID:      so.order.ClientID,
	}}
	return open, status
}

// statusFirstLocked - порядок событий при смене статуса: orderStatus, затем openOrder
func (b *Broker) statusFirstLocked(so *simOrder) (gateway.Event, gateway.Event) {
	open, status := b.snapshotLocked(so)
	return status, open
}

// emit ставит события во внутреннюю очередь
func (b *Broker) emit(evs ...gateway.Event) {
	b.queueMu.Lock()
	b.queue = append(b.queue, evs...)
	b.queueMu.Unlock()

	select {
	case b.notify <- struct{}{}:
	default:
	}
}

// pump переносит события из очереди в канал Events() в порядке emit
func (b *Broker) pump() {
	defer b.wg.Done()

	for {
		b.queueMu.Lock()
		batch := b.queue
		b.queue = nil
		b.queueMu.Unlock()

		for _, ev := range batch {
			select {
			case b.events <- ev:
			case <-b.done:
				return
			}
		}

		select {
		case <-b.notify:
		case <-b.done:
			return
		}
	}
}
