package orders

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"orderflow/internal/bus"
	"orderflow/internal/gateway"
	"orderflow/internal/models"
)

// SessionManager связывает жизнь координатора с сессией шлюза:
// координатор создаётся по CONNECTED и останавливается по DISCONNECTED.
//
// Потерю сессии, замеченную координатором, менеджер сам переводит в
// DISCONNECTED, а восстановление связи того же шлюза - в CONNECTED.
type SessionManager struct {
	bus    *bus.Bus
	cfg    Config
	logger *zap.Logger

	mu      sync.RWMutex
	current *Coordinator
	unsubs  []func()
	wg      sync.WaitGroup

	done      chan struct{}
	closeOnce sync.Once
}

// NewSessionManager создаёт менеджер сессий
func NewSessionManager(b *bus.Bus, cfg Config, logger *zap.Logger) *SessionManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionManager{
		bus:    b,
		cfg:    cfg.withDefaults(),
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Start подписывается на CONNECTED, DISCONNECTED и PLACE_ORDER
func (m *SessionManager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.unsubs = append(m.unsubs,
		bus.Handle(m.bus, bus.TopicConnected, func(gw gateway.Gateway) { m.Connect(gw) }),
		m.bus.Subscribe(bus.TopicDisconnected, m.onDisconnected),
		bus.Handle(m.bus, bus.TopicPlaceOrder, m.onPlaceOrder),
	)
}

// Connect создаёт координатор для шлюза, предыдущая сессия останавливается
func (m *SessionManager) Connect(gw gateway.Gateway) *Coordinator {
	c := NewCoordinator(gw, m.bus, m.cfg, m.logger)

	m.mu.Lock()
	prev := m.current
	m.current = c
	m.mu.Unlock()

	if prev != nil {
		prev.Stop()
	}
	c.Start()

	m.wg.Add(1)
	go m.watch(c, gw)

	m.logger.Info("gateway session connected", zap.String("gateway", gw.Name()))
	return c
}

// onDisconnected: payload *Coordinator - сессия, потерянная раньше; nil или
// шлюз - остановить текущую сессию
func (m *SessionManager) onDisconnected(ev bus.Event) {
	if c, ok := ev.Payload.(*Coordinator); ok {
		if m.release(c) {
			c.Stop()
			m.logger.Info("gateway session disconnected")
		}
		return
	}
	m.Disconnect()
}

// release снимает c с роли текущей сессии. false - c уже не текущая.
func (m *SessionManager) release(c *Coordinator) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != c {
		return false
	}
	m.current = nil
	return true
}

// watch ждёт потери сессии координатором
func (m *SessionManager) watch(c *Coordinator, gw gateway.Gateway) {
	defer m.wg.Done()

	select {
	case <-c.Lost():
	case <-c.Done():
		return
	case <-m.done:
		return
	}

	if !m.release(c) {
		return
	}
	c.Stop()
	m.logger.Warn("gateway session lost", zap.String("gateway", gw.Name()))
	m.bus.Publish(bus.TopicDisconnected, c)

	m.awaitRestore(gw)
}

// awaitRestore читает поток шлюза до восстановления связи. События между
// потерей и восстановлением относятся к потерянной сессии и отбрасываются.
func (m *SessionManager) awaitRestore(gw gateway.Gateway) {
	events := gw.Events()
	for {
		select {
		case <-m.done:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if e, isErr := ev.(*gateway.Error); isErr && e.Code == gateway.CodeConnectivityRestored {
				m.logger.Info("gateway connectivity restored, reconnecting session", zap.String("gateway", gw.Name()))
				m.bus.Publish(bus.TopicConnected, gw)
				return
			}
			m.logger.Debug("gateway event dropped while disconnected", zap.String("event", ev.EventName()))
		}
	}
}

// Disconnect останавливает координатор текущей сессии
func (m *SessionManager) Disconnect() {
	m.mu.Lock()
	c := m.current
	m.current = nil
	m.mu.Unlock()

	if c != nil {
		c.Stop()
		m.logger.Info("gateway session disconnected")
	}
}

// Coordinator возвращает координатор активной сессии
func (m *SessionManager) Coordinator() (*Coordinator, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.current == nil {
		return nil, ErrNoSession
	}
	return m.current, nil
}

// Connected сообщает, есть ли активная сессия
func (m *SessionManager) Connected() bool {
	_, err := m.Coordinator()
	return err == nil
}

// Submit размещает ордер в активной сессии
func (m *SessionManager) Submit(ctx context.Context, req models.OrderRequest, opts Options) (*models.TickerOrderRecord, error) {
	c, err := m.Coordinator()
	if err != nil {
		return nil, err
	}
	return c.Submit(ctx, req, opts)
}

// Cancel отменяет ордер в активной сессии
func (m *SessionManager) Cancel(ctx context.Context, orderID int64) (CancelOutcome, error) {
	c, err := m.Coordinator()
	if err != nil {
		return CancelFailed, err
	}
	return c.Cancel(ctx, orderID)
}

// OpenOrders выполняет разовый запрос открытых ордеров
func (m *SessionManager) OpenOrders(ctx context.Context) ([]models.OpenOrderEntry, error) {
	c, err := m.Coordinator()
	if err != nil {
		return nil, err
	}
	return c.OpenOrders(ctx)
}

// OpenOrderSnapshot возвращает текущую таблицу открытых ордеров
func (m *SessionManager) OpenOrderSnapshot(ctx context.Context) ([]models.OpenOrderEntry, error) {
	c, err := m.Coordinator()
	if err != nil {
		return nil, err
	}
	return c.OpenOrderSnapshot(ctx)
}

// LedgerSnapshot возвращает журнал тикеров
func (m *SessionManager) LedgerSnapshot(ctx context.Context) ([]models.TickerOrderRecord, error) {
	c, err := m.Coordinator()
	if err != nil {
		return nil, err
	}
	return c.LedgerSnapshot(ctx)
}

// Stats возвращает состояние координатора
func (m *SessionManager) Stats(ctx context.Context) (Stats, error) {
	c, err := m.Coordinator()
	if err != nil {
		return Stats{}, err
	}
	return c.Stats(ctx)
}

// onPlaceOrder ставит запрос с шины в очередь. Порядок постановки совпадает
// с порядком событий, итог ждётся отдельно.
func (m *SessionManager) onPlaceOrder(ev models.PlaceOrderEvent) {
	c, err := m.Coordinator()
	if err != nil {
		m.logger.Warn("place order without session",
			zap.String("symbol", ev.StockOrder.Symbol),
			zap.Error(err),
		)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.CallTimeout)
	result, err := c.Enqueue(ctx, ev.StockOrder, Options{Unique: ev.Unique})
	cancel()
	if err != nil {
		m.logger.Warn("place order enqueue failed",
			zap.String("symbol", ev.StockOrder.Symbol),
			zap.Error(err),
		)
		return
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		select {
		case out := <-result:
			if out.Err != nil {
				m.logger.Warn("place order failed",
					zap.String("symbol", ev.StockOrder.Symbol),
					zap.Error(out.Err),
				)
				return
			}
			m.logger.Info("place order submitted", zap.String("key", out.Record.Key))
		case <-c.Done():
		case <-time.After(m.cfg.GrantTimeout + m.cfg.CallTimeout):
		}
	}()
}

// Close отписывается от шины и останавливает активную сессию
func (m *SessionManager) Close() {
	m.mu.Lock()
	unsubs := m.unsubs
	m.unsubs = nil
	m.mu.Unlock()

	for _, u := range unsubs {
		u()
	}
	m.closeOnce.Do(func() { close(m.done) })
	m.Disconnect()
	m.wg.Wait()
}
