package orders

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"orderflow/internal/bus"
	"orderflow/internal/gateway"
	"orderflow/internal/models"
)

// Config - параметры координатора ордеров
type Config struct {
	GrantTimeout  time.Duration // ожидание id от шлюза
	CancelTimeout time.Duration // ожидание подтверждения отмены
	CallTimeout   time.Duration // таймаут одного вызова шлюза
	Retention     Retention
	CommandBuffer int
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() Config {
	return Config{
		GrantTimeout:  10 * time.Second,
		CancelTimeout: 2 * time.Second,
		CallTimeout:   5 * time.Second,
		Retention:     RetentionEvictTerminal,
		CommandBuffer: 64,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.GrantTimeout <= 0 {
		c.GrantTimeout = def.GrantTimeout
	}
	if c.CancelTimeout <= 0 {
		c.CancelTimeout = def.CancelTimeout
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = def.CallTimeout
	}
	if c.Retention == "" {
		c.Retention = def.Retention
	}
	if c.CommandBuffer <= 0 {
		c.CommandBuffer = def.CommandBuffer
	}
	return c
}

// Stats - состояние координатора для UI и health
type Stats struct {
	QueueState    QueueState `json:"queue_state"`
	Queued        int        `json:"queued"`
	OpenOrders    int        `json:"open_orders"`
	LedgerRecords int        `json:"ledger_records"`
	Active        bool       `json:"active"`
	LastTickerID  int64      `json:"last_ticker_id"`
}

// Coordinator - координатор жизненного цикла ордеров одной сессии шлюза
//
// Всё состояние (очередь, журнал тикеров, таблица открытых ордеров, ожидания)
// принадлежит одной горутине run. Вызовы извне и события шлюза
// сериализуются через каналы, блокировки состояния не нужны.
type Coordinator struct {
	cfg    Config
	gw     gateway.Gateway
	bus    *bus.Bus
	logger *zap.Logger
	now    func() time.Time

	ctx            context.Context
	cancel         context.CancelFunc
	cmds           chan func()
	grantTimeouts  chan uint64
	cancelTimeouts chan cancelTimeout
	stopped        chan struct{}
	lost           chan struct{}
	lostOnce       sync.Once
	startOnce      sync.Once
	stopOnce       sync.Once
	active         atomic.Bool

	// состояние горутины run
	queue      *submissionQueue
	ledger     *Ledger
	table      *OpenOrderTable
	grantTimer *time.Timer
	detached   bool
	cancels    map[int64][]*cancelWaiter
	cancelSeq  uint64
	queries    []*openOrdersQuery
}

// NewCoordinator создаёт координатор для сессии шлюза
func NewCoordinator(gw gateway.Gateway, b *bus.Bus, cfg Config, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	return &Coordinator{
		cfg:            cfg,
		gw:             gw,
		bus:            b,
		logger:         logger.With(zap.String("component", "orders"), zap.String("gateway", gw.Name())),
		now:            time.Now,
		ctx:            ctx,
		cancel:         cancel,
		cmds:           make(chan func(), cfg.CommandBuffer),
		grantTimeouts:  make(chan uint64, 1),
		cancelTimeouts: make(chan cancelTimeout, 16),
		stopped:        make(chan struct{}),
		lost:           make(chan struct{}),
		queue:          newSubmissionQueue(),
		ledger:         NewLedger(),
		table:          NewOpenOrderTable(),
		cancels:        make(map[int64][]*cancelWaiter),
	}
}

// Start запускает горутину координатора
func (c *Coordinator) Start() {
	c.startOnce.Do(func() {
		c.logger.Info("order coordinator started",
			zap.Duration("grant_timeout", c.cfg.GrantTimeout),
			zap.Duration("cancel_timeout", c.cfg.CancelTimeout),
			zap.String("retention", string(c.cfg.Retention)),
		)
		go c.run()
	})
}

// Stop останавливает координатор. Ожидающие вызовы получают ErrCoordinatorStopped.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() {
		c.cancel()
		c.startOnce.Do(func() { close(c.stopped) })
		<-c.stopped
		c.logger.Info("order coordinator stopped")
	})
}

// Done закрывается после остановки координатора
func (c *Coordinator) Done() <-chan struct{} {
	return c.stopped
}

// Lost закрывается, когда сессия шлюза потеряна: поток событий закрыт или
// шлюз сообщил о потере связи. Координатор после этого события шлюза не читает.
func (c *Coordinator) Lost() <-chan struct{} {
	return c.lost
}

// Active возвращает true после первого openOrder в этой сессии
func (c *Coordinator) Active() bool {
	return c.active.Load()
}

// Submit ставит запрос в очередь и ждёт итога его попытки отправки.
// Отмена ctx прекращает ожидание, но не снимает запрос с очереди.
func (c *Coordinator) Submit(ctx context.Context, req models.OrderRequest, opts Options) (*models.TickerOrderRecord, error) {
	result, err := c.Enqueue(ctx, req, opts)
	if err != nil {
		return nil, err
	}

	select {
	case out := <-result:
		return out.Record, out.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.stopped:
		select {
		case out := <-result:
			return out.Record, out.Err
		default:
			return nil, ErrCoordinatorStopped
		}
	}
}

// Enqueue ставит запрос в очередь и возвращает канал с итогом попытки
func (c *Coordinator) Enqueue(ctx context.Context, req models.OrderRequest, opts Options) (<-chan SubmitOutcome, error) {
	p := &pendingRequest{
		req:        req.Clone(),
		opts:       opts,
		result:     make(chan SubmitOutcome, 1),
		enqueuedAt: c.now(),
	}

	if err := c.do(ctx, func() { c.enqueue(p) }); err != nil {
		return nil, err
	}
	return p.result, nil
}

// OpenOrders - разовый запрос снимка у шлюза: собирает ожидающие ордера до
// openOrderEnd и заменяет ими таблицу открытых ордеров
func (c *Coordinator) OpenOrders(ctx context.Context) ([]models.OpenOrderEntry, error) {
	q := newOpenOrdersQuery()

	if err := c.do(ctx, func() { c.startOpenOrdersQuery(q) }); err != nil {
		return nil, err
	}

	select {
	case r := <-q.result:
		return r.entries, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.stopped:
		select {
		case r := <-q.result:
			return r.entries, r.err
		default:
			return nil, ErrCoordinatorStopped
		}
	}
}

// OpenOrderSnapshot возвращает текущую таблицу открытых ордеров
func (c *Coordinator) OpenOrderSnapshot(ctx context.Context) ([]models.OpenOrderEntry, error) {
	return call(ctx, c, func() []models.OpenOrderEntry { return c.table.Snapshot() })
}

// LedgerSnapshot возвращает записи журнала тикеров
func (c *Coordinator) LedgerSnapshot(ctx context.Context) ([]models.TickerOrderRecord, error) {
	return call(ctx, c, func() []models.TickerOrderRecord { return c.ledger.Snapshot() })
}

// Stats возвращает состояние координатора
func (c *Coordinator) Stats(ctx context.Context) (Stats, error) {
	return call(ctx, c, func() Stats {
		return Stats{
			QueueState:    c.queue.state,
			Queued:        c.queue.Len(),
			OpenOrders:    c.table.Len(),
			LedgerRecords: c.ledger.Len(),
			Active:        c.active.Load(),
			LastTickerID:  c.queue.lastID,
		}
	})
}

// do передаёт функцию в горутину координатора
func (c *Coordinator) do(ctx context.Context, fn func()) error {
	select {
	case <-c.ctx.Done():
		return ErrCoordinatorStopped
	default:
	}

	select {
	case c.cmds <- fn:
		return nil
	case <-c.ctx.Done():
		return ErrCoordinatorStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// call выполняет fn в горутине координатора и возвращает результат
func call[T any](ctx context.Context, c *Coordinator, fn func() T) (T, error) {
	var zero T
	res := make(chan T, 1)

	if err := c.do(ctx, func() { res <- fn() }); err != nil {
		return zero, err
	}

	select {
	case v := <-res:
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-c.stopped:
		select {
		case v := <-res:
			return v, nil
		default:
			return zero, ErrCoordinatorStopped
		}
	}
}

// run - единственная горутина, владеющая состоянием координатора
func (c *Coordinator) run() {
	defer close(c.stopped)

	events := c.gw.Events()
	for {
		select {
		case <-c.ctx.Done():
			c.shutdown()
			return
		case fn := <-c.cmds:
			fn()
		case ev, ok := <-events:
			if !ok {
				events = nil
				c.onGatewayClosed()
				continue
			}
			c.handleEvent(ev)
			if c.detached {
				events = nil
			}
		case gen := <-c.grantTimeouts:
			c.onGrantTimeout(gen)
		case t := <-c.cancelTimeouts:
			c.onCancelTimeout(t)
		}

		UpdateStateGauges(c.queue.Len(), c.table.Len(), c.ledger.Len())
	}
}

// ============ Очередь отправки ============

func (c *Coordinator) enqueue(p *pendingRequest) {
	if c.isLost() {
		p.resolve(nil, errSessionLost)
		return
	}
	if err := CanSubmit(p.req, p.opts, c.ledger, c.table, c.queue); err != nil {
		c.logger.Warn("order rejected",
			zap.String("symbol", p.req.Symbol),
			zap.String("action", string(p.req.Action)),
			zap.Bool("unique", p.opts.Unique),
			zap.Error(err),
		)
		RecordSubmission("rejected", err)
		p.resolve(nil, err)
		return
	}

	c.queue.push(p)

	if c.queue.state == QueueAwaitingIdentifier {
		c.logger.Debug("awaiting identifier, request queued",
			zap.String("symbol", p.req.Symbol),
			zap.Int("queued", c.queue.Len()),
		)
		return
	}

	c.requestGrant()
}

// requestGrant запрашивает у шлюза ровно один id
func (c *Coordinator) requestGrant() {
	if err := c.queue.transition(QueueAwaitingIdentifier); err != nil {
		c.logger.Error("queue state", zap.Error(err))
		return
	}
	c.queue.grantRequested = c.now()

	hint := c.queue.nextHint()
	ctx, cancel := context.WithTimeout(c.ctx, c.cfg.CallTimeout)
	err := c.gw.RequestNextID(ctx, hint)
	cancel()

	if err != nil {
		_ = c.queue.transition(QueueIdle)
		c.logger.Error("request next id failed", zap.Int64("hint", hint), zap.Error(err))
		c.failQueued(fmt.Errorf("%w: request next id: %v", ErrGatewayUnavailable, err))
		return
	}

	c.armGrantTimer()
}

func (c *Coordinator) armGrantTimer() {
	c.queue.grantGen++
	gen := c.queue.grantGen
	c.grantTimer = time.AfterFunc(c.cfg.GrantTimeout, func() {
		select {
		case c.grantTimeouts <- gen:
		case <-c.ctx.Done():
		}
	})
}

// disarmGrantTimer отключает ожидание; поздний таймер будет проигнорирован по поколению
func (c *Coordinator) disarmGrantTimer() {
	if c.grantTimer != nil {
		c.grantTimer.Stop()
		c.grantTimer = nil
	}
	c.queue.grantGen++
}

// onGrant: каждый полученный id расходуется ровно на одну попытку
func (c *Coordinator) onGrant(id int64) {
	if c.queue.state != QueueAwaitingIdentifier {
		RecordGrant("ignored", 0)
		c.logger.Debug("identifier grant ignored", zap.Int64("order_id", id))
		return
	}

	c.disarmGrantTimer()
	RecordGrant("used", float64(c.now().Sub(c.queue.grantRequested).Microseconds())/1000)

	p, rec, err := c.attempt(id + 1)
	_ = c.queue.transition(QueueIdle)

	if p != nil {
		p.resolve(rec, err)
	}

	if c.queue.Len() > 0 {
		c.requestGrant()
	}
}

// attempt отправляет голову очереди с ticker id. Отказ не повторяется.
func (c *Coordinator) attempt(tickerID int64) (*pendingRequest, *models.TickerOrderRecord, error) {
	c.queue.observe(tickerID)

	p, ok := c.queue.pop()
	if !ok {
		c.logger.Warn("identifier granted but queue is empty", zap.Int64("ticker_id", tickerID))
		RecordSubmission("failed", ErrQueueEmpty)
		return nil, nil, ErrQueueEmpty
	}
	req := p.req

	fail := func(err error) (*pendingRequest, *models.TickerOrderRecord, error) {
		c.logger.Warn("order submission aborted",
			zap.String("symbol", req.Symbol),
			zap.Int64("ticker_id", tickerID),
			zap.Error(err),
		)
		RecordSubmission("failed", err)
		return p, nil, err
	}

	if len(req.Parameters) == 0 {
		return fail(ErrMissingParameters)
	}
	if existing, ok := c.ledger.FindByTickerID(tickerID); ok {
		return fail(fmt.Errorf("%w: %s", ErrDuplicateTicker, existing.Key))
	}

	contract := gateway.BuildContract(req)
	order, err := gateway.BuildOrder(req)
	if err != nil {
		return fail(err)
	}
	order.OrderID = tickerID

	ctx, cancel := context.WithTimeout(c.ctx, c.cfg.CallTimeout)
	err = c.gw.PlaceOrder(ctx, tickerID, contract, order)
	cancel()
	if err != nil {
		return fail(fmt.Errorf("%w: place order: %v", ErrGatewayUnavailable, err))
	}

	now := c.now()
	c.ledger.Upsert(models.TickerOrderRecord{
		TickerID:  tickerID,
		Symbol:    req.Symbol,
		Status:    models.StatusPendingSubmit,
		Request:   &req,
		CreatedAt: now,
		UpdatedAt: now,
	})
	rec, _ := c.ledger.FindByTickerID(tickerID)
	out := copyRecord(&rec)

	ctx, cancel = context.WithTimeout(c.ctx, c.cfg.CallTimeout)
	if err := c.gw.RequestAllOpenOrders(ctx); err != nil {
		c.logger.Warn("open orders refresh failed", zap.Error(err))
	}
	cancel()

	RecordSubmission("submitted", nil)
	SubmitLatency.Observe(float64(now.Sub(p.enqueuedAt).Microseconds()) / 1000)

	c.bus.Publish(bus.TopicOrderSubmitted, models.OrderSubmittedEvent{Record: copyRecord(&rec)})

	c.logger.Info("order placed",
		zap.String("key", rec.Key),
		zap.String("symbol", req.Symbol),
		zap.String("action", string(req.Action)),
		zap.String("type", string(req.Type)),
		zap.Float64("size", req.Size),
		zap.String("sec_type", string(contract.SecType)),
	)

	return p, &out, nil
}

func (c *Coordinator) onGrantTimeout(gen uint64) {
	if gen != c.queue.grantGen || c.queue.state != QueueAwaitingIdentifier {
		return
	}
	c.grantTimer = nil
	c.queue.grantGen++
	RecordGrant("timeout", 0)

	p, ok := c.queue.pop()
	_ = c.queue.transition(QueueIdle)

	if ok {
		c.logger.Warn("identifier grant timed out",
			zap.String("symbol", p.req.Symbol),
			zap.Duration("timeout", c.cfg.GrantTimeout),
		)
		RecordSubmission("failed", ErrGrantTimeout)
		p.resolve(nil, ErrGrantTimeout)
	}

	if c.queue.Len() > 0 {
		c.requestGrant()
	}
}

// failQueued завершает все запросы очереди ошибкой
func (c *Coordinator) failQueued(err error) {
	for _, p := range c.queue.drain() {
		RecordSubmission("failed", err)
		p.resolve(nil, err)
	}
}

// ============ Разовый запрос открытых ордеров ============

type openOrdersResult struct {
	entries []models.OpenOrderEntry
	err     error
}

// openOrdersQuery собирает только ожидающие ордера до openOrderEnd
type openOrdersQuery struct {
	index   map[int64]int
	entries []models.OpenOrderEntry
	result  chan openOrdersResult
}

func newOpenOrdersQuery() *openOrdersQuery {
	return &openOrdersQuery{
		index:  make(map[int64]int),
		result: make(chan openOrdersResult, 1),
	}
}

func (q *openOrdersQuery) collect(e models.OpenOrderEntry) {
	if !e.State.Status.IsPending() {
		return
	}
	if i, ok := q.index[e.OrderID]; ok {
		q.entries[i] = e
		return
	}
	q.index[e.OrderID] = len(q.entries)
	q.entries = append(q.entries, e)
}

func (q *openOrdersQuery) resolve(entries []models.OpenOrderEntry, err error) {
	if entries == nil && err == nil {
		entries = []models.OpenOrderEntry{}
	}
	q.result <- openOrdersResult{entries: entries, err: err}
}

func (c *Coordinator) startOpenOrdersQuery(q *openOrdersQuery) {
	if c.isLost() {
		q.resolve(nil, errSessionLost)
		return
	}
	ctx, cancel := context.WithTimeout(c.ctx, c.cfg.CallTimeout)
	err := c.gw.RequestAllOpenOrders(ctx)
	cancel()

	if err != nil {
		q.resolve(nil, fmt.Errorf("%w: request open orders: %v", ErrGatewayUnavailable, err))
		return
	}
	c.queries = append(c.queries, q)
}

// ============ Завершение ============

// onGatewayClosed: поток событий шлюза закрыт, новых id не будет
func (c *Coordinator) onGatewayClosed() {
	c.dropSession("gateway event stream closed", fmt.Errorf("%w: event stream closed", ErrGatewayUnavailable))
}

// errSessionLost - ответ на вызовы, пришедшие после потери сессии
var errSessionLost = fmt.Errorf("%w: session lost", ErrGatewayUnavailable)

func (c *Coordinator) isLost() bool {
	select {
	case <-c.lost:
		return true
	default:
		return false
	}
}

// dropSession завершает всё, что ждёт шлюз, и сообщает о потере сессии
func (c *Coordinator) dropSession(reason string, err error) {
	c.logger.Error(reason,
		zap.Int("queued", c.queue.Len()),
		zap.Int("cancels", len(c.cancels)),
	)

	c.disarmGrantTimer()
	if c.queue.state == QueueAwaitingIdentifier {
		_ = c.queue.transition(QueueIdle)
	}
	c.failQueued(err)
	c.cancelAllWaiters(err)
	for _, q := range c.queries {
		q.resolve(nil, err)
	}
	c.queries = nil

	c.lostOnce.Do(func() { close(c.lost) })
}

func (c *Coordinator) shutdown() {
	c.disarmGrantTimer()
	c.failQueued(ErrCoordinatorStopped)
	c.cancelAllWaiters(ErrCoordinatorStopped)
	for _, q := range c.queries {
		q.resolve(nil, ErrCoordinatorStopped)
	}
	c.queries = nil

	// команды, принятые до остановки, но не выполненные
	for {
		select {
		case <-c.cmds:
		default:
			UpdateStateGauges(0, 0, 0)
			return
		}
	}
}
