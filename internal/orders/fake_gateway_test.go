package orders

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"orderflow/internal/bus"
	"orderflow/internal/gateway"
	"orderflow/internal/models"
)

type placedOrder struct {
	id       int64
	contract models.Contract
	order    models.Order
}

// fakeGateway - управляемый из теста шлюз
type fakeGateway struct {
	mu sync.Mutex

	events chan gateway.Event

	autoGrant  bool  // отвечать на RequestNextID сразу
	grantBase  int64 // следующий выдаваемый id в режиме autoGrant
	autoCancel bool  // подтверждать отмену событием Cancelled

	nextIDCalls []int64
	placed      []placedOrder
	cancels     []int64
	openReqs    int
	openOrders  []gateway.OpenOrder // ответ на RequestAllOpenOrders

	nextIDErr error
	placeErr  error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		events:    make(chan gateway.Event, 1024),
		autoGrant: true,
		grantBase: 100,
	}
}

func (f *fakeGateway) Name() string { return "fake" }

func (f *fakeGateway) Events() <-chan gateway.Event { return f.events }

func (f *fakeGateway) Close() error { return nil }

func (f *fakeGateway) emit(ev gateway.Event) {
	f.events <- ev
}

func (f *fakeGateway) RequestNextID(_ context.Context, hint int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.nextIDErr != nil {
		return f.nextIDErr
	}
	f.nextIDCalls = append(f.nextIDCalls, hint)
	if f.autoGrant {
		id := f.grantBase
		if hint > id {
			id = hint
		}
		f.grantBase = id + 2
		f.events <- gateway.NextValidID{OrderID: id}
	}
	return nil
}

func (f *fakeGateway) PlaceOrder(_ context.Context, id int64, contract models.Contract, order models.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.placeErr != nil {
		return f.placeErr
	}
	f.placed = append(f.placed, placedOrder{id: id, contract: contract, order: order})
	return nil
}

func (f *fakeGateway) CancelOrder(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.cancels = append(f.cancels, id)
	if f.autoCancel {
		f.events <- gateway.OrderStatus{StatusReport: models.StatusReport{OrderID: id, Status: models.StatusCancelled}}
	}
	return nil
}

func (f *fakeGateway) RequestAllOpenOrders(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.openReqs++
	for _, o := range f.openOrders {
		f.events <- o
	}
	f.events <- gateway.OpenOrderEnd{}
	return nil
}

func (f *fakeGateway) nextIDCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.nextIDCalls)
}

func (f *fakeGateway) placedOrders() []placedOrder {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]placedOrder, len(f.placed))
	copy(out, f.placed)
	return out
}

func (f *fakeGateway) set(fn func(f *fakeGateway)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

// ============ helpers ============

const waitFor = 2 * time.Second
const tick = 5 * time.Millisecond

func newTestCoordinator(t *testing.T, f *fakeGateway, mutate ...func(*Config)) (*Coordinator, *bus.Bus) {
	t.Helper()

	cfg := DefaultConfig()
	cfg.GrantTimeout = time.Second
	cfg.CancelTimeout = 100 * time.Millisecond
	for _, m := range mutate {
		m(&cfg)
	}

	b := bus.New(256, nil)
	c := NewCoordinator(f, b, cfg, nil)
	c.Start()

	t.Cleanup(func() {
		c.Stop()
		b.Close()
	})
	return c, b
}

// subscribe собирает события топика в канал
func subscribe[T any](t *testing.T, b *bus.Bus, topic bus.Topic) <-chan T {
	t.Helper()
	ch := make(chan T, 64)
	unsub := bus.Handle(b, topic, func(v T) { ch <- v })
	t.Cleanup(unsub)
	return ch
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(waitFor):
		t.Fatal("событие не получено")
		var zero T
		return zero
	}
}

func assertNoEvent[T any](t *testing.T, ch <-chan T, d time.Duration) {
	t.Helper()
	select {
	case v := <-ch:
		t.Fatalf("неожиданное событие: %+v", v)
	case <-time.After(d):
	}
}

func marketRequest(symbol string, action models.Action, size float64) models.OrderRequest {
	return models.OrderRequest{
		Symbol:     symbol,
		Action:     action,
		Size:       size,
		Type:       models.OrderTypeMarket,
		Parameters: []interface{}{string(action), size},
	}
}

func openOrderEvent(id int64, symbol string, action models.Action, status models.OrderStatus) gateway.OpenOrder {
	return gateway.OpenOrder{
		OrderID:  id,
		Contract: models.Contract{Symbol: symbol, SecType: models.ContractStock},
		Order:    models.Order{OrderID: id, Action: action, OrderType: models.OrderTypeMarket, TotalQuantity: 1},
		State:    models.OrderState{Status: status},
	}
}

func ledgerOf(t *testing.T, c *Coordinator) []models.TickerOrderRecord {
	t.Helper()
	recs, err := c.LedgerSnapshot(context.Background())
	require.NoError(t, err)
	return recs
}

func openOf(t *testing.T, c *Coordinator) []models.OpenOrderEntry {
	t.Helper()
	entries, err := c.OpenOrderSnapshot(context.Background())
	require.NoError(t, err)
	return entries
}

func statsOf(t *testing.T, c *Coordinator) Stats {
	t.Helper()
	s, err := c.Stats(context.Background())
	require.NoError(t, err)
	return s
}

func hasOpen(entries []models.OpenOrderEntry, id int64) bool {
	for _, e := range entries {
		if e.OrderID == id {
			return true
		}
	}
	return false
}

func nextValid(id int64) gateway.NextValidID {
	return gateway.NextValidID{OrderID: id}
}

// settle ждёт, пока координатор заберёт все события шлюза и обработает их
func settle(t *testing.T, c *Coordinator, f *fakeGateway) {
	t.Helper()
	require.Eventually(t, func() bool { return len(f.events) == 0 }, waitFor, tick)
	// событие обрабатывается до следующей команды
	statsOf(t, c)
}

func testTime() time.Time {
	return time.Date(2024, 3, 4, 16, 0, 0, 0, time.UTC)
}
