package orders

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderflow/internal/bus"
	"orderflow/internal/gateway"
	"orderflow/internal/models"
)

func newTestSession(t *testing.T) (*SessionManager, *bus.Bus) {
	t.Helper()

	cfg := DefaultConfig()
	b := bus.New(64, nil)
	m := NewSessionManager(b, cfg, nil)
	m.Start()

	t.Cleanup(func() {
		m.Close()
		b.Close()
	})
	return m, b
}

func TestSession_NoSession(t *testing.T) {
	m, _ := newTestSession(t)
	ctx := context.Background()

	assert.False(t, m.Connected())

	_, err := m.Submit(ctx, marketRequest("AAPL", models.ActionBuy, 1), Options{})
	require.ErrorIs(t, err, ErrNoSession)

	outcome, err := m.Cancel(ctx, 1)
	require.ErrorIs(t, err, ErrNoSession)
	assert.Equal(t, CancelFailed, outcome)

	_, err = m.OpenOrders(ctx)
	require.ErrorIs(t, err, ErrNoSession)

	_, err = m.Stats(ctx)
	require.ErrorIs(t, err, ErrNoSession)
}

func TestSession_ConnectedViaBus(t *testing.T) {
	m, b := newTestSession(t)
	f := newFakeGateway()

	b.Publish(bus.TopicConnected, gateway.Gateway(f))
	require.Eventually(t, m.Connected, waitFor, tick)

	rec, err := m.Submit(context.Background(), marketRequest("AAPL", models.ActionBuy, 1), Options{})
	require.NoError(t, err)
	assert.Equal(t, "AAPL:101", rec.Key)

	recs, err := m.LedgerSnapshot(context.Background())
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestSession_PlaceOrderViaBus(t *testing.T) {
	m, b := newTestSession(t)
	f := newFakeGateway()
	m.Connect(f)

	submitted := subscribe[models.OrderSubmittedEvent](t, b, bus.TopicOrderSubmitted)

	b.Publish(bus.TopicPlaceOrder, models.PlaceOrderEvent{StockOrder: marketRequest("MSFT", models.ActionBuy, 3)})
	b.Publish(bus.TopicPlaceOrder, models.PlaceOrderEvent{StockOrder: marketRequest("TSLA", models.ActionSell, 4)})

	first := receive(t, submitted)
	second := receive(t, submitted)
	assert.Equal(t, "MSFT", first.Record.Symbol)
	assert.Equal(t, "TSLA", second.Record.Symbol)
	assert.Less(t, first.Record.TickerID, second.Record.TickerID)
}

func TestSession_PlaceOrderUnique(t *testing.T) {
	m, b := newTestSession(t)
	f := newFakeGateway()
	c := m.Connect(f)

	b.Publish(bus.TopicPlaceOrder, models.PlaceOrderEvent{StockOrder: marketRequest("MSFT", models.ActionBuy, 3), Unique: true})
	b.Publish(bus.TopicPlaceOrder, models.PlaceOrderEvent{StockOrder: marketRequest("MSFT", models.ActionBuy, 3), Unique: true})

	require.Eventually(t, func() bool { return len(ledgerOf(t, c)) == 1 }, waitFor, tick)
	require.Eventually(t, func() bool { return statsOf(t, c).Queued == 0 }, waitFor, tick)
	assert.Len(t, ledgerOf(t, c), 1)
}

func TestSession_Disconnect(t *testing.T) {
	m, b := newTestSession(t)
	f := newFakeGateway()
	c := m.Connect(f)
	require.True(t, m.Connected())

	b.Publish(bus.TopicDisconnected, nil)
	require.Eventually(t, func() bool { return !m.Connected() }, waitFor, tick)

	select {
	case <-c.Done():
	case <-time.After(waitFor):
		t.Fatal("координатор не остановлен")
	}
}

func TestSession_ReconnectStopsPrevious(t *testing.T) {
	m, _ := newTestSession(t)

	first := m.Connect(newFakeGateway())
	second := m.Connect(newFakeGateway())

	<-first.Done()

	current, err := m.Coordinator()
	require.NoError(t, err)
	assert.Same(t, second, current)
}

func TestSession_StreamClosedEndsSession(t *testing.T) {
	m, b := newTestSession(t)
	f := newFakeGateway()
	lost := subscribe[*Coordinator](t, b, bus.TopicDisconnected)

	c := m.Connect(f)
	require.True(t, m.Connected())

	close(f.events)

	assert.Same(t, c, receive(t, lost))
	require.Eventually(t, func() bool { return !m.Connected() }, waitFor, tick)
	<-c.Done()

	_, err := m.Submit(context.Background(), marketRequest("AAPL", models.ActionBuy, 1), Options{})
	require.ErrorIs(t, err, ErrNoSession)
}

func TestSession_ConnectivityLostAndRestored(t *testing.T) {
	m, b := newTestSession(t)
	f := newFakeGateway()
	lost := subscribe[*Coordinator](t, b, bus.TopicDisconnected)
	restored := subscribe[gateway.Gateway](t, b, bus.TopicConnected)

	first := m.Connect(f)
	ctx := context.Background()
	_, err := m.Submit(ctx, marketRequest("AAPL", models.ActionBuy, 1), Options{})
	require.NoError(t, err)
	f.emit(openOrderEvent(101, "AAPL", models.ActionBuy, models.StatusSubmitted))
	require.Eventually(t, func() bool { return hasOpen(openOf(t, first), 101) }, waitFor, tick)

	f.emit(&gateway.Error{Gateway: "fake", ID: -1, Code: gateway.CodeConnectivityLost, Message: "connectivity lost"})

	assert.Same(t, first, receive(t, lost))
	require.Eventually(t, func() bool { return !m.Connected() }, waitFor, tick)

	_, err = m.Submit(ctx, marketRequest("MSFT", models.ActionBuy, 1), Options{})
	require.ErrorIs(t, err, ErrNoSession)

	// событие из потерянной сессии не попадает в новую
	f.emit(openOrderEvent(555, "TSLA", models.ActionSell, models.StatusSubmitted))
	f.emit(&gateway.Error{Gateway: "fake", ID: -1, Code: gateway.CodeConnectivityRestored, Message: "connectivity restored"})

	assert.Same(t, gateway.Gateway(f), receive(t, restored))
	require.Eventually(t, m.Connected, waitFor, tick)

	second, err := m.Coordinator()
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Empty(t, openOf(t, second), "таблица открытых ордеров не переживает переподключение")
	assert.Empty(t, ledgerOf(t, second))

	rec, err := m.Submit(ctx, marketRequest("MSFT", models.ActionBuy, 1), Options{})
	require.NoError(t, err)
	assert.Equal(t, "MSFT", rec.Symbol)
}

func TestSession_StaleDisconnectIgnored(t *testing.T) {
	m, b := newTestSession(t)

	old := m.Connect(newFakeGateway())
	current := m.Connect(newFakeGateway())
	<-old.Done()

	b.Publish(bus.TopicDisconnected, old)
	assert.Never(t, func() bool { return !m.Connected() }, 100*time.Millisecond, tick)

	got, err := m.Coordinator()
	require.NoError(t, err)
	assert.Same(t, current, got)
}
