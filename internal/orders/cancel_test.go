package orders

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderflow/internal/bus"
	"orderflow/internal/gateway"
	"orderflow/internal/models"
)

func TestCancelOutcome_OK(t *testing.T) {
	tests := []struct {
		outcome CancelOutcome
		ok      bool
	}{
		{CancelConfirmed, true},
		{CancelUnconfirmed, true},
		{CancelNotFound, false},
		{CancelFailed, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.ok, tt.outcome.OK(), string(tt.outcome))
	}
}

func TestCancel_Confirmed(t *testing.T) {
	f := newFakeGateway()
	f.autoCancel = true
	c, b := newTestCoordinator(t, f, func(cfg *Config) { cfg.CancelTimeout = time.Second })
	cancels := subscribe[models.OrderCancelEvent](t, b, bus.TopicOrderCancel)

	f.emit(openOrderEvent(12, "AAPL", models.ActionBuy, models.StatusSubmitted))
	settle(t, c, f)

	outcome, err := c.Cancel(context.Background(), 12)
	require.NoError(t, err)
	assert.Equal(t, CancelConfirmed, outcome)
	assert.False(t, hasOpen(openOf(t, c), 12))

	ev := receive(t, cancels)
	assert.Equal(t, int64(12), ev.OrderID)
	assert.Equal(t, string(CancelConfirmed), ev.Outcome)

	f.set(func(f *fakeGateway) { assert.Equal(t, []int64{12}, f.cancels) })
}

func TestCancel_ConfirmedByOpenOrder(t *testing.T) {
	f := newFakeGateway()
	c, _ := newTestCoordinator(t, f, func(cfg *Config) { cfg.CancelTimeout = time.Second })

	f.emit(openOrderEvent(12, "AAPL", models.ActionBuy, models.StatusSubmitted))
	settle(t, c, f)

	done := make(chan CancelOutcome, 1)
	go func() {
		outcome, _ := c.Cancel(context.Background(), 12)
		done <- outcome
	}()

	require.Eventually(t, func() bool {
		var n int
		f.set(func(f *fakeGateway) { n = len(f.cancels) })
		return n == 1
	}, waitFor, tick)

	f.emit(openOrderEvent(12, "AAPL", models.ActionBuy, models.StatusApiCancelled))
	assert.Equal(t, CancelConfirmed, receive(t, done))
}

func TestCancel_ConfirmedByStatusPublishesTable(t *testing.T) {
	f := newFakeGateway()
	c, b := newTestCoordinator(t, f, func(cfg *Config) { cfg.CancelTimeout = time.Second })

	f.emit(openOrderEvent(12, "AAPL", models.ActionBuy, models.StatusSubmitted))
	settle(t, c, f)
	snapshots := subscribe[models.OpenOrdersEvent](t, b, bus.TopicOpenOrders)

	done := make(chan CancelOutcome, 1)
	go func() {
		outcome, _ := c.Cancel(context.Background(), 12)
		done <- outcome
	}()

	require.Eventually(t, func() bool {
		var n int
		f.set(func(f *fakeGateway) { n = len(f.cancels) })
		return n == 1
	}, waitFor, tick)

	f.emit(gateway.OrderStatus{StatusReport: models.StatusReport{OrderID: 12, Status: models.StatusCancelled}})
	assert.Equal(t, CancelConfirmed, receive(t, done))

	snap := receive(t, snapshots)
	assert.False(t, hasOpen(snap.Orders, 12), "снимок после подтверждения отмены без ордера")
}

func TestCancel_UnconfirmedAfterTimeout(t *testing.T) {
	f := newFakeGateway()
	c, b := newTestCoordinator(t, f)
	cancels := subscribe[models.OrderCancelEvent](t, b, bus.TopicOrderCancel)

	f.emit(openOrderEvent(12, "AAPL", models.ActionBuy, models.StatusSubmitted))
	settle(t, c, f)

	start := time.Now()
	outcome, err := c.Cancel(context.Background(), 12)
	require.NoError(t, err)
	assert.Equal(t, CancelUnconfirmed, outcome)
	assert.True(t, outcome.OK())
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)

	// без подтверждения ордер всё равно убран из таблицы
	assert.False(t, hasOpen(openOf(t, c), 12))

	ev := receive(t, cancels)
	assert.Equal(t, string(CancelUnconfirmed), ev.Outcome)
}

func TestCancel_NotFound(t *testing.T) {
	f := newFakeGateway()
	c, _ := newTestCoordinator(t, f, func(cfg *Config) { cfg.CancelTimeout = time.Second })

	f.emit(openOrderEvent(12, "AAPL", models.ActionBuy, models.StatusSubmitted))
	settle(t, c, f)

	done := make(chan error, 1)
	outcomes := make(chan CancelOutcome, 1)
	go func() {
		outcome, err := c.Cancel(context.Background(), 12)
		outcomes <- outcome
		done <- err
	}()

	require.Eventually(t, func() bool {
		var n int
		f.set(func(f *fakeGateway) { n = len(f.cancels) })
		return n == 1
	}, waitFor, tick)

	f.emit(&gateway.Error{
		ID:      12,
		Code:    gateway.CodeOrderCancelNotFound,
		Message: gateway.CancelNotFoundMessage(12),
	})

	assert.Equal(t, CancelNotFound, receive(t, outcomes))
	err := receive(t, done)
	require.ErrorIs(t, err, ErrCancelTargetNotFound)

	// not found не трогает таблицу
	assert.True(t, hasOpen(openOf(t, c), 12))
}

func TestCancel_NotFoundByMessage(t *testing.T) {
	f := newFakeGateway()
	c, _ := newTestCoordinator(t, f, func(cfg *Config) { cfg.CancelTimeout = time.Second })

	outcomes := make(chan CancelOutcome, 1)
	go func() {
		outcome, _ := c.Cancel(context.Background(), 77)
		outcomes <- outcome
	}()

	require.Eventually(t, func() bool {
		var n int
		f.set(func(f *fakeGateway) { n = len(f.cancels) })
		return n == 1
	}, waitFor, tick)

	f.emit(&gateway.Error{ID: 77, Code: 0, Message: gateway.CancelNotFoundMessage(77)})
	assert.Equal(t, CancelNotFound, receive(t, outcomes))
}

type failingCancelGateway struct {
	*fakeGateway
}

func (g failingCancelGateway) CancelOrder(context.Context, int64) error {
	return errors.New("broken pipe")
}

func TestCancel_GatewayFailure(t *testing.T) {
	f := newFakeGateway()
	b := bus.New(16, nil)
	c := NewCoordinator(failingCancelGateway{f}, b, DefaultConfig(), nil)
	c.Start()
	t.Cleanup(func() {
		c.Stop()
		b.Close()
	})

	outcome, err := c.Cancel(context.Background(), 5)
	assert.Equal(t, CancelFailed, outcome)
	require.ErrorIs(t, err, ErrGatewayUnavailable)
}

func TestCancel_StopResolvesWaiters(t *testing.T) {
	f := newFakeGateway()
	c, _ := newTestCoordinator(t, f, func(cfg *Config) { cfg.CancelTimeout = 5 * time.Second })

	type result struct {
		outcome CancelOutcome
		err     error
	}
	done := make(chan result, 1)
	go func() {
		outcome, err := c.Cancel(context.Background(), 9)
		done <- result{outcome, err}
	}()

	require.Eventually(t, func() bool {
		var n int
		f.set(func(f *fakeGateway) { n = len(f.cancels) })
		return n == 1
	}, waitFor, tick)

	c.Stop()

	r := receive(t, done)
	assert.Equal(t, CancelFailed, r.outcome)
	require.ErrorIs(t, r.err, ErrCoordinatorStopped)
}
