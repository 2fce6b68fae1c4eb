package orders

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"orderflow/internal/models"
)

type symbolSet map[string]bool

func (s symbolSet) HasSymbol(symbol string) bool { return s[symbol] }

func TestCanSubmit(t *testing.T) {
	ledger := NewLedger()
	ledger.Upsert(models.TickerOrderRecord{TickerID: 1, Symbol: "PEND", Status: models.StatusSubmitted})
	ledger.Upsert(models.TickerOrderRecord{TickerID: 2, Symbol: "DONE", Status: models.StatusFilled})
	ledger.Upsert(models.TickerOrderRecord{TickerID: 3, Symbol: "ERR", Status: models.StatusError})

	table := NewOpenOrderTable()
	table.Apply(models.OpenOrderEntry{
		OrderID:  10,
		Contract: models.Contract{Symbol: "OPEN"},
		Order:    models.Order{Action: models.ActionBuy},
		State:    models.OrderState{Status: models.StatusSubmitted},
	})

	queued := symbolSet{"QUEUED": true}

	tests := []struct {
		name   string
		req    models.OrderRequest
		unique bool
		want   error
	}{
		{"valid", marketRequest("AAPL", models.ActionBuy, 1), false, nil},
		{"empty symbol", marketRequest("", models.ActionBuy, 1), false, ErrInvalidSymbol},
		{"NaN size", marketRequest("AAPL", models.ActionBuy, math.NaN()), false, ErrInvalidSize},
		{"Inf size", marketRequest("AAPL", models.ActionBuy, math.Inf(1)), true, ErrInvalidSize},
		{"zero size allowed by guard", marketRequest("AAPL", models.ActionBuy, 0), false, nil},
		{"pending ledger, unique", marketRequest("PEND", models.ActionSell, 1), true, ErrDuplicatePendingOrder},
		{"pending ledger, not unique", marketRequest("PEND", models.ActionSell, 1), false, nil},
		{"filled ledger, unique", marketRequest("DONE", models.ActionBuy, 1), true, nil},
		{"error ledger, unique", marketRequest("ERR", models.ActionBuy, 1), true, nil},
		{"queued symbol, unique", marketRequest("QUEUED", models.ActionBuy, 1), true, ErrDuplicatePendingOrder},
		{"open same action, unique", marketRequest("OPEN", models.ActionBuy, 1), true, ErrDuplicateOpenOrder},
		{"open other action, unique", marketRequest("OPEN", models.ActionSell, 1), true, nil},
		{"open same action, not unique", marketRequest("OPEN", models.ActionBuy, 1), false, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CanSubmit(tt.req, Options{Unique: tt.unique}, ledger, table, queued)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, IsRejection(err))
		})
	}
}

func TestCanSubmit_DoesNotMutate(t *testing.T) {
	ledger := NewLedger()
	table := NewOpenOrderTable()

	_ = CanSubmit(marketRequest("AAPL", models.ActionBuy, 1), Options{Unique: true}, ledger, table, nil)

	assert.Equal(t, 0, ledger.Len())
	assert.Equal(t, 0, table.Len())
}

func TestRejectionReason(t *testing.T) {
	assert.Equal(t, "invalid_size", rejectionReason(ErrInvalidSize))
	assert.Equal(t, "duplicate_open", rejectionReason(ErrDuplicateOpenOrder))
	assert.Equal(t, "grant_timeout", rejectionReason(ErrGrantTimeout))
	assert.Equal(t, "other", rejectionReason(assert.AnError))
}

func TestQueueTransitions(t *testing.T) {
	assert.True(t, CanQueueTransition(QueueIdle, QueueAwaitingIdentifier))
	assert.True(t, CanQueueTransition(QueueAwaitingIdentifier, QueueIdle))
	assert.False(t, CanQueueTransition(QueueIdle, QueueIdle))
	assert.False(t, CanQueueTransition(QueueAwaitingIdentifier, QueueAwaitingIdentifier))
	assert.False(t, CanQueueTransition("UNKNOWN", QueueIdle))

	q := newSubmissionQueue()
	assert.NoError(t, q.transition(QueueAwaitingIdentifier))
	assert.Error(t, q.transition(QueueAwaitingIdentifier))
	assert.Equal(t, QueueAwaitingIdentifier, q.state)

	assert.NotEqual(t, QueueStateInfo(QueueIdle), QueueStateInfo(QueueAwaitingIdentifier))
}

func TestSubmissionQueue_FIFO(t *testing.T) {
	q := newSubmissionQueue()
	for _, s := range []string{"A", "B", "C"} {
		q.push(&pendingRequest{req: marketRequest(s, models.ActionBuy, 1)})
	}

	assert.True(t, q.HasSymbol("B"))
	assert.False(t, q.HasSymbol("Z"))

	p, ok := q.pop()
	assert.True(t, ok)
	assert.Equal(t, "A", p.req.Symbol)

	rest := q.drain()
	assert.Len(t, rest, 2)
	assert.Equal(t, "B", rest[0].req.Symbol)
	assert.Equal(t, 0, q.Len())

	_, ok = q.pop()
	assert.False(t, ok)
}
