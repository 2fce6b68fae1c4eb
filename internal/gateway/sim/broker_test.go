package sim

import (
	"context"
	"testing"
	"time"

	"orderflow/internal/gateway"
	"orderflow/internal/models"
)

func nextEvent(t *testing.T, b *Broker) gateway.Event {
	t.Helper()
	select {
	case ev := <-b.Events():
		return ev
	case <-time.After(time.Second):
		t.Fatal("нет события от симулятора")
		return nil
	}
}

func manualBroker(t *testing.T) *Broker {
	t.Helper()
	cfg := DefaultConfig()
	cfg.AutoFill = false
	cfg.StartID = 10
	b := New(cfg, nil)
	t.Cleanup(func() { b.Close() })
	return b
}

func marketOrder(qty float64) models.Order {
	return models.Order{Action: models.ActionBuy, OrderType: models.OrderTypeMarket, TotalQuantity: qty}
}

func TestBroker_RequestNextID(t *testing.T) {
	b := manualBroker(t)
	ctx := context.Background()

	if err := b.RequestNextID(ctx, 0); err != nil {
		t.Fatal(err)
	}
	ev, ok := nextEvent(t, b).(gateway.NextValidID)
	if !ok || ev.OrderID != 10 {
		t.Fatalf("ожидали NextValidID{10}, получили %#v", ev)
	}

	// hint больше текущего счётчика
	if err := b.RequestNextID(ctx, 50); err != nil {
		t.Fatal(err)
	}
	ev, ok = nextEvent(t, b).(gateway.NextValidID)
	if !ok || ev.OrderID != 50 {
		t.Fatalf("ожидали NextValidID{50}, получили %#v", ev)
	}
}

func TestBroker_PlaceAndFill(t *testing.T) {
	b := manualBroker(t)
	ctx := context.Background()
	b.SetPrice("AAPL", 187.5)

	contract := models.Contract{Symbol: "AAPL", SecType: models.ContractStock}
	if err := b.PlaceOrder(ctx, 11, contract, marketOrder(100)); err != nil {
		t.Fatal(err)
	}

	open, ok := nextEvent(t, b).(gateway.OpenOrder)
	if !ok || open.OrderID != 11 || open.State.Status != models.StatusSubmitted {
		t.Fatalf("ожидали openOrder Submitted, получили %#v", open)
	}
	if open.Order.PermID == 0 {
		t.Error("permId должен быть назначен")
	}
	if _, ok := nextEvent(t, b).(gateway.OrderStatus); !ok {
		t.Fatal("ожидали orderStatus")
	}

	if err := b.Fill(11, 0); err != nil {
		t.Fatal(err)
	}
	st, ok := nextEvent(t, b).(gateway.OrderStatus)
	if !ok || st.Status != models.StatusFilled || st.AvgFillPrice != 187.5 || st.Remaining != 0 {
		t.Fatalf("неверный статус исполнения: %#v", st)
	}
	filled, ok := nextEvent(t, b).(gateway.OpenOrder)
	if !ok || filled.State.Status != models.StatusFilled {
		t.Fatalf("ожидали openOrder Filled, получили %#v", filled)
	}
}

func TestBroker_DuplicateID(t *testing.T) {
	b := manualBroker(t)
	ctx := context.Background()
	contract := models.Contract{Symbol: "MSFT"}

	_ = b.PlaceOrder(ctx, 20, contract, marketOrder(1))
	nextEvent(t, b)
	nextEvent(t, b)

	_ = b.PlaceOrder(ctx, 20, contract, marketOrder(1))
	e, ok := nextEvent(t, b).(*gateway.Error)
	if !ok || e.Code != gateway.CodeNoValidID || e.ID != 20 {
		t.Fatalf("ожидали ошибку дубликата id, получили %#v", e)
	}
}

func TestBroker_Cancel(t *testing.T) {
	b := manualBroker(t)
	ctx := context.Background()

	_ = b.PlaceOrder(ctx, 30, models.Contract{Symbol: "TSLA"}, marketOrder(1))
	nextEvent(t, b)
	nextEvent(t, b)

	if err := b.CancelOrder(ctx, 30); err != nil {
		t.Fatal(err)
	}
	st, ok := nextEvent(t, b).(gateway.OrderStatus)
	if !ok || st.Status != models.StatusCancelled {
		t.Fatalf("ожидали Cancelled, получили %#v", st)
	}
	nextEvent(t, b)

	// повторная отмена - ордер уже терминальный
	_ = b.CancelOrder(ctx, 30)
	e, ok := nextEvent(t, b).(*gateway.Error)
	if !ok || !e.IsCancelNotFound() {
		t.Fatalf("ожидали not found, получили %#v", e)
	}
}

func TestBroker_RequestAllOpenOrders(t *testing.T) {
	b := manualBroker(t)
	ctx := context.Background()

	_ = b.PlaceOrder(ctx, 40, models.Contract{Symbol: "A"}, marketOrder(1))
	_ = b.PlaceOrder(ctx, 41, models.Contract{Symbol: "B"}, marketOrder(1))
	for i := 0; i < 4; i++ {
		nextEvent(t, b)
	}
	_ = b.Fill(41, 10)
	nextEvent(t, b)
	nextEvent(t, b)

	if err := b.RequestAllOpenOrders(ctx); err != nil {
		t.Fatal(err)
	}
	open, ok := nextEvent(t, b).(gateway.OpenOrder)
	if !ok || open.OrderID != 40 {
		t.Fatalf("ожидали только ордер 40, получили %#v", open)
	}
	if _, ok := nextEvent(t, b).(gateway.OpenOrderEnd); !ok {
		t.Fatal("ожидали OpenOrderEnd")
	}
}

func TestBroker_AutoFill(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FillDelay = 10 * time.Millisecond
	b := New(cfg, nil)
	defer b.Close()

	_ = b.PlaceOrder(context.Background(), 1, models.Contract{Symbol: "AAPL"}, marketOrder(5))
	nextEvent(t, b)
	nextEvent(t, b)

	st, ok := nextEvent(t, b).(gateway.OrderStatus)
	if !ok || st.Status != models.StatusFilled || st.AvgFillPrice != 100 {
		t.Fatalf("ожидали автоисполнение по цене по умолчанию, получили %#v", st)
	}
}

func TestBroker_Closed(t *testing.T) {
	b := New(DefaultConfig(), nil)
	b.Close()

	if err := b.RequestNextID(context.Background(), 1); err != ErrClosed {
		t.Errorf("ожидали ErrClosed, получили %v", err)
	}
	if _, open := <-b.Events(); open {
		t.Error("канал событий должен быть закрыт")
	}
}
