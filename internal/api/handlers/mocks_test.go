package handlers

import (
	"context"
	"errors"
	"sync"

	"orderflow/internal/models"
	"orderflow/internal/orders"
)

var ErrMockDatabase = errors.New("mock database error")

// ============ Mock Order Service ============

// MockOrderService мок для OrderService
type MockOrderService struct {
	mu sync.Mutex

	submitted []models.OrderRequest
	opts      []orders.Options
	submitErr error
	nextID    int64

	cancelOutcome orders.CancelOutcome
	cancelErr     error
	cancelled     []int64

	open      []models.OpenOrderEntry
	openErr   error
	refreshed int

	ledger []models.TickerOrderRecord
	stats  orders.Stats
}

// NewMockOrderService создает новый мок координатора
func NewMockOrderService() *MockOrderService {
	return &MockOrderService{nextID: 100, cancelOutcome: orders.CancelConfirmed}
}

func (m *MockOrderService) Submit(_ context.Context, req models.OrderRequest, opts orders.Options) (*models.TickerOrderRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.submitErr != nil {
		return nil, m.submitErr
	}
	m.submitted = append(m.submitted, req)
	m.opts = append(m.opts, opts)
	m.nextID++

	r := req.Clone()
	return &models.TickerOrderRecord{
		Key:      models.TickerKey(req.Symbol, m.nextID),
		TickerID: m.nextID,
		Symbol:   req.Symbol,
		Status:   models.StatusPendingSubmit,
		Request:  &r,
	}, nil
}

func (m *MockOrderService) Cancel(_ context.Context, orderID int64) (orders.CancelOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelled = append(m.cancelled, orderID)
	return m.cancelOutcome, m.cancelErr
}

func (m *MockOrderService) OpenOrders(context.Context) ([]models.OpenOrderEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshed++
	return m.open, m.openErr
}

func (m *MockOrderService) OpenOrderSnapshot(context.Context) ([]models.OpenOrderEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open, m.openErr
}

func (m *MockOrderService) LedgerSnapshot(context.Context) ([]models.TickerOrderRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ledger, nil
}

func (m *MockOrderService) Stats(context.Context) (orders.Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats, nil
}

// ============ Mock Journal Service ============

// MockJournalService мок для JournalService
type MockJournalService struct {
	events []*models.OrderEventRecord
	err    error
	limit  int
}

func (m *MockJournalService) History(_ context.Context, orderID int64) ([]*models.OrderEventRecord, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []*models.OrderEventRecord
	for _, ev := range m.events {
		if ev.OrderID == orderID {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (m *MockJournalService) Recent(_ context.Context, limit int) ([]*models.OrderEventRecord, error) {
	m.limit = limit
	return m.events, m.err
}
