package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"orderflow/internal/bus"
	"orderflow/internal/models"
)

// JournalService пишет события жизненного цикла ордеров в order_events.
//
// Подписан на ORDER_SUBMITTED, ORDER_STATUS, ORDER_FILLED и ORDER_CANCEL.
// Для ORDER_FILLED сохраняется только статус исполнения, запись о продаже
// не сохраняется. Ошибка записи логируется и не влияет на координатор.
type JournalService struct {
	repo         OrderEventRepositoryInterface
	bus          *bus.Bus
	logger       *zap.Logger
	writeTimeout time.Duration
	now          func() time.Time

	mu     sync.Mutex
	unsubs []func()

	written atomic.Int64
	failed  atomic.Int64
}

// NewJournalService создает новый экземпляр JournalService
func NewJournalService(repo OrderEventRepositoryInterface, b *bus.Bus, logger *zap.Logger) *JournalService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JournalService{
		repo:         repo,
		bus:          b,
		logger:       logger.With(zap.String("component", "journal")),
		writeTimeout: 5 * time.Second,
		now:          time.Now,
	}
}

// Start подписывается на топики шины
func (s *JournalService) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.unsubs = append(s.unsubs,
		bus.Handle(s.bus, bus.TopicOrderSubmitted, s.onSubmitted),
		bus.Handle(s.bus, bus.TopicOrderStatus, s.onStatus),
		bus.Handle(s.bus, bus.TopicOrderFilled, s.onFilled),
		bus.Handle(s.bus, bus.TopicOrderCancel, s.onCancel),
	)
}

// Stop отписывается от шины
func (s *JournalService) Stop() {
	s.mu.Lock()
	unsubs := s.unsubs
	s.unsubs = nil
	s.mu.Unlock()

	for _, u := range unsubs {
		u()
	}
}

// History возвращает события ордера в порядке записи
func (s *JournalService) History(ctx context.Context, orderID int64) ([]*models.OrderEventRecord, error) {
	return s.repo.GetByOrderID(ctx, orderID)
}

// Recent возвращает последние события
func (s *JournalService) Recent(ctx context.Context, limit int) ([]*models.OrderEventRecord, error) {
	return s.repo.GetRecent(ctx, limit)
}

// Prune удаляет события старше maxAge
func (s *JournalService) Prune(ctx context.Context, maxAge time.Duration) (int64, error) {
	return s.repo.DeleteOlderThan(ctx, s.now().UTC().Add(-maxAge))
}

// Stats возвращает количество записанных и неудачных записей с момента старта
func (s *JournalService) Stats() (written, failed int64) {
	return s.written.Load(), s.failed.Load()
}

func (s *JournalService) onSubmitted(ev models.OrderSubmittedEvent) {
	rec := ev.Record
	action := ""
	if rec.Request != nil {
		action = string(rec.Request.Action)
	}
	s.write(&models.OrderEventRecord{
		Kind:    models.OrderEventSubmitted,
		OrderID: rec.TickerID,
		PermID:  rec.PermID,
		Symbol:  rec.Symbol,
		Action:  action,
		Status:  rec.Status,
	})
}

func (s *JournalService) onStatus(ev models.OrderStatusEvent) {
	st := ev.OrderStatus
	rec := &models.OrderEventRecord{
		Kind:     models.OrderEventStatus,
		OrderID:  st.OrderID,
		PermID:   st.PermID,
		Status:   st.Status,
		Filled:   st.Filled,
		AvgPrice: st.AvgFillPrice,
		Detail:   st.WhyHeld,
	}
	if ev.Order != nil {
		rec.Symbol = ev.Order.Symbol()
		rec.Action = string(ev.Order.Action())
	}
	s.write(rec)
}

func (s *JournalService) onFilled(ev models.OrderFilledEvent) {
	o := ev.Order
	s.write(&models.OrderEventRecord{
		Kind:    models.OrderEventFilled,
		OrderID: o.OrderID,
		PermID:  o.Order.PermID,
		Symbol:  o.Symbol(),
		Action:  string(o.Action()),
		Status:  models.StatusFilled,
		Filled:  o.Order.TotalQuantity,
	})
}

func (s *JournalService) onCancel(ev models.OrderCancelEvent) {
	s.write(&models.OrderEventRecord{
		Kind:    models.OrderEventCancel,
		OrderID: ev.OrderID,
		Detail:  ev.Outcome,
	})
}

func (s *JournalService) write(rec *models.OrderEventRecord) {
	rec.CreatedAt = s.now().UTC()

	ctx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
	defer cancel()

	if err := s.repo.Create(ctx, rec); err != nil {
		s.failed.Add(1)
		s.logger.Error("journal write failed",
			zap.String("kind", rec.Kind),
			zap.Int64("order_id", rec.OrderID),
			zap.Error(err),
		)
		return
	}
	s.written.Add(1)
}
