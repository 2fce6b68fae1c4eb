package service

import (
	"context"
	"time"

	"orderflow/internal/models"
)

// OrderEventRepositoryInterface определяет интерфейс журнала событий ордеров
type OrderEventRepositoryInterface interface {
	Create(ctx context.Context, ev *models.OrderEventRecord) error
	GetByOrderID(ctx context.Context, orderID int64) ([]*models.OrderEventRecord, error)
	GetRecent(ctx context.Context, limit int) ([]*models.OrderEventRecord, error)
	DeleteOlderThan(ctx context.Context, ts time.Time) (int64, error)
	Count(ctx context.Context) (int, error)
}
