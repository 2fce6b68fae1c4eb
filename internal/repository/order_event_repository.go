package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"orderflow/internal/models"
	"orderflow/pkg/utils"
)

// Ошибки журнала событий ордеров
var (
	ErrOrderEventNotFound = errors.New("order event not found")
)

const orderEventColumns = `id, kind, order_id, perm_id, symbol, action, status, filled, avg_price, detail, created_at`

// OrderEventRepository - работа с таблицей order_events
type OrderEventRepository struct {
	db      *sql.DB
	dialect Dialect
}

// NewOrderEventRepository создает новый экземпляр репозитория
func NewOrderEventRepository(db *sql.DB, dialect Dialect) *OrderEventRepository {
	return &OrderEventRepository{db: db, dialect: dialect}
}

// Create записывает событие. Пустые ID и CreatedAt заполняются.
func (r *OrderEventRepository) Create(ctx context.Context, ev *models.OrderEventRecord) error {
	query := r.dialect.Rebind(`
		INSERT INTO order_events (` + orderEventColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`)

	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	if ev.ID == "" {
		ev.ID = utils.NewID(ev.CreatedAt)
	}

	_, err := r.db.ExecContext(ctx, query,
		ev.ID,
		ev.Kind,
		ev.OrderID,
		ev.PermID,
		ev.Symbol,
		ev.Action,
		ev.Status,
		ev.Filled,
		ev.AvgPrice,
		ev.Detail,
		ev.CreatedAt,
	)
	return err
}

// GetByID возвращает событие по ID
func (r *OrderEventRepository) GetByID(ctx context.Context, id string) (*models.OrderEventRecord, error) {
	query := r.dialect.Rebind(`
		SELECT ` + orderEventColumns + `
		FROM order_events
		WHERE id = $1`)

	ev, err := scanOrderEvent(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderEventNotFound
		}
		return nil, err
	}
	return ev, nil
}

// GetByOrderID возвращает историю ордера в порядке записи
func (r *OrderEventRepository) GetByOrderID(ctx context.Context, orderID int64) ([]*models.OrderEventRecord, error) {
	query := r.dialect.Rebind(`
		SELECT ` + orderEventColumns + `
		FROM order_events
		WHERE order_id = $1
		ORDER BY id ASC`)

	return r.list(ctx, query, orderID)
}

// GetRecent возвращает последние события
func (r *OrderEventRepository) GetRecent(ctx context.Context, limit int) ([]*models.OrderEventRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	query := r.dialect.Rebind(`
		SELECT ` + orderEventColumns + `
		FROM order_events
		ORDER BY id DESC
		LIMIT $1`)

	return r.list(ctx, query, limit)
}

// DeleteOlderThan удаляет события старше указанного момента
func (r *OrderEventRepository) DeleteOlderThan(ctx context.Context, ts time.Time) (int64, error) {
	query := r.dialect.Rebind(`DELETE FROM order_events WHERE created_at < $1`)

	result, err := r.db.ExecContext(ctx, query, ts)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Count возвращает количество событий
func (r *OrderEventRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM order_events`).Scan(&count)
	return count, err
}

func (r *OrderEventRepository) list(ctx context.Context, query string, args ...interface{}) ([]*models.OrderEventRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*models.OrderEventRecord
	for rows.Next() {
		ev, err := scanOrderEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}

	return events, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrderEvent(row rowScanner) (*models.OrderEventRecord, error) {
	ev := &models.OrderEventRecord{}
	err := row.Scan(
		&ev.ID,
		&ev.Kind,
		&ev.OrderID,
		&ev.PermID,
		&ev.Symbol,
		&ev.Action,
		&ev.Status,
		&ev.Filled,
		&ev.AvgPrice,
		&ev.Detail,
		&ev.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return ev, nil
}
