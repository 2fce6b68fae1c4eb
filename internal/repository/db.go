package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"orderflow/internal/config"
	"orderflow/pkg/retry"
)

// Dialect - диалект SQL журнала
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite3"
	DialectMySQL    Dialect = "mysql"
)

// DialectOf возвращает диалект для имени драйвера
func DialectOf(driver string) (Dialect, error) {
	switch Dialect(driver) {
	case DialectPostgres, DialectSQLite, DialectMySQL:
		return Dialect(driver), nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", driver)
	}
}

// Rebind переводит плейсхолдеры $1..$n в ? для sqlite3 и mysql
func (d Dialect) Rebind(query string) string {
	if d == DialectPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query))
	for i := 0; i < len(query); i++ {
		if query[i] != '$' {
			b.WriteByte(query[i])
			continue
		}
		j := i + 1
		for j < len(query) && query[j] >= '0' && query[j] <= '9' {
			j++
		}
		if j == i+1 {
			b.WriteByte('$')
			continue
		}
		b.WriteByte('?')
		i = j - 1
	}
	return b.String()
}

// schema - DDL таблицы order_events для диалекта
func (d Dialect) schema() []string {
	idType, textType, floatType, tsType := "TEXT", "TEXT", "DOUBLE PRECISION", "TIMESTAMPTZ"
	switch d {
	case DialectSQLite:
		floatType, tsType = "REAL", "DATETIME"
	case DialectMySQL:
		idType, textType, floatType, tsType = "CHAR(26)", "VARCHAR(255)", "DOUBLE", "DATETIME(6)"
	}

	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS order_events (
			id %s PRIMARY KEY,
			kind %s NOT NULL,
			order_id BIGINT NOT NULL,
			perm_id BIGINT NOT NULL DEFAULT 0,
			symbol %s NOT NULL DEFAULT '',
			action %s NOT NULL DEFAULT '',
			status %s NOT NULL DEFAULT '',
			filled %s NOT NULL DEFAULT 0,
			avg_price %s NOT NULL DEFAULT 0,
			detail %s NOT NULL DEFAULT '',
			created_at %s NOT NULL
		)`, idType, textType, textType, textType, textType, floatType, floatType, textType, tsType),
		`CREATE INDEX idx_order_events_order_id ON order_events (order_id)`,
	}
}

// Open открывает базу журнала и проверяет соединение с повторами
func Open(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, Dialect, error) {
	dialect, err := DialectOf(cfg.Driver)
	if err != nil {
		return nil, "", err
	}

	db, err := sql.Open(cfg.Driver, cfg.DSN())
	if err != nil {
		return nil, "", fmt.Errorf("failed to open database: %w", err)
	}

	// Настройка пула соединений
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	if dialect == DialectSQLite {
		db.SetMaxOpenConns(1)
	}

	err = retry.Do(ctx, func() error { return db.PingContext(ctx) }, retry.StartupConfig())
	if err != nil {
		db.Close()
		return nil, "", fmt.Errorf("failed to ping database: %w", err)
	}

	return db, dialect, nil
}

// Migrate создаёт таблицу журнала. Ошибка повторного создания индекса игнорируется.
func Migrate(ctx context.Context, db *sql.DB, dialect Dialect) error {
	stmts := dialect.schema()

	if _, err := db.ExecContext(ctx, stmts[0]); err != nil {
		return fmt.Errorf("create order_events: %w", err)
	}
	for _, stmt := range stmts[1:] {
		if _, err := db.ExecContext(ctx, stmt); err != nil && !isAlreadyExists(err) {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}

func isAlreadyExists(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already exists") || strings.Contains(msg, "duplicate key name")
}
