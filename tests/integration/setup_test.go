//go:build integration

// Package integration contains integration tests for the orderflow server.
//
// These tests verify the correct interaction between components:
// - API integration tests: full HTTP request cycle against the simulated broker
// - WebSocket tests: event stream for order lifecycle events
// - Database tests: journal migrations and writes
//
// Integration tests use build tag "integration" to separate from unit tests.
// The journal runs on a temporary sqlite3 file unless TEST_DB_DRIVER selects
// postgres or mysql.
// Run with: go test -tags=integration ./tests/integration/...
package integration

import (
	"bytes"
	"context"
	"database/sql"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"orderflow/internal/api"
	"orderflow/internal/bus"
	"orderflow/internal/config"
	"orderflow/internal/gateway/sim"
	"orderflow/internal/models"
	"orderflow/internal/orders"
	"orderflow/internal/repository"
	"orderflow/internal/service"
	"orderflow/internal/websocket"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// TestServer encapsulates all components needed for integration testing
type TestServer struct {
	Bus      *bus.Bus
	Broker   *sim.Broker
	Sessions *orders.SessionManager
	Journal  *service.JournalService
	DB       *sql.DB
	Hub      *websocket.Hub
	Server   *httptest.Server
	Cleanup  func()
}

// getTestDatabaseConfig returns configuration from environment variables or defaults
func getTestDatabaseConfig(t *testing.T) config.DatabaseConfig {
	port, _ := strconv.Atoi(getEnv("TEST_DB_PORT", "5432"))
	return config.DatabaseConfig{
		Driver:   getEnv("TEST_DB_DRIVER", "sqlite3"),
		Host:     getEnv("TEST_DB_HOST", "localhost"),
		Port:     port,
		Name:     getEnv("TEST_DB_NAME", "orderflow_test"),
		User:     getEnv("TEST_DB_USER", "postgres"),
		Password: getEnv("TEST_DB_PASSWORD", "postgres"),
		SSLMode:  getEnv("TEST_DB_SSLMODE", "disable"),
		Path:     filepath.Join(t.TempDir(), "journal.db"),
	}
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// SetupTestDB opens the journal database and applies the schema
func SetupTestDB(t *testing.T) (*sql.DB, repository.Dialect, func()) {
	cfg := getTestDatabaseConfig(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, dialect, err := repository.Open(ctx, cfg)
	if err != nil {
		t.Skipf("Skipping integration test: cannot connect to database: %v", err)
	}
	if err := repository.Migrate(ctx, db, dialect); err != nil {
		db.Close()
		t.Fatalf("migrate: %v", err)
	}

	cleanup := func() {
		if dialect != repository.DialectSQLite {
			db.Exec("DELETE FROM order_events")
		}
		db.Close()
	}
	return db, dialect, cleanup
}

// SetupTestServer creates a complete test server on top of the simulated broker
func SetupTestServer(t *testing.T, simCfg sim.Config) *TestServer {
	logger := zaptest.NewLogger(t)

	b := bus.New(256, logger)

	sessions := orders.NewSessionManager(b, orders.Config{
		GrantTimeout:  2 * time.Second,
		CancelTimeout: 500 * time.Millisecond,
		CallTimeout:   2 * time.Second,
		Retention:     orders.RetentionKeep,
	}, logger)
	sessions.Start()

	db, dialect, dbCleanup := SetupTestDB(t)
	journal := service.NewJournalService(repository.NewOrderEventRepository(db, dialect), b, logger)
	journal.Start()

	hub := websocket.NewHub(nil, logger)
	go hub.Run()
	detach := hub.Attach(b)

	broker := sim.New(simCfg, logger)
	sessions.Connect(broker)

	router := api.SetupRoutes(&api.Dependencies{
		Orders:      sessions,
		Session:     sessions,
		Journal:     journal,
		Hub:         hub,
		CallTimeout: 5 * time.Second,
		Logger:      logger,
	})
	server := httptest.NewServer(router)

	ts := &TestServer{
		Bus:      b,
		Broker:   broker,
		Sessions: sessions,
		Journal:  journal,
		DB:       db,
		Hub:      hub,
		Server:   server,
	}
	ts.Cleanup = func() {
		server.Close()
		sessions.Close()
		broker.Close()
		detach()
		hub.Stop()
		journal.Stop()
		b.Close()
		dbCleanup()
	}
	return ts
}

// limitOrder - лимитный ордер, который симулятор не исполняет сам
func limitOrder(symbol string, qty, price float64) models.OrderRequest {
	return models.OrderRequest{
		Symbol:     symbol,
		Action:     models.ActionBuy,
		Size:       qty,
		Type:       models.OrderTypeLimit,
		Parameters: []interface{}{qty, price},
	}
}

func marketOrder(symbol string, action models.Action, qty float64) models.OrderRequest {
	return models.OrderRequest{
		Symbol:     symbol,
		Action:     action,
		Size:       qty,
		Type:       models.OrderTypeMarket,
		Parameters: []interface{}{qty},
	}
}

// doJSON выполняет запрос и декодирует ответ в out, возвращает статус
func (ts *TestServer) doJSON(t *testing.T, method, path string, body, out interface{}) int {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, ts.Server.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

// submit размещает ордер через API
func (ts *TestServer) submit(t *testing.T, req models.OrderRequest, unique bool) (int, models.TickerOrderRecord) {
	t.Helper()

	var rec models.TickerOrderRecord
	status := ts.doJSON(t, http.MethodPost, "/api/v1/orders",
		models.PlaceOrderEvent{StockOrder: req, Unique: unique}, &rec)
	return status, rec
}

type openOrdersBody struct {
	Orders []models.OpenOrderEntry `json:"orders"`
	Total  int                     `json:"total"`
}

type ledgerBody struct {
	Records []models.TickerOrderRecord `json:"records"`
	Total   int                        `json:"total"`
}

type eventsBody struct {
	Events []*models.OrderEventRecord `json:"events"`
	Total  int                        `json:"total"`
}

type cancelBody struct {
	OrderID int64  `json:"order_id"`
	Outcome string `json:"outcome"`
	Error   string `json:"error"`
}

func (ts *TestServer) openOrders(t *testing.T, refresh bool) openOrdersBody {
	t.Helper()

	path := "/api/v1/orders/open"
	if refresh {
		path += "?refresh=true"
	}
	var body openOrdersBody
	require.Equal(t, http.StatusOK, ts.doJSON(t, http.MethodGet, path, nil, &body))
	return body
}

func (ts *TestServer) ledgerRecord(t *testing.T, tickerID int64) (models.TickerOrderRecord, bool) {
	t.Helper()

	var body ledgerBody
	require.Equal(t, http.StatusOK, ts.doJSON(t, http.MethodGet, "/api/v1/ledger", nil, &body))
	for _, r := range body.Records {
		if r.TickerID == tickerID {
			return r, true
		}
	}
	return models.TickerOrderRecord{}, false
}

func hasOpenOrder(body openOrdersBody, id int64) bool {
	for _, o := range body.Orders {
		if o.OrderID == id {
			return true
		}
	}
	return false
}

// waitFor повторяет проверку до успеха или таймаута
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return cond()
}

func manualSim() sim.Config {
	cfg := sim.DefaultConfig()
	cfg.AutoFill = false
	return cfg
}

func autoFillSim() sim.Config {
	cfg := sim.DefaultConfig()
	cfg.FillDelay = 20 * time.Millisecond
	return cfg
}
