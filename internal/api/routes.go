package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"orderflow/internal/api/handlers"
	"orderflow/internal/api/middleware"
	"orderflow/internal/websocket"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// SessionStatus сообщает о наличии активной сессии шлюза
type SessionStatus interface {
	Connected() bool
}

// Dependencies содержит все зависимости для API handlers
type Dependencies struct {
	Orders  handlers.OrderService
	Session SessionStatus
	Journal handlers.JournalService // nil - журнал отключен
	Hub     *websocket.Hub          // nil - без /ws/stream

	CORSOrigins  []string
	APITokenHash string        // пусто - без аутентификации
	CallTimeout  time.Duration // ожидание ответа координатора
	Logger       *zap.Logger
}

// SetupRoutes настраивает все HTTP маршруты приложения
//
// Структура маршрутов:
//
// /api/v1/
//
//	├── /orders
//	│   ├── POST / - разместить ордер
//	│   ├── GET /open - открытые ордера (?refresh=true - запрос к шлюзу)
//	│   ├── GET /stats - состояние очереди
//	│   ├── DELETE /{id} - отменить ордер
//	│   └── GET /{id}/events - история ордера (если журнал включен)
//	├── GET /ledger - журнал тикеров
//	└── GET /events - последние события журнала
//
// /ws/stream - WebSocket поток событий ордеров
// /health, /metrics - без аутентификации
//
// Middleware применяется в следующем порядке:
// 1. Recovery (для всех маршрутов)
// 2. Logging (для всех маршрутов)
// 3. CORS (для всех маршрутов)
// 4. Auth (/api/v1 и /ws)
func SetupRoutes(deps *Dependencies) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := mux.NewRouter()
	auth := middleware.NewTokenAuth(deps.APITokenHash, logger)

	router.HandleFunc("/health", healthHandler(deps.Session)).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(auth.Middleware)

	if deps.Orders != nil {
		orderHandler := handlers.NewOrderHandler(deps.Orders, deps.CallTimeout)
		api.HandleFunc("/orders", orderHandler.SubmitOrder).Methods("POST")
		api.HandleFunc("/orders/open", orderHandler.GetOpenOrders).Methods("GET")
		api.HandleFunc("/orders/stats", orderHandler.GetStats).Methods("GET")
		api.HandleFunc("/orders/{id:[0-9]+}", orderHandler.CancelOrder).Methods("DELETE")
		api.HandleFunc("/ledger", orderHandler.GetLedger).Methods("GET")
	}

	if deps.Journal != nil {
		journalHandler := handlers.NewJournalHandler(deps.Journal)
		api.HandleFunc("/orders/{id:[0-9]+}/events", journalHandler.GetOrderEvents).Methods("GET")
		api.HandleFunc("/events", journalHandler.GetRecentEvents).Methods("GET")
	}

	if deps.Hub != nil {
		ws := router.PathPrefix("/ws").Subrouter()
		ws.Use(auth.Middleware)
		ws.HandleFunc("/stream", deps.Hub.ServeWS).Methods("GET")
	}

	var handler http.Handler = router
	handler = middleware.CORS(deps.CORSOrigins)(handler)
	handler = middleware.Logging(logger)(handler)
	handler = middleware.Recovery(logger)(handler)
	return handler
}

type healthResponse struct {
	Status  string `json:"status"`
	Session bool   `json:"session"`
}

// healthHandler: процесс жив; session - есть ли подключенный шлюз
func healthHandler(session SessionStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "ok"}
		if session != nil {
			resp.Session = session.Connected()
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(resp)
	}
}
