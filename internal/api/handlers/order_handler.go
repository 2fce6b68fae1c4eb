package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"orderflow/internal/models"
	"orderflow/internal/orders"
)

// OrderService - операции координатора ордеров активной сессии
type OrderService interface {
	Submit(ctx context.Context, req models.OrderRequest, opts orders.Options) (*models.TickerOrderRecord, error)
	Cancel(ctx context.Context, orderID int64) (orders.CancelOutcome, error)
	OpenOrders(ctx context.Context) ([]models.OpenOrderEntry, error)
	OpenOrderSnapshot(ctx context.Context) ([]models.OpenOrderEntry, error)
	LedgerSnapshot(ctx context.Context) ([]models.TickerOrderRecord, error)
	Stats(ctx context.Context) (orders.Stats, error)
}

// OrderHandler отвечает за размещение, отмену и просмотр ордеров
//
// Маршруты:
// - POST /api/v1/orders - разместить ордер
// - DELETE /api/v1/orders/{id} - отменить ордер
// - GET /api/v1/orders/open - таблица открытых ордеров (?refresh=true - запрос к шлюзу)
// - GET /api/v1/orders/stats - состояние очереди
// - GET /api/v1/ledger - журнал тикеров
type OrderHandler struct {
	svc     OrderService
	timeout time.Duration
}

// NewOrderHandler создает новый OrderHandler. timeout ограничивает ожидание ответа шлюза.
func NewOrderHandler(svc OrderService, timeout time.Duration) *OrderHandler {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &OrderHandler{svc: svc, timeout: timeout}
}

type openOrdersResponse struct {
	Orders []models.OpenOrderEntry `json:"orders"`
	Total  int                     `json:"total"`
}

type ledgerResponse struct {
	Records []models.TickerOrderRecord `json:"records"`
	Total   int                        `json:"total"`
}

type cancelResponse struct {
	OrderID int64                `json:"order_id"`
	Outcome orders.CancelOutcome `json:"outcome"`
	Error   string               `json:"error,omitempty"`
}

// SubmitOrder размещает ордер
// POST /api/v1/orders
// Тело: {"stock_order": {...}, "unique": true}
func (h *OrderHandler) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	var body models.PlaceOrderEvent
	if err := decodeJSON(w, r, &body); err != nil {
		respondWithError(w, http.StatusBadRequest, "INVALID_BODY", "invalid request body: "+err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	rec, err := h.svc.Submit(ctx, body.StockOrder, orders.Options{Unique: body.Unique})
	if err != nil {
		respondWithDomainError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, rec)
}

// CancelOrder отменяет ордер по id
// DELETE /api/v1/orders/{id}
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		respondWithError(w, http.StatusBadRequest, "INVALID_ID", "order id must be a positive integer")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	outcome, err := h.svc.Cancel(ctx, id)
	resp := cancelResponse{OrderID: id, Outcome: outcome}
	if err != nil {
		status, _ := errorStatus(err)
		resp.Error = err.Error()
		respondWithJSON(w, status, resp)
		return
	}

	respondWithJSON(w, http.StatusOK, resp)
}

// GetOpenOrders возвращает открытые ордера
// GET /api/v1/orders/open[?refresh=true]
func (h *OrderHandler) GetOpenOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))

	var (
		entries []models.OpenOrderEntry
		err     error
	)
	if refresh {
		entries, err = h.svc.OpenOrders(ctx)
	} else {
		entries, err = h.svc.OpenOrderSnapshot(ctx)
	}
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	if entries == nil {
		entries = []models.OpenOrderEntry{}
	}

	respondWithJSON(w, http.StatusOK, openOrdersResponse{Orders: entries, Total: len(entries)})
}

// GetStats возвращает состояние очереди и таблиц
// GET /api/v1/orders/stats
func (h *OrderHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Stats(r.Context())
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, stats)
}

// GetLedger возвращает журнал тикеров
// GET /api/v1/ledger
func (h *OrderHandler) GetLedger(w http.ResponseWriter, r *http.Request) {
	records, err := h.svc.LedgerSnapshot(r.Context())
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	if records == nil {
		records = []models.TickerOrderRecord{}
	}

	respondWithJSON(w, http.StatusOK, ledgerResponse{Records: records, Total: len(records)})
}
