package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"orderflow/internal/models"
)

// JournalService - чтение журнала событий ордеров
type JournalService interface {
	History(ctx context.Context, orderID int64) ([]*models.OrderEventRecord, error)
	Recent(ctx context.Context, limit int) ([]*models.OrderEventRecord, error)
}

// JournalHandler отдаёт историю событий ордеров из order_events
//
// Маршруты:
// - GET /api/v1/orders/{id}/events - история ордера
// - GET /api/v1/events?limit=N - последние события
type JournalHandler struct {
	svc JournalService
}

// NewJournalHandler создает новый JournalHandler
func NewJournalHandler(svc JournalService) *JournalHandler {
	return &JournalHandler{svc: svc}
}

type eventsResponse struct {
	Events []*models.OrderEventRecord `json:"events"`
	Total  int                        `json:"total"`
}

// GetOrderEvents возвращает историю ордера
// GET /api/v1/orders/{id}/events
func (h *JournalHandler) GetOrderEvents(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		respondWithError(w, http.StatusBadRequest, "INVALID_ID", "order id must be a positive integer")
		return
	}

	events, err := h.svc.History(r.Context(), id)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "JOURNAL", "failed to read order events")
		return
	}
	respondWithEvents(w, events)
}

// GetRecentEvents возвращает последние события
// GET /api/v1/events?limit=N
func (h *JournalHandler) GetRecentEvents(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 || n > 1000 {
			respondWithError(w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be between 1 and 1000")
			return
		}
		limit = n
	}

	events, err := h.svc.Recent(r.Context(), limit)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "JOURNAL", "failed to read order events")
		return
	}
	respondWithEvents(w, events)
}

func respondWithEvents(w http.ResponseWriter, events []*models.OrderEventRecord) {
	if events == nil {
		events = []*models.OrderEventRecord{}
	}
	respondWithJSON(w, http.StatusOK, eventsResponse{Events: events, Total: len(events)})
}
