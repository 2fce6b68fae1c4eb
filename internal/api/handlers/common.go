package handlers

import (
	"context"
	"errors"
	"net/http"

	jsoniter "github.com/json-iterator/go"

	"orderflow/internal/orders"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// maxBodySize - ограничение тела запроса
const maxBodySize = 1 << 20

// ErrorResponse стандартный формат ответа об ошибке для всех API endpoints
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// SuccessResponse стандартный формат успешного ответа
type SuccessResponse struct {
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func respondWithJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func respondWithError(w http.ResponseWriter, status int, code, message string) {
	respondWithJSON(w, status, ErrorResponse{Error: message, Code: code})
}

// decodeJSON читает тело запроса; неизвестные поля - ошибка
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// errorStatus сопоставляет ошибку координатора HTTP статусу и коду
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, orders.ErrInvalidSymbol):
		return http.StatusBadRequest, "INVALID_SYMBOL"
	case errors.Is(err, orders.ErrInvalidSize):
		return http.StatusBadRequest, "INVALID_SIZE"
	case errors.Is(err, orders.ErrMissingParameters):
		return http.StatusBadRequest, "MISSING_PARAMETERS"
	case errors.Is(err, orders.ErrUnsupportedOrderType):
		return http.StatusBadRequest, "UNSUPPORTED_ORDER_TYPE"
	case errors.Is(err, orders.ErrDuplicatePendingOrder):
		return http.StatusConflict, "DUPLICATE_PENDING_ORDER"
	case errors.Is(err, orders.ErrDuplicateOpenOrder):
		return http.StatusConflict, "DUPLICATE_OPEN_ORDER"
	case errors.Is(err, orders.ErrDuplicateTicker):
		return http.StatusConflict, "DUPLICATE_TICKER"
	case errors.Is(err, orders.ErrCancelTargetNotFound):
		return http.StatusNotFound, "ORDER_NOT_FOUND"
	case errors.Is(err, orders.ErrNoSession):
		return http.StatusServiceUnavailable, "NO_SESSION"
	case errors.Is(err, orders.ErrCoordinatorStopped):
		return http.StatusServiceUnavailable, "SESSION_STOPPED"
	case errors.Is(err, orders.ErrGrantTimeout):
		return http.StatusGatewayTimeout, "GRANT_TIMEOUT"
	case errors.Is(err, orders.ErrGatewayUnavailable):
		return http.StatusBadGateway, "GATEWAY_UNAVAILABLE"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout, "TIMEOUT"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}

func respondWithDomainError(w http.ResponseWriter, err error) {
	status, code := errorStatus(err)
	respondWithError(w, status, code, err.Error())
}
