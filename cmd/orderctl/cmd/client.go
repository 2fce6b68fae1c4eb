package cmd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"orderflow/internal/models"
	"orderflow/internal/orders"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// APIError - ответ сервера с кодом ошибки
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%d %s)", e.Message, e.Status, e.Code)
	}
	return fmt.Sprintf("%s (%d)", e.Message, e.Status)
}

// Client - HTTP клиент API orderflow
type Client struct {
	base  string
	token string
	http  *http.Client
}

// NewClient создаёт клиента
func NewClient(base, token string, timeout time.Duration) *Client {
	return &Client{
		base:  strings.TrimRight(base, "/"),
		token: token,
		http:  &http.Client{Timeout: timeout},
	}
}

// OpenOrdersResponse - ответ GET /orders/open
type OpenOrdersResponse struct {
	Orders []models.OpenOrderEntry `json:"orders"`
	Total  int                     `json:"total"`
}

// LedgerResponse - ответ GET /ledger
type LedgerResponse struct {
	Records []models.TickerOrderRecord `json:"records"`
	Total   int                        `json:"total"`
}

// EventsResponse - ответ журнала событий
type EventsResponse struct {
	Events []*models.OrderEventRecord `json:"events"`
	Total  int                        `json:"total"`
}

// CancelResponse - ответ DELETE /orders/{id}
type CancelResponse struct {
	OrderID int64                `json:"order_id"`
	Outcome orders.CancelOutcome `json:"outcome"`
	Error   string               `json:"error,omitempty"`
}

// Submit размещает ордер
func (c *Client) Submit(ctx context.Context, req models.OrderRequest, unique bool) (*models.TickerOrderRecord, error) {
	var rec models.TickerOrderRecord
	body := models.PlaceOrderEvent{StockOrder: req, Unique: unique}
	if err := c.do(ctx, http.MethodPost, "/api/v1/orders", body, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Cancel отменяет ордер. Итог возвращается и при ошибке, если сервер его прислал.
func (c *Client) Cancel(ctx context.Context, orderID int64) (*CancelResponse, error) {
	path := "/api/v1/orders/" + strconv.FormatInt(orderID, 10)
	status, data, err := c.raw(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return nil, err
	}

	var resp CancelResponse
	if err := json.Unmarshal(data, &resp); err != nil || resp.OrderID == 0 {
		return nil, decodeAPIError(status, data)
	}
	if status >= http.StatusBadRequest {
		return &resp, &APIError{Status: status, Code: string(resp.Outcome), Message: resp.Error}
	}
	return &resp, nil
}

// OpenOrders возвращает открытые ордера; refresh - запросить шлюз
func (c *Client) OpenOrders(ctx context.Context, refresh bool) (*OpenOrdersResponse, error) {
	path := "/api/v1/orders/open"
	if refresh {
		path += "?refresh=true"
	}
	var resp OpenOrdersResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Ledger возвращает журнал тикеров
func (c *Client) Ledger(ctx context.Context) (*LedgerResponse, error) {
	var resp LedgerResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/ledger", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stats возвращает состояние очереди
func (c *Client) Stats(ctx context.Context) (*orders.Stats, error) {
	var stats orders.Stats
	if err := c.do(ctx, http.MethodGet, "/api/v1/orders/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// Events возвращает историю ордера или, при orderID == 0, последние события
func (c *Client) Events(ctx context.Context, orderID int64, limit int) (*EventsResponse, error) {
	var path string
	if orderID > 0 {
		path = "/api/v1/orders/" + strconv.FormatInt(orderID, 10) + "/events"
	} else {
		q := url.Values{}
		if limit > 0 {
			q.Set("limit", strconv.Itoa(limit))
		}
		path = "/api/v1/events"
		if len(q) > 0 {
			path += "?" + q.Encode()
		}
	}

	var resp EventsResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	status, data, err := c.raw(ctx, method, path, body)
	if err != nil {
		return err
	}
	if status >= http.StatusBadRequest {
		return decodeAPIError(status, data)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) raw(ctx context.Context, method, path string, body interface{}) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return 0, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, data, nil
}

func decodeAPIError(status int, data []byte) error {
	var body struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	if err := json.Unmarshal(data, &body); err != nil || body.Error == "" {
		return &APIError{Status: status, Message: strings.TrimSpace(string(data))}
	}
	return &APIError{Status: status, Code: body.Code, Message: body.Error}
}
