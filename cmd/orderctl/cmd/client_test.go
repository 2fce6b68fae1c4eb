package cmd

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderflow/internal/models"
	"orderflow/internal/orders"
)

func TestClient_Submit(t *testing.T) {
	var (
		gotAuth string
		gotBody models.PlaceOrderEvent
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v1/orders", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(models.TickerOrderRecord{
			Key: "AAPL:7", TickerID: 7, Symbol: "AAPL", Status: models.StatusPendingSubmit,
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "secret", time.Second)
	rec, err := c.Submit(context.Background(), models.OrderRequest{
		Symbol: "AAPL", Action: models.ActionBuy, Size: 10, Type: models.OrderTypeMarket,
	}, true)
	require.NoError(t, err)

	assert.Equal(t, "Bearer secret", gotAuth)
	assert.True(t, gotBody.Unique)
	assert.Equal(t, "AAPL", gotBody.StockOrder.Symbol)
	assert.Equal(t, "AAPL:7", rec.Key)
	assert.Equal(t, int64(7), rec.TickerID)
}

func TestClient_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		io.WriteString(w, `{"error":"pending order exists for AAPL","code":"DUPLICATE_PENDING_ORDER"}`)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "", time.Second).Submit(context.Background(), models.OrderRequest{Symbol: "AAPL"}, true)
	require.Error(t, err)

	apiErr, ok := err.(*APIError)
	require.True(t, ok, "error type %T", err)
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	assert.Equal(t, "DUPLICATE_PENDING_ORDER", apiErr.Code)
	assert.Contains(t, apiErr.Error(), "pending order exists")
}

func TestClient_APIError_PlainBody(t *testing.T) {
	err := decodeAPIError(http.StatusBadGateway, []byte("bad gateway\n"))
	assert.Equal(t, &APIError{Status: http.StatusBadGateway, Message: "bad gateway"}, err)
}

func TestClient_Cancel(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		outcome orders.CancelOutcome
		wantErr bool
	}{
		{"confirmed", http.StatusOK, `{"order_id":5,"outcome":"confirmed"}`, orders.CancelConfirmed, false},
		{"unconfirmed", http.StatusOK, `{"order_id":5,"outcome":"unconfirmed"}`, orders.CancelUnconfirmed, false},
		{"not found", http.StatusNotFound, `{"order_id":5,"outcome":"not_found","error":"order not found"}`, orders.CancelNotFound, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodDelete, r.Method)
				assert.Equal(t, "/api/v1/orders/5", r.URL.Path)
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			resp, err := NewClient(srv.URL, "", time.Second).Cancel(context.Background(), 5)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			require.NotNil(t, resp)
			assert.Equal(t, tt.outcome, resp.Outcome)
		})
	}
}

func TestClient_CancelNoSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		io.WriteString(w, `{"error":"no active gateway session","code":"NO_SESSION"}`)
	}))
	defer srv.Close()

	resp, err := NewClient(srv.URL, "", time.Second).Cancel(context.Background(), 5)
	assert.Nil(t, resp)
	apiErr, ok := err.(*APIError)
	require.True(t, ok)
	assert.Equal(t, "NO_SESSION", apiErr.Code)
}

func TestClient_QueryPaths(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.RequestURI())
		io.WriteString(w, `{}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	ctx := context.Background()

	_, err := c.OpenOrders(ctx, false)
	require.NoError(t, err)
	_, err = c.OpenOrders(ctx, true)
	require.NoError(t, err)
	_, err = c.Events(ctx, 42, 0)
	require.NoError(t, err)
	_, err = c.Events(ctx, 0, 10)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"/api/v1/orders/open",
		"/api/v1/orders/open?refresh=true",
		"/api/v1/orders/42/events",
		"/api/v1/events?limit=10",
	}, paths)
}

func TestLoadOrderFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exit.yaml")
	data := `symbol: SPY
action: SELL
size: 2
type: LMT
parameters: [2, 410.5]
contract: OPT
expiry: "20240621"
strike: 400
right: P
exit_trade: true
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	req, err := loadOrderFile(path)
	require.NoError(t, err)

	assert.Equal(t, "SPY", req.Symbol)
	assert.Equal(t, models.ActionSell, req.Action)
	assert.Equal(t, models.OrderTypeLimit, req.Type)
	assert.Equal(t, models.ContractOption, req.Contract)
	assert.Equal(t, 400.0, req.Strike)
	assert.Len(t, req.Parameters, 2)
	assert.True(t, req.ExitTrade)
}

func TestCommand_Ledger(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/ledger", r.URL.Path)
		io.WriteString(w, `{"records":[{"key":"MSFT:3","ticker_id":3,"symbol":"MSFT","status":"Submitted"}],"total":1}`)
	}))
	defer srv.Close()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"ledger", "--server", srv.URL})
	defer rootCmd.SetArgs(nil)

	require.NoError(t, Execute())
	assert.Contains(t, out.String(), "MSFT:3")
	assert.Contains(t, out.String(), "Submitted")
}
