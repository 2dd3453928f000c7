package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-inventory/internal/inventory"
	inventoryhttp "github.com/odyssey-erp/odyssey-inventory/internal/inventory/http"
	"github.com/odyssey-erp/odyssey-inventory/internal/inventory/report"
	"github.com/odyssey-erp/odyssey-inventory/internal/observability"
	"github.com/odyssey-erp/odyssey-inventory/jobs"
)

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

type stubBalances struct{}

func (stubBalances) GetBalance(_ context.Context, productID uuid.UUID) (inventory.Balance, error) {
	return inventory.Balance{ProductID: productID, Total: 1, Free: 1}, nil
}

type emptySource struct{}

func (emptySource) ListWarehouses(context.Context) ([]inventory.Warehouse, error) { return nil, nil }

func (emptySource) ListTransactions(context.Context, inventory.TransactionFilter) ([]inventory.Transaction, error) {
	return nil, nil
}

func newTestRouter(db Pinger) http.Handler {
	return NewRouter(RouterParams{
		Config:           &Config{AppEnv: "test", RateLimitPerMinute: 1000},
		Database:         db,
		InventoryHandler: inventoryhttp.NewHandler(nil, stubBalances{}, report.NewBuilder(emptySource{}), report.NewExporter(nil)),
		JobHandler:       jobs.NewHandler(nil, nil),
		Metrics:          observability.NewMetrics(),
	})
}

func get(router http.Handler, target string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
	return rr
}

func TestRouterServesOpsEndpoints(t *testing.T) {
	router := newTestRouter(stubPinger{})

	health := get(router, "/healthz")
	require.Equal(t, http.StatusOK, health.Code)
	require.JSONEq(t, `{"status":"ok"}`, health.Body.String())
	require.Equal(t, "DENY", health.Header().Get("X-Frame-Options"))
	require.Equal(t, "nosniff", health.Header().Get("X-Content-Type-Options"))

	require.Equal(t, http.StatusOK, get(router, "/inventory/balances/"+uuid.NewString()).Code)
	require.Equal(t, http.StatusOK, get(router, "/inventory/report?format=csv").Code)
	require.Equal(t, http.StatusOK, get(router, "/jobs/health").Code)

	metrics := get(router, "/metrics")
	require.Equal(t, http.StatusOK, metrics.Code)
	require.Contains(t, metrics.Body.String(), "odyssey_http_requests_total")

	require.Equal(t, http.StatusNotFound, get(router, "/auth/login").Code)
}

func TestHealthReportsDatabaseOutage(t *testing.T) {
	router := newTestRouter(stubPinger{err: errors.New("connection refused")})
	rr := get(router, "/healthz")
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.Contains(t, rr.Body.String(), "unreachable")
}

func TestRouterWithoutOptionalHandlers(t *testing.T) {
	router := NewRouter(RouterParams{})
	require.Equal(t, http.StatusOK, get(router, "/healthz").Code)
	require.Equal(t, http.StatusNotFound, get(router, "/metrics").Code)
}
