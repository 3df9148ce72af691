package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/payment-scanner/internal/models"
	"github.com/payment-scanner/internal/monitoring"
	"github.com/payment-scanner/internal/service"
	"github.com/payment-scanner/internal/storage/sqlite"
	"github.com/payment-scanner/internal/types"
	"github.com/payment-scanner/internal/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	server *Server
	store  *sqlite.Store
}

func newTestConfig() *ServerConfig {
	return &ServerConfig{Host: "127.0.0.1", Port: "0", AllowedOrigin: "*"}
}

func createTestServer(t *testing.T) *testEnv {
	t.Helper()
	store, err := sqlite.Open(context.Background(), sqlite.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	server := NewServer(newTestConfig(), ServerDeps{
		Ledger:  service.NewLedgerService(store, nil),
		Records: service.NewRecordService(store),
		Store:   store,
		Metrics: monitoring.NewMetrics(prometheus.NewRegistry()),
	})
	return &testEnv{server: server, store: store}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(w, req)
	return w
}

func (e *testEnv) seed(t *testing.T, network types.Network, hash, amount string, status types.EntryStatus) *models.LedgerEntry {
	t.Helper()
	entry, _, err := e.store.Upsert(context.Background(), &models.LedgerEntry{
		Network: network,
		TxHash:  hash,
		Address: "watched",
		Amount:  decimal.RequireFromString(amount),
		Status:  status,
	})
	require.NoError(t, err)
	return entry
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

type stubScanner struct{ status *worker.ScanWorkerStatus }

func (s stubScanner) GetStatus() *worker.ScanWorkerStatus { return s.status }

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return context.DeadlineExceeded }

func TestServer_Health(t *testing.T) {
	env := createTestServer(t)
	w := env.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	down := NewServer(newTestConfig(), ServerDeps{Store: failingPinger{}})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	down.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
