package api

import (
	"compress/gzip"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	apperrors "github.com/payment-scanner/internal/errors"
	"github.com/payment-scanner/internal/models"
	"github.com/payment-scanner/internal/service"
	"github.com/payment-scanner/internal/types"
	"github.com/payment-scanner/internal/worker"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListTransactions_NewestFirst(t *testing.T) {
	env := createTestServer(t)

	w := env.do(t, http.MethodGet, "/api/transactions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())

	env.seed(t, types.NetworkTRC20, "first", "5", types.StatusConfirmed)
	env.seed(t, types.NetworkBEP20, "second", "2.5", types.StatusConfirmed)

	w = env.do(t, http.MethodGet, "/api/transactions", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var entries []map[string]interface{}
	decode(t, w, &entries)
	require.Len(t, entries, 2)
	assert.Equal(t, "second", entries[0]["txHash"])
	assert.Equal(t, "2.5", entries[0]["amount"])
	assert.Equal(t, false, entries[0]["used"])
}

func TestGetBalance(t *testing.T) {
	env := createTestServer(t)

	w := env.do(t, http.MethodGet, "/api/balance", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"balance":"0"}`, w.Body.String())

	env.seed(t, types.NetworkTRC20, "a", "5", types.StatusConfirmed)
	env.seed(t, types.NetworkBEP20, "b", "2.5", types.StatusConfirmed)
	env.seed(t, types.NetworkBEP20, "c", "100", types.StatusPending)

	w = env.do(t, http.MethodGet, "/api/balance", nil)
	assert.JSONEq(t, `{"balance":"7.5"}`, w.Body.String())
}

func TestCreateTransaction(t *testing.T) {
	env := createTestServer(t)

	body := map[string]interface{}{
		"network": "TRC20",
		"txHash":  "manual-1",
		"address": "TWCtpUaW6dzmgi9B2quh3VoxVUmThNLcxR",
		"amount":  12.5,
	}
	w := env.do(t, http.MethodPost, "/api/transactions", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var entry models.LedgerEntry
	decode(t, w, &entry)
	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, types.StatusConfirmed, entry.Status)
	assert.Equal(t, "12.5", entry.Amount.String())

	w = env.do(t, http.MethodPost, "/api/transactions", body)
	assert.Equal(t, http.StatusConflict, w.Code)

	var errResp ErrorResponse
	decode(t, w, &errResp)
	assert.Equal(t, "CONFLICT", errResp.Error.Code)
}

func TestCreateTransaction_InvalidInput(t *testing.T) {
	env := createTestServer(t)

	tests := []struct {
		name string
		body interface{}
	}{
		{"malformed json", "not json"},
		{"empty body", nil},
		{"bad network", map[string]interface{}{"network": "ERC20", "txHash": "h", "address": "a", "amount": "1"}},
		{"negative amount", map[string]interface{}{"network": "BEP20", "txHash": "h", "address": "a", "amount": "-1"}},
		{"missing amount", map[string]interface{}{"network": "BEP20", "txHash": "h", "address": "a"}},
		{"null amount", map[string]interface{}{"network": "BEP20", "txHash": "h", "address": "a", "amount": nil}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/transactions", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)

			var errResp ErrorResponse
			decode(t, w, &errResp)
			assert.Equal(t, "VALIDATION_ERROR", errResp.Error.Code)
		})
	}
}

func TestUpdateTransaction_MarkUsed(t *testing.T) {
	env := createTestServer(t)
	entry := env.seed(t, types.NetworkTRC20, "h1", "5", types.StatusConfirmed)

	w := env.do(t, http.MethodPut, "/api/transactions/"+entry.ID, `{"used":true}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var updated models.LedgerEntry
	decode(t, w, &updated)
	assert.True(t, updated.Used)

	// a later scan of the same hash keeps the flag
	env.seed(t, types.NetworkTRC20, "h1", "5", types.StatusConfirmed)
	w = env.do(t, http.MethodGet, "/api/transactions/"+entry.ID, nil)
	decode(t, w, &updated)
	assert.True(t, updated.Used)

	w = env.do(t, http.MethodPut, "/api/transactions/"+entry.ID, `{"used":false}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPut, "/api/transactions/00000000-0000-0000-0000-000000000000", `{"used":true}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

type mockLedgerService struct {
	err error
}

func (m *mockLedgerService) List(context.Context) ([]*models.LedgerEntry, error) { return nil, m.err }
func (m *mockLedgerService) Get(context.Context, string) (*models.LedgerEntry, error) {
	return nil, m.err
}
func (m *mockLedgerService) Balance(context.Context) (decimal.Decimal, error) {
	return decimal.Zero, m.err
}
func (m *mockLedgerService) Create(context.Context, *service.CreateTransactionInput) (*models.LedgerEntry, error) {
	return nil, m.err
}
func (m *mockLedgerService) Update(context.Context, string, *service.UpdateTransactionInput) (*models.LedgerEntry, error) {
	return nil, m.err
}

func TestPersistenceErrorIsServerError(t *testing.T) {
	server := NewServer(newTestConfig(), ServerDeps{
		Ledger: &mockLedgerService{err: apperrors.NewPersistenceError("sum", errors.New("connection refused"))},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/balance", nil)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "connection refused")

	var errResp ErrorResponse
	decode(t, w, &errResp)
	assert.Equal(t, "PERSISTENCE_ERROR", errResp.Error.Code)
}

func TestWithdrawals(t *testing.T) {
	env := createTestServer(t)

	w := env.do(t, http.MethodPost, "/api/withdrawals", `{"bankName":"HDFC"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"success":false,"error":"amount, bankName and accountNumber are required"}`, w.Body.String())

	w = env.do(t, http.MethodPost, "/api/withdrawals", `{"amount":"250","bankName":"HDFC","accountNumber":"12345678"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created struct {
		Success    bool              `json:"success"`
		Withdrawal models.Withdrawal `json:"withdrawal"`
	}
	decode(t, w, &created)
	assert.True(t, created.Success)
	assert.Equal(t, "demo", created.Withdrawal.UserID)

	w = env.do(t, http.MethodPut, "/api/withdrawals/"+created.Withdrawal.ID, `{"status":"approved"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"message":"Status updated successfully"}`, w.Body.String())

	w = env.do(t, http.MethodGet, "/api/withdrawals", nil)
	var list []models.Withdrawal
	decode(t, w, &list)
	require.Len(t, list, 1)
	assert.Equal(t, types.WithdrawalApproved, list[0].Status)
}

func TestBanks(t *testing.T) {
	env := createTestServer(t)

	w := env.do(t, http.MethodPost, "/api/banks", map[string]string{
		"name": "HDFC", "accountNumber": "123", "ifsc": "HDFC0001234", "upi": "a@b", "email": "a@b.c",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"success":false,"error":"Account number must be at least 8 digits"}`, w.Body.String())

	w = env.do(t, http.MethodPost, "/api/banks", map[string]string{
		"name": "HDFC", "accountNumber": "12345678", "ifsc": "HDFC0001234", "upi": "a@b", "email": "a@b.c",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var created struct {
		Success bool        `json:"success"`
		Bank    models.Bank `json:"bank"`
	}
	decode(t, w, &created)
	assert.True(t, created.Success)
	assert.Equal(t, "HDFC", created.Bank.Name)

	w = env.do(t, http.MethodGet, "/api/banks", nil)
	var banks []models.Bank
	decode(t, w, &banks)
	assert.Len(t, banks, 1)
}

func TestDeposits(t *testing.T) {
	env := createTestServer(t)

	w := env.do(t, http.MethodPost, "/api/deposits", `{"userId":"u1","amount":"10","network":"BEP20","address":"0xabc"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var deposit models.Deposit
	decode(t, w, &deposit)
	assert.Equal(t, types.DepositPending, deposit.Status)

	w = env.do(t, http.MethodGet, "/api/deposits", nil)
	var list []models.Deposit
	decode(t, w, &list)
	assert.Len(t, list, 1)
}

func TestScannerStatus(t *testing.T) {
	env := createTestServer(t)
	w := env.do(t, http.MethodGet, "/api/scanner/status", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	server := NewServer(newTestConfig(), ServerDeps{
		Scanner: stubScanner{status: &worker.ScanWorkerStatus{Running: true, IntervalSeconds: 20}},
	})
	req := httptest.NewRequest(http.MethodGet, "/api/scanner/status", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"intervalSeconds":20`)
}

func TestCORSPreflight(t *testing.T) {
	env := createTestServer(t)
	w := env.do(t, http.MethodOptions, "/api/transactions/abc", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCompression(t *testing.T) {
	env := createTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/balance", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(w, req)

	require.Equal(t, "gzip", w.Header().Get("Content-Encoding"))
	gz, err := gzip.NewReader(w.Body)
	require.NoError(t, err)
	body, err := io.ReadAll(gz)
	require.NoError(t, err)
	assert.JSONEq(t, `{"balance":"0"}`, string(body))
}

func TestRateLimit(t *testing.T) {
	cfg := newTestConfig()
	cfg.RateLimitRPS = 1
	cfg.RateLimitBurst = 2
	server := NewServer(cfg, ServerDeps{Ledger: &mockLedgerService{}})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/transactions", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		w := httptest.NewRecorder()
		server.Handler().ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	// another client has its own budget
	req := httptest.NewRequest(http.MethodGet, "/api/transactions", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	env := createTestServer(t)
	env.do(t, http.MethodGet, "/api/balance", nil)

	w := env.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), `route="/api/balance"`))
}
