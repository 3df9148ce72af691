package adapter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	apperrors "github.com/payment-scanner/internal/errors"
	"github.com/payment-scanner/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	watchedBSC  = "0x8894E0a0c962CB723c1976a4421c95949bE2D4E3"
	bscUSDT     = "0x55d398326f99059fF775485246999027B3197955"
	matchingTx  = `{"hash":"0xaaa","to":"0x8894e0a0c962cb723c1976a4421c95949be2d4e3","value":"2500000000000000000","contractAddress":"0x55d398326f99059ff775485246999027b3197955","tokenDecimal":"18"}`
	foreignTx   = `{"hash":"0xbbb","to":"0x0000000000000000000000000000000000000001","value":"1000000000000000000","contractAddress":"0x55d398326f99059ff775485246999027b3197955"}`
	wrongToken  = `{"hash":"0xccc","to":"0x8894E0A0C962CB723C1976A4421C95949BE2D4E3","value":"1","contractAddress":"0x00000000000000000000000000000000000000aa"}`
	numericItem = `{"hash":"0xddd","to":"0x8894e0a0c962cb723c1976a4421c95949be2d4e3","value":1000000000000000000}`
)

func newTestEtherscanClient(t *testing.T, baseURL string) *EtherscanClient {
	t.Helper()
	c, err := NewEtherscanClient(&EtherscanClientConfig{
		Address:         watchedBSC,
		BaseURL:         baseURL,
		APIKey:          "bsc-key",
		ChainID:         56,
		ContractAddress: bscUSDT,
		PageSize:        25,
		Decimals:        18,
		RPS:             1000,
	})
	require.NoError(t, err)
	return c
}

func serveBody(body string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
}

func TestEtherscanClient_QueryParameters(t *testing.T) {
	var query map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = map[string]string{}
		for k := range r.URL.Query() {
			query[k] = r.URL.Query().Get(k)
		}
		_, _ = w.Write([]byte(`{"status":"1","message":"OK","result":[]}`))
	}))
	defer server.Close()

	_, err := newTestEtherscanClient(t, server.URL).Scan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "56", query["chainid"])
	assert.Equal(t, "account", query["module"])
	assert.Equal(t, "tokentx", query["action"])
	assert.Equal(t, watchedBSC, query["address"])
	assert.Equal(t, bscUSDT, query["contractaddress"])
	assert.Equal(t, "25", query["offset"])
	assert.Equal(t, "desc", query["sort"])
	assert.Equal(t, "bsc-key", query["apikey"])
}

func TestEtherscanClient_ScanEnvelopeShapes(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"result list", `{"status":"1","message":"OK","result":[` + matchingTx + `,` + foreignTx + `]}`},
		{"bare list", `[` + matchingTx + `,` + foreignTx + `]`},
		{"data items", `{"data":{"items":[` + matchingTx + `,` + foreignTx + `]}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := serveBody(tt.body)
			defer server.Close()

			transfers, err := newTestEtherscanClient(t, server.URL).Scan(context.Background())
			require.NoError(t, err)
			require.Len(t, transfers, 1)

			assert.Equal(t, "0xaaa", transfers[0].Hash)
			assert.Equal(t, types.NetworkBEP20, transfers[0].Network)
			assert.Equal(t, watchedBSC, transfers[0].ToAddress)
			assert.True(t, transfers[0].Amount.Equal(decimal.RequireFromString("2.5")), "got %s", transfers[0].Amount)
		})
	}
}

func TestEtherscanClient_FiltersForeignTokens(t *testing.T) {
	server := serveBody(`{"data":{"items":[` + wrongToken + `,` + numericItem + `]}}`)
	defer server.Close()

	transfers, err := newTestEtherscanClient(t, server.URL).Scan(context.Background())
	require.NoError(t, err)

	require.Len(t, transfers, 1)
	assert.Equal(t, "0xddd", transfers[0].Hash)
	assert.True(t, transfers[0].Amount.Equal(decimal.NewFromInt(1)))
}

func TestEtherscanClient_NoTransactionsOrAPIError(t *testing.T) {
	for _, body := range []string{
		`{"status":"0","message":"No transactions found","result":[]}`,
		`{"status":"0","message":"NOTOK","result":"Max rate limit reached"}`,
		`{"unexpected":"shape"}`,
	} {
		server := serveBody(body)
		transfers, err := newTestEtherscanClient(t, server.URL).Scan(context.Background())
		server.Close()

		require.NoError(t, err, body)
		assert.Empty(t, transfers, body)
	}
}

func TestEtherscanClient_MalformedJSON(t *testing.T) {
	server := serveBody(`{"status":"1","result":[{"hash":`)
	defer server.Close()

	transfers, err := newTestEtherscanClient(t, server.URL).Scan(context.Background())
	assert.Nil(t, transfers)

	sf, ok := AsScanFailure(err)
	require.True(t, ok)
	assert.Equal(t, types.NetworkBEP20, sf.Network)
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryParse))
}

func TestDecodeTransferPage(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		shape envelopeShape
		items int
	}{
		{"result wins over data.items", `{"result":[` + matchingTx + `],"data":{"items":[]}}`, shapeResult, 1},
		{"data.items when result is text", `{"result":"oops","data":{"items":[` + matchingTx + `,` + foreignTx + `]}}`, shapeDataItems, 2},
		{"bare list", `[` + foreignTx + `]`, shapeBareList, 1},
		{"data without items", `{"data":{"total":0}}`, shapeEmpty, 0},
		{"data as list is ignored", `{"data":[` + matchingTx + `]}`, shapeEmpty, 0},
		{"top-level scalar", `"hello"`, shapeEmpty, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := decodeTransferPage([]byte(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.shape, page.Shape)
			assert.Len(t, page.Items, tt.items)
		})
	}

	_, err := decodeTransferPage([]byte("  "))
	assert.Error(t, err)
	_, err = decodeTransferPage([]byte("<html>"))
	assert.Error(t, err)
}
