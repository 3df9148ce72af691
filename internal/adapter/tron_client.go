package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	apperrors "github.com/payment-scanner/internal/errors"
	"github.com/payment-scanner/internal/logging"
	"github.com/payment-scanner/internal/types"
)

const tronProvider = "trongrid"

// TronClientConfig configures the TRC20 adapter
type TronClientConfig struct {
	Address    string // watched address, base58 or hex
	BaseURL    string // e.g. https://api.trongrid.io
	APIKey     string // optional TRON-PRO-API-KEY
	PageLimit  int
	Decimals   int32
	RPS        float64
	HTTPClient *http.Client
}

// TronClient scans a TronGrid-compatible API for transfers to one address
type TronClient struct {
	address  string
	limit    int
	decimals int32
	http     *explorerHTTP
	logger   *logging.Logger
}

// tronTransactionsResponse is the body of GET /v1/accounts/{address}/transactions
type tronTransactionsResponse struct {
	Data    []tronTransaction `json:"data"`
	Success *bool             `json:"success"`
	Error   string            `json:"error"`
}

type tronTransaction struct {
	TxID    string `json:"txID"`
	RawData struct {
		Contract []tronContract `json:"contract"`
	} `json:"raw_data"`
}

type tronContract struct {
	Type      string `json:"type"`
	Parameter struct {
		Value struct {
			ToAddress    string      `json:"to_address"`
			OwnerAddress string      `json:"owner_address"`
			Amount       json.Number `json:"amount"`
		} `json:"value"`
	} `json:"parameter"`
}

// NewTronClient creates the TRC20 adapter
func NewTronClient(cfg *TronClientConfig) (*TronClient, error) {
	address, err := NormalizeTronAddress(cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("trc20 address: %w", err)
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("tron api url cannot be empty")
	}

	limit := cfg.PageLimit
	if limit <= 0 {
		limit = 20
	}

	h := newExplorerHTTP(tronProvider, cfg.BaseURL, cfg.HTTPClient, cfg.RPS)
	if cfg.APIKey != "" {
		h.headers["TRON-PRO-API-KEY"] = cfg.APIKey
	}

	return &TronClient{
		address:  address,
		limit:    limit,
		decimals: cfg.Decimals,
		http:     h,
		logger: logging.Component("tron_client").WithFields(map[string]interface{}{
			"network": types.NetworkTRC20,
			"address": address,
		}),
	}, nil
}

// Network returns TRC20
func (c *TronClient) Network() types.Network { return types.NetworkTRC20 }

// Address returns the watched address in base58check form
func (c *TronClient) Address() string { return c.address }

// Health returns TronGrid request statistics
func (c *TronClient) Health() *ProviderHealth { return c.http.health() }

// Scan fetches the most recent page of transactions touching the watched
// address and keeps those paying into it
func (c *TronClient) Scan(ctx context.Context) ([]*types.Transfer, error) {
	endpoint := fmt.Sprintf("%s/v1/accounts/%s/transactions?%s",
		c.http.baseURL, url.PathEscape(c.address), url.Values{"limit": {strconv.Itoa(c.limit)}}.Encode())

	body, err := c.http.get(ctx, endpoint)
	if err != nil {
		return nil, NewScanFailure(types.NetworkTRC20, err)
	}

	var resp tronTransactionsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, NewScanFailure(types.NetworkTRC20, apperrors.NewParseError(tronProvider, err))
	}
	if resp.Success != nil && !*resp.Success {
		return nil, NewScanFailure(types.NetworkTRC20,
			apperrors.NewTransportError(tronProvider, fmt.Errorf("provider reported failure: %s", resp.Error)))
	}

	transfers := make([]*types.Transfer, 0, len(resp.Data))
	for i := range resp.Data {
		if t := c.normalize(&resp.Data[i]); t != nil {
			transfers = append(transfers, t)
		}
	}

	c.logger.WithFields(map[string]interface{}{
		"fetched": len(resp.Data),
		"matched": len(transfers),
	}).Debug("TronGrid page scanned")

	return transfers, nil
}

// normalize returns nil for anything that is not a transfer into the watched address
func (c *TronClient) normalize(tx *tronTransaction) *types.Transfer {
	if tx.TxID == "" || len(tx.RawData.Contract) == 0 {
		return nil
	}

	value := tx.RawData.Contract[0].Parameter.Value
	if value.ToAddress == "" || value.Amount == "" {
		return nil
	}

	to, err := NormalizeTronAddress(value.ToAddress)
	if err != nil {
		c.logger.WithError(err).WithField("txHash", tx.TxID).Debug("Skipping transfer with unparseable destination")
		return nil
	}
	if to != c.address {
		return nil
	}

	amount, err := types.ScaleAmount(value.Amount.String(), c.decimals)
	if err != nil {
		c.logger.WithError(err).WithField("txHash", tx.TxID).Warn("Skipping transfer with invalid amount")
		return nil
	}

	return &types.Transfer{
		Network:   types.NetworkTRC20,
		Hash:      tx.TxID,
		ToAddress: to,
		RawAmount: value.Amount.String(),
		Amount:    amount,
	}
}
