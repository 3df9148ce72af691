package adapter

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	apperrors "github.com/payment-scanner/internal/errors"
	"github.com/payment-scanner/internal/logging"
	"github.com/payment-scanner/internal/types"
)

const etherscanProvider = "etherscan"

// EtherscanClientConfig configures the BEP20 adapter
type EtherscanClientConfig struct {
	Address         string // watched address, hex
	BaseURL         string // e.g. https://api.etherscan.io/v2/api
	APIKey          string
	ChainID         int    // 56 for BNB Smart Chain
	ContractAddress string // token contract; empty means any token
	PageSize        int
	Decimals        int32
	RPS             float64
	HTTPClient      *http.Client
}

// EtherscanClient scans an Etherscan-compatible tokentx endpoint for token
// transfers to one address
type EtherscanClient struct {
	address         string
	contractAddress string
	apiKey          string
	chainID         int
	pageSize        int
	decimals        int32
	http            *explorerHTTP
	logger          *logging.Logger
}

// NewEtherscanClient creates the BEP20 adapter
func NewEtherscanClient(cfg *EtherscanClientConfig) (*EtherscanClient, error) {
	address, err := NormalizeEVMAddress(cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("bep20 address: %w", err)
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("etherscan api url cannot be empty")
	}

	var contract string
	if cfg.ContractAddress != "" {
		if contract, err = NormalizeEVMAddress(cfg.ContractAddress); err != nil {
			return nil, fmt.Errorf("bep20 contract address: %w", err)
		}
	}

	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}

	return &EtherscanClient{
		address:         address,
		contractAddress: contract,
		apiKey:          cfg.APIKey,
		chainID:         cfg.ChainID,
		pageSize:        pageSize,
		decimals:        cfg.Decimals,
		http:            newExplorerHTTP(etherscanProvider, cfg.BaseURL, cfg.HTTPClient, cfg.RPS),
		logger: logging.Component("etherscan_client").WithFields(map[string]interface{}{
			"network": types.NetworkBEP20,
			"address": address,
		}),
	}, nil
}

// Network returns BEP20
func (c *EtherscanClient) Network() types.Network { return types.NetworkBEP20 }

// Address returns the watched address in checksummed form
func (c *EtherscanClient) Address() string { return c.address }

// Health returns explorer request statistics
func (c *EtherscanClient) Health() *ProviderHealth { return c.http.health() }

// buildURL assembles the tokentx query, newest transfers first
func (c *EtherscanClient) buildURL() string {
	q := url.Values{}
	if c.chainID > 0 {
		q.Set("chainid", strconv.Itoa(c.chainID))
	}
	q.Set("module", "account")
	q.Set("action", "tokentx")
	q.Set("address", c.address)
	if c.contractAddress != "" {
		q.Set("contractaddress", c.contractAddress)
	}
	q.Set("page", "1")
	q.Set("offset", strconv.Itoa(c.pageSize))
	q.Set("sort", "desc")
	if c.apiKey != "" {
		q.Set("apikey", c.apiKey)
	}
	return c.http.baseURL + "?" + q.Encode()
}

// Scan fetches the most recent page of token transfers and keeps those paying
// into the watched address
func (c *EtherscanClient) Scan(ctx context.Context) ([]*types.Transfer, error) {
	body, err := c.http.get(ctx, c.buildURL())
	if err != nil {
		return nil, NewScanFailure(types.NetworkBEP20, err)
	}

	page, err := decodeTransferPage(body)
	if err != nil {
		return nil, NewScanFailure(types.NetworkBEP20, apperrors.NewParseError(etherscanProvider, err))
	}

	if page.Shape == shapeEmpty && page.Status == "0" {
		// "No transactions found" and API errors such as rate limits both land here
		c.logger.WithFields(map[string]interface{}{
			"message": page.Message,
			"result":  page.Result,
		}).Warn("Explorer returned no transfer list")
	}

	transfers := make([]*types.Transfer, 0, len(page.Items))
	for i := range page.Items {
		if t := c.normalize(&page.Items[i]); t != nil {
			transfers = append(transfers, t)
		}
	}

	c.logger.WithFields(map[string]interface{}{
		"shape":   page.Shape.String(),
		"fetched": len(page.Items),
		"matched": len(transfers),
	}).Debug("Explorer page scanned")

	return transfers, nil
}

// normalize returns nil for anything that is not a transfer of the watched
// token into the watched address
func (c *EtherscanClient) normalize(item *evmTokenTransfer) *types.Transfer {
	hash := string(item.Hash)
	if hash == "" {
		return nil
	}
	if !SameEVMAddress(string(item.To), c.address) {
		return nil
	}
	if c.contractAddress != "" && item.ContractAddress != "" &&
		!SameEVMAddress(string(item.ContractAddress), c.contractAddress) {
		return nil
	}

	amount, err := types.ScaleAmount(string(item.Value), c.decimals)
	if err != nil {
		c.logger.WithError(err).WithField("txHash", hash).Warn("Skipping transfer with invalid amount")
		return nil
	}

	return &types.Transfer{
		Network:   types.NetworkBEP20,
		Hash:      hash,
		ToAddress: c.address,
		RawAmount: string(item.Value),
		Amount:    amount,
	}
}
