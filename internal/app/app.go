// Package app wires configuration into the stores, adapters and worker
// shared by the server, worker and scan_check binaries.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/payment-scanner/internal/adapter"
	"github.com/payment-scanner/internal/config"
	"github.com/payment-scanner/internal/events"
	"github.com/payment-scanner/internal/logging"
	"github.com/payment-scanner/internal/monitoring"
	"github.com/payment-scanner/internal/retry"
	"github.com/payment-scanner/internal/service"
	"github.com/payment-scanner/internal/storage"
	"github.com/payment-scanner/internal/storage/db"
	"github.com/payment-scanner/internal/worker"
	"github.com/prometheus/client_golang/prometheus"
)

// InitLogging configures the global logger from cfg
func InitLogging(cfg *config.Config) *logging.Logger {
	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
	logger := logging.GetGlobalLogger()
	logger.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("Structured logging initialized")
	return logger
}

// BuildAdapters creates the chain adapters. An adapter without an address is
// disabled with a warning.
func BuildAdapters(cfg *config.Config) ([]adapter.ChainAdapter, error) {
	logger := logging.Component("app")
	httpClient := &http.Client{Timeout: cfg.Scanner.HTTPTimeout}

	var adapters []adapter.ChainAdapter

	if cfg.TRC20.Address == "" {
		logger.WithField("network", "TRC20").Warn("TRC20_ADDRESS not set, adapter disabled")
	} else {
		tron, err := adapter.NewTronClient(&adapter.TronClientConfig{
			Address:    cfg.TRC20.Address,
			BaseURL:    cfg.TRC20.APIURL,
			APIKey:     cfg.TRC20.APIKey,
			PageLimit:  cfg.TRC20.PageLimit,
			Decimals:   int32(cfg.TRC20.Decimals), // #nosec G115 - validated small config value
			RPS:        cfg.Scanner.ExplorerRPS,
			HTTPClient: httpClient,
		})
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, tron)
	}

	if cfg.BEP20.Address == "" {
		logger.WithField("network", "BEP20").Warn("BEP20_ADDRESS not set, adapter disabled")
	} else {
		if cfg.BEP20.APIKey == "" {
			logger.WithField("network", "BEP20").Warn("BSCSCAN_API_KEY not set, explorer requests will be throttled")
		}
		bsc, err := adapter.NewEtherscanClient(&adapter.EtherscanClientConfig{
			Address:         cfg.BEP20.Address,
			BaseURL:         cfg.BEP20.APIURL,
			APIKey:          cfg.BEP20.APIKey,
			ChainID:         cfg.BEP20.ChainID,
			ContractAddress: cfg.BEP20.ContractAddress,
			PageSize:        cfg.BEP20.PageSize,
			Decimals:        int32(cfg.BEP20.Decimals), // #nosec G115 - validated small config value
			RPS:             cfg.Scanner.ExplorerRPS,
			HTTPClient:      httpClient,
		})
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, bsc)
	}

	return adapters, nil
}

// Infra holds the connected backing services. Only Store is always set.
type Infra struct {
	Store      storage.Store
	Redis      *storage.RedisCache
	Cache      *storage.CacheService
	ClickHouse *storage.ClickHouseDB
	Publisher  events.Publisher
}

// Connect opens the store (retrying with backoff) and the optional Redis,
// ClickHouse and AMQP connections. An optional service that cannot be
// reached is logged and left out.
func Connect(ctx context.Context, cfg *config.Config) (*Infra, error) {
	logger := logging.Component("app")
	ctx = logging.WithLogger(ctx, logger)
	backoff := retry.DefaultRetryConfig()

	store, err := retry.Connect(ctx, backoff, cfg.Database.Driver, func(ctx context.Context) (storage.Store, error) {
		return db.Open(ctx, &cfg.Database)
	})
	if err != nil {
		return nil, err
	}
	infra := &Infra{Store: store, Publisher: events.NoopPublisher{}}
	logger.WithField("driver", cfg.Database.Driver).Info("Ledger store connected")

	if cfg.Database.Redis.Host != "" {
		rc, err := retry.Connect(ctx, backoff, "redis", func(ctx context.Context) (*storage.RedisCache, error) {
			return storage.NewRedisCache(ctx, &cfg.Database.Redis)
		})
		if err != nil {
			logger.WithError(err).Warn("Redis unavailable, running without cache and tick lock")
		} else {
			infra.Redis = rc
			infra.Cache = storage.NewCacheService(rc, cfg.Cache.TTL)
		}
	}

	if cfg.Database.ClickHouse.Host != "" {
		ch, err := retry.Connect(ctx, backoff, "clickhouse", func(ctx context.Context) (*storage.ClickHouseDB, error) {
			return storage.NewClickHouseDB(ctx, &cfg.Database.ClickHouse)
		})
		if err != nil {
			logger.WithError(err).Warn("ClickHouse unavailable, scan runs will not be recorded")
		} else {
			infra.ClickHouse = ch
		}
	}

	if cfg.Broker.URL != "" {
		pub, err := retry.Connect(ctx, backoff, "amqp", func(ctx context.Context) (*events.AMQPPublisher, error) {
			return events.NewAMQPPublisher(cfg.Broker.URL, cfg.Broker.Exchange)
		})
		if err != nil {
			logger.WithError(err).Warn("Message broker unavailable, detection events disabled")
		} else {
			infra.Publisher = pub
		}
	}

	return infra, nil
}

// LedgerCache returns the cache as an interface value, nil when disabled
func (i *Infra) LedgerCache() service.LedgerCache {
	if i.Cache == nil {
		return nil
	}
	return i.Cache
}

// Close releases every connection
func (i *Infra) Close() {
	logger := logging.Component("app")
	if i.Publisher != nil {
		if err := i.Publisher.Close(); err != nil {
			logger.WithError(err).Warn("Error closing message broker")
		}
	}
	if i.ClickHouse != nil {
		if err := i.ClickHouse.Close(); err != nil {
			logger.WithError(err).Warn("Error closing ClickHouse")
		}
	}
	if i.Redis != nil {
		if err := i.Redis.Close(); err != nil {
			logger.WithError(err).Warn("Error closing Redis")
		}
	}
	if err := i.Store.Close(); err != nil {
		logger.WithError(err).Warn("Error closing ledger store")
	}
}

// NewMetrics registers the collectors with the default registry when
// metrics are enabled
func NewMetrics(cfg *config.Config) *monitoring.Metrics {
	if !cfg.Metrics.Enabled {
		return nil
	}
	return monitoring.NewMetrics(prometheus.DefaultRegisterer)
}

// NewScanWorker builds the scan worker over infra
func NewScanWorker(cfg *config.Config, infra *Infra, adapters []adapter.ChainAdapter, metrics *monitoring.Metrics) (*worker.ScanWorker, error) {
	wcfg := &worker.ScanWorkerConfig{
		Adapters:        adapters,
		Store:           infra.Store,
		Interval:        cfg.Scanner.Interval,
		Publisher:       infra.Publisher,
		Metrics:         metrics,
		BreakerFailures: cfg.Scanner.BreakerFailures,
		BreakerCooldown: cfg.Scanner.BreakerCooldown,
	}
	if infra.Cache != nil {
		wcfg.Cache = infra.Cache
	}
	if infra.Redis != nil {
		wcfg.Lock = worker.NewRedisTickLock(infra.Redis.Client(), "scanner:tick-lock", cfg.Scanner.LockTTL)
	}
	if infra.ClickHouse != nil {
		wcfg.ScanLog = storage.NewScanLogRepository(infra.ClickHouse)
	}

	w, err := worker.NewScanWorker(wcfg)
	if err != nil {
		return nil, fmt.Errorf("create scan worker: %w", err)
	}
	return w, nil
}

// ShutdownContext returns a context bounded by the configured shutdown timeout
func ShutdownContext(cfg *config.Config) (context.Context, context.CancelFunc) {
	timeout := cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return context.WithTimeout(context.Background(), timeout)
}
