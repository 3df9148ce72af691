// Package worker runs the fixed-interval payment scan.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/payment-scanner/internal/adapter"
	"github.com/payment-scanner/internal/circuitbreaker"
	apperrors "github.com/payment-scanner/internal/errors"
	"github.com/payment-scanner/internal/events"
	"github.com/payment-scanner/internal/logging"
	"github.com/payment-scanner/internal/models"
	"github.com/payment-scanner/internal/monitoring"
	"github.com/payment-scanner/internal/storage"
	"github.com/payment-scanner/internal/types"
)

// DefaultInterval is the scan interval used when none is configured
const DefaultInterval = 20 * time.Second

// maxPendingEvents caps the detection events held back after failed
// publishes. The oldest are dropped first.
const maxPendingEvents = 10000

// LedgerCache is invalidated after a tick that wrote entries
type LedgerCache interface {
	InvalidateLedger(ctx context.Context) error
}

// ScanWorkerConfig holds the dependencies of a scan worker. Only Store and
// at least one adapter are required.
type ScanWorkerConfig struct {
	Adapters  []adapter.ChainAdapter
	Store     storage.LedgerStore
	Interval  time.Duration
	Publisher events.Publisher
	Cache     LedgerCache
	ScanLog   storage.ScanLog
	Metrics   *monitoring.Metrics
	Lock      TickLock
	// BreakerFailures and BreakerCooldown configure one circuit breaker per
	// adapter. Zero failures disables the breakers.
	BreakerFailures int
	BreakerCooldown time.Duration
}

type scanTarget struct {
	adapter adapter.ChainAdapter
	breaker *circuitbreaker.CircuitBreaker
}

// ScanWorker fires every adapter on a fixed interval and upserts what they
// return. A tick that fires while the previous one is still running is
// skipped, never queued.
type ScanWorker struct {
	targets   []scanTarget
	store     storage.LedgerStore
	interval  time.Duration
	publisher events.Publisher
	cache     LedgerCache
	scanLog   storage.ScanLog
	metrics   *monitoring.Metrics
	lock      TickLock
	logger    *logging.Logger

	scanning atomic.Bool
	inflight sync.WaitGroup

	// pending holds entries whose detection event has not been published
	// yet. Only touched by the tick holding the scanning flag.
	pending      []*models.LedgerEntry
	pendingCount atomic.Int64

	mu       sync.RWMutex
	running  bool
	stopCh   chan struct{}
	doneCh   chan struct{}
	ticks    int64
	skipped  int64
	lastTick *TickResult
}

// TickResult summarizes one completed tick
type TickResult struct {
	TickID    string            `json:"tickId"`
	StartedAt time.Time         `json:"startedAt"`
	Duration  time.Duration     `json:"duration"`
	Runs      []*models.ScanRun `json:"runs"`

	// NewEntries holds the entries created during the tick, in adapter order
	NewEntries []*models.LedgerEntry `json:"-"`
}

// Created returns the number of entries seen for the first time
func (r *TickResult) Created() int {
	n := 0
	for _, run := range r.Runs {
		n += run.Created
	}
	return n
}

// AdapterStatus is the per-network part of the worker status
type AdapterStatus struct {
	Network types.Network           `json:"network"`
	Address string                  `json:"address"`
	Breaker *circuitbreaker.Stats   `json:"breaker,omitempty"`
	Health  *adapter.ProviderHealth `json:"health"`
}

// ScanWorkerStatus is a snapshot of the worker
type ScanWorkerStatus struct {
	Running         bool            `json:"running"`
	Scanning        bool            `json:"scanning"`
	IntervalSeconds int             `json:"intervalSeconds"`
	Ticks           int64           `json:"ticks"`
	Skipped         int64           `json:"skipped"`
	PendingEvents   int64           `json:"pendingEvents"`
	LastTick        *TickResult     `json:"lastTick,omitempty"`
	Adapters        []AdapterStatus `json:"adapters"`
}

// NewScanWorker creates a new scan worker
func NewScanWorker(cfg *ScanWorkerConfig) (*ScanWorker, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("ledger store cannot be nil")
	}
	if len(cfg.Adapters) == 0 {
		return nil, fmt.Errorf("at least one chain adapter is required")
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	targets := make([]scanTarget, 0, len(cfg.Adapters))
	for _, a := range cfg.Adapters {
		if a == nil {
			return nil, fmt.Errorf("chain adapter cannot be nil")
		}
		t := scanTarget{adapter: a}
		if cfg.BreakerFailures > 0 {
			t.breaker = circuitbreaker.NewCircuitBreaker(&circuitbreaker.Config{
				Name:        string(a.Network()),
				MaxFailures: cfg.BreakerFailures,
				Cooldown:    cfg.BreakerCooldown,
			})
		}
		targets = append(targets, t)
	}

	publisher := cfg.Publisher
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}

	return &ScanWorker{
		targets:   targets,
		store:     cfg.Store,
		interval:  interval,
		publisher: publisher,
		cache:     cfg.Cache,
		scanLog:   cfg.ScanLog,
		metrics:   cfg.Metrics,
		lock:      cfg.Lock,
		logger:    logging.Component("scan_worker"),
	}, nil
}

// Start launches the ticker loop. The first scan runs immediately.
func (w *ScanWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return fmt.Errorf("scan worker is already running")
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})

	networks := make([]types.Network, 0, len(w.targets))
	for _, t := range w.targets {
		networks = append(networks, t.adapter.Network())
	}
	w.logger.WithFields(map[string]interface{}{
		"interval": w.interval.String(),
		"networks": networks,
	}).Info("Starting scan worker")

	go w.loop(ctx)
	return nil
}

// Stop ends the ticker loop and waits for an in-flight scan
func (w *ScanWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return fmt.Errorf("scan worker is not running")
	}
	close(w.stopCh)
	doneCh := w.doneCh
	w.mu.Unlock()

	select {
	case <-doneCh:
		w.logger.Info("Scan worker stopped gracefully")
	case <-ctx.Done():
		w.logger.Warn("Scan worker stop timed out")
		return ctx.Err()
	}

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()
	return nil
}

func (w *ScanWorker) loop(ctx context.Context) {
	defer close(w.doneCh)
	defer w.inflight.Wait()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.fire(ctx)
	for {
		select {
		case <-ticker.C:
			w.fire(ctx)
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// fire runs a tick in the background so the ticker keeps firing while a
// slow scan is in progress; those ticks are then skipped by RunOnce.
func (w *ScanWorker) fire(ctx context.Context) {
	w.inflight.Add(1)
	go func() {
		defer w.inflight.Done()
		if _, _, err := w.RunOnce(ctx); err != nil {
			w.logger.WithError(err).Warn("Scan tick failed")
		}
	}()
}

// RunOnce runs a single tick. It returns skipped=true without scanning if a
// tick is already in progress or another replica holds the tick lock. When
// the lock backend itself fails the tick runs unlocked.
func (w *ScanWorker) RunOnce(ctx context.Context) (*TickResult, bool, error) {
	if !w.scanning.CompareAndSwap(false, true) {
		w.skip("overlap")
		return nil, true, nil
	}
	defer w.scanning.Store(false)

	if w.lock != nil {
		release, ok, err := w.lock.Acquire(ctx)
		switch {
		case err != nil:
			w.logger.WithError(err).Warn("Tick lock unavailable, scanning without it")
			if w.metrics != nil {
				w.metrics.LockErrors.Inc()
			}
		case !ok:
			w.skip("locked")
			return nil, true, nil
		default:
			defer release()
		}
	}

	result := w.scan(ctx)

	w.mu.Lock()
	w.ticks++
	w.lastTick = result
	w.mu.Unlock()

	w.afterTick(ctx, result)
	return result, false, nil
}

func (w *ScanWorker) skip(reason string) {
	w.mu.Lock()
	w.skipped++
	w.mu.Unlock()
	if w.metrics != nil {
		w.metrics.ObserveSkip(reason)
	}
	w.logger.WithField("reason", reason).Info("Scan tick skipped")
}

// scan runs every adapter concurrently and waits for all of them
func (w *ScanWorker) scan(ctx context.Context) *TickResult {
	result := &TickResult{
		TickID:    uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Runs:      make([]*models.ScanRun, len(w.targets)),
	}
	logger := w.logger.WithField("tickId", result.TickID)
	ctx = logging.WithLogger(ctx, logger)

	created := make([][]*models.LedgerEntry, len(w.targets))
	var wg sync.WaitGroup
	for i, t := range w.targets {
		wg.Add(1)
		go func(i int, t scanTarget) {
			defer wg.Done()
			result.Runs[i], created[i] = w.scanTarget(ctx, result.TickID, t)
		}(i, t)
	}
	wg.Wait()

	for _, entries := range created {
		result.NewEntries = append(result.NewEntries, entries...)
	}

	result.Duration = time.Since(result.StartedAt)
	if w.metrics != nil {
		w.metrics.ScanTicks.Inc()
	}
	return result
}

// scanTarget fetches one adapter's transfers and upserts them in explorer
// order. A failure here never affects the other adapters.
func (w *ScanWorker) scanTarget(ctx context.Context, tickID string, t scanTarget) (run *models.ScanRun, created []*models.LedgerEntry) {
	network := t.adapter.Network()
	logger := logging.FromContext(ctx).WithField("network", network)
	run = &models.ScanRun{
		TickID:    tickID,
		Network:   network,
		StartedAt: time.Now().UTC(),
	}
	defer func() {
		if r := recover(); r != nil {
			run.Error = fmt.Sprintf("panic: %v", r)
			logger.WithField("panic", r).Error("Adapter scan panicked")
		}
		run.Duration = time.Since(run.StartedAt)
		if w.metrics != nil {
			w.metrics.ObserveRun(run)
		}
	}()

	var transfers []*types.Transfer
	fetch := func(ctx context.Context) error {
		var err error
		transfers, err = t.adapter.Scan(ctx)
		return err
	}

	var err error
	if t.breaker != nil {
		err = t.breaker.Execute(ctx, fetch)
	} else {
		err = fetch(ctx)
	}
	if err != nil {
		run.Error = err.Error()
		entry := logger.WithError(err)
		if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
			entry.Warn("Adapter skipped, circuit breaker open")
		} else if sf, ok := adapter.AsScanFailure(err); ok {
			entry.WithField("category", apperrors.Categorize(sf.Cause).Category).Warn("Adapter scan failed")
		} else {
			entry.Warn("Adapter scan failed")
		}
		return run, nil
	}

	run.Fetched = len(transfers)
	for _, tr := range transfers {
		entry, isNew, err := w.store.Upsert(ctx, models.NewDetectedEntry(tr))
		if err != nil {
			run.FailedWrites++
			logger.WithError(err).WithField("txHash", tr.Hash).Error("Failed to persist transfer, skipping")
			continue
		}
		run.Persisted++
		if isNew {
			run.Created++
			created = append(created, entry)
			logger.WithFields(map[string]interface{}{
				"txHash": entry.TxHash,
				"amount": entry.Amount.String(),
			}).Info("New payment detected")
		}
	}

	logger.WithFields(map[string]interface{}{
		"fetched":   run.Fetched,
		"persisted": run.Persisted,
		"created":   run.Created,
	}).Debug("Adapter scan complete")
	return run, created
}

// afterTick publishes new entries, invalidates the cache and records the
// tick in the scan log. Failures here are logged only.
func (w *ScanWorker) afterTick(ctx context.Context, result *TickResult) {
	logger := w.logger.WithField("tickId", result.TickID)

	w.publishDetected(ctx, logger, result.NewEntries)

	persisted := 0
	for _, run := range result.Runs {
		persisted += run.Persisted
	}
	if w.cache != nil && persisted > 0 {
		if err := w.cache.InvalidateLedger(ctx); err != nil {
			logger.WithError(err).Warn("Failed to invalidate ledger cache")
		}
	}

	if w.scanLog != nil {
		if err := w.scanLog.RecordRuns(ctx, result.Runs); err != nil {
			logger.WithError(err).Warn("Failed to record scan runs")
		}
	}

	logger.WithFields(map[string]interface{}{
		"duration": result.Duration.String(),
		"created":  result.Created(),
	}).Info("Scan tick complete")
}

// publishDetected sends the events held back by earlier failures followed
// by this tick's. On failure everything is kept for the next tick.
func (w *ScanWorker) publishDetected(ctx context.Context, logger *logging.Logger, entries []*models.LedgerEntry) {
	batch := append(w.pending, entries...)
	if len(batch) == 0 {
		return
	}

	if err := w.publisher.PublishDetected(ctx, batch); err != nil {
		if dropped := len(batch) - maxPendingEvents; dropped > 0 {
			logger.WithField("dropped", dropped).Error("Detection event backlog full, dropping oldest events")
			batch = batch[dropped:]
		}
		w.setPending(batch)
		logger.WithError(err).WithField("pending", len(batch)).Warn("Failed to publish detection events, retrying next tick")
		return
	}

	if len(w.pending) > 0 {
		logger.WithField("count", len(w.pending)).Info("Published held back detection events")
	}
	w.setPending(nil)
}

func (w *ScanWorker) setPending(entries []*models.LedgerEntry) {
	w.pending = entries
	w.pendingCount.Store(int64(len(entries)))
	if w.metrics != nil {
		w.metrics.PendingEvents.Set(float64(len(entries)))
	}
}

// GetStatus returns current worker status
func (w *ScanWorker) GetStatus() *ScanWorkerStatus {
	w.mu.RLock()
	status := &ScanWorkerStatus{
		Running:         w.running,
		Scanning:        w.scanning.Load(),
		IntervalSeconds: int(w.interval.Seconds()),
		Ticks:           w.ticks,
		Skipped:         w.skipped,
		PendingEvents:   w.pendingCount.Load(),
		LastTick:        w.lastTick,
	}
	w.mu.RUnlock()

	for _, t := range w.targets {
		as := AdapterStatus{
			Network: t.adapter.Network(),
			Address: t.adapter.Address(),
			Health:  t.adapter.Health(),
		}
		if t.breaker != nil {
			as.Breaker = t.breaker.GetStats()
		}
		status.Adapters = append(status.Adapters, as)
	}
	return status
}
