package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/payment-scanner/internal/models"
	"github.com/payment-scanner/internal/types"
)

// ScanLog records per-adapter tick outcomes
type ScanLog interface {
	RecordRuns(ctx context.Context, runs []*models.ScanRun) error
}

// ScanLogRepository appends scan runs to ClickHouse
type ScanLogRepository struct {
	db *ClickHouseDB
}

// NewScanLogRepository creates a new scan log repository
func NewScanLogRepository(db *ClickHouseDB) *ScanLogRepository {
	return &ScanLogRepository{db: db}
}

// RecordRuns inserts runs in one batch
func (r *ScanLogRepository) RecordRuns(ctx context.Context, runs []*models.ScanRun) error {
	if len(runs) == 0 {
		return nil
	}

	batch, err := r.db.Conn().PrepareBatch(ctx, `
		INSERT INTO scan_runs (
			tick_id, network, started_at, duration_ms, fetched, persisted, created, failed_writes, error
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for _, run := range runs {
		err := batch.Append(
			run.TickID,
			string(run.Network),
			run.StartedAt.UTC(),
			uint32(run.Duration.Milliseconds()), // #nosec G115 - tick durations are far below 49 days
			uint32(run.Fetched),                 // #nosec G115
			uint32(run.Persisted),               // #nosec G115
			uint32(run.Created),                 // #nosec G115
			uint32(run.FailedWrites),            // #nosec G115
			run.Error,
		)
		if err != nil {
			return fmt.Errorf("failed to append scan run %s/%s: %w", run.TickID, run.Network, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send scan run batch: %w", err)
	}
	return nil
}

// Recent returns the latest runs for a network, newest first
func (r *ScanLogRepository) Recent(ctx context.Context, network types.Network, limit int) ([]*models.ScanRun, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Conn().Query(ctx, `
		SELECT tick_id, network, started_at, duration_ms, fetched, persisted, created, failed_writes, error
		FROM scan_runs
		WHERE network = ?
		ORDER BY started_at DESC
		LIMIT ?
	`, string(network), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query scan runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.ScanRun
	for rows.Next() {
		var (
			run                                                models.ScanRun
			net                                                string
			durationMs, fetched, persisted, created, failedRun uint32
		)
		if err := rows.Scan(&run.TickID, &net, &run.StartedAt, &durationMs,
			&fetched, &persisted, &created, &failedRun, &run.Error); err != nil {
			return nil, fmt.Errorf("failed to scan scan run: %w", err)
		}
		run.Network = types.Network(net)
		run.Duration = time.Duration(durationMs) * time.Millisecond
		run.Fetched = int(fetched)
		run.Persisted = int(persisted)
		run.Created = int(created)
		run.FailedWrites = int(failedRun)
		runs = append(runs, &run)
	}

	return runs, rows.Err()
}
