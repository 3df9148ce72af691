package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	apperrors "github.com/payment-scanner/internal/errors"
	"github.com/payment-scanner/internal/models"
	"github.com/payment-scanner/internal/types"
	"github.com/shopspring/decimal"
)

// pgUniqueViolation is the SQLSTATE for a unique constraint failure
const pgUniqueViolation = "23505"

const ledgerColumns = `id::text, network, tx_hash, address, amount::text, status, used, created_at, updated_at`

// LedgerRepository handles ledger entry persistence in Postgres
type LedgerRepository struct {
	db *PostgresDB
}

// NewLedgerRepository creates a new ledger repository
func NewLedgerRepository(db *PostgresDB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// Upsert inserts or refreshes the entry for entry.TxHash. The used column is
// absent from the update set, so a concurrent MarkUsed is never overwritten.
func (r *LedgerRepository) Upsert(ctx context.Context, entry *models.LedgerEntry) (*models.LedgerEntry, bool, error) {
	query := `
		INSERT INTO ledger_entries (id, network, tx_hash, address, amount, status, used, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, FALSE, NOW(), NOW())
		ON CONFLICT (tx_hash) DO UPDATE SET
			network = EXCLUDED.network,
			address = EXCLUDED.address,
			amount = EXCLUDED.amount,
			status = EXCLUDED.status,
			updated_at = NOW()
		RETURNING ` + ledgerColumns + `, (xmax = 0) AS inserted
	`

	var inserted bool
	row := r.db.Pool().QueryRow(ctx, query,
		uuid.New().String(),
		string(entry.Network),
		entry.TxHash,
		entry.Address,
		entry.Amount.String(),
		string(entry.Status),
	)
	saved, err := scanLedgerEntry(row, &inserted)
	if err != nil {
		return nil, false, apperrors.NewPersistenceError("upsert ledger entry", err)
	}

	return saved, inserted, nil
}

// Create inserts a manually recorded entry. A duplicate hash is a conflict.
func (r *LedgerRepository) Create(ctx context.Context, entry *models.LedgerEntry) (*models.LedgerEntry, error) {
	query := `
		INSERT INTO ledger_entries (id, network, tx_hash, address, amount, status, used, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, NOW(), NOW())
		RETURNING ` + ledgerColumns

	row := r.db.Pool().QueryRow(ctx, query,
		uuid.New().String(),
		string(entry.Network),
		entry.TxHash,
		entry.Address,
		entry.Amount.String(),
		string(entry.Status),
		entry.Used,
	)
	saved, err := scanLedgerEntry(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, apperrors.NewConflictError(fmt.Sprintf("transaction %s already recorded", entry.TxHash))
		}
		return nil, apperrors.NewPersistenceError("create ledger entry", err)
	}

	return saved, nil
}

// GetByID retrieves an entry by id
func (r *LedgerRepository) GetByID(ctx context.Context, id string) (*models.LedgerEntry, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperrors.NewNotFoundError("transaction", id)
	}

	query := `SELECT ` + ledgerColumns + ` FROM ledger_entries WHERE id = $1`
	entry, err := scanLedgerEntry(r.db.Pool().QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("transaction", id)
		}
		return nil, apperrors.NewPersistenceError("get ledger entry", err)
	}

	return entry, nil
}

// MarkUsed sets used=true. Marking an already used entry succeeds.
func (r *LedgerRepository) MarkUsed(ctx context.Context, id string) (*models.LedgerEntry, error) {
	return r.ApplyUpdate(ctx, id, &models.LedgerUpdate{MarkUsed: true})
}

// UpdateStatus sets the entry status
func (r *LedgerRepository) UpdateStatus(ctx context.Context, id string, status types.EntryStatus) (*models.LedgerEntry, error) {
	return r.ApplyUpdate(ctx, id, &models.LedgerUpdate{Status: &status})
}

// ApplyUpdate sets status and/or used in one statement. used is only ever
// OR-ed with the requested flag.
func (r *LedgerRepository) ApplyUpdate(ctx context.Context, id string, update *models.LedgerUpdate) (*models.LedgerEntry, error) {
	if update.Empty() {
		return r.GetByID(ctx, id)
	}

	var status interface{}
	if update.Status != nil {
		status = string(*update.Status)
	}
	return r.update(ctx, "update ledger entry", id,
		`UPDATE ledger_entries
		 SET status = COALESCE($2, status), used = used OR $3, updated_at = NOW()
		 WHERE id = $1 RETURNING `+ledgerColumns,
		status, update.MarkUsed)
}

func (r *LedgerRepository) update(ctx context.Context, op, id, query string, args ...interface{}) (*models.LedgerEntry, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperrors.NewNotFoundError("transaction", id)
	}

	entry, err := scanLedgerEntry(r.db.Pool().QueryRow(ctx, query, append([]interface{}{id}, args...)...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("transaction", id)
		}
		return nil, apperrors.NewPersistenceError(op, err)
	}

	return entry, nil
}

// ListAll returns every entry, newest first
func (r *LedgerRepository) ListAll(ctx context.Context) ([]*models.LedgerEntry, error) {
	query := `SELECT ` + ledgerColumns + ` FROM ledger_entries ORDER BY created_at DESC, id DESC`

	rows, err := r.db.Pool().Query(ctx, query)
	if err != nil {
		return nil, apperrors.NewPersistenceError("list ledger entries", err)
	}
	defer rows.Close()

	entries := make([]*models.LedgerEntry, 0)
	for rows.Next() {
		entry, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, apperrors.NewPersistenceError("scan ledger entry", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewPersistenceError("iterate ledger entries", err)
	}

	return entries, nil
}

// SumConfirmed returns the exact sum of confirmed amounts
func (r *LedgerRepository) SumConfirmed(ctx context.Context) (decimal.Decimal, error) {
	query := `SELECT COALESCE(SUM(amount), 0)::text FROM ledger_entries WHERE status = $1`

	var total string
	if err := r.db.Pool().QueryRow(ctx, query, string(types.StatusConfirmed)).Scan(&total); err != nil {
		return decimal.Zero, apperrors.NewPersistenceError("sum confirmed amounts", err)
	}

	sum, err := decimal.NewFromString(total)
	if err != nil {
		return decimal.Zero, apperrors.NewPersistenceError("parse confirmed sum", err)
	}
	return sum, nil
}

// scanLedgerEntry reads ledgerColumns plus any extra trailing destinations
func scanLedgerEntry(row pgx.Row, extra ...interface{}) (*models.LedgerEntry, error) {
	var (
		entry   models.LedgerEntry
		network string
		status  string
		amount  string
	)

	dest := append([]interface{}{
		&entry.ID,
		&network,
		&entry.TxHash,
		&entry.Address,
		&amount,
		&status,
		&entry.Used,
		&entry.CreatedAt,
		&entry.UpdatedAt,
	}, extra...)

	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	parsed, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid stored amount %q: %w", amount, err)
	}
	entry.Amount = parsed
	entry.Network = types.Network(network)
	entry.Status = types.EntryStatus(status)

	return &entry, nil
}
