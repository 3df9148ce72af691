// Package sqlite implements the ledger and record stores on an embedded
// SQLite database. Amounts are stored as decimal text and timestamps as unix
// nanoseconds.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/payment-scanner/internal/errors"
	"github.com/payment-scanner/internal/models"
	"github.com/payment-scanner/internal/storage"
	"github.com/payment-scanner/internal/types"
	"github.com/shopspring/decimal"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// MemoryPath opens a private in-memory database
const MemoryPath = ":memory:"

const ledgerColumns = `id, network, tx_hash, address, amount, status, used, created_at, updated_at`

// Store is the SQLite-backed storage.Store
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ storage.Store = (*Store)(nil)

// Open opens (creating if needed) the database at path and applies the schema
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := path
	if path != MemoryPath {
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection serializes writers and keeps a :memory: database alive
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := NewMigrator(db).Up(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, now: time.Now}, nil
}

// Ping checks the database
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// timestamp returns a strictly increasing unix-nano time so that creation
// order survives coarse clocks
func (s *Store) timestamp(ctx context.Context, q queryer) (int64, error) {
	now := s.now().UnixNano()
	var last sql.NullInt64
	if err := q.QueryRowContext(ctx, `SELECT MAX(created_at) FROM ledger_entries`).Scan(&last); err != nil {
		return 0, err
	}
	if last.Valid && last.Int64 >= now {
		now = last.Int64 + 1
	}
	return now, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// Upsert inserts the entry with used=0 or refreshes the mutable columns of the
// existing row. used is never part of the update.
func (s *Store) Upsert(ctx context.Context, entry *models.LedgerEntry) (*models.LedgerEntry, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, apperrors.NewPersistenceError("upsert ledger entry", err)
	}
	defer func() { _ = tx.Rollback() }()

	var existing string
	err = tx.QueryRowContext(ctx, `SELECT id FROM ledger_entries WHERE tx_hash = ?`, entry.TxHash).Scan(&existing)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, false, apperrors.NewPersistenceError("upsert ledger entry", err)
	}
	created := errors.Is(err, sql.ErrNoRows)

	now, err := s.timestamp(ctx, tx)
	if err != nil {
		return nil, false, apperrors.NewPersistenceError("upsert ledger entry", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO ledger_entries (`+ledgerColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)
		ON CONFLICT(tx_hash) DO UPDATE SET
			network = excluded.network,
			address = excluded.address,
			amount = excluded.amount,
			status = excluded.status,
			updated_at = excluded.updated_at
	`, uuid.New().String(), string(entry.Network), entry.TxHash, entry.Address,
		entry.Amount.String(), string(entry.Status), now, now)
	if err != nil {
		return nil, false, apperrors.NewPersistenceError("upsert ledger entry", err)
	}

	saved, err := scanLedgerEntry(tx.QueryRowContext(ctx,
		`SELECT `+ledgerColumns+` FROM ledger_entries WHERE tx_hash = ?`, entry.TxHash))
	if err != nil {
		return nil, false, apperrors.NewPersistenceError("upsert ledger entry", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, false, apperrors.NewPersistenceError("upsert ledger entry", err)
	}

	return saved, created, nil
}

// Create inserts a manually recorded entry. A duplicate hash is a conflict.
func (s *Store) Create(ctx context.Context, entry *models.LedgerEntry) (*models.LedgerEntry, error) {
	now, err := s.timestamp(ctx, s.db)
	if err != nil {
		return nil, apperrors.NewPersistenceError("create ledger entry", err)
	}

	id := uuid.New().String()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO ledger_entries (`+ledgerColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, string(entry.Network), entry.TxHash, entry.Address,
		entry.Amount.String(), string(entry.Status), boolToInt(entry.Used), now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperrors.NewConflictError(fmt.Sprintf("transaction %s already recorded", entry.TxHash))
		}
		return nil, apperrors.NewPersistenceError("create ledger entry", err)
	}

	return s.GetByID(ctx, id)
}

// GetByID retrieves an entry by id
func (s *Store) GetByID(ctx context.Context, id string) (*models.LedgerEntry, error) {
	entry, err := scanLedgerEntry(s.db.QueryRowContext(ctx,
		`SELECT `+ledgerColumns+` FROM ledger_entries WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("transaction", id)
		}
		return nil, apperrors.NewPersistenceError("get ledger entry", err)
	}
	return entry, nil
}

// MarkUsed sets used=1. Marking an already used entry succeeds.
func (s *Store) MarkUsed(ctx context.Context, id string) (*models.LedgerEntry, error) {
	return s.ApplyUpdate(ctx, id, &models.LedgerUpdate{MarkUsed: true})
}

// UpdateStatus sets the entry status
func (s *Store) UpdateStatus(ctx context.Context, id string, status types.EntryStatus) (*models.LedgerEntry, error) {
	return s.ApplyUpdate(ctx, id, &models.LedgerUpdate{Status: &status})
}

// ApplyUpdate sets status and/or used in one statement
func (s *Store) ApplyUpdate(ctx context.Context, id string, update *models.LedgerUpdate) (*models.LedgerEntry, error) {
	if update.Empty() {
		return s.GetByID(ctx, id)
	}

	var status interface{}
	if update.Status != nil {
		status = string(*update.Status)
	}
	used := 0
	if update.MarkUsed {
		used = 1
	}
	return s.update(ctx, "update ledger entry", id,
		`UPDATE ledger_entries SET status = COALESCE(?, status), used = MAX(used, ?), updated_at = ? WHERE id = ?`,
		status, used, s.now().UnixNano(), id)
}

func (s *Store) update(ctx context.Context, op, id, query string, args ...interface{}) (*models.LedgerEntry, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewPersistenceError(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, apperrors.NewPersistenceError(op, err)
	}
	if n == 0 {
		return nil, apperrors.NewNotFoundError("transaction", id)
	}
	return s.GetByID(ctx, id)
}

// ListAll returns every entry, newest first
func (s *Store) ListAll(ctx context.Context) ([]*models.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+ledgerColumns+` FROM ledger_entries ORDER BY created_at DESC, rowid DESC`)
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

// SumConfirmed adds confirmed amounts with decimal arithmetic; SQLite's SUM
// would go through float64
func (s *Store) SumConfirmed(ctx context.Context) (decimal.Decimal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT amount FROM ledger_entries WHERE status = ?`, string(types.StatusConfirmed))
	if err != nil {
		return decimal.Zero, apperrors.NewPersistenceError("sum confirmed amounts", err)
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return decimal.Zero, apperrors.NewPersistenceError("sum confirmed amounts", err)
		}
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			return decimal.Zero, apperrors.NewPersistenceError("sum confirmed amounts",
				fmt.Errorf("invalid stored amount %q: %w", raw, err))
		}
		total = total.Add(amount)
	}
	if err := rows.Err(); err != nil {
		return decimal.Zero, apperrors.NewPersistenceError("sum confirmed amounts", err)
	}
	return total, nil
}

func scanLedgerEntry(row rowScanner) (*models.LedgerEntry, error) {
	var (
		entry                models.LedgerEntry
		network, status, amt string
		used                 int
		createdAt, updatedAt int64
	)
	if err := row.Scan(&entry.ID, &network, &entry.TxHash, &entry.Address, &amt, &status,
		&used, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	amount, err := decimal.NewFromString(amt)
	if err != nil {
		return nil, fmt.Errorf("invalid stored amount %q: %w", amt, err)
	}
	entry.Amount = amount
	entry.Network = types.Network(network)
	entry.Status = types.EntryStatus(status)
	entry.Used = used != 0
	entry.CreatedAt = time.Unix(0, createdAt).UTC()
	entry.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return &entry, nil
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	return errors.As(err, &se) &&
		(se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE || se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY)
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
