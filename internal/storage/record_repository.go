package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	apperrors "github.com/payment-scanner/internal/errors"
	"github.com/payment-scanner/internal/models"
	"github.com/payment-scanner/internal/types"
	"github.com/shopspring/decimal"
)

// RecordRepository handles deposits, withdrawals and banks in Postgres
type RecordRepository struct {
	db *PostgresDB
}

// NewRecordRepository creates a new record repository
func NewRecordRepository(db *PostgresDB) *RecordRepository {
	return &RecordRepository{db: db}
}

// CreateDeposit inserts a deposit
func (r *RecordRepository) CreateDeposit(ctx context.Context, d *models.Deposit) (*models.Deposit, error) {
	query := `
		INSERT INTO deposits (id, user_id, amount, network, address, status, created_at, updated_at)
		VALUES ($1, $2, $3::numeric, $4, $5, $6, NOW(), NOW())
		RETURNING id::text, user_id, amount::text, network, address, status, created_at, updated_at
	`

	saved, err := scanDeposit(r.db.Pool().QueryRow(ctx, query,
		uuid.New().String(), d.UserID, d.Amount.String(), d.Network, d.Address, string(d.Status)))
	if err != nil {
		return nil, apperrors.NewPersistenceError("create deposit", err)
	}
	return saved, nil
}

// ListDeposits returns deposits, newest first
func (r *RecordRepository) ListDeposits(ctx context.Context) ([]*models.Deposit, error) {
	rows, err := r.db.Pool().Query(ctx, `
		SELECT id::text, user_id, amount::text, network, address, status, created_at, updated_at
		FROM deposits ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, apperrors.NewPersistenceError("list deposits", err)
	}
	defer rows.Close()

	deposits := make([]*models.Deposit, 0)
	for rows.Next() {
		d, err := scanDeposit(rows)
		if err != nil {
			return nil, apperrors.NewPersistenceError("scan deposit", err)
		}
		deposits = append(deposits, d)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewPersistenceError("iterate deposits", err)
	}
	return deposits, nil
}

// CreateWithdrawal inserts a withdrawal request
func (r *RecordRepository) CreateWithdrawal(ctx context.Context, w *models.Withdrawal) (*models.Withdrawal, error) {
	query := `
		INSERT INTO withdrawals (id, user_id, amount, bank_name, account_number, ifsc, status, created_at, updated_at)
		VALUES ($1, $2, $3::numeric, $4, $5, $6, $7, NOW(), NOW())
		RETURNING id::text, user_id, amount::text, bank_name, account_number, ifsc, status, created_at, updated_at
	`

	saved, err := scanWithdrawal(r.db.Pool().QueryRow(ctx, query,
		uuid.New().String(), w.UserID, w.Amount.String(), w.BankName, w.AccountNumber, w.IFSC, string(w.Status)))
	if err != nil {
		return nil, apperrors.NewPersistenceError("create withdrawal", err)
	}
	return saved, nil
}

// ListWithdrawals returns withdrawals, newest first
func (r *RecordRepository) ListWithdrawals(ctx context.Context) ([]*models.Withdrawal, error) {
	rows, err := r.db.Pool().Query(ctx, `
		SELECT id::text, user_id, amount::text, bank_name, account_number, ifsc, status, created_at, updated_at
		FROM withdrawals ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, apperrors.NewPersistenceError("list withdrawals", err)
	}
	defer rows.Close()

	withdrawals := make([]*models.Withdrawal, 0)
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, apperrors.NewPersistenceError("scan withdrawal", err)
		}
		withdrawals = append(withdrawals, w)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewPersistenceError("iterate withdrawals", err)
	}
	return withdrawals, nil
}

// UpdateWithdrawalStatus sets a withdrawal status
func (r *RecordRepository) UpdateWithdrawalStatus(ctx context.Context, id string, status types.WithdrawalStatus) error {
	if _, err := uuid.Parse(id); err != nil {
		return apperrors.NewNotFoundError("withdrawal", id)
	}

	tag, err := r.db.Pool().Exec(ctx,
		`UPDATE withdrawals SET status = $2, updated_at = NOW() WHERE id = $1`, id, string(status))
	if err != nil {
		return apperrors.NewPersistenceError("update withdrawal status", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NewNotFoundError("withdrawal", id)
	}
	return nil
}

// CreateBank inserts a bank
func (r *RecordRepository) CreateBank(ctx context.Context, b *models.Bank) (*models.Bank, error) {
	query := `
		INSERT INTO banks (id, user_id, name, account_number, ifsc, upi, email, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		RETURNING id::text, user_id, name, account_number, ifsc, upi, email, created_at, updated_at
	`

	saved, err := scanBank(r.db.Pool().QueryRow(ctx, query,
		uuid.New().String(), b.UserID, b.Name, b.AccountNumber, b.IFSC, b.UPI, b.Email))
	if err != nil {
		return nil, apperrors.NewPersistenceError("create bank", err)
	}
	return saved, nil
}

// ListBanks returns banks, newest first
func (r *RecordRepository) ListBanks(ctx context.Context) ([]*models.Bank, error) {
	rows, err := r.db.Pool().Query(ctx, `
		SELECT id::text, user_id, name, account_number, ifsc, upi, email, created_at, updated_at
		FROM banks ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, apperrors.NewPersistenceError("list banks", err)
	}
	defer rows.Close()

	banks := make([]*models.Bank, 0)
	for rows.Next() {
		b, err := scanBank(rows)
		if err != nil {
			return nil, apperrors.NewPersistenceError("scan bank", err)
		}
		banks = append(banks, b)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewPersistenceError("iterate banks", err)
	}
	return banks, nil
}

func scanDeposit(row pgx.Row) (*models.Deposit, error) {
	var d models.Deposit
	var amount, status string
	if err := row.Scan(&d.ID, &d.UserID, &amount, &d.Network, &d.Address, &status, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	parsed, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid stored amount %q: %w", amount, err)
	}
	d.Amount = parsed
	d.Status = types.DepositStatus(status)
	return &d, nil
}

func scanWithdrawal(row pgx.Row) (*models.Withdrawal, error) {
	var w models.Withdrawal
	var amount, status string
	if err := row.Scan(&w.ID, &w.UserID, &amount, &w.BankName, &w.AccountNumber, &w.IFSC, &status, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, err
	}
	parsed, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid stored amount %q: %w", amount, err)
	}
	w.Amount = parsed
	w.Status = types.WithdrawalStatus(status)
	return &w, nil
}

func scanBank(row pgx.Row) (*models.Bank, error) {
	var b models.Bank
	if err := row.Scan(&b.ID, &b.UserID, &b.Name, &b.AccountNumber, &b.IFSC, &b.UPI, &b.Email, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	return &b, nil
}
