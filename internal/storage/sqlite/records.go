package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/payment-scanner/internal/errors"
	"github.com/payment-scanner/internal/models"
	"github.com/payment-scanner/internal/types"
	"github.com/shopspring/decimal"
)

// CreateDeposit inserts a deposit
func (s *Store) CreateDeposit(ctx context.Context, d *models.Deposit) (*models.Deposit, error) {
	now := s.now().UTC()
	saved := *d
	saved.ID = uuid.New().String()
	saved.CreatedAt, saved.UpdatedAt = now, now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO deposits (id, user_id, amount, network, address, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, saved.ID, saved.UserID, saved.Amount.String(), saved.Network, saved.Address, string(saved.Status),
		now.UnixNano(), now.UnixNano())
	if err != nil {
		return nil, apperrors.NewPersistenceError("create deposit", err)
	}
	return &saved, nil
}

// ListDeposits returns deposits, newest first
func (s *Store) ListDeposits(ctx context.Context) ([]*models.Deposit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, amount, network, address, status, created_at, updated_at
		FROM deposits ORDER BY created_at DESC, rowid DESC
	`)
	if err != nil {
		return nil, apperrors.NewPersistenceError("list deposits", err)
	}
	defer rows.Close()

	deposits := make([]*models.Deposit, 0)
	for rows.Next() {
		var (
			d                    models.Deposit
			amount, status       string
			createdAt, updatedAt int64
		)
		if err := rows.Scan(&d.ID, &d.UserID, &amount, &d.Network, &d.Address, &status, &createdAt, &updatedAt); err != nil {
			return nil, apperrors.NewPersistenceError("scan deposit", err)
		}
		if d.Amount, err = parseAmount(amount); err != nil {
			return nil, apperrors.NewPersistenceError("scan deposit", err)
		}
		d.Status = types.DepositStatus(status)
		d.CreatedAt, d.UpdatedAt = fromNanos(createdAt), fromNanos(updatedAt)
		deposits = append(deposits, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewPersistenceError("iterate deposits", err)
	}
	return deposits, nil
}

// CreateWithdrawal inserts a withdrawal request
func (s *Store) CreateWithdrawal(ctx context.Context, w *models.Withdrawal) (*models.Withdrawal, error) {
	now := s.now().UTC()
	saved := *w
	saved.ID = uuid.New().String()
	saved.CreatedAt, saved.UpdatedAt = now, now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO withdrawals (id, user_id, amount, bank_name, account_number, ifsc, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, saved.ID, saved.UserID, saved.Amount.String(), saved.BankName, saved.AccountNumber, saved.IFSC,
		string(saved.Status), now.UnixNano(), now.UnixNano())
	if err != nil {
		return nil, apperrors.NewPersistenceError("create withdrawal", err)
	}
	return &saved, nil
}

// ListWithdrawals returns withdrawals, newest first
func (s *Store) ListWithdrawals(ctx context.Context) ([]*models.Withdrawal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, amount, bank_name, account_number, ifsc, status, created_at, updated_at
		FROM withdrawals ORDER BY created_at DESC, rowid DESC
	`)
	if err != nil {
		return nil, apperrors.NewPersistenceError("list withdrawals", err)
	}
	defer rows.Close()

	withdrawals := make([]*models.Withdrawal, 0)
	for rows.Next() {
		var (
			w                    models.Withdrawal
			amount, status       string
			createdAt, updatedAt int64
		)
		if err := rows.Scan(&w.ID, &w.UserID, &amount, &w.BankName, &w.AccountNumber, &w.IFSC, &status,
			&createdAt, &updatedAt); err != nil {
			return nil, apperrors.NewPersistenceError("scan withdrawal", err)
		}
		if w.Amount, err = parseAmount(amount); err != nil {
			return nil, apperrors.NewPersistenceError("scan withdrawal", err)
		}
		w.Status = types.WithdrawalStatus(status)
		w.CreatedAt, w.UpdatedAt = fromNanos(createdAt), fromNanos(updatedAt)
		withdrawals = append(withdrawals, &w)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewPersistenceError("iterate withdrawals", err)
	}
	return withdrawals, nil
}

// UpdateWithdrawalStatus sets a withdrawal status
func (s *Store) UpdateWithdrawalStatus(ctx context.Context, id string, status types.WithdrawalStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE withdrawals SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), s.now().UnixNano(), id)
	if err != nil {
		return apperrors.NewPersistenceError("update withdrawal status", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperrors.NewPersistenceError("update withdrawal status", err)
	}
	if n == 0 {
		return apperrors.NewNotFoundError("withdrawal", id)
	}
	return nil
}

// CreateBank inserts a bank
func (s *Store) CreateBank(ctx context.Context, b *models.Bank) (*models.Bank, error) {
	now := s.now().UTC()
	saved := *b
	saved.ID = uuid.New().String()
	saved.CreatedAt, saved.UpdatedAt = now, now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO banks (id, user_id, name, account_number, ifsc, upi, email, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, saved.ID, saved.UserID, saved.Name, saved.AccountNumber, saved.IFSC, saved.UPI, saved.Email,
		now.UnixNano(), now.UnixNano())
	if err != nil {
		return nil, apperrors.NewPersistenceError("create bank", err)
	}
	return &saved, nil
}

// ListBanks returns banks, newest first
func (s *Store) ListBanks(ctx context.Context) ([]*models.Bank, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, name, account_number, ifsc, upi, email, created_at, updated_at
		FROM banks ORDER BY created_at DESC, rowid DESC
	`)
	if err != nil {
		return nil, apperrors.NewPersistenceError("list banks", err)
	}
	defer rows.Close()

	banks := make([]*models.Bank, 0)
	for rows.Next() {
		var (
			b                    models.Bank
			createdAt, updatedAt int64
		)
		if err := rows.Scan(&b.ID, &b.UserID, &b.Name, &b.AccountNumber, &b.IFSC, &b.UPI, &b.Email,
			&createdAt, &updatedAt); err != nil {
			return nil, apperrors.NewPersistenceError("scan bank", err)
		}
		b.CreatedAt, b.UpdatedAt = fromNanos(createdAt), fromNanos(updatedAt)
		banks = append(banks, &b)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewPersistenceError("iterate banks", err)
	}
	return banks, nil
}

func parseAmount(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid stored amount %q: %w", raw, err)
	}
	return d, nil
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
