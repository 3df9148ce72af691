package service

import (
	"context"
	"strings"

	apperrors "github.com/payment-scanner/internal/errors"
	"github.com/payment-scanner/internal/logging"
	"github.com/payment-scanner/internal/models"
	"github.com/payment-scanner/internal/storage"
	"github.com/payment-scanner/internal/types"
	"github.com/shopspring/decimal"
)

// DefaultUserID is assigned to withdrawals submitted without a user
const DefaultUserID = "demo"

// RecordService keeps the manual deposit, withdrawal and bank records
type RecordService struct {
	store  storage.RecordStore
	logger *logging.Logger
}

// NewRecordService creates a new record service
func NewRecordService(store storage.RecordStore) *RecordService {
	return &RecordService{
		store:  store,
		logger: logging.Component("record_service"),
	}
}

// CreateDepositInput is a manually recorded deposit
type CreateDepositInput struct {
	UserID  string              `json:"userId"`
	Amount  decimal.Decimal     `json:"amount"`
	Network string              `json:"network"`
	Address string              `json:"address"`
	Status  types.DepositStatus `json:"status,omitempty"`
}

// CreateWithdrawalInput is a payout request
type CreateWithdrawalInput struct {
	UserID        string                 `json:"userId"`
	Amount        decimal.Decimal        `json:"amount"`
	BankName      string                 `json:"bankName"`
	AccountNumber string                 `json:"accountNumber"`
	IFSC          string                 `json:"ifsc,omitempty"`
	Status        types.WithdrawalStatus `json:"status,omitempty"`
}

// CreateBankInput is a payout destination
type CreateBankInput struct {
	UserID        string `json:"userId"`
	Name          string `json:"name"`
	AccountNumber string `json:"accountNumber"`
	IFSC          string `json:"ifsc"`
	UPI           string `json:"upi"`
	Email         string `json:"email"`
}

// ListDeposits returns deposits newest first
func (s *RecordService) ListDeposits(ctx context.Context) ([]*models.Deposit, error) {
	return s.store.ListDeposits(ctx)
}

// CreateDeposit records a deposit
func (s *RecordService) CreateDeposit(ctx context.Context, input *CreateDepositInput) (*models.Deposit, error) {
	if input == nil {
		return nil, apperrors.NewValidationError("body", "request body is required")
	}
	if input.Amount.IsNegative() {
		return nil, apperrors.NewValidationError("amount", "amount must not be negative")
	}
	status := input.Status
	if status == "" {
		status = types.DepositPending
	}
	if !status.IsValid() {
		return nil, apperrors.NewValidationError("status", "status must be pending, success or failed")
	}

	return s.store.CreateDeposit(ctx, &models.Deposit{
		UserID:  strings.TrimSpace(input.UserID),
		Amount:  input.Amount,
		Network: strings.TrimSpace(input.Network),
		Address: strings.TrimSpace(input.Address),
		Status:  status,
	})
}

// ListWithdrawals returns withdrawals newest first
func (s *RecordService) ListWithdrawals(ctx context.Context) ([]*models.Withdrawal, error) {
	return s.store.ListWithdrawals(ctx)
}

// CreateWithdrawal records a payout request
func (s *RecordService) CreateWithdrawal(ctx context.Context, input *CreateWithdrawalInput) (*models.Withdrawal, error) {
	if input == nil || input.Amount.IsZero() ||
		strings.TrimSpace(input.BankName) == "" || strings.TrimSpace(input.AccountNumber) == "" {
		return nil, apperrors.NewValidationError("body", "amount, bankName and accountNumber are required")
	}
	if input.Amount.IsNegative() {
		return nil, apperrors.NewValidationError("amount", "amount must be positive")
	}
	status := input.Status
	if status == "" {
		status = types.WithdrawalPending
	}
	if !status.IsValid() {
		return nil, apperrors.NewValidationError("status", "status must be pending, approved or rejected")
	}
	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		userID = DefaultUserID
	}

	w, err := s.store.CreateWithdrawal(ctx, &models.Withdrawal{
		UserID:        userID,
		Amount:        input.Amount,
		BankName:      strings.TrimSpace(input.BankName),
		AccountNumber: strings.TrimSpace(input.AccountNumber),
		IFSC:          strings.TrimSpace(input.IFSC),
		Status:        status,
	})
	if err != nil {
		return nil, err
	}
	s.logger.WithFields(map[string]interface{}{
		"id":     w.ID,
		"userId": w.UserID,
		"amount": w.Amount.String(),
	}).Info("Withdrawal requested")
	return w, nil
}

// UpdateWithdrawalStatus approves or rejects a withdrawal
func (s *RecordService) UpdateWithdrawalStatus(ctx context.Context, id string, status types.WithdrawalStatus) error {
	if !status.IsValid() {
		return apperrors.NewValidationError("status", "status must be pending, approved or rejected")
	}
	if err := s.store.UpdateWithdrawalStatus(ctx, id, status); err != nil {
		return err
	}
	s.logger.WithFields(map[string]interface{}{
		"id":     id,
		"status": status,
	}).Info("Withdrawal status updated")
	return nil
}

// ListBanks returns banks newest first
func (s *RecordService) ListBanks(ctx context.Context) ([]*models.Bank, error) {
	return s.store.ListBanks(ctx)
}

// CreateBank validates and stores a bank account. The first failing rule is
// reported.
func (s *RecordService) CreateBank(ctx context.Context, input *CreateBankInput) (*models.Bank, error) {
	if input == nil {
		return nil, apperrors.NewValidationError("body", "request body is required")
	}
	b := &models.Bank{
		UserID:        strings.TrimSpace(input.UserID),
		Name:          strings.TrimSpace(input.Name),
		AccountNumber: strings.TrimSpace(input.AccountNumber),
		IFSC:          strings.TrimSpace(input.IFSC),
		UPI:           strings.TrimSpace(input.UPI),
		Email:         strings.TrimSpace(input.Email),
	}
	if err := validateBank(b); err != nil {
		return nil, err
	}
	return s.store.CreateBank(ctx, b)
}

func validateBank(b *models.Bank) error {
	switch {
	case b.Name == "":
		return apperrors.NewValidationError("name", "Name is required")
	case b.AccountNumber == "":
		return apperrors.NewValidationError("accountNumber", "Account Number is required")
	case len(b.AccountNumber) < 8:
		return apperrors.NewValidationError("accountNumber", "Account number must be at least 8 digits")
	case b.IFSC == "":
		return apperrors.NewValidationError("ifsc", "IFSC code is required")
	case len(b.IFSC) != 11:
		return apperrors.NewValidationError("ifsc", "IFSC must be 11 characters")
	case b.UPI == "":
		return apperrors.NewValidationError("upi", "UPI ID is required")
	case !strings.Contains(b.UPI, "@"):
		return apperrors.NewValidationError("upi", "Invalid UPI ID")
	case b.Email == "":
		return apperrors.NewValidationError("email", "Email is required")
	case !strings.Contains(b.Email, "@"):
		return apperrors.NewValidationError("email", "Invalid Email Address")
	}
	return nil
}
