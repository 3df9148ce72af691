package models

import (
	"time"

	"github.com/payment-scanner/internal/types"
	"github.com/shopspring/decimal"
)

// Deposit is a manually recorded incoming payment
type Deposit struct {
	ID        string              `json:"id" db:"id"`
	UserID    string              `json:"userId" db:"user_id"`
	Amount    decimal.Decimal     `json:"amount" db:"amount"`
	Network   string              `json:"network" db:"network"`
	Address   string              `json:"address" db:"address"`
	Status    types.DepositStatus `json:"status" db:"status"`
	CreatedAt time.Time           `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time           `json:"updatedAt" db:"updated_at"`
}

// Withdrawal is a payout request awaiting approval
type Withdrawal struct {
	ID            string                 `json:"id" db:"id"`
	UserID        string                 `json:"userId" db:"user_id"`
	Amount        decimal.Decimal        `json:"amount" db:"amount"`
	BankName      string                 `json:"bankName" db:"bank_name"`
	AccountNumber string                 `json:"accountNumber" db:"account_number"`
	IFSC          string                 `json:"ifsc,omitempty" db:"ifsc"`
	Status        types.WithdrawalStatus `json:"status" db:"status"`
	CreatedAt     time.Time              `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time              `json:"updatedAt" db:"updated_at"`
}

// Bank is a payout destination registered by a user
type Bank struct {
	ID            string    `json:"id" db:"id"`
	UserID        string    `json:"userId,omitempty" db:"user_id"`
	Name          string    `json:"name" db:"name"`
	AccountNumber string    `json:"accountNumber,omitempty" db:"account_number"`
	IFSC          string    `json:"ifsc,omitempty" db:"ifsc"`
	UPI           string    `json:"upi,omitempty" db:"upi"`
	Email         string    `json:"email,omitempty" db:"email"`
	CreatedAt     time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time `json:"updatedAt" db:"updated_at"`
}
