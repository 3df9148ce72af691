package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	apperrors "github.com/payment-scanner/internal/errors"
	"github.com/payment-scanner/internal/models"
	"github.com/payment-scanner/internal/types"
)

type depositDoc struct {
	ID        primitive.ObjectID   `bson:"_id,omitempty"`
	UserID    string               `bson:"userId"`
	Amount    primitive.Decimal128 `bson:"amount"`
	Network   string               `bson:"network"`
	Address   string               `bson:"address"`
	Status    string               `bson:"status"`
	CreatedAt time.Time            `bson:"createdAt"`
	UpdatedAt time.Time            `bson:"updatedAt"`
}

type withdrawalDoc struct {
	ID            primitive.ObjectID   `bson:"_id,omitempty"`
	UserID        string               `bson:"userId"`
	Amount        primitive.Decimal128 `bson:"amount"`
	BankName      string               `bson:"bankName"`
	AccountNumber string               `bson:"accountNumber"`
	IFSC          string               `bson:"ifsc"`
	Status        string               `bson:"status"`
	CreatedAt     time.Time            `bson:"createdAt"`
	UpdatedAt     time.Time            `bson:"updatedAt"`
}

type bankDoc struct {
	ID            primitive.ObjectID `bson:"_id,omitempty"`
	UserID        string             `bson:"userId"`
	Name          string             `bson:"name"`
	AccountNumber string             `bson:"accountNumber"`
	IFSC          string             `bson:"ifsc"`
	UPI           string             `bson:"upi"`
	Email         string             `bson:"email"`
	CreatedAt     time.Time          `bson:"createdAt"`
	UpdatedAt     time.Time          `bson:"updatedAt"`
}

var newestFirst = options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})

// CreateDeposit inserts a deposit
func (m *Mongo) CreateDeposit(ctx context.Context, d *models.Deposit) (*models.Deposit, error) {
	amount, err := toDecimal128(d.Amount)
	if err != nil {
		return nil, apperrors.NewPersistenceError("create deposit", err)
	}

	now := time.Now().UTC()
	doc := depositDoc{
		ID: primitive.NewObjectID(), UserID: d.UserID, Amount: amount, Network: d.Network,
		Address: d.Address, Status: string(d.Status), CreatedAt: now, UpdatedAt: now,
	}
	if _, err := m.db.Collection(colDeposits).InsertOne(ctx, doc); err != nil {
		return nil, apperrors.NewPersistenceError("create deposit", err)
	}

	saved := *d
	saved.ID = doc.ID.Hex()
	saved.CreatedAt, saved.UpdatedAt = now, now
	return &saved, nil
}

// ListDeposits returns deposits, newest first
func (m *Mongo) ListDeposits(ctx context.Context) ([]*models.Deposit, error) {
	var docs []depositDoc
	if err := m.findAll(ctx, colDeposits, &docs); err != nil {
		return nil, apperrors.NewPersistenceError("list deposits", err)
	}

	deposits := make([]*models.Deposit, 0, len(docs))
	for _, doc := range docs {
		amount, err := fromDecimal128(doc.Amount)
		if err != nil {
			return nil, apperrors.NewPersistenceError("list deposits", err)
		}
		deposits = append(deposits, &models.Deposit{
			ID: doc.ID.Hex(), UserID: doc.UserID, Amount: amount, Network: doc.Network, Address: doc.Address,
			Status: types.DepositStatus(doc.Status), CreatedAt: doc.CreatedAt.UTC(), UpdatedAt: doc.UpdatedAt.UTC(),
		})
	}
	return deposits, nil
}

// CreateWithdrawal inserts a withdrawal request
func (m *Mongo) CreateWithdrawal(ctx context.Context, w *models.Withdrawal) (*models.Withdrawal, error) {
	amount, err := toDecimal128(w.Amount)
	if err != nil {
		return nil, apperrors.NewPersistenceError("create withdrawal", err)
	}

	now := time.Now().UTC()
	doc := withdrawalDoc{
		ID: primitive.NewObjectID(), UserID: w.UserID, Amount: amount, BankName: w.BankName,
		AccountNumber: w.AccountNumber, IFSC: w.IFSC, Status: string(w.Status), CreatedAt: now, UpdatedAt: now,
	}
	if _, err := m.db.Collection(colWithdrawals).InsertOne(ctx, doc); err != nil {
		return nil, apperrors.NewPersistenceError("create withdrawal", err)
	}

	saved := *w
	saved.ID = doc.ID.Hex()
	saved.CreatedAt, saved.UpdatedAt = now, now
	return &saved, nil
}

// ListWithdrawals returns withdrawals, newest first
func (m *Mongo) ListWithdrawals(ctx context.Context) ([]*models.Withdrawal, error) {
	var docs []withdrawalDoc
	if err := m.findAll(ctx, colWithdrawals, &docs); err != nil {
		return nil, apperrors.NewPersistenceError("list withdrawals", err)
	}

	withdrawals := make([]*models.Withdrawal, 0, len(docs))
	for _, doc := range docs {
		amount, err := fromDecimal128(doc.Amount)
		if err != nil {
			return nil, apperrors.NewPersistenceError("list withdrawals", err)
		}
		withdrawals = append(withdrawals, &models.Withdrawal{
			ID: doc.ID.Hex(), UserID: doc.UserID, Amount: amount, BankName: doc.BankName,
			AccountNumber: doc.AccountNumber, IFSC: doc.IFSC, Status: types.WithdrawalStatus(doc.Status),
			CreatedAt: doc.CreatedAt.UTC(), UpdatedAt: doc.UpdatedAt.UTC(),
		})
	}
	return withdrawals, nil
}

// UpdateWithdrawalStatus sets a withdrawal status
func (m *Mongo) UpdateWithdrawalStatus(ctx context.Context, id string, status types.WithdrawalStatus) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return apperrors.NewNotFoundError("withdrawal", id)
	}

	res, err := m.db.Collection(colWithdrawals).UpdateOne(ctx,
		bson.M{"_id": oid},
		bson.M{"$set": bson.M{"status": string(status), "updatedAt": time.Now().UTC()}})
	if err != nil {
		return apperrors.NewPersistenceError("update withdrawal status", err)
	}
	if res.MatchedCount == 0 {
		return apperrors.NewNotFoundError("withdrawal", id)
	}
	return nil
}

// CreateBank inserts a bank
func (m *Mongo) CreateBank(ctx context.Context, b *models.Bank) (*models.Bank, error) {
	now := time.Now().UTC()
	doc := bankDoc{
		ID: primitive.NewObjectID(), UserID: b.UserID, Name: b.Name, AccountNumber: b.AccountNumber,
		IFSC: b.IFSC, UPI: b.UPI, Email: b.Email, CreatedAt: now, UpdatedAt: now,
	}
	if _, err := m.db.Collection(colBanks).InsertOne(ctx, doc); err != nil {
		return nil, apperrors.NewPersistenceError("create bank", err)
	}

	saved := *b
	saved.ID = doc.ID.Hex()
	saved.CreatedAt, saved.UpdatedAt = now, now
	return &saved, nil
}

// ListBanks returns banks, newest first
func (m *Mongo) ListBanks(ctx context.Context) ([]*models.Bank, error) {
	var docs []bankDoc
	if err := m.findAll(ctx, colBanks, &docs); err != nil {
		return nil, apperrors.NewPersistenceError("list banks", err)
	}

	banks := make([]*models.Bank, 0, len(docs))
	for _, doc := range docs {
		banks = append(banks, &models.Bank{
			ID: doc.ID.Hex(), UserID: doc.UserID, Name: doc.Name, AccountNumber: doc.AccountNumber,
			IFSC: doc.IFSC, UPI: doc.UPI, Email: doc.Email,
			CreatedAt: doc.CreatedAt.UTC(), UpdatedAt: doc.UpdatedAt.UTC(),
		})
	}
	return banks, nil
}

func (m *Mongo) findAll(ctx context.Context, collection string, out interface{}) error {
	cur, err := m.db.Collection(collection).Find(ctx, bson.D{}, newestFirst)
	if err != nil {
		return err
	}
	return cur.All(ctx, out)
}
