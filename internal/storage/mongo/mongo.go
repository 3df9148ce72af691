// Package mongo implements the ledger and record stores on MongoDB.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	mgo "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	apperrors "github.com/payment-scanner/internal/errors"
	"github.com/payment-scanner/internal/models"
	"github.com/payment-scanner/internal/storage"
	"github.com/payment-scanner/internal/types"
	"github.com/shopspring/decimal"
)

// Collection names
const (
	colTransactions = "transactions"
	colDeposits     = "deposits"
	colWithdrawals  = "withdrawals"
	colBanks        = "banks"
)

// Mongo implements storage.Store on a MongoDB database
type Mongo struct {
	c  *mgo.Client
	db *mgo.Database
}

var _ storage.Store = (*Mongo)(nil)

type ledgerDoc struct {
	ID        primitive.ObjectID   `bson:"_id,omitempty"`
	Network   string               `bson:"network"`
	TxHash    string               `bson:"txHash"`
	Address   string               `bson:"address"`
	Amount    primitive.Decimal128 `bson:"amount"`
	Status    string               `bson:"status"`
	Used      bool                 `bson:"used"`
	CreatedAt time.Time            `bson:"createdAt"`
	UpdatedAt time.Time            `bson:"updatedAt"`
}

func (d *ledgerDoc) entry() (*models.LedgerEntry, error) {
	amount, err := fromDecimal128(d.Amount)
	if err != nil {
		return nil, err
	}
	return &models.LedgerEntry{
		ID:        d.ID.Hex(),
		Network:   types.Network(d.Network),
		TxHash:    d.TxHash,
		Address:   d.Address,
		Amount:    amount,
		Status:    types.EntryStatus(d.Status),
		Used:      d.Used,
		CreatedAt: d.CreatedAt.UTC(),
		UpdatedAt: d.UpdatedAt.UTC(),
	}, nil
}

// New connects to uri, selects database and ensures indexes
func New(ctx context.Context, uri, database string) (*Mongo, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	c, err := mgo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("cannot connect to mongo DB: %w", err)
	}
	if err := c.Ping(ctx, nil); err != nil {
		_ = c.Disconnect(context.Background())
		return nil, fmt.Errorf("error pinging mongo DB: %w", err)
	}

	m := &Mongo{c: c, db: c.Database(database)}
	if err := m.ensureIndexes(ctx); err != nil {
		_ = c.Disconnect(context.Background())
		return nil, err
	}
	return m, nil
}

func (m *Mongo) ensureIndexes(ctx context.Context) error {
	_, err := m.db.Collection(colTransactions).Indexes().CreateMany(ctx, []mgo.IndexModel{
		{Keys: bson.D{{Key: "txHash", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "status", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create transaction indexes: %w", err)
	}
	return nil
}

// Ping checks the primary
func (m *Mongo) Ping(ctx context.Context) error {
	return m.c.Ping(ctx, nil)
}

// Close disconnects the client
func (m *Mongo) Close() error {
	return m.c.Disconnect(context.Background())
}

// Drop removes the database. Used by tests.
func (m *Mongo) Drop(ctx context.Context) error {
	return m.db.Drop(ctx)
}

// Upsert refreshes network, address, amount, status and updatedAt. used and
// createdAt are only written when the document is inserted.
func (m *Mongo) Upsert(ctx context.Context, entry *models.LedgerEntry) (*models.LedgerEntry, bool, error) {
	amount, err := toDecimal128(entry.Amount)
	if err != nil {
		return nil, false, apperrors.NewPersistenceError("upsert ledger entry", err)
	}

	col := m.db.Collection(colTransactions)
	now := time.Now().UTC()
	filter := bson.M{"txHash": entry.TxHash}
	update := bson.M{
		"$set": bson.M{
			"network":   string(entry.Network),
			"address":   entry.Address,
			"amount":    amount,
			"status":    string(entry.Status),
			"updatedAt": now,
		},
		"$setOnInsert": bson.M{
			"used":      false,
			"createdAt": now,
		},
	}

	res, err := col.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if mgo.IsDuplicateKeyError(err) {
		// two upserts raced on the unique index; the retry takes the update path
		res, err = col.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	}
	if err != nil {
		return nil, false, apperrors.NewPersistenceError("upsert ledger entry", err)
	}

	var doc ledgerDoc
	if err := col.FindOne(ctx, filter).Decode(&doc); err != nil {
		return nil, false, apperrors.NewPersistenceError("upsert ledger entry", err)
	}
	saved, err := doc.entry()
	if err != nil {
		return nil, false, apperrors.NewPersistenceError("upsert ledger entry", err)
	}
	return saved, res.UpsertedCount == 1, nil
}

// Create inserts a manually recorded entry. A duplicate hash is a conflict.
func (m *Mongo) Create(ctx context.Context, entry *models.LedgerEntry) (*models.LedgerEntry, error) {
	amount, err := toDecimal128(entry.Amount)
	if err != nil {
		return nil, apperrors.NewPersistenceError("create ledger entry", err)
	}

	now := time.Now().UTC()
	doc := ledgerDoc{
		ID:        primitive.NewObjectID(),
		Network:   string(entry.Network),
		TxHash:    entry.TxHash,
		Address:   entry.Address,
		Amount:    amount,
		Status:    string(entry.Status),
		Used:      entry.Used,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := m.db.Collection(colTransactions).InsertOne(ctx, doc); err != nil {
		if mgo.IsDuplicateKeyError(err) {
			return nil, apperrors.NewConflictError(fmt.Sprintf("transaction %s already recorded", entry.TxHash))
		}
		return nil, apperrors.NewPersistenceError("create ledger entry", err)
	}

	saved, err := doc.entry()
	if err != nil {
		return nil, apperrors.NewPersistenceError("create ledger entry", err)
	}
	return saved, nil
}

// GetByID retrieves an entry by its ObjectID hex
func (m *Mongo) GetByID(ctx context.Context, id string) (*models.LedgerEntry, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, apperrors.NewNotFoundError("transaction", id)
	}

	var doc ledgerDoc
	err = m.db.Collection(colTransactions).FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if errors.Is(err, mgo.ErrNoDocuments) {
		return nil, apperrors.NewNotFoundError("transaction", id)
	}
	if err != nil {
		return nil, apperrors.NewPersistenceError("get ledger entry", err)
	}

	entry, err := doc.entry()
	if err != nil {
		return nil, apperrors.NewPersistenceError("get ledger entry", err)
	}
	return entry, nil
}

// MarkUsed sets used=true. Marking an already used entry succeeds.
func (m *Mongo) MarkUsed(ctx context.Context, id string) (*models.LedgerEntry, error) {
	return m.ApplyUpdate(ctx, id, &models.LedgerUpdate{MarkUsed: true})
}

// UpdateStatus sets the entry status
func (m *Mongo) UpdateStatus(ctx context.Context, id string, status types.EntryStatus) (*models.LedgerEntry, error) {
	return m.ApplyUpdate(ctx, id, &models.LedgerUpdate{Status: &status})
}

// ApplyUpdate sets status and/or used in one findAndModify
func (m *Mongo) ApplyUpdate(ctx context.Context, id string, update *models.LedgerUpdate) (*models.LedgerEntry, error) {
	if update.Empty() {
		return m.GetByID(ctx, id)
	}

	set := bson.M{}
	if update.Status != nil {
		set["status"] = string(*update.Status)
	}
	if update.MarkUsed {
		set["used"] = true
	}
	return m.findAndSet(ctx, "update ledger entry", id, set)
}

func (m *Mongo) findAndSet(ctx context.Context, op, id string, set bson.M) (*models.LedgerEntry, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, apperrors.NewNotFoundError("transaction", id)
	}
	set["updatedAt"] = time.Now().UTC()

	var doc ledgerDoc
	err = m.db.Collection(colTransactions).FindOneAndUpdate(ctx,
		bson.M{"_id": oid},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if errors.Is(err, mgo.ErrNoDocuments) {
		return nil, apperrors.NewNotFoundError("transaction", id)
	}
	if err != nil {
		return nil, apperrors.NewPersistenceError(op, err)
	}

	entry, err := doc.entry()
	if err != nil {
		return nil, apperrors.NewPersistenceError(op, err)
	}
	return entry, nil
}

// ListAll returns every entry, newest first
func (m *Mongo) ListAll(ctx context.Context) ([]*models.LedgerEntry, error) {
	cur, err := m.db.Collection(colTransactions).Find(ctx, bson.D{},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}))
	if err != nil {
		return nil, apperrors.NewPersistenceError("list ledger entries", err)
	}
	defer func() { _ = cur.Close(ctx) }()

	entries := make([]*models.LedgerEntry, 0)
	for cur.Next(ctx) {
		var doc ledgerDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, apperrors.NewPersistenceError("decode ledger entry", err)
		}
		entry, err := doc.entry()
		if err != nil {
			return nil, apperrors.NewPersistenceError("decode ledger entry", err)
		}
		entries = append(entries, entry)
	}
	if err := cur.Err(); err != nil {
		return nil, apperrors.NewPersistenceError("iterate ledger entries", err)
	}
	return entries, nil
}

// SumConfirmed sums confirmed amounts server side in Decimal128
func (m *Mongo) SumConfirmed(ctx context.Context) (decimal.Decimal, error) {
	pipeline := mgo.Pipeline{
		{{Key: "$match", Value: bson.M{"status": string(types.StatusConfirmed)}}},
		{{Key: "$group", Value: bson.M{"_id": nil, "total": bson.M{"$sum": "$amount"}}}},
	}

	cur, err := m.db.Collection(colTransactions).Aggregate(ctx, pipeline)
	if err != nil {
		return decimal.Zero, apperrors.NewPersistenceError("sum confirmed amounts", err)
	}
	defer func() { _ = cur.Close(ctx) }()

	if !cur.Next(ctx) {
		if err := cur.Err(); err != nil {
			return decimal.Zero, apperrors.NewPersistenceError("sum confirmed amounts", err)
		}
		return decimal.Zero, nil
	}

	var result struct {
		Total primitive.Decimal128 `bson:"total"`
	}
	if err := cur.Decode(&result); err != nil {
		return decimal.Zero, apperrors.NewPersistenceError("sum confirmed amounts", err)
	}
	total, err := fromDecimal128(result.Total)
	if err != nil {
		return decimal.Zero, apperrors.NewPersistenceError("sum confirmed amounts", err)
	}
	return total, nil
}

func toDecimal128(d decimal.Decimal) (primitive.Decimal128, error) {
	v, err := primitive.ParseDecimal128(d.String())
	if err != nil {
		return primitive.Decimal128{}, fmt.Errorf("amount %s does not fit Decimal128: %w", d, err)
	}
	return v, nil
}

func fromDecimal128(v primitive.Decimal128) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(v.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid stored amount %q: %w", v.String(), err)
	}
	return d, nil
}
