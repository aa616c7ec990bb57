// Package journal keeps an off-chain record of every program transaction the
// service submitted, so callers can list an account's transactions without
// scanning the ledger.
package journal

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const collection = "transactions"

// Entry is one submitted transaction.
type Entry struct {
	ID          string    `bson:"_id" json:"id"`
	Signature   string    `bson:"signature" json:"signature"`
	Instruction string    `bson:"instruction" json:"instruction"`
	Account     string    `bson:"account" json:"account"`
	Payer       string    `bson:"payer" json:"payer"`
	CreatedAt   time.Time `bson:"created_at" json:"created_at"`
}

// Journal records and lists submitted transactions.
type Journal interface {
	Record(ctx context.Context, e Entry) error
	ListByAccount(ctx context.Context, account string, limit int64) ([]Entry, error)
}

type MongoJournal struct {
	coll *mongo.Collection
}

// NewMongoJournal sets up the collection with a unique index on signature and
// a lookup index on (account, created_at).
func NewMongoJournal(ctx context.Context, client *mongo.Client, dbName string) (*MongoJournal, error) {
	coll := client.Database(dbName).Collection(collection)
	_, err := coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "signature", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "account", Value: 1}, {Key: "created_at", Value: -1}},
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "create journal indexes")
	}
	return &MongoJournal{coll: coll}, nil
}

// Record stores e. Recording the same signature twice is not an error.
func (j *MongoJournal) Record(ctx context.Context, e Entry) error {
	if e.Signature == "" {
		return errors.New("missing signature")
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := j.coll.InsertOne(ctx, e)
	if mongo.IsDuplicateKeyError(err) {
		return nil
	}
	return errors.Wrapf(err, "record %s", e.Signature)
}

// ListByAccount returns up to limit entries for account, newest first.
func (j *MongoJournal) ListByAccount(ctx context.Context, account string, limit int64) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	cur, err := j.coll.Find(ctx,
		bson.D{{Key: "account", Value: account}},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(limit),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "list transactions of %s", account)
	}
	out := []Entry{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, errors.Wrap(err, "decode transactions")
	}
	return out, nil
}

func (j *MongoJournal) Ping(ctx context.Context) error {
	return j.coll.Database().Client().Ping(ctx, nil)
}
