package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	ErrMissingKey = errors.New("missing key")
	ErrUnknownKey = errors.New("unknown key")
)

// APIKeyStore validates API keys and provides a health ping.
type APIKeyStore interface {
	Validate(ctx context.Context, key string) (bool, error)
	Ping(ctx context.Context) error
}

// APIKeyCreator issues and revokes keys for the admin and signup handlers.
type APIKeyCreator interface {
	Create(ctx context.Context, key string, owner string) error
	Revoke(ctx context.Context, key string) error
}

type cacheEntry struct {
	active    bool
	expiresAt time.Time
}

// MongoAPIKeyStore keeps SHA-256 digests of API keys, never the keys
// themselves, and caches lookups (including misses) for cacheTTL.
type MongoAPIKeyStore struct {
	coll     *mongo.Collection
	cacheTTL time.Duration
	mu       sync.RWMutex
	cache    map[string]cacheEntry
}

type apiKeyDoc struct {
	Digest    string    `bson:"digest"`
	Active    bool      `bson:"active"`
	Owner     string    `bson:"owner,omitempty"`
	CreatedAt time.Time `bson:"created_at"`
}

// NewMongoAPIKeyStore sets up the collection and unique index on digest.
func NewMongoAPIKeyStore(ctx context.Context, client *mongo.Client, dbName string, ttl time.Duration) (*MongoAPIKeyStore, error) {
	coll := client.Database(dbName).Collection("api_keys")
	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "digest", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return nil, errors.Wrap(err, "create api key index")
	}
	return &MongoAPIKeyStore{
		coll:     coll,
		cacheTTL: ttl,
		cache:    make(map[string]cacheEntry),
	}, nil
}

func digest(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// remember caches a lookup result for d. Expired entries are dropped on the
// way, so unknown keys cannot grow the cache past one TTL's worth.
func (s *MongoAPIKeyStore) remember(d string, active bool) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, ce := range s.cache {
		if !now.Before(ce.expiresAt) {
			delete(s.cache, k)
		}
	}
	s.cache[d] = cacheEntry{active: active, expiresAt: now.Add(s.cacheTTL)}
}

func (s *MongoAPIKeyStore) Validate(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, ErrMissingKey
	}
	d := digest(key)
	s.mu.RLock()
	ce, ok := s.cache[d]
	s.mu.RUnlock()
	if ok && time.Now().Before(ce.expiresAt) {
		return ce.active, nil
	}

	var doc apiKeyDoc
	err := s.coll.FindOne(ctx, bson.D{{Key: "digest", Value: d}}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			// negative results are cached too, to keep bad keys off the DB
			s.remember(d, false)
			return false, nil
		}
		return false, errors.Wrap(err, "find api key")
	}
	s.remember(d, doc.Active)
	return doc.Active, nil
}

func (s *MongoAPIKeyStore) Ping(ctx context.Context) error {
	return s.coll.Database().Client().Ping(ctx, nil)
}

// Create inserts or re-activates key for owner.
func (s *MongoAPIKeyStore) Create(ctx context.Context, key string, owner string) error {
	if key == "" {
		return ErrMissingKey
	}
	d := digest(key)
	_, err := s.coll.UpdateOne(ctx,
		bson.D{{Key: "digest", Value: d}},
		bson.D{
			{Key: "$set", Value: bson.D{{Key: "active", Value: true}, {Key: "owner", Value: owner}}},
			{Key: "$setOnInsert", Value: bson.D{{Key: "created_at", Value: time.Now().UTC()}}},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return errors.Wrap(err, "upsert api key")
	}
	s.remember(d, true)
	return nil
}

// Revoke deactivates key. Revoking an unknown key returns ErrUnknownKey.
func (s *MongoAPIKeyStore) Revoke(ctx context.Context, key string) error {
	if key == "" {
		return ErrMissingKey
	}
	d := digest(key)
	res, err := s.coll.UpdateOne(ctx,
		bson.D{{Key: "digest", Value: d}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "active", Value: false}}}},
	)
	if err != nil {
		return errors.Wrap(err, "revoke api key")
	}
	if res.MatchedCount == 0 {
		return ErrUnknownKey
	}
	s.remember(d, false)
	return nil
}

// HashPrefix returns the first 8 hex chars of SHA-256(key) for logging.
func HashPrefix(key string) string {
	return digest(key)[:8]
}
