package db

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrStoreUnavailable is returned when the database cannot be reached.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("not found")
)

// Collection names
const (
	OTPCollectionName       = "otps"
	DeviceCollectionName    = "device_tokens"
	TelemetryCollectionName = "telemetry_logs"
	WebhookCollectionName   = "webhooks"
)

const defaultConnectTimeout = 10 * time.Second

// ConnectMongo connects to MongoDB and verifies the connection with a ping.
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo.Connect error: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo.Ping error: %w", err)
	}
	return client, nil
}

// Store owns the process-wide MongoDB connection. The connection is opened
// on first use; concurrent first callers share one connection attempt and
// a failed attempt is retried by the next caller.
type Store struct {
	dbName         string
	connectTimeout time.Duration
	dial           func(ctx context.Context) (*mongo.Client, error)
	setup          func(ctx context.Context, db *mongo.Database) error

	group singleflight.Group
	mu    sync.RWMutex
	// guarded by mu
	client *mongo.Client
	db     *mongo.Database
}

// NewStore creates a store for the given URI and database name. No
// connection is made until the first call to Database.
func NewStore(uri, dbName string) *Store {
	return &Store{
		dbName:         dbName,
		connectTimeout: defaultConnectTimeout,
		dial: func(ctx context.Context) (*mongo.Client, error) {
			return ConnectMongo(ctx, uri)
		},
		setup: EnsureIndexes,
	}
}

// Database returns the connected database, connecting if needed.
func (s *Store) Database(ctx context.Context) (*mongo.Database, error) {
	if db := s.current(); db != nil {
		return db, nil
	}

	ch := s.group.DoChan("connect", func() (interface{}, error) {
		if db := s.current(); db != nil {
			return db, nil
		}
		// The attempt is shared, so it must not inherit one caller's deadline.
		connectCtx, cancel := context.WithTimeout(context.Background(), s.connectTimeout)
		defer cancel()

		client, err := s.dial(connectCtx)
		if err != nil {
			log.WithError(err).Error("Failed to connect to MongoDB")
			return nil, err
		}
		db := client.Database(s.dbName)
		if s.setup != nil {
			if err := s.setup(connectCtx, db); err != nil {
				log.WithError(err).Warn("Failed to ensure MongoDB indexes")
			}
		}

		s.mu.Lock()
		s.client = client
		s.db = db
		s.mu.Unlock()

		log.WithField("database", s.dbName).Info("Connected to MongoDB")
		return db, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, res.Err)
		}
		return res.Val.(*mongo.Database), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, ctx.Err())
	}
}

// Collection returns a handle to the named collection.
func (s *Store) Collection(ctx context.Context, name string) (*mongo.Collection, error) {
	db, err := s.Database(ctx)
	if err != nil {
		return nil, err
	}
	return db.Collection(name), nil
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	db, err := s.Database(ctx)
	if err != nil {
		return err
	}
	if err := db.Client().Ping(ctx, nil); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Close disconnects the client if one was opened.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	client := s.client
	s.client = nil
	s.db = nil
	s.mu.Unlock()

	if client == nil {
		return nil
	}
	return client.Disconnect(ctx)
}

func (s *Store) current() *mongo.Database {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db
}

// EnsureIndexes creates the indexes every collection relies on, including
// the TTL index that expires OTP records.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	indexes := map[string][]mongo.IndexModel{
		OTPCollectionName: {
			{
				Keys:    bson.D{{Key: "expires_at", Value: 1}},
				Options: options.Index().SetExpireAfterSeconds(0),
			},
			{Keys: bson.D{{Key: "phone_number", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		DeviceCollectionName: {
			{
				Keys:    bson.D{{Key: "token", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "vehicle_id", Value: 1}, {Key: "active", Value: 1}}},
		},
		TelemetryCollectionName: {
			{Keys: bson.D{{Key: "device_id", Value: 1}, {Key: "received_at", Value: -1}}},
		},
		WebhookCollectionName: {
			{Keys: bson.D{{Key: "timestamp", Value: -1}}},
		},
	}

	for name, models := range indexes {
		if _, err := db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", name, err)
		}
	}
	return nil
}
