package db

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// lazyClient returns a client that has not talked to any server yet.
func lazyClient(ctx context.Context) (*mongo.Client, error) {
	return mongo.Connect(ctx, options.Client().ApplyURI("mongodb://127.0.0.1:1"))
}

func newTestStore(dial func(ctx context.Context) (*mongo.Client, error)) *Store {
	return &Store{
		dbName:         "fleet_relay_test",
		connectTimeout: 5 * time.Second,
		dial:           dial,
	}
}

func TestStore_Database_SharesOneConnectAttempt(t *testing.T) {
	var calls int32
	store := newTestStore(func(ctx context.Context) (*mongo.Client, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(50 * time.Millisecond)
		return lazyClient(ctx)
	})
	defer store.Close(context.Background())

	var wg sync.WaitGroup
	results := make([]*mongo.Database, 20)
	errs := make([]error, 20)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = store.Database(context.Background())
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	for i := range results {
		require.NoError(t, errs[i])
		assert.Same(t, results[0], results[i])
	}
	assert.Equal(t, "fleet_relay_test", results[0].Name())
}

func TestStore_Database_RetriesAfterFailure(t *testing.T) {
	var calls int32
	store := newTestStore(func(ctx context.Context) (*mongo.Client, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return nil, errors.New("connection refused")
		}
		return lazyClient(ctx)
	})
	defer store.Close(context.Background())

	_, err := store.Database(context.Background())
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	db, err := store.Database(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, db)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestStore_Database_CallerContextCancelled(t *testing.T) {
	release := make(chan struct{})
	store := newTestStore(func(ctx context.Context) (*mongo.Client, error) {
		<-release
		return lazyClient(ctx)
	})
	defer store.Close(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := store.Database(ctx)
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	close(release)
	db, err := store.Database(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, db)
}

func TestStore_CloseWithoutConnect(t *testing.T) {
	store := NewStore("mongodb://127.0.0.1:1", "unused")
	assert.NoError(t, store.Close(context.Background()))
}

func TestConnectMongo_BadURI(t *testing.T) {
	client, err := ConnectMongo(context.Background(), "mongodb://bad:uri")
	assert.Error(t, err)
	assert.Nil(t, client)
}

// Integration test (requires running MongoDB)
func TestMongoCollections_Integration(t *testing.T) {
	uri := os.Getenv("MONGO_URI")
	if uri == "" || uri == "uri" {
		t.Skip("MONGO_URI not set or invalid, skipping integration test")
		return
	}

	store := NewStore(uri, "fleet_relay_test")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	defer store.Close(context.Background())

	database, err := store.Database(ctx)
	if err != nil {
		t.Skipf("failed to connect: %v, skipping integration test", err)
		return
	}
	for _, name := range []string{OTPCollectionName, DeviceCollectionName, TelemetryCollectionName, WebhookCollectionName} {
		require.NoError(t, database.Collection(name).Drop(ctx))
	}
	require.NoError(t, EnsureIndexes(ctx, database))

	t.Run("otp", func(t *testing.T) {
		runOTPCollectionContract(t, &MongoOTPCollection{Store: store})
	})
	t.Run("devices", func(t *testing.T) {
		runDeviceCollectionContract(t, &MongoDeviceCollection{Store: store})
	})
	t.Run("telemetry", func(t *testing.T) {
		runTelemetryCollectionContract(t, &MongoTelemetryCollection{Store: store})
	})
	t.Run("webhooks", func(t *testing.T) {
		runWebhookCollectionContract(t, &MongoWebhookCollection{Store: store})
	})
}
