package decorators

import (
	"context"
	"errors"
	"testing"
	"time"

	"strivesync-backend/internal/infrastructure/observability"
	"strivesync-backend/internal/keys"
	"strivesync-backend/internal/repository"
	"strivesync-backend/internal/repository/memory"
	appErrors "strivesync-backend/pkg/errors"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newMemory() *memory.Store {
	return memory.NewStore(repository.DefaultSchema("t", "GSI1", "EmailIndex"))
}

func testItem(pk, sk string) repository.Item {
	return repository.Item{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}
}

func TestLoggingStore(t *testing.T) {
	ctx := context.Background()
	core, logs := observer.New(zapcore.DebugLevel)
	inner := newMemory()
	store := NewLoggingStore(inner, zap.New(core), DefaultLoggingConfig())

	t.Run("Should log successful operations at debug", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, testItem("A", "B"), true))

		entries := logs.FilterMessage("store operation completed").All()
		require.Len(t, entries, 1)
		assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
		assert.Equal(t, "put", entries[0].ContextMap()["operation"])
	})

	t.Run("Should keep expected outcomes out of the error log", func(t *testing.T) {
		err := store.Put(ctx, testItem("A", "B"), true)
		assert.ErrorIs(t, err, appErrors.ErrAlreadyExists)
		assert.Zero(t, logs.FilterLevelExact(zapcore.ErrorLevel).Len())
	})

	t.Run("Should log store failures at error", func(t *testing.T) {
		inner.SetError("Get", appErrors.NewUnavailableError("GetItem", errors.New("timeout")))
		defer inner.ClearErrors()

		_, err := store.Get(ctx, keys.Primary{PK: "A", SK: "B"})
		require.Error(t, err)
		assert.Equal(t, 1, logs.FilterMessage("store operation failed").Len())
	})

	t.Run("Should log a query once it has been consumed", func(t *testing.T) {
		before := logs.FilterField(zap.String("operation", "query")).Len()
		_, err := repository.Collect(store.Query(ctx, repository.QueryInput{Partition: "A"}))
		require.NoError(t, err)
		entries := logs.FilterField(zap.String("operation", "query")).All()
		require.Len(t, entries, before+1)
		assert.EqualValues(t, 1, entries[len(entries)-1].ContextMap()["items"])
	})

	t.Run("Should warn about slow operations", func(t *testing.T) {
		slow := NewLoggingStore(newMemory(), zap.New(core), LoggingConfig{SlowThreshold: time.Nanosecond})
		time.Sleep(time.Millisecond)
		_, err := slow.Get(ctx, keys.Primary{PK: "x", SK: "y"})
		require.NoError(t, err)
		assert.GreaterOrEqual(t, logs.FilterMessage("slow store operation completed").Len(), 1)
	})
}

func TestMetricsStore(t *testing.T) {
	ctx := context.Background()
	collector := observability.NewCollector("test")
	store := NewMetricsStore(newMemory(), collector)

	require.NoError(t, store.Put(ctx, testItem("A", "B"), true))
	assert.ErrorIs(t, store.Put(ctx, testItem("A", "B"), true), appErrors.ErrAlreadyExists)
	_, err := repository.Collect(store.Query(ctx, repository.QueryInput{Partition: "A"}))
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.StoreOperations.WithLabelValues("put", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.StoreOperations.WithLabelValues("put", "ALREADY_EXISTS")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.StoreOperations.WithLabelValues("query", "success")))
}

func TestCircuitBreakerStore(t *testing.T) {
	ctx := context.Background()
	inner := newMemory()
	config := CircuitBreakerConfig{
		Name:             "store",
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          time.Minute,
		FailureThreshold: 0.5,
		MinRequests:      2,
	}
	store := NewCircuitBreakerStore(inner, config, zap.NewNop(), observability.NewCollector("cb"))

	t.Run("Should not trip on expected outcomes", func(t *testing.T) {
		for range 5 {
			err := store.Delete(ctx, keys.Primary{PK: "missing", SK: "x"}, true)
			assert.ErrorIs(t, err, appErrors.ErrNotFound)
		}
		assert.Equal(t, gobreaker.StateClosed, store.State())
	})

	t.Run("Should open after repeated store failures", func(t *testing.T) {
		inner.SetError("Get", appErrors.NewUnavailableError("GetItem", errors.New("timeout")))
		for range 10 {
			_, _ = store.Get(ctx, keys.Primary{PK: "a", SK: "b"})
		}
		assert.Equal(t, gobreaker.StateOpen, store.State())
	})

	t.Run("Should reject calls while open", func(t *testing.T) {
		inner.ClearErrors()

		_, err := store.Get(ctx, keys.Primary{PK: "a", SK: "b"})
		assert.True(t, appErrors.IsUnavailable(err))
		assert.ErrorIs(t, err, gobreaker.ErrOpenState)

		items, err := repository.Collect(store.Query(ctx, repository.QueryInput{Partition: "a"}))
		assert.True(t, appErrors.IsUnavailable(err))
		assert.Nil(t, items)
	})
}
