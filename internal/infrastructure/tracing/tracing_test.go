package tracing

import (
	"context"
	"errors"
	"testing"

	"strivesync-backend/internal/keys"
	"strivesync-backend/internal/repository"
	"strivesync-backend/internal/repository/memory"
	appErrors "strivesync-backend/pkg/errors"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func attrs(span sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	out := make(map[attribute.Key]attribute.Value)
	for _, kv := range span.Attributes() {
		out[kv.Key] = kv.Value
	}
	return out
}

func TestTraceStore(t *testing.T) {
	ctx := context.Background()
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = provider.Shutdown(ctx) })

	inner := memory.NewStore(repository.DefaultSchema("strivesync-test", "GSI1", "EmailIndex"))
	store := TraceStore(inner, provider.Tracer("test"), "strivesync-test")

	item := repository.Item{
		"PK": &types.AttributeValueMemberS{Value: "USER#u1"},
		"SK": &types.AttributeValueMemberS{Value: "PROFILE"},
	}
	key := keys.Primary{PK: "USER#u1", SK: "PROFILE"}

	t.Run("one client span per operation", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, item, true))
		got, err := store.Get(ctx, key)
		require.NoError(t, err)
		require.NotNil(t, got)

		spans := recorder.Ended()
		require.Len(t, spans, 2)
		assert.Equal(t, "store.PutItem", spans[0].Name())
		assert.Equal(t, "store.GetItem", spans[1].Name())

		a := attrs(spans[1])
		assert.Equal(t, "strivesync-test", a["db.table"].AsString())
		assert.Equal(t, "USER#u1", a["store.pk"].AsString())
		assert.True(t, a["store.found"].AsBool())
		assert.Equal(t, codes.Unset, spans[1].Status().Code)
	})

	t.Run("expected outcomes are not span errors", func(t *testing.T) {
		err := store.Put(ctx, item, true)
		require.ErrorIs(t, err, appErrors.ErrAlreadyExists)

		spans := recorder.Ended()
		last := spans[len(spans)-1]
		assert.Equal(t, codes.Unset, last.Status().Code)
		assert.Equal(t, "ALREADY_EXISTS", attrs(last)["store.outcome"].AsString())
	})

	t.Run("store failures mark the span", func(t *testing.T) {
		inner.SetError("Delete", appErrors.NewUnavailableError("DeleteItem", errors.New("throttled")))
		defer inner.ClearErrors()

		require.Error(t, store.Delete(ctx, key, true))

		spans := recorder.Ended()
		last := spans[len(spans)-1]
		assert.Equal(t, "store.DeleteItem", last.Name())
		assert.Equal(t, codes.Error, last.Status().Code)
		require.NotEmpty(t, last.Events())
		assert.Equal(t, "exception", last.Events()[0].Name)
	})

	t.Run("query span ends after iteration", func(t *testing.T) {
		before := len(recorder.Ended())
		seq := store.Query(ctx, repository.QueryInput{Partition: "USER#u1"})
		assert.Len(t, recorder.Ended(), before, "nothing runs until the sequence is consumed")

		items, err := repository.Collect(seq)
		require.NoError(t, err)
		assert.Len(t, items, 1)

		spans := recorder.Ended()
		require.Len(t, spans, before+1)
		assert.EqualValues(t, 1, attrs(spans[before])["store.items"].AsInt64())
	})
}
