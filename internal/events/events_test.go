package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type MockPutEvents struct {
	mock.Mock
}

func (m *MockPutEvents) PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, _ ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*eventbridge.PutEventsOutput)
	return out, args.Error(1)
}

func sampleEvents(n int) []Event {
	now := time.Date(2025, 7, 20, 10, 0, 0, 0, time.UTC)
	out := make([]Event, n)
	for i := range out {
		out[i] = New(TypeActivityJoined, "a1", "u1", now, map[string]any{"seq": i})
	}
	return out
}

func TestEventBridgePublisher_Batches(t *testing.T) {
	ctx := context.Background()
	client := new(MockPutEvents)
	client.On("PutEvents", ctx, mock.MatchedBy(func(in *eventbridge.PutEventsInput) bool {
		return len(in.Entries) == 10
	})).Return(&eventbridge.PutEventsOutput{}, nil).Once()
	client.On("PutEvents", ctx, mock.MatchedBy(func(in *eventbridge.PutEventsInput) bool {
		return len(in.Entries) == 3
	})).Return(&eventbridge.PutEventsOutput{}, nil).Once()

	publisher := NewEventBridgePublisher(client, "strivesync-bus", zap.NewNop())
	require.NoError(t, publisher.Publish(ctx, sampleEvents(13)...))
	client.AssertExpectations(t)
}

func TestEventBridgePublisher_Entry(t *testing.T) {
	ctx := context.Background()
	client := new(MockPutEvents)

	var captured *eventbridge.PutEventsInput
	client.On("PutEvents", ctx, mock.Anything).Run(func(args mock.Arguments) {
		captured = args.Get(1).(*eventbridge.PutEventsInput)
	}).Return(&eventbridge.PutEventsOutput{}, nil)

	publisher := NewEventBridgePublisher(client, "strivesync-bus", zap.NewNop())
	require.NoError(t, publisher.Publish(ctx, sampleEvents(1)...))

	require.Len(t, captured.Entries, 1)
	entry := captured.Entries[0]
	assert.Equal(t, "strivesync-bus", aws.ToString(entry.EventBusName))
	assert.Equal(t, Source, aws.ToString(entry.Source))
	assert.Equal(t, TypeActivityJoined, aws.ToString(entry.DetailType))

	var detail Event
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(entry.Detail)), &detail))
	assert.Equal(t, "a1", detail.AggregateID)
}

func TestEventBridgePublisher_Failures(t *testing.T) {
	ctx := context.Background()

	t.Run("Should surface transport errors", func(t *testing.T) {
		client := new(MockPutEvents)
		client.On("PutEvents", ctx, mock.Anything).Return(nil, errors.New("throttled"))

		err := NewEventBridgePublisher(client, "bus", zap.NewNop()).Publish(ctx, sampleEvents(1)...)
		assert.ErrorContains(t, err, "throttled")
	})

	t.Run("Should report failed entries", func(t *testing.T) {
		client := new(MockPutEvents)
		client.On("PutEvents", ctx, mock.Anything).Return(&eventbridge.PutEventsOutput{
			FailedEntryCount: 1,
			Entries:          []types.PutEventsResultEntry{{ErrorCode: aws.String("InternalFailure")}},
		}, nil)

		err := NewEventBridgePublisher(client, "bus", zap.NewNop()).Publish(ctx, sampleEvents(1)...)
		assert.ErrorContains(t, err, "1 events failed")
	})

	t.Run("Should not call the API without events", func(t *testing.T) {
		client := new(MockPutEvents)
		require.NoError(t, NewEventBridgePublisher(client, "bus", zap.NewNop()).Publish(ctx))
		client.AssertNotCalled(t, "PutEvents", mock.Anything, mock.Anything)
	})
}

func TestMemoryPublisher(t *testing.T) {
	p := NewMemoryPublisher()
	require.NoError(t, p.Publish(context.Background(), sampleEvents(2)...))
	assert.Equal(t, []string{TypeActivityJoined, TypeActivityJoined}, p.Types())

	p.SetError(errors.New("down"))
	assert.Error(t, p.Publish(context.Background(), sampleEvents(1)...))
	assert.Len(t, p.Events(), 2)
}
