package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/listing-harvester/internal/models"
)

// MockRedisClient is a mock for Redis client
type MockRedisClient struct {
	mock.Mock
}

func (m *MockRedisClient) XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd {
	mockArgs := m.Called(ctx, args)
	cmd := redis.NewStringCmd(ctx)
	if mockArgs.Get(0) != nil {
		cmd.SetErr(mockArgs.Error(0))
	} else {
		cmd.SetVal("1715300000000-0")
	}
	return cmd
}

func (m *MockRedisClient) Close() error {
	args := m.Called()
	return args.Error(0)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCategoryDonePublishesEnvelope(t *testing.T) {
	client := new(MockRedisClient)
	var captured *redis.XAddArgs
	client.On("XAdd", mock.Anything, mock.AnythingOfType("*redis.XAddArgs")).
		Run(func(args mock.Arguments) { captured = args.Get(1).(*redis.XAddArgs) }).
		Return(nil).Once()

	p := NewPublisher(client, "", 1000, testLogger())
	p.now = func() time.Time { return time.Date(2024, 5, 10, 3, 0, 0, 0, time.UTC) }

	rep := models.CategoryReport{RunID: "run-1", Category: "cameras", Status: models.StatusUploaded, ListingsKept: 4}
	require.NoError(t, p.CategoryDone(context.Background(), rep))

	require.NotNil(t, captured)
	assert.Equal(t, DefaultStream, captured.Stream)
	assert.Equal(t, int64(1000), captured.MaxLen)
	assert.True(t, captured.Approx)

	values := captured.Values.(map[string]interface{})
	assert.Equal(t, "HARVEST_CATEGORY_DONE", values["event_type"])
	assert.Equal(t, "run-1", values["run_id"])

	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(values["data"].(string)), &env))
	assert.Equal(t, EventTypeCategoryDone, env.EventType)
	assert.Equal(t, values["event_id"], env.EventID)

	var got models.CategoryReport
	require.NoError(t, json.Unmarshal(env.Payload, &got))
	assert.Equal(t, "cameras", got.Category)
	assert.Equal(t, 4, got.ListingsKept)

	client.AssertExpectations(t)
}

func TestRunEvents(t *testing.T) {
	client := new(MockRedisClient)
	client.On("XAdd", mock.Anything, mock.MatchedBy(func(a *redis.XAddArgs) bool {
		return a.Stream == "custom" && a.MaxLen == 0
	})).Return(nil).Twice()

	p := NewPublisher(client, "custom", 0, testLogger())
	run := models.RunInfo{ID: "run-2", Window: "2024-05-09"}

	require.NoError(t, p.RunStarted(context.Background(), run))
	require.NoError(t, p.RunFinished(context.Background(), run))
	client.AssertExpectations(t)
}

func TestPublishError(t *testing.T) {
	client := new(MockRedisClient)
	client.On("XAdd", mock.Anything, mock.Anything).Return(errors.New("connection refused"))

	p := NewPublisher(client, "", 0, testLogger())
	err := p.RunStarted(context.Background(), models.RunInfo{ID: "run-3"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HARVEST_RUN_STARTED")
}

func TestClose(t *testing.T) {
	client := new(MockRedisClient)
	client.On("Close").Return(nil).Once()
	require.NoError(t, NewPublisher(client, "", 0, testLogger()).Close())
	client.AssertExpectations(t)
}
