//go:build integration

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"

	"github.com/i474232898/umbrella-rain-service/internal/reading"
)

func startMongo(ctx context.Context, t *testing.T) *MongoStore {
	t.Helper()
	container, err := mongodb.Run(ctx, "mongo:7")
	require.NoError(t, err, "start mongo container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	s, err := NewMongoStore(ctx, MongoConfig{
		URI:        uri,
		Database:   "SmartUmbrellaDB",
		Collection: "predictions",
		Timeout:    10 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func TestMongoStoreRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	s := startMongo(ctx, t)
	require.NoError(t, s.Ping(ctx))

	base := time.Date(2025, time.January, 1, 12, 0, 0, 0, time.UTC)

	// 12 events for one device, inserted out of time order.
	for _, i := range []int{5, 1, 12, 3, 9, 7, 2, 11, 4, 10, 8, 6} {
		ev := &reading.Event{
			DeviceID:    "A",
			Temperature: 20 + float64(i),
			Humidity:    50,
			Probability: 0.25,
			Seq:         int64(i),
			Timestamp:   base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, s.Insert(ctx, ev))
		assert.NotEmpty(t, ev.ID)
	}

	t.Run("limit and order", func(t *testing.T) {
		events, err := s.FindByDevice(ctx, "A", 10)
		require.NoError(t, err)
		require.Len(t, events, 10)
		for n, ev := range events {
			want := int64(12 - n)
			assert.Equal(t, want, ev.Seq)
			assert.True(t, ev.Timestamp.Equal(base.Add(time.Duration(want)*time.Minute)), "event %d at %s", n, ev.Timestamp)
			assert.Equal(t, "A", ev.DeviceID)
		}
	})

	t.Run("no limit", func(t *testing.T) {
		events, err := s.FindByDevice(ctx, "A", 0)
		require.NoError(t, err)
		assert.Len(t, events, 12)
	})

	t.Run("equal timestamps fall back to seq", func(t *testing.T) {
		at := base.Add(time.Hour).Truncate(time.Millisecond)
		require.NoError(t, s.Insert(ctx, &reading.Event{DeviceID: "B", Seq: 2, Timestamp: at}))
		require.NoError(t, s.Insert(ctx, &reading.Event{DeviceID: "B", Seq: 1, Timestamp: at}))

		events, err := s.FindByDevice(ctx, "B", 10)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, int64(2), events[0].Seq)
		assert.Equal(t, int64(1), events[1].Seq)
	})

	t.Run("unknown device", func(t *testing.T) {
		events, err := s.FindByDevice(ctx, "ghost", 10)
		require.NoError(t, err)
		assert.NotNil(t, events)
		assert.Empty(t, events)
	})

	t.Run("delete all", func(t *testing.T) {
		n, err := s.DeleteAll(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(14), n)

		n, err = s.DeleteAll(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)

		events, err := s.FindByDevice(ctx, "A", 10)
		require.NoError(t, err)
		assert.Empty(t, events)
	})
}
