package trafficgen

import (
	"context"
	"encoding/json"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/umbrella-rain-service/internal/observability"
	"github.com/i474232898/umbrella-rain-service/internal/reading"
)

func newTestGenerator(t *testing.T, url string, cfg Config, opts ...Option) *Generator {
	t.Helper()
	cfg.DeviceURL = url
	if cfg.DeviceID == "" {
		cfg.DeviceID = "UMBRELLA_7CFA12B3"
	}
	opts = append([]Option{WithRand(rand.New(rand.NewPCG(1, 2)))}, opts...)
	return New(&http.Client{Timeout: 2 * time.Second}, cfg, observability.NewMetricsForTesting(), opts...)
}

func TestRunScoresEveryRecord(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/sendData", r.URL.Path)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "UMBRELLA_7CFA12B3", r.PostForm.Get("device_id"))
		assert.NotEmpty(t, r.PostForm.Get("temperature"))
		assert.NotEmpty(t, r.PostForm.Get("humidity"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"prediction":1,"confidence":0.73}`))
	}))
	defer srv.Close()

	g := newTestGenerator(t, srv.URL+"/", Config{Count: 5})
	batch := g.Run(context.Background())

	assert.Equal(t, int32(5), hits.Load())
	assert.Equal(t, "Inserted 5 test records successfully.", batch.Message)
	require.Len(t, batch.Records, 5)
	assert.Zero(t, batch.Failed())
	for _, rec := range batch.Records {
		require.NotNil(t, rec.Scored)
		assert.GreaterOrEqual(t, rec.Scored.Temperature, 20.0)
		assert.LessOrEqual(t, rec.Scored.Temperature, 35.0)
		assert.GreaterOrEqual(t, rec.Scored.Humidity, 30.0)
		assert.LessOrEqual(t, rec.Scored.Humidity, 80.0)
		assert.Equal(t, 1, rec.Scored.Prediction)
		assert.Equal(t, 0.73, rec.Scored.Probability)
		assert.NotEmpty(t, rec.Scored.Timestamp)
	}

	raw, err := json.Marshal(batch.Records[0])
	require.NoError(t, err)
	var shape map[string]any
	require.NoError(t, json.Unmarshal(raw, &shape))
	assert.ElementsMatch(t, []string{"temperature", "humidity", "prediction", "probability", "timestamp"}, keys(shape))
}

func TestRunStampsRecordsInDisplayLayout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"prediction":0,"confidence":0.2}`))
	}))
	defer srv.Close()

	loc, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)
	clock := clockwork.NewFakeClockAt(time.Date(2025, time.January, 1, 12, 0, 0, 0, time.UTC))
	g := newTestGenerator(t, srv.URL, Config{Count: 1, Location: loc}, WithClock(clock))

	batch := g.Run(context.Background())
	require.Len(t, batch.Records, 1)
	require.NotNil(t, batch.Records[0].Scored)

	stamp := batch.Records[0].Scored.Timestamp
	assert.Equal(t, "2025-01-01 17:30:00 IST+0530", stamp)
	_, err = time.ParseInLocation(reading.TimeLayout, stamp, loc)
	assert.NoError(t, err)
}

func TestRunRecordsNon200AndContinues(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 2 {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"prediction":0,"confidence":0.12}`))
	}))
	defer srv.Close()

	g := newTestGenerator(t, srv.URL, Config{Count: 3})
	batch := g.Run(context.Background())

	require.Len(t, batch.Records, 3)
	assert.Equal(t, 1, batch.Failed())
	assert.NotNil(t, batch.Records[0].Scored)
	assert.NotNil(t, batch.Records[2].Scored)

	failed := batch.Records[1].Err
	require.NotNil(t, failed)
	assert.Equal(t, 2, failed.Attempt)
	assert.Equal(t, http.StatusInternalServerError, failed.StatusCode)
	assert.Equal(t, "boom\n", failed.Body)

	raw, err := json.Marshal(batch.Records[1])
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":"Failed at record 2","status_code":500,"response":"boom\n"}`, string(raw))
}

func TestRunTreatsErrorBodyAsException(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":"temperature must be a number"}`))
	}))
	defer srv.Close()

	g := newTestGenerator(t, srv.URL, Config{Count: 1})
	batch := g.Run(context.Background())

	require.Len(t, batch.Records, 1)
	raw, err := json.Marshal(batch.Records[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":"Exception at record 1","message":"temperature must be a number"}`, string(raw))
}

func TestRunUnreachableDevice(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	g := newTestGenerator(t, url, Config{Count: 2})
	batch := g.Run(context.Background())

	require.Len(t, batch.Records, 2)
	assert.Equal(t, 2, batch.Failed())
	for i, rec := range batch.Records {
		require.NotNil(t, rec.Err)
		assert.Zero(t, rec.Err.StatusCode)
		assert.Equal(t, i+1, rec.Err.Attempt)
		assert.Contains(t, rec.Err.Error(), "Exception at record")
	}
	assert.Equal(t, "Inserted 2 test records successfully.", batch.Message)
}

func TestRunWithoutDeviceURL(t *testing.T) {
	g := newTestGenerator(t, "", Config{Count: 1})
	batch := g.Run(context.Background())

	require.Len(t, batch.Records, 1)
	require.NotNil(t, batch.Records[0].Err)
	assert.Zero(t, batch.Records[0].Err.StatusCode)
}

func TestRunPausesBetweenAttempts(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"prediction":0,"confidence":0.3}`))
	}))
	defer srv.Close()

	clock := clockwork.NewFakeClock()
	g := newTestGenerator(t, srv.URL, Config{Count: 3, Interval: 3 * time.Second}, WithClock(clock))

	done := make(chan Batch, 1)
	go func() { done <- g.Run(context.Background()) }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for want := int32(1); want <= 2; want++ {
		require.NoError(t, clock.BlockUntilContext(ctx, 1))
		assert.Equal(t, want, hits.Load())
		clock.Advance(3 * time.Second)
	}

	select {
	case batch := <-done:
		assert.Len(t, batch.Records, 3)
		assert.Equal(t, int32(3), hits.Load())
	case <-ctx.Done():
		t.Fatal("generator did not finish after the last attempt")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"prediction":0,"confidence":0.3}`))
	}))
	defer srv.Close()

	clock := clockwork.NewFakeClock()
	g := newTestGenerator(t, srv.URL, Config{Count: 5, Interval: time.Minute}, WithClock(clock))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan Batch, 1)
	go func() { done <- g.Run(ctx) }()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	require.NoError(t, clock.BlockUntilContext(waitCtx, 1))
	cancel()

	select {
	case batch := <-done:
		assert.Len(t, batch.Records, 1)
	case <-waitCtx.Done():
		t.Fatal("generator ignored cancellation")
	}
}

func TestDoRequestRejectsBadBackoff(t *testing.T) {
	cfg := HTTPClientConfig{Client: http.DefaultClient, Backoff: BackoffConfig{MaxRetries: 2}}
	_, err := doRequestWithResilience(context.Background(), cfg, newCircuitBreaker("test"), func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, "http://localhost", nil)
	})
	assert.ErrorIs(t, err, errInvalidConfig)
}

func TestDoRequestRetriesTransportOnly(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	cfg := HTTPClientConfig{
		Client:  srv.Client(),
		Backoff: BackoffConfig{MaxRetries: 3, InitialInterval: time.Millisecond},
	}
	_, err := doRequestWithResilience(context.Background(), cfg, newCircuitBreaker("test"), func() (*http.Request, error) {
		return http.NewRequest(http.MethodPost, srv.URL, nil)
	})

	var se *statusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadGateway, se.code)
	assert.Equal(t, int32(1), hits.Load())
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
