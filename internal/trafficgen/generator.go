package trafficgen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sony/gobreaker"

	"github.com/i474232898/umbrella-rain-service/internal/observability"
	"github.com/i474232898/umbrella-rain-service/internal/reading"
)

// Config describes where and how synthetic readings are sent.
type Config struct {
	DeviceURL string // base URL of the ingest endpoint's host, e.g. http://10.0.0.5:5000
	DeviceID  string
	Count     int
	Interval  time.Duration
	Location  *time.Location
}

// Scored is a reading the device accepted.
type Scored struct {
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	Prediction  int     `json:"prediction"`
	Probability float64 `json:"probability"`
	Timestamp   string  `json:"timestamp"`
}

// UpstreamError is one failed attempt. StatusCode is zero when the device
// never produced a usable response.
type UpstreamError struct {
	Attempt    int
	StatusCode int
	Body       string
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("Failed at record %d", e.Attempt)
	}
	return fmt.Sprintf("Exception at record %d", e.Attempt)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Attempt holds either the scored reading or the failure.
type Attempt struct {
	Scored *Scored
	Err    *UpstreamError
}

// MarshalJSON renders failures as {error, status_code, response} for non-200
// answers and {error, message} for everything else.
func (a Attempt) MarshalJSON() ([]byte, error) {
	if a.Err == nil {
		return json.Marshal(a.Scored)
	}
	if a.Err.StatusCode != 0 {
		return json.Marshal(struct {
			Error      string `json:"error"`
			StatusCode int    `json:"status_code"`
			Response   string `json:"response"`
		}{a.Err.Error(), a.Err.StatusCode, a.Err.Body})
	}
	msg := ""
	if a.Err.Err != nil {
		msg = a.Err.Err.Error()
	}
	return json.Marshal(struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}{a.Err.Error(), msg})
}

// Batch is the outcome of one run.
type Batch struct {
	Message string    `json:"message"`
	Records []Attempt `json:"records"`
}

// Failed counts attempts that did not produce a score.
func (b Batch) Failed() int {
	n := 0
	for _, a := range b.Records {
		if a.Err != nil {
			n++
		}
	}
	return n
}

// Generator replays plausible readings against a device's ingest endpoint.
type Generator struct {
	cfg     Config
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
	clock   clockwork.Clock
	metrics *observability.Metrics
	logger  *slog.Logger

	mu  sync.Mutex
	rnd *rand.Rand
}

// Option configures a Generator.
type Option func(*Generator)

// WithClock sets the clock used for pauses and record timestamps.
func WithClock(c clockwork.Clock) Option {
	return func(g *Generator) { g.clock = c }
}

// WithRand sets the source of synthetic values.
func WithRand(r *rand.Rand) Option {
	return func(g *Generator) { g.rnd = r }
}

// WithBackoff enables retries of transport failures.
func WithBackoff(b BackoffConfig) Option {
	return func(g *Generator) { g.httpCfg.Backoff = b }
}

// WithLogger sets the generator logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Generator) { g.logger = l }
}

// New creates a Generator.
func New(client *http.Client, cfg Config, metrics *observability.Metrics, opts ...Option) *Generator {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	cfg.DeviceURL = strings.TrimRight(cfg.DeviceURL, "/")
	g := &Generator{
		cfg:     cfg,
		httpCfg: HTTPClientConfig{Client: client},
		circuit: newCircuitBreaker("device"),
		clock:   clockwork.NewRealClock(),
		metrics: metrics,
		logger:  slog.Default(),
		rnd:     rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x5eed)),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Run sends cfg.Count readings one after another, pausing cfg.Interval
// between them. A failed attempt is recorded and the batch continues.
// Cancelling ctx stops the batch early and returns what was collected.
func (g *Generator) Run(ctx context.Context) Batch {
	batch := Batch{
		Message: fmt.Sprintf("Inserted %d test records successfully.", g.cfg.Count),
		Records: make([]Attempt, 0, g.cfg.Count),
	}

	for i := 1; i <= g.cfg.Count; i++ {
		if i > 1 && !g.pause(ctx) {
			break
		}
		temperature, humidity := g.sample()

		scored, err := g.send(ctx, temperature, humidity)
		if err != nil {
			ue := toUpstream(i, err)
			g.logger.Warn("synthetic reading failed", "attempt", i, "status_code", ue.StatusCode, "error", err)
			g.metrics.TrafficAttempts.WithLabelValues(outcome(ue)).Inc()
			batch.Records = append(batch.Records, Attempt{Err: ue})
			continue
		}
		g.metrics.TrafficAttempts.WithLabelValues("success").Inc()
		batch.Records = append(batch.Records, Attempt{Scored: scored})
	}
	return batch
}

func (g *Generator) pause(ctx context.Context) bool {
	if g.cfg.Interval <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-g.clock.After(g.cfg.Interval):
		return true
	}
}

// sample draws temperature in [20, 35) and humidity in [30, 80), two decimals.
func (g *Generator) sample() (temperature, humidity float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	temperature = round2(20 + g.rnd.Float64()*15)
	humidity = round2(30 + g.rnd.Float64()*50)
	return temperature, humidity
}

// ingestResponse is what /sendData answers. A 200 carrying "error" is a
// failure reported in compatibility mode.
type ingestResponse struct {
	Prediction *int     `json:"prediction"`
	Confidence *float64 `json:"confidence"`
	Error      string   `json:"error"`
}

func (g *Generator) send(ctx context.Context, temperature, humidity float64) (*Scored, error) {
	if g.cfg.DeviceURL == "" {
		return nil, errors.New("device address is not configured")
	}
	buildRequest := func() (*http.Request, error) {
		form := url.Values{}
		form.Set("device_id", g.cfg.DeviceID)
		form.Set("temperature", strconv.FormatFloat(temperature, 'f', -1, 64))
		form.Set("humidity", strconv.FormatFloat(humidity, 'f', -1, 64))

		req, err := http.NewRequest(http.MethodPost, g.cfg.DeviceURL+"/sendData", strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	}

	resp, err := doRequestWithResilience(ctx, g.httpCfg, g.circuit, buildRequest)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload ingestResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if payload.Error != "" {
		return nil, errors.New(payload.Error)
	}
	if payload.Prediction == nil || payload.Confidence == nil {
		return nil, errors.New("response is missing prediction or confidence")
	}

	return &Scored{
		Temperature: temperature,
		Humidity:    humidity,
		Prediction:  *payload.Prediction,
		Probability: *payload.Confidence,
		Timestamp:   g.clock.Now().In(g.cfg.Location).Format(reading.TimeLayout),
	}, nil
}

func toUpstream(attempt int, err error) *UpstreamError {
	ue := &UpstreamError{Attempt: attempt, Err: err}
	var se *statusError
	if errors.As(err, &se) {
		ue.StatusCode = se.code
		ue.Body = se.body
	}
	return ue
}

func outcome(ue *UpstreamError) string {
	if ue.StatusCode != 0 {
		return "failed"
	}
	return "exception"
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
