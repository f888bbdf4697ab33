package reading

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/i474232898/umbrella-rain-service/internal/observability"
	"github.com/i474232898/umbrella-rain-service/internal/sequence"
)

// Threshold is the probability at or above which rain is predicted.
const Threshold = 0.5

// DefaultHistoryLimit caps the historical view.
const DefaultHistoryLimit = 10

// DefaultPublishTimeout bounds how long Ingest waits on the publisher.
const DefaultPublishTimeout = 2 * time.Second

// Service scores incoming readings, persists them and serves the latest and
// historical views. The predictor is shared read-only across requests.
type Service struct {
	store     Store
	predictor Predictor
	metrics   *observability.Metrics

	seq            Sequencer
	publisher      Publisher
	publishTimeout time.Duration
	clock          clockwork.Clock
	location       *time.Location
	presenter      Presenter
	limit          int
	logger         *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithSequencer sets the per-device sequencer. Default: in-memory.
func WithSequencer(seq Sequencer) Option {
	return func(s *Service) { s.seq = seq }
}

// WithPublisher forwards every stored event to p.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithPublishTimeout bounds each publish call. Non-positive values are ignored.
func WithPublishTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.publishTimeout = d
		}
	}
}

// WithClock sets the time source used to stamp events.
func WithClock(c clockwork.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithLocation sets the fixed zone used for stamping and display.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) { s.location = loc }
}

// WithShift sets the offset added to stored timestamps before display.
func WithShift(d time.Duration) Option {
	return func(s *Service) { s.presenter.Shift = d }
}

// WithHistoryLimit caps the number of events in the historical view.
func WithHistoryLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.limit = n
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates a new Service.
func NewService(store Store, predictor Predictor, metrics *observability.Metrics, opts ...Option) *Service {
	s := &Service{
		store:          store,
		predictor:      predictor,
		metrics:        metrics,
		seq:            sequence.NewMemory(),
		publishTimeout: DefaultPublishTimeout,
		clock:          clockwork.NewRealClock(),
		location:       time.UTC,
		presenter:      Presenter{Shift: DefaultShift},
		limit:          DefaultHistoryLimit,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.presenter.Location = s.location
	return s
}

// Ingest scores one reading and stores it. Nothing is written when parsing
// or scoring fails. Duplicate submissions produce duplicate events.
func (s *Service) Ingest(ctx context.Context, in Input) (Result, error) {
	res, err := s.ingest(ctx, in)
	if err != nil {
		kind := "internal"
		if IsValidation(err) {
			kind = "validation"
		}
		s.metrics.IngestErrors.WithLabelValues(kind).Inc()
		return Result{}, err
	}
	return res, nil
}

func (s *Service) ingest(ctx context.Context, in Input) (Result, error) {
	deviceID := strings.TrimSpace(in.DeviceID)
	if deviceID == "" {
		return Result{}, missing("device_id")
	}
	temperature, err := parseFeature("temperature", in.Temperature)
	if err != nil {
		return Result{}, err
	}
	humidity, err := parseFeature("humidity", in.Humidity)
	if err != nil {
		return Result{}, err
	}

	prob, err := s.predictor.Probability(humidity, temperature)
	if err != nil {
		return Result{}, fmt.Errorf("score reading: %w", err)
	}
	// The label follows the stored value so the two never disagree.
	stored := round(prob, 4)
	prediction := 0
	if stored >= Threshold {
		prediction = 1
	}

	seq, err := s.seq.Next(ctx, deviceID)
	if err != nil {
		return Result{}, fmt.Errorf("assign sequence: %w", err)
	}

	ev := Event{
		DeviceID:    deviceID,
		Temperature: temperature,
		Humidity:    humidity,
		Prediction:  prediction,
		Probability: stored,
		Seq:         seq,
		// The store keeps millisecond precision.
		Timestamp: s.clock.Now().In(s.location).Truncate(time.Millisecond),
	}
	if err := s.store.Insert(ctx, &ev); err != nil {
		return Result{}, fmt.Errorf("store reading: %w", err)
	}

	s.metrics.ReadingsIngested.Inc()
	s.metrics.Probability.Observe(prob)
	s.logger.Debug("reading stored",
		"device_id", deviceID,
		"seq", seq,
		"prediction", prediction,
		"probability", ev.Probability,
	)

	if s.publisher != nil {
		s.publish(ctx, ev)
	}

	return Result{Prediction: prediction, Confidence: round(prob, 2)}, nil
}

func (s *Service) publish(ctx context.Context, ev Event) {
	ctx, cancel := context.WithTimeout(ctx, s.publishTimeout)
	defer cancel()
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.metrics.PublishErrors.Inc()
		s.logger.Warn("publish reading failed", "device_id", ev.DeviceID, "seq", ev.Seq, "error", err)
	}
}

// Latest returns the newest event for deviceID.
func (s *Service) Latest(ctx context.Context, deviceID string) (LatestView, error) {
	view, err := s.latest(ctx, deviceID)
	s.metrics.Queries.WithLabelValues("latest", outcome(err)).Inc()
	return view, err
}

func (s *Service) latest(ctx context.Context, deviceID string) (LatestView, error) {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return LatestView{}, missing("device_id")
	}
	events, err := s.store.FindByDevice(ctx, deviceID, 1)
	if err != nil {
		return LatestView{}, fmt.Errorf("find latest: %w", err)
	}
	if len(events) == 0 {
		return LatestView{}, ErrNotFound
	}
	ev := events[0]
	return LatestView{
		ID:          ev.ID,
		DeviceID:    ev.DeviceID,
		Temperature: ev.Temperature,
		Humidity:    ev.Humidity,
		Prediction:  ev.Prediction,
		Probability: ev.Probability,
		Seq:         ev.Seq,
		Timestamp:   s.presenter.Format(ev.Timestamp),
	}, nil
}

// History returns up to the configured limit of events for deviceID, newest
// first. An unknown device yields an empty, non-nil slice.
func (s *Service) History(ctx context.Context, deviceID string) ([]HistoryPoint, error) {
	points, err := s.history(ctx, deviceID)
	s.metrics.Queries.WithLabelValues("history", outcome(err)).Inc()
	return points, err
}

func (s *Service) history(ctx context.Context, deviceID string) ([]HistoryPoint, error) {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return nil, missing("device_id")
	}
	events, err := s.store.FindByDevice(ctx, deviceID, s.limit)
	if err != nil {
		return nil, fmt.Errorf("find history: %w", err)
	}
	points := make([]HistoryPoint, 0, len(events))
	for _, ev := range events {
		points = append(points, HistoryPoint{
			DeviceID:    ev.DeviceID,
			Time:        s.presenter.Format(ev.Timestamp),
			Temperature: ev.Temperature,
			Humidity:    ev.Humidity,
		})
	}
	return points, nil
}

// DeleteAll removes every stored event and reports how many were deleted.
// It is not mutually excluded from concurrent ingests.
func (s *Service) DeleteAll(ctx context.Context) (int64, error) {
	n, err := s.store.DeleteAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("delete all: %w", err)
	}
	s.metrics.EventsDeleted.Add(float64(n))
	s.logger.Info("all events deleted", "count", n)
	return n, nil
}

func parseFeature(field, raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, missing(field)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &ValidationError{Field: field, Reason: fmt.Sprintf("must be a number, got %q", raw)}
	}
	return v, nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case IsValidation(err):
		return "invalid"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
