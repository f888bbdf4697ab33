package reading

import (
	"context"
)

// Store is the event log. FindByDevice returns at most limit events for the
// device ordered by timestamp descending, ties broken by newest insert first.
type Store interface {
	Insert(ctx context.Context, ev *Event) error
	FindByDevice(ctx context.Context, deviceID string, limit int) ([]Event, error)
	DeleteAll(ctx context.Context) (int64, error)
}

// Sequencer hands out a strictly increasing number per device.
type Sequencer interface {
	Next(ctx context.Context, deviceID string) (int64, error)
}

// Publisher forwards stored events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Predictor scores one reading with the loaded model.
type Predictor interface {
	Probability(humidity, temperature float64) (float64, error)
}
