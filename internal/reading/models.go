package reading

import (
	"time"
)

// Event is one scored reading. Events are immutable once stored.
type Event struct {
	ID          string    `json:"_id"`
	DeviceID    string    `json:"device_id"`
	Temperature float64   `json:"temperature"`
	Humidity    float64   `json:"humidity"`
	Prediction  int       `json:"prediction"`
	Probability float64   `json:"probability"` // rounded to 4 digits
	Seq         int64     `json:"seq"`         // per-device, assigned at write time
	Timestamp   time.Time `json:"timestamp"`
}

// Input is a raw ingest request before parsing.
type Input struct {
	DeviceID    string
	Temperature string
	Humidity    string
}

// Result is returned to the device after a successful ingest.
type Result struct {
	Prediction int     `json:"prediction"`
	Confidence float64 `json:"confidence"` // probability rounded to 2 digits
}

// LatestView is the full event document as presented to clients.
type LatestView struct {
	ID          string  `json:"_id"`
	DeviceID    string  `json:"device_id"`
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	Prediction  int     `json:"prediction"`
	Probability float64 `json:"probability"`
	Seq         int64   `json:"seq"`
	Timestamp   string  `json:"timestamp"`
}

// HistoryPoint is one entry of the historical view. Prediction fields are
// intentionally left out.
type HistoryPoint struct {
	DeviceID    string  `json:"device_id"`
	Time        string  `json:"time"`
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
}
