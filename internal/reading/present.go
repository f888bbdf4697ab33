package reading

import (
	"math"
	"time"
	_ "time/tzdata"
)

// TimeLayout renders e.g. "2025-01-01 17:30:00 IST+0530".
const TimeLayout = "2006-01-02 15:04:05 MST-0700"

// DefaultShift is added to stored timestamps before display. Existing stored
// data was written with the local zone applied twice; this offset keeps the
// rendered times consistent with it.
const DefaultShift = 5*time.Hour + 30*time.Minute

// Presenter formats stored instants for clients.
type Presenter struct {
	Location *time.Location
	Shift    time.Duration
}

// Format shifts t and renders it in the presenter's zone.
func (p Presenter) Format(t time.Time) string {
	loc := p.Location
	if loc == nil {
		loc = time.UTC
	}
	return t.Add(p.Shift).In(loc).Format(TimeLayout)
}

func round(v float64, digits int) float64 {
	pow := math.Pow(10, float64(digits))
	return math.Round(v*pow) / pow
}
