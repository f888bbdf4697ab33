package training

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/i474232898/umbrella-rain-service/internal/model"
)

// Columns read from the weather observations file.
const (
	ColHumidity    = "Humidity9am"
	ColTemperature = "Temp9am"
	ColLabel       = "RainTomorrow"
)

// Sample is one labelled observation. Label is 1 when it rained the next day.
type Sample struct {
	Humidity    float64
	Temperature float64
	Label       int
}

// Features returns the sample in model feature order.
func (s Sample) Features() []float64 {
	return []float64{s.Humidity, s.Temperature}
}

// ReadStats summarizes what ReadCSV kept and skipped.
type ReadStats struct {
	Rows    int
	Kept    int
	Dropped int
}

// ReadCSV loads samples from r. Rows with any of the three columns missing
// ("" or "NA") are dropped; a label other than "Yes" counts as no rain.
func ReadCSV(r io.Reader) ([]Sample, ReadStats, error) {
	var stats ReadStats

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, stats, fmt.Errorf("read header: empty file")
		}
		return nil, stats, fmt.Errorf("read header: %w", err)
	}
	cols, err := locate(header, ColHumidity, ColTemperature, ColLabel)
	if err != nil {
		return nil, stats, err
	}

	var samples []Sample
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, stats, fmt.Errorf("line %d: %w", stats.Rows+2, err)
		}
		stats.Rows++

		s, ok, err := parseRecord(record, cols)
		if err != nil {
			return nil, stats, fmt.Errorf("line %d: %w", stats.Rows+1, err)
		}
		if !ok {
			stats.Dropped++
			continue
		}
		samples = append(samples, s)
	}
	stats.Kept = len(samples)
	return samples, stats, nil
}

func locate(header []string, names ...string) ([]int, error) {
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.TrimSpace(h)] = i
	}
	cols := make([]int, len(names))
	for i, name := range names {
		pos, ok := index[name]
		if !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
		cols[i] = pos
	}
	return cols, nil
}

func parseRecord(record []string, cols []int) (Sample, bool, error) {
	values := make([]string, len(cols))
	for i, c := range cols {
		if c >= len(record) {
			return Sample{}, false, nil
		}
		v := strings.TrimSpace(record[c])
		if v == "" || v == "NA" {
			return Sample{}, false, nil
		}
		values[i] = v
	}

	humidity, err := strconv.ParseFloat(values[0], 64)
	if err != nil {
		return Sample{}, false, fmt.Errorf("%s: %w", ColHumidity, err)
	}
	temperature, err := strconv.ParseFloat(values[1], 64)
	if err != nil {
		return Sample{}, false, fmt.Errorf("%s: %w", ColTemperature, err)
	}

	s := Sample{Humidity: humidity, Temperature: temperature}
	if values[2] == "Yes" {
		s.Label = 1
	}
	return s, true, nil
}

// FitScaler computes per-feature mean and population standard deviation.
func FitScaler(samples []Sample) (*model.Scaler, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("fit scaler: no samples")
	}
	dim := len(model.FeatureOrder)
	mean := make([]float64, dim)
	for _, s := range samples {
		for i, v := range s.Features() {
			mean[i] += v
		}
	}
	n := float64(len(samples))
	for i := range mean {
		mean[i] /= n
	}

	scale := make([]float64, dim)
	for _, s := range samples {
		for i, v := range s.Features() {
			d := v - mean[i]
			scale[i] += d * d
		}
	}
	for i := range scale {
		scale[i] = math.Sqrt(scale[i] / n)
	}
	return model.NewScaler(mean, scale)
}
