// Package series holds timestamped power-consumption signals and their CSV loader.
package series

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// Series is an ordered power signal: one reading per timestamp.
// Timestamps are strictly increasing and both slices have equal length.
type Series struct {
	Timestamps []time.Time
	Power      []float64
}

// New validates and wraps a timestamped power signal.
func New(timestamps []time.Time, power []float64) (*Series, error) {
	if len(timestamps) == 0 {
		return nil, fmt.Errorf("series: empty signal")
	}
	if len(timestamps) != len(power) {
		return nil, fmt.Errorf("series: %d timestamps but %d power samples", len(timestamps), len(power))
	}
	for i := 1; i < len(timestamps); i++ {
		if !timestamps[i].After(timestamps[i-1]) {
			return nil, fmt.Errorf("series: timestamps not strictly increasing at sample %d (%v followed by %v)",
				i, timestamps[i-1], timestamps[i])
		}
	}
	return &Series{Timestamps: timestamps, Power: power}, nil
}

// Len returns the number of samples.
func (s *Series) Len() int {
	return len(s.Power)
}

// SampleRate estimates the sampling frequency in Hz from the mean interval
// between the first and last timestamp. Needs at least two samples.
func (s *Series) SampleRate() (float64, error) {
	if s.Len() < 2 {
		return 0, fmt.Errorf("series: need at least 2 samples to estimate sample rate, have %d", s.Len())
	}
	span := s.Timestamps[s.Len()-1].Sub(s.Timestamps[0]).Seconds()
	return float64(s.Len()-1) / span, nil
}

// Timestamp layouts accepted by the CSV loader, tried in order.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// Load reads a two-column (timestamp, power) CSV file into a Series.
func Load(path string) (*Series, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("series: failed to open %s: %w", path, err)
	}
	defer file.Close()
	return Read(file)
}

// Read parses two-column (timestamp, power) CSV records into a Series.
// A single header row is allowed and skipped.
func Read(r io.Reader) (*Series, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	var (
		timestamps []time.Time
		power      []float64
		row        int
	)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("series: row %d: %w", row+1, err)
		}
		row++
		if len(record) < 2 {
			return nil, fmt.Errorf("series: row %d: want 2 columns (timestamp, power), got %d", row, len(record))
		}

		// Skip header
		if row == 1 && strings.Contains(strings.ToLower(record[0]), "timestamp") {
			continue
		}

		ts, err := parseTimestamp(record[0])
		if err != nil {
			return nil, fmt.Errorf("series: row %d: %w", row, err)
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(record[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("series: row %d: bad power value %q", row, record[1])
		}

		timestamps = append(timestamps, ts)
		power = append(power, value)
	}

	return New(timestamps, power)
}
