// Package detect locates start/stop times of active usage episodes in a
// power-consumption signal.
//
// The detection is a single forward pass: low-pass filter the raw signal,
// binarize its first derivative against a threshold, clean the resulting
// candidate on/off signal with a matched filter shaped like a typical usage
// transition, then read the start/stop events off the derivative of the
// cleaned signal. Leading samples covering the filter's startup transient are
// never reported as events.
package detect

import (
	"fmt"
	"time"

	"github.com/openmeterlab/usage-detect/conv"
	"github.com/openmeterlab/usage-detect/filter"
	"github.com/openmeterlab/usage-detect/series"
)

// Kind classifies an event as the beginning or end of a usage episode.
type Kind string

const (
	KindStart Kind = "start"
	KindStop  Kind = "stop"
)

// Event marks one detected usage transition. Index is the sample index in the
// input series that the event is attributed to.
type Event struct {
	Index     int
	Timestamp time.Time
	Kind      Kind
}

// EventList is the pipeline's terminal output.
type EventList []Event

// VerifyAlternation checks that starts and stops strictly alternate beginning
// with a start. The pipeline does not guarantee this by construction, so
// callers should treat a violation as a tuning problem to investigate rather
// than discard the output.
func (l EventList) VerifyAlternation() error {
	if len(l) == 0 {
		return nil
	}
	if l[0].Kind != KindStart {
		return fmt.Errorf("detect: event sequence begins with a %s at %s, want a start", l[0].Kind, l[0].Timestamp)
	}
	for i := 1; i < len(l); i++ {
		if l[i].Kind == l[i-1].Kind {
			return fmt.Errorf("detect: %s at %s followed by another %s at %s",
				l[i-1].Kind, l[i-1].Timestamp, l[i].Kind, l[i].Timestamp)
		}
	}
	return nil
}

// Config carries every tunable of the pipeline. All values are explicit; see
// DefaultConfig for the tuning the defaults were derived from.
type Config struct {
	Order      int       // Butterworth low-pass filter order
	Cutoff     float64   // low-pass cutoff frequency, Hz
	SampleRate float64   // sampling frequency of the input signal, Hz
	Threshold  float64   // derivative magnitude below which the signal counts as flat
	Kernel     []float64 // matched-filter kernel shaped like a typical usage transition
	TrimCount  int       // leading samples whose events are dropped as startup transient
	Mode       conv.Mode // convolution mode for the matched filter
}

// DefaultKernel returns the idealized usage-transition waveform used by
// default: three active samples (the shortest credible usage burst at 10 Hz)
// flanked by three silent samples on each side.
func DefaultKernel() []float64 {
	return []float64{0, 0, 0, 1, 1, 1, 0, 0, 0}
}

// DefaultConfig returns the tuning established against the 10 Hz appliance
// captures this detector was built for. TrimCount is 2*Order: the filter
// startup transient spans roughly Order samples and each of the two
// differentiation stages consumes one more sample of context.
func DefaultConfig() Config {
	return Config{
		Order:      5,
		Cutoff:     3,
		SampleRate: 10,
		Threshold:  1.5,
		Kernel:     DefaultKernel(),
		TrimCount:  10,
		Mode:       conv.Same,
	}
}

// Validate fails fast on structurally invalid configuration.
func (c Config) Validate() error {
	spec := filter.Spec{Order: c.Order, Cutoff: c.Cutoff, SampleRate: c.SampleRate}
	if err := spec.Validate(); err != nil {
		return err
	}
	if c.Threshold <= 0 {
		return fmt.Errorf("detect: threshold must be positive, got %g", c.Threshold)
	}
	if len(c.Kernel) == 0 {
		return fmt.Errorf("detect: empty kernel")
	}
	if c.TrimCount < 0 {
		return fmt.Errorf("detect: trim count must not be negative, got %d", c.TrimCount)
	}
	if _, err := conv.ParseMode(string(c.Mode)); err != nil {
		return err
	}
	return nil
}

// Diff returns the first discrete derivative of x, length len(x)-1.
// Element i carries the change observed at sample i+1 (right-edge
// convention), so every differentiation shifts downstream indices by one.
func Diff(x []float64) []float64 {
	if len(x) < 2 {
		return nil
	}
	out := make([]float64, len(x)-1)
	for i := range out {
		out[i] = x[i+1] - x[i]
	}
	return out
}

// Run executes the pipeline over the series and returns the detected events
// in timestamp order. All structural validation happens before any numeric
// work; a failed run produces no output.
func Run(cfg Config, s *series.Series) (EventList, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if s == nil || s.Len() == 0 {
		return nil, fmt.Errorf("detect: empty input series")
	}
	// The candidate signal is one sample shorter than the input and must
	// still cover the kernel.
	if s.Len()-1 < len(cfg.Kernel) {
		return nil, fmt.Errorf("detect: signal of %d samples is too short for a %d-sample kernel",
			s.Len(), len(cfg.Kernel))
	}

	coeffs, err := filter.Design(filter.Spec{Order: cfg.Order, Cutoff: cfg.Cutoff, SampleRate: cfg.SampleRate})
	if err != nil {
		return nil, err
	}

	denoised := filter.Apply(coeffs, s.Power)
	candidate := binarize(Diff(denoised), cfg.Threshold)

	matched, err := conv.Convolve(candidate, cfg.Kernel, cfg.Mode)
	if err != nil {
		return nil, err
	}
	onOff := decide(matched)
	edges := Diff(onOff)

	// Map edge indices back to input sample indices: one shift per
	// differentiation stage plus the convolution mode's alignment offset.
	offset := conv.IndexOffset(cfg.Mode, len(cfg.Kernel)) + 2

	var events EventList
	for i, e := range edges {
		if e == 0 {
			continue
		}
		idx := i + offset
		if idx < cfg.TrimCount || idx >= s.Len() {
			continue
		}
		kind := KindStart
		if e < 0 {
			kind = KindStop
		}
		events = append(events, Event{Index: idx, Timestamp: s.Timestamps[idx], Kind: kind})
	}
	return events, nil
}

// binarize maps the derivative to a candidate on/off signal: 1 wherever the
// magnitude clears the threshold, 0 elsewhere.
func binarize(deriv []float64, threshold float64) []float64 {
	out := make([]float64, len(deriv))
	for i, v := range deriv {
		if v > threshold || v < -threshold {
			out[i] = 1
		}
	}
	return out
}

// decide applies the sign decision to the matched-filter response.
func decide(response []float64) []float64 {
	out := make([]float64, len(response))
	for i, v := range response {
		if v > 0 {
			out[i] = 1
		}
	}
	return out
}
