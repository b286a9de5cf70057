// Package filter implements Butterworth low-pass filter design and application.
//
// Design follows the classic recipe: place the analog prototype poles on the
// left half-plane unit circle, scale them to the pre-warped cutoff, then map
// to the z-plane with the bilinear transform. The resulting transfer function
// has all its zeros at z = -1 and unit gain at DC.
package filter

import (
	"fmt"
	"math"
	"math/cmplx"
)

// Spec configures a Butterworth low-pass filter.
type Spec struct {
	Order      int     // filter order, > 0
	Cutoff     float64 // cutoff frequency, Hz
	SampleRate float64 // sampling frequency, Hz
}

// Validate checks the spec before any design work happens.
func (s Spec) Validate() error {
	if s.Order <= 0 {
		return fmt.Errorf("filter: order must be positive, got %d", s.Order)
	}
	if s.SampleRate <= 0 {
		return fmt.Errorf("filter: sample rate must be positive, got %g Hz", s.SampleRate)
	}
	nyquist := s.SampleRate / 2
	if s.Cutoff <= 0 || s.Cutoff >= nyquist {
		return fmt.Errorf("filter: cutoff %g Hz must be in (0, %g) Hz (below Nyquist)", s.Cutoff, nyquist)
	}
	return nil
}

// Coefficients hold normalized IIR transfer-function coefficients with A[0] == 1.
// B and A both have Order+1 entries, lowest delay first.
type Coefficients struct {
	B []float64
	A []float64
}

// Design computes digital Butterworth low-pass coefficients for the spec.
func Design(spec Spec) (Coefficients, error) {
	if err := spec.Validate(); err != nil {
		return Coefficients{}, err
	}

	n := spec.Order
	fs := spec.SampleRate

	// Pre-warp the cutoff so the bilinear transform lands it on the right
	// digital frequency.
	warped := 2 * fs * math.Tan(math.Pi*spec.Cutoff/fs)

	// Analog prototype poles, scaled to the warped cutoff.
	zPoles := make([]complex128, n)
	c := complex(2*fs, 0)
	for k := 0; k < n; k++ {
		theta := math.Pi * float64(2*k+n+1) / float64(2*n)
		p := complex(warped, 0) * cmplx.Exp(complex(0, theta))
		// Bilinear transform s -> z.
		zPoles[k] = (c + p) / (c - p)
	}

	// The low-pass prototype has n zeros at z = -1.
	zZeros := make([]complex128, n)
	for i := range zZeros {
		zZeros[i] = -1
	}

	b := realPoly(zZeros)
	a := realPoly(zPoles)

	// Normalize to unit gain at DC (z = 1).
	var num, den float64
	for _, v := range b {
		num += v
	}
	for _, v := range a {
		den += v
	}
	gain := den / num
	for i := range b {
		b[i] *= gain
	}

	return Coefficients{B: b, A: a}, nil
}

// realPoly expands the monic polynomial with the given roots and returns the
// real parts of its coefficients, highest power first. Roots come in
// conjugate pairs (or are real), so the imaginary parts cancel.
func realPoly(roots []complex128) []float64 {
	coeffs := make([]complex128, 1, len(roots)+1)
	coeffs[0] = 1
	for _, r := range roots {
		coeffs = append(coeffs, 0)
		for i := len(coeffs) - 1; i > 0; i-- {
			coeffs[i] -= r * coeffs[i-1]
		}
	}
	out := make([]float64, len(coeffs))
	for i, v := range coeffs {
		out[i] = real(v)
	}
	return out
}

// Apply runs the causal difference equation over x with zero initial state
// (direct form II transposed). The output has the same length as the input;
// the first few output samples carry the filter's startup transient.
func Apply(c Coefficients, x []float64) []float64 {
	order := len(c.B)
	if len(c.A) > order {
		order = len(c.A)
	}
	b := padded(c.B, order)
	a := padded(c.A, order)
	if a[0] != 1 {
		for i := range b {
			b[i] /= a[0]
		}
		for i := range a {
			a[i] /= a[0]
		}
	}

	y := make([]float64, len(x))
	if order == 1 {
		for i, v := range x {
			y[i] = b[0] * v
		}
		return y
	}

	state := make([]float64, order-1)
	for i, v := range x {
		out := b[0]*v + state[0]
		for j := 0; j < order-2; j++ {
			state[j] = b[j+1]*v + state[j+1] - a[j+1]*out
		}
		state[order-2] = b[order-1]*v - a[order-1]*out
		y[i] = out
	}
	return y
}

func padded(v []float64, n int) []float64 {
	out := make([]float64, n)
	copy(out, v)
	return out
}
