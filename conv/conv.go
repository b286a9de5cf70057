// Package conv provides 1-D discrete convolution for matched filtering.
//
// Two implementations are available: a direct O(N*M) time-domain loop and an
// FFT-based path. Convolve picks between them by kernel length; the crossover
// sits around 64 samples, where the FFT's fixed cost stops dominating.
package conv

import (
	"fmt"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Mode selects how much of the convolution result is returned.
type Mode string

const (
	// Full returns the complete result, length N+M-1.
	Full Mode = "full"
	// Same returns the centered N samples, aligned with the input signal.
	Same Mode = "same"
	// Valid returns only samples computed without zero padding, length N-M+1.
	Valid Mode = "valid"
)

// ParseMode converts a string into a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case Full, Same, Valid:
		return Mode(s), nil
	}
	return "", fmt.Errorf("conv: unknown mode %q (want full, same, or valid)", s)
}

// fftThreshold is the kernel length above which the FFT path wins over the
// direct loop.
const fftThreshold = 64

// Convolve computes the discrete convolution of signal and kernel, cropped
// according to mode. The signal must be at least as long as the kernel.
func Convolve(signal, kernel []float64, mode Mode) ([]float64, error) {
	if _, err := ParseMode(string(mode)); err != nil {
		return nil, err
	}
	if len(kernel) == 0 {
		return nil, fmt.Errorf("conv: empty kernel")
	}
	if len(signal) == 0 {
		return nil, fmt.Errorf("conv: empty signal")
	}
	if len(signal) < len(kernel) {
		return nil, fmt.Errorf("conv: signal length %d is shorter than kernel length %d", len(signal), len(kernel))
	}

	var full []float64
	if len(kernel) < fftThreshold {
		full = direct(signal, kernel)
	} else {
		full = fftConvolve(signal, kernel)
	}
	return crop(full, len(signal), len(kernel), mode), nil
}

// IndexOffset returns the shift that maps a result index in the given mode
// back to the corresponding input-signal index, using the centered-kernel
// convention (kernel anchor at tap (M-1)/2).
func IndexOffset(mode Mode, kernelLen int) int {
	half := (kernelLen - 1) / 2
	switch mode {
	case Full:
		return -half
	case Valid:
		// The valid crop starts kernelLen-1 samples into the full result.
		return kernelLen - 1 - half
	default:
		return 0
	}
}

func direct(signal, kernel []float64) []float64 {
	out := make([]float64, len(signal)+len(kernel)-1)
	for i, s := range signal {
		if s == 0 {
			continue
		}
		for j, k := range kernel {
			out[i+j] += s * k
		}
	}
	return out
}

func fftConvolve(signal, kernel []float64) []float64 {
	n := len(signal) + len(kernel) - 1
	size := nextPow2(n)

	fft := fourier.NewFFT(size)
	sc := fft.Coefficients(nil, padded(signal, size))
	kc := fft.Coefficients(nil, padded(kernel, size))
	for i := range sc {
		sc[i] *= kc[i]
	}
	seq := fft.Sequence(nil, sc)

	// fourier's inverse is unnormalized.
	out := make([]float64, n)
	scale := 1 / float64(size)
	for i := range out {
		out[i] = seq[i] * scale
	}
	return out
}

func crop(full []float64, n, m int, mode Mode) []float64 {
	switch mode {
	case Same:
		start := (m - 1) / 2
		return full[start : start+n]
	case Valid:
		return full[m-1 : n]
	default:
		return full
	}
}

func padded(v []float64, n int) []float64 {
	out := make([]float64, n)
	copy(out, v)
	return out
}

func nextPow2(n int) int {
	size := 1
	for size < n {
		size <<= 1
	}
	return size
}
