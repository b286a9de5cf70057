package conv

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvolveKnownValues(t *testing.T) {
	signal := []float64{1, 2, 3}
	kernel := []float64{0, 1, 0.5}

	full, err := Convolve(signal, kernel, Full)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0, 1, 2.5, 4, 1.5}, full, 1e-12)

	same, err := Convolve(signal, kernel, Same)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{1, 2.5, 4}, same, 1e-12)

	valid, err := Convolve(signal, kernel, Valid)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{2.5}, valid, 1e-12)
}

func TestLengthContracts(t *testing.T) {
	signal := make([]float64, 100)
	kernel := make([]float64, 9)
	for i := range signal {
		signal[i] = float64(i % 7)
	}
	kernel[4] = 1

	full, err := Convolve(signal, kernel, Full)
	require.NoError(t, err)
	assert.Len(t, full, 100+9-1)

	same, err := Convolve(signal, kernel, Same)
	require.NoError(t, err)
	assert.Len(t, same, 100)

	valid, err := Convolve(signal, kernel, Valid)
	require.NoError(t, err)
	assert.Len(t, valid, 100-9+1)
}

func TestSameModeCenteredIdentity(t *testing.T) {
	// A centered unit impulse kernel leaves the signal untouched in same mode.
	signal := []float64{4, 8, 15, 16, 23, 42}
	kernel := []float64{0, 1, 0}

	same, err := Convolve(signal, kernel, Same)
	require.NoError(t, err)
	assert.InDeltaSlice(t, signal, same, 1e-12)
}

func TestFFTMatchesDirect(t *testing.T) {
	signal := make([]float64, 300)
	for i := range signal {
		signal[i] = math.Sin(0.1*float64(i)) + 0.3*math.Cos(0.7*float64(i))
	}
	kernel := make([]float64, 80) // above the FFT crossover
	for i := range kernel {
		kernel[i] = math.Exp(-0.05 * float64(i))
	}

	want := direct(signal, kernel)
	got := fftConvolve(signal, kernel)
	require.Len(t, got, len(want))
	for i := range want {
		assert.InDelta(t, want[i], got[i], 1e-9, "sample %d", i)
	}
}

func TestIndexOffset(t *testing.T) {
	assert.Equal(t, -4, IndexOffset(Full, 9))
	assert.Equal(t, 0, IndexOffset(Same, 9))
	assert.Equal(t, 4, IndexOffset(Valid, 9))

	// Even-length kernels round the anchor down, so the valid-mode shift
	// picks up the extra sample.
	assert.Equal(t, -1, IndexOffset(Full, 4))
	assert.Equal(t, 2, IndexOffset(Valid, 4))
}

func TestParseMode(t *testing.T) {
	for _, s := range []string{"full", "same", "valid"} {
		mode, err := ParseMode(s)
		require.NoError(t, err)
		assert.Equal(t, Mode(s), mode)
	}
	_, err := ParseMode("circular")
	assert.ErrorContains(t, err, "unknown mode")
}

func TestConvolveErrors(t *testing.T) {
	_, err := Convolve([]float64{1, 2, 3}, nil, Same)
	assert.ErrorContains(t, err, "empty kernel")

	_, err = Convolve(nil, []float64{1}, Same)
	assert.ErrorContains(t, err, "empty signal")

	_, err = Convolve([]float64{1, 2}, []float64{1, 1, 1}, Valid)
	assert.ErrorContains(t, err, "shorter than kernel")

	_, err = Convolve([]float64{1, 2, 3}, []float64{1}, Mode("bogus"))
	assert.ErrorContains(t, err, "unknown mode")
}
