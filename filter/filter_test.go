package filter

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpecValidation(t *testing.T) {
	valid := Spec{Order: 5, Cutoff: 3, SampleRate: 10}
	assert.NoError(t, valid.Validate())

	s := valid
	s.Order = 0
	assert.ErrorContains(t, s.Validate(), "order must be positive")

	s = valid
	s.Order = -3
	assert.ErrorContains(t, s.Validate(), "order must be positive")

	s = valid
	s.SampleRate = 0
	assert.ErrorContains(t, s.Validate(), "sample rate must be positive")

	s = valid
	s.Cutoff = 5 // Nyquist for fs=10
	assert.ErrorContains(t, s.Validate(), "below Nyquist")

	s = valid
	s.Cutoff = -1
	assert.Error(t, s.Validate())
}

func TestDesignShapeAndDCGain(t *testing.T) {
	for order := 1; order <= 6; order++ {
		coeffs, err := Design(Spec{Order: order, Cutoff: 2, SampleRate: 10})
		require.NoError(t, err)

		assert.Len(t, coeffs.B, order+1)
		assert.Len(t, coeffs.A, order+1)
		assert.InDelta(t, 1.0, coeffs.A[0], 1e-12)

		// Unit gain at DC: sum(b) == sum(a)
		var sumB, sumA float64
		for _, v := range coeffs.B {
			sumB += v
		}
		for _, v := range coeffs.A {
			sumA += v
		}
		assert.InDelta(t, sumA, sumB, 1e-9)
	}
}

func TestConstantSignalConvergesToConstant(t *testing.T) {
	coeffs, err := Design(Spec{Order: 3, Cutoff: 2, SampleRate: 10})
	require.NoError(t, err)

	x := make([]float64, 300)
	for i := range x {
		x[i] = 42.0
	}
	y := Apply(coeffs, x)
	require.Len(t, y, len(x))

	// After the startup transient the output settles on the DC value.
	for i := 200; i < len(y); i++ {
		assert.InDelta(t, 42.0, y[i], 1e-9, "sample %d", i)
	}
}

func TestFilteringIsIdempotentOnSettledSignal(t *testing.T) {
	coeffs, err := Design(Spec{Order: 5, Cutoff: 3, SampleRate: 10})
	require.NoError(t, err)

	x := make([]float64, 400)
	for i := range x {
		x[i] = 7.5
	}
	once := Apply(coeffs, x)
	twice := Apply(coeffs, once)

	for i := 300; i < len(x); i++ {
		assert.InDelta(t, once[i], twice[i], 1e-9, "sample %d", i)
	}
}

func TestNyquistToneIsRejected(t *testing.T) {
	coeffs, err := Design(Spec{Order: 4, Cutoff: 2, SampleRate: 10})
	require.NoError(t, err)

	// Alternating +-1 is a tone at the Nyquist frequency; the zeros at
	// z = -1 remove it entirely once the transient dies out.
	x := make([]float64, 300)
	for i := range x {
		x[i] = 1 - 2*float64(i%2)
	}
	y := Apply(coeffs, x)
	for i := 200; i < len(y); i++ {
		assert.Less(t, math.Abs(y[i]), 1e-6, "sample %d", i)
	}
}

func TestApplyFirstSampleMatchesLeadCoefficient(t *testing.T) {
	coeffs, err := Design(Spec{Order: 2, Cutoff: 1, SampleRate: 10})
	require.NoError(t, err)

	y := Apply(coeffs, []float64{1, 0, 0, 0})
	require.Len(t, y, 4)
	assert.InDelta(t, coeffs.B[0], y[0], 1e-12)
}
