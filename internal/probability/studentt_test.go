package probability

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStudentT3CDF(t *testing.T) {
	assert.Equal(t, 0.5, StudentT3CDF(0))

	for _, x := range []float64{0.1, 0.5, 1, 2.5, 10} {
		assert.InDelta(t, 1.0, StudentT3CDF(x)+StudentT3CDF(-x), 1e-12, "symmetry at %v", x)
		assert.Greater(t, StudentT3CDF(x), StudentT3CDF(x/2))
	}

	// Known quantile: P(T3 <= 3.182) ~ 0.975.
	assert.InDelta(t, 0.975, StudentT3CDF(3.182446), 1e-4)
}

func TestFinishProb(t *testing.T) {
	tests := []struct {
		name     string
		distance float64
		vol      float64
		timeLeft float64
		want     float64
	}{
		{"no vol above strike", 1, 0, 100, MaxProb},
		{"no vol at strike", 0, 0, 100, MinProb},
		{"no vol below strike", -1, 0, 100, MinProb},
		{"no time left above", 5, 2, 0, MaxProb},
		{"at strike", 0, 2, 100, 0.5},
		{"far above clamps", 1e9, 1, 1, MaxProb},
		{"far below clamps", -1e9, 1, 1, MinProb},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FinishProb(tt.distance, tt.vol, tt.timeLeft))
		})
	}

	p := FinishProb(20, 2, 100)
	assert.InDelta(t, StudentT3CDF(1), p, 1e-15)
	assert.Equal(t, p, FinishProb(20, 2, 100), "must be reproducible")
}

func TestLogitLogistic(t *testing.T) {
	assert.InDelta(t, 0.7, Logistic(Logit(0.7), 20), 1e-12)
	assert.Equal(t, Logit(MaxProb), Logit(1))
	assert.InDelta(t, 1/(1+math.Exp(-20)), Logistic(1000, 20), 1e-15)
}
