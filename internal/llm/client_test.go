package llm

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeProducesUnitVector(t *testing.T) {
	v := Normalize([]float32{3, 4})

	assert.InDelta(t, 0.6, float64(v[0]), 1e-6)
	assert.InDelta(t, 0.8, float64(v[1]), 1e-6)

	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-6)
}

func TestNormalizeLeavesZeroVector(t *testing.T) {
	assert.Equal(t, []float32{0, 0, 0}, Normalize([]float32{0, 0, 0}))
}
