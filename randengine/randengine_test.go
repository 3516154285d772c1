package randengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSameSeedProducesSameSequence(t *testing.T) {
	a := New(42)
	b := New(42)
	for i := 0; i < 50; i++ {
		assert.Equal(t, a.Float64(), b.Float64())
	}
}

func TestDiscreteDistributionRespectsZeroWeights(t *testing.T) {
	e := New(1)
	weight := []float64{0, 0, 1, 0}
	for i := 0; i < 20; i++ {
		assert.Equal(t, int32(2), e.DiscreteDistribution(weight))
	}
}

func TestPTrueBoundaries(t *testing.T) {
	e := New(7)
	for i := 0; i < 20; i++ {
		assert.False(t, e.PTrue(0))
	}
	e2 := New(7)
	for i := 0; i < 20; i++ {
		assert.True(t, e2.PTrue(1))
	}
}

func TestIntnSafeWithinRange(t *testing.T) {
	e := New(3)
	for i := 0; i < 100; i++ {
		n := e.IntnSafe(10)
		assert.GreaterOrEqual(t, n, 0)
		assert.Less(t, n, 10)
	}
}
