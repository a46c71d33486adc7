package metric

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDot(t *testing.T) {
	assert.Equal(t, float32(11), Dot([]float32{1, 2}, []float32{3, 4}))
}

func TestSquaredL2(t *testing.T) {
	assert.Equal(t, float32(25), SquaredL2([]float32{0, 0}, []float32{3, 4}))
}

func TestNorm(t *testing.T) {
	assert.InDelta(t, 5.0, Norm([]float32{3, 4}), 1e-6)
}

func TestNormalizeInPlace_UnitVector(t *testing.T) {
	v := []float32{3, 4}
	ok := NormalizeInPlace(v)
	assert.True(t, ok)
	assert.InDelta(t, 1.0, Norm(v), 1e-6)
}

func TestNormalizeInPlace_ZeroVectorReturnsFalse(t *testing.T) {
	v := []float32{0, 0, 0}
	ok := NormalizeInPlace(v)
	assert.False(t, ok)
	assert.Equal(t, []float32{0, 0, 0}, v)
}

func TestHigherIsBetter(t *testing.T) {
	assert.False(t, L2.HigherIsBetter())
	assert.True(t, InnerProduct.HigherIsBetter())
	assert.True(t, Extra.HigherIsBetter())
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "InnerProduct", InnerProduct.String())
	assert.Equal(t, "L2", L2.String())
	assert.Equal(t, "Extra", Extra.String())
	assert.Equal(t, "Unknown", Kind(99).String())
}

func TestKind_WireValues(t *testing.T) {
	// 0 = inner_product, 1 = L2 is an external wire contract: on-disk
	// headers persist the raw Kind value.
	assert.Equal(t, Kind(0), InnerProduct)
	assert.Equal(t, Kind(1), L2)
}

func TestScore_DispatchesByKind(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{0, 1}
	assert.Equal(t, Dot(a, b), Score(InnerProduct, a, b))
	assert.Equal(t, SquaredL2(a, b), Score(L2, a, b))
}

func TestScore_ExtraFallsBackToSquaredL2(t *testing.T) {
	// Score has no metricArg to dispatch an ExtraFunc with; callers using
	// Extra must invoke their ExtraFunc directly instead.
	a := []float32{1, 0}
	b := []float32{0, 1}
	assert.Equal(t, SquaredL2(a, b), Score(Extra, a, b))
}

func TestCosineFunc(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{1, 1}
	assert.InDelta(t, float32(1)/float32(1.4142135), CosineFunc(a, b, 0), 1e-6)
}

func TestCosineFunc_ZeroVectorReturnsZero(t *testing.T) {
	a := []float32{0, 0}
	b := []float32{1, 1}
	assert.Equal(t, float32(0), CosineFunc(a, b, 0))
}
