package ann

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepfabric/vectodb/internal/compress"
	"github.com/deepfabric/vectodb/metric"
)

func TestParseRecipe_Flat(t *testing.T) {
	r, err := ParseRecipe("Flat")
	require.NoError(t, err)
	assert.Equal(t, KindFlat, r.Kind)
}

func TestParseRecipe_IVFPQ(t *testing.T) {
	r, err := ParseRecipe("IVF4096,PQ32")
	require.NoError(t, err)
	assert.Equal(t, KindIVFPQ, r.Kind)
	assert.Equal(t, 4096, r.NLists)
	assert.Equal(t, 32, r.PQM)
	assert.Equal(t, 256, r.PQK)
}

func TestParseRecipe_IVFHNSW(t *testing.T) {
	r, err := ParseRecipe("IVF1024_HNSW32,Flat")
	require.NoError(t, err)
	assert.Equal(t, KindIVFHNSW, r.Kind)
	assert.Equal(t, 1024, r.NLists)
}

func TestParseRecipe_RejectsUnrecognized(t *testing.T) {
	_, err := ParseRecipe("bogus")
	assert.Error(t, err)
}

func TestNew_DispatchesByRecipeKind(t *testing.T) {
	f, err := New("Flat", 4, metric.L2, 0, compress.None)
	require.NoError(t, err)
	assert.True(t, f.IsTrained())

	p, err := New("IVF2,PQ2", 4, metric.L2, 0, compress.None)
	require.NoError(t, err)
	assert.False(t, p.IsTrained())
	assert.Equal(t, "IVF2,PQ2", p.Recipe())

	h, err := New("IVF2_HNSW32,Flat", 4, metric.L2, 0, compress.None)
	require.NoError(t, err)
	assert.False(t, h.IsTrained())
	assert.Equal(t, "IVF2_HNSW32,Flat", h.Recipe())
}

func TestNew_RejectsUnrecognizedRecipe(t *testing.T) {
	_, err := New("nonsense", 4, metric.L2, 0, compress.None)
	assert.Error(t, err)
}

func TestNew_RejectsIndivisibleDimForPQ(t *testing.T) {
	_, err := New("IVF2,PQ3", 4, metric.L2, 0, compress.None)
	assert.Error(t, err)
}
