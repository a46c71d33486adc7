package pq

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepfabric/vectodb/metric"
)

func TestQuantizer_TrainEncodeDecode(t *testing.T) {
	q, err := New(8, 2, 4)
	require.NoError(t, err)

	// 20 random-ish training vectors.
	vecs := make([]float32, 20*8)
	for i := range vecs {
		vecs[i] = float32(i%7) - 3
	}
	require.NoError(t, q.Train(vecs, 10))
	assert.True(t, q.IsTrained())

	v := vecs[:8]
	codes := q.Encode(v)
	require.Len(t, codes, 2)

	decoded := q.Decode(codes)
	require.Len(t, decoded, 8)
}

func TestQuantizer_RejectsBadShape(t *testing.T) {
	_, err := New(9, 2, 4)
	assert.Error(t, err)
	_, err = New(8, 2, 300)
	assert.Error(t, err)
}

func TestQuantizer_ADCMatchesDirectDistance(t *testing.T) {
	q, err := New(4, 2, 4)
	require.NoError(t, err)
	vecs := []float32{0, 0, 0, 0, 1, 1, 1, 1, 2, 2, 2, 2, 3, 3, 3, 3}
	require.NoError(t, q.Train(vecs, 10))

	query := []float32{1, 1, 1, 1}
	codes := q.Encode(vecs[4:8])
	table := q.DistanceTable(query)
	adc := q.ADC(table, codes)
	assert.GreaterOrEqual(t, adc, float32(0))
	assert.InDelta(t, metric.SquaredL2(query, q.Decode(codes)), adc, 1e-4)
}
