package ann

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepfabric/vectodb/internal/compress"
	"github.com/deepfabric/vectodb/metric"
	"github.com/deepfabric/vectodb/xid"
)

func TestArtifact_TypeMismatchIsRejected(t *testing.T) {
	f := newFlat(2, metric.L2, 0, compress.None)
	require.NoError(t, f.Add([]int64{xid.Encode(1, 0)}, []float32{1, 2}))
	data, err := f.Serialize()
	require.NoError(t, err)

	err = decodeIVFPQArtifact(&ivfpqIndex{}, data)
	assert.Error(t, err)
}

func TestArtifact_TruncatedInputIsRejected(t *testing.T) {
	_, _, _, _, _, err := decodeFlatArtifact([]byte{1})
	assert.Error(t, err)
}

func TestArtifact_LZ4AndZSTDRoundTrip(t *testing.T) {
	for _, ct := range []compress.Type{compress.None, compress.LZ4, compress.ZSTD} {
		f := newFlat(2, metric.InnerProduct, 0, ct)
		require.NoError(t, f.Add([]int64{xid.Encode(1, 0), xid.Encode(1, 1)}, []float32{1, 2, 3, 4}))

		data, err := f.Serialize()
		require.NoError(t, err)

		g := newFlat(0, 0, 0, ct)
		require.NoError(t, g.Deserialize(data))
		assert.Equal(t, f.ids, g.ids)
		assert.Equal(t, f.vecs, g.vecs)
	}
}
