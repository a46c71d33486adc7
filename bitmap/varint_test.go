package bitmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVarint_RoundTrip(t *testing.T) {
	values := []uint64{0, 1<<7 - 1, 1 << 7, 1<<14 - 1, 1<<21 - 1, 1<<63 - 1}
	for _, v := range values {
		enc := appendVarint(nil, v)
		require.LessOrEqual(t, len(enc), maxVarintLen)

		got, n, ok := readVarint(enc)
		require.True(t, ok)
		assert.Equal(t, len(enc), n)
		assert.Equal(t, v, got)
	}
}

func TestVarint_TruncatedInputFails(t *testing.T) {
	enc := appendVarint(nil, 1<<21-1)
	_, _, ok := readVarint(enc[:len(enc)-1])
	assert.False(t, ok)
}
