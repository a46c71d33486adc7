package ann

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseParams_AppliesRecognizedKeys(t *testing.T) {
	p, err := parseParams(defaultQueryParams(), "nprobe=8,ht=3,k_factor=4,max_codes=100")
	require.NoError(t, err)
	assert.Equal(t, 8, p.NProbe)
	assert.Equal(t, 3, p.HT)
	assert.Equal(t, 4.0, p.KFactor)
	assert.Equal(t, 100, p.MaxCodes)
}

func TestParseParams_EmptyStringKeepsBase(t *testing.T) {
	base := defaultQueryParams()
	p, err := parseParams(base, "")
	require.NoError(t, err)
	assert.Equal(t, base, p)
}

func TestParseParams_UnknownKeyRejected(t *testing.T) {
	_, err := parseParams(defaultQueryParams(), "bogus=1")
	require.Error(t, err)
	var pe *ParamError
	assert.ErrorAs(t, err, &pe)
}

func TestParseParams_MalformedValueRejected(t *testing.T) {
	_, err := parseParams(defaultQueryParams(), "nprobe=notanumber")
	assert.Error(t, err)
}

func TestParseParams_PartialUpdateKeepsUnmentionedFields(t *testing.T) {
	base := queryParams{NProbe: 16, HT: 1, KFactor: 2, MaxCodes: 5}
	p, err := parseParams(base, "nprobe=32")
	require.NoError(t, err)
	assert.Equal(t, 32, p.NProbe)
	assert.Equal(t, 1, p.HT)
	assert.Equal(t, 2.0, p.KFactor)
	assert.Equal(t, 5, p.MaxCodes)
}
