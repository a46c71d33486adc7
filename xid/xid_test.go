package xid

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	x := Encode(12345, 987654321)
	uid, pid := Decode(x)
	assert.Equal(t, uint32(12345), uid)
	assert.Equal(t, uint64(987654321), pid)
	assert.Equal(t, uint32(12345), UID(x))
	assert.Equal(t, uint64(987654321), PID(x))
}

func TestEncode_ZeroValues(t *testing.T) {
	x := Encode(0, 0)
	assert.Equal(t, int64(0), x)
}

func TestEncode_IsNonNegative(t *testing.T) {
	x := Encode(1<<29-1, PidMask) // largest uid that leaves the sign bit clear
	assert.False(t, IsDeleted(x))
	assert.GreaterOrEqual(t, x, int64(0))
}

func TestIsDeleted(t *testing.T) {
	assert.True(t, IsDeleted(Deleted))
	assert.False(t, IsDeleted(Encode(1, 1)))
	assert.False(t, IsDeleted(0))
}

func TestPidMask_IsolatesLowBits(t *testing.T) {
	x := Encode(7, PidMask+5) // pid overflow wraps via the mask
	_, pid := Decode(x)
	assert.Equal(t, (PidMask+5)&PidMask, pid)
}
