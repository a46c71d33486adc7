package flatstore

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/deepfabric/vectodb/metric"
)

// magic identifies the header of base.fvecs. It is checked on every Open.
var magic = [4]byte{'I', 'x', 'F', 'D'}

// header carries the metadata that must survive a process restart: the
// vector dimension, the fixed metric for this store, the logical record
// count and the allocated (possibly over-provisioned) capacity. It is
// prepended to base.fvecs; base.xids and base.mutation are pure flat
// arrays sized off the same capacity/ntotal values.
type header struct {
	Dim        int32
	MetricKind int32
	MetricArg  float32
	NTotal     uint64
	Capacity   uint64
}

// headerSize is the fixed on-disk size of header, in bytes.
const headerSize = 4 /*magic*/ + 4 /*Dim*/ + 4 /*MetricKind*/ + 4 /*MetricArg*/ + 8 /*NTotal*/ + 8 /*Capacity*/

func encodeHeader(h header) []byte {
	buf := make([]byte, headerSize)
	copy(buf[0:4], magic[:])
	binary.LittleEndian.PutUint32(buf[4:8], uint32(h.Dim))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(h.MetricKind))
	binary.LittleEndian.PutUint32(buf[12:16], math.Float32bits(h.MetricArg))
	binary.LittleEndian.PutUint64(buf[16:24], h.NTotal)
	binary.LittleEndian.PutUint64(buf[24:32], h.Capacity)
	return buf
}

func decodeHeader(buf []byte) (header, error) {
	if len(buf) < headerSize {
		return header{}, fmt.Errorf("flatstore: header truncated: have %d bytes, want %d", len(buf), headerSize)
	}
	if buf[0] != magic[0] || buf[1] != magic[1] || buf[2] != magic[2] || buf[3] != magic[3] {
		return header{}, fmt.Errorf("%w: bad magic %q", ErrFormat, buf[0:4])
	}
	return header{
		Dim:        int32(binary.LittleEndian.Uint32(buf[4:8])),
		MetricKind: int32(binary.LittleEndian.Uint32(buf[8:12])),
		MetricArg:  math.Float32frombits(binary.LittleEndian.Uint32(buf[12:16])),
		NTotal:     binary.LittleEndian.Uint64(buf[16:24]),
		Capacity:   binary.LittleEndian.Uint64(buf[24:32]),
	}, nil
}

func putHeader(data []byte, h header) {
	copy(data[:headerSize], encodeHeader(h))
}

// nextCapacity doubles cap until it can hold need records, matching the
// growth policy of Reserve/AddWithIDs. cap must be > 0.
func nextCapacity(cap, need uint64) uint64 {
	if cap == 0 {
		cap = 1
	}
	for cap < need {
		cap *= 2
	}
	return cap
}

func metricKindOf(k metric.Kind) int32 { return int32(k) }

func mutationValue(buf []byte) uint64 {
	if len(buf) < 8 {
		return 0
	}
	return binary.LittleEndian.Uint64(buf[:8])
}

func putMutationValue(buf []byte, v uint64) {
	binary.LittleEndian.PutUint64(buf[:8], v)
}
