package ann

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/deepfabric/vectodb/ann/pq"
	"github.com/deepfabric/vectodb/internal/compress"
	"github.com/deepfabric/vectodb/metric"
)

// builder accumulates a flat binary artifact body before compression.
type builder struct {
	buf []byte
}

func (b *builder) u8(v uint8)   { b.buf = append(b.buf, v) }
func (b *builder) i32(v int32)  { b.u32(uint32(v)) }
func (b *builder) u32(v uint32) { b.buf = binary.LittleEndian.AppendUint32(b.buf, v) }
func (b *builder) u64(v uint64) { b.buf = binary.LittleEndian.AppendUint64(b.buf, v) }
func (b *builder) f32(v float32) { b.u32(math.Float32bits(v)) }

func (b *builder) i64s(v []int64) {
	b.u64(uint64(len(v)))
	for _, x := range v {
		b.u64(uint64(x))
	}
}

func (b *builder) f32s(v []float32) {
	b.u64(uint64(len(v)))
	for _, x := range v {
		b.f32(x)
	}
}

func (b *builder) bytes(v []byte) {
	b.u64(uint64(len(v)))
	b.buf = append(b.buf, v...)
}

func (b *builder) finish(kind Type, compression compress.Type) ([]byte, error) {
	body, err := compress.Encode(b.buf, compression)
	if err != nil {
		return nil, fmt.Errorf("ann: compress artifact: %w", err)
	}
	out := make([]byte, 2+len(body))
	out[0] = byte(kind)
	out[1] = byte(compression)
	copy(out[2:], body)
	return out, nil
}

// Type tags which index kind an artifact belongs to, so Deserialize can
// sanity-check it is being handed the right bytes.
type Type uint8

const (
	typeFlat    Type = 1
	typeIVFPQ   Type = 2
	typeIVFHNSW Type = 3
)

type reader struct {
	buf []byte
	pos int
}

func newReader(kind Type, data []byte) (*reader, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("ann: artifact truncated")
	}
	if Type(data[0]) != kind {
		return nil, fmt.Errorf("ann: artifact type mismatch: want %d, got %d", kind, data[0])
	}
	body, err := compress.Decode(data[2:], compress.Type(data[1]))
	if err != nil {
		return nil, fmt.Errorf("ann: decompress artifact: %w", err)
	}
	return &reader{buf: body}, nil
}

func (r *reader) u8() uint8 {
	v := r.buf[r.pos]
	r.pos++
	return v
}

func (r *reader) u32() uint32 {
	v := binary.LittleEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v
}

func (r *reader) i32() int32   { return int32(r.u32()) }
func (r *reader) f32() float32 { return math.Float32frombits(r.u32()) }

func (r *reader) u64() uint64 {
	v := binary.LittleEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v
}

func (r *reader) i64s() []int64 {
	n := int(r.u64())
	out := make([]int64, n)
	for i := range out {
		out[i] = int64(r.u64())
	}
	return out
}

func (r *reader) f32s() []float32 {
	n := int(r.u64())
	out := make([]float32, n)
	for i := range out {
		out[i] = r.f32()
	}
	return out
}

func (r *reader) bytes() []byte {
	n := int(r.u64())
	out := make([]byte, n)
	copy(out, r.buf[r.pos:r.pos+n])
	r.pos += n
	return out
}

func encodeFlatArtifact(f *flatIndex) []byte {
	b := &builder{}
	b.i32(int32(f.dim))
	b.i32(int32(f.kind))
	b.f32(f.arg)
	b.i64s(f.ids)
	b.f32s(f.vecs)
	out, err := b.finish(typeFlat, f.compression)
	if err != nil {
		// compress.Encode stores an unknown Type raw and returns an
		// error only when the LZ4 block encoder fails; that error is
		// raised as a panic here since this function has no error return.
		panic(err)
	}
	return out
}

func decodeFlatArtifact(data []byte) (dim int, kind metric.Kind, arg float32, ids []int64, vecs []float32, err error) {
	r, err := newReader(typeFlat, data)
	if err != nil {
		return 0, 0, 0, nil, nil, err
	}
	dim = int(r.i32())
	kind = metric.Kind(r.i32())
	arg = r.f32()
	ids = r.i64s()
	vecs = r.f32s()
	return dim, kind, arg, ids, vecs, nil
}

func encodeIVFPQArtifact(x *ivfpqIndex) ([]byte, error) {
	b := &builder{}
	b.i32(int32(x.dim))
	b.i32(int32(x.kind))
	b.f32(x.arg)
	b.i32(int32(x.nlists))
	b.i32(int32(x.pqM))
	b.i32(int32(x.pqK))
	b.f32s(x.centroids)

	cb := x.quant.Codebooks()
	b.u64(uint64(len(cb)))
	for _, sub := range cb {
		b.u64(uint64(len(sub)))
		for _, centroid := range sub {
			b.f32s(centroid)
		}
	}

	b.u64(uint64(len(x.lists)))
	for _, l := range x.lists {
		b.i64s(l.ids)
		b.bytes(l.codes)
	}

	return b.finish(typeIVFPQ, x.compression)
}

func decodeIVFPQArtifact(x *ivfpqIndex, data []byte) error {
	r, err := newReader(typeIVFPQ, data)
	if err != nil {
		return err
	}
	x.dim = int(r.i32())
	x.kind = metric.Kind(r.i32())
	x.arg = r.f32()
	x.nlists = int(r.i32())
	x.pqM = int(r.i32())
	x.pqK = int(r.i32())
	x.centroids = r.f32s()

	quant, err := pq.New(x.dim, x.pqM, x.pqK)
	if err != nil {
		return err
	}
	numSub := int(r.u64())
	cb := make([][][]float32, numSub)
	for i := range cb {
		k := int(r.u64())
		cb[i] = make([][]float32, k)
		for j := range cb[i] {
			cb[i][j] = r.f32s()
		}
	}
	quant.SetCodebooks(cb)
	x.quant = quant

	numLists := int(r.u64())
	x.lists = make([]ivfList, numLists)
	for i := range x.lists {
		x.lists[i].ids = r.i64s()
		x.lists[i].codes = r.bytes()
	}
	x.trained = true
	return nil
}

func encodeIVFHNSWArtifact(x *ivfhnswIndex) ([]byte, error) {
	b := &builder{}
	b.i32(int32(x.dim))
	b.i32(int32(x.kind))
	b.f32(x.arg)
	b.i32(int32(x.nlists))
	b.f32s(x.centroids)

	b.u64(uint64(len(x.lists)))
	for _, l := range x.lists {
		b.i64s(l.ids)
		b.f32s(l.vecs)
	}

	return b.finish(typeIVFHNSW, x.compression)
}

func decodeIVFHNSWArtifact(x *ivfhnswIndex, data []byte) error {
	r, err := newReader(typeIVFHNSW, data)
	if err != nil {
		return err
	}
	x.dim = int(r.i32())
	x.kind = metric.Kind(r.i32())
	x.arg = r.f32()
	x.nlists = int(r.i32())
	x.centroids = r.f32s()

	numLists := int(r.u64())
	x.lists = make([]flatList, numLists)
	for i := range x.lists {
		x.lists[i].ids = r.i64s()
		x.lists[i].vecs = r.f32s()
	}

	x.graph = buildCoarseGraph(x.centroids, x.dim)
	x.trained = true
	return nil
}
