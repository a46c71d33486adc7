// Package bitmap implements the per-query user-id filter: a small,
// bit-exact wire codec over a set of uint32 user ids, backed by
// github.com/RoaringBitmap/roaring/v2 once the set grows dense enough to
// be worth compressing.
package bitmap

import (
	"bytes"
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"
)

// promoteThreshold is the cardinality above which a Bitmap switches its
// internal representation from a raw small-set to a roaring bitmap. It is
// also the cardinality boundary the wire codec uses to pick an encoding.
const promoteThreshold = 32

const (
	discSmall byte = 0x00
	discDense byte = 0x01
)

// Bitmap is a mutable set of uint32 user ids. The zero value is not usable;
// construct with New.
type Bitmap struct {
	small map[uint32]struct{} // non-nil while cardinality <= promoteThreshold
	dense *roaring.Bitmap     // non-nil once promoted
}

// New returns an empty Bitmap.
func New() *Bitmap {
	return &Bitmap{small: make(map[uint32]struct{})}
}

// Add inserts uid into the set, promoting to a dense roaring bitmap once
// the cardinality exceeds promoteThreshold.
func (b *Bitmap) Add(uid uint32) {
	if b.dense != nil {
		b.dense.Add(uid)
		return
	}
	b.small[uid] = struct{}{}
	if len(b.small) > promoteThreshold {
		b.promote()
	}
}

// Remove deletes uid from the set, if present.
func (b *Bitmap) Remove(uid uint32) {
	if b.dense != nil {
		b.dense.Remove(uid)
		return
	}
	delete(b.small, uid)
}

// Contains reports whether uid is a member of the set.
func (b *Bitmap) Contains(uid uint32) bool {
	if b.dense != nil {
		return b.dense.Contains(uid)
	}
	_, ok := b.small[uid]
	return ok
}

// Cardinality returns the number of members.
func (b *Bitmap) Cardinality() int {
	if b.dense != nil {
		return int(b.dense.GetCardinality())
	}
	return len(b.small)
}

func (b *Bitmap) promote() {
	rb := roaring.New()
	for uid := range b.small {
		rb.Add(uid)
	}
	b.dense = rb
	b.small = nil
}

// Encode serializes the bitmap to its wire format:
//
//	disc byte | varint(n) | payload
//
// disc is discSmall (n = cardinality, payload = n little-endian uint32s,
// raw) when cardinality <= promoteThreshold, else discDense (n = the byte
// length of payload, payload = the roaring bitmap's portable WriteTo
// format).
func (b *Bitmap) Encode() ([]byte, error) {
	card := b.Cardinality()
	if card <= promoteThreshold {
		out := make([]byte, 0, 1+maxVarintLen+4*card)
		out = append(out, discSmall)
		out = appendVarint(out, uint64(card))
		ids := make([]uint32, 0, card)
		if b.dense != nil {
			it := b.dense.Iterator()
			for it.HasNext() {
				ids = append(ids, it.Next())
			}
		} else {
			for uid := range b.small {
				ids = append(ids, uid)
			}
		}
		for _, uid := range ids {
			out = append(out, byte(uid), byte(uid>>8), byte(uid>>16), byte(uid>>24))
		}
		return out, nil
	}

	rb := b.dense
	if rb == nil {
		rb = roaring.New()
		for uid := range b.small {
			rb.Add(uid)
		}
	}
	var buf bytes.Buffer
	if _, err := rb.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("bitmap: encode dense payload: %w", err)
	}
	out := make([]byte, 0, 1+maxVarintLen+buf.Len())
	out = append(out, discDense)
	out = appendVarint(out, uint64(buf.Len()))
	out = append(out, buf.Bytes()...)
	return out, nil
}

// Decode parses the wire format produced by Encode.
func Decode(data []byte) (*Bitmap, error) {
	if len(data) < 1 {
		return nil, fmt.Errorf("bitmap: decode: empty input")
	}
	disc := data[0]
	n, nlen, ok := readVarint(data[1:])
	if !ok {
		return nil, fmt.Errorf("bitmap: decode: truncated length varint")
	}
	body := data[1+nlen:]

	switch disc {
	case discSmall:
		want := int(n) * 4
		if len(body) < want {
			return nil, fmt.Errorf("bitmap: decode: truncated small-set payload: want %d bytes, have %d", want, len(body))
		}
		b := New()
		for i := 0; i < int(n); i++ {
			off := i * 4
			uid := uint32(body[off]) | uint32(body[off+1])<<8 | uint32(body[off+2])<<16 | uint32(body[off+3])<<24
			b.small[uid] = struct{}{}
		}
		return b, nil
	case discDense:
		if uint64(len(body)) < n {
			return nil, fmt.Errorf("bitmap: decode: dense payload shorter than declared: want %d bytes, have %d", n, len(body))
		}
		rb := roaring.New()
		if _, err := rb.ReadFrom(bytes.NewReader(body[:n])); err != nil {
			return nil, fmt.Errorf("bitmap: decode: %w", err)
		}
		return &Bitmap{dense: rb}, nil
	default:
		return nil, fmt.Errorf("bitmap: decode: unknown discriminant 0x%02x", disc)
	}
}
