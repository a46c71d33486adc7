// Package compress frames and compresses the .index artifact bodies that
// Sync writes, using zstd by default and lz4 as a selectable fast path.
package compress

import (
	"encoding/binary"
	"errors"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Type identifies the compression algorithm framing a block.
type Type uint8

const (
	// None stores the block uncompressed.
	None Type = 0
	// LZ4 favors encode/decode speed over ratio.
	LZ4 Type = 1
	// ZSTD favors ratio over speed; the default for .index artifacts.
	ZSTD Type = 2
)

const headerSize = 8 // uint32 uncompressed size, uint32 compressed size (0 = stored raw)

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func putZstdEncoder(enc *zstd.Encoder) { zstdEncoderPool.Put(enc) }

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

func putZstdDecoder(dec *zstd.Decoder) { zstdDecoderPool.Put(dec) }

// Encode compresses data under t, prefixed with an 8-byte header. If
// compression does not help (ratio worse than 0.9), the block is stored
// raw with CompressedSize == 0 in the header.
func Encode(data []byte, t Type) ([]byte, error) {
	if t == None || len(data) == 0 {
		return rawBlock(data), nil
	}

	var compressed []byte
	var err error
	switch t {
	case LZ4:
		compressed, err = encodeLZ4(data)
	case ZSTD:
		compressed, err = encodeZSTD(data)
	default:
		return rawBlock(data), nil
	}
	if err != nil {
		return nil, err
	}

	if len(compressed) == 0 || float64(len(compressed)) > float64(len(data))*0.9 {
		return rawBlock(data), nil
	}

	out := make([]byte, headerSize+len(compressed))
	binary.LittleEndian.PutUint32(out[0:], uint32(len(data)))
	binary.LittleEndian.PutUint32(out[4:], uint32(len(compressed)))
	copy(out[headerSize:], compressed)
	return out, nil
}

func rawBlock(data []byte) []byte {
	out := make([]byte, headerSize+len(data))
	binary.LittleEndian.PutUint32(out[0:], uint32(len(data)))
	binary.LittleEndian.PutUint32(out[4:], 0)
	copy(out[headerSize:], data)
	return out
}

func encodeLZ4(data []byte) ([]byte, error) {
	buf := make([]byte, lz4.CompressBlockBound(len(data)))
	n, err := lz4.CompressBlock(data, buf, nil)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil // incompressible
	}
	return buf[:n], nil
}

func encodeZSTD(data []byte) ([]byte, error) {
	enc := getZstdEncoder()
	defer putZstdEncoder(enc)
	return enc.EncodeAll(data, nil), nil
}

// Decode reverses Encode. t must match the Type used to encode data.
func Decode(data []byte, t Type) ([]byte, error) {
	if len(data) < headerSize {
		return nil, errors.New("compress: block too small for header")
	}
	uncompressedSize := binary.LittleEndian.Uint32(data[0:])
	compressedSize := binary.LittleEndian.Uint32(data[4:])

	if compressedSize == 0 {
		if uint32(len(data)) < headerSize+uncompressedSize {
			return nil, errors.New("compress: raw block truncated")
		}
		return data[headerSize : headerSize+uncompressedSize], nil
	}

	if uint32(len(data)) < headerSize+compressedSize {
		return nil, errors.New("compress: compressed block truncated")
	}
	body := data[headerSize : headerSize+compressedSize]
	out := make([]byte, uncompressedSize)

	switch t {
	case LZ4:
		n, err := lz4.UncompressBlock(body, out)
		if err != nil {
			return nil, err
		}
		if uint32(n) != uncompressedSize {
			return nil, errors.New("compress: lz4 decompressed size mismatch")
		}
		return out, nil
	case ZSTD:
		dec := getZstdDecoder()
		defer putZstdDecoder(dec)
		decoded, err := dec.DecodeAll(body, out[:0])
		if err != nil {
			return nil, err
		}
		if uint32(len(decoded)) != uncompressedSize {
			return nil, errors.New("compress: zstd decompressed size mismatch")
		}
		return decoded, nil
	default:
		return nil, errors.New("compress: unknown compression type")
	}
}
