package compress

import "fmt"

// Type identifies a compression codec in saved model containers.
// The numeric values are part of the on-disk format and must not change.
type Type uint8

const (
	TypeNone Type = iota
	TypeLZ4
	TypeS2
	TypeZstd
)

// String returns the codec name.
func (t Type) String() string {
	switch t {
	case TypeNone:
		return "none"
	case TypeLZ4:
		return "lz4"
	case TypeS2:
		return "s2"
	case TypeZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// Compressor compresses a payload. The returned slice is newly allocated
// and owned by the caller; the input is never modified.
type Compressor interface {
	Compress(data []byte) ([]byte, error)
}

// Decompressor reverses a Compressor. It returns an error if the payload is
// corrupted or was produced by a different codec.
type Decompressor interface {
	Decompress(data []byte) ([]byte, error)
}

// Codec combines compression and decompression.
type Codec interface {
	Compressor
	Decompressor
}

var builtinCodecs = map[Type]Codec{
	TypeNone: NewNoOpCompressor(),
	TypeLZ4:  NewLZ4Compressor(),
	TypeS2:   NewS2Compressor(),
	TypeZstd: NewZstdCompressor(),
}

// GetCodec retrieves the built-in Codec for the given type.
func GetCodec(t Type) (Codec, error) {
	if codec, ok := builtinCodecs[t]; ok {
		return codec, nil
	}

	return nil, fmt.Errorf("unsupported compression type: %s", t)
}
