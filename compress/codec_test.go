package compress

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

// parameterLikePayload builds a payload resembling a gob-encoded parameter
// block: many float64 values with correlated magnitudes.
func parameterLikePayload(n int) []byte {
	buf := make([]byte, 0, n*8)
	for i := 0; i < n; i++ {
		v := math.Sin(float64(i)/7.0) * 0.25
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v))
	}
	return buf
}

func TestCodecRoundTrip(t *testing.T) {
	payload := parameterLikePayload(4096)

	for _, typ := range []Type{TypeNone, TypeLZ4, TypeS2, TypeZstd} {
		t.Run(typ.String(), func(t *testing.T) {
			require := require.New(t)

			codec, err := GetCodec(typ)
			require.NoError(err)

			compressed, err := codec.Compress(payload)
			require.NoError(err)

			restored, err := codec.Decompress(compressed)
			require.NoError(err)
			require.True(bytes.Equal(payload, restored), "round trip altered payload")
		})
	}
}

func TestCodecEmptyInput(t *testing.T) {
	for _, typ := range []Type{TypeNone, TypeLZ4, TypeS2, TypeZstd} {
		t.Run(typ.String(), func(t *testing.T) {
			require := require.New(t)

			codec, err := GetCodec(typ)
			require.NoError(err)

			compressed, err := codec.Compress(nil)
			require.NoError(err)

			restored, err := codec.Decompress(compressed)
			require.NoError(err)
			require.Empty(restored)
		})
	}
}

func TestGetCodecUnknown(t *testing.T) {
	_, err := GetCodec(Type(250))
	require.Error(t, err)
}

func TestCorruptedDataFails(t *testing.T) {
	garbage := []byte{0xde, 0xad, 0xbe, 0xef, 0x01, 0x02, 0x03}

	for _, typ := range []Type{TypeZstd} {
		codec, err := GetCodec(typ)
		require.NoError(t, err)

		_, err = codec.Decompress(garbage)
		require.Errorf(t, err, "%s accepted garbage input", typ)
	}
}
