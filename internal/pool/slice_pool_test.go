package pool

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetFloat64Slice(t *testing.T) {
	require := require.New(t)

	s, done := GetFloat64Slice(128)
	require.Len(s, 128)
	for i := range s {
		s[i] = float64(i)
	}
	done()

	// A second acquisition must come back zeroed regardless of whether the
	// pool handed the same backing array back.
	s2, done2 := GetFloat64Slice(64)
	defer done2()
	require.Len(s2, 64)
	for i, v := range s2 {
		require.Zerof(v, "index %d not zeroed", i)
	}
}

func TestGetFloat64SliceGrows(t *testing.T) {
	s, done := GetFloat64Slice(8)
	done()
	s, done = GetFloat64Slice(1 << 16)
	defer done()
	require.Len(t, s, 1<<16)
}
