package compress

// NoOpCompressor passes data through unchanged. It is used when a saved
// model should remain inspectable on disk, and as a baseline in benchmarks.
//
// Both methods return the input slice as-is without copying; callers must
// not modify the input afterwards if they keep the returned slice.
type NoOpCompressor struct{}

var _ Codec = (*NoOpCompressor)(nil)

// NewNoOpCompressor creates a new pass-through codec.
func NewNoOpCompressor() NoOpCompressor {
	return NoOpCompressor{}
}

// Compress returns the input unchanged.
func (c NoOpCompressor) Compress(data []byte) ([]byte, error) {
	return data, nil
}

// Decompress returns the input unchanged.
func (c NoOpCompressor) Decompress(data []byte) ([]byte, error) {
	return data, nil
}
