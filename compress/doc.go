// Package compress provides the compression codecs used by the model
// persistence layer.
//
// Saved models are gob payloads of dense float64 parameter blocks, which
// compress well. Four codecs are available:
//
//   - TypeNone: pass-through, useful for debugging saved files
//   - TypeLZ4: fastest, moderate ratio
//   - TypeS2: fast with a better ratio than LZ4 on parameter blocks
//   - TypeZstd: best ratio
//
// All codecs are safe for concurrent use.
package compress
