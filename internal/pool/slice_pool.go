package pool

import "sync"

// float64SlicePool reuses float64 scratch slices across fits. The
// optimization loop needs several sample-by-variable sized buffers per
// evaluation, and pooling them keeps repeated fits (grid search in
// particular) from re-allocating the same large slices over and over.
var float64SlicePool = sync.Pool{
	New: func() any { return &[]float64{} },
}

// GetFloat64Slice retrieves a zeroed float64 slice of the given length from
// the pool. If the pooled slice has insufficient capacity a new one is
// allocated. The caller must call the returned cleanup function (typically
// with defer) to return the slice to the pool.
//
// Example:
//
//	scratch, done := pool.GetFloat64Slice(ns * nv)
//	defer done()
func GetFloat64Slice(size int) ([]float64, func()) {
	ptr, _ := float64SlicePool.Get().(*[]float64)
	slice := (*ptr)[:0]

	if cap(slice) < size {
		slice = make([]float64, size)
		*ptr = slice
	} else {
		slice = slice[:size]
		clear(slice)
	}

	return slice, func() { float64SlicePool.Put(ptr) }
}
