package mempool

import (
	"github.com/prometheus/prometheus/util/pool"
)

// Allocator hands out byte slices for encode buffers and owned views.
// It exists to reduce the cost of allocations and allows to re-use already allocated memory.
type Allocator interface {
	Get(size int) ([]byte, error)
	Put([]byte) bool
}

// HeapAllocator allocates a new byte slice every time and does not re-cycle buffers.
type HeapAllocator struct{}

// Get implements Allocator
func (a *HeapAllocator) Get(size int) ([]byte, error) {
	return make([]byte, size), nil
}

// Put implements Allocator
func (a *HeapAllocator) Put([]byte) bool {
	return true
}

// BytePool uses a bucketed sync.Pool to re-cycle already allocated buffers.
// Only buffers whose capacity matches a bucket are taken back, so slices that
// did not come from Get are refused.
type BytePool struct {
	pool    *pool.Pool
	buckets map[int]struct{}
	maxSize int
}

// NewBytePool creates a pool with buckets growing by factor from minSize to
// maxSize. Requests above maxSize are served from the heap.
func NewBytePool(minSize, maxSize int, factor float64) *BytePool {
	buckets := make(map[int]struct{})
	// Same bucket sizes as pool.New.
	for s := minSize; s <= maxSize; s = int(float64(s) * factor) {
		buckets[s] = struct{}{}
	}
	return &BytePool{
		pool: pool.New(
			minSize, maxSize, factor,
			func(size int) interface{} {
				return make([]byte, 0, size)
			}),
		buckets: buckets,
		maxSize: maxSize,
	}
}

// Get implements Allocator
func (p *BytePool) Get(size int) ([]byte, error) {
	if size > p.maxSize {
		return make([]byte, size), nil
	}
	return p.pool.Get(size).([]byte)[:size], nil
}

// Put implements Allocator. It reports false for buffers it does not keep.
func (p *BytePool) Put(b []byte) bool {
	if _, ok := p.buckets[cap(b)]; !ok {
		return false
	}
	p.pool.Put(b[:0])
	return true
}
