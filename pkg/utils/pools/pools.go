package pools

import (
	"sync"
)

// Float64SlicePool hands out zero-length float64 buffers with at least a
// minimum capacity
type Float64SlicePool struct {
	pool sync.Pool
	size int
}

// NewFloat64SlicePool creates a pool whose fresh buffers have capacity size
func NewFloat64SlicePool(size int) *Float64SlicePool {
	p := &Float64SlicePool{size: size}
	p.pool.New = func() any {
		buf := make([]float64, 0, p.size)
		return &buf
	}
	return p
}

// Get retrieves an empty buffer from the pool
func (p *Float64SlicePool) Get() []float64 {
	return (*p.pool.Get().(*[]float64))[:0]
}

// GetN retrieves a buffer of length n. Its contents are unspecified.
func (p *Float64SlicePool) GetN(n int) []float64 {
	buf := p.Get()
	if cap(buf) < n {
		p.Put(buf)
		return make([]float64, n)
	}
	return buf[:n]
}

// Put returns a buffer to the pool
func (p *Float64SlicePool) Put(f []float64) {
	// Undersized buffers are left to the GC
	if cap(f) < p.size {
		return
	}
	f = f[:0]
	p.pool.Put(&f)
}
