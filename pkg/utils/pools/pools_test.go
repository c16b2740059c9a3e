package pools

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFloat64SlicePool(t *testing.T) {
	p := NewFloat64SlicePool(8)

	buf := p.Get()
	assert.Len(t, buf, 0)
	assert.GreaterOrEqual(t, cap(buf), 8)

	n := p.GetN(5)
	assert.Len(t, n, 5)
	p.Put(n)

	big := p.GetN(100)
	assert.Len(t, big, 100)
	p.Put(big)

	// undersized buffers are dropped silently
	p.Put(make([]float64, 2))
	assert.GreaterOrEqual(t, cap(p.Get()), 8)
}
