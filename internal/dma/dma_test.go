package dma

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllocDMAReturnsRequestedSize(t *testing.T) {
	a := NewAllocator()
	r := a.AllocDMA(4096, 4096)
	assert.Len(t, r.Bytes(), 4096)
}

func TestVToPhysIsStablePerRegion(t *testing.T) {
	a := NewAllocator()
	r1 := a.AllocDMA(4096, 4096)
	r2 := a.AllocDMA(4096, 4096)

	assert.NotEqual(t, a.VToPhys(r1), a.VToPhys(r2))
	assert.Equal(t, a.VToPhys(r1), a.VToPhys(r1))
}

func TestFreeDMADoesNotPanic(t *testing.T) {
	a := NewAllocator()
	r := a.AllocDMA(8192, 4096)
	assert.NotPanics(t, func() { a.FreeDMA(r) })
}
