package shm

import (
	"sync/atomic"
	"unsafe"
)

// Atomic word access on mapped memory. Offsets must be naturally aligned;
// the record layouts in internal/ring and internal/detstore guarantee this.

func (s *Segment) uint32At(off int) *uint32 {
	return (*uint32)(unsafe.Pointer(&s.data[off]))
}

func (s *Segment) uint64At(off int) *uint64 {
	return (*uint64)(unsafe.Pointer(&s.data[off]))
}

// LoadUint32 atomically reads a uint32 at off.
func (s *Segment) LoadUint32(off int) uint32 {
	return atomic.LoadUint32(s.uint32At(off))
}

// StoreUint32 atomically writes a uint32 at off.
func (s *Segment) StoreUint32(off int, v uint32) {
	atomic.StoreUint32(s.uint32At(off), v)
}

// AddUint32 atomically adds delta at off and returns the new value.
func (s *Segment) AddUint32(off int, delta uint32) uint32 {
	return atomic.AddUint32(s.uint32At(off), delta)
}

// LoadUint64 atomically reads a uint64 at off.
func (s *Segment) LoadUint64(off int) uint64 {
	return atomic.LoadUint64(s.uint64At(off))
}

// StoreUint64 atomically writes a uint64 at off.
func (s *Segment) StoreUint64(off int, v uint64) {
	atomic.StoreUint64(s.uint64At(off), v)
}
