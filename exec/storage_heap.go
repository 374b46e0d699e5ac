//go:build !unix

package exec

import "unsafe"

// slots is the backing storage of a table. On platforms without mmap, slots live in the Go heap. Storage that is
// replaced by a larger allocation is retired rather than dropped, since compiled code may still be reading through
// its address.
type slots struct {
	buf     []element
	retired [][]element
}

// The reservation is ignored: heap storage is allocated as the table grows.
func newSlots(n, reservation uint32) (*slots, error) {
	return &slots{buf: make([]element, n)}, nil
}

func (s *slots) grow(n uint32) error {
	if int(n) <= cap(s.buf) {
		s.buf = s.buf[:n]
		return nil
	}

	next := make([]element, n, nextReservation(uint32(cap(s.buf)), n))
	copy(next, s.buf)
	s.retired = append(s.retired, s.buf)
	s.buf = next
	return nil
}

func (s *slots) base() uintptr {
	if cap(s.buf) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&s.buf[:1][0]))
}

func (s *slots) elements(n uint32) []element {
	return s.buf[:n]
}

func (s *slots) moved() int {
	return len(s.retired)
}

func (s *slots) release() error {
	s.buf, s.retired = nil, nil
	return nil
}

type layoutRegion struct {
	layouts []TableLayout
}

func newLayoutRegion(n int) (*layoutRegion, error) {
	return &layoutRegion{layouts: make([]TableLayout, n)}, nil
}

func (r *layoutRegion) release() error {
	r.layouts = nil
	return nil
}
