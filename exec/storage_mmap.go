//go:build unix

package exec

import (
	"fmt"
	"math"
	"unsafe"

	"golang.org/x/sys/unix"
)

// slots is the backing storage of a table. It is an anonymous mapping of PROT_NONE address space, the prefix of
// which is made accessible as the table grows, so a table's base does not move until it outgrows its reservation.
// Slots live outside the Go heap: compiled code may hold their address for as long as the table is open.
type slots struct {
	mem       []byte
	committed int
	retired   [][]byte
}

func pageAlign(n uint64) uint64 {
	page := uint64(unix.Getpagesize())
	return (n + page - 1) &^ (page - 1)
}

func reserve(n uint32) ([]byte, error) {
	size := pageAlign(uint64(n) * uint64(TableElementSize))
	if size == 0 {
		size = pageAlign(1)
	}
	if size > uint64(math.MaxInt) {
		return nil, fmt.Errorf("reserving %d table slots: %w", n, ErrTableTooLarge)
	}
	mem, err := unix.Mmap(-1, 0, int(size), unix.PROT_NONE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("reserving %d table slots: %w", n, err)
	}
	return mem, nil
}

func newSlots(n, reservation uint32) (*slots, error) {
	mem, err := reserve(reservation)
	if err != nil {
		return nil, err
	}
	s := &slots{mem: mem}
	if err := s.commit(n); err != nil {
		unix.Munmap(mem)
		return nil, err
	}
	return s, nil
}

// commit makes the first n slots of the current mapping accessible.
func (s *slots) commit(n uint32) error {
	need := int(pageAlign(uint64(n) * uint64(TableElementSize)))
	if need <= s.committed {
		return nil
	}
	if err := unix.Mprotect(s.mem[s.committed:need], unix.PROT_READ|unix.PROT_WRITE); err != nil {
		return fmt.Errorf("committing %d table slots: %w", n, err)
	}
	s.committed = need
	return nil
}

// grow ensures that the storage can hold n slots, preserving the contents of the existing slots. If the current
// reservation is too small, the slots are copied into a larger mapping. The old mapping is retired rather than
// unmapped, since compiled code may still be reading through its address.
func (s *slots) grow(n uint32) error {
	if uint64(n)*uint64(TableElementSize) <= uint64(len(s.mem)) {
		return s.commit(n)
	}

	current := uint32(uint64(len(s.mem)) / uint64(TableElementSize))
	next, err := newSlots(n, nextReservation(current, n))
	if err != nil {
		return err
	}
	copy(next.mem[:s.committed], s.mem[:s.committed])

	s.retired = append(s.retired, s.mem)
	s.mem, s.committed = next.mem, next.committed
	return nil
}

// base returns the address of the first slot.
func (s *slots) base() uintptr {
	return uintptr(unsafe.Pointer(&s.mem[0]))
}

// elements returns the first n slots. n must not exceed the committed size.
func (s *slots) elements(n uint32) []element {
	return unsafe.Slice((*element)(unsafe.Pointer(&s.mem[0])), n)
}

// moved returns the number of times the storage has been moved to a larger mapping.
func (s *slots) moved() int {
	return len(s.retired)
}

func (s *slots) release() error {
	var firstErr error
	for _, mem := range append(s.retired, s.mem) {
		if err := unix.Munmap(mem); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.mem, s.retired, s.committed = nil, nil, 0
	return firstErr
}

// layoutRegion is an array of raw table layouts at a fixed address outside the Go heap.
type layoutRegion struct {
	mem     []byte
	layouts []TableLayout
}

func newLayoutRegion(n int) (*layoutRegion, error) {
	if n == 0 {
		return &layoutRegion{}, nil
	}
	size := pageAlign(uint64(n) * uint64(TableLayoutSize))
	mem, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("allocating %d table layouts: %w", n, err)
	}
	return &layoutRegion{
		mem:     mem,
		layouts: unsafe.Slice((*TableLayout)(unsafe.Pointer(&mem[0])), n),
	}, nil
}

func (r *layoutRegion) release() error {
	if r.mem == nil {
		return nil
	}
	err := unix.Munmap(r.mem)
	r.mem, r.layouts = nil, nil
	return err
}
