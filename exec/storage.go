package exec

import "math"

const (
	// defaultReservation is the number of slots reserved up front for a table without a maximum.
	defaultReservation = 1 << 16
	// maxReservation caps the number of slots reserved up front for any table. Tables that grow past their
	// reservation are moved to larger storage.
	maxReservation = 1 << 24
)

// reservationFor returns the number of slots to reserve for a table of the given type.
func reservationFor(t TableType) uint32 {
	reserve := uint32(defaultReservation)
	if max, ok := t.Maximum(); ok {
		reserve = max
	}
	if reserve > maxReservation {
		reserve = maxReservation
	}
	if reserve < t.Min {
		reserve = t.Min
	}
	return reserve
}

// nextReservation returns the reservation to move to when a table of the given reservation must hold n slots.
func nextReservation(current, n uint32) uint32 {
	next := uint64(current) * 2
	if next < uint64(n) {
		next = uint64(n)
	}
	if next > math.MaxUint32 {
		next = math.MaxUint32
	}
	return uint32(next)
}
