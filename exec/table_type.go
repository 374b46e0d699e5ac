package exec

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

var (
	// ErrInvalidTableKind is returned when a table is declared with an unsupported element kind.
	ErrInvalidTableKind = errors.New("invalid table element kind")
	// ErrTableLimits is returned when a table's maximum is smaller than its minimum.
	ErrTableLimits = errors.New("invalid table limits")
	// ErrTableTooLarge is returned when a table's size cannot be represented on this platform.
	ErrTableTooLarge = errors.New("table too large")
)

// TableType describes a table: its element kind and its limits in elements. A nil Max means the table is
// unbounded.
type TableType struct {
	Kind Kind
	Min  uint32
	Max  *uint32
}

// NewTableType returns a table type with the given kind and minimum and no maximum.
func NewTableType(kind Kind, min uint32) TableType {
	return TableType{Kind: kind, Min: min}
}

// WithMax returns a copy of t with the given maximum.
func (t TableType) WithMax(max uint32) TableType {
	t.Max = &max
	return t
}

// Maximum returns the table's maximum size, if any.
func (t TableType) Maximum() (uint32, bool) {
	if t.Max == nil {
		return 0, false
	}
	return *t.Max, true
}

// clone returns a copy of t that shares no memory with it.
func (t TableType) clone() TableType {
	if t.Max != nil {
		max := *t.Max
		t.Max = &max
	}
	return t
}

// Validate returns a descriptive error if a table of type t cannot be constructed.
func (t TableType) Validate() error {
	if !t.Kind.Valid() {
		return fmt.Errorf("tables of types other than funcref or externref (%v): %w", t.Kind, ErrInvalidTableKind)
	}
	if max, ok := t.Maximum(); ok && max < t.Min {
		return fmt.Errorf("table minimum (%d) is larger than maximum (%d): %w", t.Min, max, ErrTableLimits)
	}
	if uint64(t.Min) > uint64(math.MaxInt) {
		return fmt.Errorf("table minimum (%d) does not fit in a native int: %w", t.Min, ErrTableTooLarge)
	}
	return nil
}

func (t TableType) String() string {
	s := t.Kind.String() + " " + strconv.FormatUint(uint64(t.Min), 10)
	if max, ok := t.Maximum(); ok {
		s += " " + strconv.FormatUint(uint64(max), 10)
	}
	return s
}

// TableStyle selects how responsibility for checking element types is split between a table and its callers.
type TableStyle uint8

const (
	// StyleCallerChecksSignature tables store bare references; callers check a funcref's signature at call time.
	StyleCallerChecksSignature TableStyle = iota
)

func (s TableStyle) String() string {
	switch s {
	case StyleCallerChecksSignature:
		return "caller-checks-signature"
	default:
		return fmt.Sprintf("style(%d)", uint8(s))
	}
}
