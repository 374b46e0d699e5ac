package exec

import (
	"errors"
	"math"
	"sync"

	"go.uber.org/zap"
)

// ErrTableClosed is returned by operations on a table that has been closed.
var ErrTableClosed = errors.New("table closed")

// layoutOwnership records who owns a table's raw layout. Exactly one of the fields is set at construction and
// never changes afterwards. Whichever is set, the table is the only writer of the layout.
type layoutOwnership struct {
	// external points into a record owned by someone else, e.g. an Instance's layout region.
	external *TableLayout
	// owned is a layout the table allocated for itself.
	owned *layoutRegion
}

func (o *layoutOwnership) layout() *TableLayout {
	if o.external != nil {
		return o.external
	}
	return &o.owned.layouts[0]
}

func (o *layoutOwnership) String() string {
	if o.external != nil {
		return "instance"
	}
	return "host"
}

// Table is a WASM table: a growable array of references of a single kind that is shared between host code and
// compiled code. Compiled code reads the table's TableLayout directly; host code uses the table's methods.
//
// A single mutex protects the table's slots and its layout. Methods are safe for concurrent use.
type Table struct {
	mu     sync.Mutex
	slots  *slots
	typ    TableType
	style  TableStyle
	owner  layoutOwnership
	closed bool
}

// NewTable creates a table whose raw layout is allocated and owned by the table itself. This is how tables created
// directly by the host are represented.
func NewTable(typ TableType, style TableStyle) (*Table, error) {
	if err := typ.Validate(); err != nil {
		return nil, err
	}
	region, err := newLayoutRegion(1)
	if err != nil {
		return nil, err
	}
	t, err := newTable(typ, style, layoutOwnership{owned: region})
	if err != nil {
		region.release()
		return nil, err
	}
	return t, nil
}

// NewTableAt creates a table whose raw layout lives at loc, typically a slot in an enclosing instance record. The
// table initializes loc from its storage and keeps it up to date on every mutation. loc must remain valid until
// the table is closed.
func NewTableAt(typ TableType, style TableStyle, loc *TableLayout) (*Table, error) {
	if loc == nil {
		return nil, errors.New("table layout location must not be nil")
	}
	if err := typ.Validate(); err != nil {
		return nil, err
	}
	return newTable(typ, style, layoutOwnership{external: loc})
}

func newTable(typ TableType, style TableStyle, owner layoutOwnership) (*Table, error) {
	typ = typ.clone()
	s, err := newSlots(typ.Min, reservationFor(typ))
	if err != nil {
		return nil, err
	}
	elements := s.elements(typ.Min)
	for i := range elements {
		elements[i] = nullElement
	}

	t := &Table{
		slots: s,
		typ:   typ,
		style: style,
		owner: owner,
	}
	t.owner.layout().publish(s.base(), typ.Min)

	Logger().Debug("table created",
		zap.Stringer("kind", typ.Kind),
		zap.Uint32("min", typ.Min),
		zap.Uint32p("max", typ.Max),
		zap.Stringer("style", style),
		zap.Stringer("owner", &t.owner))
	return t, nil
}

// Type returns the table's type. The table's type is fixed at construction; changing the returned value does not
// affect the table.
func (t *Table) Type() TableType {
	return t.typ.clone()
}

// Style returns the table's implementation style.
func (t *Table) Style() TableStyle {
	return t.style
}

// size returns the table's current size as recorded in its layout. The caller must hold t.mu.
func (t *Table) size() uint32 {
	return t.owner.layout().LoadCurrentElements()
}

// Size returns the number of elements in the table. The size is read from the table's layout, so it is always the
// size that compiled code observes.
func (t *Table) Size() uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return 0
	}
	return t.size()
}

// Grow grows the table by delta elements and fills the new slots with the null reference. It returns the size of
// the table before growth, or false if the table cannot grow by delta elements, in which case the table is
// unchanged.
func (t *Table) Grow(delta uint32) (uint32, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.grow(delta, nullElement)
}

// GrowAndFill grows the table by delta elements and fills the new slots with ref. It returns the size of the table
// before growth, or false if the table cannot grow by delta elements. If ref is not of the table's kind, the table
// is unchanged and a TrapTableTypeMismatch is returned.
func (t *Table) GrowAndFill(delta uint32, ref Reference) (uint32, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.checkKind(ref, "table.grow"); err != nil {
		return 0, false, err
	}
	size, ok := t.grow(delta, ref.raw())
	return size, ok, nil
}

// grow implements Grow. The caller must hold t.mu.
func (t *Table) grow(delta uint32, init element) (uint32, bool) {
	if t.closed {
		return 0, false
	}

	size := t.size()
	newLen := uint64(size) + uint64(delta)
	if newLen > math.MaxUint32 {
		Logger().Debug("table grow rejected", zap.Uint32("size", size), zap.Uint32("delta", delta))
		return 0, false
	}
	if max, ok := t.typ.Maximum(); ok && newLen > uint64(max) {
		Logger().Debug("table grow rejected",
			zap.Uint32("size", size), zap.Uint32("delta", delta), zap.Uint32("max", max))
		return 0, false
	}

	moved := t.slots.moved()
	if err := t.slots.grow(uint32(newLen)); err != nil {
		Logger().Warn("table grow failed", zap.Uint32("size", size), zap.Uint32("delta", delta), zap.Error(err))
		return 0, false
	}
	elements := t.slots.elements(uint32(newLen))
	for i := size; i < uint32(newLen); i++ {
		elements[i] = init
	}
	t.owner.layout().publish(t.slots.base(), uint32(newLen))

	if t.slots.moved() != moved {
		Logger().Debug("table storage moved", zap.Uint32("size", uint32(newLen)))
	}
	return size, true
}

// Get returns the element at the given index. If the index is out of bounds, Get returns a
// TrapTableAccessOutOfBounds.
func (t *Table) Get(index uint32) (Reference, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, ErrTableClosed
	}
	if index >= t.size() {
		return nil, NewTrap(TrapTableAccessOutOfBounds, "table.get")
	}
	return t.slots.elements(t.size())[index].reference(t.typ.Kind), nil
}

// Set stores ref at the given index. If the index is out of bounds, Set returns a TrapTableSetterOutOfBounds. If
// ref is not of the table's kind, Set returns a TrapTableTypeMismatch.
func (t *Table) Set(index uint32, ref Reference) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrTableClosed
	}
	size := t.size()
	if index >= size {
		return NewTrap(TrapTableSetterOutOfBounds, "table.set")
	}
	if err := t.checkKind(ref, "table.set"); err != nil {
		return err
	}
	t.slots.elements(size)[index] = ref.raw()
	return nil
}

// checkKind fails if ref cannot be stored in the table. This is the only guard between a tagged Reference and the
// untagged slot it is written to.
func (t *Table) checkKind(ref Reference, op string) error {
	if ref == nil || ref.Kind() != t.typ.Kind {
		return NewTrap(TrapTableTypeMismatch, op)
	}
	return nil
}

// Fill stores ref in the n slots starting at index. If the range is out of bounds, Fill returns a
// TrapTableSetterOutOfBounds and the table is unchanged. If ref is not of the table's kind, Fill returns a
// TrapTableTypeMismatch.
func (t *Table) Fill(index uint32, ref Reference, n uint32) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrTableClosed
	}
	size := t.size()
	if uint64(index)+uint64(n) > uint64(size) {
		return NewTrap(TrapTableSetterOutOfBounds, "table.fill")
	}
	if err := t.checkKind(ref, "table.fill"); err != nil {
		return err
	}
	elements := t.slots.elements(size)[index : index+n]
	for i := range elements {
		elements[i] = ref.raw()
	}
	return nil
}

// Copy copies n elements from src[srcIndex:] into t[dst:]. src may be t, in which case the ranges may overlap.
//
// Both ranges are checked before any element is copied: if the source range is out of bounds, Copy returns a
// TrapTableAccessOutOfBounds; if the destination range is out of bounds, it returns a TrapTableSetterOutOfBounds.
func (t *Table) Copy(src *Table, dst, srcIndex, n uint32) error {
	if uint64(srcIndex)+uint64(n) > uint64(src.Size()) {
		return NewTrap(TrapTableAccessOutOfBounds, "table.copy")
	}
	if uint64(dst)+uint64(n) > uint64(t.Size()) {
		return NewTrap(TrapTableSetterOutOfBounds, "table.copy")
	}

	// Each element is moved with Get and Set so that the destination's kind check is never bypassed.
	move := func(i uint32) error {
		ref, err := src.Get(srcIndex + i)
		if err != nil {
			return err
		}
		return t.Set(dst+i, ref)
	}

	if dst <= srcIndex {
		for i := uint32(0); i < n; i++ {
			if err := move(i); err != nil {
				return err
			}
		}
	} else {
		for i := n; i > 0; i-- {
			if err := move(i - 1); err != nil {
				return err
			}
		}
	}
	return nil
}

// Elements returns a snapshot of the table's elements.
func (t *Table) Elements() []Reference {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	elements := t.slots.elements(t.size())
	refs := make([]Reference, len(elements))
	for i, e := range elements {
		refs[i] = e.reference(t.typ.Kind)
	}
	return refs
}

// Layout returns the address of the table's raw layout, for use by compiled code or an enclosing instance record.
// The address is stable for the lifetime of the table. Layout returns nil if the table is closed.
func (t *Table) Layout() *TableLayout {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	return t.owner.layout()
}

// Close releases the table's storage and, if the table owns it, its layout. A layout owned by an enclosing record
// is reset to an empty table. The caller must ensure that no compiled code is still using the table.
func (t *Table) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true

	if t.owner.external != nil {
		t.owner.external.clear()
	}
	err := t.slots.release()
	if t.owner.owned != nil {
		if rerr := t.owner.owned.release(); err == nil {
			err = rerr
		}
	}
	return err
}
