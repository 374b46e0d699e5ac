package exec

import (
	"sync/atomic"
	"unsafe"
)

// TableLayout is the raw view of a table that compiled code reads directly. Its shape is an ABI contract: a
// pointer-sized base address immediately followed by a 32-bit element count. Offsets baked into compiled code must
// match TableLayoutBaseOffset and TableLayoutCurrentElementsOffset; see LayoutABI.
//
// Only the owning Table writes these fields. Compiled code may read them without holding the table's lock. The
// table publishes new storage in this order: slots are initialized, then Base is stored, then CurrentElements. A
// reader that loads CurrentElements before Base therefore never sees a count larger than the storage Base points
// to, and storage that Base once pointed to stays mapped until the table is closed.
type TableLayout struct {
	Base            uintptr
	CurrentElements uint32
}

const (
	TableLayoutBaseOffset            = unsafe.Offsetof(TableLayout{}.Base)
	TableLayoutCurrentElementsOffset = unsafe.Offsetof(TableLayout{}.CurrentElements)
	TableLayoutSize                  = unsafe.Sizeof(TableLayout{})
	TableElementSize                 = unsafe.Sizeof(element(0))
)

// LoadBase atomically loads the base address of the table's slots.
func (l *TableLayout) LoadBase() uintptr {
	return atomic.LoadUintptr(&l.Base)
}

// LoadCurrentElements atomically loads the table's current size.
func (l *TableLayout) LoadCurrentElements() uint32 {
	return atomic.LoadUint32(&l.CurrentElements)
}

// publish stores a new base and size in the order documented on TableLayout.
func (l *TableLayout) publish(base uintptr, n uint32) {
	atomic.StoreUintptr(&l.Base, base)
	atomic.StoreUint32(&l.CurrentElements, n)
}

// clear resets the layout to an empty table. The count is cleared first so that no reader pairs a non-zero count
// with a cleared base.
func (l *TableLayout) clear() {
	atomic.StoreUint32(&l.CurrentElements, 0)
	atomic.StoreUintptr(&l.Base, 0)
}
