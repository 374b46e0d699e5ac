package exec

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/willf/bitset"
	"go.uber.org/zap"
)

// ErrElementSegmentDoesNotFit is returned by NewInstance if an element segment attempts to write outside of its
// target table's bounds.
var ErrElementSegmentDoesNotFit = errors.New("element segment does not fit")

// An ElementSegment initializes a range of a table's slots at instantiation time.
type ElementSegment struct {
	Offset uint32
	Init   []Reference
}

// A TableDef defines a table owned by a module instance.
type TableDef struct {
	Name     string
	Type     TableType
	Style    TableStyle
	Elements []ElementSegment
}

// An Instance is the table-owning part of an instantiated module. The raw layouts of its tables live in a single
// region owned by the instance, so compiled code for the module can address every table at a fixed offset from
// LayoutRegion.
type Instance struct {
	name        string
	region      *layoutRegion
	tables      []*Table
	names       map[string]int
	initialized []bitset.BitSet
}

// NewInstance allocates the instance's layout region, creates its tables in that region, and applies their element
// segments. Element segments are checked before any of them is applied: if one does not fit, no table is written
// and the instantiation fails.
func NewInstance(name string, defs []TableDef) (*Instance, error) {
	region, err := newLayoutRegion(len(defs))
	if err != nil {
		return nil, err
	}

	inst := &Instance{
		name:        name,
		region:      region,
		tables:      make([]*Table, 0, len(defs)),
		names:       make(map[string]int, len(defs)),
		initialized: make([]bitset.BitSet, len(defs)),
	}
	if err := inst.allocate(defs); err != nil {
		inst.Close()
		return nil, err
	}
	if err := inst.initialize(defs); err != nil {
		inst.Close()
		return nil, err
	}

	Logger().Debug("instance created", zap.String("module", name), zap.Int("tables", len(defs)))
	return inst, nil
}

func (inst *Instance) allocate(defs []TableDef) error {
	for i, def := range defs {
		if _, ok := inst.names[def.Name]; ok {
			return fmt.Errorf("wasm: duplicate table %q in module %s", def.Name, inst.name)
		}
		t, err := NewTableAt(def.Type, def.Style, &inst.region.layouts[i])
		if err != nil {
			return fmt.Errorf("wasm: creating table %q in module %s: %w", def.Name, inst.name, err)
		}
		inst.tables = append(inst.tables, t)
		inst.names[def.Name] = i
	}
	return nil
}

func (inst *Instance) initialize(defs []TableDef) error {
	for i, def := range defs {
		size := inst.tables[i].Size()
		for j, seg := range def.Elements {
			if uint64(seg.Offset)+uint64(len(seg.Init)) > uint64(size) {
				return fmt.Errorf("wasm: table %q element segment %d [%d, %d) exceeds table size %d: %w",
					def.Name, j, seg.Offset, uint64(seg.Offset)+uint64(len(seg.Init)), size, ErrElementSegmentDoesNotFit)
			}
		}
	}

	for i, def := range defs {
		t, initialized := inst.tables[i], &inst.initialized[i]
		for _, seg := range def.Elements {
			for k, ref := range seg.Init {
				index := seg.Offset + uint32(k)
				if err := t.Set(index, ref); err != nil {
					return fmt.Errorf("wasm: initializing table %q: %w", def.Name, err)
				}
				initialized.Set(uint(index))
			}
		}
	}
	return nil
}

// Name returns the name of this module.
func (inst *Instance) Name() string {
	return inst.name
}

// GetTable returns the table with the given name.
func (inst *Instance) GetTable(name string) (*Table, error) {
	i, ok := inst.names[name]
	if !ok {
		return nil, &ExportNotFoundError{ModuleName: inst.name, FieldName: name}
	}
	return inst.tables[i], nil
}

// Tables returns the instance's tables in definition order.
func (inst *Instance) Tables() []*Table {
	return inst.tables
}

// TableNames returns the names of the instance's tables in definition order.
func (inst *Instance) TableNames() []string {
	names := make([]string, len(inst.tables))
	for name, i := range inst.names {
		names[i] = name
	}
	return names
}

// Initialized returns the set of slots in the named table that were written by element segments.
func (inst *Instance) Initialized(name string) (*bitset.BitSet, error) {
	i, ok := inst.names[name]
	if !ok {
		return nil, &ExportNotFoundError{ModuleName: inst.name, FieldName: name}
	}
	return inst.initialized[i].Clone(), nil
}

// LayoutRegion returns the address of the instance's array of raw table layouts, or 0 if the instance has no
// tables. The layout of the i'th table is at LayoutRegion() + i*TableLayoutSize.
func (inst *Instance) LayoutRegion() uintptr {
	if inst.region == nil || len(inst.region.layouts) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&inst.region.layouts[0]))
}

// Close closes the instance's tables and releases its layout region.
func (inst *Instance) Close() error {
	var firstErr error
	for _, t := range inst.tables {
		if err := t.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	inst.tables, inst.names = nil, nil
	if inst.region != nil {
		if err := inst.region.release(); err != nil && firstErr == nil {
			firstErr = err
		}
		inst.region = nil
	}
	return firstErr
}
