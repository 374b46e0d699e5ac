package exec

import (
	"errors"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewInstance(t *testing.T) {
	inst, err := NewInstance("env", []TableDef{
		{
			Name: "funcs",
			Type: NewTableType(KindFuncRef, 4).WithMax(8),
			Elements: []ElementSegment{
				{Offset: 1, Init: []Reference{FuncRef(1), FuncRef(2)}},
				{Offset: 3, Init: []Reference{FuncRef(3)}},
			},
		},
		{
			Name: "objects",
			Type: NewTableType(KindExternRef, 2),
		},
	})
	require.NoError(t, err)
	defer func() { assert.NoError(t, inst.Close()) }()

	assert.Equal(t, "env", inst.Name())
	assert.Equal(t, []string{"funcs", "objects"}, inst.TableNames())
	require.Len(t, inst.Tables(), 2)

	funcs, err := inst.GetTable("funcs")
	require.NoError(t, err)
	assert.Equal(t, []Reference{FuncRef(0), FuncRef(1), FuncRef(2), FuncRef(3)}, funcs.Elements())

	initialized, err := inst.Initialized("funcs")
	require.NoError(t, err)
	assert.Equal(t, uint(3), initialized.Count())
	assert.False(t, initialized.Test(0))
	assert.True(t, initialized.Test(1))
	assert.True(t, initialized.Test(3))

	// The tables' layouts are laid out contiguously in the instance's region.
	region := inst.LayoutRegion()
	require.NotZero(t, region)
	for i, table := range inst.Tables() {
		assert.Equal(t, region+uintptr(i)*TableLayoutSize, uintptr(unsafe.Pointer(table.Layout())))
	}
	objects := (*TableLayout)(unsafe.Pointer(region + TableLayoutSize))
	assert.Equal(t, uint32(2), objects.LoadCurrentElements())

	_, err = inst.GetTable("missing")
	var notFound *ExportNotFoundError
	assert.True(t, errors.As(err, &notFound))
	_, err = inst.Initialized("missing")
	assert.True(t, errors.As(err, &notFound))
}

func TestNewInstanceErrors(t *testing.T) {
	t.Run("segment does not fit", func(t *testing.T) {
		_, err := NewInstance("m", []TableDef{
			{Name: "a", Type: NewTableType(KindFuncRef, 4), Elements: []ElementSegment{{Offset: 0, Init: []Reference{FuncRef(1)}}}},
			{Name: "b", Type: NewTableType(KindFuncRef, 1), Elements: []ElementSegment{{Offset: 1, Init: []Reference{FuncRef(1)}}}},
		})
		assert.ErrorIs(t, err, ErrElementSegmentDoesNotFit)
	})

	t.Run("segment kind", func(t *testing.T) {
		_, err := NewInstance("m", []TableDef{
			{Name: "a", Type: NewTableType(KindExternRef, 1), Elements: []ElementSegment{{Init: []Reference{FuncRef(1)}}}},
		})
		requireTrap(t, err, TrapTableTypeMismatch)
	})

	t.Run("duplicate", func(t *testing.T) {
		_, err := NewInstance("m", []TableDef{
			{Name: "a", Type: NewTableType(KindFuncRef, 1)},
			{Name: "a", Type: NewTableType(KindFuncRef, 1)},
		})
		assert.Error(t, err)
	})

	t.Run("invalid table", func(t *testing.T) {
		_, err := NewInstance("m", []TableDef{
			{Name: "a", Type: NewTableType(KindFuncRef, 2).WithMax(1)},
		})
		assert.ErrorIs(t, err, ErrTableLimits)
	})
}

func TestInstanceWithoutTables(t *testing.T) {
	inst, err := NewInstance("empty", nil)
	require.NoError(t, err)
	assert.Zero(t, inst.LayoutRegion())
	assert.Empty(t, inst.Tables())
	assert.NoError(t, inst.Close())
}
