package exec

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrapError(t *testing.T) {
	assert.Equal(t, "table.get: out of bounds table access", NewTrap(TrapTableAccessOutOfBounds, "table.get").Error())
	assert.Equal(t, "unreachable", NewTrap(TrapUnreachable, "").Error())
	assert.Equal(t, "trap(200)", TrapCode(200).String())
}

func TestTrapIs(t *testing.T) {
	err := error(NewTrap(TrapTableSetterOutOfBounds, "table.copy"))
	assert.ErrorIs(t, err, NewTrap(TrapTableSetterOutOfBounds, ""))
	assert.False(t, errors.Is(err, NewTrap(TrapTableAccessOutOfBounds, "table.copy")))
	assert.False(t, errors.Is(err, ErrTableClosed))
}

func TestCatch(t *testing.T) {
	t.Run("no trap", func(t *testing.T) {
		assert.NoError(t, Catch(func() {}))
	})

	t.Run("trap", func(t *testing.T) {
		table := newTestTable(t, NewTableType(KindFuncRef, 1))
		err := Catch(func() {
			if _, err := table.Get(1); err != nil {
				panic(err)
			}
		})
		requireTrap(t, err, TrapTableAccessOutOfBounds)
	})

	t.Run("runtime error", func(t *testing.T) {
		err := Catch(func() {
			var s []int
			i := 3
			_ = s[i]
		})
		requireTrap(t, err, TrapOutOfBoundsMemoryAccess)

		err = Catch(func() {
			zero := 0
			_ = 1 / zero
		})
		requireTrap(t, err, TrapIntegerDivideByZero)
	})

	t.Run("other panic", func(t *testing.T) {
		assert.PanicsWithValue(t, "boom", func() {
			Catch(func() { panic("boom") })
		})
	})
}

func TestTranslateRecover(t *testing.T) {
	require.NotPanics(t, func() { TranslateRecover(nil) })

	defer func() {
		x := recover()
		trap, ok := x.(*Trap)
		require.True(t, ok)
		assert.Equal(t, TrapOutOfBoundsMemoryAccess, trap.Code)
	}()
	func() {
		defer func() { TranslateRecover(recover()) }()
		var p *int
		_ = *p
	}()
}
