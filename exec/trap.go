package exec

import (
	"fmt"
	"runtime"
	"strings"
)

// A TrapCode identifies the kind of fault that terminated execution. The set of codes is closed and shared by every
// component of the runtime that can fault.
type TrapCode uint8

const (
	// TrapGeneric is produced for failures with no associated information.
	TrapGeneric TrapCode = iota
	// TrapTableAccessOutOfBounds indicates a table read past the table's current size.
	TrapTableAccessOutOfBounds
	// TrapTableSetterOutOfBounds indicates a table write past the table's current size.
	TrapTableSetterOutOfBounds
	// TrapTableTypeMismatch indicates an attempt to store a reference of the wrong kind into a table.
	TrapTableTypeMismatch
	// TrapUninitializedElement indicates an attempt to use an uninitialized table element.
	TrapUninitializedElement
	// TrapIndirectCallTypeMismatch indicates a mismatch between the exepected and actual signature of a function.
	TrapIndirectCallTypeMismatch
	// TrapOutOfBoundsMemoryAccess indicates an out-of-bounds memory access.
	TrapOutOfBoundsMemoryAccess
	// TrapIntegerOverflow indicates an integer overflow.
	TrapIntegerOverflow
	// TrapInvalidConversionToInteger indicates an invalid converstion from a floating-point value to an
	// integer.
	TrapInvalidConversionToInteger
	// TrapIntegerDivideByZero indicates an attempt to divide by zero.
	TrapIntegerDivideByZero
	// TrapCallStackExhausted indicates call stack exhaustion.
	TrapCallStackExhausted
	// TrapUnreachable indicates execution of unreachable code.
	TrapUnreachable
)

var trapMessages = [...]string{
	TrapGeneric:                    "",
	TrapTableAccessOutOfBounds:     "out of bounds table access",
	TrapTableSetterOutOfBounds:     "out of bounds table set",
	TrapTableTypeMismatch:          "table element type mismatch",
	TrapUninitializedElement:       "uninitialized element",
	TrapIndirectCallTypeMismatch:   "indirect call type mismatch",
	TrapOutOfBoundsMemoryAccess:    "out of bounds memory access",
	TrapIntegerOverflow:            "integer overflow",
	TrapInvalidConversionToInteger: "invalid conversion to integer",
	TrapIntegerDivideByZero:        "integer divide by zero",
	TrapCallStackExhausted:         "call stack exhausted",
	TrapUnreachable:                "unreachable",
}

func (c TrapCode) String() string {
	if int(c) < len(trapMessages) {
		return trapMessages[c]
	}
	return fmt.Sprintf("trap(%d)", uint8(c))
}

// A Trap represents a WASM trap. Op names the operation that faulted, e.g. "table.get". Traps never carry host
// addresses or other host-side state, so they can be surfaced to module code as-is.
type Trap struct {
	Code TrapCode
	Op   string
}

func (t *Trap) Error() string {
	if t.Op == "" {
		return t.Code.String()
	}
	return t.Op + ": " + t.Code.String()
}

// Is reports whether target is a trap with the same code. The operation is not compared, so
// errors.Is(err, exec.NewTrap(exec.TrapTableAccessOutOfBounds, "")) matches any out-of-bounds read.
func (t *Trap) Is(target error) bool {
	other, ok := target.(*Trap)
	return ok && other.Code == t.Code
}

// NewTrap creates a trap with the given code raised by the given operation.
func NewTrap(code TrapCode, op string) *Trap {
	return &Trap{Code: code, Op: op}
}

// TranslateRuntimeError is a utility function that translates between Go runtime errors and
// WASM traps.
func TranslateRuntimeError(err runtime.Error) (*Trap, bool) {
	switch {
	case err == nil:
		return nil, false
	case strings.HasPrefix(err.Error(), "runtime error: index out of range"):
		return NewTrap(TrapOutOfBoundsMemoryAccess, ""), true
	case strings.HasPrefix(err.Error(), "runtime error: slice bounds out of range"):
		return NewTrap(TrapOutOfBoundsMemoryAccess, ""), true
	case strings.HasPrefix(err.Error(), "runtime error: invalid memory address or nil pointer dereference"):
		return NewTrap(TrapOutOfBoundsMemoryAccess, ""), true
	case strings.HasPrefix(err.Error(), "runtime error: integer divide by zero"):
		return NewTrap(TrapIntegerDivideByZero, ""), true
	default:
		return nil, false
	}
}

// TranslateRecover is a utility function that translates the result of a call to recover() into nothing,
// a trap, or a panic. This function should be called like so:
//
//	defer func() { exec.TranslateRecover(recover()) }()
func TranslateRecover(x interface{}) {
	if x != nil {
		if trap, ok := recoverTrap(x); ok {
			panic(trap)
		}
		panic(x)
	}
}

func recoverTrap(x interface{}) (*Trap, bool) {
	switch x := x.(type) {
	case *Trap:
		return x, true
	case runtime.Error:
		return TranslateRuntimeError(x)
	default:
		return nil, false
	}
}

// Catch runs f and returns the trap that aborted it, if any. This is the boundary at which faults raised by
// module code are turned back into host-level errors: a trap aborts only the invocation chain inside f. Panics that
// are not traps propagate.
func Catch(f func()) (err error) {
	defer func() {
		if x := recover(); x != nil {
			trap, ok := recoverTrap(x)
			if !ok {
				panic(x)
			}
			err = trap
		}
	}()

	f()
	return nil
}
