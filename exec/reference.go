package exec

import "fmt"

// Kind is the element type of a table. All elements of a table share the same kind.
type Kind uint8

const (
	// KindFuncRef tables hold callable references.
	KindFuncRef Kind = 0x70
	// KindExternRef tables hold opaque references to host data.
	KindExternRef Kind = 0x6f
)

func (k Kind) String() string {
	switch k {
	case KindFuncRef:
		return "funcref"
	case KindExternRef:
		return "externref"
	default:
		return fmt.Sprintf("kind(%#x)", uint8(k))
	}
}

// Valid returns true if k is a supported table element kind.
func (k Kind) Valid() bool {
	return k == KindFuncRef || k == KindExternRef
}

// A Reference is a value that can be stored in a table. The only implementations are FuncRef and ExternRef.
type Reference interface {
	// Kind returns the kind of table this reference may be stored in.
	Kind() Kind

	raw() element
}

// FuncRef is a callable reference. Its value is the address of a record that holds enough information to call the
// function (code address, signature and context). The zero value is the null funcref.
type FuncRef uintptr

// Kind returns KindFuncRef.
func (FuncRef) Kind() Kind { return KindFuncRef }

func (r FuncRef) raw() element { return element(r) }

// ExternRef is an opaque handle to host-managed data. The zero value is the null externref.
type ExternRef uintptr

// Kind returns KindExternRef.
func (ExternRef) Kind() Kind { return KindExternRef }

func (r ExternRef) raw() element { return element(r) }

// NullReference returns the null reference of the given kind.
func NullReference(kind Kind) Reference {
	if kind == KindExternRef {
		return ExternRef(0)
	}
	return FuncRef(0)
}

// IsNull returns true if ref is nil or the null reference of its kind.
func IsNull(ref Reference) bool {
	return ref == nil || ref.raw() == nullElement
}

// element is a single table slot as compiled code sees it. Both reference kinds are pointer-sized, so a slot is an
// untagged union whose active arm is the kind of the owning table.
type element uintptr

// nullElement is the default slot value. It is the null reference of either kind.
const nullElement element = 0

// reference reinterprets e as a reference of the given kind. The kind must be the owning table's kind.
func (e element) reference(kind Kind) Reference {
	if kind == KindExternRef {
		return ExternRef(e)
	}
	return FuncRef(e)
}
