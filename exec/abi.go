package exec

import (
	"fmt"
	"unsafe"

	"github.com/fxamacker/cbor/v2"
)

// LayoutABIVersion is bumped whenever the meaning of TableLayout or of a table slot changes.
const LayoutABIVersion = 1

// LayoutABI describes the raw table layout as compiled code sees it. A code generator records the LayoutABI of its
// target alongside the code it emits; before that code is run, possibly in another process or on another machine,
// the host checks the recorded LayoutABI against its own with CheckABI.
type LayoutABI struct {
	Version               uint32 `cbor:"1,keyasint"`
	PointerSize           uint32 `cbor:"2,keyasint"`
	ElementSize           uint32 `cbor:"3,keyasint"`
	BaseOffset            uint32 `cbor:"4,keyasint"`
	CurrentElementsOffset uint32 `cbor:"5,keyasint"`
	Size                  uint32 `cbor:"6,keyasint"`
}

// CurrentABI returns the LayoutABI of this build.
func CurrentABI() LayoutABI {
	return LayoutABI{
		Version:               LayoutABIVersion,
		PointerSize:           uint32(unsafe.Sizeof(uintptr(0))),
		ElementSize:           uint32(TableElementSize),
		BaseOffset:            uint32(TableLayoutBaseOffset),
		CurrentElementsOffset: uint32(TableLayoutCurrentElementsOffset),
		Size:                  uint32(TableLayoutSize),
	}
}

func (a LayoutABI) String() string {
	return fmt.Sprintf("v%d ptr=%d elem=%d base@%d count@%d size=%d",
		a.Version, a.PointerSize, a.ElementSize, a.BaseOffset, a.CurrentElementsOffset, a.Size)
}

// An ABIMismatchError is returned by CheckABI when recorded code expects a different table layout than the host's.
type ABIMismatchError struct {
	Expected LayoutABI
	Actual   LayoutABI
}

func (e *ABIMismatchError) Error() string {
	return fmt.Sprintf("table layout mismatch: compiled for %v, host is %v", e.Expected, e.Actual)
}

var abiEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("exec: failed to create CBOR enc mode: %v", err))
	}
	abiEncMode = em
}

// MarshalABI serializes a LayoutABI to canonical CBOR bytes.
func MarshalABI(a LayoutABI) ([]byte, error) {
	return abiEncMode.Marshal(a)
}

// UnmarshalABI deserializes a LayoutABI from CBOR bytes.
func UnmarshalABI(data []byte) (LayoutABI, error) {
	var a LayoutABI
	if err := cbor.Unmarshal(data, &a); err != nil {
		return LayoutABI{}, fmt.Errorf("exec: unmarshal layout ABI: %w", err)
	}
	return a, nil
}

// CheckABI decodes a recorded LayoutABI and returns an *ABIMismatchError if it differs from CurrentABI.
func CheckABI(data []byte) error {
	recorded, err := UnmarshalABI(data)
	if err != nil {
		return err
	}
	if current := CurrentABI(); recorded != current {
		return &ABIMismatchError{Expected: recorded, Actual: current}
	}
	return nil
}
