package exec

import (
	"errors"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCurrentABI(t *testing.T) {
	abi := CurrentABI()
	assert.Equal(t, uint32(0), abi.BaseOffset)
	assert.Equal(t, uint32(unsafe.Sizeof(uintptr(0))), abi.CurrentElementsOffset)
	assert.Equal(t, abi.PointerSize, abi.ElementSize)
	assert.Equal(t, 2*abi.PointerSize, abi.Size)
}

func TestABIRoundTrip(t *testing.T) {
	data, err := MarshalABI(CurrentABI())
	require.NoError(t, err)
	assert.NoError(t, CheckABI(data))

	again, err := MarshalABI(CurrentABI())
	require.NoError(t, err)
	assert.Equal(t, data, again)
}

func TestCheckABIMismatch(t *testing.T) {
	recorded := CurrentABI()
	recorded.PointerSize, recorded.CurrentElementsOffset = 4, 4
	data, err := MarshalABI(recorded)
	require.NoError(t, err)

	err = CheckABI(data)
	var mismatch *ABIMismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, recorded, mismatch.Expected)
	assert.Equal(t, CurrentABI(), mismatch.Actual)

	assert.Error(t, CheckABI([]byte{0xff}))
}
