package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStringKnownIDs(t *testing.T) {
	assert.Equal(t, "Bridge_Syn", Syn.String())
	assert.Equal(t, "Bridge_Terminate", Terminate.String())
	assert.Equal(t, "Bridge_SharedHeap_Alloc", SharedHeapAlloc.String())
}

func TestStringUnknownFallsBackToNumeric(t *testing.T) {
	assert.Equal(t, "Api_999", ID(999).String())
}

func TestFlagsAreDistinctBits(t *testing.T) {
	assert.Equal(t, Flags(1), FlagDataReserved)
	assert.Equal(t, Flags(2), FlagDataInHeap)
	assert.Equal(t, Flags(4), FlagExpectsResponse)
	assert.Equal(t, Flags(0), FlagNone)

	combined := FlagDataInHeap | FlagExpectsResponse
	assert.True(t, combined&FlagDataInHeap != 0)
	assert.True(t, combined&FlagExpectsResponse != 0)
	assert.False(t, combined&FlagDataReserved != 0)
}
