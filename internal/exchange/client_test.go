package exchange

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/chidi150c/perpengine/internal/types"
)

func TestResolveSideCode_OpenFromFlat(t *testing.T) {
	code, ok := ResolveSideCode(types.ActionLong, types.SideFlat)
	assert.True(t, ok)
	assert.Equal(t, SideOpenLong, code)

	code, ok = ResolveSideCode(types.ActionShort, types.SideFlat)
	assert.True(t, ok)
	assert.Equal(t, SideOpenShort, code)
}

func TestResolveSideCode_Reversal(t *testing.T) {
	code, ok := ResolveSideCode(types.ActionLong, types.SideShort)
	assert.True(t, ok)
	assert.Equal(t, SideCloseShort, code)

	code, ok = ResolveSideCode(types.ActionShort, types.SideLong)
	assert.True(t, ok)
	assert.Equal(t, SideCloseLong, code)
}

func TestResolveSideCode_SameDirectionIsNoOp(t *testing.T) {
	_, ok := ResolveSideCode(types.ActionLong, types.SideLong)
	assert.False(t, ok)

	_, ok = ResolveSideCode(types.ActionShort, types.SideShort)
	assert.False(t, ok)
}

func TestResolveSideCode_CloseFromFlatIsNoOp(t *testing.T) {
	_, ok := ResolveSideCode(types.ActionClose, types.SideFlat)
	assert.False(t, ok)
}

func TestResolveSideCode_Close(t *testing.T) {
	code, ok := ResolveSideCode(types.ActionClose, types.SideLong)
	assert.True(t, ok)
	assert.Equal(t, SideCloseLong, code)

	code, ok = ResolveSideCode(types.ActionClose, types.SideShort)
	assert.True(t, ok)
	assert.Equal(t, SideCloseShort, code)
}
