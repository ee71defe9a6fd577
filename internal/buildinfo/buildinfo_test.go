package buildinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContext_Defaults(t *testing.T) {
	t.Parallel()

	var nilCtx *Context
	assert.Equal(t, "unknown", nilCtx.GetVersion())
	assert.Equal(t, "unknown", nilCtx.GetBuildDate())

	empty := &Context{}
	assert.Equal(t, "unknown", empty.GetVersion())
	assert.Equal(t, "platewatch@unknown", empty.Release())
}

func TestContext_Values(t *testing.T) {
	t.Parallel()

	ctx := &Context{Version: "v1.2.0", BuildDate: "2025-03-14"}
	assert.Equal(t, "v1.2.0", ctx.GetVersion())
	assert.Equal(t, "2025-03-14", ctx.GetBuildDate())
	assert.Equal(t, "platewatch@v1.2.0", ctx.Release())
}
