package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextHasClaim(t *testing.T) {
	ctx := Context{Claims: map[string]string{"sub": "user-1", "empty": ""}}
	assert.True(t, ctx.HasClaim("sub"))
	assert.False(t, ctx.HasClaim("empty"))
	assert.False(t, ctx.HasClaim("missing"))
}

func TestContextInRole(t *testing.T) {
	ctx := Context{Roles: []string{"admin", "billing"}}
	assert.True(t, ctx.InRole("admin"))
	assert.False(t, ctx.InRole("superadmin"))
}

func TestContextVariableEquals(t *testing.T) {
	ctx := Context{Variables: map[string]string{"org": "acme"}}
	assert.True(t, ctx.VariableEquals("org", "acme"))
	assert.False(t, ctx.VariableEquals("org", "other"))
	assert.False(t, ctx.VariableEquals("missing", ""))
}
