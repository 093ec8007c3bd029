package user

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoleCanonical(t *testing.T) {
	for _, role := range CanonicalRoles {
		assert.True(t, role.Canonical(), role)
	}
	for _, role := range []Role{RoleAdmin, RolePedagogue, "BOGUS", ""} {
		assert.False(t, role.Canonical(), role)
	}
}

func TestCanonicalSuccessor(t *testing.T) {
	succ, ok := CanonicalSuccessor(RoleAdmin)
	assert.True(t, ok)
	assert.Equal(t, RoleDirector, succ)

	succ, ok = CanonicalSuccessor(RolePedagogue)
	assert.True(t, ok)
	assert.Equal(t, RoleCoordinator, succ)

	_, ok = CanonicalSuccessor(RoleDirector)
	assert.False(t, ok)
}

func TestRetiredRoles(t *testing.T) {
	assert.ElementsMatch(t, []Role{RoleAdmin, RolePedagogue}, RetiredRoles())
}
