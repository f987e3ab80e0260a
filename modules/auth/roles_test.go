package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeRole(t *testing.T) {
	// Current names pass through
	assert.Equal(t, RoleParticipant, NormalizeRole("participant"))
	assert.Equal(t, RoleInstructor, NormalizeRole("instructor"))
	assert.Equal(t, RoleTender, NormalizeRole("tender"))

	// Names from the old system map onto the new ones
	assert.Equal(t, RoleParticipant, NormalizeRole("member"))
	assert.Equal(t, RoleInstructor, NormalizeRole("teacher"))
	assert.Equal(t, RoleTender, NormalizeRole("admin"))
	assert.Equal(t, RoleTender, NormalizeRole("superadmin"))

	// Anything unknown falls back to the least privileged role
	assert.Equal(t, RoleParticipant, NormalizeRole(""))
	assert.Equal(t, RoleParticipant, NormalizeRole("wizard"))
}

func TestCertified(t *testing.T) {
	meta := &UserMetadata{Certifications: []string{"laser", "mill"}}
	assert.True(t, meta.Certified("laser"))
	assert.False(t, meta.Certified("welding"))
	assert.False(t, (&UserMetadata{}).Certified("laser"))
}
