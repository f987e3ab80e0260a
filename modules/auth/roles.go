package auth

// Role vocabulary. Tenders staff the shop and administer the system.
const (
	RoleParticipant = "participant"
	RoleInstructor  = "instructor"
	RoleTender      = "tender"
)

// legacyRoles maps role names from the previous membership system onto the
// current vocabulary. Rows imported from that system are normalized on read.
var legacyRoles = map[string]string{
	"member":     RoleParticipant,
	"teacher":    RoleInstructor,
	"admin":      RoleTender,
	"superadmin": RoleTender,
}

// NormalizeRole maps legacy role names to current ones. Unknown roles fall
// back to participant rather than granting anything by accident.
func NormalizeRole(role string) string {
	if mapped, ok := legacyRoles[role]; ok {
		return mapped
	}
	switch role {
	case RoleParticipant, RoleInstructor, RoleTender:
		return role
	}
	return RoleParticipant
}
