package user

// Role is the closed set of staff roles. The canonical set is versioned:
// values retired by a rename stay dormant in storage but are never assignable
// again and never pass Canonical().
type Role string

const (
	RoleDirector    Role = "DIRECTOR"
	RoleCoordinator Role = "COORDINATOR"
	RoleSecretary   Role = "SECRETARY"
	RoleTeacher     Role = "TEACHER"

	// Retired values, kept only for migration bookkeeping.
	RoleAdmin     Role = "ADMIN"     // renamed to DIRECTOR
	RolePedagogue Role = "PEDAGOGUE" // renamed to COORDINATOR
)

var (
	CanonicalRoles = []Role{RoleDirector, RoleCoordinator, RoleSecretary, RoleTeacher}

	// retiredRemap maps each retired value to its canonical successor.
	retiredRemap = map[Role]Role{
		RoleAdmin:     RoleDirector,
		RolePedagogue: RoleCoordinator,
	}
)

// Canonical reports whether r belongs to the current canonical set.
// Retired and unknown values are both non-canonical.
func (r Role) Canonical() bool {
	for _, cr := range CanonicalRoles {
		if r == cr {
			return true
		}
	}
	return false
}

func (r Role) String() string { return string(r) }

// CanonicalSuccessor returns the canonical value a retired role migrates to.
func CanonicalSuccessor(r Role) (Role, bool) {
	succ, ok := retiredRemap[r]
	return succ, ok
}

// RetiredRoles returns the retired values, for migration tooling.
func RetiredRoles() []Role {
	retired := make([]Role, 0, len(retiredRemap))
	for r := range retiredRemap {
		retired = append(retired, r)
	}
	return retired
}
