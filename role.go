package roleauth

import "strings"

// Role is one of the two global roles. The zero value means no role has been
// assigned yet; it is never persisted and never embedded in a session claim.
type Role uint8

const (
	// RoleUnassigned is the state of a user that has not picked a role yet.
	RoleUnassigned Role = iota
	// RoleMember can browse and join events.
	RoleMember
	// RoleOrganizer can additionally create and manage events.
	RoleOrganizer
)

const (
	roleMemberName    = "MEMBER"
	roleOrganizerName = "ORGANIZER"
)

// ParseRole is the only way to turn external input into a Role. Matching is
// exact; anything other than MEMBER or ORGANIZER yields ErrInvalidRole.
func ParseRole(s string) (Role, error) {
	switch s {
	case roleMemberName:
		return RoleMember, nil
	case roleOrganizerName:
		return RoleOrganizer, nil
	default:
		return RoleUnassigned, ErrInvalidRole
	}
}

// ParseStoredRole is ParseRole for persisted values, where an empty or NULL
// column means the user has no role yet.
func ParseStoredRole(s string) (Role, error) {
	if strings.TrimSpace(s) == "" {
		return RoleUnassigned, nil
	}
	return ParseRole(s)
}

// String returns the wire name, or the empty string for RoleUnassigned.
func (r Role) String() string {
	switch r {
	case RoleMember:
		return roleMemberName
	case RoleOrganizer:
		return roleOrganizerName
	default:
		return ""
	}
}

// Assigned reports whether r is MEMBER or ORGANIZER.
func (r Role) Assigned() bool {
	return r == RoleMember || r == RoleOrganizer
}

// ResolveRole applies the elevation rule: a user can move up from unassigned
// or MEMBER, but an ORGANIZER is never demoted. The returned role is the one
// that should be in effect; changed reports whether it differs from current.
func ResolveRole(current, desired Role) (effective Role, changed bool) {
	if !desired.Assigned() {
		return current, false
	}
	if current == RoleOrganizer {
		return RoleOrganizer, false
	}
	return desired, desired != current
}

// IsDowngrade reports whether moving from current to desired would lower the role.
func IsDowngrade(current, desired Role) bool {
	return current == RoleOrganizer && desired == RoleMember
}
