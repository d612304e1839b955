package auth

import (
	"fmt"
	"strings"
)

// Role is the caller's role as asserted by the identity provider.
type Role int

const (
	RoleStudent Role = iota + 1
	RoleFaculty
	RoleAdmin
	RoleStaff
)

// ParseRole maps the credential's role claim to a Role.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "student":
		return RoleStudent, nil
	case "faculty":
		return RoleFaculty, nil
	case "admin":
		return RoleAdmin, nil
	case "staff":
		return RoleStaff, nil
	}
	return 0, fmt.Errorf("unknown role %q", s)
}

func (r Role) String() string {
	switch r {
	case RoleStudent:
		return "student"
	case RoleFaculty:
		return "faculty"
	case RoleAdmin:
		return "admin"
	case RoleStaff:
		return "staff"
	}
	return "unknown"
}

// MarshalText encodes the role by name.
func (r Role) MarshalText() ([]byte, error) {
	if r.String() == "unknown" {
		return nil, fmt.Errorf("invalid role %d", int(r))
	}
	return []byte(r.String()), nil
}

// UnmarshalText decodes a role name.
func (r *Role) UnmarshalText(b []byte) error {
	parsed, err := ParseRole(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// ManagesAttendance reports roles allowed to open, close, delete and hand-mark sessions.
func (r Role) ManagesAttendance() bool {
	switch r {
	case RoleFaculty, RoleAdmin:
		return true
	case RoleStudent, RoleStaff:
		return false
	}
	return false
}

// Redeems reports roles allowed to scan a session code.
func (r Role) Redeems() bool {
	switch r {
	case RoleStudent, RoleFaculty, RoleAdmin:
		return true
	case RoleStaff:
		return false
	}
	return false
}

// Overrides reports roles that bypass course ownership checks.
func (r Role) Overrides() bool {
	switch r {
	case RoleAdmin:
		return true
	case RoleStudent, RoleFaculty, RoleStaff:
		return false
	}
	return false
}

// Principal is an authenticated caller.
type Principal struct {
	UserID string
	Role   Role
}

// CanManage reports whether p may act on a resource owned by ownerID.
func (p Principal) CanManage(ownerID string) bool {
	return p.Role.Overrides() || (p.Role.ManagesAttendance() && p.UserID == ownerID)
}

// AnyRole admits every authenticated caller.
func AnyRole(Role) bool { return true }
