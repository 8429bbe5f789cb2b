package domain

import "strings"

// RoleKind is the recognized arm of a Role.
type RoleKind int

const (
	// RoleUnrecognized covers any role string the service does not know.
	// It always receives customer-level access.
	RoleUnrecognized RoleKind = iota
	RoleAdmin
	RoleQuality
	RoleIntake
	RoleClient
)

// Role names as stored in the users table.
const (
	RoleNameAdmin   = "administrador"
	RoleNameQuality = "calidad"
	RoleNameIntake  = "registrador"
	RoleNameClient  = "cliente"
)

var roleKinds = map[string]RoleKind{
	RoleNameAdmin:   RoleAdmin,
	RoleNameQuality: RoleQuality,
	RoleNameIntake:  RoleIntake,
	RoleNameClient:  RoleClient,
}

// Role is an open role string paired with its recognized kind.
type Role struct {
	Kind RoleKind
	Raw  string
}

// ParseRole never fails; unknown strings map to RoleUnrecognized.
func ParseRole(raw string) Role {
	raw = strings.TrimSpace(raw)
	kind, ok := roleKinds[raw]
	if !ok {
		kind = RoleUnrecognized
	}
	return Role{Kind: kind, Raw: raw}
}

var (
	Admin   = ParseRole(RoleNameAdmin)
	Quality = ParseRole(RoleNameQuality)
	Intake  = ParseRole(RoleNameIntake)
	Client  = ParseRole(RoleNameClient)
)

func (r Role) String() string { return r.Raw }

// IsStaff reports whether the role belongs to internal staff.
func (r Role) IsStaff() bool {
	switch r.Kind {
	case RoleAdmin, RoleQuality, RoleIntake:
		return true
	default:
		return false
	}
}

func (r Role) IsAdmin() bool  { return r.Kind == RoleAdmin }
func (r Role) IsClient() bool { return r.Kind == RoleClient }

// MarshalText keeps the raw role string on the wire.
func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.Raw), nil
}

func (r *Role) UnmarshalText(text []byte) error {
	*r = ParseRole(string(text))
	return nil
}

// StaffRoleNames lists the roles that can be assigned tickets.
func StaffRoleNames() []string {
	return []string{RoleNameAdmin, RoleNameQuality, RoleNameIntake}
}
