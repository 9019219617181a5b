// File: internal/capability/capability.go
package capability

import "github.com/carelinkhq/carelink/internal/domain"

// Permission names a single action the UI may offer.
type Permission string

const (
	PermViewClientRecord Permission = "view_client_record"
	PermEditClientRecord Permission = "edit_client_record"
	PermMessageGeneral   Permission = "message_general"
	PermMessageClient    Permission = "message_client"
	PermStartBroadcast   Permission = "start_broadcast"
	PermManageUsers      Permission = "manage_users"
)

// Set is a resolved permission set.
type Set map[Permission]bool

// Has reports whether the permission is granted.
func (s Set) Has(p Permission) bool { return s[p] }

// Scope describes the client-record context a check runs in. OnCareTeam is
// whether the user is on the care team for the client in scope; it is
// meaningless when ClientID is empty.
type Scope struct {
	ClientID   string
	OnCareTeam bool
}

// Resolve maps (user, client scope) to a permission set. This is the single
// place role checks live; callers never branch on Role directly.
func Resolve(user domain.User, scope Scope) Set {
	set := Set{}

	switch user.Role {
	case domain.RoleAdmin:
		set[PermViewClientRecord] = true
		set[PermEditClientRecord] = true
		set[PermMessageGeneral] = true
		set[PermMessageClient] = true
		set[PermStartBroadcast] = true
		set[PermManageUsers] = true
	case domain.RoleCareGiver:
		set[PermMessageGeneral] = true
		if scope.ClientID != "" && scope.OnCareTeam {
			set[PermViewClientRecord] = true
			set[PermEditClientRecord] = true
			set[PermMessageClient] = true
		}
	case domain.RoleFamily:
		if scope.ClientID != "" && scope.OnCareTeam {
			set[PermViewClientRecord] = true
			set[PermMessageClient] = true
		}
	case domain.RoleClient:
		if scope.ClientID != "" && scope.ClientID == user.ID {
			set[PermViewClientRecord] = true
			set[PermMessageClient] = true
		}
	}

	return set
}
