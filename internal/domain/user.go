// File: internal/domain/user.go
package domain

import "time"

type Role string

const (
	RoleAdmin     Role = "admin"
	RoleCareGiver Role = "caregiver"
	RoleFamily    Role = "family"
	RoleClient    Role = "client"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleCareGiver, RoleFamily, RoleClient:
		return true
	}
	return false
}

// User is the signed-in identity consumed from the authentication provider.
type User struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	Role        Role      `json:"role"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
}
