package capability

import (
	"testing"

	"github.com/carelinkhq/carelink/internal/domain"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name    string
		user    domain.User
		scope   Scope
		granted []Permission
		denied  []Permission
	}{
		{
			name:    "admin has everything",
			user:    domain.User{ID: "a1", Role: domain.RoleAdmin},
			scope:   Scope{},
			granted: []Permission{PermViewClientRecord, PermEditClientRecord, PermMessageGeneral, PermMessageClient, PermStartBroadcast, PermManageUsers},
		},
		{
			name:    "caregiver on care team",
			user:    domain.User{ID: "g1", Role: domain.RoleCareGiver},
			scope:   Scope{ClientID: "c1", OnCareTeam: true},
			granted: []Permission{PermViewClientRecord, PermEditClientRecord, PermMessageClient, PermMessageGeneral},
			denied:  []Permission{PermStartBroadcast, PermManageUsers},
		},
		{
			name:    "caregiver off care team",
			user:    domain.User{ID: "g1", Role: domain.RoleCareGiver},
			scope:   Scope{ClientID: "c1", OnCareTeam: false},
			granted: []Permission{PermMessageGeneral},
			denied:  []Permission{PermViewClientRecord, PermEditClientRecord, PermMessageClient},
		},
		{
			name:    "family reads but cannot edit",
			user:    domain.User{ID: "f1", Role: domain.RoleFamily},
			scope:   Scope{ClientID: "c1", OnCareTeam: true},
			granted: []Permission{PermViewClientRecord, PermMessageClient},
			denied:  []Permission{PermEditClientRecord, PermMessageGeneral, PermManageUsers},
		},
		{
			name:    "client sees own record only",
			user:    domain.User{ID: "c1", Role: domain.RoleClient},
			scope:   Scope{ClientID: "c1"},
			granted: []Permission{PermViewClientRecord, PermMessageClient},
			denied:  []Permission{PermEditClientRecord},
		},
		{
			name:   "client cannot see another record",
			user:   domain.User{ID: "c1", Role: domain.RoleClient},
			scope:  Scope{ClientID: "c2"},
			denied: []Permission{PermViewClientRecord, PermMessageClient},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set := Resolve(tt.user, tt.scope)
			for _, p := range tt.granted {
				if !set.Has(p) {
					t.Errorf("permission %q not granted", p)
				}
			}
			for _, p := range tt.denied {
				if set.Has(p) {
					t.Errorf("permission %q granted, want denied", p)
				}
			}
		})
	}
}
