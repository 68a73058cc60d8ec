package domain_test

import (
	"errors"
	"testing"

	"github.com/plexica/plexica-sub002/internal/domain"
)

func role(r domain.Role) *domain.Role { return &r }

func TestCheckAdminRetained(t *testing.T) {
	twoAdmins := []domain.WorkspaceMember{
		{UserID: "alice", Role: domain.RoleAdmin},
		{UserID: "bob", Role: domain.RoleAdmin},
		{UserID: "carol", Role: domain.RoleMember},
	}
	oneAdmin := []domain.WorkspaceMember{
		{UserID: "alice", Role: domain.RoleAdmin},
		{UserID: "carol", Role: domain.RoleMember},
	}

	cases := []struct {
		name      string
		members   []domain.WorkspaceMember
		change    domain.MemberChange
		lastAdmin bool
	}{
		{"demote one of two admins", twoAdmins, domain.MemberChange{UserID: "alice", Role: role(domain.RoleMember)}, false},
		{"remove one of two admins", twoAdmins, domain.MemberChange{UserID: "bob"}, false},
		{"demote last admin", oneAdmin, domain.MemberChange{UserID: "alice", Role: role(domain.RoleViewer)}, true},
		{"remove last admin", oneAdmin, domain.MemberChange{UserID: "alice"}, true},
		{"last admin keeps admin role", oneAdmin, domain.MemberChange{UserID: "alice", Role: role(domain.RoleAdmin)}, false},
		{"remove plain member", oneAdmin, domain.MemberChange{UserID: "carol"}, false},
		{"promote member", oneAdmin, domain.MemberChange{UserID: "carol", Role: role(domain.RoleAdmin)}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := domain.CheckAdminRetained("ws-1", tc.members, tc.change)
			var lastAdmin *domain.LastAdminError
			if got := errors.As(err, &lastAdmin); got != tc.lastAdmin {
				t.Fatalf("LastAdminError = %v, want %v (err: %v)", got, tc.lastAdmin, err)
			}
			if !tc.lastAdmin && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestCheckAdminRetained_UnknownMember(t *testing.T) {
	members := []domain.WorkspaceMember{{UserID: "alice", Role: domain.RoleAdmin}}
	err := domain.CheckAdminRetained("ws-1", members, domain.MemberChange{UserID: "zed"})
	if !errors.Is(err, domain.ErrMemberNotFound) {
		t.Errorf("expected ErrMemberNotFound, got %v", err)
	}
}

func TestRole_Valid(t *testing.T) {
	for _, r := range []domain.Role{domain.RoleAdmin, domain.RoleMember, domain.RoleViewer} {
		if !r.Valid() {
			t.Errorf("%q should be valid", r)
		}
	}
	if domain.Role("OWNER").Valid() {
		t.Error("OWNER should not be valid")
	}
}
