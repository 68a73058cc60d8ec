package domain

import "time"

// Role is a workspace member's permission level.
type Role string

const (
	RoleAdmin  Role = "ADMIN"
	RoleMember Role = "MEMBER"
	RoleViewer Role = "VIEWER"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleMember, RoleViewer:
		return true
	}
	return false
}

// Workspace groups members inside a tenant. Its slug is unique per tenant.
type Workspace struct {
	ID        string
	TenantID  string
	Slug      string
	Name      string
	CreatedAt time.Time
}

// WorkspaceMember is keyed by (WorkspaceID, UserID).
type WorkspaceMember struct {
	WorkspaceID string
	UserID      string
	Role        Role
	InvitedBy   string
	JoinedAt    time.Time
}

// MemberChange describes a single mutation of a workspace's member set.
// A nil Role removes the member.
type MemberChange struct {
	UserID string
	Role   *Role
}

// Removal reports whether the change deletes the membership.
func (c MemberChange) Removal() bool { return c.Role == nil }

// CheckAdminRetained returns a LastAdminError if applying change to members
// would leave the workspace with no ADMIN. It returns ErrMemberNotFound if
// the target is not a member.
func CheckAdminRetained(workspaceID string, members []WorkspaceMember, change MemberChange) error {
	var target *WorkspaceMember
	otherAdmins := 0
	for i := range members {
		m := &members[i]
		if m.UserID == change.UserID {
			target = m
			continue
		}
		if m.Role == RoleAdmin {
			otherAdmins++
		}
	}
	if target == nil {
		return ErrMemberNotFound
	}

	demotes := change.Removal() || *change.Role != RoleAdmin
	if target.Role == RoleAdmin && demotes && otherAdmins == 0 {
		return &LastAdminError{WorkspaceID: workspaceID, UserID: change.UserID}
	}
	return nil
}
