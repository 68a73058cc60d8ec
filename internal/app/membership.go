package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/plexica/plexica-sub002/internal/domain"
)

// CreateWorkspaceInput is the request to create a workspace in a tenant.
type CreateWorkspaceInput struct {
	TenantID  string `json:"tenant_id" validate:"required"`
	Slug      string `json:"slug" validate:"required,slug"`
	Name      string `json:"name" validate:"required,max=255"`
	CreatorID string `json:"creator_id" validate:"required"`
}

// AddMemberInput is the request to add a user to a workspace.
type AddMemberInput struct {
	WorkspaceID string      `json:"workspace_id" validate:"required"`
	UserID      string      `json:"user_id" validate:"required"`
	Role        domain.Role `json:"role" validate:"required,role"`
	InvitedBy   string      `json:"invited_by"`
}

// MembershipService manages workspaces and enforces that every workspace
// keeps at least one ADMIN. Role changes and removals go through
// WorkspaceRepository.MutateMember, which runs the check and the write in
// one transaction.
type MembershipService struct {
	repo   domain.WorkspaceRepository
	logger *zap.Logger
	now    func() time.Time
}

// NewMembershipService creates a service over repo.
func NewMembershipService(repo domain.WorkspaceRepository, logger *zap.Logger) *MembershipService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MembershipService{
		repo:   repo,
		logger: logger,
		now:    storedNow,
	}
}

// CreateWorkspace creates a workspace whose creator is its first ADMIN.
func (s *MembershipService) CreateWorkspace(ctx context.Context, in CreateWorkspaceInput) (domain.Workspace, error) {
	if err := validateInput(in); err != nil {
		return domain.Workspace{}, err
	}

	id, err := generateID()
	if err != nil {
		return domain.Workspace{}, fmt.Errorf("generating workspace id: %w", err)
	}

	now := s.now()
	ws := domain.Workspace{
		ID:        id,
		TenantID:  in.TenantID,
		Slug:      in.Slug,
		Name:      in.Name,
		CreatedAt: now,
	}
	owner := domain.WorkspaceMember{
		WorkspaceID: id,
		UserID:      in.CreatorID,
		Role:        domain.RoleAdmin,
		InvitedBy:   in.CreatorID,
		JoinedAt:    now,
	}

	if err := s.repo.CreateWorkspace(ctx, ws, owner); err != nil {
		return domain.Workspace{}, err
	}

	s.logger.Info("workspace created",
		zap.String("tenant_id", ws.TenantID),
		zap.String("workspace_id", ws.ID),
		zap.String("workspace_slug", ws.Slug),
	)
	return ws, nil
}

// GetWorkspace returns a workspace by id.
func (s *MembershipService) GetWorkspace(ctx context.Context, id string) (domain.Workspace, error) {
	return s.repo.GetWorkspace(ctx, id)
}

// ListMembers returns the members of a workspace.
func (s *MembershipService) ListMembers(ctx context.Context, workspaceID string) ([]domain.WorkspaceMember, error) {
	return s.repo.ListMembers(ctx, workspaceID)
}

// AddMember adds a user to a workspace. Adding never removes an admin, so it
// needs no invariant check.
func (s *MembershipService) AddMember(ctx context.Context, in AddMemberInput) (domain.WorkspaceMember, error) {
	if err := validateInput(in); err != nil {
		return domain.WorkspaceMember{}, err
	}

	m := domain.WorkspaceMember{
		WorkspaceID: in.WorkspaceID,
		UserID:      in.UserID,
		Role:        in.Role,
		InvitedBy:   in.InvitedBy,
		JoinedAt:    s.now(),
	}
	if err := s.repo.AddMember(ctx, m); err != nil {
		return domain.WorkspaceMember{}, err
	}
	return m, nil
}

// UpdateMemberRole changes a member's role. Demoting the last ADMIN fails
// with *domain.LastAdminError.
func (s *MembershipService) UpdateMemberRole(ctx context.Context, workspaceID, userID string, role domain.Role) (domain.WorkspaceMember, error) {
	if !role.Valid() {
		return domain.WorkspaceMember{}, &domain.ValidationError{Field: "role", Reason: "must be one of ADMIN, MEMBER, VIEWER"}
	}
	return s.mutate(ctx, workspaceID, domain.MemberChange{UserID: userID, Role: &role})
}

// RemoveMember removes a member. Removing the last ADMIN fails with
// *domain.LastAdminError.
func (s *MembershipService) RemoveMember(ctx context.Context, workspaceID, userID string) error {
	_, err := s.mutate(ctx, workspaceID, domain.MemberChange{UserID: userID})
	return err
}

func (s *MembershipService) mutate(ctx context.Context, workspaceID string, change domain.MemberChange) (domain.WorkspaceMember, error) {
	m, err := s.repo.MutateMember(ctx, workspaceID, change, func(members []domain.WorkspaceMember) error {
		return domain.CheckAdminRetained(workspaceID, members, change)
	})
	if err != nil {
		return domain.WorkspaceMember{}, err
	}

	s.logger.Info("workspace member changed",
		zap.String("workspace_id", workspaceID),
		zap.String("user_id", change.UserID),
		zap.Bool("removed", change.Removal()),
	)
	return m, nil
}
