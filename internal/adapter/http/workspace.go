package http

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/plexica/plexica-sub002/internal/app"
	"github.com/plexica/plexica-sub002/internal/domain"
)

// WorkspaceResponse is the API representation of a workspace.
type WorkspaceResponse struct {
	ID        string `json:"id"`
	TenantID  string `json:"tenant_id"`
	Slug      string `json:"slug"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
}

func toWorkspaceResponse(ws domain.Workspace) WorkspaceResponse {
	return WorkspaceResponse{
		ID:        ws.ID,
		TenantID:  ws.TenantID,
		Slug:      ws.Slug,
		Name:      ws.Name,
		CreatedAt: formatTime(ws.CreatedAt),
	}
}

// MemberResponse is the API representation of a workspace member.
type MemberResponse struct {
	WorkspaceID string `json:"workspace_id"`
	UserID      string `json:"user_id"`
	Role        string `json:"role" enum:"ADMIN,MEMBER,VIEWER"`
	InvitedBy   string `json:"invited_by,omitempty"`
	JoinedAt    string `json:"joined_at"`
}

func toMemberResponse(m domain.WorkspaceMember) MemberResponse {
	return MemberResponse{
		WorkspaceID: m.WorkspaceID,
		UserID:      m.UserID,
		Role:        string(m.Role),
		InvitedBy:   m.InvitedBy,
		JoinedAt:    formatTime(m.JoinedAt),
	}
}

type CreateWorkspaceInput struct {
	TenantID string `path:"tenantId" doc:"Tenant ID"`
	Body     struct {
		Slug      string `json:"slug" doc:"Identifier, unique within the tenant"`
		Name      string `json:"name" doc:"Display name"`
		CreatorID string `json:"creator_id" doc:"User who becomes the first ADMIN"`
	}
}

type WorkspaceOutput struct {
	Body WorkspaceResponse
}

type WorkspaceIDInput struct {
	ID string `path:"id" doc:"Workspace ID"`
}

type ListMembersOutput struct {
	Body []MemberResponse
}

type AddMemberInput struct {
	ID   string `path:"id" doc:"Workspace ID"`
	Body struct {
		UserID    string `json:"user_id"`
		Role      string `json:"role" doc:"ADMIN, MEMBER or VIEWER"`
		InvitedBy string `json:"invited_by,omitempty"`
	}
}

type MemberOutput struct {
	Body MemberResponse
}

type UpdateMemberInput struct {
	ID     string `path:"id" doc:"Workspace ID"`
	UserID string `path:"userId" doc:"Member's user ID"`
	Body   struct {
		Role string `json:"role" doc:"ADMIN, MEMBER or VIEWER"`
	}
}

type MemberPathInput struct {
	ID     string `path:"id" doc:"Workspace ID"`
	UserID string `path:"userId" doc:"Member's user ID"`
}

// RegisterWorkspaces adds the workspace and membership routes to the Huma API.
func RegisterWorkspaces(api huma.API, svc *app.MembershipService) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-workspace",
		Method:        http.MethodPost,
		Path:          "/api/v1/tenants/{tenantId}/workspaces",
		Summary:       "Create a workspace",
		Tags:          []string{"Workspaces"},
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *CreateWorkspaceInput) (*WorkspaceOutput, error) {
		ws, err := svc.CreateWorkspace(ctx, app.CreateWorkspaceInput{
			TenantID:  input.TenantID,
			Slug:      input.Body.Slug,
			Name:      input.Body.Name,
			CreatorID: input.Body.CreatorID,
		})
		if err != nil {
			return nil, toHumaError(err, "")
		}
		return &WorkspaceOutput{Body: toWorkspaceResponse(ws)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-workspace",
		Method:      http.MethodGet,
		Path:        "/api/v1/workspaces/{id}",
		Summary:     "Get a workspace by ID",
		Tags:        []string{"Workspaces"},
	}, func(ctx context.Context, input *WorkspaceIDInput) (*WorkspaceOutput, error) {
		ws, err := svc.GetWorkspace(ctx, input.ID)
		if err != nil {
			return nil, toHumaError(err, "")
		}
		return &WorkspaceOutput{Body: toWorkspaceResponse(ws)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-members",
		Method:      http.MethodGet,
		Path:        "/api/v1/workspaces/{id}/members",
		Summary:     "List workspace members",
		Tags:        []string{"Workspaces"},
	}, func(ctx context.Context, input *WorkspaceIDInput) (*ListMembersOutput, error) {
		members, err := svc.ListMembers(ctx, input.ID)
		if err != nil {
			return nil, toHumaError(err, "")
		}
		resp := make([]MemberResponse, len(members))
		for i, m := range members {
			resp[i] = toMemberResponse(m)
		}
		return &ListMembersOutput{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-member",
		Method:        http.MethodPost,
		Path:          "/api/v1/workspaces/{id}/members",
		Summary:       "Add a member to a workspace",
		Tags:          []string{"Workspaces"},
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *AddMemberInput) (*MemberOutput, error) {
		m, err := svc.AddMember(ctx, app.AddMemberInput{
			WorkspaceID: input.ID,
			UserID:      input.Body.UserID,
			Role:        domain.Role(input.Body.Role),
			InvitedBy:   input.Body.InvitedBy,
		})
		if err != nil {
			return nil, toHumaError(err, "")
		}
		return &MemberOutput{Body: toMemberResponse(m)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-member-role",
		Method:      http.MethodPatch,
		Path:        "/api/v1/workspaces/{id}/members/{userId}",
		Summary:     "Change a member's role",
		Description: "Demoting the workspace's last ADMIN is rejected with LAST_ADMIN.",
		Tags:        []string{"Workspaces"},
	}, func(ctx context.Context, input *UpdateMemberInput) (*MemberOutput, error) {
		m, err := svc.UpdateMemberRole(ctx, input.ID, input.UserID, domain.Role(input.Body.Role))
		if err != nil {
			return nil, toHumaError(err, "")
		}
		return &MemberOutput{Body: toMemberResponse(m)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "remove-member",
		Method:        http.MethodDelete,
		Path:          "/api/v1/workspaces/{id}/members/{userId}",
		Summary:       "Remove a member from a workspace",
		Description:   "Removing the workspace's last ADMIN is rejected with LAST_ADMIN.",
		Tags:          []string{"Workspaces"},
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *MemberPathInput) (*struct{}, error) {
		if err := svc.RemoveMember(ctx, input.ID, input.UserID); err != nil {
			return nil, toHumaError(err, "")
		}
		return nil, nil
	})
}
