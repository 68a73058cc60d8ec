package http

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/plexica/plexica-sub002/internal/app"
	"github.com/plexica/plexica-sub002/internal/domain"
)

const timeFormat = "2006-01-02T15:04:05Z"

// TenantResponse is the API representation of a tenant.
type TenantResponse struct {
	ID                  string         `json:"id" doc:"Unique identifier"`
	Name                string         `json:"name" doc:"Display name"`
	Slug                string         `json:"slug" doc:"URL-friendly identifier, immutable"`
	Status              string         `json:"status" doc:"Lifecycle state" enum:"PROVISIONING,ACTIVE,SUSPENDED,PENDING_DELETION"`
	Settings            map[string]any `json:"settings" doc:"Free-form settings, including provisioned resource names"`
	Theme               map[string]any `json:"theme" doc:"Free-form branding"`
	DeletionScheduledAt *string        `json:"deletion_scheduled_at,omitempty" doc:"When the tenant was soft-deleted (ISO 8601)"`
	AvailableActions    []string       `json:"available_actions" doc:"Lifecycle events accepted in the current state"`
	CreatedAt           string         `json:"created_at" doc:"Creation timestamp (ISO 8601)"`
	UpdatedAt           string         `json:"updated_at" doc:"Last update timestamp (ISO 8601)"`
}

func toTenantResponse(t domain.Tenant, actions []domain.Event) TenantResponse {
	resp := TenantResponse{
		ID:               t.ID,
		Name:             t.Name,
		Slug:             t.Slug,
		Status:           string(t.Status),
		Settings:         t.Settings,
		Theme:            t.Theme,
		AvailableActions: make([]string, len(actions)),
		CreatedAt:        formatTime(t.CreatedAt),
		UpdatedAt:        formatTime(t.UpdatedAt),
	}
	for i, a := range actions {
		resp.AvailableActions[i] = string(a)
	}
	if t.DeletionScheduledAt != nil {
		at := formatTime(*t.DeletionScheduledAt)
		resp.DeletionScheduledAt = &at
	}
	return resp
}

// --- Create Tenant ---

type CreateTenantInput struct {
	Body struct {
		Slug       string         `json:"slug" doc:"URL-friendly identifier (lowercase letters, digits, single hyphens)"`
		Name       string         `json:"name" doc:"Display name"`
		AdminEmail string         `json:"admin_email" doc:"E-mail of the tenant's first administrator"`
		Settings   map[string]any `json:"settings,omitempty" doc:"Initial settings"`
		Theme      map[string]any `json:"theme,omitempty" doc:"Initial branding"`
	}
}

type TenantOutput struct {
	Body TenantResponse
}

// --- Get Tenant ---

type TenantIDInput struct {
	ID string `path:"id" doc:"Tenant ID"`
}

// --- List Tenants ---

type ListTenantsInput struct {
	Status string `query:"status" required:"false" doc:"Filter by status" enum:"PROVISIONING,ACTIVE,SUSPENDED,PENDING_DELETION"`
	Limit  int    `query:"limit" required:"false" default:"50" minimum:"0" doc:"Max results"`
	Offset int    `query:"offset" required:"false" default:"0" minimum:"0" doc:"Pagination offset"`
}

type ListTenantsOutput struct {
	Body []TenantResponse
}

// --- Update Tenant ---

type UpdateTenantInput struct {
	ID   string `path:"id" doc:"Tenant ID"`
	Body struct {
		Name     *string        `json:"name,omitempty" doc:"New display name"`
		Settings map[string]any `json:"settings,omitempty" doc:"Keys to merge into settings; null deletes a key"`
		Theme    map[string]any `json:"theme,omitempty" doc:"Keys to merge into the theme; null deletes a key"`
	}
}

// --- Hard Delete ---

type DeletionResponse struct {
	Realm       string `json:"realm" doc:"Identity realm removed"`
	Schema      string `json:"schema" doc:"Database schema dropped"`
	Bucket      string `json:"bucket" doc:"Storage bucket removed"`
	BucketError string `json:"bucket_error,omitempty" doc:"Set when the bucket could not be removed; the tenant was deleted anyway"`
}

type HardDeleteOutput struct {
	Body DeletionResponse
}

// --- Slug availability ---

type CheckSlugInput struct {
	Slug string `path:"slug" doc:"Slug to check"`
}

type CheckSlugOutput struct {
	Body struct {
		Slug      string `json:"slug"`
		Valid     bool   `json:"valid" doc:"Whether the slug is well-formed"`
		Available bool   `json:"available" doc:"Whether no tenant currently holds the slug"`
	}
}

// Register adds all tenant API routes to the Huma API.
func Register(api huma.API, svc *app.TenantService) {
	respond := func(t domain.Tenant) *TenantOutput {
		return &TenantOutput{Body: toTenantResponse(t, svc.AvailableEvents(t))}
	}

	huma.Register(api, huma.Operation{
		OperationID:   "create-tenant",
		Method:        http.MethodPost,
		Path:          "/api/v1/tenants",
		Summary:       "Create and provision a new tenant",
		Tags:          []string{"Tenants"},
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *CreateTenantInput) (*TenantOutput, error) {
		tenant, err := svc.Create(ctx, app.CreateTenantInput{
			Slug:       input.Body.Slug,
			Name:       input.Body.Name,
			AdminEmail: input.Body.AdminEmail,
			Settings:   input.Body.Settings,
			Theme:      input.Body.Theme,
		})
		if err != nil {
			return nil, toHumaError(err, tenant.ID)
		}
		return respond(tenant), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-tenant",
		Method:      http.MethodGet,
		Path:        "/api/v1/tenants/{id}",
		Summary:     "Get a tenant by ID",
		Tags:        []string{"Tenants"},
	}, func(ctx context.Context, input *TenantIDInput) (*TenantOutput, error) {
		tenant, err := svc.GetByID(ctx, input.ID)
		if err != nil {
			return nil, toHumaError(err, "")
		}
		return respond(tenant), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tenants",
		Method:      http.MethodGet,
		Path:        "/api/v1/tenants",
		Summary:     "List tenants",
		Tags:        []string{"Tenants"},
	}, func(ctx context.Context, input *ListTenantsInput) (*ListTenantsOutput, error) {
		filter := domain.ListFilter{
			Limit:  input.Limit,
			Offset: input.Offset,
		}
		if input.Status != "" {
			s := domain.Status(input.Status)
			filter.Status = &s
		}

		tenants, err := svc.List(ctx, filter)
		if err != nil {
			return nil, toHumaError(err, "")
		}

		resp := make([]TenantResponse, len(tenants))
		for i, t := range tenants {
			resp[i] = toTenantResponse(t, svc.AvailableEvents(t))
		}
		return &ListTenantsOutput{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-tenant",
		Method:      http.MethodPatch,
		Path:        "/api/v1/tenants/{id}",
		Summary:     "Update a tenant's name, settings or theme",
		Tags:        []string{"Tenants"},
	}, func(ctx context.Context, input *UpdateTenantInput) (*TenantOutput, error) {
		tenant, err := svc.Update(ctx, input.ID, domain.TenantPatch{
			Name:     input.Body.Name,
			Settings: input.Body.Settings,
			Theme:    input.Body.Theme,
		})
		if err != nil {
			return nil, toHumaError(err, "")
		}
		return respond(tenant), nil
	})

	lifecycle := []struct {
		id, path, summary string
		run               func(context.Context, string) (domain.Tenant, error)
	}{
		{"suspend-tenant", "/api/v1/tenants/{id}/suspend", "Suspend an active tenant", svc.Suspend},
		{"reactivate-tenant", "/api/v1/tenants/{id}/reactivate", "Reactivate a suspended tenant", svc.Reactivate},
	}
	for _, op := range lifecycle {
		huma.Register(api, huma.Operation{
			OperationID: op.id,
			Method:      http.MethodPost,
			Path:        op.path,
			Summary:     op.summary,
			Tags:        []string{"Tenants"},
		}, func(ctx context.Context, input *TenantIDInput) (*TenantOutput, error) {
			tenant, err := op.run(ctx, input.ID)
			if err != nil {
				return nil, toHumaError(err, "")
			}
			return respond(tenant), nil
		})
	}

	huma.Register(api, huma.Operation{
		OperationID: "delete-tenant",
		Method:      http.MethodDelete,
		Path:        "/api/v1/tenants/{id}",
		Summary:     "Schedule a tenant for deletion",
		Description: "Moves the tenant to PENDING_DELETION. Its resources are removed by the deletion sweep once the grace period has elapsed, or immediately through the purge operation.",
		Tags:        []string{"Tenants"},
	}, func(ctx context.Context, input *TenantIDInput) (*TenantOutput, error) {
		tenant, err := svc.SoftDelete(ctx, input.ID)
		if err != nil {
			return nil, toHumaError(err, "")
		}
		return respond(tenant), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "purge-tenant",
		Method:      http.MethodPost,
		Path:        "/api/v1/tenants/{id}/purge",
		Summary:     "Permanently delete a tenant and its resources",
		Tags:        []string{"Tenants"},
	}, func(ctx context.Context, input *TenantIDInput) (*HardDeleteOutput, error) {
		rep, err := svc.HardDelete(ctx, input.ID)
		if err != nil {
			return nil, toHumaError(err, input.ID)
		}
		out := &HardDeleteOutput{Body: DeletionResponse{Realm: rep.Realm, Schema: rep.Schema, Bucket: rep.Bucket}}
		if rep.BucketErr != nil {
			out.Body.BucketError = rep.BucketErr.Error()
		}
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "check-slug",
		Method:      http.MethodGet,
		Path:        "/api/v1/slugs/{slug}",
		Summary:     "Check whether a tenant slug is available",
		Tags:        []string{"Tenants"},
	}, func(ctx context.Context, input *CheckSlugInput) (*CheckSlugOutput, error) {
		avail, err := svc.CheckSlug(ctx, input.Slug)
		if err != nil {
			return nil, toHumaError(err, "")
		}
		out := &CheckSlugOutput{}
		out.Body.Slug = avail.Slug
		out.Body.Valid = avail.Valid
		out.Body.Available = avail.Available
		return out, nil
	})
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}
