package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/plexica/plexica-sub002/internal/domain"
)

const tracerName = "github.com/plexica/plexica-sub002/internal/adapter/otel"

// endSpan records err on span, tags it with the domain error code, and ends it.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String("error.code", string(domain.ErrorCode(err))))
	}
	span.End()
}

// TracingRepository wraps a domain.TenantRepository with OpenTelemetry tracing.
type TracingRepository struct {
	next   domain.TenantRepository
	tracer trace.Tracer
}

var _ domain.TenantRepository = (*TracingRepository)(nil)

// NewTracingRepository creates a tracing decorator around the given repository.
func NewTracingRepository(next domain.TenantRepository) *TracingRepository {
	return &TracingRepository{
		next:   next,
		tracer: otel.Tracer(tracerName),
	}
}

func (r *TracingRepository) Create(ctx context.Context, tenant domain.Tenant) (err error) {
	ctx, span := r.tracer.Start(ctx, "TenantRepository.Create",
		trace.WithAttributes(
			attribute.String("tenant.id", tenant.ID),
			attribute.String("tenant.slug", tenant.Slug),
		),
	)
	defer func() { endSpan(span, err) }()

	return r.next.Create(ctx, tenant)
}

func (r *TracingRepository) GetByID(ctx context.Context, id string) (_ domain.Tenant, err error) {
	ctx, span := r.tracer.Start(ctx, "TenantRepository.GetByID",
		trace.WithAttributes(attribute.String("tenant.id", id)),
	)
	defer func() { endSpan(span, err) }()

	return r.next.GetByID(ctx, id)
}

func (r *TracingRepository) GetBySlug(ctx context.Context, slug string) (_ domain.Tenant, err error) {
	ctx, span := r.tracer.Start(ctx, "TenantRepository.GetBySlug",
		trace.WithAttributes(attribute.String("tenant.slug", slug)),
	)
	defer func() { endSpan(span, err) }()

	return r.next.GetBySlug(ctx, slug)
}

func (r *TracingRepository) List(ctx context.Context, filter domain.ListFilter) (_ []domain.Tenant, err error) {
	ctx, span := r.tracer.Start(ctx, "TenantRepository.List",
		trace.WithAttributes(
			attribute.Int("filter.limit", filter.Limit),
			attribute.Int("filter.offset", filter.Offset),
		),
	)
	defer func() { endSpan(span, err) }()

	if filter.Status != nil {
		span.SetAttributes(attribute.String("filter.status", string(*filter.Status)))
	}
	if filter.DeletionDueBefore != nil {
		span.SetAttributes(attribute.String("filter.deletion_due_before", filter.DeletionDueBefore.UTC().String()))
	}

	tenants, err := r.next.List(ctx, filter)
	if err == nil {
		span.SetAttributes(attribute.Int("result.count", len(tenants)))
	}
	return tenants, err
}

func (r *TracingRepository) Update(ctx context.Context, tenant domain.Tenant, expected domain.Status) (err error) {
	ctx, span := r.tracer.Start(ctx, "TenantRepository.Update",
		trace.WithAttributes(
			attribute.String("tenant.id", tenant.ID),
			attribute.String("tenant.status", string(tenant.Status)),
			attribute.String("tenant.expected_status", string(expected)),
		),
	)
	defer func() { endSpan(span, err) }()

	return r.next.Update(ctx, tenant, expected)
}

func (r *TracingRepository) Delete(ctx context.Context, id string) (err error) {
	ctx, span := r.tracer.Start(ctx, "TenantRepository.Delete",
		trace.WithAttributes(attribute.String("tenant.id", id)),
	)
	defer func() { endSpan(span, err) }()

	return r.next.Delete(ctx, id)
}

// TracingWorkspaceRepository wraps a domain.WorkspaceRepository with tracing.
type TracingWorkspaceRepository struct {
	next   domain.WorkspaceRepository
	tracer trace.Tracer
}

var _ domain.WorkspaceRepository = (*TracingWorkspaceRepository)(nil)

// NewTracingWorkspaceRepository creates a tracing decorator around next.
func NewTracingWorkspaceRepository(next domain.WorkspaceRepository) *TracingWorkspaceRepository {
	return &TracingWorkspaceRepository{
		next:   next,
		tracer: otel.Tracer(tracerName),
	}
}

func (r *TracingWorkspaceRepository) CreateWorkspace(ctx context.Context, ws domain.Workspace, owner domain.WorkspaceMember) (err error) {
	ctx, span := r.tracer.Start(ctx, "WorkspaceRepository.CreateWorkspace",
		trace.WithAttributes(
			attribute.String("tenant.id", ws.TenantID),
			attribute.String("workspace.id", ws.ID),
			attribute.String("workspace.slug", ws.Slug),
		),
	)
	defer func() { endSpan(span, err) }()

	return r.next.CreateWorkspace(ctx, ws, owner)
}

func (r *TracingWorkspaceRepository) GetWorkspace(ctx context.Context, id string) (_ domain.Workspace, err error) {
	ctx, span := r.tracer.Start(ctx, "WorkspaceRepository.GetWorkspace",
		trace.WithAttributes(attribute.String("workspace.id", id)),
	)
	defer func() { endSpan(span, err) }()

	return r.next.GetWorkspace(ctx, id)
}

func (r *TracingWorkspaceRepository) AddMember(ctx context.Context, m domain.WorkspaceMember) (err error) {
	ctx, span := r.tracer.Start(ctx, "WorkspaceRepository.AddMember",
		trace.WithAttributes(
			attribute.String("workspace.id", m.WorkspaceID),
			attribute.String("member.user_id", m.UserID),
			attribute.String("member.role", string(m.Role)),
		),
	)
	defer func() { endSpan(span, err) }()

	return r.next.AddMember(ctx, m)
}

func (r *TracingWorkspaceRepository) ListMembers(ctx context.Context, workspaceID string) (_ []domain.WorkspaceMember, err error) {
	ctx, span := r.tracer.Start(ctx, "WorkspaceRepository.ListMembers",
		trace.WithAttributes(attribute.String("workspace.id", workspaceID)),
	)
	defer func() { endSpan(span, err) }()

	members, err := r.next.ListMembers(ctx, workspaceID)
	if err == nil {
		span.SetAttributes(attribute.Int("result.count", len(members)))
	}
	return members, err
}

func (r *TracingWorkspaceRepository) MutateMember(
	ctx context.Context,
	workspaceID string,
	change domain.MemberChange,
	check func([]domain.WorkspaceMember) error,
) (_ domain.WorkspaceMember, err error) {
	ctx, span := r.tracer.Start(ctx, "WorkspaceRepository.MutateMember",
		trace.WithAttributes(
			attribute.String("workspace.id", workspaceID),
			attribute.String("member.user_id", change.UserID),
			attribute.Bool("member.removal", change.Removal()),
		),
	)
	defer func() { endSpan(span, err) }()

	if !change.Removal() {
		span.SetAttributes(attribute.String("member.role", string(*change.Role)))
	}
	return r.next.MutateMember(ctx, workspaceID, change, check)
}
