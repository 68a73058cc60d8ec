package app

import (
	"context"
	"fmt"
	"maps"
	"time"

	"go.uber.org/zap"

	"github.com/plexica/plexica-sub002/internal/domain"
	"github.com/plexica/plexica-sub002/internal/provisioning"
)

// Provisioner runs the provisioning saga for one tenant.
type Provisioner interface {
	Provision(ctx context.Context, pc *provisioning.Context) provisioning.Result
}

// CreateTenantInput is the request to create and provision a tenant.
type CreateTenantInput struct {
	Slug       string         `json:"slug" validate:"required,slug"`
	Name       string         `json:"name" validate:"required,max=255"`
	AdminEmail string         `json:"admin_email" validate:"required,email"`
	Settings   map[string]any `json:"settings"`
	Theme      map[string]any `json:"theme"`
}

// TenantService orchestrates tenant lifecycle operations.
type TenantService struct {
	repo        domain.TenantRepository
	publisher   domain.EventPublisher
	validator   domain.TransitionValidator
	guard       *UniquenessGuard
	provisioner Provisioner
	deleter     *HardDeletionCoordinator
	logger      *zap.Logger
	now         func() time.Time
}

// NewTenantService creates a service with the given adapters.
func NewTenantService(
	repo domain.TenantRepository,
	publisher domain.EventPublisher,
	validator domain.TransitionValidator,
	provisioner Provisioner,
	deleter *HardDeletionCoordinator,
	logger *zap.Logger,
) *TenantService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TenantService{
		repo:        repo,
		publisher:   publisher,
		validator:   validator,
		guard:       NewUniquenessGuard(repo),
		provisioner: provisioner,
		deleter:     deleter,
		logger:      logger,
		now:         storedNow,
	}
}

// storedNow is the current time at the millisecond precision the repository
// keeps, so a returned tenant carries the timestamps of its row.
func storedNow() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// Create validates in, claims the slug, runs the provisioning saga and
// records the outcome. A failed saga leaves the tenant SUSPENDED and returns
// it together with a *domain.ProvisioningError.
func (s *TenantService) Create(ctx context.Context, in CreateTenantInput) (domain.Tenant, error) {
	if err := validateInput(in); err != nil {
		return domain.Tenant{}, err
	}

	id, err := generateID()
	if err != nil {
		return domain.Tenant{}, fmt.Errorf("generating tenant id: %w", err)
	}

	tenant := domain.NewTenant(id, in.Name, in.Slug)
	tenant.CreatedAt = s.now()
	tenant.UpdatedAt = tenant.CreatedAt
	if in.Settings != nil {
		tenant.Settings = maps.Clone(in.Settings)
	}
	if in.Theme != nil {
		tenant.Theme = maps.Clone(in.Theme)
	}

	if err := s.guard.Claim(ctx, tenant); err != nil {
		return domain.Tenant{}, err
	}

	log := s.logger.With(zap.String("tenant_id", tenant.ID), zap.String("tenant_slug", tenant.Slug))
	log.Info("tenant claimed, provisioning")

	pc := &provisioning.Context{
		TenantID:    tenant.ID,
		Slug:        tenant.Slug,
		DisplayName: tenant.Name,
		AdminEmail:  in.AdminEmail,
	}
	res := s.provisioner.Provision(ctx, pc)

	for _, w := range res.Warnings {
		log.Warn("provisioning warning", zap.String("step", w.Step), zap.Error(w.Err))
	}

	// The outcome must reach the row even if the caller gave up meanwhile.
	wctx := context.WithoutCancel(ctx)

	if !res.Success {
		provErr := &domain.ProvisioningError{
			Step:         res.FailedStep,
			Cause:        res.Err,
			Compensation: res.CompensationErrors,
		}
		failed, err := s.transition(wctx, tenant, domain.EventFail, nil)
		if err != nil {
			log.Error("recording provisioning failure", zap.Error(err))
			return tenant, provErr
		}
		return failed, provErr
	}

	return s.transition(wctx, tenant, domain.EventActivate, func(t *domain.Tenant) {
		maps.Copy(t.Settings, pc.Settings())
	})
}

// GetByID returns a tenant by its unique identifier.
func (s *TenantService) GetByID(ctx context.Context, id string) (domain.Tenant, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns tenants matching the given filter.
func (s *TenantService) List(ctx context.Context, filter domain.ListFilter) ([]domain.Tenant, error) {
	return s.repo.List(ctx, filter)
}

// CheckSlug reports whether slug could be used for a new tenant right now.
func (s *TenantService) CheckSlug(ctx context.Context, slug string) (SlugAvailability, error) {
	return s.guard.Check(ctx, slug)
}

// AvailableEvents lists the lifecycle events t accepts in its current status.
func (s *TenantService) AvailableEvents(t domain.Tenant) []domain.Event {
	return s.validator.Available(t.Status)
}

// Update applies patch to the tenant. Omitted fields are left untouched and an
// empty patch performs no write.
func (s *TenantService) Update(ctx context.Context, id string, patch domain.TenantPatch) (domain.Tenant, error) {
	if patch.Name != nil {
		if err := validateInput(struct {
			Name string `json:"name" validate:"required,max=255"`
		}{*patch.Name}); err != nil {
			return domain.Tenant{}, err
		}
	}

	tenant, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return domain.Tenant{}, err
	}

	if !patch.Apply(&tenant) {
		return tenant, nil
	}
	tenant.UpdatedAt = s.now()

	if err := s.repo.Update(ctx, tenant, tenant.Status); err != nil {
		return domain.Tenant{}, fmt.Errorf("updating tenant: %w", err)
	}
	return tenant, nil
}

// Suspend moves an ACTIVE tenant to SUSPENDED.
func (s *TenantService) Suspend(ctx context.Context, id string) (domain.Tenant, error) {
	return s.apply(ctx, id, domain.EventSuspend, nil)
}

// Reactivate moves a SUSPENDED tenant back to ACTIVE.
func (s *TenantService) Reactivate(ctx context.Context, id string) (domain.Tenant, error) {
	return s.apply(ctx, id, domain.EventReactivate, nil)
}

// SoftDelete moves the tenant to PENDING_DELETION and schedules its hard
// deletion. A tenant already pending deletion is rejected without a write.
func (s *TenantService) SoftDelete(ctx context.Context, id string) (domain.Tenant, error) {
	return s.apply(ctx, id, domain.EventDelete, func(t *domain.Tenant) {
		at := s.now()
		t.DeletionScheduledAt = &at
	})
}

// HardDelete removes the tenant's external resources and its row. This is
// the only path that frees the slug.
func (s *TenantService) HardDelete(ctx context.Context, id string) (DeletionReport, error) {
	tenant, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return DeletionReport{}, err
	}

	rep, err := s.deleter.Delete(ctx, tenant)
	if err != nil {
		return rep, err
	}

	s.publish(ctx, domain.EventPurge, tenant)
	return rep, nil
}

// apply loads the tenant and runs event against it.
func (s *TenantService) apply(ctx context.Context, id string, event domain.Event, mutate func(*domain.Tenant)) (domain.Tenant, error) {
	tenant, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return domain.Tenant{}, err
	}
	return s.transition(ctx, tenant, event, mutate)
}

// transition validates event against the state machine, then writes the new
// status conditionally on the status it was computed from.
func (s *TenantService) transition(ctx context.Context, tenant domain.Tenant, event domain.Event, mutate func(*domain.Tenant)) (domain.Tenant, error) {
	next, err := s.validator.Apply(ctx, tenant.Status, event)
	if err != nil {
		return domain.Tenant{}, err
	}

	prev := tenant.Status
	tenant.Status = next
	if mutate != nil {
		mutate(&tenant)
	}
	tenant.UpdatedAt = s.now()

	if err := s.repo.Update(ctx, tenant, prev); err != nil {
		return domain.Tenant{}, fmt.Errorf("updating tenant: %w", err)
	}

	s.publish(ctx, event, tenant)
	return tenant, nil
}

// publish emits a lifecycle event. Delivery failures are logged only: the
// row is already the source of truth.
func (s *TenantService) publish(ctx context.Context, event domain.Event, tenant domain.Tenant) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event, tenant); err != nil {
		s.logger.Error("publishing event",
			zap.String("event", string(event)),
			zap.String("tenant_id", tenant.ID),
			zap.Error(err),
		)
	}
}
