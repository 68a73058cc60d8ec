package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/plexica/plexica-sub002/internal/domain"
)

// DeletionReport lists cleanup failures that did not stop a hard delete.
type DeletionReport struct {
	Realm  string
	Schema string
	Bucket string
	// BucketErr is set when the bucket could not be removed. The row is
	// deleted anyway and the bucket must be cleaned up out of band.
	BucketErr error
}

// HardDeletionCoordinator permanently removes a tenant's external resources
// and then its row.
//
// Realm and schema failures abort the delete and keep the row, so an operator
// can retry. A bucket failure is recorded in the report and the row is still
// deleted. The row always goes last.
type HardDeletionCoordinator struct {
	repo         domain.TenantRepository
	identity     domain.IdentityProvider
	schemas      domain.SchemaAdmin
	storage      domain.ObjectStorage
	bucketPrefix string
	logger       *zap.Logger
}

// NewHardDeletionCoordinator wires the coordinator to the systems it cleans up.
func NewHardDeletionCoordinator(
	repo domain.TenantRepository,
	identity domain.IdentityProvider,
	schemas domain.SchemaAdmin,
	storage domain.ObjectStorage,
	bucketPrefix string,
	logger *zap.Logger,
) *HardDeletionCoordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HardDeletionCoordinator{
		repo:         repo,
		identity:     identity,
		schemas:      schemas,
		storage:      storage,
		bucketPrefix: bucketPrefix,
		logger:       logger,
	}
}

// Delete removes t's realm, schema and bucket, then its row.
func (c *HardDeletionCoordinator) Delete(ctx context.Context, t domain.Tenant) (DeletionReport, error) {
	rep := DeletionReport{
		Realm:  resourceName(t, "identity_realm", domain.RealmName(t.Slug)),
		Schema: resourceName(t, "database_schema", domain.SchemaName(t.Slug)),
		Bucket: resourceName(t, "storage_bucket", domain.BucketName(c.bucketPrefix, t.Slug)),
	}
	log := c.logger.With(zap.String("tenant_id", t.ID), zap.String("tenant_slug", t.Slug))

	if err := c.identity.DeleteRealm(ctx, rep.Realm); err != nil {
		return rep, fmt.Errorf("deleting realm %s: %w", rep.Realm, err)
	}

	if err := c.schemas.DropSchema(ctx, rep.Schema); err != nil {
		return rep, fmt.Errorf("dropping schema %s: %w", rep.Schema, err)
	}

	if err := c.storage.RemoveBucket(ctx, rep.Bucket); err != nil {
		rep.BucketErr = err
		log.Warn("bucket cleanup failed, deleting tenant anyway",
			zap.String("bucket", rep.Bucket), zap.Error(err))
	}

	if err := c.repo.Delete(ctx, t.ID); err != nil {
		return rep, fmt.Errorf("deleting tenant row: %w", err)
	}

	log.Info("tenant hard-deleted")
	return rep, nil
}

// resourceName prefers the name recorded at provisioning time and falls back
// to the derived one for tenants that never finished provisioning.
func resourceName(t domain.Tenant, key, derived string) string {
	if v, ok := t.Settings[key].(string); ok && v != "" {
		return v
	}
	return derived
}

// Sweeper hard-deletes tenants whose soft-delete grace period has elapsed.
type Sweeper struct {
	repo    domain.TenantRepository
	deleter *HardDeletionCoordinator
	grace   time.Duration
	logger  *zap.Logger
}

// NewSweeper returns a sweeper purging tenants grace after their soft delete.
func NewSweeper(repo domain.TenantRepository, deleter *HardDeletionCoordinator, grace time.Duration, logger *zap.Logger) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{repo: repo, deleter: deleter, grace: grace, logger: logger}
}

// Purge hard-deletes every due tenant and returns the ones removed. A tenant
// that fails is skipped; all failures are combined in the returned error.
func (s *Sweeper) Purge(ctx context.Context, now time.Time) ([]domain.Tenant, error) {
	cutoff := now.Add(-s.grace)
	due, err := s.repo.List(ctx, domain.ListFilter{DeletionDueBefore: &cutoff})
	if err != nil {
		return nil, fmt.Errorf("listing tenants due for deletion: %w", err)
	}

	purged := make([]domain.Tenant, 0, len(due))
	var errs error
	for _, t := range due {
		if err := ctx.Err(); err != nil {
			return purged, multierr.Append(errs, err)
		}
		if _, err := s.deleter.Delete(ctx, t); err != nil {
			s.logger.Error("purging tenant failed", zap.String("tenant_id", t.ID), zap.Error(err))
			errs = multierr.Append(errs, fmt.Errorf("tenant %s: %w", t.ID, err))
			continue
		}
		purged = append(purged, t)
	}

	s.logger.Info("deletion sweep finished",
		zap.Int("due", len(due)),
		zap.Int("purged", len(purged)),
	)
	return purged, errs
}
