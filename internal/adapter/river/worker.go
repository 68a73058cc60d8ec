package river

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"github.com/plexica/plexica-sub002/internal/domain"
)

// EventWorker processes domain event jobs from the River queue.
// For now it logs the event; webhooks or audit sinks would hook in here.
type EventWorker struct {
	river.WorkerDefaults[EventJobArgs]

	logger *zap.Logger
}

// Work processes a single event job.
func (w *EventWorker) Work(ctx context.Context, job *river.Job[EventJobArgs]) error {
	w.logger.Info("processing event",
		zap.String("event", job.Args.Event),
		zap.String("tenant_id", job.Args.TenantID),
		zap.String("tenant_slug", job.Args.Slug),
		zap.String("tenant_status", job.Args.Status),
		zap.Int64("job_id", job.ID),
		zap.Int("attempt", job.Attempt),
	)
	return nil
}

// Purger hard-deletes tenants whose deletion grace period has elapsed and
// returns the ones it removed.
type Purger interface {
	Purge(ctx context.Context, now time.Time) ([]domain.Tenant, error)
}

// PurgeJobArgs triggers one deletion sweep.
type PurgeJobArgs struct{}

func (PurgeJobArgs) Kind() string { return "tenant.purge" }

// PurgeWorker runs the deletion sweep and publishes a purge event for every
// tenant it removed.
type PurgeWorker struct {
	river.WorkerDefaults[PurgeJobArgs]

	purger Purger
	logger *zap.Logger
}

// Work runs a sweep. Tenants purged before a failure are still announced; the
// failure itself makes River retry the job.
func (w *PurgeWorker) Work(ctx context.Context, job *river.Job[PurgeJobArgs]) error {
	if w.purger == nil {
		return nil
	}

	purged, err := w.purger.Purge(ctx, time.Now().UTC())

	client, cerr := river.ClientFromContextSafely[*sql.Tx](ctx)
	for _, t := range purged {
		if cerr != nil {
			break
		}
		if perr := insertEvent(ctx, client, domain.EventPurge, t); perr != nil {
			w.logger.Error("publishing purge event", zap.String("tenant_id", t.ID), zap.Error(perr))
		}
	}

	w.logger.Info("deletion sweep finished",
		zap.Int("purged", len(purged)),
		zap.Int64("job_id", job.ID),
		zap.Error(err),
	)
	if err != nil {
		return fmt.Errorf("purging tenants: %w", err)
	}
	return nil
}
