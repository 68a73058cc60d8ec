package river

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riversqlite"
	"github.com/riverqueue/river/rivermigrate"
	"go.uber.org/zap"

	"github.com/plexica/plexica-sub002/internal/domain"
)

// Deps are the collaborators the workers call into. All fields are optional:
// a nil Mailer drops invitations, a nil Purger disables the sweep.
type Deps struct {
	Mailer domain.InvitationSender
	Purger Purger

	// PurgeInterval schedules the deletion sweep as a periodic job. Zero
	// disables the schedule.
	PurgeInterval time.Duration

	Logger *zap.Logger
}

// Setup creates a River client with the workers registered and runs River's
// internal migrations. The caller must call client.Start() to begin
// processing jobs and client.Stop() for graceful shutdown. Jobs can be
// inserted without starting the client.
func Setup(ctx context.Context, db *sql.DB, deps Deps) (*Client, error) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	driver := riversqlite.New(db)

	// River's own tables (river_job, river_leader, ...) are separate from the
	// app's goose migrations.
	migrator, err := rivermigrate.New(driver, nil)
	if err != nil {
		return nil, fmt.Errorf("creating river migrator: %w", err)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		return nil, fmt.Errorf("running river migrations: %w", err)
	}

	workers := river.NewWorkers()
	river.AddWorker(workers, &EventWorker{logger: logger})
	river.AddWorker(workers, &InvitationWorker{mailer: deps.Mailer, logger: logger})
	river.AddWorker(workers, &PurgeWorker{purger: deps.Purger, logger: logger})

	var periodic []*river.PeriodicJob
	if deps.Purger != nil && deps.PurgeInterval > 0 {
		periodic = append(periodic, river.NewPeriodicJob(
			river.PeriodicInterval(deps.PurgeInterval),
			func() (river.JobArgs, *river.InsertOpts) {
				return PurgeJobArgs{}, nil
			},
			&river.PeriodicJobOpts{RunOnStart: true},
		))
	}

	client, err := river.NewClient(driver, &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 2},
		},
		Workers:      workers,
		PeriodicJobs: periodic,
	})
	if err != nil {
		return nil, fmt.Errorf("creating river client: %w", err)
	}

	logger.Info("river client ready",
		zap.Bool("purge_scheduled", len(periodic) > 0),
		zap.Duration("purge_interval", deps.PurgeInterval),
	)
	return client, nil
}
