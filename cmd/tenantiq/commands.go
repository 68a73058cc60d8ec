package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/plexica/plexica-sub002/internal/adapter/otel"
	"github.com/plexica/plexica-sub002/internal/adapter/river"
	"github.com/plexica/plexica-sub002/internal/adapter/smtp"
	"github.com/plexica/plexica-sub002/internal/domain"
)

// serve runs the API server, the job workers and the periodic deletion sweep
// until SIGINT or SIGTERM.
func (c *cli) serve(cmd *cobra.Command, _ []string) (err error) {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, logger := c.cfg, c.logger

	providers, err := otel.Setup(ctx, otel.ConfigFromEnv())
	if err != nil {
		return fmt.Errorf("setting up telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		err = multierr.Append(err, providers.Shutdown(sctx))
	}()

	db, rows, err := openStore(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	ext, err := connectExternals(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer ext.close()

	repo := otel.NewTracingRepository(rows)
	deleter, sweeper := newDeletion(repo, ext.dependencies(cfg.Storage.BucketPrefix, nil), cfg.Deletion.GracePeriod, logger)

	mailer := smtp.NewMailer(smtp.Config{
		Host:          cfg.SMTP.Host,
		Port:          cfg.SMTP.Port,
		User:          cfg.SMTP.User,
		Password:      cfg.SMTP.Password,
		From:          cfg.SMTP.From,
		FromName:      cfg.SMTP.FromName,
		InviteBaseURL: cfg.Provisioning.InviteBaseURL,
	})

	client, err := river.Setup(ctx, db, river.Deps{
		Mailer:        mailer,
		Purger:        sweeper,
		PurgeInterval: cfg.Deletion.PurgeInterval,
		Logger:        logger.Named("river"),
	})
	if err != nil {
		return fmt.Errorf("setting up job queue: %w", err)
	}

	publisher := otel.NewTracingPublisher(river.NewPublisher(client))
	deps := ext.dependencies(cfg.Storage.BucketPrefix, river.NewInvitationSender(client))
	tenants, members := newServices(db, repo, deps, deleter, publisher, cfg.Provisioning, logger)

	// The client is stopped explicitly below so in-flight jobs can finish.
	if err := client.Start(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("starting job queue: %w", err)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.HTTP.Port,
		Handler:           newRouter(tenants, members, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("listening",
			zap.String("addr", srv.Addr),
			zap.String("docs", "http://localhost:"+cfg.HTTP.Port+"/docs"),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case serveErr = <-errc:
		logger.Error("server failed", zap.Error(serveErr))
	}

	sctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	err = multierr.Combine(
		serveErr,
		srv.Shutdown(sctx),
		client.Stop(sctx),
	)
	logger.Info("stopped")
	return err
}

// migrate applies the tenant schema and River's tables.
func (c *cli) migrate(cmd *cobra.Command, _ []string) error {
	db, _, err := openStore(c.cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	if _, err := river.Setup(cmd.Context(), db, river.Deps{Logger: c.logger.Named("river")}); err != nil {
		return fmt.Errorf("migrating job queue: %w", err)
	}

	c.logger.Info("migrations applied", zap.String("database", c.cfg.Database.Path))
	fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
	return nil
}

// purge runs one deletion sweep and queues a purge event per removed tenant.
// The events are delivered the next time a server starts.
func (c *cli) purge(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, logger := c.cfg, c.logger

	db, rows, err := openStore(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	ext, err := connectExternals(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer ext.close()

	_, sweeper := newDeletion(rows, ext.dependencies(cfg.Storage.BucketPrefix, nil), cfg.Deletion.GracePeriod, logger)

	client, err := river.Setup(ctx, db, river.Deps{Logger: logger.Named("river")})
	if err != nil {
		return fmt.Errorf("setting up job queue: %w", err)
	}

	return runPurge(ctx, sweeper, river.NewPublisher(client), cmd.OutOrStdout(), logger)
}

func runPurge(ctx context.Context, sweeper river.Purger, publisher domain.EventPublisher, out io.Writer, logger *zap.Logger) error {
	purged, err := sweeper.Purge(ctx, time.Now().UTC())

	for _, t := range purged {
		if perr := publisher.Publish(ctx, domain.EventPurge, t); perr != nil {
			logger.Warn("queueing purge event", zap.String("tenant_id", t.ID), zap.Error(perr))
		}
	}

	fmt.Fprintf(out, "purged %d tenant(s)\n", len(purged))
	if err != nil {
		return fmt.Errorf("purge incomplete: %w", err)
	}
	return nil
}
