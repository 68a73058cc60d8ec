package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/plexica/plexica-sub002/internal/config"
)

const version = "0.1.0"

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// cli holds what every subcommand needs once flags are parsed.
type cli struct {
	cfg    *config.Config
	logger *zap.Logger

	databasePath string
	port         string
}

func newRootCommand() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:               "tenantiq",
		Short:             "Tenant provisioning and lifecycle service",
		Version:           version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.setup,
		PersistentPostRun: c.teardown,
		RunE:              c.serve,
	}
	root.PersistentFlags().StringVar(&c.databasePath, "database-path", "", "path to the SQLite database (overrides DATABASE_PATH)")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the background workers",
		Args:  cobra.NoArgs,
		RunE:  c.serve,
	}
	serve.Flags().StringVar(&c.port, "port", "", "HTTP port (overrides PORT)")

	root.AddCommand(
		serve,
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply database and job queue migrations, then exit",
			Args:  cobra.NoArgs,
			RunE:  c.migrate,
		},
		&cobra.Command{
			Use:   "purge",
			Short: "Hard-delete every tenant whose deletion grace period has elapsed",
			Long: `Runs one deletion sweep outside the server. Tenants soft-deleted longer
ago than DELETION_GRACE_PERIOD have their identity realm, database schema and
storage bucket removed, then their row is deleted and the slug becomes free.`,
			Args: cobra.NoArgs,
			RunE: c.purge,
		},
	)
	return root
}

func (c *cli) setup(*cobra.Command, []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if c.databasePath != "" {
		cfg.Database.Path = c.databasePath
	}
	if c.port != "" {
		cfg.HTTP.Port = c.port
	}

	logger, err := config.NewLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}

	c.cfg = cfg
	c.logger = logger.With(zap.String("service", "tenantiq"))
	return nil
}

func (c *cli) teardown(*cobra.Command, []string) {
	if c.logger != nil {
		_ = c.logger.Sync()
	}
}
