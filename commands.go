package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"sync"
	"syscall"

	"github.com/CHINMAYKUDALKAR/LINE-sub002/app/events"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/app/logging"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/config"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/models"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/seeds"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	cfg       *config.ProductionConfig
	logger    *slog.Logger
	logCloser io.Closer
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:          "dispatch",
		Short:        "Outbound candidate messaging for the ATS",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadProductionConfig()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			opts.cfg = cfg
			opts.logger, opts.logCloser = logging.New(cfg.Logging)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.logCloser != nil {
				_ = opts.logCloser.Close()
			}
		},
	}

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newWorkerCommand(opts))
	cmd.AddCommand(newSchedulerCommand(opts))
	cmd.AddCommand(newMigrateCommand(opts))
	cmd.AddCommand(newSeedCommand(opts))

	return cmd
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

// background runs fn in a goroutine and records its error
type background struct {
	wg   sync.WaitGroup
	mu   sync.Mutex
	errs []error
}

func (b *background) Go(fn func() error) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		if err := fn(); err != nil {
			b.mu.Lock()
			b.errs = append(b.errs, err)
			b.mu.Unlock()
		}
	}()
}

func (b *background) Wait() error {
	b.wg.Wait()
	if len(b.errs) > 0 {
		return b.errs[0]
	}
	return nil
}

// startConsumers launches the queue worker and, when enabled, the automation consumer
func startConsumers(ctx context.Context, app *Application, bg *background) {
	bg.Go(func() error { return app.runWorker(ctx) })

	if app.cfg.Kafka.Enabled {
		reader := events.NewReader(app.cfg.Kafka)
		consumer := events.NewAutomationConsumer(app.cfg.Kafka.Topic, reader, app.automationFlow, logging.Component(app.logger, "automation_consumer"))
		bg.Go(func() error {
			if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
}

func newServeCommand(opts *rootOptions) *cobra.Command {
	var embedWorker bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long:  "Run the HTTP API. With the memory queue backend the worker always runs in-process.",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := initializeApplication(opts.cfg, opts.logger)
			if err != nil {
				return err
			}
			defer app.Close()

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			bg := &background{}
			if embedWorker || opts.cfg.Queue.Backend == "memory" {
				startConsumers(ctx, app, bg)
			}
			if opts.cfg.Scheduler.Enabled {
				stopScheduler, err := app.scheduler.Start(ctx)
				if err != nil {
					return fmt.Errorf("failed to start scheduler: %w", err)
				}
				defer stopScheduler()
			}

			r := app.newRouter()
			r.SetupRoutes()

			address := fmt.Sprintf("%s:%d", opts.cfg.Server.Host, opts.cfg.Server.Port)
			listenErr := make(chan error, 1)
			go func() {
				opts.logger.Info("Server starting", "address", address)
				listenErr <- r.Start(address)
			}()

			select {
			case err := <-listenErr:
				stop()
				_ = bg.Wait()
				return fmt.Errorf("server stopped: %w", err)
			case <-ctx.Done():
			}

			opts.logger.Info("Shutting down gracefully")
			if err := r.Shutdown(opts.cfg.Server.ShutdownTimeout); err != nil {
				opts.logger.Error("Error during shutdown", "error", err)
			}
			if err := bg.Wait(); err != nil {
				return err
			}
			opts.logger.Info("Server stopped")
			return nil
		},
	}

	cmd.Flags().BoolVar(&embedWorker, "with-worker", false, "also run the queue worker and automation consumer in this process")
	return cmd
}

func newWorkerCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Deliver queued messages and consume automation events",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.cfg.Queue.Backend == "memory" {
				return fmt.Errorf("a standalone worker needs QUEUE_BACKEND=redis")
			}
			app, err := initializeApplication(opts.cfg, opts.logger)
			if err != nil {
				return err
			}
			defer app.Close()

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			bg := &background{}
			startConsumers(ctx, app, bg)
			<-ctx.Done()
			opts.logger.Info("Worker stopping")
			return bg.Wait()
		},
	}
}

func newSchedulerCommand(opts *rootOptions) *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "scheduler",
		Short: "Promote due scheduled messages onto the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.cfg.Queue.Backend == "memory" {
				return fmt.Errorf("a standalone scheduler needs QUEUE_BACKEND=redis")
			}
			app, err := initializeApplication(opts.cfg, opts.logger)
			if err != nil {
				return err
			}
			defer app.Close()

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			if once {
				res := app.scheduler.RunOnce(ctx)
				fmt.Fprintf(cmd.OutOrStdout(), "due=%d promoted=%d failed=%d\n", res.Due, res.Promoted, res.Failed)
				return nil
			}

			stopScheduler, err := app.scheduler.Start(ctx)
			if err != nil {
				return fmt.Errorf("failed to start scheduler: %w", err)
			}
			<-ctx.Done()
			stopScheduler()
			return nil
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "run a single sweep and exit")
	return cmd
}

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := initializeDatabase(opts.cfg.Database, logging.Component(opts.logger, "database"))
			if err != nil {
				return err
			}
			if sqlDB, err := db.DB(); err == nil {
				defer sqlDB.Close()
			}
			if err := models.Migrate(db); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			opts.logger.Info("Schema migrated", "models", len(models.DomainModels()))
			return nil
		},
	}
}

func newSeedCommand(opts *rootOptions) *cobra.Command {
	var tenantSlug string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Install the built-in system templates for tenants",
		RunE: func(cmd *cobra.Command, args []string) error {
			defs, err := seeds.LoadSystemTemplates()
			if err != nil {
				return err
			}
			app, err := initializeApplication(opts.cfg, opts.logger)
			if err != nil {
				return err
			}
			defer app.Close()

			seeder := seeds.NewSeeder(app.tenantRepo, app.templateRepo, app.renderer, logging.Component(opts.logger, "seeds"))
			results, err := seeder.SeedAll(cmd.Context(), tenantSlug, defs)
			for _, r := range results {
				fmt.Fprintf(cmd.OutOrStdout(), "tenant=%d created=%d existing=%d\n", r.TenantID, r.Created, r.Existing)
			}
			return err
		},
	}

	cmd.Flags().StringVar(&tenantSlug, "tenant", "", "seed only the tenant with this slug")
	return cmd
}
