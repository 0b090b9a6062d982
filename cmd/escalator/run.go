package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/kneutral-org/escalator/internal/alert"
	"github.com/kneutral-org/escalator/internal/api"
	"github.com/kneutral-org/escalator/internal/catalog"
	"github.com/kneutral-org/escalator/internal/command"
	"github.com/kneutral-org/escalator/internal/condition"
	"github.com/kneutral-org/escalator/internal/config"
	"github.com/kneutral-org/escalator/internal/escalation"
	"github.com/kneutral-org/escalator/internal/lock"
	"github.com/kneutral-org/escalator/internal/logging"
	"github.com/kneutral-org/escalator/internal/macro"
	"github.com/kneutral-org/escalator/internal/maintenance"
	"github.com/kneutral-org/escalator/internal/notify"
)

const shutdownTimeout = 30 * time.Second

func runCmd(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the escalation workers and the ops servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(config.New(), *configFile)
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			a, err := newApp(cfg, logger)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.run(ctx)
		},
	}
}

func checkConfigCmd(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Validate the configuration and print the effective worker layout",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(config.New(), *configFile)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "configuration ok: %d partitions, running %v every %s\n",
				cfg.Workers, cfg.WorkerIndexes(), cfg.Interval)
			return nil
		},
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg.Environment == "development" {
		return logging.NewPrettyLogger("escalator", cfg.LogLevel)
	}
	return logging.NewLogger("escalator", cfg.LogLevel)
}

// app holds the wired escalator: its workers and the servers exposing it.
type app struct {
	cfg     *config.Config
	logger  zerolog.Logger
	db      *sql.DB
	workers []*escalation.Worker
	leases  []*lock.Lease
	router  *gin.Engine
	health  *health.Server
	grpc    *grpc.Server
}

type stores struct {
	catalog     catalog.Store
	escalations escalation.Store
	ledger      alert.Ledger
	maintenance maintenance.Store
}

func newApp(cfg *config.Config, logger zerolog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	s, err := a.openStores()
	if err != nil {
		return nil, err
	}
	catalogStore := catalog.NewCachedStore(s.catalog, cfg.CacheTTL, logger)

	expressions, err := condition.NewExpressionEvaluator(cfg.CELCacheSize)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("create expression evaluator: %w", err)
	}
	matcher := condition.NewMatcher(catalogStore, condition.NewChecker(expressions, logger))

	executor := command.NewDefaultExecutor(nil, logger)
	registerCommandHandlers(executor, cfg.DryRunCommands, logger)

	dispatcher := notify.NewDispatcher(catalogStore, s.ledger, macro.NewSimple(), executor, logger,
		notify.WithMaxRetries(cfg.AlertMaxRetries))
	checker := maintenance.NewChecker(s.maintenance, logger, maintenance.WithCacheTTL(time.Second))

	gate := escalation.NewGate(catalogStore, checker, logger)
	machine := escalation.NewMachine(catalogStore, matcher, dispatcher, logger,
		escalation.WithSleepReschedule(cfg.SleepReschedule))
	processor := escalation.NewProcessor(s.escalations, catalogStore, gate, machine, logger)

	for _, index := range cfg.WorkerIndexes() {
		var opts []escalation.WorkerOption
		if a.db != nil && cfg.PartitionLocks {
			lease := lock.NewLease(lock.NewAdvisoryLock(a.db, lock.PartitionKey(cfg.Workers, index)),
				logger.With().Int("worker", index).Logger(),
				lock.WithRenewalRate(cfg.LeaseRenewal),
				lock.WithRetryBackoff(cfg.Interval))
			a.leases = append(a.leases, lease)
			opts = append(opts, escalation.WithLease(lease))
		}
		a.workers = append(a.workers, escalation.NewWorker(processor, cfg.Workers, index, cfg.Interval, logger, opts...))
	}

	if cfg.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	a.router = api.NewRouter(api.RouterConfig{
		Logger:       logger,
		Maintenance:  api.NewHandler(s.maintenance, checker, catalogStore, logger),
		Catalog:      api.NewCatalogHandler(catalogStore, logger),
		Ready:        a.ready,
		AdminSecret:  cfg.AdminSecret,
		MaxBodyBytes: cfg.MaxBodyBytes,
	})

	a.health = health.NewServer()
	a.grpc = grpc.NewServer(
		grpc.ChainUnaryInterceptor(logging.GRPCLogger(logger)),
		grpc.ChainStreamInterceptor(logging.GRPCStreamLogger(logger)),
	)
	healthpb.RegisterHealthServer(a.grpc, a.health)
	return a, nil
}

func (a *app) openStores() (*stores, error) {
	if a.cfg.UseMemoryStores {
		a.logger.Warn().Msg("using in-memory stores; state is lost on restart")
		return &stores{
			catalog:     catalog.NewMemoryStore(),
			escalations: escalation.NewMemoryStore(),
			ledger:      alert.NewMemoryLedger(),
			maintenance: maintenance.NewMemoryStore(),
		}, nil
	}

	db, err := sql.Open("pgx", a.cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	a.db = db
	return &stores{
		catalog:     catalog.NewPostgresStore(db),
		escalations: escalation.NewPostgresStore(db),
		ledger:      alert.NewPostgresLedger(db),
		maintenance: maintenance.NewPostgresStore(db),
	}, nil
}

func registerCommandHandlers(executor *command.DefaultExecutor, dryRun bool, logger zerolog.Logger) {
	if dryRun {
		handler := command.DryRunHandler(logger)
		for _, t := range []catalog.ScriptType{catalog.ScriptCustom, catalog.ScriptIPMI, catalog.ScriptSSH, catalog.ScriptTelnet, catalog.ScriptGlobal} {
			executor.Register(t, handler)
		}
		return
	}
	executor.Register(catalog.ScriptCustom, command.ShellHandler())
	executor.Register(catalog.ScriptGlobal, command.ShellHandler())
}

func (a *app) ready(ctx context.Context) error {
	if a.db == nil {
		return nil
	}
	return a.db.PingContext(ctx)
}

// run starts every worker and server and blocks until ctx is cancelled or one of them fails.
func (a *app) run(ctx context.Context) error {
	lis, err := net.Listen("tcp", ":"+a.cfg.GRPCPort)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}

	g, gCtx := errgroup.WithContext(ctx)

	for _, l := range a.leases {
		l := l
		g.Go(func() error { return l.Run(gCtx) })
	}
	for _, w := range a.workers {
		w := w
		g.Go(func() error { return w.Run(gCtx) })
	}

	srv := &http.Server{
		Addr:         ":" + a.cfg.HTTPPort,
		Handler:      a.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	g.Go(func() error {
		a.logger.Info().Str("port", a.cfg.HTTPPort).Msg("starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	a.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	a.health.SetServingStatus("escalator", healthpb.HealthCheckResponse_SERVING)
	g.Go(func() error {
		a.logger.Info().Str("port", a.cfg.GRPCPort).Msg("starting gRPC server")
		if err := a.grpc.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		a.logger.Info().Msg("shutting down")
		a.health.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.grpc.GracefulStop()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		a.logger.Error().Err(err).Msg("escalator exited with error")
		return err
	}
	a.logger.Info().Msg("escalator exited properly")
	return nil
}

func (a *app) close() {
	if a.db == nil {
		return
	}
	if err := a.db.Close(); err != nil {
		fmt.Fprintln(os.Stderr, "close database:", err)
	}
}
