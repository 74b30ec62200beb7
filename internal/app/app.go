// Package app wires the application together and exposes its operational
// modes: the relay itself, a standalone reconciliation pass, and the
// health endpoint.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/delagostini-bot/Telegram-Share-Bot/internal/dashboard"
	"github.com/delagostini-bot/Telegram-Share-Bot/internal/pipeline"
	"github.com/delagostini-bot/Telegram-Share-Bot/internal/platform/config"
	"github.com/delagostini-bot/Telegram-Share-Bot/internal/platform/observability"
	"github.com/delagostini-bot/Telegram-Share-Bot/internal/platform/worker"
	"github.com/delagostini-bot/Telegram-Share-Bot/internal/registry"
	"github.com/delagostini-bot/Telegram-Share-Bot/internal/stats"
	db "github.com/delagostini-bot/Telegram-Share-Bot/internal/storage"
	"github.com/delagostini-bot/Telegram-Share-Bot/internal/telegram"
)

const (
	maintenanceInterval = time.Hour
	pruneLockID         = int64(94117)
	pruneTimeout        = time.Minute
)

// App holds the application dependencies and provides methods to run
// different modes.
type App struct {
	cfg      *config.Config
	database *db.DB
	logger   *zerolog.Logger
}

func New(cfg *config.Config, database *db.DB, logger *zerolog.Logger) *App {
	return &App{
		cfg:      cfg,
		database: database,
		logger:   logger,
	}
}

// StartHealthServer starts the health check and metrics server.
func (a *App) StartHealthServer(ctx context.Context) error {
	srv := observability.NewServer(a.database, a.cfg.HealthPort, a.logger)

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("health server start: %w", err)
	}

	return nil
}

// RunBot runs the relay: the forwarding loop under its supervisor, the
// dashboard API, and the background maintenance loop.
func (a *App) RunBot(ctx context.Context) error {
	a.logger.Info().Msg("Starting relay mode")

	settings, err := a.loadRuntime(ctx)
	if err != nil {
		return err
	}

	client, err := telegram.NewClient(a.cfg.BotToken, a.cfg.BackupGroupID, a.cfg.TransportRPS, a.logger)
	if err != nil {
		return err
	}

	reg := a.newRegistry(client, settings)
	if err := reg.Load(ctx); err != nil {
		return err
	}

	if a.cfg.ListerEnabled() {
		if err := a.reconcile(ctx, reg); err != nil {
			// A failed reconciliation pass is not fatal; persisted bindings
			// still hold and the pass reruns on the next start.
			a.logger.Warn().Err(err).Msg("startup reconciliation failed")
		}
	}

	aggregator := stats.NewAggregator()

	seed, err := a.database.ListActivitySince(ctx, time.Time{})
	if err != nil {
		return fmt.Errorf("seed statistics: %w", err)
	}

	aggregator.Seed(seed)

	pipe := pipeline.New(pipeline.Config{
		MaxAttempts: a.cfg.RetryMaxAttempts,
		BaseDelay:   a.cfg.RetryBaseDelay,
		PoolSize:    a.cfg.WorkerPoolSize,
	}, settings, client, reg, a.database, aggregator, classifyTransportError, a.logger)

	supervisor := dashboard.NewSupervisor(func(runCtx context.Context) error {
		return pipe.Run(runCtx, client.Events(runCtx))
	}, a.logger)

	if err := supervisor.Start(ctx); err != nil {
		return fmt.Errorf("start relay loop: %w", err)
	}

	server := dashboard.NewServer(a.cfg.DashboardAddr, reg, a.database, a.database, aggregator, settings, supervisor, a.logger)

	g, groupCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return server.Start(groupCtx)
	})

	g.Go(func() error {
		return worker.Loop(groupCtx, worker.Config{
			Name: "maintenance",
			// An initial pass trims a log that grew while the process was down.
			RunOnStart: true,
			Logger:     a.logger,
			Tasks: []worker.Task{
				{
					Name:     "prune-activity-log",
					Interval: maintenanceInterval,
					Run:      a.pruneActivityLog,
				},
				{
					Name:     "refresh-topic-gauge",
					Interval: maintenanceInterval,
					Run: func(context.Context) {
						observability.TopicsKnown.Set(float64(reg.Len()))
					},
				},
			},
		})
	})

	err = g.Wait()

	if stopErr := supervisor.Stop(); stopErr != nil && !errors.Is(stopErr, dashboard.ErrNotRunning) {
		a.logger.Warn().Err(stopErr).Msg("relay loop stop failed")
	}

	return err
}

// RunReconcile runs a single reconciliation pass and exits. Requires the
// MTProto credentials.
func (a *App) RunReconcile(ctx context.Context) error {
	a.logger.Info().Msg("Starting reconcile mode")

	if !a.cfg.ListerEnabled() {
		return errors.New("reconcile mode requires TG_API_ID and TG_API_HASH")
	}

	settings, err := a.loadRuntime(ctx)
	if err != nil {
		return err
	}

	client, err := telegram.NewClient(a.cfg.BotToken, a.cfg.BackupGroupID, a.cfg.TransportRPS, a.logger)
	if err != nil {
		return err
	}

	reg := a.newRegistry(client, settings)
	if err := reg.Load(ctx); err != nil {
		return err
	}

	if err := a.reconcile(ctx, reg); err != nil {
		return err
	}

	a.logger.Info().Int("topics", reg.Len()).Msg("reconciliation complete")

	return nil
}

// loadRuntime builds the runtime settings record from the environment and
// layers persisted dashboard overrides on top.
func (a *App) loadRuntime(ctx context.Context) (*config.Store, error) {
	runtime := a.cfg.Runtime()

	var overrides dashboard.RuntimeOverrides
	if err := a.database.GetSetting(ctx, dashboard.RuntimeSettingsKey, &overrides); err != nil {
		return nil, fmt.Errorf("load runtime overrides: %w", err)
	}

	return config.NewStore(overrides.Apply(runtime)), nil
}

func (a *App) newRegistry(client *telegram.Client, settings *config.Store) *registry.Registry {
	thresholdFn := func() float64 {
		return settings.Snapshot().SimilarityThreshold
	}

	return registry.New(a.database, client, thresholdFn, a.cfg.TopicCreateTimeout, a.logger)
}

func (a *App) reconcile(ctx context.Context, reg *registry.Registry) error {
	lister := telegram.NewLister(telegram.ListerConfig{
		APIID:       a.cfg.TGAPIID,
		APIHash:     a.cfg.TGAPIHash,
		Phone:       a.cfg.TGPhone,
		TwoFAPass:   a.cfg.TG2FAPassword,
		SessionPath: a.cfg.TGSessionPath,
	}, a.cfg.BackupGroupID, a.logger)

	return reg.Reconcile(ctx, listerAdapter{lister})
}

// listerAdapter bridges the transport's topic listing to the registry's
// reconciliation interface.
type listerAdapter struct {
	lister *telegram.Lister
}

func (l listerAdapter) ListExistingTopics(ctx context.Context) ([]registry.RemoteTopic, error) {
	remote, err := l.lister.ListExistingTopics(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]registry.RemoteTopic, 0, len(remote))
	for _, rt := range remote {
		out = append(out, registry.RemoteTopic{ThreadID: rt.ThreadID, Name: rt.Name})
	}

	return out, nil
}

// pruneActivityLog trims the forwarding log under an advisory lock so
// concurrent replicas do not prune the same rows.
func (a *App) pruneActivityLog(ctx context.Context) {
	pruneCtx, cancel := context.WithTimeout(ctx, pruneTimeout)
	defer cancel()

	acquired, err := a.database.TryAcquireAdvisoryLock(pruneCtx, pruneLockID)
	if err != nil {
		a.logger.Warn().Err(err).Msg("activity prune lock failed")
		return
	}

	if !acquired {
		return
	}

	defer func() {
		if err := a.database.ReleaseAdvisoryLock(pruneCtx, pruneLockID); err != nil {
			a.logger.Warn().Err(err).Msg("release activity prune lock failed")
		}
	}()

	removed, err := a.database.PruneActivity(pruneCtx)
	if err != nil {
		a.logger.Warn().Err(err).Msg("activity prune failed")
		return
	}

	if removed > 0 {
		a.logger.Info().Int64("removed", removed).Msg("activity log pruned")
	}
}

// classifyTransportError maps transport failures onto the pipeline's
// retry taxonomy.
func classifyTransportError(err error) pipeline.Failure {
	kind := telegram.ClassifyError(err)

	failure := pipeline.Failure{Permanent: kind == telegram.FailurePermanent}
	if kind == telegram.FailureRateLimited {
		failure.RetryAfter = telegram.RetryAfter(err)
	}

	return failure
}
