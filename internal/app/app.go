// Package app wires deckhand's subsystems together and runs them until
// shutdown.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/deckhand-sh/deckhand/internal/broadcast"
	"github.com/deckhand-sh/deckhand/internal/compose"
	"github.com/deckhand-sh/deckhand/internal/config"
	"github.com/deckhand-sh/deckhand/internal/dockerlogs"
	"github.com/deckhand-sh/deckhand/internal/gateway"
	"github.com/deckhand-sh/deckhand/internal/healthcheck"
	"github.com/deckhand-sh/deckhand/internal/metrics"
	"github.com/deckhand-sh/deckhand/internal/notify"
	"github.com/deckhand-sh/deckhand/internal/ops"
	"github.com/deckhand-sh/deckhand/internal/runner"
	"github.com/deckhand-sh/deckhand/internal/server"
	"github.com/deckhand-sh/deckhand/internal/status"
	"github.com/deckhand-sh/deckhand/internal/stream"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const notifyTimeout = 30 * time.Second

// App holds the wired subsystems.
type App struct {
	logger      zerolog.Logger
	cfg         config.Config
	registry    *ops.Registry
	broadcaster *broadcast.Broadcaster
	streams     *stream.Coordinator
	statuses    *status.Cache
	gateway     *gateway.Gateway
	collector   *metrics.Metrics
	tracker     *healthcheck.Tracker
	notifier    notify.Notifier
	docker      *dockerlogs.Client
	housekeeper *runner.Runner
}

// New wires all subsystems from configuration. The returned App owns the
// Docker client; Run closes it on shutdown.
func New(ctx context.Context, logger zerolog.Logger, cfg config.Config) (*App, error) {
	a := &App{
		logger:    logger,
		cfg:       cfg,
		collector: metrics.New(),
		tracker:   healthcheck.NewTracker(),
	}

	a.broadcaster = broadcast.New(logger, broadcast.WithRecorder(a.collector))
	a.streams = stream.NewCoordinator(logger, stream.WithRecorder(a.collector))

	notifier, err := buildNotifier(logger, cfg)
	if err != nil {
		return nil, err
	}
	a.notifier = notifier

	a.registry = ops.NewRegistry(logger,
		ops.WithTransitionHook(func(payload ops.Progress) {
			a.broadcaster.Publish(payload.OperationID, payload)
		}),
		ops.WithTransitionHook(func(payload ops.Progress) {
			if payload.Status.Terminal() {
				go a.operationFinished(payload.OperationID)
			}
		}),
	)

	a.statuses = status.NewCache(logger)
	if err := a.loadProjects(ctx); err != nil {
		return nil, err
	}

	docker, err := dockerlogs.NewClient(cfg.DockerHost, dockerlogs.TLSOptions{
		CAFile:   cfg.DockerTLSCA,
		CertFile: cfg.DockerTLSCert,
		KeyFile:  cfg.DockerTLSKey,
	}, cfg.DockerTimeout)
	if err != nil {
		return nil, fmt.Errorf("docker client: %w", err)
	}
	a.docker = docker

	a.gateway = gateway.New(logger, a.registry, a.streams, a.broadcaster, a.statuses, docker)

	a.housekeeper = runner.New(logger, cfg.PingInterval,
		runner.WithRegistry(a.registry, cfg.EvictionHorizon, cfg.EvictionInterval),
		runner.WithPinger(docker),
		runner.WithTracker(a.tracker),
		runner.WithMetrics(a.collector),
		runner.WithStreams(a.streams),
		runner.WithConnectionCount(a.gateway.Connections),
	)

	return a, nil
}

// Run starts the HTTP servers and the housekeeping loop, then blocks until
// the context is canceled.
func (a *App) Run(ctx context.Context) error {
	defer func() {
		if err := a.docker.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("docker client close failed")
		}
	}()

	server.Start(ctx, a.logger, a.cfg.PingInterval, a.tracker, a.collector, a.gateway,
		a.cfg.GatewayPort, a.cfg.HealthPort, a.cfg.MetricsPort)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return a.housekeeper.Run(groupCtx)
	})

	a.logger.Info().
		Int("projects", len(a.statuses.Projects())).
		Int("gateway_port", a.cfg.GatewayPort).
		Msg("deckhand started")

	return group.Wait()
}

func (a *App) loadProjects(ctx context.Context) error {
	mappings, err := config.LoadProjectsFile(a.cfg.ProjectsFile)
	if err != nil {
		return err
	}

	for _, mapping := range mappings {
		project, err := compose.LoadProject(ctx, mapping.Name, mapping.ComposeFile)
		if err != nil {
			return fmt.Errorf("project %q: %w", mapping.Name, err)
		}
		a.statuses.RegisterProject(project)
		a.logger.Info().
			Str("project", project.Name).
			Int("services", len(project.Services)).
			Msg("project registered")
	}

	return nil
}

// operationFinished records metrics and dispatches notifications for one
// terminal operation. It runs outside the registry's entry lock.
func (a *App) operationFinished(operationID string) {
	detail, err := a.registry.Get(operationID)
	if err != nil {
		return
	}

	a.collector.IncOperationFinished(string(detail.Type), string(detail.Status))

	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()
	if err := a.notifier.Notify(ctx, notify.Event{Operation: detail.Operation}); err != nil {
		a.logger.Warn().Err(err).
			Str("operation_id", operationID).
			Msg("operation notification failed")
	}
}

func buildNotifier(logger zerolog.Logger, cfg config.Config) (notify.Notifier, error) {
	notifiers := make([]notify.Notifier, 0, 2)

	notifiers = append(notifiers, notify.NewSlackNotifier(logger, cfg.SlackWebhookURL))

	webhook, err := notify.NewWebhookNotifier(logger, cfg.WebhookURL, cfg.WebhookTemplate)
	if err != nil {
		return nil, err
	}
	if webhook != nil {
		notifiers = append(notifiers, webhook)
	}

	var notifier notify.Notifier = notify.NewMultiNotifier(notifiers...)
	if cfg.DryRun {
		notifier = notify.NewDryRunNotifier(logger, notifier)
	}
	return notifier, nil
}
