package system

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/modbusmon/modbusmon/internal/alarms"
	"github.com/modbusmon/modbusmon/internal/api/rest"
	"github.com/modbusmon/modbusmon/internal/api/websocket"
	"github.com/modbusmon/modbusmon/internal/auth"
	"github.com/modbusmon/modbusmon/internal/config"
	"github.com/modbusmon/modbusmon/internal/interfaces"
	"github.com/modbusmon/modbusmon/internal/notify"
	"github.com/modbusmon/modbusmon/internal/poller"
	"github.com/modbusmon/modbusmon/internal/provision"
	"github.com/modbusmon/modbusmon/internal/snapshot"
	"github.com/modbusmon/modbusmon/internal/storage"
	"github.com/modbusmon/modbusmon/internal/tags"
)

// LifecycleManager owns every long-lived component and brings them up
// and down in dependency order.
type LifecycleManager struct {
	config      *config.Config
	storage     *storage.PostgresClient
	registry    *tags.Registry
	snapshots   *snapshot.Store
	scheduler   *poller.Scheduler
	alarmEngine *alarms.Engine
	authService *auth.AuthService
	wsHub       *websocket.Hub
	logger      *zap.Logger

	restServer *rest.Server

	stateMu      sync.RWMutex
	currentState SystemState

	shutdownChan chan struct{}
	shutdownOnce sync.Once
}

func NewLifecycleManager(store *storage.PostgresClient, cfg *config.Config, logger *zap.Logger) *LifecycleManager {
	registry := tags.NewRegistry()
	snapshots := snapshot.NewStore()
	wsHub := websocket.NewHub(logger)

	scheduler := poller.NewScheduler(registry, snapshots, poller.Config{
		Interval:      cfg.Polling.Interval,
		DeviceTimeout: cfg.Polling.DeviceTimeout,
		MaxWorkers:    cfg.Polling.MaxWorkers,
	}, logger)
	scheduler.SetObserver(wsHub)

	var notifier alarms.Notifier = wsHub
	if cfg.Notify.SMTP.Enabled {
		notifier = notify.Fanout{wsHub, notify.NewEmailer(cfg.Notify.SMTP, logger)}
	}
	alarmEngine := alarms.NewEngine(store, snapshots, notifier, logger)
	authService := auth.NewAuthService(store, cfg.Auth, logger)

	return &LifecycleManager{
		config:       cfg,
		storage:      store,
		registry:     registry,
		snapshots:    snapshots,
		scheduler:    scheduler,
		alarmEngine:  alarmEngine,
		authService:  authService,
		wsHub:        wsHub,
		logger:       logger,
		currentState: StateInitializing,
		shutdownChan: make(chan struct{}),
	}
}

// Start brings the system up: schema, users, registry load, seed,
// websocket hub, scheduler, alarm engine, REST API.
func (lm *LifecycleManager) Start() error {
	lm.logger.Info("Starting modbusmon")

	lm.setState(StateInitializing)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := lm.storage.Bootstrap(ctx); err != nil {
		lm.setState(StateError)
		return fmt.Errorf("failed to bootstrap schema: %w", err)
	}

	if err := lm.authService.EnsureAdminUser(ctx); err != nil {
		lm.setState(StateError)
		return fmt.Errorf("failed to ensure admin user: %w", err)
	}

	if err := lm.loadRegistryFromDB(ctx); err != nil {
		lm.setState(StateError)
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := provision.SeedIfEmpty(ctx, lm.config.Provision.SeedFile, lm.storage, lm.registry, lm.logger); err != nil {
		// A bad seed file should not keep an already configured system
		// from starting.
		lm.logger.Error("Seeding failed", zap.Error(err))
	}

	go lm.wsHub.Run()

	if err := lm.scheduler.Start(); err != nil {
		lm.setState(StateError)
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	if err := lm.alarmEngine.Start(context.Background()); err != nil {
		lm.setState(StateError)
		return fmt.Errorf("failed to start alarm engine: %w", err)
	}

	if err := lm.startRESTServer(); err != nil {
		lm.setState(StateError)
		return fmt.Errorf("failed to start REST API: %w", err)
	}

	lm.setState(StateRunning)

	lm.logger.Info("System started successfully",
		zap.Int("http_port", lm.config.Server.HTTPPort),
		zap.Int("devices", len(lm.registry.Devices())),
		zap.Int("tags", len(lm.registry.Tags())),
		zap.Duration("poll_interval", lm.config.Polling.Interval))

	return nil
}

// loadRegistryFromDB hydrates the in-memory registry from persisted
// devices and tags. Records that fail resolution are skipped with a
// log line instead of aborting startup.
func (lm *LifecycleManager) loadRegistryFromDB(ctx context.Context) error {
	devices, err := lm.storage.ListDevices(ctx)
	if err != nil {
		return fmt.Errorf("failed to load devices: %w", err)
	}
	allTags, err := lm.storage.ListTags(ctx)
	if err != nil {
		return fmt.Errorf("failed to load tags: %w", err)
	}

	for _, d := range devices {
		if err := lm.registry.UpsertDevice(d); err != nil {
			lm.logger.Error("Skipping invalid device record",
				zap.Int64("id", d.ID), zap.String("name", d.Name), zap.Error(err))
		}
	}
	loaded := 0
	for _, t := range allTags {
		if _, err := lm.registry.UpsertTag(t); err != nil {
			lm.logger.Error("Skipping invalid tag record",
				zap.Int64("id", t.ID), zap.String("name", t.Name), zap.Error(err))
			continue
		}
		loaded++
	}

	lm.logger.Info("Configuration loaded",
		zap.Int("devices", len(devices)),
		zap.Int("tags", loaded))
	return nil
}

func (lm *LifecycleManager) startRESTServer() error {
	server, err := rest.NewServer(lm.config, lm, lm.logger, lm.wsHub, lm.authService)
	if err != nil {
		return err
	}
	lm.restServer = server
	return lm.restServer.Start()
}

// Shutdown gracefully shuts down the system
func (lm *LifecycleManager) Shutdown(ctx context.Context) error {
	var shutdownErr error

	lm.shutdownOnce.Do(func() {
		lm.logger.Info("Shutting down system")

		lm.setState(StateStopping)

		shutdownErr = lm.gracefulShutdown(ctx)

		lm.setState(StateStopped)

		close(lm.shutdownChan)
	})

	return shutdownErr
}

// gracefulShutdown stops components in reverse start order: no new
// requests, then no new cycles or alarm evaluations, then the hub, then
// the database pool.
func (lm *LifecycleManager) gracefulShutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		defer close(done)

		if lm.restServer != nil {
			shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			if err := lm.restServer.Shutdown(shutdownCtx); err != nil {
				lm.logger.Warn("REST shutdown failed", zap.Error(err))
			}
			cancel()
		}

		lm.alarmEngine.Stop()
		lm.scheduler.Stop()
		lm.wsHub.Stop()
		lm.storage.Close()
	}()

	select {
	case <-done:
		lm.logger.Info("Graceful shutdown completed")
		return nil
	case <-ctx.Done():
		lm.logger.Warn("Shutdown timeout, forcing stop")
		return fmt.Errorf("shutdown timeout exceeded")
	}
}

func (lm *LifecycleManager) setState(state SystemState) {
	lm.stateMu.Lock()
	defer lm.stateMu.Unlock()
	if state == lm.currentState {
		return
	}
	if err := ValidateTransition(lm.currentState, state); err != nil {
		lm.logger.Warn("State transition rejected", zap.Error(err))
		return
	}
	lm.currentState = state
}

// Done is closed once shutdown has completed.
func (lm *LifecycleManager) Done() <-chan struct{} {
	return lm.shutdownChan
}

// GetCurrentStatus returns current system status (Interface implementation)
func (lm *LifecycleManager) GetCurrentStatus() interfaces.SystemStatus {
	lm.stateMu.RLock()
	state := lm.currentState
	lm.stateMu.RUnlock()

	devices := lm.registry.Devices()
	active := 0
	for _, d := range devices {
		if d.Active {
			active++
		}
	}

	return interfaces.SystemStatus{
		State:         state.String(),
		DeviceCount:   len(devices),
		ActiveDevices: active,
		TagCount:      len(lm.registry.Tags()),
		Cycles:        lm.scheduler.Cycles(),
		SkippedTicks:  lm.scheduler.SkippedTicks(),
		LastCycleAt:   time.UnixMilli(lm.scheduler.LastCycleAt()),
	}
}

// Interface accessors

func (lm *LifecycleManager) Config() *config.Config               { return lm.config }
func (lm *LifecycleManager) Storage() *storage.PostgresClient     { return lm.storage }
func (lm *LifecycleManager) Registry() *tags.Registry             { return lm.registry }
func (lm *LifecycleManager) Snapshots() *snapshot.Store           { return lm.snapshots }
func (lm *LifecycleManager) Scheduler() *poller.Scheduler         { return lm.scheduler }
func (lm *LifecycleManager) AlarmEngine() *alarms.Engine          { return lm.alarmEngine }
