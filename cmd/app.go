package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"fleetd/app/handler"
	approuter "fleetd/app/router"
	"fleetd/internal/controlplane"
	"fleetd/internal/jobs"
	"fleetd/pkg/config"
	"fleetd/pkg/interfaces"
	"fleetd/pkg/logger"
	"fleetd/pkg/queue"
	"fleetd/pkg/store"

	"github.com/gin-gonic/gin"
)

// Application manages the lifecycle of the entire application
type Application struct {
	// Infrastructure components
	config *config.Config
	stores *store.Stores
	queue  interfaces.QueueProvider

	// Control plane
	controlPlane *controlplane.ControlPlane

	// Handler layer
	taskHandler       *handler.TaskHandler
	workerHandler     *handler.WorkerHandler
	monitoringHandler *handler.MonitoringHandler
	eventsHandler     *handler.EventsHandler

	// HTTP server
	httpServer *http.Server
	ginEngine  *gin.Engine

	// Background tasks
	jobsManager *jobs.Manager

	// Context management
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Cleanup functions
	cleanupFuncs []func()
}

// NewApplication creates a new Application instance
func NewApplication() *Application {
	ctx, cancel := context.WithCancel(context.Background())
	return &Application{
		ctx:          ctx,
		cancel:       cancel,
		cleanupFuncs: make([]func(), 0),
	}
}

// Initialize initializes all application components
func (app *Application) Initialize() error {
	var err error

	// Initialize components in order
	steps := []struct {
		name string
		fn   func() error
	}{
		{"Configuration", app.initConfig},
		{"Logging", app.initLogger},
		{"Stores", app.initStores},
		{"Queue Provider", app.initQueue},
		{"Control Plane", app.initControlPlane},
		{"Background Tasks", app.initJobs},
		{"Handler Layer", app.initHandlers},
		{"HTTP Server", app.initHTTPServer},
	}

	for _, step := range steps {
		logger.InfoCtx(app.ctx, "Initializing %s...", step.name)
		if err = step.fn(); err != nil {
			return fmt.Errorf("failed to initialize %s: %w", step.name, err)
		}
		logger.InfoCtx(app.ctx, "%s initialized successfully", step.name)
	}

	logger.InfoCtx(app.ctx, "Application initialization completed")
	return nil
}

// Start starts all application components
func (app *Application) Start() error {
	logger.InfoCtx(app.ctx, "Starting application components...")

	// 1. Start the control plane (worker pool + event dispatch)
	if err := app.controlPlane.Start(app.ctx); err != nil {
		return fmt.Errorf("failed to start control plane: %w", err)
	}

	// 2. Start background tasks
	if app.jobsManager != nil {
		logger.InfoCtx(app.ctx, "Starting background task manager")
		app.jobsManager.Start()
		app.wg.Add(1)
		go func() {
			defer app.wg.Done()
			app.jobsManager.Wait()
		}()
	}

	// 3. Start HTTP server
	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		addr := fmt.Sprintf(":%d", app.config.Server.Port)
		logger.InfoCtx(app.ctx, "HTTP server listening on: %s", addr)
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.FatalCtx(app.ctx, "HTTP server error: %v", err)
		}
	}()

	logger.InfoCtx(app.ctx, "All components started successfully")
	return nil
}

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown(timeout time.Duration) error {
	logger.InfoCtx(app.ctx, "Starting graceful shutdown (timeout: %v)...", timeout)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// 1. Cancel background tasks
	logger.InfoCtx(app.ctx, "Canceling background tasks...")
	app.cancel()
	if app.jobsManager != nil {
		app.jobsManager.Stop()
	}

	// 2. Stop HTTP server (stop accepting new requests)
	logger.InfoCtx(app.ctx, "Shutting down HTTP server...")
	if err := app.httpServer.Shutdown(shutdownCtx); err != nil {
		logger.ErrorCtx(app.ctx, "HTTP server shutdown error: %v", err)
	}

	// 3. Stop the control plane (drains workers, finishes profiles)
	logger.InfoCtx(app.ctx, "Stopping control plane...")
	app.controlPlane.Stop()

	// 4. Wait for background tasks to complete
	logger.InfoCtx(app.ctx, "Waiting for background tasks to complete...")
	done := make(chan struct{})
	go func() {
		app.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.InfoCtx(app.ctx, "All background tasks completed")
	case <-shutdownCtx.Done():
		logger.WarnCtx(app.ctx, "Shutdown timeout, some tasks may not have completed")
	}

	// 5. Execute cleanup functions (in reverse registration order)
	logger.InfoCtx(app.ctx, "Executing cleanup functions...")
	for i := len(app.cleanupFuncs) - 1; i >= 0; i-- {
		app.cleanupFuncs[i]()
	}

	// 6. Sync logs
	logger.Sync()

	logger.InfoCtx(app.ctx, "Graceful shutdown completed")
	return nil
}

// registerCleanup registers cleanup function
func (app *Application) registerCleanup(cleanup func()) {
	app.cleanupFuncs = append(app.cleanupFuncs, cleanup)
}

// initConfig initializes configuration
func (app *Application) initConfig() error {
	if err := config.Init(); err != nil {
		return err
	}
	app.config = config.GlobalConfig
	return nil
}

// initLogger initializes logging
func (app *Application) initLogger() error {
	return logger.Init()
}

// initStores initializes the task and worker stores
func (app *Application) initStores() error {
	providerType := ""
	if app.config.Providers != nil {
		providerType = app.config.Providers.Store
	}

	stores, err := store.CreateStores(app.config, providerType)
	if err != nil {
		return err
	}
	app.stores = stores
	app.registerCleanup(func() {
		if err := app.stores.Close(); err != nil {
			logger.WarnCtx(app.ctx, "store close error: %v", err)
		}
	})
	return nil
}

// initQueue initializes the task queue provider
func (app *Application) initQueue() error {
	providerType := ""
	if app.config.Providers != nil {
		providerType = app.config.Providers.Queue
	}

	provider, err := queue.CreateQueueProvider(app.config, providerType)
	if err != nil {
		return err
	}
	app.queue = provider
	app.registerCleanup(func() {
		if err := app.queue.Close(); err != nil {
			logger.WarnCtx(app.ctx, "queue provider close error: %v", err)
		}
	})
	return nil
}

// initControlPlane wires the control plane with its collaborators
func (app *Application) initControlPlane() error {
	app.controlPlane = controlplane.New(app.config, controlplane.Deps{
		Queue:       app.queue,
		Executor:    newSimulatedExecutor(),
		TaskStore:   app.stores.Tasks,
		WorkerStore: app.stores.Workers,
	})
	return nil
}

// initJobs registers the periodic background jobs
func (app *Application) initJobs() error {
	app.jobsManager = jobs.NewManager(app.ctx)
	app.jobsManager.Register(jobs.NewScalingJob(app.controlPlane, app.config.Pool))
	app.jobsManager.Register(jobs.NewStalenessJob(app.controlPlane, app.config.Pool))
	app.jobsManager.Register(jobs.NewHealthLogJob(app.controlPlane, 30*time.Second))
	return nil
}

// initHandlers initializes the handler layer
func (app *Application) initHandlers() error {
	app.taskHandler = handler.NewTaskHandler(app.controlPlane)
	app.workerHandler = handler.NewWorkerHandler(app.controlPlane)
	app.monitoringHandler = handler.NewMonitoringHandler(app.controlPlane)
	app.eventsHandler = handler.NewEventsHandler(app.controlPlane)
	return nil
}

// initHTTPServer initializes the HTTP server
func (app *Application) initHTTPServer() error {
	gin.SetMode(app.config.Server.Mode)
	app.ginEngine = gin.New()

	r := approuter.NewRouter(app.taskHandler, app.workerHandler, app.monitoringHandler, app.eventsHandler)
	r.Setup(app.ginEngine)

	app.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", app.config.Server.Port),
		Handler: app.ginEngine,
	}
	return nil
}
