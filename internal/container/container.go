package container

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/garyjia/invoice-reconciler/internal/application/dispatcher"
	"github.com/garyjia/invoice-reconciler/internal/application/port"
	"github.com/garyjia/invoice-reconciler/internal/application/service"
	"github.com/garyjia/invoice-reconciler/internal/application/workflow"
	"github.com/garyjia/invoice-reconciler/internal/infrastructure/worker"
	"github.com/garyjia/invoice-reconciler/pkg/database"
)

// Container manages all application dependencies and lifecycle.
// Components start in dependency order and close in reverse.
type Container struct {
	config *Config
	logger *zap.Logger

	// Infrastructure
	conn        *database.DB
	checkpoints port.CheckpointStore
	erp         *ERPBundle
	notifier    port.ApprovalNotifier

	// Application
	dispatcher    dispatcher.Dispatcher
	engine        workflow.WorkflowEngine
	notifications service.NotificationService

	// Workers
	workers *worker.Manager

	mu     sync.Mutex
	ready  atomic.Bool
	closed atomic.Bool
}

// HealthStatus represents the health of all components.
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// NewContainer creates a new container from configuration.
// It does not initialize components; call Start.
func NewContainer(cfg *Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Container{
		config: cfg,
		logger: logger,
	}, nil
}

// Start initializes components in order:
// database, ERP adapters and notifier, dispatcher and engine, workers.
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}
	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	c.logger.Info("Starting container initialization")

	dbBundle, err := ProvideDatabase(ctx, &c.config.Database, c.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	c.conn = dbBundle.Conn
	c.checkpoints = dbBundle.Checkpoints
	c.logger.Info("Database initialized")

	c.erp, err = ProvideERP(&c.config.ERP, c.logger)
	if err != nil {
		return errors.Join(fmt.Errorf("failed to initialize erp: %w", err), c.closeDatabase())
	}
	c.notifier = ProvideNotifier(&c.config.Lark, c.logger)
	c.logger.Info("External adapters initialized")

	c.dispatcher = ProvideDispatcher(c.logger)
	c.engine, err = ProvideWorkflowEngine(&WorkflowDeps{
		Config:      &c.config.Workflow,
		Checkpoints: c.checkpoints,
		Tools:       ProvideToolkit(&c.config.Workflow, c.erp, c.logger),
		Publisher:   c.dispatcher,
		Logger:      c.logger,
	})
	if err != nil {
		return errors.Join(fmt.Errorf("failed to initialize workflow engine: %w", err), c.closeDatabase())
	}
	c.notifications = ProvideNotificationService(c.engine, c.notifier, c.dispatcher, c.logger)
	c.logger.Info("Dispatcher and workflow engine initialized")

	c.workers = ProvideWorkers(&c.config.Workflow, c.engine, c.dispatcher, c.logger)
	if err := c.workers.StartAll(ctx); err != nil {
		c.logger.Error("Some workers failed to start", zap.Error(err))
	}
	c.logger.Info("Workers started")

	c.ready.Store(true)
	c.logger.Info("Container started successfully")
	return nil
}

// Close gracefully shuts down all components in reverse order.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed.CompareAndSwap(false, true) {
		return fmt.Errorf("container already closed")
	}
	c.ready.Store(false)

	c.logger.Info("Closing container")

	var errs []error
	if c.workers != nil {
		if err := c.workers.StopAll(); err != nil {
			errs = append(errs, fmt.Errorf("stop workers: %w", err))
		}
	}
	if c.dispatcher != nil {
		if err := c.dispatcher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close dispatcher: %w", err))
		}
	}
	if err := c.closeDatabase(); err != nil {
		errs = append(errs, err)
	}

	if err := errors.Join(errs...); err != nil {
		c.logger.Error("Container closed with errors", zap.Error(err))
		return err
	}

	c.logger.Info("Container closed successfully")
	return nil
}

func (c *Container) closeDatabase() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	if err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health returns health status of all components.
func (c *Container) Health(ctx context.Context) *HealthStatus {
	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}
	set := func(name string, healthy bool, msg string) {
		status.Components[name] = ComponentHealth{Healthy: healthy, Message: msg}
		if !healthy {
			status.Overall = false
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.conn == nil:
		set("database", false, "not initialized")
	default:
		if err := c.conn.PingContext(ctx); err != nil {
			set("database", false, fmt.Sprintf("ping failed: %v", err))
		} else {
			set("database", true, "")
		}
	}

	if c.workers == nil {
		set("workers", false, "not initialized")
	} else {
		set("workers", c.workers.IsRunning(), fmt.Sprintf("worker count: %d", c.workers.Count()))
	}

	set("dispatcher", c.dispatcher != nil, "")
	if c.notifier != nil {
		set("notifications", true, "lark")
	} else {
		set("notifications", true, "disabled")
	}

	return status
}

// WorkflowEngine returns the reconciliation engine.
func (c *Container) WorkflowEngine() workflow.WorkflowEngine {
	return c.engine
}

// Dispatcher returns the event dispatcher.
func (c *Container) Dispatcher() dispatcher.Dispatcher {
	return c.dispatcher
}

// Workers returns the worker manager.
func (c *Container) Workers() *worker.Manager {
	return c.workers
}

// Logger returns the container logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// Config returns the container configuration.
func (c *Container) Config() *Config {
	return c.config
}
