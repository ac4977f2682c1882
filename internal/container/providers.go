package container

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/invoice-reconciler/internal/application/dispatcher"
	"github.com/garyjia/invoice-reconciler/internal/application/port"
	"github.com/garyjia/invoice-reconciler/internal/application/service"
	"github.com/garyjia/invoice-reconciler/internal/application/tools"
	"github.com/garyjia/invoice-reconciler/internal/application/workflow"
	"github.com/garyjia/invoice-reconciler/internal/domain/approval"
	"github.com/garyjia/invoice-reconciler/internal/domain/event"
	"github.com/garyjia/invoice-reconciler/internal/infrastructure/external/erp"
	"github.com/garyjia/invoice-reconciler/internal/infrastructure/external/lark"
	"github.com/garyjia/invoice-reconciler/internal/infrastructure/persistence/repository"
	"github.com/garyjia/invoice-reconciler/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/invoice-reconciler/internal/infrastructure/worker"
	"github.com/garyjia/invoice-reconciler/pkg/database"
	"github.com/garyjia/invoice-reconciler/pkg/utils"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	Conn        *database.DB
	TxManager   *sqlite.DB
	Checkpoints port.CheckpointStore
}

// ProvideDatabase opens the database, applies the embedded migrations and
// builds the checkpoint store.
func ProvideDatabase(ctx context.Context, cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}

	conn, err := database.New(ctx, database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}

	if _, err := database.NewMigrator(conn, logger).RunMigrations(ctx, sqlite.Migrations); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	db := sqlite.NewDB(conn.DB, logger)
	return &DatabaseBundle{
		Conn:        conn,
		TxManager:   db,
		Checkpoints: repository.NewCheckpointRepository(db, logger),
	}, nil
}

// ERPBundle holds the invoice, purchase order and payment adapters.
type ERPBundle struct {
	Invoices port.InvoiceSource
	Orders   port.PurchaseOrderSource
	Payments port.PaymentGateway
}

// ProvideERP builds the ERP adapters from the demo catalog or an xlsx ledger.
func ProvideERP(cfg *ERPConfig, logger *zap.Logger) (*ERPBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("erp config is required")
	}

	opts := []erp.CatalogOption{erp.WithFailureRate(cfg.FailureRate)}

	var catalog *erp.Catalog
	if cfg.UseLedger {
		var err error
		catalog, err = erp.LoadLedger(cfg.LedgerPath, logger, opts...)
		if err != nil {
			return nil, err
		}
	} else {
		catalog = erp.NewDemoCatalog(logger, opts...)
	}

	return &ERPBundle{
		Invoices: catalog,
		Orders:   catalog,
		Payments: erp.NewPaymentGateway(logger, erp.WithSettler(catalog)),
	}, nil
}

// ProvideNotifier returns the Lark approval notifier, or nil when Lark is not configured.
func ProvideNotifier(cfg *LarkConfig, logger *zap.Logger) port.ApprovalNotifier {
	larkCfg := lark.Config{
		AppID:          cfg.AppID,
		AppSecret:      cfg.AppSecret,
		ApproverOpenID: cfg.ApproverOpenID,
	}
	if !larkCfg.Enabled() {
		logger.Info("Lark notifications disabled")
		return nil
	}
	return lark.NewApprovalNotifier(lark.NewSDKClient(larkCfg, logger), larkCfg.ApproverOpenID, logger)
}

// ProvideToolkit builds the retrying tool layer.
func ProvideToolkit(cfg *WorkflowConfig, erpBundle *ERPBundle, logger *zap.Logger) *tools.Toolkit {
	backoff := tools.Exponential(cfg.InitialDelay, cfg.MaxDelay)
	if cfg.ConstantBackoff {
		backoff = tools.Constant(cfg.InitialDelay)
	}

	policy := tools.RetryPolicy{
		MaxAttempts: cfg.MaxAttempts,
		Backoff:     backoff,
		Sleep:       tools.ContextSleep,
	}

	opts := []tools.Option{tools.WithRetryPolicy(policy)}
	if cfg.FetchLimit > 0 {
		opts = append(opts, tools.WithFetchLimit(cfg.FetchLimit))
	}
	return tools.NewToolkit(erpBundle.Invoices, erpBundle.Orders, erpBundle.Payments, logger, opts...)
}

// ProvideDispatcher creates the event dispatcher with the run audit log attached.
func ProvideDispatcher(logger *zap.Logger) dispatcher.Dispatcher {
	d := dispatcher.NewDispatcher(dispatcher.WithLogger(utils.NewKVLogger(logger)))
	d.SubscribeAll("run-audit-log", auditLogHandler(logger.Named("audit")))
	return d
}

func auditLogHandler(logger *zap.Logger) dispatcher.Handler {
	return func(ctx context.Context, evt *event.Event) error {
		logger.Info("Thread event",
			zap.String("event_type", string(evt.Type)),
			zap.String("thread_id", evt.ThreadID),
			zap.String("run_id", evt.RunID),
			zap.Int64("version", evt.Version),
			zap.Any("payload", evt.Payload),
			zap.Time("at", evt.Timestamp))
		return nil
	}
}

// WorkflowDeps holds dependencies required for creating the workflow engine.
type WorkflowDeps struct {
	Config      *WorkflowConfig
	Checkpoints port.CheckpointStore
	Tools       workflow.Tools
	Publisher   dispatcher.Publisher
	Logger      *zap.Logger
}

// ProvideWorkflowEngine creates the workflow engine.
func ProvideWorkflowEngine(deps *WorkflowDeps) (workflow.WorkflowEngine, error) {
	if deps == nil {
		return nil, fmt.Errorf("workflow dependencies are required")
	}
	if deps.Checkpoints == nil {
		return nil, fmt.Errorf("checkpoint store is required")
	}
	if deps.Tools == nil {
		return nil, fmt.Errorf("tools are required")
	}

	return workflow.NewEngine(
		deps.Checkpoints,
		deps.Tools,
		approval.NewGate(deps.Config.ApprovalThreshold),
		workflow.WithPublisher(deps.Publisher),
		workflow.WithLogger(utils.NewKVLogger(deps.Logger)),
	), nil
}

// ProvideNotificationService subscribes approval notifications when a notifier is configured.
func ProvideNotificationService(engine workflow.WorkflowEngine, notifier port.ApprovalNotifier, d dispatcher.Dispatcher, logger *zap.Logger) service.NotificationService {
	if notifier == nil {
		return nil
	}
	svc := service.NewNotificationService(engine, notifier, utils.NewKVLogger(logger))
	svc.Register(d)
	return svc
}

// ProvideWorkers registers the background workers.
func ProvideWorkers(cfg *WorkflowConfig, engine workflow.WorkflowEngine, publisher dispatcher.Publisher, logger *zap.Logger) *worker.Manager {
	m := worker.NewManager(logger)
	m.Register(worker.NewStaleSweeper(engine, publisher, cfg.StaleAfter, cfg.SweepInterval, logger))
	return m
}
