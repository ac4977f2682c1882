package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/garyjia/invoice-reconciler/internal/config"
	"github.com/garyjia/invoice-reconciler/internal/container"
	httpapi "github.com/garyjia/invoice-reconciler/internal/interfaces/http"
	"github.com/garyjia/invoice-reconciler/pkg/utils"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to YAML configuration file")
	envFile := flag.String("env", ".env", "path to dotenv file")
	flag.Parse()

	if err := config.LoadDotEnv(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load %s: %v\n", *envFile, err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting invoice reconciler",
		zap.Int("port", cfg.Server.Port),
		zap.String("db_path", cfg.Database.Path),
		zap.String("erp_source", cfg.ERP.Source),
		zap.Bool("notifications", cfg.NotificationsEnabled()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := container.NewContainer(cfg.ToContainerConfig(), logger)
	if err != nil {
		logger.Fatal("Failed to create container", zap.Error(err))
	}
	if err := app.Start(ctx); err != nil {
		logger.Fatal("Failed to start container", zap.Error(err))
	}

	server := httpapi.NewServer(httpapi.ServerConfig{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, app.WorkflowEngine(), httpapi.NewRedactor(cfg.Security.PIIKeys), utils.NewKVLogger(logger),
		httpapi.WithHealthFunc(func(ctx context.Context) (bool, interface{}) {
			status := app.Health(ctx)
			return status.Overall, status.Components
		}))

	if err := server.Start(ctx); err != nil {
		logger.Error("HTTP server stopped with error", zap.Error(err))
	}

	logger.Info("Shutting down")
	if err := app.Close(); err != nil {
		logger.Error("Shutdown completed with errors", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("Server exited successfully")
}
