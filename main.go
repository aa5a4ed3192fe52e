package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gabofunebre/backuper/config"
	"github.com/gabofunebre/backuper/handlers"
	jobs "github.com/gabofunebre/backuper/job"
	"github.com/gabofunebre/backuper/middlewares"
	"github.com/gabofunebre/backuper/migrations"
	"github.com/gabofunebre/backuper/repositories"
	"github.com/gabofunebre/backuper/routes"
	"github.com/gabofunebre/backuper/services"
	"github.com/gabofunebre/backuper/storage"
	"github.com/gabofunebre/backuper/transfer"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

func init() {
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetLevel(logrus.InfoLevel)
}

func main() {
	// Load environment variables; the container usually injects them directly.
	if err := godotenv.Load(); err != nil {
		logrus.Debug("No .env file loaded: ", err)
	}

	cfg := config.LoadConfig()
	logrus.Infof("Configuration loaded, listening on port %s", cfg.Port)

	// Initialize database connection
	db, err := repositories.InitDB(cfg.DatabaseURL, cfg.SQLitePath)
	if err != nil {
		logrus.Fatal("Failed to open the registry database: ", err)
	}
	if err := migrations.RunMigrations(db); err != nil {
		logrus.Fatal("Failed to run migrations: ", err)
	}

	appRepo := repositories.NewAppRepository(db)
	remoteRepo := repositories.NewRemoteRepository(db)
	executionRepo := repositories.NewExecutionRepository(db)

	// Initialize the transfer tool and the per-type backends
	tool := transfer.NewRclone(cfg.RcloneConfigPath)
	backends := storage.NewBackends(tool, cfg.SharedDriveRemote)

	// Initialize services
	appClient := services.NewAppClient()
	backupService := services.NewBackupService(
		appRepo, remoteRepo, executionRepo, appClient, tool,
		cfg.BackupTimeout, int(cfg.MaxConcurrent),
	)
	retentionService := services.NewRetentionService(appRepo, remoteRepo, tool)
	validationService := services.NewValidationService(tool)
	browseService := services.NewBrowseService(tool)
	authorizeService := services.NewAuthorizeService(transfer.NewAuthorizer())
	remoteService := services.NewRemoteService(remoteRepo, appRepo, backends, tool, validationService)
	appService := services.NewAppService(appRepo, remoteRepo)

	bootCtx, cancelBoot := context.WithTimeout(context.Background(), 2*time.Minute)
	if err := remoteService.EnsureSharedDrive(bootCtx, cfg.SharedDriveRemote, cfg.DriveToken, cfg.DriveClientID, cfg.DriveClientSecret); err != nil {
		logrus.Warn("Could not provision the shared drive entry: ", err)
	}
	if err := remoteService.RestorePersisted(bootCtx); err != nil {
		logrus.Warn("Could not restore persisted tool entries: ", err)
	}
	cancelBoot()

	// Start the backup scheduler
	scheduler := jobs.NewScheduler(appRepo, backupService, retentionService)
	if err := scheduler.Reload(); err != nil {
		logrus.Fatal("Failed to load the backup schedule: ", err)
	}
	scheduler.Start()

	// Set up the HTTP server
	e := echo.New()
	e.HideBanner = true
	e.Use(middlewares.Recovery())
	e.Use(middlewares.ErrorHandler())

	routes.RegisterRoutes(e,
		handlers.NewAppHandler(appService, executionRepo, scheduler),
		handlers.NewBackupHandler(backupService, retentionService),
		handlers.NewRemoteHandler(remoteService),
		handlers.NewSessionHandler(validationService, browseService, authorizeService),
	)

	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			logrus.Fatal("Failed to start server: ", err)
		}
	}()

	// Shut down on SIGINT/SIGTERM, letting in-flight backups finish.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logrus.Error("Server shutdown was not clean: ", err)
	}
	scheduler.Stop()
}
