package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/cmlabs-hris/attendance-sync-go/internal/config"
	"github.com/cmlabs-hris/attendance-sync-go/internal/domain/device"
	"github.com/cmlabs-hris/attendance-sync-go/internal/domain/record"
	appHTTP "github.com/cmlabs-hris/attendance-sync-go/internal/handler/http"
	"github.com/cmlabs-hris/attendance-sync-go/internal/pkg/cron"
	"github.com/cmlabs-hris/attendance-sync-go/internal/pkg/database"
	"github.com/cmlabs-hris/attendance-sync-go/internal/pkg/logging"
	"github.com/cmlabs-hris/attendance-sync-go/internal/repository/postgresql"
	gatewayService "github.com/cmlabs-hris/attendance-sync-go/internal/service/gateway"
	identityService "github.com/cmlabs-hris/attendance-sync-go/internal/service/identity"
	syncService "github.com/cmlabs-hris/attendance-sync-go/internal/service/sync"
	validationService "github.com/cmlabs-hris/attendance-sync-go/internal/service/validation"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Println("Error loading config:", err)
		return
	}

	logger := logging.New(cfg.App.Env, cfg.App.LogLevel)

	dsn := cfg.DatabaseURL()
	if err := database.Migrate(dsn); err != nil {
		log.Fatal("Failed to run migrations: ", err)
	}
	db, err := database.NewPostgreSQLDB(context.Background(), dsn)
	if err != nil {
		fmt.Println("Error connecting to database:", err)
		return
	}
	defer db.Close()

	staffRepo := postgresql.NewStaffRepository(db)
	recordRepo := postgresql.NewAttendanceRecordRepository(db)
	jobRepo := postgresql.NewSyncJobRepository(db)

	resolver := identityService.NewResolver(staffRepo, identityService.Options{
		Strategy:     cfg.Identity.Strategy,
		EmailDomain:  cfg.Identity.EmailDomain,
		CacheEnabled: cfg.Identity.CacheEnabled,
		CacheTTL:     time.Duration(cfg.Identity.CacheTTLMinutes * float64(time.Minute)),
	})

	schemaValidator := validationService.NewSchemaValidator()
	validationSvc := validationService.NewService(recordRepo, resolver, schemaValidator, validationService.Options{
		DuplicatePolicy:  record.DuplicatePolicy(cfg.Sync.DuplicatePolicy),
		DedupEnabled:     cfg.Sync.DedupEnabled,
		ConflictsEnabled: cfg.Sync.ConflictsEnabled,
	})

	gatewayOpts := gatewayService.Options{
		OperationTimeout:  cfg.Gateway.OperationTimeout,
		MaxRetries:        cfg.Gateway.MaxRetries,
		RetryInitialWait:  cfg.Gateway.RetryInitialWait,
		RetryMaxWait:      cfg.Gateway.RetryMaxWait,
		BreakerThreshold:  cfg.Gateway.BreakerThreshold,
		BreakerCooldown:   cfg.Gateway.BreakerCooldown,
		ValidationEnabled: cfg.Gateway.ValidationEnabled,
	}
	gatewayFactory := func(deviceCfg device.Config) device.Gateway {
		return gatewayService.New(deviceCfg, gatewayService.ZKTecoFactory, schemaValidator, gatewayOpts, logger)
	}

	orchestrator := syncService.NewOrchestrator(jobRepo, recordRepo, validationSvc, gatewayFactory, syncService.Options{
		Devices:          cfg.Devices,
		ParallelMachines: cfg.Sync.ParallelMachines,
		DuplicatePolicy:  record.DuplicatePolicy(cfg.Sync.DuplicatePolicy),
	}, logger)

	syncHandler := appHTTP.NewSyncJobHandler(orchestrator)
	deviceHandler := appHTTP.NewDeviceHandler(orchestrator, cfg.Devices)

	router := appHTTP.NewRouter(cfg, syncHandler, deviceHandler)

	scheduler := cron.NewScheduler(logger)
	if cfg.Sync.ScheduleEnabled {
		syncJobs := cron.NewSyncJobs(orchestrator, cfg.Sync.ScheduleInterval, cfg.Sync.LookbackHours, cfg.Sync.MaxRetries)
		syncJobs.RegisterJobs(scheduler)
	}
	scheduler.Start()
	defer scheduler.Stop()

	port := fmt.Sprintf(":%d", cfg.App.Port)
	fmt.Printf("Server running at http://localhost%s\n", port)
	if err := http.ListenAndServe(port, router); err != nil {
		fmt.Println("Server error:", err)
	}
}
