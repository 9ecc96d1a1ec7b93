package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/campushq/rolegate/internal/api"
	"github.com/campushq/rolegate/internal/app"
	"github.com/campushq/rolegate/internal/app/maintenance"
	"github.com/campushq/rolegate/internal/cache"
	"github.com/campushq/rolegate/internal/database"
	"github.com/campushq/rolegate/internal/permissions"
	"github.com/campushq/rolegate/internal/services"
	"github.com/campushq/rolegate/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("rolegate-server", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	var configPath string
	fs.StringVar(&configPath, "config", "", "Path to configuration directory or file")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadApplicationConfig(configPath)
	if err != nil {
		return err
	}

	if err := app.ConfigureLogging(cfg.Server.LogLevel); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer logger.Sync() // best effort

	log := logger.WithModule("bootstrap")

	db, err := initialiseDatabase(cfg)
	if err != nil {
		return err
	}
	defer closeDatabase(db, log)

	store := selectCacheStore(cfg, db, log)

	checker, err := permissions.NewChecker(db, store, permissions.Config{
		CacheEnabled:   cfg.Cache.Enabled,
		CacheTTL:       cfg.Cache.TTL,
		BulkCheckLimit: cfg.Authz.BulkCheckLimit,
	})
	if err != nil {
		return fmt.Errorf("initialise permission checker: %w", err)
	}

	auditSvc, err := services.NewRoleAuditService(db, services.AuditConfig{
		RapidChangeWindow:    cfg.Audit.RapidChangeWindow,
		RapidChangeThreshold: cfg.Audit.RapidChangeThreshold,
		BusinessHoursStart:   cfg.Audit.BusinessHoursStart,
		BusinessHoursEnd:     cfg.Audit.BusinessHoursEnd,
		RetentionDays:        cfg.Audit.RetentionDays,
	})
	if err != nil {
		return fmt.Errorf("initialise audit service: %w", err)
	}

	roleSvc, err := services.NewRoleChangeService(db, checker, auditSvc, nil, services.RoleChangeConfig{
		RequireApprovalRoles: cfg.Authz.RequireApproval(),
		AutoApproveRoles:     cfg.Authz.AutoApprove(),
		RequestTTL:           cfg.Authz.RequestTTL,
	})
	if err != nil {
		return fmt.Errorf("initialise role change service: %w", err)
	}

	if cfg.Maintenance.Enabled {
		sweeper := maintenance.NewSweeper(roleSvc, auditSvc, store,
			maintenance.WithExpirySchedule(cfg.Maintenance.Schedule))
		if err := sweeper.Start(); err != nil {
			return fmt.Errorf("start maintenance jobs: %w", err)
		}
		defer func() {
			stopCtx := sweeper.Stop()
			if err := sweeper.RunOnce(stopCtx); err != nil {
				log.Warn("maintenance shutdown sweep failed", zap.Error(err))
			}
		}()
	}

	router, err := api.NewRouter(cfg, api.Deps{
		DB:      db,
		Checker: checker,
		Roles:   roleSvc,
		Audit:   auditSvc,
	})
	if err != nil {
		return fmt.Errorf("build api router: %w", err)
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	if err, ok := <-serverErr; ok && err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	log.Info("server stopped gracefully")
	return nil
}

func loadApplicationConfig(path string) (*app.Config, error) {
	switch {
	case strings.TrimSpace(path) == "":
		return app.LoadConfig()
	default:
		info, err := os.Stat(path)
		if err == nil {
			if info.IsDir() {
				return app.LoadConfig(path)
			}
			return app.LoadConfig(filepath.Dir(path))
		}
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config path %q does not exist", path)
		}
		return nil, fmt.Errorf("stat config path: %w", err)
	}
}

func selectCacheStore(cfg *app.Config, db *gorm.DB, log *zap.Logger) cache.Store {
	if !cfg.Cache.Enabled {
		return nil
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Cache.Backend)) {
	case "", "memory":
		return cache.NewMemoryStore()
	case "database":
		return cache.NewDatabaseStore(db)
	default:
		log.Warn("unknown cache backend; using in-memory store",
			zap.String("backend", cfg.Cache.Backend))
		return cache.NewMemoryStore()
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := convertDatabaseConfig(cfg)
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.Migrate(db); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", strings.ToLower(strings.TrimSpace(dbCfg.Driver))))

	return db, nil
}

func convertDatabaseConfig(cfg *app.Config) database.Config {
	dbCfg := database.Config{
		Driver: strings.ToLower(strings.TrimSpace(cfg.Database.Driver)),
		Path:   strings.TrimSpace(cfg.Database.Path),
		DSN:    strings.TrimSpace(cfg.Database.DSN),
	}

	switch dbCfg.Driver {
	case "", "sqlite":
		dbCfg.Driver = "sqlite"
	case "postgres", "postgresql":
		dbCfg.Driver = "postgres"
		dbCfg.Host = strings.TrimSpace(cfg.Database.Postgres.Host)
		dbCfg.Port = cfg.Database.Postgres.Port
		dbCfg.Name = strings.TrimSpace(cfg.Database.Postgres.Database)
		dbCfg.User = strings.TrimSpace(cfg.Database.Postgres.Username)
		dbCfg.Password = strings.TrimSpace(cfg.Database.Postgres.Password)
	case "mysql":
		dbCfg.Host = strings.TrimSpace(cfg.Database.MySQL.Host)
		dbCfg.Port = cfg.Database.MySQL.Port
		dbCfg.Name = strings.TrimSpace(cfg.Database.MySQL.Database)
		dbCfg.User = strings.TrimSpace(cfg.Database.MySQL.Username)
		dbCfg.Password = strings.TrimSpace(cfg.Database.MySQL.Password)
	default:
		// Leave driver as-is to surface unsupported driver error during open.
	}

	return dbCfg
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("failed to obtain underlying sql DB for closing", zap.Error(err))
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
