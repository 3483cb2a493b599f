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

	"github.com/altynaay/fieldops/internal/api"
	"github.com/altynaay/fieldops/internal/app"
	iauth "github.com/altynaay/fieldops/internal/auth"
	"github.com/altynaay/fieldops/internal/backup"
	"github.com/altynaay/fieldops/internal/database"
	"github.com/altynaay/fieldops/internal/notifications"
	"github.com/altynaay/fieldops/internal/scheduler"
	"github.com/altynaay/fieldops/internal/services"
	"github.com/altynaay/fieldops/pkg/logger"
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
	fs := flag.NewFlagSet("fieldops-server", flag.ContinueOnError)
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

	if strings.TrimSpace(cfg.Auth.JWT.Secret) == "" {
		return errors.New("auth.jwt.secret must be configured")
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

	jwtService, err := iauth.NewJWTService(iauth.JWTConfig{
		Secret:         cfg.Auth.JWT.Secret,
		Issuer:         cfg.Auth.JWT.Issuer,
		AccessTokenTTL: cfg.Auth.JWT.TTL,
	})
	if err != nil {
		return fmt.Errorf("initialise jwt service: %w", err)
	}

	hub := notifications.NewHub()

	notifSvc, err := services.NewNotificationService(db, hub)
	if err != nil {
		return fmt.Errorf("initialise notification service: %w", err)
	}
	auditSvc, err := services.NewAuditService(db, notifSvc)
	if err != nil {
		return fmt.Errorf("initialise audit service: %w", err)
	}
	activitySvc, err := services.NewActivityService(db, auditSvc, notifSvc)
	if err != nil {
		return fmt.Errorf("initialise activity service: %w", err)
	}
	userSvc, err := services.NewUserService(db)
	if err != nil {
		return fmt.Errorf("initialise user service: %w", err)
	}
	staffSvc, err := services.NewStaffService(db)
	if err != nil {
		return fmt.Errorf("initialise staff service: %w", err)
	}
	ruleEngine, err := services.NewRuleEngine(db, hub, services.RuleDefaults{
		HighPriorityThreshold: cfg.Rules.HighPriorityThreshold,
		OverdueDays:           cfg.Rules.OverdueDays,
	})
	if err != nil {
		return fmt.Errorf("initialise rule engine: %w", err)
	}
	dashboardSvc, err := services.NewDashboardService(db)
	if err != nil {
		return fmt.Errorf("initialise dashboard service: %w", err)
	}
	suggestSvc, err := services.NewSuggestionService(db)
	if err != nil {
		return fmt.Errorf("initialise suggestion service: %w", err)
	}
	masterSvc, err := services.NewMasterDataService(db, auditSvc)
	if err != nil {
		return fmt.Errorf("initialise master data service: %w", err)
	}

	var backupSvc *backup.Service
	if cfg.Backup.Enabled && strings.EqualFold(cfg.Database.Driver, "sqlite") {
		backupSvc, err = backup.NewService(cfg.Database.Path, cfg.Backup.Dir,
			backup.WithRetention(cfg.Backup.RetentionDays, cfg.Backup.KeepMinCount))
		if err != nil {
			return fmt.Errorf("initialise backup service: %w", err)
		}
	}

	jobs := scheduler.New(backupSvc, ruleEngine,
		scheduler.WithBackupInterval(cfg.Backup.Interval),
		scheduler.WithRuleInterval(cfg.Rules.Interval))
	if err := jobs.Start(); err != nil {
		return fmt.Errorf("start background jobs: %w", err)
	}
	defer func() {
		<-jobs.Stop().Done()
	}()

	router, err := api.NewRouter(api.Dependencies{
		DB:        db,
		Config:    cfg,
		JWT:       jwtService,
		Hub:       hub,
		Users:     userSvc,
		Staff:     staffSvc,
		Acts:      activitySvc,
		Audit:     auditSvc,
		Inbox:     notifSvc,
		Rules:     ruleEngine,
		Dashboard: dashboardSvc,
		Suggest:   suggestSvc,
		Master:    masterSvc,
		Backups:   backupSvc,
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

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := cfg.DatabaseSettings()
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrateAndSeed(db); err != nil {
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	logger.WithModule("database").Info("database connected",
		zap.String("driver", strings.ToLower(strings.TrimSpace(dbCfg.Driver))))
	return db, nil
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("database handle unavailable at shutdown", zap.Error(err))
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.Warn("database close failed", zap.Error(err))
	}
}
