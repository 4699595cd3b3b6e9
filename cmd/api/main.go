package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/gorm"

	"github.com/Wikid82/bastion/internal/api/routes"
	"github.com/Wikid82/bastion/internal/config"
	"github.com/Wikid82/bastion/internal/database"
	"github.com/Wikid82/bastion/internal/logger"
	"github.com/Wikid82/bastion/internal/metrics"
	"github.com/Wikid82/bastion/internal/models"
	"github.com/Wikid82/bastion/internal/ratelimit"
	"github.com/Wikid82/bastion/internal/securitylog"
	"github.com/Wikid82/bastion/internal/server"
	"github.com/Wikid82/bastion/internal/services"
	"github.com/Wikid82/bastion/internal/version"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
		log.Fatalf("create log directory: %v", err)
	}
	rotator := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.LogDir, "bastion.log"),
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}
	out := io.MultiWriter(os.Stdout, rotator)
	log.SetOutput(out)
	logger.Init(cfg.Debug, out)

	db, err := database.Connect(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("connect database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("migrate database: %v", err)
	}

	// Handle CLI commands
	if len(os.Args) > 1 && os.Args[1] == "reset-password" {
		if len(os.Args) != 4 {
			log.Fatalf("Usage: %s reset-password <email> <new-password>", os.Args[0])
		}
		if err := resetPassword(db, os.Args[2], os.Args[3]); err != nil {
			log.Fatalf("reset password: %v", err)
		}
		log.Printf("Password updated successfully for user %s", os.Args[2])
		return
	}

	if cfg.JWTSecret == "" {
		cfg.JWTSecret = randomSecret()
		logger.Log().Warn("BASTION_JWT_SECRET not set; using a random secret, sessions will not survive a restart")
	}

	logger.Log().WithFields(logrus.Fields{
		"version":  version.Full(),
		"env":      cfg.Environment,
		"waf_mode": cfg.WAFMode,
	}).Infof("starting %s", version.Name)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.Register(registry)

	limiters, err := ratelimit.NewSet(cfg.Limits, ratelimit.WithLogger(logger.Component("ratelimit")))
	if err != nil {
		log.Fatalf("build rate limiters: %v", err)
	}

	notifications := services.NewNotificationService(db, cfg.Security.AlertURLs)
	events, closeSinks, err := buildEventLogger(cfg, db, notifications)
	if err != nil {
		log.Fatalf("build security event logger: %v", err)
	}

	var history *services.SecurityService
	if cfg.Security.Database {
		history = services.NewSecurityService(db)
	}
	maintenance, err := services.NewMaintenanceService(limiters, events, history, cfg.Security.Retention,
		services.DefaultMaintenanceSchedule(cfg.Security.FlushInterval))
	if err != nil {
		log.Fatalf("schedule maintenance: %v", err)
	}
	maintenance.Start()

	srv, err := server.New(cfg, routes.Deps{
		DB:            db,
		Limiters:      limiters,
		Events:        events,
		Notifications: notifications,
		Gatherer:      registry,
	})
	if err != nil {
		log.Fatalf("build server: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErr := srv.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := maintenance.Stop(shutdownCtx); err != nil {
		logger.Log().WithError(err).Warn("maintenance scheduler did not stop cleanly")
	}
	if err := events.Close(shutdownCtx); err != nil {
		logger.Log().WithError(err).Warn("security events not fully delivered")
	}
	closeSinks()

	if runErr != nil {
		log.Fatalf("server error: %v", runErr)
	}
	logger.Log().Info("shutdown complete")
}

// buildEventLogger attaches the sinks enabled in configuration. The returned
// func closes the file sink after the logger itself is closed.
func buildEventLogger(cfg config.Config, db *gorm.DB, alerter securitylog.Alerter) (*securitylog.Logger, func(), error) {
	opts := []securitylog.Option{
		securitylog.WithConsole(logger.Base()),
		securitylog.WithAlerter(alerter),
	}
	closeSinks := func() {}

	if cfg.Security.File {
		fileSink, err := securitylog.NewFileSink(securitylog.FileSinkConfig{Path: cfg.Security.FilePath, Compress: true})
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, securitylog.WithSink(fileSink))
		closeSinks = func() { _ = fileSink.Close() }
	}
	if cfg.Security.Database {
		dbSink, err := securitylog.NewDatabaseSink(db)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, securitylog.WithSink(dbSink))
	}

	events, err := securitylog.New(cfg.Security.LoggerConfig(), opts...)
	if err != nil {
		closeSinks()
		return nil, nil, err
	}
	return events, closeSinks, nil
}

func resetPassword(db *gorm.DB, email, newPassword string) error {
	var user models.User
	if err := db.Where("email = ?", email).First(&user).Error; err != nil {
		return err
	}
	if err := user.SetPassword(newPassword); err != nil {
		return err
	}
	user.FailedLoginAttempts = 0
	user.ClearResetToken()
	return db.Save(&user).Error
}

func randomSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		log.Fatalf("generate jwt secret: %v", err)
	}
	return hex.EncodeToString(b)
}
