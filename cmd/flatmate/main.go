package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rsheldon/flatmate/internal/backup"
	"github.com/rsheldon/flatmate/internal/database"
	"github.com/rsheldon/flatmate/internal/email"
	"github.com/rsheldon/flatmate/internal/logging"
	"github.com/rsheldon/flatmate/internal/push"
	"github.com/rsheldon/flatmate/internal/server"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func main() {
	logger := logging.Setup(os.Getenv("FLATMATE_LOG_LEVEL"), os.Getenv("FLATMATE_LOG_FORMAT"))

	addr := envOr("FLATMATE_ADDR", ":8080")
	dbPath := envOr("FLATMATE_DB_PATH", "flatmate.db")
	baseURL := envOr("FLATMATE_BASE_URL", "http://localhost:8080")

	db, err := database.Open(dbPath)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	emailClient := email.NewClient(
		os.Getenv("FLATMATE_POSTMARK_TOKEN"),
		os.Getenv("FLATMATE_FROM_EMAIL"),
		baseURL,
	)

	pushCfg := push.Config{
		VAPIDPublicKey:  os.Getenv("FLATMATE_VAPID_PUBLIC_KEY"),
		VAPIDPrivateKey: os.Getenv("FLATMATE_VAPID_PRIVATE_KEY"),
	}

	backupCfg := backup.Config{
		Endpoint:      os.Getenv("FLATMATE_S3_ENDPOINT"),
		Bucket:        os.Getenv("FLATMATE_S3_BUCKET"),
		Region:        envOr("FLATMATE_S3_REGION", "us-east-1"),
		AccessKey:     os.Getenv("FLATMATE_S3_ACCESS_KEY"),
		SecretKey:     os.Getenv("FLATMATE_S3_SECRET_KEY"),
		Passphrase:    os.Getenv("FLATMATE_BACKUP_PASSPHRASE"),
		DBPath:        dbPath,
		ScheduleHour:  envInt("FLATMATE_BACKUP_HOUR", 3),
		RetentionDays: envInt("FLATMATE_BACKUP_RETENTION_DAYS", 30),
	}

	srv := server.New(db, emailClient, backupCfg, pushCfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv.PushScheduler().Start(ctx)
	defer srv.PushScheduler().Stop()

	if srv.BackupManager().Enabled() {
		srv.BackupManager().Start(ctx)
		defer srv.BackupManager().Stop()
	}

	// Periodic cleanup of expired sessions, invites, rate limit entries and
	// sent-notification dedup records.
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n, err := srv.SessionStore().DeleteExpired(); err != nil {
					logger.Error("session cleanup failed", "error", err)
				} else if n > 0 {
					logger.Info("cleaned up expired sessions", "count", n)
				}
				if n, err := srv.InviteStore().DeleteExpired(); err != nil {
					logger.Error("invite cleanup failed", "error", err)
				} else if n > 0 {
					logger.Info("cleaned up expired invites", "count", n)
				}
				if err := srv.PushStore().CleanupSent(time.Now().AddDate(0, 0, -7)); err != nil {
					logger.Error("sent-notification cleanup failed", "error", err)
				}
				srv.RateLimiter().Cleanup()
			}
		}
	}()

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("flatmate listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}
