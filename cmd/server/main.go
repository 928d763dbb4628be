package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"

	"github.com/launchthatbrand/portal-api/config"
	"github.com/launchthatbrand/portal-api/internal/credit"
	"github.com/launchthatbrand/portal-api/internal/notify"
	"github.com/launchthatbrand/portal-api/internal/payments"
	"github.com/launchthatbrand/portal-api/internal/payouts"
	"github.com/launchthatbrand/portal-api/internal/routes"
	"github.com/launchthatbrand/portal-api/models"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the yaml config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err, "config_path", *configPath)
		os.Exit(1)
	}
	if cfg.JWTSecret == "" {
		slog.Error("JWT secret not configured (jwt_secret / JWT_SECRET)")
		os.Exit(1)
	}

	db, err := config.ConnectDB(cfg.DBURL)
	if err != nil {
		slog.Error("Failed to connect to the database", "error", err)
		os.Exit(1)
	}
	err = db.AutoMigrate(
		&models.User{}, &models.Role{}, &models.Permission{},
		&models.Calendar{}, &models.Event{}, &models.CalendarEvent{}, &models.CalendarPermission{},
		&models.Notification{}, &models.NotificationPreference{},
		&models.Referral{}, &models.CreditEntry{},
		&models.PayoutPreference{}, &models.PayoutAccount{}, &models.PayoutRun{}, &models.PayoutTransfer{},
	)
	if err != nil {
		slog.Error("Database migration failed", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb := config.ConnectRedis(ctx, cfg.RedisAddr)

	var provider payments.Client
	if cfg.Stripe.SecretKey != "" {
		provider = payments.NewStripeClient(cfg.Stripe.SecretKey, cfg.Stripe.WebhookSecret, cfg.Stripe.BaseURL)
	} else {
		slog.Warn("No Stripe secret configured, using the in-memory fake payment client")
		provider = payments.NewFakeClient()
	}

	hub := notify.NewHub()
	go hub.Run()

	notifySvc := notify.NewService(db, hub)
	creditSvc := credit.NewService(db)
	runner := payouts.NewRunner(db, provider, creditSvc, notifySvc)

	scheduler := cron.New()
	if cfg.Payouts.Schedule != "" {
		_, err := scheduler.AddFunc(cfg.Payouts.Schedule, func() {
			runScheduledPayout(ctx, runner, cfg.Payouts)
		})
		if err != nil {
			slog.Error("Invalid payout schedule", "error", err, "schedule", cfg.Payouts.Schedule)
			os.Exit(1)
		}
		scheduler.Start()
		defer scheduler.Stop()
	}

	router := gin.Default()
	routes.Register(router, routes.Deps{
		DB:      db,
		RDB:     rdb,
		JWTKey:  []byte(cfg.JWTSecret),
		Hub:     hub,
		Notify:  notifySvc,
		Credit:  creditSvc,
		Payouts: runner,
	})

	server := &http.Server{
		Addr:    cfg.Listen,
		Handler: router,
	}
	go func() {
		slog.Info("Server listening", "addr", cfg.Listen)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			cancel()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		slog.Info("Signal received, shutting down", "signal", sig.String())
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Graceful shutdown failed", "error", err)
	}
}

// runScheduledPayout settles the previous calendar month.
func runScheduledPayout(ctx context.Context, runner *payouts.Runner, cfg config.PayoutsConfig) {
	now := time.Now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	prevMonthStart := monthStart.AddDate(0, -1, 0)

	result, err := runner.RunMonthly(ctx, payouts.RunArgs{
		Provider:    cfg.Provider,
		PeriodStart: prevMonthStart.UnixMilli(),
		PeriodEnd:   monthStart.UnixMilli() - 1,
		DryRun:      cfg.DryRun,
	})
	if err != nil {
		slog.Error("Scheduled payout run failed", "error", err)
		return
	}
	slog.Info("Scheduled payout run finished",
		"processed_users", result.ProcessedUsers,
		"error_count", len(result.Errors))
}
