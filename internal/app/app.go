package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ecofood/foodshare/internal/config"
	"github.com/ecofood/foodshare/internal/db"
	"github.com/ecofood/foodshare/internal/delivery"
	"github.com/ecofood/foodshare/internal/geo"
	"github.com/ecofood/foodshare/internal/jobs"
	"github.com/ecofood/foodshare/internal/middleware"
	"github.com/ecofood/foodshare/internal/repository"
	"github.com/ecofood/foodshare/internal/service"
	"github.com/ecofood/foodshare/internal/storage"
	"github.com/ecofood/foodshare/internal/tasks"
)

type App struct {
	Cfg              *config.Config
	DB               *sqlx.DB
	Runner           *tasks.Runner
	Scheduler        *jobs.Scheduler
	VerifyLimiter    *middleware.RateLimiter
	AuthService      *service.AuthService
	AccountService   *service.AccountService
	LifecycleService *service.LifecycleService
	InboxService     *service.InboxService

	kafka *delivery.KafkaSender
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	// Initialize database and bring the schema up to date
	database, err := db.Open(cfg.DBDriver, cfg.DBConnection)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Repositories
	accountRepository := repository.NewAccountRepository(database)
	listingRepository := repository.NewListingRepository(database)
	notificationRepository := repository.NewNotificationRepository(database)

	// Storage (listing photos are optional)
	images, err := storage.New(ctx, cfg)
	if errors.Is(err, storage.ErrNotConfigured) {
		slog.Info("image storage not configured, photo uploads disabled")
		images = nil
	} else if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	a := &App{
		Cfg:           cfg,
		DB:            database,
		Runner:        tasks.NewRunner(cfg.TaskTimeout),
		VerifyLimiter: middleware.NewRateLimiter(cfg.VerifyRateLimit, cfg.VerifyRateWindow),
	}

	// Delivery
	var sender delivery.Sender
	switch cfg.DeliveryBackend {
	case "kafka":
		a.kafka = delivery.NewKafkaSender(cfg.KafkaBrokers, cfg.KafkaTopic)
		sender = a.kafka
	default:
		sender = service.NewEmailService(
			cfg.ResendAPIKey,
			cfg.EmailFrom,
			cfg.AppURL,
			cfg.AppName,
			cfg.IsDevelopment(),
		)
	}
	slog.Info("alert delivery configured", "backend", cfg.DeliveryBackend)

	// Services
	index := geo.NewIndex(geo.DefaultMaxResults)
	fanoutService := service.NewFanoutService(
		accountRepository,
		notificationRepository,
		index,
		sender,
		a.Runner,
		cfg.FanoutMaxRecipients,
	)
	a.AuthService = service.NewAuthService(cfg.JWTSecret)
	a.AccountService = service.NewAccountService(accountRepository, index)
	a.InboxService = service.NewInboxService(notificationRepository, cfg.NotificationRetention)
	a.LifecycleService = service.NewLifecycleService(
		listingRepository,
		accountRepository,
		fanoutService,
		a.Runner,
		images,
		service.LifecycleConfig{
			PickupWindow:       cfg.PickupWindow,
			ExpiryEnforced:     cfg.PickupExpiryEnforced,
			ReminderLead:       cfg.PickupReminderLead,
			ExpiringLead:       cfg.ExpiringLead,
			FanoutRadiusMeters: cfg.FanoutRadiusKm * 1000,
			NearbyRadiusMeters: cfg.NearbyRadiusKm * 1000,
		},
	)

	n, err := a.AccountService.RefreshIndex(ctx)
	if err != nil {
		_ = a.Close(ctx)
		return nil, fmt.Errorf("failed to build geo index: %w", err)
	}
	slog.Info("geo index built", "organizations", n)

	a.Scheduler = jobs.NewScheduler(a.jobs()...)
	return a, nil
}

func (a *App) jobs() []jobs.Job {
	timeout := a.Cfg.SweepInterval
	return []jobs.Job{
		{Name: "pickup-expiry", Interval: a.Cfg.SweepInterval, Timeout: timeout, Run: a.LifecycleService.SweepExpiredClaims},
		{Name: "pickup-reminder", Interval: a.Cfg.SweepInterval, Timeout: timeout, Run: a.LifecycleService.SendPickupReminders},
		{Name: "expiring-alerts", Interval: a.Cfg.SweepInterval, Timeout: timeout, Run: a.LifecycleService.AlertExpiring},
		{Name: "notification-purge", Interval: time.Hour, Timeout: time.Minute, Run: func(ctx context.Context, now time.Time) (int, error) {
			n, err := a.InboxService.Purge(ctx, now)
			return int(n), err
		}},
		{Name: "geo-refresh", Interval: a.Cfg.GeoRefreshInterval, Timeout: time.Minute, Run: func(ctx context.Context, _ time.Time) (int, error) {
			return a.AccountService.RefreshIndex(ctx)
		}},
		{Name: "rate-limit-cleanup", Interval: a.Cfg.VerifyRateWindow, Timeout: time.Second, Run: func(context.Context, time.Time) (int, error) {
			return a.VerifyLimiter.Cleanup(), nil
		}},
	}
}

// Close waits for background tasks, then releases the broker and database.
// The scheduler must already be stopped.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Runner != nil {
		errs = append(errs, a.Runner.Close(ctx))
	}
	if a.kafka != nil {
		errs = append(errs, a.kafka.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	return errors.Join(errs...)
}
