package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/oakmed/clinic-scheduler/internal/api/router"
	"github.com/oakmed/clinic-scheduler/internal/availability"
	"github.com/oakmed/clinic-scheduler/internal/billing"
	"github.com/oakmed/clinic-scheduler/internal/clinic"
	appconfig "github.com/oakmed/clinic-scheduler/internal/config"
	"github.com/oakmed/clinic-scheduler/internal/events"
	"github.com/oakmed/clinic-scheduler/internal/http/handlers"
	"github.com/oakmed/clinic-scheduler/internal/observability/metrics"
	"github.com/oakmed/clinic-scheduler/internal/prescriptions"
	"github.com/oakmed/clinic-scheduler/internal/registry"
	"github.com/oakmed/clinic-scheduler/internal/scheduling"
	"github.com/oakmed/clinic-scheduler/internal/store/memstore"
	"github.com/oakmed/clinic-scheduler/internal/store/pgstore"
	"github.com/oakmed/clinic-scheduler/pkg/logging"
)

// dataStore is the union of the per-service repository interfaces; both
// storage backends satisfy it.
type dataStore interface {
	scheduling.Store
	billing.Store
	prescriptions.Store
	registry.Store
}

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting clinic-scheduler API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		store     dataStore
		ids       clinic.IDAllocator
		publisher events.Publisher = events.NopPublisher{}
	)
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to open database pool", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		if err := pool.Ping(ctx); err != nil {
			logger.Error("database unreachable", "error", err)
			os.Exit(1)
		}
		store = pgstore.New(pool)
		ids = pgstore.NewAllocator(pool)

		outbox := events.NewOutbox(pool)
		publisher = outbox
		deliverer := events.NewDeliverer(outbox, events.DeliveryHandlerFunc(
			func(_ context.Context, entry events.PendingEntry) error {
				logger.Info("event delivered", "event_id", entry.ID, "type", entry.Type)
				return nil
			}), logger).WithInterval(cfg.OutboxPollInterval)
		go deliverer.Start(ctx)
		logger.Info("using postgres store")
	} else {
		store = memstore.New()
		ids = clinic.NewSequence(0)
		publisher = events.NewMemoryPublisher()
		logger.Info("using in-memory store")
	}

	var leaser *availability.Leaser
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		defer func() { _ = client.Close() }()
		leaser = availability.NewLeaser(client, cfg.LeaseTTL)
		logger.Info("reservation leases enabled", "addr", cfg.RedisAddr)
	}

	index := availability.NewIndex()
	schedulingMetrics := metrics.NewSchedulingMetrics(nil)
	billingMetrics := metrics.NewBillingMetrics(nil)

	reconciler := billing.NewReconciler(billing.Config{
		Store:         store,
		IDs:           ids,
		Publisher:     publisher,
		Logger:        logger,
		Metrics:       billingMetrics,
		RetryAttempts: cfg.BookingRetryMaxAttempts,
	})
	scheduler := scheduling.NewService(scheduling.Config{
		Store:           store,
		Index:           index,
		IDs:             ids,
		Invoices:        reconciler,
		Publisher:       publisher,
		Leaser:          leaser,
		Logger:          logger,
		Metrics:         schedulingMetrics,
		DefaultDuration: cfg.DefaultAppointmentDuration(),
		RetryAttempts:   cfg.BookingRetryMaxAttempts,
	})
	prescriber := prescriptions.NewService(prescriptions.Config{
		Store:  store,
		IDs:    ids,
		Logger: logger,
	})
	registrar := registry.NewService(registry.Config{
		Store:           store,
		Index:           index,
		IDs:             ids,
		Logger:          logger,
		DefaultDuration: cfg.DefaultAppointmentDuration(),
	})

	// rebuild the availability index before taking traffic
	if err := scheduler.Rehydrate(ctx); err != nil {
		logger.Error("failed to rehydrate availability index", "error", err)
		os.Exit(1)
	}

	r := router.New(&router.Config{
		Logger:         logger,
		Bookings:       handlers.NewBookingsHandler(scheduler, logger),
		Billing:        handlers.NewBillingHandler(reconciler, logger),
		Prescriptions:  handlers.NewPrescriptionsHandler(prescriber, logger),
		Registry:       handlers.NewRegistryHandler(registrar, logger),
		JWTSecret:      cfg.APIJWTSecret,
		AllowedOrigins: cfg.AllowedOrigins,
		BookingRate:    cfg.BookingRatePerSecond,
		BookingBurst:   cfg.BookingBurst,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}
