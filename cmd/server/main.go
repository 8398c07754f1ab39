package main // Entry point package

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/iliyamo/bus-seat-checkout/internal/backend"
	"github.com/iliyamo/bus-seat-checkout/internal/config"
	"github.com/iliyamo/bus-seat-checkout/internal/database"
	"github.com/iliyamo/bus-seat-checkout/internal/handler"
	"github.com/iliyamo/bus-seat-checkout/internal/lifecycle"
	"github.com/iliyamo/bus-seat-checkout/internal/middleware"
	"github.com/iliyamo/bus-seat-checkout/internal/payment"
	"github.com/iliyamo/bus-seat-checkout/internal/queue"
	"github.com/iliyamo/bus-seat-checkout/internal/repository"
	"github.com/iliyamo/bus-seat-checkout/internal/resolver"
	"github.com/iliyamo/bus-seat-checkout/internal/router"
	"github.com/iliyamo/bus-seat-checkout/internal/service"
)

func main() {
	cfg := config.Load()
	log := config.NewLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Redis: required for the redis hold store, optional for rate limiting.
	rdb, err := config.NewRedisClient(ctx)
	if err != nil {
		if cfg.HoldStore == "redis" {
			log.WithError(err).Fatal("redis unavailable")
		}
		log.WithError(err).Warn("redis unavailable; rate limiting disabled")
	}
	var (
		holds      repository.HoldStore
		redisHolds *repository.RedisHoldStore
	)
	if cfg.HoldStore == "memory" {
		holds = repository.NewMemoryHoldStore()
	} else {
		redisHolds = repository.NewRedisHoldStore(rdb, cfg.HoldKeyPrefix, cfg.HoldTTL)
		holds = redisHolds
	}

	// Lifecycle events go to RabbitMQ when a broker is configured.
	var publisher *service.LifecyclePublisher
	var reporter lifecycle.Reporter
	if cfg.RabbitURL != "" {
		publisher = service.NewLifecyclePublisher(cfg.RabbitURL, log)
		reporter = publisher
		go func() {
			if err := queue.StartLifecycleConsumer(ctx, cfg.RabbitURL, cfg.LogDir, log); err != nil && !errors.Is(err, context.Canceled) {
				log.WithError(err).Error("lifecycle consumer stopped")
			}
		}()
	}

	// Verify has no client-side timeout; lookups and lifecycle calls do.
	api := backend.New(backend.Config{
		BaseURL:       cfg.BackendBaseURL,
		APIKey:        cfg.BackendAPIKey,
		LookupTimeout: cfg.BackendTimeout,
	}, nil)
	lc := lifecycle.New(api, reporter, log)

	deps := payment.Deps{
		Verifier:  api,
		Lifecycle: lc,
		Resolver:  resolver.New(api, cfg.BookingIDPrefix, log),
		Now:       time.Now,
		Log:       log,
	}
	if publisher != nil {
		deps.Notifier = publisher
	}
	support := &handler.SupportHandler{Log: log}
	if cfg.AttemptLogEnabled() {
		db, err := database.Open(ctx, cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
		if err != nil {
			log.WithError(err).Warn("attempt log disabled: database unavailable")
		} else {
			defer db.Close()
			attempts := repository.NewAttemptRepo(db)
			deps.Recorder = attempts
			support.Attempts = attempts
		}
	}

	holdHandler := &handler.HoldHandler{
		Store:  holds,
		Secret: cfg.SessionSecret,
		TTL:    cfg.SessionTTL,
		Secure: cfg.Env == "prod",
		Now:    time.Now,
		Log:    log,
	}
	if redisHolds != nil && cfg.SweepInterval > 0 {
		holdHandler.Index = redisHolds
		deps.Index = redisHolds
		sweeper := service.NewHoldSweeper(redisHolds, redisHolds, lc, nil, log)
		if publisher != nil {
			sweeper.Publisher = publisher
		}
		sched, err := sweeper.Start(ctx, cfg.SweepInterval)
		if err != nil {
			log.WithError(err).Fatal("start hold sweeper")
		}
		defer func() { _ = sched.Shutdown() }()
	}

	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewRequestValidator()
	e.Use(echomw.Recover())

	router.RegisterRoutes(e)
	router.RegisterCheckout(e, holdHandler, &handler.PaymentHandler{Deps: deps, Store: holds},
		cfg.SessionSecret, middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, log))
	router.RegisterSupport(e, support, cfg.SessionSecret)

	addr := ":" + cfg.Port
	go func() {
		log.Infof("listening on %s (env=%s, hold store=%s)", addr, cfg.Env, cfg.HoldStore)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server stopped")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown")
	}
}
