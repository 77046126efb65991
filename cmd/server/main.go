package main // Entry point package

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/iliyamo/hotel-pms-core/internal/config"
	"github.com/iliyamo/hotel-pms-core/internal/database"
	"github.com/iliyamo/hotel-pms-core/internal/handler"
	"github.com/iliyamo/hotel-pms-core/internal/middleware"
	"github.com/iliyamo/hotel-pms-core/internal/queue"
	"github.com/iliyamo/hotel-pms-core/internal/repository"
	"github.com/iliyamo/hotel-pms-core/internal/router"
	"github.com/iliyamo/hotel-pms-core/internal/service"
	"github.com/iliyamo/hotel-pms-core/migrations"
)

func main() {
	_ = godotenv.Load() // .env is optional
	cfg := config.Load()

	e := echo.New()
	e.HideBanner = true
	e.Logger.SetLevel(logLevel(cfg.LogLevel))
	e.Validator = handler.RequestValidator{}
	e.Use(echomw.Recover(), echomw.RequestID())
	logger := e.Logger

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		logger.Fatalf("database: %v", err)
	}
	defer db.Close()
	if cfg.Migrate {
		if err := database.Migrate(ctx, db, migrations.FS); err != nil {
			logger.Fatalf("migrate: %v", err)
		}
	}

	rdb := config.NewRedisClient()
	if rdb == nil {
		logger.Warn("redis unavailable: rate limiting and caching disabled")
	} else {
		defer rdb.Close()
	}
	guests := repository.NewGuestRepo(db, rdb, cfg.SummaryTTL)

	// Post-commit effects go through RabbitMQ when it is enabled and are
	// otherwise applied in-process.
	var notifier service.NotificationDispatcher
	var summaries service.GuestSummaryRecomputer = guests
	qcfg := config.LoadQueueConfig()
	if qcfg.Enabled {
		pub := queue.NewPublisher(qcfg.URL, logger, qcfg.NotificationQueue, qcfg.SummaryQueue)
		defer pub.Close()
		notifier = queue.NewNotificationPublisher(pub, qcfg.NotificationQueue)
		summaries = queue.NewSummaryRefreshPublisher(pub, qcfg.SummaryQueue)
		if qcfg.Consumers {
			go queue.Consume(ctx, qcfg.URL, qcfg.NotificationQueue, logger, queue.NotificationLogHandler(qcfg.NotificationLogPath, guests))
			go queue.Consume(ctx, qcfg.URL, qcfg.SummaryQueue, logger, queue.SummaryRefreshHandler(guests))
		}
	}

	store := repository.NewStore(db, logger)
	disp := service.NewAsyncDispatcher(notifier, summaries, logger)
	svc := service.NewReservationService(service.NewOrchestrator(store, disp), service.Options{
		Location: cfg.Location,
		Logger:   logger,
	})
	disp.UseFolioCreator(svc)

	router.RegisterRoutes(e, router.Options{
		JWTSecret:    cfg.JWTSecret,
		Reservations: handler.NewReservationHandler(svc),
		Guests:       handler.NewGuestHandler(guests, repository.NewReservationRepo(db)),
		Rooms:        handler.NewRoomHandler(repository.NewRoomRepo(db)),
		Health:       handler.Health(db),
		RateLimit:    middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb),
		Cache:        middleware.NewRedisCache(config.LoadCacheConfig(), rdb),
	})

	addr := ":" + cfg.Port
	go func() {
		logger.Infoj(log.JSON{"event": "listening", "addr": addr, "env": cfg.Env, "tz": cfg.Location.String()})
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal(err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("shutdown: %v", err)
	}
	disp.Wait() // let queued effects finish
}

func logLevel(s string) log.Lvl {
	switch s {
	case "debug":
		return log.DEBUG
	case "warn":
		return log.WARN
	case "error":
		return log.ERROR
	}
	return log.INFO
}
