package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/iliyamo/study-room-booking/internal/config"
	"github.com/iliyamo/study-room-booking/internal/database"
	"github.com/iliyamo/study-room-booking/internal/handler"
	"github.com/iliyamo/study-room-booking/internal/logger"
	"github.com/iliyamo/study-room-booking/internal/middleware"
	"github.com/iliyamo/study-room-booking/internal/queue"
	"github.com/iliyamo/study-room-booking/internal/repository"
	"github.com/iliyamo/study-room-booking/internal/router"
	"github.com/iliyamo/study-room-booking/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	lg, err := logger.New(cfg.Env)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	os.Exit(exitCode(lg, run(cfg, lg)))
}

// exitCode logs err, flushes lg and returns the process exit status.
func exitCode(lg *zap.Logger, err error) int {
	code := 0
	if err != nil {
		lg.Error("Server stopped", zap.Error(err))
		code = 1
	}
	_ = lg.Sync()
	return code
}

func run(cfg config.Config, lg *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg.DSN())
	if err != nil {
		return err
	}
	defer db.Close()
	if cfg.DBMigrate {
		if err := database.Migrate(ctx, db.DB); err != nil {
			return err
		}
		if v, err := database.Version(ctx, db.DB); err == nil {
			lg.Info("Database schema ready", zap.Int64("version", v))
		}
	}

	var locker service.SeatLocker
	rdb := config.NewRedisClient(cfg)
	if rdb != nil {
		defer rdb.Close()
		locker = repository.NewRedisSeatLocker(rdb, cfg.SeatLockTTL, lg)
		lg.Info("Using Redis seat locks", zap.String("addr", cfg.RedisAddr))
	} else {
		locker = service.NewLocalSeatLocker()
		lg.Warn("Redis unavailable: using in-process seat locks, rate limiting disabled")
	}

	var publisher service.EventPublisher
	if cfg.RabbitURL != "" {
		p := queue.NewPublisher(cfg.RabbitURL, cfg.EventsQueue, lg)
		defer p.Close()
		publisher = p

		if cfg.ConsumeEvents {
			audit, err := queue.NewAuditLog(cfg.AuditLogPath)
			if err != nil {
				return err
			}
			defer audit.Close()
			consumer := queue.NewConsumer(cfg.RabbitURL, cfg.EventsQueue, audit, lg)
			go func() {
				if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					lg.Error("Audit consumer stopped", zap.Error(err))
				}
			}()
		}
	}

	svc := service.NewBookingService(repository.NewBookingRepo(db), lg, service.Options{
		Checker:            service.LinearChecker{MaxDuration: cfg.MaxDuration},
		Locker:             locker,
		Publisher:          publisher,
		RevalidateOnUpdate: cfg.RevalidateOnUpdate,
		PublishTimeout:     cfg.PublishTimeout,
	})

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:  true,
		LogURIPath: true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			lg.Info("Request",
				zap.String("method", v.Method),
				zap.String("path", v.URIPath),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			)
			return nil
		},
	}))

	router.RegisterRoutes(e, db)
	router.RegisterBookings(e, handler.NewBookingHandler(svc, lg), cfg.JWTSecret,
		middleware.NewTokenBucket(cfg.RateLimit, rdb, lg))

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		lg.Info("Listening", zap.String("addr", addr), zap.String("env", cfg.Env))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	lg.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
