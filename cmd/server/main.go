package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/driveshare/rental-booking/internal/config"
	"github.com/driveshare/rental-booking/internal/database"
	"github.com/driveshare/rental-booking/internal/handler"
	"github.com/driveshare/rental-booking/internal/identity"
	"github.com/driveshare/rental-booking/internal/logging"
	"github.com/driveshare/rental-booking/internal/middleware"
	"github.com/driveshare/rental-booking/internal/queue"
	"github.com/driveshare/rental-booking/internal/repository"
	"github.com/driveshare/rental-booking/internal/router"
	"github.com/driveshare/rental-booking/internal/service"
	"github.com/driveshare/rental-booking/internal/session"
	"github.com/driveshare/rental-booking/internal/storage"
	"github.com/driveshare/rental-booking/internal/workflow"
)

func main() {
	cfg := config.Load()

	logger, err := logging.New(cfg.IsProduction())
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		logger.Fatal("mysql", zap.Error(err))
	}
	defer db.Close()
	if err := database.Migrate(ctx, db); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	// Redis is optional: drafts, locks, rate limits and the quote cache
	// fall back to in-process implementations.
	var (
		sessions session.Store
		locker   session.Locker
		scripter redis.Scripter
		cmdable  redis.Cmdable
	)
	rdb, err := config.NewRedisClient(cfg.Redis)
	if err != nil {
		logger.Warn("redis unavailable, using in-process drafts and limits", zap.Error(err))
		sessions = session.NewMemoryStore(cfg.DraftTTL)
		locker = session.NewLocalLocker()
	} else {
		defer rdb.Close()
		sessions = session.NewRedisStore(rdb, cfg.Redis.KeyPrefix, cfg.DraftTTL)
		// a lease must outlive the slowest request holding it
		locker = session.NewRedisLocker(rdb, cfg.Redis.KeyPrefix, 3*cfg.ExternalCallTimeout)
		scripter, cmdable = rdb, rdb
	}

	blobs, err := newBlobStore(ctx, cfg.Blob)
	if err != nil {
		logger.Fatal("blob store", zap.String("backend", cfg.Blob.Backend), zap.Error(err))
	}

	var notifier workflow.Notifier = service.NopNotifier{}
	if cfg.EventsEnabled {
		notifier = service.NewPublisher(cfg.RabbitURL, logger)
		consumer := queue.Consumer{URL: cfg.RabbitURL, LogDir: "logs", Log: logger}
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("booking consumer stopped", zap.Error(err))
			}
		}()
	}

	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	bookings := repository.NewBookingRepo(db)
	photos := repository.NewPhotoRepo(db)
	ident := identity.NewJWTProvider(tokens, logger)

	svc := service.NewBookingService(service.Deps{
		Sessions: sessions,
		Locker:   locker,
		Bookings: bookings,
		Photos:   photos,
		Users:    users,
		Blobs:    blobs,
		Notifier: notifier,
		Log:      logger,
		Timeout:  cfg.ExternalCallTimeout,
	})

	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewValidator()
	e.Use(echomw.Recover())
	e.Use(echomw.CORS())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLogger(logger))
	e.Use(echomw.BodyLimit(bodyLimit(cfg.UploadMaxBytes)))

	router.RegisterRoutes(e, db, middleware.NewRedisCache(cfg.Cache, cmdable))
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, users, tokens, ident, logger), cfg.JWTSecret)
	router.RegisterCustomer(e,
		handler.NewDraftHandler(svc, ident, cfg.UploadMaxBytes, logger),
		handler.NewBookingHandler(svc, ident, logger),
		handler.NewProfileHandler(svc, ident, cfg.UploadMaxBytes, logger),
		cfg.JWTSecret,
		middleware.NewTokenBucket(cfg.RateLimit, scripter, logger),
	)

	addr := ":" + cfg.Port
	go func() {
		logger.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
	logger.Info("stopped")
}

func newBlobStore(ctx context.Context, cfg config.BlobConfig) (storage.BlobStore, error) {
	switch cfg.Backend {
	case config.BlobCloudinary:
		return storage.NewCloudinaryStore(cfg.CloudinaryURL, cfg.CloudinaryFolder)
	case config.BlobS3:
		return storage.NewS3Store(ctx, cfg.S3Bucket, cfg.S3Region, cfg.S3PublicBaseURL, cfg.S3PresignTTL)
	}
	return nil, errors.New("unknown BLOB_BACKEND " + cfg.Backend)
}

// bodyLimit leaves room for multipart framing and base64 signatures.
func bodyLimit(maxUpload int64) string {
	mb := maxUpload*2/(1<<20) + 1
	return strconv.FormatInt(mb, 10) + "M"
}
