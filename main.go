package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chenyahui/gin-cache/persist"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/eco-collect/internal/auth"
	"github.com/example/eco-collect/internal/classifier"
	"github.com/example/eco-collect/internal/config"
	"github.com/example/eco-collect/internal/grpcclient"
	"github.com/example/eco-collect/internal/handlers"
	"github.com/example/eco-collect/internal/httpclassifier"
	"github.com/example/eco-collect/internal/logging"
	"github.com/example/eco-collect/internal/repository"
	"github.com/example/eco-collect/internal/security"
	"github.com/example/eco-collect/internal/storage"
	"github.com/example/eco-collect/internal/usecase"
	"github.com/example/eco-collect/migrations"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := logging.NewLogger(cfg.App.LogLevel)
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	db := initDatabase(ctx, cfg.Database, logger)

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisCtx, redisCancel := context.WithTimeout(ctx, 5*time.Second)
		defer redisCancel()
		redisClient = initRedis(redisCtx, cfg.Redis.Addr, logger)
		defer redisClient.Close()
	}

	model, closeModel := initClassifier(ctx, cfg.Classifier, logger)
	defer closeModel()

	avatars := initAvatarStore(ctx, cfg.Avatar, logger)

	var sessionStore auth.SessionStore
	if cfg.Session.Store == "redis" {
		sessionStore = auth.NewRedisSessionStore(redisClient)
	} else {
		memoryStore := auth.NewMemorySessionStore()
		defer memoryStore.Close()
		sessionStore = memoryStore
	}

	var (
		classificationCache usecase.Cache
		responseCache       persist.CacheStore
	)
	if redisClient != nil {
		classificationCache = usecase.NewRedisCache(redisClient)
		responseCache = persist.NewRedisStore(redisClient)
	}

	users := repository.NewUserRepository(db, logger)
	centers := repository.NewCenterRepository(db, logger)
	uploads := repository.NewUploadRepository(db, logger)

	classification := usecase.NewClassificationService(model, classificationCache, cfg.Classifier.CacheTTL, logger)
	uploadUC, err := usecase.NewUploadUseCase(uploads, centers, classification, afero.NewOsFs(), cfg.Upload.WorkDir, logger)
	if err != nil {
		logger.Fatal("failed to prepare upload work dir", zap.Error(err))
	}

	accounts := usecase.NewAccountUseCase(users, security.NewArgonHasher(), usecase.AccountPolicy{
		ResetTTL:              cfg.PasswordReset.TTL,
		AllowPrivilegedSignup: cfg.Registration.AllowPrivilegedRoles,
	}, logger)

	router := handlers.NewRouter(handlers.Deps{
		Accounts:      accounts,
		Profiles:      usecase.NewProfileUseCase(users, avatars, cfg.Upload.AllowedExtensions, logger),
		Centers:       usecase.NewCenterUseCase(centers, users),
		Uploads:       uploadUC,
		Sessions:      auth.NewManager(cfg.Session.Secret, cfg.Session.TTL, sessionStore, logger),
		ResponseCache: responseCache,
		Logger:        logger,
		Options: handlers.Options{
			Environment:       cfg.App.Env,
			CookieName:        cfg.Session.CookieName,
			CookieSecure:      cfg.HTTP.CookieSecure,
			CORSOrigins:       cfg.HTTP.CORSOrigins,
			MaxUploadSize:     cfg.Upload.MaxSize,
			AllowedExtensions: cfg.Upload.AllowedExtensions,
			RateLimitRPS:      cfg.RateLimit.RPS,
			RateLimitBurst:    cfg.RateLimit.Burst,
		},
	})

	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("eco-collect API listening",
		zap.String("addr", cfg.HTTP.Addr),
		zap.String("env", cfg.App.Env),
		zap.String("database", cfg.Database.Driver),
		zap.String("classifier", cfg.Classifier.Transport),
	)
	if err := serveHTTPServer(server, cfg.HTTP.ShutdownTimeout, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func initDatabase(ctx context.Context, cfg config.DatabaseConfig, zapLogger *zap.Logger) *gorm.DB {
	db, err := repository.Open(ctx, cfg.Driver, cfg.DSN, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed to connect to database", zap.Error(err))
	}

	if cfg.Driver == repository.DriverPostgres && !cfg.AutoMigrate {
		sqlDB, err := db.DB()
		if err != nil {
			zapLogger.Fatal("failed to access db handle", zap.Error(err))
		}
		if err := migrations.Migrate(ctx, sqlDB); err != nil {
			zapLogger.Fatal("schema migration failed", zap.Error(err))
		}
		return db
	}

	if err := repository.AutoMigrate(ctx, db); err != nil {
		zapLogger.Fatal("auto migrate failed", zap.Error(err))
	}
	return db
}

func initRedis(ctx context.Context, addr string, zapLogger *zap.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		zapLogger.Fatal("redis connection failed", zap.Error(err))
	}
	return client
}

func initClassifier(ctx context.Context, cfg config.ClassifierConfig, zapLogger *zap.Logger) (classifier.Client, func()) {
	if cfg.Transport == "http" {
		return httpclassifier.New(httpclassifier.Config{BaseURL: cfg.Addr, Timeout: cfg.Timeout}, zapLogger), func() {}
	}

	client, conn, err := grpcclient.DialClassifier(ctx, cfg.Addr, cfg.Timeout, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed to connect to classifier", zap.Error(err))
	}
	return client, func() { _ = conn.Close() }
}

func initAvatarStore(ctx context.Context, cfg config.AvatarConfig, zapLogger *zap.Logger) storage.AvatarStore {
	if cfg.Storage == "s3" {
		store, err := storage.NewS3Store(ctx, storage.S3Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			PublicURL:       cfg.PublicURL,
		})
		if err != nil {
			zapLogger.Fatal("failed to initialize avatar bucket", zap.Error(err))
		}
		return store
	}

	store, err := storage.NewLocalStore(afero.NewOsFs(), cfg.Dir, cfg.PublicURL)
	if err != nil {
		zapLogger.Fatal("failed to prepare avatar dir", zap.Error(err))
	}
	return store
}

func serveHTTPServer(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) error {
	return serveHTTPServerWithOptions(server, shutdownTimeout, logger, nil, nil)
}

func serveHTTPServerWithOptions(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signalCh <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if listener != nil {
			err = server.Serve(listener)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	var (
		sigCh       <-chan os.Signal
		stopSignals func()
	)

	if signalCh != nil {
		sigCh = signalCh
		stopSignals = func() {}
	} else {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		sigCh = ch
		stopSignals = func() {
			signal.Stop(ch)
		}
	}
	defer stopSignals()

	select {
	case err := <-errCh:
		return err
	case sig, ok := <-sigCh:
		if !ok {
			return <-errCh
		}
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}
