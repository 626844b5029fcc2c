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

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/shotcmp/internal/auth"
	"github.com/example/shotcmp/internal/config"
	"github.com/example/shotcmp/internal/grpcclient"
	"github.com/example/shotcmp/internal/handlers"
	"github.com/example/shotcmp/internal/healthcheck"
	"github.com/example/shotcmp/internal/imageprocessor"
	"github.com/example/shotcmp/internal/logging"
	"github.com/example/shotcmp/internal/repository"
	"github.com/example/shotcmp/internal/usecase"
	"github.com/example/shotcmp/pkg/similarity"
)

func main() {
	cfg := config.Load()

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	if len(os.Args) > 1 && os.Args[1] == "healthcheck" {
		if err := probe(cfg.GRPCHealthAddr, logger); err != nil {
			logger.Error("service unhealthy", zap.Error(err))
			os.Exit(1)
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	db := initDatabase(ctx, cfg, logger)
	repo := repository.NewComparisonRepository(db, logger)
	if err := repo.AutoMigrate(ctx); err != nil {
		logger.Fatal("auto migrate failed", zap.Error(err))
	}

	redisCtx, redisCancel := context.WithTimeout(ctx, 5*time.Second)
	defer redisCancel()
	redisClient := initRedis(redisCtx, cfg.RedisAddr, logger)

	cache := usecase.NewRedisCache(redisClient, "shotcmp:")
	processor := imageprocessor.NewLocal(similarity.NewScorer(), logger)
	uc := usecase.NewComparisonUseCase(repo, cache, processor, logger, cfg.DefaultThreshold)

	r := gin.Default()
	r.MaxMultipartMemory = handlers.MaxUploadSize

	authMiddleware := auth.JWTMiddleware(cfg.JWTSecret, cfg.JWTAudience)
	handlers.RegisterRoutes(r, uc, authMiddleware)

	health := healthcheck.New(logger)
	healthListener, err := net.Listen("tcp", cfg.GRPCHealthAddr)
	if err != nil {
		logger.Fatal("failed to listen for health checks", zap.Error(err), zap.String("addr", cfg.GRPCHealthAddr))
	}
	go func() {
		if err := health.Serve(healthListener); err != nil {
			logger.Error("health server stopped", zap.Error(err))
		}
	}()
	defer health.Shutdown()

	listener, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		logger.Fatal("failed to listen", zap.Error(err), zap.String("addr", cfg.HTTPAddr))
	}
	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	health.SetServing(true)
	logger.Info("comparison API listening", zap.String("addr", cfg.HTTPAddr))
	err = serveHTTPServerWithOptions(server, cfg.ShutdownTimeout, logger, listener, nil, func() {
		health.SetServing(false)
	})
	if err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func initDatabase(ctx context.Context, cfg *config.Config, zapLogger *zap.Logger) *gorm.DB {
	var dialector gorm.Dialector
	switch cfg.DatabaseDriver {
	case "sqlite":
		dialector = sqlite.Open(cfg.DatabaseDSN)
	case "postgres":
		dialector = postgres.Open(cfg.DatabaseDSN)
	default:
		zapLogger.Fatal("unsupported database driver", zap.String("driver", cfg.DatabaseDriver))
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
	if err != nil {
		zapLogger.Fatal("failed to connect to database", zap.Error(err), zap.String("driver", cfg.DatabaseDriver))
	}

	sqlDB, err := db.DB()
	if err != nil {
		zapLogger.Fatal("failed to access db handle", zap.Error(err))
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.PingContext(ctx); err != nil {
		zapLogger.Fatal("database ping failed", zap.Error(err))
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

// probe asks a running instance whether it is serving, for container health
// checks.
func probe(addr string, logger *zap.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if host, port, err := net.SplitHostPort(addr); err == nil && host == "" {
		addr = net.JoinHostPort("127.0.0.1", port)
	}
	client, conn, err := grpcclient.DialHealth(ctx, addr, logger)
	if err != nil {
		return err
	}
	defer conn.Close()

	serving, err := client.Serving(ctx, healthcheck.Service)
	if err != nil {
		return err
	}
	if !serving {
		return fmt.Errorf("%s is not serving", healthcheck.Service)
	}
	return nil
}

// serveHTTPServerWithOptions serves until the server fails or a signal arrives,
// then drains in-flight requests. onShutdown runs before draining starts.
func serveHTTPServerWithOptions(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signalCh <-chan os.Signal, onShutdown func()) error {
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
		if onShutdown != nil {
			onShutdown()
		}
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}
