package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	database "github.com/sebuszqo/ClaritySpend/db"
	"github.com/sebuszqo/ClaritySpend/internal/auth"
	"github.com/sebuszqo/ClaritySpend/internal/classifier"
	"github.com/sebuszqo/ClaritySpend/internal/config"
	"github.com/sebuszqo/ClaritySpend/internal/finance/application"
	"github.com/sebuszqo/ClaritySpend/internal/finance/domain"
	"github.com/sebuszqo/ClaritySpend/internal/finance/infrastructure"
	"github.com/sebuszqo/ClaritySpend/internal/finance/interfaces"
	"github.com/sebuszqo/ClaritySpend/internal/logger"
	"github.com/sebuszqo/ClaritySpend/internal/user"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type stores struct {
	users        user.Repository
	transactions domain.TransactionRepository
	health       databaseHealth
	close        func() error
}

func openStores(ctx context.Context, cfg config.Config, log zerolog.Logger) (stores, error) {
	if cfg.Storage.Driver == config.StorageDriverMemory {
		log.Warn().Msg("Using in-memory storage, data is lost on restart")
		return stores{
			users:        user.NewMemoryRepository(),
			transactions: infrastructure.NewMemoryTransactionRepository(),
			close:        func() error { return nil },
		}, nil
	}

	dbService, err := database.NewDBService(ctx, cfg.Storage.ConnectionString, log)
	if err != nil {
		return stores{}, fmt.Errorf("could not initialize database: %w", err)
	}
	return stores{
		users:        user.NewUserRepository(dbService.DB),
		transactions: infrastructure.NewTransactionRepository(dbService.DB, log),
		health:       dbService.Health,
		close:        dbService.Close,
	}, nil
}

func newRedis(cfg config.RedisConfig) (*redis.Client, error) {
	addr, password, db, err := config.ParseRedisURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// StartClassifierHealthScheduler probes the classifier on the configured
// schedule so /api/ready can report its state without calling it inline.
func StartClassifierHealthScheduler(monitor *classifier.HealthMonitor, schedule string, log zerolog.Logger) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		status := monitor.Check(context.Background())
		log.Debug().Bool("healthy", status.Healthy).Msg("classifier health checked")
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	return c, nil
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("missing configuration, update to start server: %w", err)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	ctx := context.Background()
	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.close(); err != nil {
			log.Error().Err(err).Msg("Error closing storage")
		}
	}()

	var cache classifier.Cache
	if cfg.Redis.URL != "" {
		rdb, err := newRedis(cfg.Redis)
		if err != nil {
			log.Warn().Err(err).Msg("Category cache disabled")
		} else {
			defer rdb.Close()
			cache = classifier.NewRedisCache(rdb, cfg.Redis.CacheTTL)
		}
	}

	classifierLog := log.With().Str("component", "classifier").Logger()
	classifierClient := classifier.NewClient(classifier.Config{
		Endpoint: cfg.Classifier.URL,
		Timeout:  cfg.Classifier.Timeout,
		Fallback: cfg.Classifier.Fallback,
	}, cache, classifierLog)

	monitor := classifier.NewHealthMonitor(classifierClient, cfg.Classifier.Timeout, classifierLog)
	go monitor.Check(ctx)
	scheduler, err := StartClassifierHealthScheduler(monitor, cfg.Classifier.HealthSchedule, classifierLog)
	if err != nil {
		return fmt.Errorf("scheduler didn't start: %w", err)
	}
	defer scheduler.Stop()

	if cfg.JWT.Secret == "" {
		log.Warn().Msg("JWT_SECRET is not set, issued tokens will not survive a restart")
	}
	jwtManager, err := auth.NewJWTManager(auth.TokenConfig{
		Secret: cfg.JWT.Secret,
		TTL:    cfg.JWT.TTL,
		Issuer: cfg.JWT.Issuer,
	})
	if err != nil {
		return err
	}

	userService := user.NewUserService(st.users, cfg.Auth.BcryptCost, log)
	userHandler := user.NewHandler(userService)
	authService := auth.NewAuthService(userService, jwtManager, log)
	authHandler := auth.NewHandler(authService)

	transactionService := application.NewTransactionService(st.transactions, classifierClient, cfg.Classifier.Concurrency, log)
	transactionHandler := interfaces.NewPersonalTransactionHandler(transactionService, cfg.HTTP.UploadMaxBytes, respondJSON, respondError)

	server := NewServer(
		authHandler,
		userHandler,
		transactionHandler,
		auth.Gate(jwtManager, userService, log),
		st.health,
		monitor,
		cfg.HTTP.CORSOrigin,
		log,
	)
	server.RegisterRoutes()

	httpServer := &http.Server{
		Addr:         ":" + cfg.HTTP.Port,
		Handler:      server,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", httpServer.Addr).Str("storage", cfg.Storage.Driver).Msg("Server starting")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return fmt.Errorf("server failed to start: %w", err)
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	<-scheduler.Stop().Done()
	return nil
}
