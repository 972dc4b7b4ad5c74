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

	"github.com/UniReviews/community-service/internal/config"
	"github.com/UniReviews/community-service/internal/handler"
	"github.com/UniReviews/community-service/internal/mailer"
	"github.com/UniReviews/community-service/internal/rabbitmq"
	"github.com/UniReviews/community-service/internal/repository"
	"github.com/UniReviews/community-service/internal/repository/postgres"
	"github.com/UniReviews/community-service/internal/repository/realtime"
	"github.com/UniReviews/community-service/internal/repository/redisrepo"
	"github.com/UniReviews/community-service/internal/service"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := loadEnv(); err != nil {
		log.Fatalf("failed to load environment variables: %s", err.Error())
	}

	cfg, err := config.Load(".")
	if err != nil {
		log.Fatalf("failed to initialize config: %s", err.Error())
	}

	logger, err := newLogger(cfg.Log.OutputPaths)
	if err != nil {
		log.Fatalf("failed to create zap logger: %s", err.Error())
	}
	defer logger.Sync()

	mq, err := rabbitmq.New(cfg.RabbitMQ)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %s", err.Error())
	}
	defer mq.Close()

	db, err := postgres.Connect(ctx, cfg.DB)
	if err != nil {
		log.Fatalf("db connection error: %s", err.Error())
	}
	defer db.Close()
	if err := db.Ping(ctx); err != nil {
		log.Fatalf("couldn't ping postgres db: %s", err.Error())
	}
	log.Println("Successfully connected to PostgreSQL")

	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
	})
	defer rdb.Close()
	pong, err := rdb.Ping(ctx).Result()
	if err != nil {
		log.Fatalf("failed to ping redis: %s", err.Error())
	}
	log.Printf("Successfully connected to Redis: %s\n", pong)

	store := newStore(cfg.Store, logger, rdb)

	repo := repository.New(db, store)
	services := service.New(logger, cfg, repo, rdb, mq)
	handlers := handler.New(logger, services, cfg)

	mailer.New(logger, mq).StartProcessing()

	go services.User.StartCreating(ctx)
	go services.User.StartUpdating(ctx)
	go services.Notification.StartProcessingInbound(ctx)
	go services.Notification.StartProcessingForumEvents(ctx)

	if err := services.Notification.StartJobs(); err != nil {
		log.Fatalf("failed to start notification jobs: %s", err.Error())
	}
	if err := services.Chat.StartJobs(); err != nil {
		log.Fatalf("failed to start chat jobs: %s", err.Error())
	}

	srv := &http.Server{
		Addr:              cfg.App.Port,
		Handler:           handlers.SetupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server error: %s", err.Error())
		}
	}()

	log.Printf("Community service started on %s (store: %s)", cfg.App.Port, cfg.Store.Driver)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	<-quit

	log.Println("Community service shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Sugar().Errorf("failed to shut down http server: %s", err.Error())
	}
	if err := services.Notification.StopJobs(); err != nil {
		logger.Sugar().Errorf("failed to stop notification jobs: %s", err.Error())
	}
	if err := services.Chat.StopJobs(); err != nil {
		logger.Sugar().Errorf("failed to stop chat jobs: %s", err.Error())
	}
}

func newStore(cfg config.StoreConfig, logger *zap.Logger, rdb *redis.Client) realtime.Store {
	if cfg.Driver == "memory" {
		log.Println("Using the in-process realtime store, state is lost on restart")
		return realtime.NewMemory()
	}
	return redisrepo.NewStore(logger, rdb, cfg.KeyPrefix)
}

// loadEnv loads .env when present; the environment alone is enough in containers.
func loadEnv() error {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func newLogger(outputPaths []string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = outputPaths
	return cfg.Build()
}
