package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/0355290812/petapp-cart/internal/api"
	"github.com/0355290812/petapp-cart/internal/auth"
	"github.com/0355290812/petapp-cart/internal/cart"
	"github.com/0355290812/petapp-cart/internal/httpapi"
	"github.com/0355290812/petapp-cart/internal/store"
)

type Config struct {
	HTTPPort        string
	CartAPIBaseURL  string
	RedisAddr       string
	RedisPassword   string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

func loadConfig() *Config {
	return &Config{
		HTTPPort:        getEnv("HTTP_PORT", "8090"),
		CartAPIBaseURL:  getEnv("CART_API_BASE_URL", "http://localhost:3000/api"),
		RedisAddr:       getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		RequestTimeout:  15 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	cfg := loadConfig()

	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal("redis connection failed", zap.Error(err))
	}
	log.Info("connected to redis", zap.String("addr", cfg.RedisAddr))

	session := auth.NewSession()
	snapshots := store.NewRedisStore(redisClient)
	remote := api.NewClient(cfg.CartAPIBaseURL, session, cfg.RequestTimeout)

	cartStore := cart.NewService(snapshots, remote, session, log)
	if err := cartStore.LoadFromStorage(ctx); err != nil {
		log.Warn("load persisted cart failed, starting empty", zap.Error(err))
	}

	// react to login/logout for the rest of the process lifetime
	go cartStore.Run(ctx, session.Subscribe())

	cartHandler := httpapi.NewCartHandler(cartStore, log)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(httpapi.RequestIDMiddleware)
	r.Use(httpapi.LogMiddleware(log))
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Mount("/cart", cartHandler.Routes())

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("cart facade listening", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("server forced to shutdown", zap.Error(err))
	}
	log.Info("stopped")
}
