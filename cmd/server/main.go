// Command server wires every component of the Ludo room-and-game core
// together: durable storage, cache, auth, rate limiting, the room
// service, connection manager, handler registry, websocket endpoint and
// HTTP API, then runs gin's server with a graceful shutdown.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/viksharma04/ludo-stacked-backend/internal/auth"
	"github.com/viksharma04/ludo-stacked-backend/internal/cache"
	"github.com/viksharma04/ludo-stacked-backend/internal/config"
	"github.com/viksharma04/ludo-stacked-backend/internal/dispatch"
	"github.com/viksharma04/ludo-stacked-backend/internal/durable"
	"github.com/viksharma04/ludo-stacked-backend/internal/health"
	"github.com/viksharma04/ludo-stacked-backend/internal/httpapi"
	"github.com/viksharma04/ludo-stacked-backend/internal/logging"
	"github.com/viksharma04/ludo-stacked-backend/internal/middleware"
	"github.com/viksharma04/ludo-stacked-backend/internal/presence"
	"github.com/viksharma04/ludo-stacked-backend/internal/ratelimit"
	"github.com/viksharma04/ludo-stacked-backend/internal/room"
	"github.com/viksharma04/ludo-stacked-backend/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	if err := logging.Initialize(cfg.Debug); err != nil {
		panic(err)
	}
	logger := logging.GetLogger()
	ctx := context.Background()

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	durableAdapter := durable.New(db)
	if err := durableAdapter.Migrate(); err != nil {
		logger.Fatal("failed to migrate database", zap.Error(err))
	}

	var redisClient *redis.Client
	if cfg.RedisEnabled && cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	}
	cacheClient := cache.New(redisClient)

	validator, err := auth.NewValidator(ctx, cfg.JWKSURL, cfg.JWTIssuer, 5*time.Minute)
	if err != nil {
		logger.Fatal("failed to build auth validator", zap.Error(err))
	}

	limiter, err := ratelimit.NewRateLimiter(cfg, redisClient)
	if err != nil {
		logger.Fatal("failed to build rate limiter", zap.Error(err))
	}

	roomService := room.New(durableAdapter, cacheClient)
	manager := presence.New(roomService, cacheClient, presence.WithTimings(cfg.WSHeartbeatInterval, cfg.WSConnectionTimeout))

	reaperCtx, stopReaper := context.WithCancel(ctx)
	manager.StartReaper(reaperCtx)

	registry := dispatch.NewRegistry()
	handlers := &dispatch.Handlers{Rooms: roomService, Validator: validator}
	handlers.RegisterAll(registry)

	endpoint := ws.NewEndpoint(manager, registry, cfg.CORSOrigins, limiter)
	healthChecker := health.New(durableAdapter, cacheClient)
	api := &httpapi.API{Profiles: durableAdapter, Rooms: roomService, Health: healthChecker}

	if cfg.GoEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), middleware.CorrelationID())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSOrigins
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "Authorization")
	router.Use(cors.New(corsConfig))

	// Registered before the global rate-limit middleware below so neither
	// route inherits it: /metrics is scraped on a fixed interval by
	// infrastructure, and /api/v1/ws enforces its own per-IP cap
	// (ratelimit.CheckWebSocketIP) ahead of the protocol upgrade instead.
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/api/v1/ws", endpoint.ServeWS)

	router.Use(limiter.GlobalMiddleware())
	api.RegisterRoutes(router, middleware.RequireAuth(validator), limiter.MiddlewareForEndpoint("rooms"))

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: router}

	go func() {
		logger.Info("server starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	stopReaper()
	manager.StopReaper(5 * time.Second)

	logger.Info("server exited")
}
