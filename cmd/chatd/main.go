package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"github.com/orbitchat/chat-core/internal/api"
	"github.com/orbitchat/chat-core/internal/cache/redis"
	"github.com/orbitchat/chat-core/internal/chat"
	"github.com/orbitchat/chat-core/internal/completion"
	"github.com/orbitchat/chat-core/internal/config"
	"github.com/orbitchat/chat-core/internal/kvstore"
	"github.com/orbitchat/chat-core/internal/modelpref"
	"github.com/orbitchat/chat-core/internal/retry"
	"github.com/orbitchat/chat-core/internal/service"
	"github.com/orbitchat/chat-core/internal/session"
	"github.com/orbitchat/chat-core/internal/storage/postgres"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("failed to load configuration")
	}

	// Configure log format
	if cfg.LogFormat == "text" {
		logger.SetFormatter(&logrus.TextFormatter{})
	}

	logger.Info("starting chat-core server")

	// Connect to database
	ctx := context.Background()
	db, err := postgres.New(ctx, cfg.Database.DSN, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to database")
	}
	defer db.Close()

	// Initialize Redis client
	redisClient, err := redis.New(cfg.Redis.URI)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to redis")
	}
	defer redisClient.Close()

	// Initialize repositories
	convRepo := postgres.NewConversationRepository(db.Pool())
	msgRepo := postgres.NewMessageRepository(db.Pool())

	// Session against the completion endpoint
	tokenSource := session.NewTokenSource(cfg.Session.RefreshURL, logger)
	tokenSource.SetToken(cfg.Session.AccessToken)

	// Lifecycle collaborators
	completionClient := completion.NewClient(cfg.Completion.BaseURL, cfg.Completion.DefaultModel, cfg.Completion.Timeout)
	retryPolicy := retry.NewPolicy(cfg.Retry.MaxAttempts, cfg.Retry.BaseDelay, cfg.Retry.Exponential, logger)
	gateway := chat.NewGateway(convRepo, msgRepo, logger)
	orchestrator := chat.NewOrchestrator(completionClient, gateway, retryPolicy, tokenSource, logger)
	rooms := chat.NewRegistry(cfg.Animation.Interval, cfg.Animation.ChunkSize, logger)

	// Model selection: durable row + redis cache + in-process subscriptions
	modelStore := modelpref.NewStore(convRepo, redisClient, kvstore.New(), logger)

	// Initialize API server
	authService := service.NewAuthService(cfg.Server.JWTSecret)
	server := api.NewServer(authService, convRepo, msgRepo, orchestrator, rooms, modelStore, cfg.Completion.DefaultModel, logger)

	// Create Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Add middleware
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.WithFields(logrus.Fields{
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"request_id": c.Response().Header().Get(echo.HeaderXRequestID),
			}).Info("request")
			return nil
		},
	}))

	// Health check endpoint (public)
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status": "ok",
		})
	})

	// Chat routes (authenticated)
	g := e.Group("/chat", server.AuthMiddleware)
	g.POST("/conversations", server.CreateConversation)
	g.POST("/conversations/list", server.ListConversations)
	g.GET("/conversations/:id", server.GetConversation)
	g.DELETE("/conversations/:id", server.DeleteConversation)
	g.PUT("/conversations/:id/model", server.SelectModel)
	g.GET("/conversations/:id/state", server.RoomState)
	g.POST("/messages", server.SendMessage)
	g.POST("/messages/:clientId/regenerate", server.RegenerateMessage)

	// Start server
	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	go func() {
		logger.WithField("addr", addr).Info("server listening")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("server error")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("server shutdown error")
	}

	// Let in-flight persistence tasks finish before the pool closes.
	orchestrator.Drain()

	logger.Info("server stopped")
}
