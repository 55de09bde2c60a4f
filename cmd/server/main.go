package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"spotx/internal/api"
	"spotx/internal/auth"
	"spotx/internal/config"
	"spotx/internal/db"
	"spotx/internal/exchange"
	"spotx/internal/queue"
	"spotx/internal/ws"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	var logLevel slog.Level
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database connection pool.
	database, err := db.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer database.Close()

	// Match notifications go out over per-user websocket channels.
	hub := ws.NewHub(logger)

	// Order lifecycle service. The dispatcher is wired below once the
	// queue exists; matching triggered before that moment would have no
	// consumer anyway.
	orders := exchange.NewService(database, nil, hub, cfg.CommissionRate, logger)

	// Matching trigger queue: Kafka when brokers are configured, an
	// in-process worker pool otherwise. Both deliver at least once.
	var dispatcher exchange.Dispatcher
	if len(cfg.KafkaBrokers) > 0 {
		kafkaDispatcher := queue.NewKafkaDispatcher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer kafkaDispatcher.Close()

		consumer := queue.NewKafkaConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroup,
			orders.MatchOpenOrder, cfg.MatchTimeout, logger)
		defer consumer.Close()
		go func() {
			if err := consumer.Run(ctx); err != nil {
				logger.Error("match consumer stopped", slog.String("error", err.Error()))
			}
		}()

		dispatcher = kafkaDispatcher
		logger.Info("using kafka match queue", slog.String("topic", cfg.KafkaTopic))
	} else {
		local := queue.NewLocal(orders.MatchOpenOrder, cfg.MatchWorkers, cfg.MatchBuffer, cfg.MatchTimeout, logger)
		local.Start(ctx)
		defer local.Close()

		dispatcher = local
		logger.Info("using in-process match queue", slog.Int("workers", cfg.MatchWorkers))
	}
	orders.SetDispatcher(dispatcher)

	authService := auth.NewAuthService(database, cfg.JWTSecret)
	handler := api.NewHandler(database, orders, authService, hub)

	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// WebSocket endpoint (token via header or query parameter)
	r.Get("/ws", handler.ServeWS)

	// Public endpoints
	r.Post("/auth/register", handler.Register)
	r.Post("/auth/login", handler.Login)

	// Protected endpoints (require JWT)
	r.Group(func(r chi.Router) {
		r.Use(handler.JWTAuthMiddleware)
		r.Get("/profile", handler.Profile)
		r.Post("/orders", handler.PlaceOrder)
		r.Post("/orders/{id}/cancel", handler.CancelOrder)
		r.Get("/orders", handler.GetOrderBook)
		r.Get("/my-orders", handler.GetMyOrders)
		r.Get("/trades", handler.GetUserTrades)
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	go func() {
		logger.Info("server starting", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutdown signal received", slog.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.String("error", err.Error()))
	}
	cancel()

	logger.Info("server stopped")
}
