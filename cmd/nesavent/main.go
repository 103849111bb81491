package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nesavent/internal/analytics"
	analytics_api "nesavent/internal/analytics/api"
	"nesavent/internal/auth"
	"nesavent/internal/clock"
	"nesavent/internal/config"
	"nesavent/internal/database/migrations"
	"nesavent/internal/events"
	eventdb "nesavent/internal/events/db"
	"nesavent/internal/events/event_api"
	"nesavent/internal/kafka"
	"nesavent/internal/logger"
	"nesavent/internal/metrics"
	"nesavent/internal/notify"
	"nesavent/internal/order"
	orderdb "nesavent/internal/order/db"
	"nesavent/internal/order/order_api"
	orderredis "nesavent/internal/order/redis"
	handlers "nesavent/internal/payment/handler"
	"nesavent/internal/payment/services"
	"nesavent/internal/sse"
	"nesavent/internal/tickets"
	ticketdb "nesavent/internal/tickets/db"
	"nesavent/internal/tickets/ticket_api"
	"nesavent/internal/users"
	"nesavent/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

func verifyConnections(ctx context.Context, cfg *config.Config, log *logger.Logger) (*bun.DB, *redis.Client) {
	var sqldb *sql.DB
	var err error
	maxRetries := 5

	for i := 0; i < maxRetries; i++ {
		log.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		sqldb, err = sql.Open("postgres", cfg.Database.DSN())
		if err != nil {
			log.Error("DATABASE", fmt.Sprintf("Failed to open PostgreSQL: %v", err))
			time.Sleep(2 * time.Second)
			continue
		}

		err = sqldb.PingContext(ctx)
		if err == nil {
			break
		}

		log.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL after %d attempts: %v", maxRetries, err))
	}

	sqldb.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.Database.MaxLifetime)
	log.LogDatabase("CONNECT", cfg.Database.Database, fmt.Sprintf("PostgreSQL at %s:%s ready (max open %d)", cfg.Database.Host, cfg.Database.Port, cfg.Database.MaxOpenConns))

	bunDB := bun.NewDB(sqldb, pgdialect.New())

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		// Redis only accelerates; orders stay correct without it.
		log.Warn("REDIS", fmt.Sprintf("Redis unavailable at %s: %v", cfg.Redis.Addr, err))
	} else {
		log.Info("REDIS", fmt.Sprintf("Redis connection successful to %s (DB: %d)", cfg.Redis.Addr, cfg.Redis.DB))
	}

	return bunDB, redisClient
}

func newGateway(cfg *config.Config, log *logger.Logger) services.Gateway {
	var (
		gw  services.Gateway
		err error
	)
	switch cfg.Payment.Gateway {
	case "stripe":
		gw, err = services.NewStripeService(cfg.Payment.StripeSecretKey, cfg.Payment.StripeWebhookSecret,
			cfg.Payment.Currency, cfg.Payment.Timeout, log)
	default:
		gw, err = services.NewMidtransService(cfg.Payment.MidtransServerKey, cfg.Payment.MidtransProduction,
			cfg.Payment.Timeout, log)
	}
	if err != nil {
		log.Warn("PAYMENT", fmt.Sprintf("Payment gateway %q disabled: %v", cfg.Payment.Gateway, err))
		return nil
	}
	log.Info("PAYMENT", fmt.Sprintf("Using %s payment gateway", gw.Name()))
	return gw
}

func requestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.LogAPI(r.Method, r.URL.Path, ww.Status(), time.Since(start))
		})
	}
}

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Println("[CONFIG] .env file not found, using environment variables")
	}
	cfg := config.Load()

	log := logger.NewLogger("nesavent", logger.ParseLevel(cfg.LogLevel))
	defer log.Close()

	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		os.Exit(runMigrateCommand(cfg, log, os.Args[2:]))
	}

	log.Info("APP", "Starting NESAVENT ticketing service")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bunDB, redisClient := verifyConnections(ctx, cfg, log)
	defer bunDB.Close()
	defer redisClient.Close()

	if cfg.Database.AutoMigrate {
		runner := migrations.NewRunner(bunDB, log)
		if err := runner.MigrateUp(); err != nil {
			log.Fatal("DATABASE", fmt.Sprintf("Migration failed: %v", err))
		}
	}

	// ---------------- KAFKA ----------------
	var publisher kafka.Publisher
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka.Brokers, log)
		defer producer.Close()
		publisher = producer

		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, cfg.Kafka.Topics.All(), log); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		}
		log.Info("KAFKA", "Kafka producer initialized successfully")
	} else {
		log.Warn("KAFKA", "Kafka disabled, lifecycle events are not published")
	}

	// ---------------- SERVICES ----------------
	clk := clock.Real()
	stock := sse.NewStockEmitter()
	locks := orderredis.NewRedis(redisClient, cfg.Order.PurchaseLockTTL, log)

	notifications := &notify.Store{Bun: bunDB}
	dispatcher := notify.NewDispatcher(notifications, publisher, cfg.Kafka.Topics.Notifications, clk, log)
	if cfg.Kafka.Enabled {
		consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topics.Notifications, cfg.Kafka.GroupID, log)
		defer consumer.Close()
		go consumer.Start(ctx, dispatcher.HandleMessage)
	}

	verifier, err := auth.NewVerifier(ctx, cfg.Auth.OIDCIssuer, cfg.Auth.JWTSecret)
	if err != nil {
		log.Fatal("AUTH", fmt.Sprintf("Failed to initialise token verifier: %v", err))
	}

	eventService := events.NewEventService(
		&eventdb.DB{Bun: bunDB},
		events.NewRedisCache(redisClient, cfg.Events.ListCacheTTL, cfg.Events.ViewCooldown),
		clk,
		log,
	)

	ticketService, err := tickets.NewTicketService(&ticketdb.DB{Bun: bunDB}, cfg.QRSecret, clk, log)
	if err != nil {
		log.Fatal("TICKETS", fmt.Sprintf("Failed to initialise ticket service: %v", err))
	}

	gateway := newGateway(cfg, log)
	orderService := order.NewOrderService(order.Deps{
		DB:       &orderdb.DB{Bun: bunDB},
		Locks:    locks,
		Kafka:    publisher,
		Topics:   cfg.Kafka.Topics,
		Tickets:  ticketService,
		Notifier: dispatcher,
		Stock:    stock,
		Gateway:  gateway,
		Buyers:   &users.DB{Bun: bunDB},
		Clock:    clk,
		Logger:   log,
		HoldTTL:  cfg.Order.ExpiryThreshold,
		Currency: cfg.Payment.Currency,
	})

	analyticsService := analytics.NewService(bunDB)

	// ---------------- BACKGROUND ----------------
	sweeper := order.NewExpirySweeper(orderService, ticketService, cfg.Order.SweepInterval, cfg.Order.ExpiryThreshold)
	go sweeper.Run(ctx)

	if cfg.Order.HoldNotification {
		if err := locks.EnableKeyspaceEvents(ctx); err != nil {
			log.Warn("REDIS", fmt.Sprintf("Keyspace notifications unavailable, relying on the sweeper: %v", err))
		}
		go locks.SubscribeHoldExpiry(ctx, cfg.Redis.DB, sweeper.OnHoldExpired)
	}

	// ---------------- HTTP ----------------
	eventHandler := event_api.NewHandler(eventService, ticketService, stock, log)
	orderHandler := order_api.NewHandler(orderService, log)
	ticketHandler := ticket_api.NewHandler(ticketService, log)
	analyticsHandler := analytics_api.NewHandler(analyticsService, eventService, log)

	gin.SetMode(gin.ReleaseMode)
	paymentEngine := gin.New()
	paymentEngine.Use(gin.Recovery())
	handlers.NewPaymentHandler(orderService, gateway, log).Register(paymentEngine, auth.GinMiddleware(verifier))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log))
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		status := "ok"
		if err := bunDB.PingContext(r.Context()); err != nil {
			status = "degraded"
		}
		utils.WriteJSON(w, http.StatusOK, map[string]string{"status": status})
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Mount("/payment", paymentEngine)

	r.Group(func(r chi.Router) {
		r.Use(auth.Optional(verifier))
		eventHandler.PublicRoutes(r)
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(verifier))
		log.Info("AUTH", "JWT middleware applied to protected API routes")

		eventHandler.ProtectedRoutes(r)
		orderHandler.Routes(r)
		ticketHandler.Routes(r)
		analyticsHandler.RegisterRoutes(r)
		r.Get("/notifications", notifications.ListMine)
	})

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("NESAVENT running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	<-ctx.Done()
	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server shutdown failed: %v", err))
	} else {
		log.Info("HTTP", "NESAVENT shutdown complete")
	}
}
