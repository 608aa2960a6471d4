package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/pharmaflow/pharmaflow-backend/internal/inventory/consumers"
	"github.com/pharmaflow/pharmaflow-backend/internal/inventory/events"
	"github.com/pharmaflow/pharmaflow-backend/internal/inventory/handler"
	"github.com/pharmaflow/pharmaflow-backend/internal/inventory/repository"
	"github.com/pharmaflow/pharmaflow-backend/internal/inventory/service"
	"github.com/pharmaflow/pharmaflow-backend/pkg/config"
	"github.com/pharmaflow/pharmaflow-backend/pkg/database"
	"github.com/pharmaflow/pharmaflow-backend/pkg/httputil"
	"github.com/pharmaflow/pharmaflow-backend/pkg/logger"
	"github.com/pharmaflow/pharmaflow-backend/pkg/messaging"
)

func main() {
	// Load configuration with validation (fails fast in production if required config is missing)
	cfg, err := config.LoadWithValidation("inventory-service")
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New("inventory-service", cfg.Server.Environment)
	log.Info().Msg("starting Inventory Service")

	// Connect to database
	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// Connect to RabbitMQ
	rmq, err := messaging.New(&cfg.RabbitMQ, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
	}
	defer rmq.Close()

	// Initialize event publisher
	pub, err := messaging.NewPublisher(rmq, messaging.ExchangeInventoryEvents, "inventory-service", log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create event publisher")
	}
	publisher := events.NewInventoryEventPublisher(pub, log)

	// Initialize repositories
	productRepo := repository.NewProductRepository(db)
	batchRepo := repository.NewBatchRepository(db)
	movementRepo := repository.NewMovementRepository(db)
	userCacheRepo := repository.NewUserCacheRepository(db)

	// Initialize service
	inventoryService := service.NewInventoryService(
		db, productRepo, batchRepo, movementRepo, userCacheRepo,
		publisher, log, cfg.Inventory,
	)

	// Initialize handlers
	productHandler := handler.NewProductHandler(inventoryService, log)
	batchHandler := handler.NewBatchHandler(inventoryService, log)
	movementHandler := handler.NewMovementHandler(inventoryService, log)
	allocationHandler := handler.NewAllocationHandler(inventoryService, log)
	alertHandler := handler.NewAlertHandler(inventoryService, log)

	// Start user event consumer
	userConsumer, err := consumers.NewUserConsumer(rmq, userCacheRepo, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create user event consumer")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := userConsumer.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start user event consumer")
	}

	// Create router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:5173"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(httputil.ActorMiddleware(&cfg.Auth))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]interface{}{
			"status":   "healthy",
			"service":  "inventory-service",
			"database": db.Health(r.Context()),
			"rabbitmq": rmq.Health(),
		})
	})

	// API routes
	r.Route("/api/v1/inventory", func(r chi.Router) {
		r.Use(httputil.RequireActor)

		// Product routes
		r.Route("/products", func(r chi.Router) {
			r.Get("/", productHandler.List)
			r.Post("/", productHandler.Create)
			r.Route("/{productID}", func(r chi.Router) {
				r.Get("/", productHandler.Get)
				r.Put("/", productHandler.Update)
				r.Delete("/", productHandler.Delete)
				r.Post("/reconcile", productHandler.Reconcile)
				r.Get("/batches", batchHandler.ListByProduct)
				r.Post("/batches", batchHandler.Create)
				r.Get("/movements", movementHandler.ListByProduct)
				r.Post("/movements", movementHandler.Record)
				r.Get("/allocations/fifo", allocationHandler.Preview)
				r.Post("/allocations/consume", allocationHandler.Consume)
				r.Post("/allocations/commit", allocationHandler.Commit)
			})
		})

		// Batch routes
		r.Route("/batches", func(r chi.Router) {
			r.Get("/{batchID}", batchHandler.Get)
			r.Put("/{batchID}", batchHandler.Update)
			r.Delete("/{batchID}", batchHandler.Delete)
			r.Post("/{batchID}/block", batchHandler.Block)
			r.Post("/{batchID}/unblock", batchHandler.Unblock)
		})

		// Movement routes
		r.Route("/movements", func(r chi.Router) {
			r.Get("/pending", movementHandler.ListPending)
			r.Get("/{movementID}", movementHandler.Get)
			r.Post("/{movementID}/approve", movementHandler.Approve)
			r.Delete("/{movementID}", movementHandler.Delete)
		})

		// Alert routes
		r.Get("/alerts/summary", alertHandler.Summary)
	})

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Cancel context to stop consumers
	cancel()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
