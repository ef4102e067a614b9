package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"loyalty-api/internal/auth"
	"loyalty-api/internal/cache"
	"loyalty-api/internal/config"
	"loyalty-api/internal/database"
	"loyalty-api/internal/events"
	"loyalty-api/internal/features"
	"loyalty-api/internal/handler"
	"loyalty-api/internal/middleware"
	"loyalty-api/internal/service"
	"loyalty-api/internal/tracing"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func main() {
	configFile := flag.String("config", "", "Config file path (JSON)")
	port := flag.String("port", "", "Server port (overrides config)")
	dbPath := flag.String("db", "", "Database file path (overrides config)")
	flag.Parse()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *port != "" {
		cfg.Server.Port = *port
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Initialize database
	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	// Initialize tracing
	if _, err := tracing.InitTracing(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: "loyalty-api",
		Environment: cfg.Tracing.Environment,
	}); err != nil {
		log.Fatalf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracing.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracing: %v", err)
		}
	}()

	// Initialize cache backend
	var cacheBackend cache.Cache
	if cfg.Redis.Addr != "" {
		redisCache, err := cache.NewRedisCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisCache.Close()
		cacheBackend = redisCache
		log.Printf("Cache: redis at %s", cfg.Redis.Addr)
	} else {
		cacheBackend = cache.NewInMemoryCache()
		log.Printf("Cache: in-memory")
	}

	// Feature flags
	flags := features.NewManager()
	flags.Register(features.FeatureCacheEnabled, true, "read-through cache for catalog and card discovery")
	flags.Register(features.FeatureEventHooksEnabled, true, "async event hooks")
	flags.Register(features.FeatureOldestFirstConsumption, false, "consume stamps by activation time instead of slot order")

	// Events
	eventManager := events.NewManager(true)
	defer eventManager.Shutdown()
	eventManager.Subscribe(events.EventRewardRedeemed, func(ctx context.Context, e events.Event) error {
		if data, ok := e.Data.(events.RewardRedeemedData); ok {
			log.Printf("reward redeemed: card=%s stage=%d reward=%q",
				data.Receipt.CardID, data.Receipt.StageIndex, data.Receipt.Reward)
		}
		return nil
	})

	// Initialize service
	svc := service.NewService(db, service.Options{
		Cache:  cacheBackend,
		Events: eventManager,
		Flags:  flags,
	})

	// Token manager and handlers
	tokens := auth.NewManager(cfg.Auth.JWTSecret, time.Duration(cfg.Auth.TokenTTL)*time.Second)
	h := handler.NewHandlerWithOptions(svc, tokens, handler.NewHandlerOptions{
		MaxBodySize: cfg.Security.MaxRequestBodySize,
	})

	// Initialize rate limiter
	rateLimiter := middleware.NewRateLimiter(cfg.RateLimit.Rate, time.Duration(cfg.RateLimit.Window)*time.Second)
	defer rateLimiter.Stop()

	// Setup router
	r := chi.NewRouter()

	// Middleware (order matters)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(middleware.TracingMiddleware())

	if cfg.RateLimit.Enabled {
		r.Use(middleware.RateLimitMiddleware(rateLimiter))
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.Security.AllowedOrigins},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Routes
	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
	})

	r.Route("/products", func(r chi.Router) {
		r.Get("/", h.ListProducts)
		r.Group(func(r chi.Router) {
			r.Use(tokens.Middleware, auth.RequireAdmin)
			r.Post("/", h.UpsertProduct)
			r.Delete("/{product_id}", h.DeleteProduct)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(tokens.Middleware)

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", h.CreateOrder)
			r.Get("/", h.ListOrders)
		})

		r.Route("/wallet", func(r chi.Router) {
			r.Get("/", h.GetWallet)
			r.Post("/credit", h.CreditWallet)
		})

		r.Route("/cards", func(r chi.Router) {
			r.With(auth.RequireAdmin).Post("/", h.CreateCard)
			r.Get("/", h.ListCards)
			r.Get("/discover", h.DiscoverCard)
			r.Post("/activate", h.ActivateCard)
			r.Post("/{card_id}/stamps/activate", h.ActivateStamp)
			r.Post("/{card_id}/redeem", h.RedeemReward)
			r.Post("/{card_id}/use", h.UseGiftCard)
		})
	})

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Start server
	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	log.Printf("Starting HTTP server on %s", addr)
	log.Printf("Database: %s", cfg.Database.Path)
	log.Printf("Rate limit: %d requests per %d seconds", cfg.RateLimit.Rate, cfg.RateLimit.Window)

	server := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	// Graceful shutdown
	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		<-sigint

		log.Println("Shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down server: %v", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server failed: %v", err)
	}
}
