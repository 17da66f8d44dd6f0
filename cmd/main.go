package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/payline-dev/payline/handler"
	"github.com/payline-dev/payline/infra/config"
	"github.com/payline-dev/payline/infra/logger"
	"github.com/payline-dev/payline/infra/middle"
	"github.com/payline-dev/payline/infra/opensearch"
	"github.com/payline-dev/payline/infra/response"
	"github.com/payline-dev/payline/provider"
	"github.com/payline-dev/payline/router"
)

var (
	PORT             string
	openSearchLogger *opensearch.Logger
)

func init() {
	// Load Env
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}
	// init conf
	_ = config.App()

	PORT = config.GetEnv("APP_PORT", "9999")

	// Initialize OpenSearch client and logger
	cfg := config.GetAppConfig()
	if cfg.EnableLogging {
		osClient, err := opensearch.NewClient(cfg)
		if err != nil {
			log.Printf("Failed to initialize OpenSearch client: %v", err)
			log.Println("Continuing without OpenSearch logging...")
		} else {
			openSearchLogger = opensearch.NewLogger(osClient)
			log.Println("OpenSearch logging initialized successfully")
		}
	} else {
		log.Println("OpenSearch logging is disabled")
	}

	if openSearchLogger != nil {
		logger.InitGlobalLogger(openSearchLogger)
	} else {
		logger.InitGlobalLogger(nil)
	}
}

func main() {
	cfg := config.GetAppConfig()

	// Session store keeps the local payment state machine
	sessionStore, err := provider.NewSQLiteSessionStore(cfg.SessionDBPath)
	if err != nil {
		log.Fatalf("Failed to open session store: %v", err)
	}
	defer sessionStore.Close()

	// Payment logger keeps the request/response audit trail
	paymentLogger, err := provider.NewSQLitePaymentLogger(cfg.LogDBPath)
	if err != nil {
		log.Fatalf("Failed to open payment log store: %v", err)
	}
	defer paymentLogger.Close()

	paymentService := provider.NewPaymentService(sessionStore, paymentLogger)

	// Provider configuration, persisted between restarts
	providerConfig, err := config.NewProviderConfigWithStorage(cfg.ConfigDBPath)
	if err != nil {
		log.Printf("Provider config storage unavailable, using memory only: %v", err)
		providerConfig = config.NewProviderConfig()
	}
	defer providerConfig.Close()

	registerProviders(paymentService, providerConfig)

	// Initialize handlers
	validate := validator.New()
	paymentHandler := handler.NewPaymentHandler(paymentService, validate)
	healthHandler := handler.NewHealthHandler(sessionStore.DB(), openSearchLogger, paymentService, providerConfig)

	// Chi Define Routes
	r := chi.NewRouter()

	// Basic Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middle.PanicRecoveryMiddleware())
	r.Use(middleware.Timeout(60 * time.Second))

	// Security Middleware
	rateLimiter := middle.NewRateLimiter()
	r.Use(middle.SecurityHeadersMiddleware())
	r.Use(middle.IPWhitelistMiddleware())
	r.Use(middle.RateLimitMiddleware(rateLimiter))
	r.Use(middle.RequestValidationMiddleware())

	// OpenSearch Logging Middleware (add before authentication to log all requests)
	if openSearchLogger != nil {
		r.Use(middle.PaymentLoggingMiddleware(openSearchLogger))
		r.Use(middle.LoggingStatsMiddleware(openSearchLogger))
		log.Println("Payment logging middleware enabled")
	}

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Origin", "X-Requested-With"},
		ExposedHeaders:   []string{"Link", "Content-Length", "Access-Control-Allow-Origin"},
		AllowCredentials: true,
		MaxAge:           300, // Preflight cache time (second)
	}))

	// Health check endpoint (no auth required)
	r.Get("/health", healthHandler.CheckHealth)

	// API routes, webhooks included
	router.Routes(r, paymentHandler)

	// Not Found
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.WriteJSON(w, http.StatusNotFound, response.Response{Code: http.StatusNotFound, Success: false, Message: "Not Found"})
	})

	// Create a context that listens for interrupt and terminate signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", PORT),
		Handler:           r,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 60 * time.Second,
	}

	// Run your HTTP server in a goroutine
	go func() {
		err := server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			log.Fatal(err.Error())
		}
	}()

	log.Println("API is running on", PORT)

	// Block until a signal is received
	<-ctx.Done()

	log.Println("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
}

// registerProviders wires every configured payment provider into the service.
// Environment variables win over stored configuration for the same provider.
func registerProviders(paymentService *provider.PaymentService, providerConfig *config.ProviderConfig) {
	for _, providerName := range provider.DefaultRegistry.ProviderNames() {
		if envCfg := config.ProviderConfigFromEnv(providerName); len(envCfg) > 0 {
			if err := providerConfig.SetConfig(providerName, envCfg); err != nil {
				log.Printf("Failed to store configuration for provider %s: %v", providerName, err)
			}
		}
	}

	registered := 0
	for _, providerName := range providerConfig.GetAvailableProviders() {
		providerCfg, err := providerConfig.GetConfig(providerName)
		if err != nil {
			log.Printf("Failed to get configuration for provider %s: %v", providerName, err)
			continue
		}

		if err := paymentService.AddProvider(providerName, providerCfg); err != nil {
			log.Printf("Failed to register provider %s: %v", providerName, err)
			continue
		}

		if registered == 0 {
			if err := paymentService.SetDefaultProvider(providerName); err != nil {
				log.Printf("Failed to set default provider: %v", err)
			} else {
				log.Printf("Default payment provider set to: %s", providerName)
			}
		}
		registered++

		log.Printf("Registered payment provider: %s", providerName)
	}

	if registered == 0 {
		log.Println("No payment providers configured!")
	}
}
