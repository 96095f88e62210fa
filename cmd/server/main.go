package main

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/resumeflow/resumeflow/internal"
	"github.com/resumeflow/resumeflow/internal/domain"
	"github.com/resumeflow/resumeflow/internal/handler"
	"github.com/resumeflow/resumeflow/internal/metrics"
	"github.com/resumeflow/resumeflow/internal/middleware"
	"github.com/resumeflow/resumeflow/internal/repository"
	"github.com/resumeflow/resumeflow/internal/service"
)

func run() error {
	ctx := context.Background()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// Initialize database connection
	db, err := sql.Open("pgx", cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	// Run migrations
	if err := internal.RunMigrations(db); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	logger.Info("Database ready")

	// Load the limit catalog, applying file overrides if configured
	catalog, err := internal.LoadCatalog(cfg.RateLimitsFile)
	if err != nil {
		return fmt.Errorf("limit catalog failed: %w", err)
	}

	// Initialize repository
	store := repository.NewStore(db)

	// Initialize services
	tierResolver := service.NewTierResolver(store, logger)
	limiter := service.NewRateLimitService(store, catalog, tierResolver, logger)
	allowance := service.NewAllowanceService(store, tierResolver, logger)

	// Enforcer construction validates the catalog/routing configuration;
	// a mismatch fails the boot here, not a request later.
	enforcer, err := service.NewEnforcer(limiter, allowance, tierResolver, catalog, logger)
	if err != nil {
		return fmt.Errorf("enforcement configuration invalid: %w", err)
	}

	// Initialize middleware
	identityMw := middleware.NewIdentityMiddleware(logger)
	limitMw := middleware.NewRateLimitMiddleware(enforcer, logger)
	loggingMw := middleware.NewRequestLoggingMiddleware(logger)

	// Initialize handlers
	quotaHandler := handler.NewQuotaHandler(enforcer, allowance, store, logger, cfg.AdminToken)

	// ==========================================================================
	// Create router and register routes
	// ==========================================================================

	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Prometheus metrics, optionally behind basic auth
	mux.Handle("GET /metrics", metricsHandler(cfg))

	// Quota status and administration
	quotaHandler.RegisterRoutes(mux)

	// Gateway-style enforcement: one route per operation kind. The resume
	// and job services call these before performing the limited action;
	// an allowed attempt is recorded and answered 204 with the rate limit
	// headers set.
	allowed := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	for _, kind := range domain.OperationKinds() {
		mux.Handle("POST /api/enforce/"+string(kind), limitMw.Limit(kind)(allowed))
	}

	root := middleware.Stack(
		loggingMw.Handler,
		metrics.Middleware,
		identityMw.WithIdentity,
	)(mux)

	// ==========================================================================
	// Start server
	// ==========================================================================

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: root,
	}

	// Channel to listen for interrupt signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Start server in goroutine
	go func() {
		logger.Info("Server started", "address", server.Addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
		}
	}()

	// Wait for interrupt signal
	<-sigChan
	logger.Info("Shutdown signal received, initiating graceful shutdown...")

	// Create shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}

	logger.Info("Graceful shutdown complete")
	return nil
}

// metricsHandler wraps the prometheus handler with basic auth when
// credentials are configured.
func metricsHandler(cfg *internal.Config) http.Handler {
	promHandler := promhttp.Handler()
	if cfg.MetricsUsername == "" && cfg.MetricsPassword == "" {
		return promHandler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok ||
			subtle.ConstantTimeCompare([]byte(user), []byte(cfg.MetricsUsername)) != 1 ||
			subtle.ConstantTimeCompare([]byte(pass), []byte(cfg.MetricsPassword)) != 1 {
			w.Header().Set("WWW-Authenticate", `Basic realm="metrics"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		promHandler.ServeHTTP(w, r)
	})
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
