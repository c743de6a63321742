package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/onboardly/onboardly/internal/config"
	"github.com/onboardly/onboardly/internal/database"
	"github.com/onboardly/onboardly/internal/handlers"
	"github.com/onboardly/onboardly/internal/middleware"
	"github.com/onboardly/onboardly/internal/repository"
	"github.com/onboardly/onboardly/internal/services"

	_ "time/tzdata"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	loc, err := cfg.App.Location()
	if err != nil {
		log.Fatalf("Failed to load business timezone: %v", err)
	}

	// Initialize database
	db, err := database.New(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("Error closing database: %v", err)
		}
	}()

	// Run migrations
	if err := database.Migrate(db, cfg.Database.Driver); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Initialize repositories
	repos := repository.NewRepositories(db, cfg.Database.Driver)

	// Initialize services
	svc := services.New(cfg, repos, loc)

	// Start background services
	svc.Poller.Start()
	defer svc.Poller.Stop()

	// Initialize handlers
	h := handlers.New(cfg, svc, repos)

	// Set up router
	mux := http.NewServeMux()

	// Availability and booking API
	mux.HandleFunc("GET /api/slots", h.API.GetSlots)
	mux.HandleFunc("GET /api/availability", h.API.GetAvailability)
	mux.HandleFunc("POST /api/bookings", h.API.CreateBooking)
	mux.HandleFunc("POST /api/bookings/reschedule", h.API.RescheduleBooking)
	mux.HandleFunc("POST /api/bookings/cancel", h.API.CancelBooking)

	// Resource administration (operator only)
	mux.HandleFunc("POST /api/resources", h.Resources.Create)
	mux.HandleFunc("GET /api/resources", h.Resources.List)
	mux.HandleFunc("POST /api/resources/revoke", h.Resources.Revoke)

	// Calendar provider OAuth handshake
	mux.HandleFunc("GET /auth/provider/url", h.Auth.AuthorizeURL)
	mux.HandleFunc("GET /auth/provider/callback", h.Auth.Callback)

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Printf("Error writing health check response: %v", err)
		}
	})

	// Apply global middleware
	handler := middleware.Chain(
		mux,
		middleware.Logger,
		middleware.Recover,
		middleware.RequestID,
		middleware.Operator(cfg.App.OperatorKeyHash),
	)

	// Create server
	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server starting on %s", cfg.Server.Address)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
