package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clinicore/clinic-platform/internal/cache"
	"github.com/clinicore/clinic-platform/internal/config"
	"github.com/clinicore/clinic-platform/internal/database"
	"github.com/clinicore/clinic-platform/internal/handlers"
	"github.com/clinicore/clinic-platform/internal/identity"
	"github.com/clinicore/clinic-platform/internal/isolation"
	"github.com/clinicore/clinic-platform/internal/middleware"
	"github.com/clinicore/clinic-platform/internal/repository"
	"github.com/clinicore/clinic-platform/pkg/logger"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	// Initialize logger
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	log.Info().Msg("Starting clinic platform")

	// Connect to database
	dbConfig := database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
		LogLevel: cfg.Database.LogLevel,
	}

	if err := database.Connect(dbConfig); err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer database.Close()

	// Initialize hierarchy cache
	var cacheImpl cache.Cache
	if cfg.Cache.Enabled && cfg.Cache.Type == "redis" {
		addr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
		cacheImpl, err = cache.NewRedisCache(addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		log.Info().Msg("Redis hierarchy cache initialized")
	} else {
		cacheImpl = cache.NewMemoryCache()
		log.Info().Msg("Memory hierarchy cache initialized")
	}
	defer cacheImpl.Close()

	// Initialize repositories and the isolation core
	hierarchyRepo := repository.NewHierarchyRepository(database.DB, cacheImpl)
	entityStore := repository.NewEntityStore(database.DB)
	isolationService := isolation.NewService(hierarchyRepo, entityStore)
	auditRepo := repository.NewAuditRepository(database.DB)
	scopedDB := repository.NewScopedDB(database.DB, auditRepo, isolationService)
	patientRepo := repository.NewPatientRepository(scopedDB)
	appointmentRepo := repository.NewAppointmentRepository(scopedDB, isolationService)

	// Identity resolution
	identityResolver := identity.NewResolver(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	scopeResolver := middleware.NewScopeResolver(identityResolver, isolationService, hierarchyRepo, auditRepo)

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler()
	patientHandler := handlers.NewPatientHandler(patientRepo, appointmentRepo)
	contextHandler := handlers.NewContextHandler(isolationService, auditRepo)
	adminHandler := handlers.NewAdminHandler(isolationService, auditRepo)

	// Setup router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Recovery)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Compress(5))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   cfg.CORS.AllowedMethods,
		AllowedHeaders:   cfg.CORS.AllowedHeaders,
		ExposedHeaders:   []string{"Content-Length", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Public endpoints: no scope is ever resolved or held here
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	if cfg.Metrics.Enabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	// Everything below runs inside a resolved access scope
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(scopeResolver.Middleware)

		r.Get("/context", contextHandler.GetScope)
		r.Post("/context/branch", contextHandler.SwitchBranch)

		r.Post("/patients", patientHandler.CreatePatient)
		r.Get("/patients", patientHandler.ListPatients)
		r.Get("/patients/{id}", patientHandler.GetPatient)
		r.Post("/patients/{id}/transfer", patientHandler.TransferPatient)
		r.Get("/patients/{id}/appointments", patientHandler.ListPatientAppointments)
		r.Post("/appointments", patientHandler.CreateAppointment)

		r.Get("/admin/isolation-report", adminHandler.IsolationReport)
		r.Get("/admin/tenants/{tenantID}/company-capacity", adminHandler.CompanyCapacity)
		r.Get("/admin/audit-logs", adminHandler.ListAuditLogs)
	})

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
