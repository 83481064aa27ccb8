package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/careloop/patientsync/pkg/api/auth"
	"github.com/careloop/patientsync/pkg/api/middleware"
	"github.com/careloop/patientsync/pkg/cache"
	"github.com/careloop/patientsync/pkg/common/config"
	"github.com/careloop/patientsync/pkg/common/database"
	"github.com/careloop/patientsync/pkg/common/kafka"
	"github.com/careloop/patientsync/pkg/common/logger"
	"github.com/careloop/patientsync/pkg/observability/metrics"
	"github.com/careloop/patientsync/pkg/patient"
	"github.com/careloop/patientsync/pkg/units"
	"github.com/careloop/patientsync/pkg/upstream"
	"github.com/gorilla/mux"
)

func main() {
	logger.Init()
	cfg := config.Load()

	db, err := database.GetPostgres()
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to connect to postgres")
	}

	repo := patient.NewRepository(db)
	if err := repo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate patients table")
	}
	if err := cache.MigrateDurable(db); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate durable cache table")
	}

	catalog, err := units.Load(cfg.UnitCatalogPath)
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to load unit catalog")
	}

	redisClient := database.GetRedis()
	backend := cache.NewRedisBackend(redisClient)
	cacheStore := cache.NewStore(backend, cfg.ListCacheTTL, cfg.DetailCacheTTL, cfg.ProcessCacheTTL)
	durable := cache.NewDurable(cache.NewGormDurableStore(db), cfg.DurableCacheTTL)
	limiter := cache.NewRateLimiter(backend, "patients:process", cfg.ProcessRateLimitPerMinute)

	upstreamClient := upstream.NewClient(cfg.UpstreamBaseURL, cfg.UpstreamRequestTimeout, cfg.UpstreamRetryAttempts, cfg.UpstreamRetryBaseDelay)

	producer := kafka.NewProducer(cfg.PatientTopic)
	defer producer.Close()

	service := patient.NewService(repo, upstreamClient, cacheStore, durable, producer, limiter, patient.NewValidator(catalog))
	handler := patient.NewHandler(service)

	router := mux.NewRouter()
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)
	router.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	}).Methods(http.MethodGet)
	router.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		metrics.WritePrometheus(w)
	}).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	handler.Register(api)
	if cfg.OIDCIssuer != "" {
		oidcAuth, err := auth.NewOIDCAuthenticator(cfg.OIDCIssuer, cfg.OIDCClientID, cfg.OIDCClientSecret)
		if err != nil {
			logger.Log.WithError(err).Fatal("failed to configure OIDC")
		}
		api.Use(middleware.Authenticate(oidcAuth))
	}

	router.Use(middleware.Recovery)
	router.Use(middleware.Logging)
	router.Use(middleware.CORS(cfg.CORSAllowedOrigins))
	router.Use(middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
	router.Use(middleware.BodyLimit(cfg.MaxRequestBody))

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host": cfg.ServerHost,
			"port": cfg.ServerPort,
		}).Info("Patient Service started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down Patient Service...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Log.WithError(err).Error("server forced to shutdown")
	}

	database.ClosePostgres()
	database.CloseRedis()

	logger.Log.Info("Patient Service stopped")
}
