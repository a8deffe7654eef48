package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/synaptica-ai/rxdigitizer/pkg/aggregation"
	"github.com/synaptica-ai/rxdigitizer/pkg/common/config"
	"github.com/synaptica-ai/rxdigitizer/pkg/common/database"
	"github.com/synaptica-ai/rxdigitizer/pkg/common/kafka"
	"github.com/synaptica-ai/rxdigitizer/pkg/common/logger"
	"github.com/synaptica-ai/rxdigitizer/pkg/deid"
	"github.com/synaptica-ai/rxdigitizer/pkg/dlp"
	"github.com/synaptica-ai/rxdigitizer/pkg/extraction"
	"github.com/synaptica-ai/rxdigitizer/pkg/gateway/auth"
	"github.com/synaptica-ai/rxdigitizer/pkg/gateway/middleware"
	"github.com/synaptica-ai/rxdigitizer/pkg/imagestore"
	"github.com/synaptica-ai/rxdigitizer/pkg/llm"
	"github.com/synaptica-ai/rxdigitizer/pkg/observability/metrics"
	"github.com/synaptica-ai/rxdigitizer/pkg/ocr"
	"github.com/synaptica-ai/rxdigitizer/pkg/prescription"
)

func main() {
	logger.Init()
	cfg := config.Load()

	db, err := database.GetPostgres()
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to connect to postgres")
	}
	defer database.ClosePostgres()

	var cache *aggregation.Cache
	if client, err := database.GetRedis(); err != nil {
		logger.Log.WithError(err).Warn("running without stats cache")
	} else {
		cache = aggregation.NewCache(client, cfg.StatsCacheTTL)
		defer database.CloseRedis()
	}

	repo := prescription.NewRepository(db)
	if err := repo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate prescription tables")
	}
	stats := aggregation.NewStore(db, cache)
	if err := stats.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate medicine stats table")
	}

	images, err := imagestore.New(cfg.UploadDir)
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to prepare upload directory")
	}

	rules, err := dlp.LoadRules(cfg.DLPRulesPath)
	if err != nil {
		logger.Log.WithError(err).Warn("failed to load DLP rules, using defaults")
		rules = dlp.DefaultRules()
	}
	auditor, err := dlp.NewDetector(rules)
	if err != nil {
		logger.Log.WithError(err).Fatal("invalid DLP rules")
	}

	model := llm.NewClient(llm.Options{
		BaseURL:     cfg.LLMBaseURL,
		APIKey:      cfg.LLMAPIKey,
		Model:       cfg.LLMModelName,
		Temperature: cfg.LLMTemperature,
		Timeout:     cfg.LLMTimeout,
	})
	recognizer := ocr.NewRecognizer(ocr.Options{
		APIKey:   cfg.OCRAPIKey,
		Endpoint: cfg.OCRBaseURL,
		Language: cfg.OCRLanguage,
		Engine:   cfg.OCREngine,
		Timeout:  cfg.OCRTimeout,
	})

	var events prescription.EventPublisher
	if len(cfg.KafkaBrokers) > 0 {
		producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.PrescriptionEventsTopic)
		defer producer.Close()
		events = producer
	}

	tokens, err := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTTTL)
	if err != nil {
		logger.Log.WithError(err).Fatal("invalid JWT configuration")
	}

	svc := prescription.NewService(
		recognizer,
		deid.NewRedactor(model, auditor),
		extraction.NewExtractor(model),
		repo,
		stats,
		images,
		events,
		prescription.Options{RecognitionAttempts: cfg.OCRMaxAttempts},
	)
	handler := prescription.NewHTTPHandler(svc, images, prescription.NewUploadValidator(cfg.MaxUploadBytes), cfg.MaxUploadBytes, cfg.StatsTopN)

	router := mux.NewRouter()
	router.Use(middleware.Logging)
	router.Use(middleware.Recovery)
	router.Use(middleware.CORS)
	router.Use(middleware.RateLimit(cfg.GatewayRateLimitRPS, cfg.GatewayRateLimitBurst))

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)

	router.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		sqlDB, err := db.DB()
		if err != nil || sqlDB.PingContext(r.Context()) != nil {
			http.Error(w, `{"status":"unavailable"}`, http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	}).Methods(http.MethodGet)

	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.BodyLimit(cfg.MaxUploadBytes + 1<<20))
	api.Use(middleware.Authenticate(tokens))
	handler.Register(api)

	// Recognition and inference both run inside the request, so the write
	// timeout must cover their combined budget.
	writeTimeout := cfg.WriteTimeout
	if budget := time.Duration(cfg.OCRMaxAttempts)*cfg.OCRTimeout + 2*cfg.LLMTimeout; writeTimeout < budget {
		writeTimeout = budget
	}

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host": cfg.ServerHost,
			"port": cfg.ServerPort,
		}).Info("Prescription Service started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down Prescription Service...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Log.WithError(err).Error("server forced to shutdown")
	}

	logger.Log.Info("Prescription Service stopped")
}
