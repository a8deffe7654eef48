package main

import (
	"context"
	"errors"
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
	"github.com/synaptica-ai/rxdigitizer/pkg/observability/metrics"
)

const statsPort = "8082"

func main() {
	logger.Init()
	cfg := config.Load()

	if len(cfg.KafkaBrokers) == 0 {
		logger.Log.Fatal("KAFKA_BROKERS must be set for the stats service")
	}

	db, err := database.GetPostgres()
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to connect to postgres")
	}
	defer database.ClosePostgres()

	client, err := database.GetRedis()
	if err != nil {
		logger.Log.WithError(err).Fatal("stats service requires redis")
	}
	defer database.CloseRedis()

	store := aggregation.NewStore(db, aggregation.NewCache(client, cfg.StatsCacheTTL))
	refresher := aggregation.NewRefresher(store, cfg.StatsTopN)

	consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.PrescriptionEventsTopic, cfg.KafkaGroupID+"-stats")
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := consumer.Consume(ctx, refresher.HandleEvent); err != nil && !errors.Is(err, context.Canceled) {
			logger.Log.WithError(err).Fatal("consumer error")
		}
	}()

	router := mux.NewRouter()
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%s", cfg.ServerHost, statsPort),
		Handler: router,
	}

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host":  cfg.ServerHost,
			"port":  statsPort,
			"topic": cfg.PrescriptionEventsTopic,
		}).Info("Stats Service started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down Stats Service...")
	cancel()

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(ctxShutdown); err != nil {
		logger.Log.WithError(err).Error("server forced to shutdown")
	}

	logger.Log.Info("Stats Service stopped")
}
