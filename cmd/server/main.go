package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stress-detect-go/config"
	"stress-detect-go/internal/api"
	"stress-detect-go/internal/app"
	"stress-detect-go/internal/cleanup"
	"stress-detect-go/internal/core/models"
	"stress-detect-go/internal/core/processor"
	"stress-detect-go/internal/db"
	"stress-detect-go/internal/db/repository"
	"stress-detect-go/internal/debug"
	"stress-detect-go/internal/logger"
	"stress-detect-go/internal/mqtt"
	"stress-detect-go/internal/server/sse"
	"stress-detect-go/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const defaultConfigPath = "/config/config.yaml"

func main() {
	configPath := flag.String("config", envOr("STRESS_DETECT_CONFIG", defaultConfigPath), "path to the YAML configuration")
	flag.Parse()

	// optionale .env-Datei vor viper laden
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warnf("Failed to load .env file: %v", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logCloser, err := logger.Init(cfg.Log)
	if err != nil {
		log.Errorf("Failed to initialize logger completely: %v", err)
	}
	defer logCloser.Close()

	if err := run(cfg); err != nil {
		log.Fatalf("Server stopped with error: %v", err)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Pipeline ---
	pipeline, err := app.NewPipeline(cfg)
	if err != nil {
		return err
	}
	defer pipeline.Close()

	pool := processor.NewWorkerPool(pipeline.Processor, cfg.Pipeline.PoolWorkers, cfg.Pipeline.QueueSize)
	defer pool.Shutdown()

	// --- Verlauf ---
	var repo repository.Repository
	if cfg.DB.Enabled {
		database, err := db.Open(cfg.DB)
		if err != nil {
			// ohne Verlauf weiterlaufen, die Analyse selbst braucht keine Datenbank
			log.Errorf("Failed to initialize database, history disabled: %v", err)
		} else {
			defer closeDB(database)
			sqliteRepo := repository.NewSQLiteRepository(database)
			repo = sqliteRepo

			if cleanupService := cleanup.NewService(sqliteRepo, cfg.DB.RetentionDays, cfg.DB.CleanupInterval); cleanupService != nil {
				cleanupService.StartBackgroundCleanup()
				defer cleanupService.StopBackgroundCleanup()
			}
		}
	} else {
		log.Info("Result history is disabled in config.")
	}

	var debugService *debug.Service
	if cfg.Debug.Enabled {
		debugService = debug.NewService(cfg.Debug.MaxImages)
	}

	// --- Live-Ergebnisse ---
	hub := sse.NewHub()
	go hub.Run(ctx)

	// --- MQTT ---
	// die Ingest-Funktion nutzt resultService, das vor dem Verbindungsaufbau gesetzt wird
	var resultService *services.ResultService
	ingest := func(ctx context.Context, subject string, data []byte) (*models.DetectionResult, error) {
		res, err := pool.ProcessBytes(ctx, data, subject)
		if res != nil {
			resultService.Record(subject, services.SourceMQTT, res)
		}
		return res, err
	}

	publishers := []services.Publisher{hub}
	mqttClient, err := mqtt.NewMQTTClient(cfg.MQTT, cfg.Alerts.SevereThreshold, ingest)
	if err != nil {
		log.Warnf("Failed to initialize MQTT client: %v. Continuing without MQTT.", err)
		mqttClient = nil
	}
	if mqttClient != nil {
		publishers = append(publishers, mqttClient)
	}

	resultService = services.NewResultService(repo, debugService, services.NewNotifierService(publishers...))

	if mqttClient != nil {
		if err := mqttClient.Start(); err != nil {
			log.Errorf("MQTT client error: %v", err)
		}
		defer mqttClient.Stop()
	}

	// --- HTTP ---
	if log.GetLevel() < log.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}
	router, err := api.NewRouter(cfg, api.Dependencies{
		Analyzer: pool,
		Engine:   pipeline.Engine,
		Results:  resultService,
		Debug:    debugService,
		Events:   hub,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infof("Starting server on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	log.Info("Server exited gracefully")
	return nil
}

func closeDB(database *gorm.DB) {
	if err := db.Close(database); err != nil {
		log.Errorf("Failed to close database: %v", err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
