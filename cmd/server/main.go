package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"soil-sync-service/internal/api"
	"soil-sync-service/internal/config"
	"soil-sync-service/internal/database"
	"soil-sync-service/internal/logger"
	"soil-sync-service/internal/remote"
	"soil-sync-service/internal/store"
	"soil-sync-service/internal/sync"
)

func main() {
	// Optional .env for local development
	_ = godotenv.Load()

	// Load Config
	cfg, err := config.LoadConfig("config.yaml")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Init Logger
	if err := logger.InitLogger(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Log.Info("Starting Soil Sync Service")

	// Init Local Database
	db, err := database.NewDatabase(cfg.Database)
	if err != nil {
		logger.Log.Fatal("Failed to open local database", zap.Error(err))
	}

	// Init Record Store
	sampleStore, err := store.NewSQLiteStore(db)
	if err != nil {
		logger.Log.Fatal("Failed to init record store", zap.Error(err))
	}
	defer sampleStore.Close()

	// Init Remote Gateway
	gateway := remote.NewSupabaseGateway(cfg.Supabase)

	// Init Sync Engine + Scheduler
	engine := sync.NewEngine(sampleStore, gateway)
	connectivity := sync.NewHTTPConnectivity(cfg.Supabase.URL)
	scheduler := sync.NewScheduler(cfg.Scheduler, engine, sampleStore, connectivity)
	if err := scheduler.Start(); err != nil {
		logger.Log.Fatal("Failed to start scheduler", zap.Error(err))
	}

	// Init API
	handler := api.NewHandler(sampleStore, scheduler, cfg.Server.AuthToken)
	router := handler.Routes()

	// Start Server
	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  cfg.Server.GetReadTimeout(),
		WriteTimeout: cfg.Server.GetWriteTimeout(),
	}

	go func() {
		logger.Log.Info("Server listening", zap.String("addr", serverAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down server...")

	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Log.Error("Server shutdown failed", zap.Error(err))
	}
}
