package main

import (
	"context"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"kata_analysis/internal/adapters"
	"kata_analysis/internal/bootstrap"
	analysisDelivery "kata_analysis/internal/delivery/analysis"
	ownMiddleware "kata_analysis/internal/middleware"
	"kata_analysis/internal/repository"
	analysisUC "kata_analysis/internal/usecase/analysis"
)

const defaultCacheTTL = 12 * time.Hour

func main() {
	logger := NewLogger()
	cfg, err := bootstrap.Setup(".env")
	if err != nil {
		logger.Error("Failed to setup configuration", zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go handleShutdown(cancel, logger)

	redisAdapter, mongoAdapter := initDatabaseAdapters(ctx, logger, cfg)
	defer mongoAdapter.Close(ctx)
	defer redisAdapter.Close(ctx)

	channel, err := repository.NewEngineChannel(engineCommand(cfg), logger)
	if err != nil {
		logger.Fatal("Failed to start analysis engine", zap.Error(err))
	}
	defer channel.Close()

	cache := repository.NewResultCache(redisAdapter, cacheTTL(cfg), logger)
	archive := repository.NewAnalysisArchive(mongoAdapter, logger)

	service := analysisUC.NewService(channel, cache, archive, logger)
	defer service.Close()

	handler := analysisDelivery.NewAnalysisHandler(*cfg, logger, service, archive)

	r := chi.NewRouter()
	if cfg.IsLocalCors {
		r.Use(ownMiddleware.CORS)
	}
	r.Use(middleware.Logger)

	r.Post("/analyze", handler.HandleAnalyze)
	r.Get("/analyze/ws", handler.HandleAnalyzeStream)
	r.Get("/analyses", handler.HandleListAnalyses)
	r.Get("/version", handler.HandleVersion)
	r.Post("/clearCache", handler.HandleClearCache)
	r.Post("/terminate", handler.HandleTerminate)

	port := cfg.ServerPort
	if port == "" {
		port = ":8080"
	}
	logger.Infof("Server is running on port %s", port)
	if err := http.ListenAndServe(port, r); err != nil {
		logger.Fatal("Failed to start server", zap.Error(err))
	}
}

func NewLogger() *zap.SugaredLogger {
	logger, err := zap.NewProduction()
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	return logger.Sugar()
}

func engineCommand(cfg *bootstrap.Config) *exec.Cmd {
	return exec.Command(
		cfg.EnginePath,
		"analysis",
		"-model", cfg.EngineModel,
		"-config", cfg.EngineConfig,
	)
}

func cacheTTL(cfg *bootstrap.Config) time.Duration {
	if cfg.CacheTTLSeconds > 0 {
		return time.Duration(cfg.CacheTTLSeconds) * time.Second
	}
	return defaultCacheTTL
}

func initDatabaseAdapters(ctx context.Context, log *zap.SugaredLogger, cfg *bootstrap.Config) (*adapters.AdapterRedis, *adapters.AdapterMongo) {
	redisAdapter := adapters.NewAdapterRedis(cfg, log)
	if err := redisAdapter.Init(ctx); err != nil {
		log.Fatal("Failed to initialize Redis", zap.Error(err))
	}

	mongoAdapter := adapters.NewAdapterMongo(cfg, log)
	if err := mongoAdapter.Init(ctx); err != nil {
		log.Fatal("Failed to initialize MongoDB", zap.Error(err))
	}

	log.Info("Database adapters initialized")
	return redisAdapter, mongoAdapter
}

func handleShutdown(cancelFunc context.CancelFunc, log *zap.SugaredLogger) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	log.Info("Received shutdown signal")
	cancelFunc()
	time.Sleep(1 * time.Second) // give connections time to close
}
