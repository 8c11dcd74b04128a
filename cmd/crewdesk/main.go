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

	"github.com/crewdesk/crewdesk/internal/api"
	"github.com/crewdesk/crewdesk/internal/config"
	"github.com/crewdesk/crewdesk/internal/delegation"
	"github.com/crewdesk/crewdesk/internal/deploy"
	"github.com/crewdesk/crewdesk/internal/feed"
	"github.com/crewdesk/crewdesk/internal/mind"
	pgstore "github.com/crewdesk/crewdesk/internal/store"
)

func main() {
	_ = godotenv.Load()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	logger.Info("Starting Crewdesk...")

	// Load configuration
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/crewdesk.json"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.String("path", cfgPath), zap.Error(err))
	}
	logger.Info("Config loaded", zap.String("path", cfgPath))

	// Initialize PostgreSQL store
	store, err := pgstore.New(cfg.Database.Postgres.DSN, logger)
	if err != nil {
		logger.Fatal("PostgreSQL unavailable", zap.Error(err))
	}
	if mErr := store.Migrate(context.Background(), "migrations"); mErr != nil {
		logger.Fatal("migration failed", zap.Error(mErr))
	}

	// Initialize Redis change feed
	changeFeed, err := feed.New(cfg.Database.Redis.URL, logger)
	if err != nil {
		logger.Fatal("Redis unavailable", zap.Error(err))
	}

	// Initialize mind store (optional)
	var mindStore *mind.Store
	if cfg.Database.Neo4j.URI != "" {
		ms, mErr := mind.NewStore(cfg.Database.Neo4j.URI, cfg.Database.Neo4j.User, cfg.Database.Neo4j.Password, logger)
		if mErr != nil {
			logger.Warn("Neo4j unavailable, running without mind store", zap.Error(mErr))
		} else {
			mindStore = ms
		}
	}

	// Initialize semantic index over the mind store (optional)
	var index *mind.Index
	if cfg.Database.Qdrant.Host != "" && cfg.Embedding.Endpoint != "" {
		embedder := mind.NewAPIEmbedder(mind.EmbedderConfig{
			Endpoint:  cfg.Embedding.Endpoint,
			Model:     cfg.Embedding.Model,
			APIKey:    cfg.Embedding.APIKey,
			Dimension: cfg.Embedding.Dimension,
		})
		ix, ixErr := mind.NewIndex(mind.VectorConfig{
			Host: cfg.Database.Qdrant.Host,
			Port: cfg.Database.Qdrant.Port,
		}, embedder)
		if ixErr != nil {
			logger.Warn("Qdrant unavailable, running without semantic search", zap.Error(ixErr))
		} else {
			index = ix
		}
	}

	// Wire the delegation broker and deployment manager
	broker := delegation.NewBroker(store, changeFeed, store, logger)
	deployments := deploy.NewManager(store, store, logger)

	var mindAPI api.MindStore
	if mindStore != nil {
		mindAPI = mindStore
	}
	var indexAPI api.MindIndex
	if index != nil {
		indexAPI = index
	}
	handler := api.NewHandler(deployments, mindAPI, indexAPI, broker, logger)
	handler.SetDelegationTimeout(time.Duration(cfg.Delegation.TimeoutSeconds) * time.Second)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: handler.Router(),
	}

	go func() {
		logger.Info("Crewdesk listening", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down Crewdesk...")
	ctx := context.Background()
	srv.Shutdown(ctx)
	changeFeed.Close()
	store.Close()
	if mindStore != nil {
		mindStore.Close(ctx)
	}
	if index != nil {
		index.Close()
	}
}
