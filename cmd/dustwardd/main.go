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
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kavrell/dustward/internal/api"
	"github.com/kavrell/dustward/internal/command"
	"github.com/kavrell/dustward/internal/config"
	"github.com/kavrell/dustward/internal/embedding"
	"github.com/kavrell/dustward/internal/game"
	"github.com/kavrell/dustward/internal/gateway"
	"github.com/kavrell/dustward/internal/lore"
	"github.com/kavrell/dustward/internal/prompt"
	"github.com/kavrell/dustward/internal/provider"
	msgrouter "github.com/kavrell/dustward/internal/router"
	"github.com/kavrell/dustward/internal/rules"
	"github.com/kavrell/dustward/internal/session"
	pgstore "github.com/kavrell/dustward/internal/store"
	"github.com/kavrell/dustward/internal/vectorstore"
)

func main() {
	_ = godotenv.Load()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	logger.Info("starting dustward server")

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/dustward.json"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.String("path", cfgPath), zap.Error(err))
	}
	logger.Info("config loaded", zap.String("path", cfgPath))

	ctx := context.Background()

	// Provider router with narrator/summarizer role bindings.
	provRouter := provider.NewRouter(logger)
	var narratorModel, summarizerModel string
	for _, pc := range cfg.Providers {
		provCfg := provider.ProviderConfig{
			ID: pc.ID, Type: pc.Type, Name: pc.Name,
			Endpoint: pc.Endpoint, APIKey: pc.APIKey, Model: pc.Model,
		}
		switch pc.Type {
		case "openai":
			provRouter.Register(provider.NewOpenAIProvider(provCfg, logger))
		case "anthropic":
			provRouter.Register(provider.NewAnthropicProvider(provCfg, logger))
		default:
			logger.Warn("unknown provider type",
				zap.String("id", pc.ID), zap.String("type", pc.Type))
			continue
		}
		if pc.Narrator {
			provRouter.Bind(provider.RoleNarrator, pc.ID)
			narratorModel = pc.Model
		}
		if pc.Summarizer {
			provRouter.Bind(provider.RoleSummarizer, pc.ID)
			summarizerModel = pc.Model
		}
	}

	// Saves need durable storage in server mode.
	if cfg.Database.Postgres.DSN == "" {
		logger.Fatal("server mode requires a postgres DSN")
	}
	st, err := pgstore.New(cfg.Database.Postgres.DSN, logger)
	if err != nil {
		logger.Fatal("postgres unavailable", zap.Error(err))
	}
	if err := st.Migrate(ctx, "migrations"); err != nil {
		logger.Fatal("migration failed", zap.Error(err))
	}

	// Turn locks keep concurrent surfaces off the same save.
	var locker *session.Locker
	var redisClient *redis.Client
	if cfg.Database.Redis.URL != "" {
		opts, rErr := redis.ParseURL(cfg.Database.Redis.URL)
		if rErr != nil {
			logger.Warn("bad redis URL, running without turn locks", zap.Error(rErr))
		} else {
			redisClient = redis.NewClient(opts)
			if pingErr := redisClient.Ping(ctx).Err(); pingErr != nil {
				logger.Warn("redis unavailable, running without turn locks", zap.Error(pingErr))
				redisClient.Close()
				redisClient = nil
			} else {
				locker = session.NewLocker(redisClient, 0)
			}
		}
	}

	var relations *game.FactionGraph
	if cfg.Database.Neo4j.URI != "" {
		fg, fgErr := game.NewFactionGraph(ctx, cfg.Database.Neo4j.URI,
			cfg.Database.Neo4j.User, cfg.Database.Neo4j.Password, logger)
		if fgErr != nil {
			logger.Warn("neo4j unavailable, no faction standings", zap.Error(fgErr))
		} else {
			relations = fg
		}
	}

	var retriever *lore.Retriever
	var qdrantClient *vectorstore.Client
	if cfg.Database.Qdrant.Host != "" {
		qc, qErr := vectorstore.NewClient(vectorstore.QdrantConfig{
			Host: cfg.Database.Qdrant.Host,
			Port: cfg.Database.Qdrant.Port,
		})
		if qErr != nil {
			logger.Warn("qdrant unavailable, no retrieval", zap.Error(qErr))
		} else {
			embedder := embedding.NewProvider(embedding.Config{
				Provider:  cfg.Embedding.Provider,
				Endpoint:  cfg.Embedding.Endpoint,
				Model:     cfg.Embedding.Model,
				APIKey:    cfg.Embedding.APIKey,
				Dimension: cfg.Embedding.Dimension,
			})
			r := lore.NewRetriever(embedder, qc, logger)
			if initErr := r.Init(ctx); initErr != nil {
				logger.Warn("retriever init failed, no retrieval", zap.Error(initErr))
				qc.Close()
			} else {
				retriever = r
				qdrantClient = qc
			}
		}
	}

	book, err := lore.LoadBook(cfg.LoreDir)
	if err != nil {
		logger.Warn("lore book not loaded", zap.String("dir", cfg.LoreDir), zap.Error(err))
	}

	packerCfg, err := cfg.Prompt.PackerConfig()
	if err != nil {
		logger.Fatal("bad prompt config", zap.Error(err))
	}

	params := session.ManagerParams{
		Store:            st,
		Chat:             provRouter,
		Relations:        relations,
		Locker:           locker,
		Rules:            rules.NewLoader(cfg.RulesDir, logger),
		PackerConfig:     packerCfg,
		EvictionOrder:    cfg.Prompt.EvictionKinds(),
		Sizer:            prompt.NewSizer(logger),
		SummarizeTimeout: time.Duration(cfg.Prompt.SummarizeTimeoutSeconds) * time.Second,
		HighWater:        cfg.Prompt.WindowHighWater,
		NarratorModel:    narratorModel,
		SummarizerModel:  summarizerModel,
		Logger:           logger,
	}
	if retriever != nil {
		params.Retriever = retriever
	}

	manager, err := session.NewManager(params)
	if err != nil {
		logger.Fatal("session manager", zap.Error(err))
	}

	registry := command.NewRegistry()
	command.RegisterBuiltins(registry)
	roller := game.NewRoller(time.Now().UnixNano())

	// Gateways. The handler must be set before adapters register.
	gw := gateway.NewGateway(logger)
	msgRouter := msgrouter.New(manager, gw, registry, book, roller, logger)
	gw.SetHandler(msgRouter.Handle)

	restAdapter := gateway.NewRESTAdapter(logger)
	gw.Register(restAdapter)

	if cfg.Gateway.Slack.Enabled && cfg.Gateway.Slack.BotToken != "" {
		gw.Register(gateway.NewSlackAdapter(cfg.Gateway.Slack.BotToken, cfg.Gateway.Slack.AppToken, logger))
	}
	if cfg.Gateway.Discord.Enabled && cfg.Gateway.Discord.BotToken != "" {
		gw.Register(gateway.NewDiscordAdapter(cfg.Gateway.Discord.BotToken, logger))
	}

	if err := gw.ConnectAll(ctx); err != nil {
		logger.Warn("some gateway adapters failed to connect", zap.Error(err))
	}

	handler := api.NewHandler(manager, gw, restAdapter, logger)

	port := fmt.Sprintf("%d", cfg.Server.Port)
	if port == "0" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: handler.Router(),
	}

	go func() {
		logger.Info("dustward listening", zap.String("port", port))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down dustward")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)

	// Fold windows into digests and persist every live save.
	manager.Checkpoint(shutdownCtx)

	gw.Close()
	if qdrantClient != nil {
		qdrantClient.Close()
	}
	if relations != nil {
		relations.Close(shutdownCtx)
	}
	if redisClient != nil {
		redisClient.Close()
	}
	st.Close()
}
