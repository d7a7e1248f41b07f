package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kavrell/dustward/internal/command"
	"github.com/kavrell/dustward/internal/config"
	"github.com/kavrell/dustward/internal/embedding"
	"github.com/kavrell/dustward/internal/game"
	"github.com/kavrell/dustward/internal/lore"
	"github.com/kavrell/dustward/internal/prompt"
	"github.com/kavrell/dustward/internal/provider"
	"github.com/kavrell/dustward/internal/rules"
	"github.com/kavrell/dustward/internal/session"
	pgstore "github.com/kavrell/dustward/internal/store"
	"github.com/kavrell/dustward/internal/term"
	"github.com/kavrell/dustward/internal/vectorstore"
)

// surfaceKey is the single playing surface of the terminal game.
const surfaceKey = "term:local"

func main() {
	_ = godotenv.Load()

	cfgPath := flag.String("config", "configs/dustward.json", "config file path")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Server.LogLevel)
	defer logger.Sync()

	ctx := context.Background()

	// Provider router: narrator and summarizer roles.
	router, narratorModel, summarizerModel := buildProviders(cfg, logger)

	// Saves: Postgres when configured, in-memory otherwise.
	var st session.ManagerStore
	if cfg.Database.Postgres.DSN != "" {
		ps, err := pgstore.New(cfg.Database.Postgres.DSN, logger)
		if err != nil {
			logger.Warn("postgres unavailable, saves are in-memory", zap.Error(err))
			st = pgstore.NewMemory()
		} else {
			if err := ps.Migrate(ctx, "migrations"); err != nil {
				logger.Fatal("migration failed", zap.Error(err))
			}
			defer ps.Close()
			st = ps
		}
	} else {
		logger.Info("no postgres DSN, saves are in-memory")
		st = pgstore.NewMemory()
	}

	// Turn lock: only meaningful with shared surfaces, but cheap to keep
	// consistent with server mode when redis is around.
	var locker *session.Locker
	if cfg.Database.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Database.Redis.URL)
		if err != nil {
			logger.Warn("bad redis URL, running without turn locks", zap.Error(err))
		} else {
			locker = session.NewLocker(redis.NewClient(opts), 0)
		}
	}

	// Faction graph is optional.
	var relations *game.FactionGraph
	if cfg.Database.Neo4j.URI != "" {
		fg, err := game.NewFactionGraph(ctx, cfg.Database.Neo4j.URI,
			cfg.Database.Neo4j.User, cfg.Database.Neo4j.Password, logger)
		if err != nil {
			logger.Warn("neo4j unavailable, no faction standings", zap.Error(err))
		} else {
			relations = fg
			defer fg.Close(ctx)
		}
	}

	// Retrieval is optional: needs qdrant.
	var retriever *lore.Retriever
	if cfg.Database.Qdrant.Host != "" {
		qc, err := vectorstore.NewClient(vectorstore.QdrantConfig{
			Host: cfg.Database.Qdrant.Host,
			Port: cfg.Database.Qdrant.Port,
		})
		if err != nil {
			logger.Warn("qdrant unavailable, no retrieval", zap.Error(err))
		} else {
			defer qc.Close()
			embedder := embedding.NewProvider(embedding.Config{
				Provider:  cfg.Embedding.Provider,
				Endpoint:  cfg.Embedding.Endpoint,
				Model:     cfg.Embedding.Model,
				APIKey:    cfg.Embedding.APIKey,
				Dimension: cfg.Embedding.Dimension,
			})
			r := lore.NewRetriever(embedder, qc, logger)
			if err := r.Init(ctx); err != nil {
				logger.Warn("retriever init failed, no retrieval", zap.Error(err))
			} else {
				retriever = r
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
		Chat:             router,
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

	fmt.Println(term.Title("DUSTWARD"))
	fmt.Println(term.System("Type /help for commands, /new <name> to start, exit to leave."))

	runLoop(ctx, manager, registry, book, roller)

	// Fold and persist everything before the process dies.
	manager.Checkpoint(ctx)
}

func runLoop(ctx context.Context, manager *session.Manager,
	registry *command.Registry, book *lore.Book, roller *game.Roller) {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("\n> ")
		if !scanner.Scan() {
			return
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			fmt.Println(term.System("Until next time."))
			return
		}

		current, _ := manager.ForKey(surfaceKey)

		if strings.HasPrefix(input, "/") {
			cc := &command.CommandContext{
				Platform:  "term",
				ChannelID: "local",
				UserID:    "local",
				UserName:  "player",
				Session:   current,
				Sessions:  manager,
				Book:      book,
				Roller:    roller,
				Registry:  registry,
			}
			result, err := registry.Dispatch(ctx, input, cc)
			if err != nil {
				fmt.Println(term.Error(err.Error()))
				continue
			}
			renderCommand(result)
			continue
		}

		if current == nil {
			fmt.Println(term.System("No save loaded. /new <character name> starts one."))
			continue
		}

		result, err := current.Turn(ctx, input)
		if err != nil {
			fmt.Println(term.Error("The narrator lost the thread: " + err.Error()))
			continue
		}
		fmt.Println(term.Narration(result.Narration, current.Clock().Stamp()))
		if result.Pack != nil && result.Pack.Tier > prompt.TierNormal {
			fmt.Println(term.StrainBadge(result.Pack.Tier.String()))
		}
	}
}

// renderCommand styles command output by payload type.
func renderCommand(result *command.CommandResult) {
	switch data := result.Data.(type) {
	case *game.Roll:
		fmt.Println(term.RollResult(data))
	case *prompt.PromptPack:
		fmt.Println(term.Diagnostics(data))
	default:
		fmt.Println(term.System(result.Content))
	}
}

// buildProviders registers configured LLM backends and binds the
// narrator and summarizer roles. Returns the model names bound to each
// role so sessions request the right one.
func buildProviders(cfg *config.Config, logger *zap.Logger) (*provider.Router, string, string) {
	router := provider.NewRouter(logger)
	var narratorModel, summarizerModel string

	for _, pc := range cfg.Providers {
		provCfg := provider.ProviderConfig{
			ID: pc.ID, Type: pc.Type, Name: pc.Name,
			Endpoint: pc.Endpoint, APIKey: pc.APIKey, Model: pc.Model,
		}
		switch pc.Type {
		case "openai":
			router.Register(provider.NewOpenAIProvider(provCfg, logger))
		case "anthropic":
			router.Register(provider.NewAnthropicProvider(provCfg, logger))
		default:
			logger.Warn("unknown provider type",
				zap.String("id", pc.ID), zap.String("type", pc.Type))
			continue
		}
		if pc.Narrator {
			router.Bind(provider.RoleNarrator, pc.ID)
			narratorModel = pc.Model
		}
		if pc.Summarizer {
			router.Bind(provider.RoleSummarizer, pc.ID)
			summarizerModel = pc.Model
		}
	}
	return router, narratorModel, summarizerModel
}

// newLogger keeps the terminal quiet unless asked otherwise: warnings
// and up by default, everything with log_level=debug.
func newLogger(level string) *zap.Logger {
	zc := zap.NewDevelopmentConfig()
	switch level {
	case "debug":
		zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	case "info":
		zc.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	default:
		zc.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	}
	logger, err := zc.Build()
	if err != nil {
		logger = zap.NewNop()
	}
	return logger
}
