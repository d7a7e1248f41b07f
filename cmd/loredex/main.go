// loredex indexes a lore book into qdrant so sessions can retrieve it.
// Run it after editing the lore directory; re-runs upsert in place.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/kavrell/dustward/internal/config"
	"github.com/kavrell/dustward/internal/embedding"
	"github.com/kavrell/dustward/internal/lore"
	"github.com/kavrell/dustward/internal/vectorstore"
)

func main() {
	_ = godotenv.Load()

	cfgPath := flag.String("config", "configs/dustward.json", "config file path")
	dir := flag.String("dir", "", "lore directory (default: config lore_dir)")
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.String("path", *cfgPath), zap.Error(err))
	}

	loreDir := *dir
	if loreDir == "" {
		loreDir = cfg.LoreDir
	}

	book, err := lore.LoadBook(loreDir)
	if err != nil {
		logger.Fatal("load lore book", zap.String("dir", loreDir), zap.Error(err))
	}
	entries := book.All()
	if len(entries) == 0 {
		fmt.Println("nothing to index")
		os.Exit(0)
	}

	qc, err := vectorstore.NewClient(vectorstore.QdrantConfig{
		Host: cfg.Database.Qdrant.Host,
		Port: cfg.Database.Qdrant.Port,
	})
	if err != nil {
		logger.Fatal("qdrant", zap.Error(err))
	}
	defer qc.Close()

	embedder := embedding.NewProvider(embedding.Config{
		Provider:  cfg.Embedding.Provider,
		Endpoint:  cfg.Embedding.Endpoint,
		Model:     cfg.Embedding.Model,
		APIKey:    cfg.Embedding.APIKey,
		Dimension: cfg.Embedding.Dimension,
	})
	retriever := lore.NewRetriever(embedder, qc, logger)

	ctx := context.Background()
	if err := retriever.Init(ctx); err != nil {
		logger.Fatal("init collections", zap.Error(err))
	}

	indexed := 0
	for _, entry := range entries {
		if err := retriever.IndexEntry(ctx, entry); err != nil {
			logger.Error("index entry failed", zap.String("name", entry.Name), zap.Error(err))
			continue
		}
		indexed++
	}
	fmt.Printf("indexed %d/%d lore entries from %s\n", indexed, len(entries), loreDir)
}
