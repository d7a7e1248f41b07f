package lore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kavrell/dustward/internal/embedding"
	"github.com/kavrell/dustward/internal/prompt"
	"github.com/kavrell/dustward/internal/vectorstore"
)

const (
	// CollLore holds the indexed lore book, shared by every save.
	CollLore = "lore"
	// CollTranscript holds past transcript blocks, filtered per save.
	CollTranscript = "transcript"

	defaultMinScore = 0.3
	defaultTopK     = 4
)

// Index is the slice of the vector store the retriever needs.
type Index interface {
	EnsureCollection(ctx context.Context, name string, dimension uint64) error
	Upsert(ctx context.Context, collection, id string, vector []float32, payload map[string]string) error
	Search(ctx context.Context, collection string, vector []float32, topK uint64, match map[string]string) ([]*vectorstore.SearchResult, error)
	DeleteMatching(ctx context.Context, collection string, match map[string]string) error
}

// Result is a single retrieval hit, ready for prompt assembly.
type Result struct {
	Content string
	Source  string
	Score   float32
}

// Retriever embeds queries and searches the lore and transcript
// collections, returning a merged, score-cut candidate list.
type Retriever struct {
	embedder embedding.Provider
	index    Index
	minScore float32
	topK     int
	logger   *zap.Logger
}

// NewRetriever creates a Retriever with default score cut and candidate
// count.
func NewRetriever(embedder embedding.Provider, index Index, logger *zap.Logger) *Retriever {
	return &Retriever{
		embedder: embedder,
		index:    index,
		minScore: defaultMinScore,
		topK:     defaultTopK,
		logger:   logger,
	}
}

// Init ensures both collections exist.
func (r *Retriever) Init(ctx context.Context) error {
	dim := uint64(r.embedder.Dimension())
	if dim == 0 {
		dim = 1024
	}
	for _, name := range []string{CollLore, CollTranscript} {
		if err := r.index.EnsureCollection(ctx, name, dim); err != nil {
			return fmt.Errorf("init collection %s: %w", name, err)
		}
	}
	return nil
}

// IndexEntry embeds and upserts a lore book entry.
func (r *Retriever) IndexEntry(ctx context.Context, e Entry) error {
	vectors, err := r.embedder.Embed(ctx, []string{e.Name + "\n" + e.Text})
	if err != nil {
		return fmt.Errorf("embed lore entry %q: %w", e.Name, err)
	}
	payload := map[string]string{
		"name":       e.Name,
		"tags":       strings.Join(e.Tags, ","),
		"content":    e.Text,
		"indexed_at": time.Now().UTC().Format(time.RFC3339),
	}
	return r.index.Upsert(ctx, CollLore, uuid.New().String(), vectors[0], payload)
}

// IndexBlock embeds and upserts a transcript block under its save.
func (r *Retriever) IndexBlock(ctx context.Context, saveID string, b prompt.Block) error {
	vectors, err := r.embedder.Embed(ctx, []string{b.Content})
	if err != nil {
		return fmt.Errorf("embed block: %w", err)
	}
	payload := map[string]string{
		"save_id": saveID,
		"kind":    string(b.Kind),
		"content": b.Content,
	}
	return r.index.Upsert(ctx, CollTranscript, b.ID, vectors[0], payload)
}

// Retrieve searches lore globally and the transcript of the given save,
// merging hits by descending score. Results below the score cut are
// dropped. A failed search of one collection degrades to the other.
func (r *Retriever) Retrieve(ctx context.Context, saveID, query string) ([]Result, error) {
	vectors, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) == 0 {
		return nil, nil
	}
	qvec := vectors[0]

	var results []Result
	searches := []struct {
		coll  string
		match map[string]string
	}{
		{CollLore, nil},
		{CollTranscript, map[string]string{"save_id": saveID}},
	}
	for _, s := range searches {
		hits, err := r.index.Search(ctx, s.coll, qvec, uint64(r.topK), s.match)
		if err != nil {
			r.logger.Warn("lore search failed", zap.String("collection", s.coll), zap.Error(err))
			continue
		}
		for _, h := range hits {
			if h.Score < r.minScore {
				continue
			}
			source := s.coll
			if name := h.Payload["name"]; name != "" {
				source = name
			}
			results = append(results, Result{
				Content: h.Payload["content"],
				Source:  source,
				Score:   h.Score,
			})
		}
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > r.topK {
		results = results[:r.topK]
	}
	return results, nil
}

// WipeTranscript removes every indexed transcript vector for a save.
func (r *Retriever) WipeTranscript(ctx context.Context, saveID string) error {
	return r.index.DeleteMatching(ctx, CollTranscript, map[string]string{"save_id": saveID})
}

// FormatResults renders retrieval hits into prompt-ready text. Empty
// input renders empty, which the packer treats as a section to skip.
func FormatResults(results []Result) string {
	if len(results) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("Recalled lore and history:")
	for _, res := range results {
		sb.WriteString("\n\n")
		sb.WriteString(fmt.Sprintf("[%s]\n%s", res.Source, res.Content))
	}
	return sb.String()
}
