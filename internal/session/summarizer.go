package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/kavrell/dustward/internal/prompt"
	"github.com/kavrell/dustward/internal/provider"
)

const summarizerSystem = `You condense tabletop RPG transcript into a running digest.
Keep: named characters, factions, promises, debts, injuries, discovered
locations, and unresolved threads. Drop: scenery, dice mechanics, phrasing.
Write terse past-tense prose, at most one short paragraph.`

// Chat is the slice of the provider router the session needs.
type Chat interface {
	Route(ctx context.Context, role string, req *provider.ChatRequest) (*provider.ChatResponse, error)
}

// ProviderSummarizer folds evicted transcript blocks into digest text by
// routing through the summarizer role.
type ProviderSummarizer struct {
	chat  Chat
	model string
}

// NewProviderSummarizer creates a summarizer backed by the router.
func NewProviderSummarizer(chat Chat, model string) *ProviderSummarizer {
	return &ProviderSummarizer{chat: chat, model: model}
}

// Summarize renders the evicted blocks and asks the backend for a digest
// paragraph.
func (s *ProviderSummarizer) Summarize(ctx context.Context, overflow []prompt.Block) (string, error) {
	var sb strings.Builder
	for _, b := range overflow {
		sb.WriteString(fmt.Sprintf("[%s] %s\n", b.Kind, b.Content))
	}

	resp, err := s.chat.Route(ctx, provider.RoleSummarizer, &provider.ChatRequest{
		Model: s.model,
		Messages: []provider.Message{
			{Role: "system", Content: summarizerSystem},
			{Role: "user", Content: sb.String()},
		},
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Content), nil
}
