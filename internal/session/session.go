// Package session owns the per-save interactive loop: it is the single
// writer of a save's window, digest, character, and clock. Each turn
// assembles a fresh prompt pack, narrates through the provider router,
// and records both sides of the exchange durably before returning.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kavrell/dustward/internal/game"
	"github.com/kavrell/dustward/internal/lore"
	"github.com/kavrell/dustward/internal/prompt"
	"github.com/kavrell/dustward/internal/provider"
	"github.com/kavrell/dustward/internal/rules"
	"github.com/kavrell/dustward/internal/store"
)

// SaveStore is the slice of the store the session needs.
type SaveStore interface {
	UpdateSave(ctx context.Context, st *store.SaveState) error
	AppendBlock(ctx context.Context, saveID string, b prompt.Block) error
	MarkAbsorbed(ctx context.Context, ids []string) error
}

// Retriever is the slice of the lore retriever the session needs.
type Retriever interface {
	Retrieve(ctx context.Context, saveID, query string) ([]lore.Result, error)
	IndexBlock(ctx context.Context, saveID string, b prompt.Block) error
}

// Params carries everything a Session depends on. Locker, Relations, and
// Retriever may be nil; the session degrades around them.
type Params struct {
	SaveID    string
	Character *game.Character
	Clock     *game.Clock

	Rules      *rules.Loader
	Packer     *prompt.Packer
	Sizer      prompt.Sizer
	Window     *prompt.Window
	Digest     *prompt.Digest
	Summarizer prompt.Summarizer

	Store     SaveStore
	Chat      Chat
	Retriever Retriever
	Relations *game.FactionGraph
	Locker    *Locker

	NarratorModel string
	// HighWater triggers compaction once the window's natural cost
	// passes it. Zero derives it from the window section budget.
	HighWater int

	Logger *zap.Logger
}

// Session drives one save file's interactive loop.
type Session struct {
	id    string
	char  *game.Character
	clock *game.Clock

	rules      *rules.Loader
	packer     *prompt.Packer
	sizer      prompt.Sizer
	window     *prompt.Window
	digest     *prompt.Digest
	summarizer prompt.Summarizer

	store     SaveStore
	chat      Chat
	retriever Retriever
	relations *game.FactionGraph
	locker    *Locker

	narratorModel string
	windowBudget  int
	highWater     int

	logger *zap.Logger
}

// New builds a Session from Params.
func New(p Params) (*Session, error) {
	if p.SaveID == "" || p.Character == nil || p.Clock == nil {
		return nil, errors.New("session: save, character, and clock are required")
	}
	if p.Packer == nil || p.Window == nil || p.Digest == nil {
		return nil, errors.New("session: packer, window, and digest are required")
	}

	windowBudget := 0
	for _, spec := range p.Packer.Config().Sections {
		if spec.Name == prompt.SectionWindow {
			windowBudget = spec.Budget
		}
	}
	highWater := p.HighWater
	if highWater <= 0 {
		highWater = windowBudget
	}

	return &Session{
		id:            p.SaveID,
		char:          p.Character,
		clock:         p.Clock,
		rules:         p.Rules,
		packer:        p.Packer,
		sizer:         p.Sizer,
		window:        p.Window,
		digest:        p.Digest,
		summarizer:    p.Summarizer,
		store:         p.Store,
		chat:          p.Chat,
		retriever:     p.Retriever,
		relations:     p.Relations,
		locker:        p.Locker,
		narratorModel: p.NarratorModel,
		windowBudget:  windowBudget,
		highWater:     highWater,
		logger:        p.Logger,
	}, nil
}

// ID returns the save ID the session writes to.
func (s *Session) ID() string { return s.id }

// Character returns the live character sheet.
func (s *Session) Character() *game.Character { return s.char }

// Clock returns the in-game clock.
func (s *Session) Clock() *game.Clock { return s.clock }

// Window exposes the transcript window for diagnostics.
func (s *Session) Window() *prompt.Window { return s.window }

// Digest exposes the digest for diagnostics.
func (s *Session) Digest() *prompt.Digest { return s.digest }

// TurnResult is what a completed turn hands back to the surface.
type TurnResult struct {
	Narration string
	Pack      *prompt.PromptPack
}

// Turn runs one full exchange: record the player's input, assemble the
// prompt under budget, narrate, record the narration, advance the clock.
// Input recorded before a failure stays recorded; the pack does not.
func (s *Session) Turn(ctx context.Context, input string) (*TurnResult, error) {
	if s.locker != nil {
		token, err := s.locker.Acquire(ctx, s.id)
		if err != nil {
			return nil, err
		}
		defer func() {
			if rerr := s.locker.Release(context.WithoutCancel(ctx), s.id, token); rerr != nil {
				s.logger.Warn("turn lock release failed", zap.Error(rerr))
			}
		}()
	}

	ruleSet, err := s.rules.Load()
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}

	// Compact before the new input lands so a fresh block is never the
	// one folded away.
	s.compactIfNeeded(ctx)
	if err := s.appendBlock(ctx, prompt.KindChoice, input, false); err != nil {
		return nil, err
	}

	pack, err := s.assemble(ctx, ruleSet, input)
	if err != nil {
		return nil, err
	}

	resp, err := s.chat.Route(ctx, provider.RoleNarrator, &provider.ChatRequest{
		Model: s.narratorModel,
		Messages: []provider.Message{
			{Role: "system", Content: pack.Payload},
			{Role: "user", Content: input},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("narrate: %w", err)
	}

	if err := s.appendBlock(ctx, prompt.KindNarrative, resp.Content, false); err != nil {
		return nil, err
	}
	s.clock.Advance()

	return &TurnResult{Narration: resp.Content, Pack: pack}, nil
}

// Assemble builds a prompt pack from the current state without running a
// turn. The diagnostics API uses it to show what the narrator would see.
func (s *Session) Assemble(ctx context.Context, query string) (*prompt.PromptPack, error) {
	ruleSet, err := s.rules.Load()
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	return s.assemble(ctx, ruleSet, query)
}

func (s *Session) assemble(ctx context.Context, ruleSet *rules.Set, query string) (*prompt.PromptPack, error) {
	var standings []game.FactionStanding
	if s.relations != nil {
		var err error
		standings, err = s.relations.Standings(ctx, s.char.Name)
		if err != nil {
			s.logger.Warn("faction standings unavailable", zap.Error(err))
		}
	}
	snapshot := game.RenderSnapshot(s.char, s.clock, standings)

	retrieval := ""
	if s.retriever != nil && query != "" {
		results, err := s.retriever.Retrieve(ctx, s.id, query)
		if err != nil {
			s.logger.Warn("lore retrieval failed", zap.Error(err))
		}
		retrieval = lore.FormatResults(results)
	}

	return s.packer.Pack(prompt.Request{
		Static: map[string]string{
			prompt.SectionInstructions:   ruleSet.Instructions,
			prompt.SectionRulesCore:      ruleSet.Core,
			prompt.SectionRulesNarrative: ruleSet.Narrative,
			prompt.SectionStateSnapshot:  snapshot,
			prompt.SectionRetrieval:      retrieval,
		},
		Window: s.window,
		Digest: s.digest,
	})
}

// appendBlock records a block durably, then in the window and the
// retrieval index.
func (s *Session) appendBlock(ctx context.Context, kind prompt.Kind, content string, anchor bool) error {
	b := prompt.NewBlock(kind, content, anchor, s.sizer)
	if err := s.store.AppendBlock(ctx, s.id, b); err != nil {
		return fmt.Errorf("record %s block: %w", kind, err)
	}
	s.window.Append(b)
	if s.retriever != nil {
		if err := s.retriever.IndexBlock(ctx, s.id, b); err != nil {
			s.logger.Warn("block indexing failed", zap.Error(err))
		}
	}
	return nil
}

// Recall runs a retrieval query against the save's lore and transcript.
func (s *Session) Recall(ctx context.Context, query string) ([]lore.Result, error) {
	if s.retriever == nil {
		return nil, nil
	}
	return s.retriever.Retrieve(ctx, s.id, query)
}

// Anchor records an anchored block that outlives normal eviction, for
// standing scene facts the player pins.
func (s *Session) Anchor(ctx context.Context, content string) error {
	return s.appendBlock(ctx, prompt.KindIntel, content, true)
}

// compactIfNeeded folds window overflow into the digest once the natural
// window cost passes the high water mark. A failed compression leaves
// both window and digest as they were.
func (s *Session) compactIfNeeded(ctx context.Context) {
	if s.window.TotalCost() <= s.highWater {
		return
	}
	s.compact(ctx)
}

func (s *Session) compact(ctx context.Context) {
	before := s.window.Blocks()
	evicted := s.window.Drain(s.windowBudget)
	if len(evicted) == 0 {
		return
	}

	if err := s.digest.Compress(ctx, evicted, s.summarizer); err != nil {
		s.window.Restore(before)
		s.logger.Warn("compaction failed, window kept intact",
			zap.Int("evicted", len(evicted)), zap.Error(err))
		return
	}

	ids := make([]string, len(evicted))
	for i, b := range evicted {
		ids[i] = b.ID
	}
	if err := s.store.MarkAbsorbed(ctx, ids); err != nil {
		s.logger.Warn("marking absorbed blocks failed", zap.Error(err))
	}
	s.logger.Info("window compacted",
		zap.Int("absorbed", len(evicted)),
		zap.Int("digest_cost", s.digest.Cost()))
}

// Checkpoint compresses whatever currently overflows the window budget
// and persists digest, clock, and character state.
func (s *Session) Checkpoint(ctx context.Context) error {
	s.compact(ctx)

	day, minute := s.clock.State()
	st := &store.SaveState{
		ID:                 s.id,
		Character:          *s.char,
		DigestText:         s.digest.Text(),
		DigestCompressedAt: s.digest.LastCompressedAt(),
		ClockDay:           day,
		ClockMinute:        minute,
	}
	if err := s.store.UpdateSave(ctx, st); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	s.logger.Info("session checkpointed", zap.String("save", s.id))
	return nil
}

// Compress forces a compaction regardless of the high water mark.
func (s *Session) Compress(ctx context.Context) {
	s.compact(ctx)
}

// Wipe clears the digest. Window blocks stay; the next compaction starts
// a fresh digest.
func (s *Session) Wipe() {
	s.digest.Clear()
}

// Restore rebuilds window and digest from persisted state, typically
// right after loading a save.
func (s *Session) Restore(blocks []prompt.Block, digestText string, compressedAt time.Time) {
	s.window.Restore(blocks)
	if digestText != "" {
		s.digest.Restore(digestText, compressedAt)
	}
}
