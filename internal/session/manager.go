package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kavrell/dustward/internal/game"
	"github.com/kavrell/dustward/internal/prompt"
	"github.com/kavrell/dustward/internal/rules"
	"github.com/kavrell/dustward/internal/store"
)

// ManagerStore is the store surface the manager needs to create, load,
// and list saves on top of what a running session uses.
type ManagerStore interface {
	SaveStore
	CreateSave(ctx context.Context, name string, ch *game.Character) (string, error)
	GetSave(ctx context.Context, id string) (*store.SaveState, error)
	FindSaveByName(ctx context.Context, name string) (*store.SaveState, error)
	ListSaves(ctx context.Context) ([]store.SaveMeta, error)
	DeleteSave(ctx context.Context, id string) error
	LoadBlocks(ctx context.Context, saveID string) ([]prompt.Block, error)
}

// ManagerParams carries the shared dependencies every session gets.
type ManagerParams struct {
	Store     ManagerStore
	Chat      Chat
	Retriever Retriever
	Relations *game.FactionGraph
	Locker    *Locker
	Rules     *rules.Loader

	PackerConfig  prompt.Config
	EvictionOrder []prompt.Kind
	Sizer         prompt.Sizer

	SummarizeTimeout time.Duration
	HighWater        int
	NarratorModel    string
	SummarizerModel  string

	Logger *zap.Logger
}

// Manager owns the live sessions and maps gateway surfaces (one chat
// channel, one terminal) to the session each is playing.
type Manager struct {
	p      ManagerParams
	packer *prompt.Packer

	mu    sync.RWMutex
	byID  map[string]*Session
	byKey map[string]*Session
}

// NewManager validates the packer config once and returns a Manager.
func NewManager(p ManagerParams) (*Manager, error) {
	packer, err := prompt.New(p.PackerConfig, p.Sizer, p.Logger)
	if err != nil {
		return nil, err
	}
	return &Manager{
		p:      p,
		packer: packer,
		byID:   make(map[string]*Session),
		byKey:  make(map[string]*Session),
	}, nil
}

func (m *Manager) build(saveID string, ch *game.Character, clock *game.Clock) (*Session, error) {
	return New(Params{
		SaveID:        saveID,
		Character:     ch,
		Clock:         clock,
		Rules:         m.p.Rules,
		Packer:        m.packer,
		Sizer:         m.p.Sizer,
		Window:        prompt.NewWindow(m.p.EvictionOrder, m.p.Logger),
		Digest:        prompt.NewDigest(m.p.Sizer, m.p.SummarizeTimeout, m.p.Logger),
		Summarizer:    NewProviderSummarizer(m.p.Chat, m.p.SummarizerModel),
		Store:         m.p.Store,
		Chat:          m.p.Chat,
		Retriever:     m.p.Retriever,
		Relations:     m.p.Relations,
		Locker:        m.p.Locker,
		NarratorModel: m.p.NarratorModel,
		HighWater:     m.p.HighWater,
		Logger:        m.p.Logger,
	})
}

// Create starts a fresh save with a new level-one character.
func (m *Manager) Create(ctx context.Context, saveName, characterName string) (*Session, error) {
	ch := game.NewCharacter(characterName)
	id, err := m.p.Store.CreateSave(ctx, saveName, ch)
	if err != nil {
		return nil, err
	}
	s, err := m.build(id, ch, game.NewClock())
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.byID[id] = s
	m.mu.Unlock()
	m.p.Logger.Info("save created", zap.String("save", id), zap.String("name", saveName))
	return s, nil
}

// Load resumes a save by name or ID, rebuilding window and digest from
// the persisted transcript. A save already live returns its session.
func (m *Manager) Load(ctx context.Context, ref string) (*Session, error) {
	st, err := m.p.Store.FindSaveByName(ctx, ref)
	if errors.Is(err, store.ErrSaveNotFound) {
		st, err = m.p.Store.GetSave(ctx, ref)
	}
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	live, ok := m.byID[st.ID]
	m.mu.RUnlock()
	if ok {
		return live, nil
	}

	ch := st.Character
	clock := game.NewClock()
	clock.Restore(st.ClockDay, st.ClockMinute)
	s, err := m.build(st.ID, &ch, clock)
	if err != nil {
		return nil, err
	}

	blocks, err := m.p.Store.LoadBlocks(ctx, st.ID)
	if err != nil {
		return nil, fmt.Errorf("load transcript: %w", err)
	}
	s.Restore(blocks, st.DigestText, st.DigestCompressedAt)

	m.mu.Lock()
	m.byID[st.ID] = s
	m.mu.Unlock()
	m.p.Logger.Info("save loaded",
		zap.String("save", st.ID), zap.Int("blocks", len(blocks)))
	return s, nil
}

// Attach binds a surface key (e.g. "discord:<channel>") to a session.
func (m *Manager) Attach(key string, s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byKey[key] = s
}

// Detach unbinds a surface key.
func (m *Manager) Detach(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byKey, key)
}

// ForKey returns the session a surface is playing, if any.
func (m *Manager) ForKey(key string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.byKey[key]
	return s, ok
}

// ByID returns a live session by save ID.
func (m *Manager) ByID(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.byID[id]
	return s, ok
}

// Sessions returns every live session.
func (m *Manager) Sessions() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.byID))
	for _, s := range m.byID {
		out = append(out, s)
	}
	return out
}

// List returns all saves on disk, live or not.
func (m *Manager) List(ctx context.Context) ([]store.SaveMeta, error) {
	return m.p.Store.ListSaves(ctx)
}

// Delete removes a save and drops its live session if present.
func (m *Manager) Delete(ctx context.Context, id string) error {
	if err := m.p.Store.DeleteSave(ctx, id); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byID, id)
	for key, s := range m.byKey {
		if s.ID() == id {
			delete(m.byKey, key)
		}
	}
	return nil
}

// Checkpoint persists every live session, for graceful shutdown.
func (m *Manager) Checkpoint(ctx context.Context) {
	for _, s := range m.Sessions() {
		if err := s.Checkpoint(ctx); err != nil {
			m.p.Logger.Warn("shutdown checkpoint failed",
				zap.String("save", s.ID()), zap.Error(err))
		}
	}
}
