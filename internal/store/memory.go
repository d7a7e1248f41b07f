package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kavrell/dustward/internal/game"
	"github.com/kavrell/dustward/internal/prompt"
)

// Memory is an in-process store with the same surface as Store. The
// terminal game falls back to it when no Postgres DSN is configured;
// saves then live only as long as the process.
type Memory struct {
	mu       sync.RWMutex
	saves    map[string]*SaveState
	created  map[string]time.Time
	updated  map[string]time.Time
	blocks   map[string][]prompt.Block // saveID -> append order
	absorbed map[string]bool           // block ID
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		saves:    make(map[string]*SaveState),
		created:  make(map[string]time.Time),
		updated:  make(map[string]time.Time),
		blocks:   make(map[string][]prompt.Block),
		absorbed: make(map[string]bool),
	}
}

func (m *Memory) CreateSave(_ context.Context, name string, ch *game.Character) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New().String()
	now := time.Now().UTC()
	m.saves[id] = &SaveState{
		ID:          id,
		Name:        name,
		Character:   *ch,
		ClockDay:    1,
		ClockMinute: 480,
	}
	m.created[id] = now
	m.updated[id] = now
	return id, nil
}

func (m *Memory) GetSave(_ context.Context, id string) (*SaveState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.saves[id]
	if !ok {
		return nil, ErrSaveNotFound
	}
	cp := *st
	return &cp, nil
}

func (m *Memory) FindSaveByName(_ context.Context, name string) (*SaveState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, st := range m.saves {
		if st.Name == name {
			cp := *st
			return &cp, nil
		}
	}
	return nil, ErrSaveNotFound
}

func (m *Memory) ListSaves(_ context.Context) ([]SaveMeta, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	metas := make([]SaveMeta, 0, len(m.saves))
	for id, st := range m.saves {
		metas = append(metas, SaveMeta{
			ID:        id,
			Name:      st.Name,
			CreatedAt: m.created[id],
			UpdatedAt: m.updated[id],
		})
	}
	// Newest-updated first, matching the SQL listing.
	for i := 0; i < len(metas); i++ {
		for j := i + 1; j < len(metas); j++ {
			if metas[j].UpdatedAt.After(metas[i].UpdatedAt) {
				metas[i], metas[j] = metas[j], metas[i]
			}
		}
	}
	return metas, nil
}

func (m *Memory) UpdateSave(_ context.Context, st *SaveState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.saves[st.ID]; !ok {
		return ErrSaveNotFound
	}
	cp := *st
	m.saves[st.ID] = &cp
	m.updated[st.ID] = time.Now().UTC()
	return nil
}

func (m *Memory) DeleteSave(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.saves, id)
	delete(m.created, id)
	delete(m.updated, id)
	for _, b := range m.blocks[id] {
		delete(m.absorbed, b.ID)
	}
	delete(m.blocks, id)
	return nil
}

func (m *Memory) AppendBlock(_ context.Context, saveID string, b prompt.Block) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocks[saveID] = append(m.blocks[saveID], b)
	return nil
}

func (m *Memory) LoadBlocks(_ context.Context, saveID string) ([]prompt.Block, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []prompt.Block
	for _, b := range m.blocks[saveID] {
		if !m.absorbed[b.ID] {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *Memory) MarkAbsorbed(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		m.absorbed[id] = true
	}
	return nil
}
