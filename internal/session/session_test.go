package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kavrell/dustward/internal/game"
	"github.com/kavrell/dustward/internal/prompt"
	"github.com/kavrell/dustward/internal/provider"
	"github.com/kavrell/dustward/internal/rules"
	"github.com/kavrell/dustward/internal/store"
)

type unitSizer struct{}

func (unitSizer) Cost(s string) int { return len(s) }
func (unitSizer) Truncate(s string, budget int) string {
	if budget <= 0 {
		return ""
	}
	if len(s) <= budget {
		return s
	}
	return s[:budget]
}
func (unitSizer) Exact() bool { return true }

type fakeStore struct {
	blocks   []prompt.Block
	absorbed []string
	saved    *store.SaveState
}

func (f *fakeStore) UpdateSave(_ context.Context, st *store.SaveState) error {
	f.saved = st
	return nil
}

func (f *fakeStore) AppendBlock(_ context.Context, _ string, b prompt.Block) error {
	f.blocks = append(f.blocks, b)
	return nil
}

func (f *fakeStore) MarkAbsorbed(_ context.Context, ids []string) error {
	f.absorbed = append(f.absorbed, ids...)
	return nil
}

type fakeChat struct {
	narration  string
	summary    string
	narrateErr error
	summErr    error
}

func (f *fakeChat) Route(_ context.Context, role string, _ *provider.ChatRequest) (*provider.ChatResponse, error) {
	switch role {
	case provider.RoleSummarizer:
		if f.summErr != nil {
			return nil, f.summErr
		}
		return &provider.ChatResponse{Content: f.summary}, nil
	default:
		if f.narrateErr != nil {
			return nil, f.narrateErr
		}
		return &provider.ChatResponse{Content: f.narration}, nil
	}
}

func writeRules(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"instructions.md": "You are the game master.",
		"core.md":         "Checks are 2d10 plus attribute.",
		"narrative.md":    "Keep scenes grounded.",
	}
	for name, text := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(text), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func testPackerConfig() prompt.Config {
	return prompt.Config{
		HardMax: 2000,
		Sections: []prompt.SectionSpec{
			{Name: prompt.SectionInstructions, Budget: 200, Required: true},
			{Name: prompt.SectionRulesCore, Budget: 200, Required: true},
			{Name: prompt.SectionRulesNarrative, Budget: 200, DroppableAt: prompt.TierII},
			{Name: prompt.SectionStateSnapshot, Budget: 400},
			{Name: prompt.SectionDigest, Budget: 300, DroppableAt: prompt.TierIII},
			{Name: prompt.SectionWindow, Budget: 150},
			{Name: prompt.SectionRetrieval, Budget: 100, DroppableAt: prompt.TierII},
		},
	}
}

func newTestSession(t *testing.T, chat *fakeChat, st *fakeStore, highWater int) *Session {
	t.Helper()
	logger := zap.NewNop()
	sizer := unitSizer{}
	packer, err := prompt.New(testPackerConfig(), sizer, logger)
	if err != nil {
		t.Fatal(err)
	}

	s, err := New(Params{
		SaveID:        "save-1",
		Character:     game.NewCharacter("Vex"),
		Clock:         game.NewClock(),
		Rules:         rules.NewLoader(writeRules(t), logger),
		Packer:        packer,
		Sizer:         sizer,
		Window:        prompt.NewWindow(nil, logger),
		Digest:        prompt.NewDigest(sizer, time.Second, logger),
		Summarizer:    NewProviderSummarizer(chat, "small-model"),
		Store:         st,
		Chat:          chat,
		HighWater:     highWater,
		NarratorModel: "big-model",
		Logger:        logger,
	})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestTurnRecordsBothSides(t *testing.T) {
	st := &fakeStore{}
	chat := &fakeChat{narration: "The dust settles over the market."}
	s := newTestSession(t, chat, st, 0)

	res, err := s.Turn(context.Background(), "I walk into the market.")
	if err != nil {
		t.Fatal(err)
	}
	if res.Narration != chat.narration {
		t.Errorf("got narration %q", res.Narration)
	}
	if len(st.blocks) != 2 {
		t.Fatalf("got %d durable blocks, want 2", len(st.blocks))
	}
	if st.blocks[0].Kind != prompt.KindChoice || st.blocks[1].Kind != prompt.KindNarrative {
		t.Errorf("block kinds %s, %s", st.blocks[0].Kind, st.blocks[1].Kind)
	}
	if s.Window().Len() != 2 {
		t.Errorf("window has %d blocks, want 2", s.Window().Len())
	}
	if s.Clock().Stamp() != "Day 1, 08:45" {
		t.Errorf("clock did not advance: %s", s.Clock().Stamp())
	}
	if res.Pack == nil || res.Pack.Payload == "" {
		t.Error("turn returned no pack")
	}
}

func TestAbortedTurnKeepsInput(t *testing.T) {
	st := &fakeStore{}
	chat := &fakeChat{narrateErr: errors.New("backend down")}
	s := newTestSession(t, chat, st, 0)

	if _, err := s.Turn(context.Background(), "I kick the door."); err == nil {
		t.Fatal("expected error")
	}
	if len(st.blocks) != 1 {
		t.Fatalf("got %d durable blocks, want the input only", len(st.blocks))
	}
	if st.blocks[0].Content != "I kick the door." {
		t.Errorf("got %q", st.blocks[0].Content)
	}
	if s.Clock().Stamp() != "Day 1, 08:00" {
		t.Error("clock advanced on an aborted turn")
	}
}

func TestCompactionFoldsOverflowIntoDigest(t *testing.T) {
	st := &fakeStore{}
	chat := &fakeChat{narration: strings.Repeat("n", 60), summary: "They crossed the flats."}
	s := newTestSession(t, chat, st, 120)

	// Each turn adds ~120 units; the second one trips the high water mark.
	for i := 0; i < 3; i++ {
		if _, err := s.Turn(context.Background(), strings.Repeat("i", 60)); err != nil {
			t.Fatal(err)
		}
	}

	if s.Digest().Text() == "" {
		t.Fatal("digest never compressed")
	}
	if !strings.Contains(s.Digest().Text(), "They crossed the flats.") {
		t.Errorf("digest %q", s.Digest().Text())
	}
	if len(st.absorbed) == 0 {
		t.Error("absorbed blocks never marked in store")
	}
	if s.Window().TotalCost() >= 360 {
		t.Errorf("window never shrank: %d", s.Window().TotalCost())
	}
}

func TestFailedCompactionLeavesWindowIntact(t *testing.T) {
	st := &fakeStore{}
	chat := &fakeChat{narration: strings.Repeat("n", 60), summErr: errors.New("summarizer down")}
	s := newTestSession(t, chat, st, 120)

	for i := 0; i < 3; i++ {
		if _, err := s.Turn(context.Background(), strings.Repeat("i", 60)); err != nil {
			t.Fatal(err)
		}
	}

	if s.Digest().Text() != "" {
		t.Errorf("digest grew despite failing summarizer: %q", s.Digest().Text())
	}
	if !s.Digest().Degraded() {
		t.Error("digest not flagged degraded")
	}
	if s.Window().Len() != 6 {
		t.Errorf("window lost blocks on failed compaction: %d", s.Window().Len())
	}
	if len(st.absorbed) != 0 {
		t.Error("blocks marked absorbed despite failed compression")
	}
}

func TestCheckpointPersistsState(t *testing.T) {
	st := &fakeStore{}
	chat := &fakeChat{narration: "ok", summary: "A quiet stretch."}
	s := newTestSession(t, chat, st, 0)

	if _, err := s.Turn(context.Background(), "I rest."); err != nil {
		t.Fatal(err)
	}
	if err := s.Checkpoint(context.Background()); err != nil {
		t.Fatal(err)
	}
	if st.saved == nil {
		t.Fatal("checkpoint never reached the store")
	}
	if st.saved.ID != "save-1" || st.saved.Character.Name != "Vex" {
		t.Errorf("saved %+v", st.saved)
	}
	if st.saved.ClockMinute == 480 {
		t.Error("clock state not captured after the turn")
	}
}

func TestRestoreRebuildsWindowAndDigest(t *testing.T) {
	st := &fakeStore{}
	s := newTestSession(t, &fakeChat{}, st, 0)

	blocks := []prompt.Block{
		prompt.NewBlock(prompt.KindNarrative, "old scene", false, unitSizer{}),
	}
	when := time.Now().UTC().Add(-time.Hour)
	s.Restore(blocks, "Past events, condensed.", when)

	if s.Window().Len() != 1 {
		t.Errorf("window has %d blocks", s.Window().Len())
	}
	if s.Digest().Text() != "Past events, condensed." {
		t.Errorf("digest %q", s.Digest().Text())
	}
	if !s.Digest().LastCompressedAt().Equal(when) {
		t.Error("digest timestamp not restored")
	}
}
