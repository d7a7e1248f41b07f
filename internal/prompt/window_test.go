package prompt

import (
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

// unitSizer counts one unit per byte, making test budgets exact.
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

func testBlock(kind Kind, size int, anchor bool) Block {
	return Block{
		ID:        string(kind) + "-block",
		CreatedAt: time.Now().UTC(),
		Kind:      kind,
		Content:   strings.Repeat("x", size),
		Cost:      size,
		Anchor:    anchor,
	}
}

func TestFitWithinBudgetReturnsEverything(t *testing.T) {
	w := NewWindow(nil, zap.NewNop())
	for i := 0; i < 3; i++ {
		w.Append(testBlock(KindNarrative, 40, false))
	}

	got := w.Fit(200)
	if len(got) != 3 {
		t.Fatalf("got %d blocks, want 3", len(got))
	}
	if w.Len() != 3 {
		t.Errorf("Fit mutated the window: %d blocks left", w.Len())
	}
}

func TestFitEvictsTwoOldestAtBudget(t *testing.T) {
	// Five 50-unit blocks against a 150 budget must drop exactly the
	// two oldest, leaving 150 units.
	w := NewWindow(nil, zap.NewNop())
	var ids []string
	for i := 0; i < 5; i++ {
		b := testBlock(KindNarrative, 50, false)
		b.ID = string(rune('a' + i))
		ids = append(ids, b.ID)
		w.Append(b)
	}

	got := w.Fit(150)
	if len(got) != 3 {
		t.Fatalf("got %d blocks, want 3", len(got))
	}
	total := 0
	for i, b := range got {
		if b.ID != ids[i+2] {
			t.Errorf("block %d: got id %q, want %q", i, b.ID, ids[i+2])
		}
		total += b.Cost
	}
	if total != 150 {
		t.Errorf("kept %d units, want exactly 150", total)
	}
}

func TestFitEvictsLowestPriorityKindFirst(t *testing.T) {
	w := NewWindow(nil, zap.NewNop())
	w.Append(testBlock(KindSystem, 50, false))
	w.Append(testBlock(KindChoice, 50, false))
	w.Append(testBlock(KindNarrative, 50, false))

	// Budget forces one eviction; the choice block goes even though the
	// system block is older.
	got := w.Fit(100)
	if len(got) != 2 {
		t.Fatalf("got %d blocks, want 2", len(got))
	}
	for _, b := range got {
		if b.Kind == KindChoice {
			t.Errorf("choice block survived while higher-priority kinds were available")
		}
	}
}

func TestFitAnchorsOutliveNonAnchored(t *testing.T) {
	w := NewWindow(nil, zap.NewNop())
	w.Append(testBlock(KindChoice, 50, true))
	w.Append(testBlock(KindNarrative, 50, false))
	w.Append(testBlock(KindSystem, 50, false))

	got := w.Fit(50)
	if len(got) != 1 {
		t.Fatalf("got %d blocks, want 1", len(got))
	}
	if !got[0].Anchor {
		t.Errorf("surviving block is not the anchor: kind=%s", got[0].Kind)
	}
}

func TestFitDropsAnchorsOnlyAsLastResort(t *testing.T) {
	w := NewWindow(nil, zap.NewNop())
	first := testBlock(KindNarrative, 60, true)
	first.ID = "old-anchor"
	second := testBlock(KindNarrative, 60, true)
	second.ID = "new-anchor"
	w.Append(first)
	w.Append(second)

	got := w.Fit(60)
	if len(got) != 1 {
		t.Fatalf("got %d blocks, want 1", len(got))
	}
	if got[0].ID != "new-anchor" {
		t.Errorf("got %q, want the newer anchor to survive", got[0].ID)
	}
}

func TestDrainRemovesAndReturnsOverflow(t *testing.T) {
	w := NewWindow(nil, zap.NewNop())
	for i := 0; i < 4; i++ {
		b := testBlock(KindNarrative, 50, false)
		b.ID = string(rune('a' + i))
		w.Append(b)
	}

	evicted := w.Drain(100)
	if len(evicted) != 2 {
		t.Fatalf("got %d evicted, want 2", len(evicted))
	}
	if evicted[0].ID != "a" || evicted[1].ID != "b" {
		t.Errorf("evicted %q,%q, want oldest-first a,b", evicted[0].ID, evicted[1].ID)
	}
	if w.Len() != 2 {
		t.Errorf("window holds %d blocks after drain, want 2", w.Len())
	}
}

func TestCustomEvictionOrder(t *testing.T) {
	// Invert the default: system goes first.
	w := NewWindow([]Kind{KindSystem, KindNarrative, KindIntel, KindChoice}, zap.NewNop())
	w.Append(testBlock(KindChoice, 50, false))
	w.Append(testBlock(KindSystem, 50, false))

	got := w.Fit(50)
	if len(got) != 1 || got[0].Kind != KindChoice {
		t.Fatalf("custom order ignored: survivors %v", got)
	}
}

func TestRestoreReplacesContents(t *testing.T) {
	w := NewWindow(nil, zap.NewNop())
	w.Append(testBlock(KindNarrative, 10, false))
	w.Restore([]Block{testBlock(KindIntel, 20, false), testBlock(KindIntel, 30, false)})

	if w.Len() != 2 {
		t.Fatalf("got %d blocks, want 2", w.Len())
	}
	if w.TotalCost() != 50 {
		t.Errorf("got total %d, want 50", w.TotalCost())
	}
}
