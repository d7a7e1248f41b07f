package prompt

import (
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestHeuristicSizerOverestimates(t *testing.T) {
	s := HeuristicSizer{}
	// English prose runs near four bytes per token; the three-byte
	// heuristic must never come in under that.
	text := strings.Repeat("the wasteland wind carried grit ", 20)
	if got, floor := s.Cost(text), len(text)/4; got < floor {
		t.Errorf("heuristic cost %d below %d, risks undercounting", got, floor)
	}
	if s.Cost("") != 0 {
		t.Errorf("empty text should cost 0")
	}
}

func TestHeuristicSizerDeterministic(t *testing.T) {
	s := HeuristicSizer{}
	text := "ad victoriam"
	if s.Cost(text) != s.Cost(text) {
		t.Error("cost not deterministic")
	}
}

func TestHeuristicTruncateRespectsBudget(t *testing.T) {
	s := HeuristicSizer{}
	text := strings.Repeat("abcdef", 100)
	out := s.Truncate(text, 50)
	if got := s.Cost(out); got > 50 {
		t.Errorf("truncated cost %d exceeds budget 50", got)
	}
	if s.Truncate(text, 0) != "" {
		t.Error("zero budget should yield empty text")
	}
	if s.Truncate("short", 100) != "short" {
		t.Error("text within budget should pass through unchanged")
	}
}

func TestHeuristicTruncateKeepsRuneBoundary(t *testing.T) {
	s := HeuristicSizer{}
	text := strings.Repeat("廃墟", 50)
	out := s.Truncate(text, 10)
	if !strings.HasPrefix(text, out) {
		t.Fatal("truncation not a prefix")
	}
	for _, r := range out {
		if r == '�' {
			t.Fatal("truncation split a rune")
		}
	}
}

func TestNewSizerAlwaysReturnsASizer(t *testing.T) {
	// Falls back to the heuristic when the encoding is unavailable
	// (e.g. offline); either way the contract holds.
	s := NewSizer(zap.NewNop())
	if s == nil {
		t.Fatal("nil sizer")
	}
	if s.Cost("war never changes") <= 0 {
		t.Error("non-empty text should have positive cost")
	}
}
