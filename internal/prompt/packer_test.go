package prompt

import (
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

func mustPacker(t *testing.T, cfg Config) *Packer {
	t.Helper()
	p, err := New(cfg, unitSizer{}, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestPackEvictsWindowToBudget(t *testing.T) {
	p := mustPacker(t, Config{
		HardMax: 1000,
		Sections: []SectionSpec{
			{Name: SectionInstructions, Budget: 100},
			{Name: SectionRulesCore, Budget: 200, Required: true},
			{Name: SectionWindow, Budget: 150},
		},
	})

	w := NewWindow(nil, zap.NewNop())
	for i := 0; i < 5; i++ {
		w.Append(testBlock(KindNarrative, 50, false))
	}

	pack, err := p.Pack(Request{
		Static: map[string]string{
			SectionInstructions: strings.Repeat("i", 80),
			SectionRulesCore:    strings.Repeat("r", 200),
		},
		Window: w,
	})
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}

	var win PackedSection
	for _, s := range pack.Sections {
		if s.Name == SectionWindow {
			win = s
		}
	}
	if win.Used != 150 {
		t.Errorf("window used %d units, want exactly 150", win.Used)
	}
	if w.Len() != 5 {
		t.Errorf("pack mutated the window: %d blocks", w.Len())
	}
}

func TestPackStrainDropsSectionsEntirely(t *testing.T) {
	p := mustPacker(t, Config{
		HardMax: 1000,
		Sections: []SectionSpec{
			{Name: SectionInstructions, Budget: 100},
			{Name: SectionRulesCore, Budget: 200, Required: true},
			{Name: SectionRulesNarrative, Budget: 300, DroppableAt: TierII},
			{Name: SectionWindow, Budget: 300},
		},
	})

	w := NewWindow(nil, zap.NewNop())
	w.Append(testBlock(KindNarrative, 320, false))

	core := strings.Repeat("c", 200)
	pack, err := p.Pack(Request{
		Static: map[string]string{
			SectionInstructions:   strings.Repeat("i", 100),
			SectionRulesCore:      core,
			SectionRulesNarrative: strings.Repeat("n", 300),
		},
		Window: w,
	})
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}

	// Untrimmed total is 920 of 1000: strain tier III.
	if pack.Tier != TierIII {
		t.Fatalf("got tier %s, want III", pack.Tier)
	}
	for _, s := range pack.Sections {
		switch s.Name {
		case SectionRulesNarrative:
			if !s.Dropped || s.Used != 0 || s.Text != "" {
				t.Errorf("narrative rules not fully dropped: used=%d dropped=%v", s.Used, s.Dropped)
			}
		case SectionRulesCore:
			if s.Text != core || s.Used != 200 {
				t.Errorf("core rules modified: used=%d", s.Used)
			}
		}
	}
	if !strings.Contains(pack.Payload, core) {
		t.Error("core rules missing from payload")
	}
}

func TestPackRequiredSectionOverflowIsFatal(t *testing.T) {
	p := mustPacker(t, Config{
		HardMax: 24000,
		Sections: []SectionSpec{
			{Name: SectionRulesCore, Budget: 4000, Required: true},
		},
	})

	_, err := p.Pack(Request{
		Static: map[string]string{SectionRulesCore: strings.Repeat("r", 5000)},
	})
	if !IsConfigurationError(err) {
		t.Fatalf("got %v, want ConfigurationError", err)
	}
}

func TestPackDeterministic(t *testing.T) {
	p := mustPacker(t, DefaultConfig())
	w := NewWindow(nil, zap.NewNop())
	w.Append(testBlock(KindNarrative, 400, false))
	w.Append(testBlock(KindChoice, 200, true))

	req := Request{
		Static: map[string]string{
			SectionInstructions: "be the narrator",
			SectionRulesCore:    "core rules text",
			SectionRetrieval:    "1. vault records",
		},
		Window: w,
	}

	a, err := p.Pack(req)
	if err != nil {
		t.Fatal(err)
	}
	b, err := p.Pack(req)
	if err != nil {
		t.Fatal(err)
	}
	if a.Payload != b.Payload {
		t.Error("repeated packs differ")
	}
	if a.TotalUsed != b.TotalUsed || a.Tier != b.Tier {
		t.Errorf("diagnostics differ: %d/%s vs %d/%s", a.TotalUsed, a.Tier, b.TotalUsed, b.Tier)
	}
}

func TestPackNeverExceedsHardMax(t *testing.T) {
	cfg := Config{
		HardMax: 500,
		Sections: []SectionSpec{
			{Name: SectionRulesCore, Budget: 150, Required: true},
			{Name: SectionDigest, Budget: 100, DroppableAt: TierIII},
			{Name: SectionWindow, Budget: 200},
		},
	}
	p := mustPacker(t, cfg)

	for _, windowBlocks := range []int{0, 1, 5, 40} {
		w := NewWindow(nil, zap.NewNop())
		for i := 0; i < windowBlocks; i++ {
			w.Append(testBlock(KindNarrative, 37, i%7 == 0))
		}
		pack, err := p.Pack(Request{
			Static: map[string]string{SectionRulesCore: strings.Repeat("r", 149)},
			Window: w,
		})
		if err != nil {
			t.Fatalf("blocks=%d: %v", windowBlocks, err)
		}
		sum := 0
		for _, s := range pack.Sections {
			sum += s.Used
		}
		if sum != pack.TotalUsed {
			t.Errorf("blocks=%d: section sum %d != total %d", windowBlocks, sum, pack.TotalUsed)
		}
		if pack.TotalUsed > cfg.HardMax {
			t.Errorf("blocks=%d: used %d exceeds hard max %d", windowBlocks, pack.TotalUsed, cfg.HardMax)
		}
	}
}

func TestPackTruncatesTextAtParagraphBoundary(t *testing.T) {
	p := mustPacker(t, Config{
		HardMax: 1000,
		Sections: []SectionSpec{
			{Name: SectionRulesCore, Budget: 10, Required: true},
			{Name: SectionDigest, Budget: 100},
		},
	})

	d := NewDigest(unitSizer{}, 0, zap.NewNop())
	paras := []string{strings.Repeat("a", 40), strings.Repeat("b", 40), strings.Repeat("c", 40)}
	d.Restore(strings.Join(paras, "\n\n"), time.Now().UTC())

	pack, err := p.Pack(Request{
		Static: map[string]string{SectionRulesCore: "core"},
		Digest: d,
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range pack.Sections {
		if s.Name != SectionDigest {
			continue
		}
		if s.Used > 100 {
			t.Errorf("digest used %d, over budget", s.Used)
		}
		if strings.Contains(s.Text, "c") {
			t.Error("third paragraph should not fit")
		}
		if !strings.HasSuffix(s.Text, strings.Repeat("b", 40)) {
			t.Errorf("truncation not on paragraph boundary: %q", s.Text)
		}
	}
}

func TestConfigValidate(t *testing.T) {
	base := SectionSpec{Name: SectionRulesCore, Budget: 100, Required: true}

	cases := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{"valid", Config{HardMax: 500, Sections: []SectionSpec{base}}, true},
		{"budgets exceed hard max", Config{HardMax: 90, Sections: []SectionSpec{base}}, false},
		{"duplicate section", Config{HardMax: 500, Sections: []SectionSpec{base, base}}, false},
		{"required and droppable", Config{HardMax: 500, Sections: []SectionSpec{
			{Name: SectionRulesCore, Budget: 100, Required: true, DroppableAt: TierII},
		}}, false},
		{"no hard max", Config{Sections: []SectionSpec{base}}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tc.ok && err == nil {
				t.Error("expected error")
			}
		})
	}
}
