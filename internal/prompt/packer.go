// Package prompt assembles the bounded-size instruction payload sent to
// the language model each turn. It owns token accounting, per-section
// budgets, rolling-window eviction, the durable digest, and strain-tier
// degradation as a session grows.
package prompt

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Canonical section names, in payload order.
const (
	SectionInstructions   = "instructions"
	SectionRulesCore      = "rules_core"
	SectionRulesNarrative = "rules_narrative"
	SectionStateSnapshot  = "state_snapshot"
	SectionDigest         = "digest"
	SectionWindow         = "window"
	SectionRetrieval      = "retrieval"
)

// sectionSeparatorCost is charged per section boundary when validating
// budgets; the "\n\n" joins between sections count against the hard
// budget too.
const sectionSeparatorCost = 2

// SectionSpec configures one named slot in the payload.
type SectionSpec struct {
	Name string
	// Budget is the section's own hard budget in tokens.
	Budget int
	// DroppableAt empties the section entirely at or above this strain
	// tier. TierNormal (the zero value) means never droppable.
	DroppableAt Tier
	// Required sections must fit untrimmed; overflow is a fatal
	// configuration error.
	Required bool
}

// Config holds the full budget table for the packer.
type Config struct {
	// HardMax is the non-negotiable ceiling on total payload size.
	HardMax int
	// Sections in fixed payload order.
	Sections []SectionSpec
	// Thresholds for strain classification; zero value uses defaults.
	Thresholds StrainThresholds
}

// DefaultConfig returns the standard section table for a 24k-token
// payload.
func DefaultConfig() Config {
	return Config{
		HardMax: 24000,
		Sections: []SectionSpec{
			{Name: SectionInstructions, Budget: 1200},
			{Name: SectionRulesCore, Budget: 3000, Required: true},
			{Name: SectionRulesNarrative, Budget: 2500, DroppableAt: TierII},
			{Name: SectionStateSnapshot, Budget: 2000},
			{Name: SectionDigest, Budget: 3000, DroppableAt: TierIII},
			{Name: SectionWindow, Budget: 9000},
			{Name: SectionRetrieval, Budget: 2500, DroppableAt: TierII},
		},
		Thresholds: DefaultStrainThresholds(),
	}
}

// Validate checks the budget table. Budgets that cannot mathematically
// fit the hard max are rejected here rather than discovered mid-session.
func (c Config) Validate() error {
	if c.HardMax <= 0 {
		return fmt.Errorf("hard max budget must be positive, got %d", c.HardMax)
	}
	if len(c.Sections) == 0 {
		return fmt.Errorf("no sections configured")
	}
	seen := make(map[string]bool, len(c.Sections))
	sum := 0
	for _, s := range c.Sections {
		if s.Name == "" {
			return fmt.Errorf("section with empty name")
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicate section %q", s.Name)
		}
		seen[s.Name] = true
		if s.Budget < 0 {
			return fmt.Errorf("section %q has negative budget", s.Name)
		}
		if s.Required && s.DroppableAt != TierNormal {
			return fmt.Errorf("section %q cannot be both required and droppable", s.Name)
		}
		sum += s.Budget
	}
	sum += sectionSeparatorCost * (len(c.Sections) - 1)
	if sum > c.HardMax {
		return fmt.Errorf("section budgets plus separators total %d, exceeding hard max %d", sum, c.HardMax)
	}
	return nil
}

// Request carries one turn's candidate content. Static holds already
// rendered text for every section other than the window and digest:
// instructions and rules re-read at turn start, the serialized state
// snapshot, and retrieval results ranked by the external retriever.
type Request struct {
	Static map[string]string
	Window *Window
	Digest *Digest
}

// PackedSection is the diagnostic record for one section of the payload.
type PackedSection struct {
	Name    string `json:"name"`
	Text    string `json:"-"`
	Budget  int    `json:"budget"`
	Used    int    `json:"used"`
	Dropped bool   `json:"dropped"`
}

// PromptPack is the assembled, budget-conformant payload for one turn.
// It is a transient read-model: recomputed fresh every turn and never
// persisted.
type PromptPack struct {
	Sections  []PackedSection `json:"sections"`
	Payload   string          `json:"-"`
	TotalUsed int             `json:"total_used"`
	Requested int             `json:"requested"`
	Tier      Tier            `json:"-"`
	// Notes surface non-fatal degradations for the diagnostics API.
	Notes []string `json:"notes,omitempty"`
}

// Packer orchestrates section budgeting into a PromptPack. It holds no
// per-session state; Window and Digest come in with each request.
type Packer struct {
	cfg    Config
	sizer  Sizer
	logger *zap.Logger
}

// New validates the config and creates a packer.
func New(cfg Config, sizer Sizer, logger *zap.Logger) (*Packer, error) {
	if cfg.Thresholds == (StrainThresholds{}) {
		cfg.Thresholds = DefaultStrainThresholds()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("packer config: %w", err)
	}
	return &Packer{cfg: cfg, sizer: sizer, logger: logger}, nil
}

// Config returns the active budget table.
func (p *Packer) Config() Config { return p.cfg }

// Pack produces one PromptPack from the turn's candidate content.
// Deterministic: identical inputs yield byte-identical output.
func (p *Packer) Pack(req Request) (*PromptPack, error) {
	// 1. Render every section untrimmed and compute its natural cost.
	natural := make([]string, len(p.cfg.Sections))
	costs := make([]int, len(p.cfg.Sections))
	requested := 0
	for i, spec := range p.cfg.Sections {
		text := p.naturalContent(spec.Name, req)
		natural[i] = text
		costs[i] = p.sizer.Cost(text)
		requested += costs[i]
	}

	// A mandatory section that cannot fit even alone is a deployment
	// misconfiguration; abort before any trimming.
	for i, spec := range p.cfg.Sections {
		if spec.Required && costs[i] > spec.Budget {
			return nil, &ConfigurationError{Section: spec.Name, Cost: costs[i], Budget: spec.Budget}
		}
	}

	// 2. Strain is classified on the pre-trim total so trimming cannot
	// feed back into the tier mid-pass.
	tier := Classify(requested, p.cfg.HardMax, p.cfg.Thresholds)

	pack := &PromptPack{Tier: tier, Requested: requested}
	if !p.sizer.Exact() {
		pack.Notes = append(pack.Notes, "sizing degraded: heuristic token estimate in use")
	}
	if req.Digest != nil && req.Digest.Degraded() {
		pack.Notes = append(pack.Notes, "compression degraded: digest is stale")
	}

	// 3+4. Drop whole sections by tier, fit the rest to their budgets.
	var parts []string
	for i, spec := range p.cfg.Sections {
		ps := PackedSection{Name: spec.Name, Budget: spec.Budget}
		switch {
		case spec.DroppableAt != TierNormal && tier >= spec.DroppableAt:
			ps.Dropped = true
		case spec.Name == SectionWindow && req.Window != nil:
			ps.Text, ps.Used = p.fitWindow(req.Window, spec.Budget)
		default:
			ps.Text, ps.Used = p.fitText(natural[i], spec.Budget)
		}
		if ps.Text != "" {
			parts = append(parts, ps.Text)
		}
		pack.TotalUsed += ps.Used
		pack.Sections = append(pack.Sections, ps)
	}

	// 5. Concatenate in fixed order.
	pack.Payload = strings.Join(parts, "\n\n")

	// Should be unreachable given Validate's budget math; if it trips,
	// truncate at the token boundary and log loudly.
	if total := p.sizer.Cost(pack.Payload); total > p.cfg.HardMax {
		p.logger.Error("budget invariant violated after trimming, truncating payload",
			zap.Int("total", total), zap.Int("hard_max", p.cfg.HardMax))
		pack.Payload = p.sizer.Truncate(pack.Payload, p.cfg.HardMax)
		pack.Notes = append(pack.Notes, "budget invariant violation: payload truncated at hard max")
	}

	p.logger.Debug("prompt packed",
		zap.Int("requested", requested),
		zap.Int("used", pack.TotalUsed),
		zap.String("strain", tier.String()))
	return pack, nil
}

// naturalContent renders a section's untrimmed candidate text.
func (p *Packer) naturalContent(name string, req Request) string {
	switch name {
	case SectionWindow:
		if req.Window == nil {
			return ""
		}
		return renderBlocks(req.Window.Blocks())
	case SectionDigest:
		if req.Digest == nil {
			return ""
		}
		return req.Digest.Text()
	}
	return req.Static[name]
}

// fitWindow runs window eviction against the section budget. Used is
// the sum of surviving block costs; block costs are the unit of account
// for the window, and the final whole-payload check backstops join
// overhead.
func (p *Packer) fitWindow(w *Window, budget int) (string, int) {
	blocks := w.Fit(budget)
	used := 0
	for _, b := range blocks {
		used += b.Cost
	}
	return renderBlocks(blocks), used
}

// fitText truncates at paragraph boundaries, never mid-token. A first
// paragraph too large for the whole budget falls back to a token-level
// cut.
func (p *Packer) fitText(text string, budget int) (string, int) {
	cost := p.sizer.Cost(text)
	if cost <= budget {
		return text, cost
	}

	paragraphs := strings.Split(text, "\n\n")
	var kept []string
	used := 0
	for _, para := range paragraphs {
		c := p.sizer.Cost(para) + sectionSeparatorCost
		if used+c > budget {
			break
		}
		kept = append(kept, para)
		used += c
	}
	if len(kept) == 0 {
		out := p.sizer.Truncate(text, budget)
		return out, p.sizer.Cost(out)
	}
	out := strings.Join(kept, "\n\n")
	return out, p.sizer.Cost(out)
}

// renderBlocks joins window blocks oldest-first into section text.
func renderBlocks(blocks []Block) string {
	if len(blocks) == 0 {
		return ""
	}
	parts := make([]string, len(blocks))
	for i, b := range blocks {
		parts[i] = b.Content
	}
	return strings.Join(parts, "\n\n")
}
