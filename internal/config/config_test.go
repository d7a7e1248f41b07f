package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kavrell/dustward/internal/prompt"
)

func TestLoadSubstitutesEnvVars(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dustward.json")
	data := `{
		"server": {"port": 3210},
		"database": {"postgres": {"dsn": "${DUSTWARD_TEST_DSN:postgres://localhost/dustward}"}},
		"prompt": {"hard_max": 1000, "sections": [
			{"name": "rules_core", "budget": 200, "required": true},
			{"name": "retrieval", "budget": 100, "droppable_at": "II"}
		]}
	}`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Postgres.DSN != "postgres://localhost/dustward" {
		t.Errorf("default substitution failed: %q", cfg.Database.Postgres.DSN)
	}

	t.Setenv("DUSTWARD_TEST_DSN", "postgres://db:5432/game")
	cfg, err = Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Database.Postgres.DSN != "postgres://db:5432/game" {
		t.Errorf("env substitution failed: %q", cfg.Database.Postgres.DSN)
	}
}

func TestPackerConfigConversion(t *testing.T) {
	pc := PromptConfig{
		HardMax: 1000,
		Sections: []SectionBudget{
			{Name: "rules_core", Budget: 200, Required: true},
			{Name: "retrieval", Budget: 100, DroppableAt: "II"},
		},
	}
	cfg, err := pc.PackerConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Sections[1].DroppableAt != prompt.TierII {
		t.Errorf("got tier %s, want II", cfg.Sections[1].DroppableAt)
	}
	if !cfg.Sections[0].Required {
		t.Error("required flag lost")
	}

	if _, err := (PromptConfig{HardMax: 1, Sections: []SectionBudget{{Name: "x", DroppableAt: "bogus"}}}).PackerConfig(); err == nil {
		t.Error("bad tier accepted")
	}
}

func TestPackerConfigDefaults(t *testing.T) {
	cfg, err := PromptConfig{}.PackerConfig()
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}
