package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"

	"github.com/kavrell/dustward/internal/prompt"
)

// Config is the top-level configuration structure.
type Config struct {
	Server    ServerConfig     `json:"server"`
	Providers []ProviderConfig `json:"providers"`
	Gateway   GatewayConfig    `json:"gateway"`
	Database  DatabaseConfig   `json:"database"`
	Embedding EmbeddingConfig  `json:"embedding"`
	Prompt    PromptConfig     `json:"prompt"`
	RulesDir  string           `json:"rules_dir"`
	LoreDir   string           `json:"lore_dir"`
}

type ServerConfig struct {
	Port     int    `json:"port"`
	LogLevel string `json:"log_level"`
}

type ProviderConfig struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Name     string `json:"name"`
	Endpoint string `json:"endpoint"`
	APIKey   string `json:"api_key"`
	Model    string `json:"model"`
	// Narrator and Summarizer mark which roles route to this backend.
	Narrator   bool `json:"narrator,omitempty"`
	Summarizer bool `json:"summarizer,omitempty"`
}

type GatewayConfig struct {
	Slack   SlackGatewayConfig   `json:"slack"`
	Discord DiscordGatewayConfig `json:"discord"`
}

type SlackGatewayConfig struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"bot_token"`
	AppToken string `json:"app_token"`
}

type DiscordGatewayConfig struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"bot_token"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `json:"postgres"`
	Neo4j    Neo4jConfig    `json:"neo4j"`
	Redis    RedisConfig    `json:"redis"`
	Qdrant   QdrantConfig   `json:"qdrant"`
}

type PostgresConfig struct {
	DSN string `json:"dsn"`
}

type Neo4jConfig struct {
	URI      string `json:"uri"`
	User     string `json:"user"`
	Password string `json:"password"`
}

type RedisConfig struct {
	URL string `json:"url"`
}

type QdrantConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

type EmbeddingConfig struct {
	Provider  string `json:"provider"` // "api" or "local"
	Endpoint  string `json:"endpoint"`
	Model     string `json:"model"`
	APIKey    string `json:"api_key"`
	Dimension int    `json:"dimension"`
}

// PromptConfig is the budget table for the prompt packer.
type PromptConfig struct {
	HardMax  int             `json:"hard_max"`
	Sections []SectionBudget `json:"sections"`
	// Strain thresholds as usage ratios; zero values take defaults.
	StrainElevated float64 `json:"strain_elevated"`
	StrainHigh     float64 `json:"strain_high"`
	StrainCritical float64 `json:"strain_critical"`
	// EvictionOrder lists block kinds first-evicted to last-evicted.
	EvictionOrder []string `json:"eviction_order"`
	// WindowHighWater triggers digest compaction once the window's
	// natural size passes it. Zero derives it from the window budget.
	WindowHighWater int `json:"window_high_water"`
	// SummarizeTimeoutSeconds bounds each digest compression call.
	SummarizeTimeoutSeconds int `json:"summarize_timeout_seconds"`
}

// SectionBudget configures one payload section.
type SectionBudget struct {
	Name        string `json:"name"`
	Budget      int    `json:"budget"`
	DroppableAt string `json:"droppable_at,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// PackerConfig converts the JSON form into the packer's budget table.
// An empty table falls back to the packer defaults.
func (p PromptConfig) PackerConfig() (prompt.Config, error) {
	if p.HardMax == 0 && len(p.Sections) == 0 {
		return prompt.DefaultConfig(), nil
	}

	cfg := prompt.Config{
		HardMax:    p.HardMax,
		Thresholds: prompt.DefaultStrainThresholds(),
	}
	if p.StrainElevated > 0 {
		cfg.Thresholds.Elevated = p.StrainElevated
	}
	if p.StrainHigh > 0 {
		cfg.Thresholds.High = p.StrainHigh
	}
	if p.StrainCritical > 0 {
		cfg.Thresholds.Critical = p.StrainCritical
	}
	for _, s := range p.Sections {
		tier, err := prompt.ParseTier(s.DroppableAt)
		if err != nil {
			return prompt.Config{}, fmt.Errorf("section %q: %w", s.Name, err)
		}
		cfg.Sections = append(cfg.Sections, prompt.SectionSpec{
			Name:        s.Name,
			Budget:      s.Budget,
			DroppableAt: tier,
			Required:    s.Required,
		})
	}
	return cfg, nil
}

// EvictionKinds converts the configured eviction order. Empty means the
// packer default.
func (p PromptConfig) EvictionKinds() []prompt.Kind {
	kinds := make([]prompt.Kind, 0, len(p.EvictionOrder))
	for _, k := range p.EvictionOrder {
		kinds = append(kinds, prompt.Kind(k))
	}
	return kinds
}

// envVarRe matches ${VAR} and ${VAR:default} patterns.
var envVarRe = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// Load reads a JSON config file and substitutes environment variable
// references.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	resolved := envVarRe.ReplaceAllStringFunc(string(data), func(match string) string {
		parts := envVarRe.FindStringSubmatch(match)
		name := parts[1]
		defaultVal := parts[2]
		if v := os.Getenv(name); v != "" {
			return v
		}
		return defaultVal
	})

	var cfg Config
	if err := json.Unmarshal([]byte(resolved), &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}
