package lore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Entry is a single lore book article: a faction, a place, a rumor.
type Entry struct {
	Name string   `json:"name"`
	Tags []string `json:"tags,omitempty"`
	Text string   `json:"text"`
}

// Book holds every lore entry loaded from disk.
type Book struct {
	entries []Entry
	byName  map[string]int
}

// LoadBook reads all *.json files under dir. Each file holds an array of
// entries. Later files win on duplicate names.
func LoadBook(dir string) (*Book, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("scan lore dir: %w", err)
	}

	b := &Book{byName: make(map[string]int)}
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read lore file %s: %w", path, err)
		}
		var entries []Entry
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil, fmt.Errorf("parse lore file %s: %w", path, err)
		}
		for _, e := range entries {
			if e.Name == "" || e.Text == "" {
				return nil, fmt.Errorf("lore file %s: entry missing name or text", path)
			}
			key := strings.ToLower(e.Name)
			if i, ok := b.byName[key]; ok {
				b.entries[i] = e
				continue
			}
			b.byName[key] = len(b.entries)
			b.entries = append(b.entries, e)
		}
	}
	return b, nil
}

// Lookup finds an entry by name, case-insensitive.
func (b *Book) Lookup(name string) (Entry, bool) {
	i, ok := b.byName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Entry{}, false
	}
	return b.entries[i], true
}

// All returns every entry in load order.
func (b *Book) All() []Entry {
	out := make([]Entry, len(b.entries))
	copy(out, b.entries)
	return out
}
