package rules

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// Set is one immutable snapshot of the static instruction text. The
// surrounding system takes a fresh snapshot at the start of every turn,
// so file edits apply without a restart.
type Set struct {
	Instructions string // how to run the session
	Core         string // mandatory mechanics, never cut
	Narrative    string // tone and style guidance, sheddable under strain
}

const (
	instructionsFile = "instructions.md"
	coreFile         = "core.md"
	narrativeFile    = "narrative.md"
)

// Loader reads rule files from a directory.
type Loader struct {
	dir    string
	logger *zap.Logger
}

// NewLoader creates a loader rooted at dir.
func NewLoader(dir string, logger *zap.Logger) *Loader {
	return &Loader{dir: dir, logger: logger}
}

// Load re-reads all rule files. core.md is mandatory; the others come
// back empty when absent.
func (l *Loader) Load() (*Set, error) {
	core, err := os.ReadFile(filepath.Join(l.dir, coreFile))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", coreFile, err)
	}

	set := &Set{Core: string(core)}
	set.Instructions = l.readOptional(instructionsFile)
	set.Narrative = l.readOptional(narrativeFile)
	return set, nil
}

func (l *Loader) readOptional(name string) string {
	data, err := os.ReadFile(filepath.Join(l.dir, name))
	if err != nil {
		if !os.IsNotExist(err) {
			l.logger.Warn("rule file unreadable", zap.String("file", name), zap.Error(err))
		}
		return ""
	}
	return string(data)
}
