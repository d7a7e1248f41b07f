package prompt

import (
	"time"

	"github.com/google/uuid"
)

// Kind categorizes a transcript block for eviction priority.
type Kind string

const (
	KindSystem    Kind = "system"    // GM/system interjections
	KindNarrative Kind = "narrative" // narration and player dialogue
	KindIntel     Kind = "intel"     // discovered facts, quest intel
	KindChoice    Kind = "choice"    // player decisions
)

// Block is one immutable unit of session history. Blocks are created when
// a turn records narration or player input and are never mutated afterward;
// they leave the window only through eviction or digest absorption.
type Block struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Kind      Kind      `json:"kind"`
	Content   string    `json:"content"`
	Cost      int       `json:"cost"`
	Anchor    bool      `json:"anchor"`
}

// NewBlock creates a block with its size cost computed by the given sizer.
func NewBlock(kind Kind, content string, anchor bool, sizer Sizer) Block {
	return Block{
		ID:        uuid.New().String(),
		CreatedAt: time.Now().UTC(),
		Kind:      kind,
		Content:   content,
		Cost:      sizer.Cost(content),
		Anchor:    anchor,
	}
}
