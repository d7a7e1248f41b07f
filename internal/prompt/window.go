package prompt

import (
	"sync"

	"go.uber.org/zap"
)

// DefaultEvictionOrder lists block kinds from first-evicted to
// last-evicted. The exact ranking is configurable; this default treats
// past choices as the most recoverable and system interjections as the
// least.
var DefaultEvictionOrder = []Kind{KindChoice, KindIntel, KindNarrative, KindSystem}

// Window is the ordered, append-only sequence of recent transcript
// blocks. Append is durable immediately; trimming to a budget happens
// either as a pure computation (Fit) at pack time or as a real eviction
// (Drain) that hands overflow to the digest.
type Window struct {
	mu     sync.RWMutex
	blocks []Block
	rank   map[Kind]int
	order  []Kind
	logger *zap.Logger
}

// NewWindow creates a window with the given eviction order. A nil order
// uses DefaultEvictionOrder.
func NewWindow(order []Kind, logger *zap.Logger) *Window {
	if len(order) == 0 {
		order = DefaultEvictionOrder
	}
	rank := make(map[Kind]int, len(order))
	for i, k := range order {
		rank[k] = i
	}
	return &Window{rank: rank, order: order, logger: logger}
}

// Append adds a block. It always succeeds.
func (w *Window) Append(b Block) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.blocks = append(w.blocks, b)
}

// Blocks returns a copy of all blocks, oldest first.
func (w *Window) Blocks() []Block {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]Block, len(w.blocks))
	copy(out, w.blocks)
	return out
}

// Len returns the number of blocks currently held.
func (w *Window) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.blocks)
}

// TotalCost sums the size cost of all blocks.
func (w *Window) TotalCost() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	total := 0
	for _, b := range w.blocks {
		total += b.Cost
	}
	return total
}

// Fit selects the subset of blocks whose total cost fits within budget,
// preserving oldest-first order. It does not mutate the window.
func (w *Window) Fit(budget int) []Block {
	w.mu.RLock()
	defer w.mu.RUnlock()
	kept, _ := w.selectFit(budget)
	return kept
}

// Drain evicts blocks until the window fits within budget and returns
// the evicted blocks oldest-first, for digest absorption.
func (w *Window) Drain(budget int) []Block {
	w.mu.Lock()
	defer w.mu.Unlock()
	kept, evicted := w.selectFit(budget)
	w.blocks = kept
	return evicted
}

// Restore replaces the window contents, used when reloading a save.
func (w *Window) Restore(blocks []Block) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.blocks = append([]Block(nil), blocks...)
}

// selectFit runs the eviction procedure: repeatedly drop the oldest
// non-anchored block of the lowest-priority kind remaining, and only once
// no non-anchored blocks are left fall back to dropping the oldest
// anchored block. Callers hold the lock.
func (w *Window) selectFit(budget int) (kept, evicted []Block) {
	total := 0
	for _, b := range w.blocks {
		total += b.Cost
	}
	if total <= budget {
		kept = make([]Block, len(w.blocks))
		copy(kept, w.blocks)
		return kept, nil
	}

	alive := make([]bool, len(w.blocks))
	for i := range alive {
		alive[i] = true
	}
	remaining := len(w.blocks)

	for total > budget && remaining > 0 {
		victim := w.pickVictim(alive)
		if w.blocks[victim].Anchor {
			// Last-resort safety valve: anchors only fall when they are
			// literally all that is left.
			w.logger.Warn("evicting anchored block",
				zap.String("block", w.blocks[victim].ID),
				zap.String("kind", string(w.blocks[victim].Kind)))
		}
		alive[victim] = false
		total -= w.blocks[victim].Cost
		remaining--
	}

	// Both slices come out oldest-first regardless of drop sequence.
	for i, b := range w.blocks {
		if alive[i] {
			kept = append(kept, b)
		} else {
			evicted = append(evicted, b)
		}
	}
	return kept, evicted
}

// pickVictim finds the oldest non-anchored block of the lowest-priority
// kind still alive, or the oldest anchored block when none remain.
func (w *Window) pickVictim(alive []bool) int {
	victim := -1
	victimRank := len(w.order) + 1
	for i, b := range w.blocks {
		if !alive[i] || b.Anchor {
			continue
		}
		r, ok := w.rank[b.Kind]
		if !ok {
			r = -1 // unknown kinds go first
		}
		if r < victimRank {
			victim = i
			victimRank = r
		}
	}
	if victim >= 0 {
		return victim
	}
	for i := range w.blocks {
		if alive[i] {
			return i
		}
	}
	return -1
}
