package prompt

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Summarizer folds overflow blocks into durable summary text. The real
// implementation delegates to an LLM provider; tests inject a
// deterministic fake.
type Summarizer interface {
	Summarize(ctx context.Context, blocks []Block) (string, error)
}

// Digest is the compact durable memory of history that has left the
// window. It grows only through Compress and is emptied only by Clear;
// a failed compression leaves the prior digest intact.
type Digest struct {
	mu             sync.RWMutex
	text           string
	cost           int
	lastCompressed time.Time
	degraded       bool

	sizer   Sizer
	timeout time.Duration
	logger  *zap.Logger
}

// NewDigest creates an empty digest. timeout bounds each summarizer call.
func NewDigest(sizer Sizer, timeout time.Duration, logger *zap.Logger) *Digest {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Digest{sizer: sizer, timeout: timeout, logger: logger}
}

// Text returns the current digest text.
func (d *Digest) Text() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.text
}

// Cost returns the current size cost of the digest text.
func (d *Digest) Cost() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cost
}

// LastCompressedAt returns when the digest last absorbed overflow.
func (d *Digest) LastCompressedAt() time.Time {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastCompressed
}

// Degraded reports whether the most recent compression attempt failed,
// leaving the digest stale but valid.
func (d *Digest) Degraded() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.degraded
}

// Compress folds the given overflow blocks into the digest via the
// summarizer. With no overflow it is a no-op, so repeated calls between
// evictions cost nothing. On summarizer failure or timeout the prior
// digest is kept unchanged and ErrCompressionDegraded is returned; the
// turn proceeds with the stale digest.
func (d *Digest) Compress(ctx context.Context, overflow []Block, s Summarizer) error {
	if len(overflow) == 0 {
		return nil
	}

	cctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	summary, err := s.Summarize(cctx, overflow)
	if err != nil {
		d.mu.Lock()
		d.degraded = true
		d.mu.Unlock()
		d.logger.Warn("digest compression failed, keeping prior digest",
			zap.Int("overflow_blocks", len(overflow)), zap.Error(err))
		return fmt.Errorf("%w: %v", ErrCompressionDegraded, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	summary = strings.TrimSpace(summary)
	if summary != "" {
		if d.text == "" {
			d.text = summary
		} else {
			d.text = d.text + "\n\n" + summary
		}
		d.cost = d.sizer.Cost(d.text)
	}
	d.lastCompressed = time.Now().UTC()
	d.degraded = false
	d.logger.Debug("digest compressed",
		zap.Int("overflow_blocks", len(overflow)), zap.Int("cost", d.cost))
	return nil
}

// Clear discards the digest entirely. The only way the digest shrinks.
func (d *Digest) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.text = ""
	d.cost = 0
	d.lastCompressed = time.Time{}
	d.degraded = false
}

// Restore loads persisted digest state from a save.
func (d *Digest) Restore(text string, compressedAt time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.text = text
	d.cost = d.sizer.Cost(text)
	d.lastCompressed = compressedAt
	d.degraded = false
}
