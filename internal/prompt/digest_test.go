package prompt

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"
)

// fakeSummarizer returns canned text or a canned error.
type fakeSummarizer struct {
	text  string
	err   error
	calls int
}

func (f *fakeSummarizer) Summarize(_ context.Context, blocks []Block) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	if f.text != "" {
		return f.text, nil
	}
	return fmt.Sprintf("summary of %d blocks", len(blocks)), nil
}

func TestCompressFoldsSummary(t *testing.T) {
	d := NewDigest(unitSizer{}, time.Second, zap.NewNop())
	s := &fakeSummarizer{text: "the courier reached the ridge"}

	overflow := []Block{testBlock(KindNarrative, 50, false)}
	if err := d.Compress(context.Background(), overflow, s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Text() != "the courier reached the ridge" {
		t.Errorf("got %q", d.Text())
	}
	if d.Cost() == 0 {
		t.Error("cost not updated")
	}
	if d.LastCompressedAt().IsZero() {
		t.Error("timestamp not updated")
	}
}

func TestCompressAppendsNeverShrinks(t *testing.T) {
	d := NewDigest(unitSizer{}, time.Second, zap.NewNop())
	overflow := []Block{testBlock(KindNarrative, 50, false)}

	if err := d.Compress(context.Background(), overflow, &fakeSummarizer{text: "first"}); err != nil {
		t.Fatal(err)
	}
	before := d.Cost()
	if err := d.Compress(context.Background(), overflow, &fakeSummarizer{text: "second"}); err != nil {
		t.Fatal(err)
	}
	if d.Cost() < before {
		t.Errorf("cost shrank from %d to %d", before, d.Cost())
	}
	if d.Text() != "first\n\nsecond" {
		t.Errorf("got %q", d.Text())
	}
}

func TestCompressNoOverflowIsNoOp(t *testing.T) {
	d := NewDigest(unitSizer{}, time.Second, zap.NewNop())
	s := &fakeSummarizer{text: "initial"}
	if err := d.Compress(context.Background(), []Block{testBlock(KindIntel, 10, false)}, s); err != nil {
		t.Fatal(err)
	}
	text, cost := d.Text(), d.Cost()

	if err := d.Compress(context.Background(), nil, s); err != nil {
		t.Fatalf("no-op compress returned error: %v", err)
	}
	if d.Text() != text || d.Cost() != cost {
		t.Errorf("no-op compress changed digest: %q (%d)", d.Text(), d.Cost())
	}
	if s.calls != 1 {
		t.Errorf("summarizer called %d times, want 1", s.calls)
	}
}

func TestCompressFailureKeepsPriorDigest(t *testing.T) {
	d := NewDigest(unitSizer{}, time.Second, zap.NewNop())
	if err := d.Compress(context.Background(), []Block{testBlock(KindIntel, 10, false)}, &fakeSummarizer{text: "stable"}); err != nil {
		t.Fatal(err)
	}

	err := d.Compress(context.Background(), []Block{testBlock(KindIntel, 10, false)},
		&fakeSummarizer{err: errors.New("backend down")})
	if !errors.Is(err, ErrCompressionDegraded) {
		t.Fatalf("got %v, want ErrCompressionDegraded", err)
	}
	if d.Text() != "stable" {
		t.Errorf("prior digest lost: %q", d.Text())
	}
	if !d.Degraded() {
		t.Error("degraded flag not set")
	}

	// A later success clears the flag.
	if err := d.Compress(context.Background(), []Block{testBlock(KindIntel, 10, false)}, &fakeSummarizer{text: "more"}); err != nil {
		t.Fatal(err)
	}
	if d.Degraded() {
		t.Error("degraded flag not cleared after recovery")
	}
}

func TestCompressTimeoutKeepsPriorDigest(t *testing.T) {
	d := NewDigest(unitSizer{}, 10*time.Millisecond, zap.NewNop())
	slow := summarizeFunc(func(ctx context.Context, _ []Block) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})

	err := d.Compress(context.Background(), []Block{testBlock(KindIntel, 10, false)}, slow)
	if !errors.Is(err, ErrCompressionDegraded) {
		t.Fatalf("got %v, want ErrCompressionDegraded", err)
	}
	if d.Text() != "" {
		t.Errorf("digest changed on timeout: %q", d.Text())
	}
}

type summarizeFunc func(ctx context.Context, blocks []Block) (string, error)

func (f summarizeFunc) Summarize(ctx context.Context, blocks []Block) (string, error) {
	return f(ctx, blocks)
}

func TestClearResetsDigest(t *testing.T) {
	d := NewDigest(unitSizer{}, time.Second, zap.NewNop())
	if err := d.Compress(context.Background(), []Block{testBlock(KindIntel, 10, false)}, &fakeSummarizer{text: "memories"}); err != nil {
		t.Fatal(err)
	}

	d.Clear()
	if d.Text() != "" || d.Cost() != 0 {
		t.Errorf("clear left %q (%d)", d.Text(), d.Cost())
	}
}

func TestRestoreRecomputesCost(t *testing.T) {
	d := NewDigest(unitSizer{}, time.Second, zap.NewNop())
	at := time.Date(2287, 10, 23, 9, 47, 0, 0, time.UTC)
	d.Restore("saved digest", at)

	if d.Cost() != len("saved digest") {
		t.Errorf("got cost %d, want %d", d.Cost(), len("saved digest"))
	}
	if !d.LastCompressedAt().Equal(at) {
		t.Errorf("got %v, want %v", d.LastCompressedAt(), at)
	}
}
