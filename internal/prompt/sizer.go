package prompt

import (
	"fmt"
	"unicode/utf8"

	tiktoken "github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
)

// Sizer computes the token cost of text. Implementations must be
// deterministic for identical input.
type Sizer interface {
	// Cost returns a non-negative token count for the text.
	Cost(text string) int
	// Truncate cuts text to at most budget tokens, never mid-token.
	Truncate(text string, budget int) string
	// Exact reports whether counts are real token counts rather than
	// an estimate.
	Exact() bool
}

// TokenSizer counts tokens with the cl100k_base encoding, a close
// approximation across current model families.
type TokenSizer struct {
	enc *tiktoken.Tiktoken
}

// NewTokenSizer loads the cl100k_base encoding.
func NewTokenSizer() (*TokenSizer, error) {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("load encoding: %w", err)
	}
	return &TokenSizer{enc: enc}, nil
}

func (s *TokenSizer) Cost(text string) int {
	return len(s.enc.Encode(text, nil, nil))
}

func (s *TokenSizer) Truncate(text string, budget int) string {
	if budget <= 0 {
		return ""
	}
	tokens := s.enc.Encode(text, nil, nil)
	if len(tokens) <= budget {
		return text
	}
	return s.enc.Decode(tokens[:budget])
}

func (s *TokenSizer) Exact() bool { return true }

// heuristicBytesPerToken is deliberately below the typical ~4 bytes per
// token so the estimate overcounts; an undercount could silently blow the
// hard budget.
const heuristicBytesPerToken = 3

// HeuristicSizer estimates one token per three bytes, rounded up.
type HeuristicSizer struct{}

func (HeuristicSizer) Cost(text string) int {
	n := len(text)
	if n == 0 {
		return 0
	}
	return (n + heuristicBytesPerToken - 1) / heuristicBytesPerToken
}

func (HeuristicSizer) Truncate(text string, budget int) string {
	if budget <= 0 {
		return ""
	}
	max := budget * heuristicBytesPerToken
	if len(text) <= max {
		return text
	}
	// Back off to a rune boundary.
	for max > 0 && !utf8.RuneStart(text[max]) {
		max--
	}
	return text[:max]
}

func (HeuristicSizer) Exact() bool { return false }

// NewSizer returns an exact token sizer, falling back to the heuristic
// estimate when the encoding cannot be loaded.
func NewSizer(logger *zap.Logger) Sizer {
	s, err := NewTokenSizer()
	if err != nil {
		logger.Warn("exact token counting unavailable, using byte heuristic", zap.Error(err))
		return HeuristicSizer{}
	}
	return s
}
