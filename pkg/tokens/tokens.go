// Package tokens estimates token counts for prompt budgeting.
package tokens

import (
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

const encoding = "cl100k_base"

var (
	tk     *tiktoken.Tiktoken
	tkOnce sync.Once
)

// Counter counts tokens in a piece of text. Implementations must be safe for
// concurrent use.
type Counter interface {
	Count(text string) int
}

// BPECounter counts with the cl100k_base BPE encoding when available and
// falls back to a rune-based estimate when the encoding data cannot be loaded
// (e.g. offline environments). The fallback overestimates slightly, which is
// the safe direction for a budget.
type BPECounter struct{}

func NewCounter() *BPECounter {
	return &BPECounter{}
}

func (c *BPECounter) Count(text string) int {
	if text == "" {
		return 0
	}
	if enc := getEncoder(); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return estimate(text)
}

func getEncoder() *tiktoken.Tiktoken {
	tkOnce.Do(func() {
		enc, err := tiktoken.GetEncoding(encoding)
		if err != nil {
			// keep tk nil; Count falls back to the estimate
			return
		}
		tk = enc
	})
	return tk
}

// EstimateCounter is a deterministic, dependency-free counter used in tests
// and as the BPE fallback: roughly four runes per token.
type EstimateCounter struct{}

func (EstimateCounter) Count(text string) int {
	return estimate(text)
}

func estimate(text string) int {
	if text == "" {
		return 0
	}
	return utf8.RuneCountInString(text)/4 + 1
}
