package prompt

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter counts tokens with the cl100k_base encoding. When the
// encoding cannot be loaded (tiktoken fetches its dictionary on first use),
// the counter falls back to the four-characters-per-token estimate.
type TokenCounter struct {
	encoding *tiktoken.Tiktoken
}

var (
	sharedEncoding     *tiktoken.Tiktoken
	sharedEncodingOnce sync.Once
)

// NewTokenCounter returns the shared counter.
func NewTokenCounter() *TokenCounter {
	sharedEncodingOnce.Do(func() {
		encoding, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			sharedEncoding = encoding
		}
	})
	return &TokenCounter{encoding: sharedEncoding}
}

// Count returns the token count for text.
func (tc *TokenCounter) Count(text string) int {
	if tc == nil || tc.encoding == nil {
		return len(text) / 4
	}
	return len(tc.encoding.Encode(text, nil, nil))
}
