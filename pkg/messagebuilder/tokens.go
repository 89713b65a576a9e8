package messagebuilder

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter wraps a cached tiktoken encoding, used for token-aware
// tool-result truncation. Grounded on pkg/utils.TokenCounter: same
// model-keyed encoding cache and cl100k_base fallback.
type TokenCounter struct {
	encoding *tiktoken.Tiktoken
}

var (
	encodingCache = make(map[string]*tiktoken.Tiktoken)
	cacheMu       sync.RWMutex
)

// NewTokenCounter returns a counter for model, falling back to
// cl100k_base when the model is unrecognised.
func NewTokenCounter(model string) (*TokenCounter, error) {
	cacheMu.RLock()
	cached, ok := encodingCache[model]
	cacheMu.RUnlock()
	if ok {
		return &TokenCounter{encoding: cached}, nil
	}

	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, err
		}
	}

	cacheMu.Lock()
	encodingCache[model] = enc
	cacheMu.Unlock()
	return &TokenCounter{encoding: enc}, nil
}

// Count returns the token count of text.
func (tc *TokenCounter) Count(text string) int {
	if tc == nil || tc.encoding == nil {
		return len(text) / 4 // rough fallback, never used once constructed via NewTokenCounter
	}
	return len(tc.encoding.Encode(text, nil, nil))
}
