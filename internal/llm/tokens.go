package llm

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenEstimator counts tokens when a provider reports no usage.
type TokenEstimator interface {
	Count(model, text string) int
}

// CharEstimator assumes about four characters per token.
type CharEstimator struct{}

// Count implements TokenEstimator.
func (CharEstimator) Count(model, text string) int {
	_ = model
	if text == "" {
		return 0
	}
	n := len([]rune(text)) / 4
	if n == 0 {
		n = 1
	}
	return n
}

const fallbackEncoding = "cl100k_base"

// TiktokenEstimator uses the model's BPE encoding, falling back to cl100k_base and then to CharEstimator.
type TiktokenEstimator struct {
	mu    sync.Mutex
	cache map[string]*tiktoken.Tiktoken
}

// NewTiktokenEstimator constructs a TiktokenEstimator.
func NewTiktokenEstimator() *TiktokenEstimator {
	return &TiktokenEstimator{cache: make(map[string]*tiktoken.Tiktoken)}
}

// Count implements TokenEstimator.
func (e *TiktokenEstimator) Count(model, text string) int {
	if text == "" {
		return 0
	}
	enc := e.encoding(model)
	if enc == nil {
		return CharEstimator{}.Count(model, text)
	}
	return len(enc.Encode(text, nil, nil))
}

func (e *TiktokenEstimator) encoding(model string) *tiktoken.Tiktoken {
	e.mu.Lock()
	defer e.mu.Unlock()
	if enc, ok := e.cache[model]; ok {
		return enc
	}
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding(fallbackEncoding)
		if err != nil {
			enc = nil
		}
	}
	e.cache[model] = enc
	return enc
}
