// Package text maps raw text to the fixed integer vocabulary the model
// embeds.
package text

import (
	"errors"
	"fmt"
)

// Tokenizer is a deterministic byte-level tokenizer: each UTF-8 byte maps to
// its own id. With the default vocabulary size of 256 every input is
// representable; smaller vocabularies reject out-of-range bytes.
type Tokenizer struct {
	vocabSize int64
}

func NewTokenizer(vocabSize int64) (*Tokenizer, error) {
	if vocabSize < 1 || vocabSize > 256 {
		return nil, fmt.Errorf("text: vocabulary size must be in [1, 256], got %d", vocabSize)
	}

	return &Tokenizer{vocabSize: vocabSize}, nil
}

func (t *Tokenizer) VocabSize() int64 {
	return t.vocabSize
}

// Encode converts text to token ids, one per byte.
func (t *Tokenizer) Encode(s string) ([]int64, error) {
	if len(s) == 0 {
		return nil, errors.New("text: cannot encode empty string")
	}

	out := make([]int64, len(s))

	for i := 0; i < len(s); i++ {
		id := int64(s[i])
		if id >= t.vocabSize {
			return nil, fmt.Errorf("text: byte 0x%02x at offset %d outside vocabulary of size %d", s[i], i, t.vocabSize)
		}

		out[i] = id
	}

	return out, nil
}

// Decode reverses Encode. Useful for debugging logged token sequences.
func (t *Tokenizer) Decode(ids []int64) (string, error) {
	out := make([]byte, len(ids))

	for i, id := range ids {
		if id < 0 || id >= t.vocabSize {
			return "", fmt.Errorf("text: token %d at index %d outside vocabulary of size %d", id, i, t.vocabSize)
		}

		out[i] = byte(id)
	}

	return string(out), nil
}
