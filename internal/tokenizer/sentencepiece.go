package tokenizer

import (
	"errors"
	"fmt"
	"os"

	gosp "github.com/vikesh-raj/go-sentencepiece-encoder/sentencepiece"
)

// ErrEmptyPath is returned when NewSentencePieceTokenizer is called with an
// empty path.
var ErrEmptyPath = errors.New("tokenizer model path must not be empty")

// SentencePieceTokenizer encodes text with a pure-Go SentencePiece model
// and applies the configured special-token framing.
type SentencePieceTokenizer struct {
	proc    gosp.Sentencepiece
	framing Framing
}

// NewSentencePieceTokenizer loads a SentencePiece model from the given path.
func NewSentencePieceTokenizer(modelPath string, framing Framing) (*SentencePieceTokenizer, error) {
	if modelPath == "" {
		return nil, ErrEmptyPath
	}

	proc, err := gosp.NewSentencepieceFromFile(modelPath, false)
	if err != nil {
		return nil, fmt.Errorf("load sentencepiece model %q: %w", modelPath, err)
	}

	return &SentencePieceTokenizer{proc: proc, framing: framing}, nil
}

// NewSentencePieceTokenizerFromBytes loads a SentencePiece model from raw
// bytes. It writes the data to a temporary file and delegates to
// NewSentencePieceTokenizer, which is necessary because the upstream
// library only exposes a file-path API.
func NewSentencePieceTokenizerFromBytes(data []byte, framing Framing) (*SentencePieceTokenizer, error) {
	if len(data) == 0 {
		return nil, errors.New("tokenizer model data must not be empty")
	}

	f, err := os.CreateTemp("", "sp-*.model")
	if err != nil {
		return nil, fmt.Errorf("create temp sentencepiece file: %w", err)
	}

	defer func() { _ = os.Remove(f.Name()) }() // best-effort temp file cleanup

	_, err = f.Write(data)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("write tokenizer model bytes: %w", err)
	}

	path := f.Name()

	err = f.Close()
	if err != nil {
		return nil, fmt.Errorf("close tokenizer temp file: %w", err)
	}

	return NewSentencePieceTokenizer(path, framing)
}

// Encode tokenizes text and returns the token IDs wrapped in the framing
// markers.
func (t *SentencePieceTokenizer) Encode(text string) ([]int64, error) {
	if text == "" {
		return t.frame(nil), nil
	}

	ids := t.proc.TokenizeToIDs(text)

	inner := make([]int64, len(ids))
	for i, id := range ids {
		inner[i] = int64(id)
	}

	return t.frame(inner), nil
}

// frame wraps encoded IDs in the begin/end markers.
func (t *SentencePieceTokenizer) frame(ids []int64) []int64 {
	out := make([]int64, 0, len(ids)+2)
	out = append(out, t.framing.BOSID)
	out = append(out, ids...)
	out = append(out, t.framing.EOSID)

	return out
}
