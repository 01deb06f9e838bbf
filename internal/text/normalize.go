// Package text prepares raw utterance text for the tokenizer.
package text

import (
	"errors"
	"strings"
)

// ErrEmptyText is returned when the input text is empty or whitespace-only.
var ErrEmptyText = errors.New("text is empty")

// Normalize prepares raw input text for synthesis. It normalizes line
// endings to \n, collapses runs of whitespace into single spaces, trims the
// edges, and rejects empty or whitespace-only input. The tokenizer sees one
// clean single-line utterance regardless of how the text arrived.
func Normalize(s string) (string, error) {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	s = strings.Join(strings.Fields(s), " ")

	if s == "" {
		return "", ErrEmptyText
	}

	return s, nil
}
