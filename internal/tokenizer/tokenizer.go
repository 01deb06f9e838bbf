// Package tokenizer provides the text tokenization side of the synthesis
// pipeline: SentencePiece encoding with begin/end special-token framing, so
// every encoded utterance arrives at the model wrapped the same way the
// model was trained.
package tokenizer

// Framing holds the special-token IDs wrapped around every encoded
// utterance. It is configured once at construction.
type Framing struct {
	BOSID int64
	EOSID int64
}
