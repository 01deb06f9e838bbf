// Package csm orchestrates inference for a conversational speech model:
// it assembles interleaved text/audio token frames from conversation
// segments, drives the autoregressive frame sampling loop, and decodes the
// sampled codec frames back into a waveform.
//
// The numerically heavy components (transformer, audio codec, text
// tokenizer, watermarker) are opaque collaborators behind narrow
// interfaces; this package only sequences them.
package csm

// Segment is one turn of conversation context: who spoke, the transcript,
// and the reference audio for that turn. Audio is mono float32 PCM at the
// codec sample rate. Segments are read-only once constructed.
type Segment struct {
	Speaker int
	Text    string
	Audio   []float32
}
