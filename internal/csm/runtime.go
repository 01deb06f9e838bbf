package csm

import "context"

// TextTokenizer encodes text into token IDs. Implementations apply their
// own special-token framing (begin/end markers), configured once at
// construction.
type TextTokenizer interface {
	Encode(text string) ([]int64, error)
}

// AudioCodec converts between waveforms and discrete codec tokens. The
// codec has a fixed codebook count (NumCodebooks) and a fixed frame
// duration (FrameDurationMs).
type AudioCodec interface {
	// Encode tokenizes mono PCM at the codec sample rate into frame-major
	// codes: one []int64 of NumCodebooks values per 80 ms frame.
	Encode(ctx context.Context, pcm []float32) ([][]int64, error)

	// Decode converts accumulated codec frames back into mono PCM.
	Decode(ctx context.Context, frames [][]int64) ([]float32, error)

	// SampleRate reports the codec's canonical PCM sample rate.
	SampleRate() int
}

// Model is the generative transformer behind the sampling loop. Its
// incremental-decode cache is sized for one sequence at a time; callers
// reset it between independent generation requests.
type Model interface {
	// ResetCaches clears the incremental-decode cache.
	ResetCaches()

	// SampleFrame samples one codec frame conditioned on the given token
	// frames, validity mask, and positions. The first call of a generation
	// sees the full prompt; subsequent calls see a single frame and a
	// single advanced position. The returned slice holds NumCodebooks
	// sampled values.
	SampleFrame(ctx context.Context, frames *FrameBuffer, positions []int64, temperature float64, topK int) ([]float32, error)
}
