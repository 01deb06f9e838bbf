package csm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime/debug"
	"sync"
	"time"

	"github.com/example/go-csm/internal/audio"
)

const (
	// contextWindow is the model's fixed total position budget. Prompt
	// frames plus all audio frames a generation may still emit must fit.
	contextWindow = 2048

	// FrameDurationMs is the audio duration covered by one codec frame.
	FrameDurationMs = 80

	// silenceThreshold is the per-value magnitude below which a sampled
	// frame counts as near-silent.
	silenceThreshold = 0.01

	// silenceStopCount is the number of consecutive near-silent frames
	// that terminates the loop early.
	silenceStopCount = 3
)

// ErrInputTooLong is returned when the assembled prompt does not leave room
// for the requested maximum audio length within the context window.
var ErrInputTooLong = errors.New("inputs too long")

// Hooks overridable in tests. resamplePCM converts watermarked audio back
// to the codec rate; reclaimMemory is the best-effort cleanup pass run
// after every finalize.
var (
	resamplePCM   = audio.Resample
	reclaimMemory = debug.FreeOSMemory
)

// GenerateOptions controls a single Generate call. Zero numeric values fall
// back to the defaults below.
type GenerateOptions struct {
	MaxAudioLengthMs float64
	Temperature      float64
	TopK             int
	ApplyWatermark   bool
}

// DefaultGenerateOptions returns the stock sampling configuration.
func DefaultGenerateOptions() GenerateOptions {
	return GenerateOptions{
		MaxAudioLengthMs: 90_000,
		Temperature:      0.9,
		TopK:             50,
		ApplyWatermark:   false,
	}
}

func (o GenerateOptions) withDefaults() GenerateOptions {
	def := DefaultGenerateOptions()
	if o.MaxAudioLengthMs <= 0 {
		o.MaxAudioLengthMs = def.MaxAudioLengthMs
	}

	if o.Temperature <= 0 {
		o.Temperature = def.Temperature
	}

	if o.TopK <= 0 {
		o.TopK = def.TopK
	}

	return o
}

// Generator drives the full synthesis pipeline: segment tokenization,
// autoregressive frame sampling, codec decode, and optional watermarking.
// All per-call state is created fresh inside Generate and discarded on
// return; the only cross-call state is the model's own cache, which
// Generate resets up front. A Generator is not safe for concurrent use.
type Generator struct {
	text  TextTokenizer
	codec AudioCodec
	model Model

	watermarkKey []int32
	loadWM       WatermarkerLoader
	wmOnce       sync.Once
	wm           Watermarker
	wmErr        error
}

// GeneratorOption configures optional Generator dependencies.
type GeneratorOption func(*Generator)

// WithWatermarker configures the lazily-constructed watermarker. The loader
// runs at most once, on the first Generate call that requests watermarking.
func WithWatermarker(load WatermarkerLoader) GeneratorOption {
	return func(g *Generator) { g.loadWM = load }
}

// WithWatermarkKey overrides DefaultWatermarkKey.
func WithWatermarkKey(key []int32) GeneratorOption {
	return func(g *Generator) { g.watermarkKey = key }
}

// NewGenerator wires the three required collaborators into a Generator.
func NewGenerator(text TextTokenizer, codec AudioCodec, model Model, opts ...GeneratorOption) (*Generator, error) {
	if text == nil {
		return nil, errors.New("text tokenizer is required")
	}

	if codec == nil {
		return nil, errors.New("audio codec is required")
	}

	if model == nil {
		return nil, errors.New("model is required")
	}

	g := &Generator{
		text:         text,
		codec:        codec,
		model:        model,
		watermarkKey: DefaultWatermarkKey,
	}

	for _, opt := range opts {
		opt(g)
	}

	return g, nil
}

// SampleRate reports the pipeline's canonical output sample rate.
func (g *Generator) SampleRate() int {
	return g.codec.SampleRate()
}

// tokenizeTextSegment encodes text with a bracketed speaker prefix into
// text-only rows.
func (g *Generator) tokenizeTextSegment(text string, speaker int) (*FrameBuffer, error) {
	ids, err := g.text.Encode(fmt.Sprintf("[%d]%s", speaker, text))
	if err != nil {
		return nil, fmt.Errorf("encode text: %w", err)
	}

	buf := NewFrameBuffer(len(ids))
	for _, id := range ids {
		buf.AppendTextToken(id)
	}

	return buf, nil
}

// tokenizeAudio runs the codec encoder and appends the trailing all-zero
// frame that marks end of audio for the model, producing audio-only rows.
func (g *Generator) tokenizeAudio(ctx context.Context, pcm []float32) (*FrameBuffer, error) {
	codes, err := g.codec.Encode(ctx, pcm)
	if err != nil {
		return nil, fmt.Errorf("encode audio: %w", err)
	}

	buf := NewFrameBuffer(len(codes) + 1)
	for i, frame := range codes {
		if err := buf.AppendAudioFrame(frame); err != nil {
			return nil, fmt.Errorf("codec frame %d: %w", i, err)
		}
	}

	if err := buf.AppendAudioFrame(make([]int64, NumCodebooks)); err != nil {
		return nil, err
	}

	return buf, nil
}

// tokenizeSegment lays out one context segment: the text rows first, then
// the audio rows for the same turn.
func (g *Generator) tokenizeSegment(ctx context.Context, seg Segment) (*FrameBuffer, error) {
	textBuf, err := g.tokenizeTextSegment(seg.Text, seg.Speaker)
	if err != nil {
		return nil, err
	}

	audioBuf, err := g.tokenizeAudio(ctx, seg.Audio)
	if err != nil {
		return nil, err
	}

	textBuf.Append(audioBuf)

	return textBuf, nil
}

// Generate synthesizes speech for text spoken by speaker, conditioned on
// the prior conversation history. It returns mono float32 PCM at the codec
// sample rate, bounded by opts.MaxAudioLengthMs and possibly shorter when a
// stop condition fires.
func (g *Generator) Generate(ctx context.Context, text string, speaker int, history []Segment, opts GenerateOptions) ([]float32, error) {
	opts = opts.withDefaults()

	// Stale cache state from a previous call must never leak into this one.
	g.model.ResetCaches()

	maxAudioFrames := int(opts.MaxAudioLengthMs / FrameDurationMs)

	parts := make([]*FrameBuffer, 0, len(history)+1)
	for i, seg := range history {
		segBuf, err := g.tokenizeSegment(ctx, seg)
		if err != nil {
			return nil, fmt.Errorf("tokenize context segment %d: %w", i, err)
		}

		parts = append(parts, segBuf)
	}

	textBuf, err := g.tokenizeTextSegment(text, speaker)
	if err != nil {
		return nil, fmt.Errorf("tokenize utterance: %w", err)
	}

	parts = append(parts, textBuf)

	totalRows := 0
	for _, p := range parts {
		totalRows += p.Len()
	}

	prompt := NewFrameBuffer(totalRows)
	for _, p := range parts {
		prompt.Append(p)
	}

	maxSeqLen := contextWindow - maxAudioFrames
	if prompt.Len() >= maxSeqLen {
		return nil, fmt.Errorf(
			"%w: prompt is %d frames, must be below %d (%d positions minus %d reserved audio frames)",
			ErrInputTooLong, prompt.Len(), maxSeqLen, contextWindow, maxAudioFrames,
		)
	}

	positions := make([]int64, prompt.Len())
	for i := range positions {
		positions[i] = int64(i)
	}

	slog.Debug(
		"generation start",
		"prompt_frames", prompt.Len(),
		"context_segments", len(history),
		"max_audio_frames", maxAudioFrames,
		"temperature", opts.Temperature,
		"topk", opts.TopK,
	)

	loopStart := time.Now()

	frames := make([][]int64, 0, maxAudioFrames)
	cur := prompt
	curPos := positions
	step := NewFrameBuffer(1)
	silence := 0

	for i := range maxAudioFrames {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		sample, err := g.model.SampleFrame(ctx, cur, curPos, opts.Temperature, opts.TopK)
		if err != nil {
			return nil, fmt.Errorf("sample frame %d: %w", i, err)
		}

		if len(sample) != NumCodebooks {
			return nil, fmt.Errorf("sample frame %d: got %d values, want %d", i, len(sample), NumCodebooks)
		}

		if allZero(sample) {
			slog.Debug("end-of-sequence frame", "step", i)
			break
		}

		if nearSilent(sample) {
			silence++
		} else {
			silence = 0
		}

		frame := quantizeFrame(sample)
		frames = append(frames, frame)

		// The frame that completes the silent run is kept; only then does
		// the loop stop.
		if silence >= silenceStopCount {
			slog.Debug("silence stop", "step", i)
			break
		}

		step.Reset()
		if err := step.AppendAudioFrame(frame); err != nil {
			return nil, err
		}

		cur = step
		curPos = []int64{curPos[len(curPos)-1] + 1}

		if i > 0 && i%50 == 0 {
			slog.Debug("generation progress", "step", i, "frames", len(frames))
		}
	}

	slog.Debug("sampling loop complete", "frames", len(frames), "ms", time.Since(loopStart).Milliseconds())

	if len(frames) == 0 {
		return g.finalize([]float32{}, opts.ApplyWatermark)
	}

	pcm, err := g.codec.Decode(ctx, frames)
	if err != nil {
		return nil, fmt.Errorf("decode audio: %w", err)
	}

	slog.Info("generation complete", "frames", len(frames), "samples", len(pcm), "watermark", opts.ApplyWatermark)

	return g.finalize(pcm, opts.ApplyWatermark)
}

// finalize applies the optional watermark, resamples back to the codec rate
// when the watermark stage changed it, and runs the best-effort memory
// reclamation pass.
func (g *Generator) finalize(pcm []float32, applyWatermark bool) ([]float32, error) {
	defer reclaimMemory()

	if !applyWatermark {
		return pcm, nil
	}

	wm, err := g.watermarker()
	if err != nil {
		return nil, fmt.Errorf("load watermarker: %w", err)
	}

	rate := g.codec.SampleRate()

	out, wmRate, err := wm.Apply(pcm, rate, g.watermarkKey)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	if wmRate != rate {
		out, err = resamplePCM(out, wmRate, rate)
		if err != nil {
			return nil, fmt.Errorf("resample watermarked audio: %w", err)
		}
	}

	return out, nil
}

// watermarker builds the configured watermarker at most once.
func (g *Generator) watermarker() (Watermarker, error) {
	g.wmOnce.Do(func() {
		if g.loadWM == nil {
			g.wmErr = ErrNoWatermarker
			return
		}

		g.wm, g.wmErr = g.loadWM()
	})

	return g.wm, g.wmErr
}

func allZero(sample []float32) bool {
	for _, v := range sample {
		if v != 0 {
			return false
		}
	}

	return true
}

func nearSilent(sample []float32) bool {
	for _, v := range sample {
		if math.Abs(float64(v)) >= silenceThreshold {
			return false
		}
	}

	return true
}

func quantizeFrame(sample []float32) []int64 {
	frame := make([]int64, len(sample))
	for i, v := range sample {
		frame[i] = int64(v)
	}

	return frame
}
