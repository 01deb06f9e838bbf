package onnx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/example/go-csm/internal/csm"
)

// Tensor names shared with the graph export.
const (
	inputTokens     = "tokens"
	inputTokensMask = "tokens_mask"
	inputPositions  = "positions"
	inputAudio      = "audio"
	inputCodes      = "codes"

	outputLogits = "codebook_logits"
	outputCodes  = "codes"
	outputAudio  = "audio"

	pastPrefix    = "past_"
	presentPrefix = "present_"
)

// Config holds everything the engine needs to load the exported graphs.
type Config struct {
	ManifestPath string
	LibraryPath  string
	APIVersion   uint32
	SampleRate   int
	Seed         int64
}

// Engine executes the exported transformer and codec graphs through ONNX
// Runtime. It implements csm.Model and csm.AudioCodec.
//
// The transformer's incremental-decode cache lives host-side: past_* graph
// inputs are fed from the previous step's present_* outputs, and
// ResetCaches drops them so the next call starts clean. The cache is sized
// for a single sequence, so an Engine serves one generation at a time.
type Engine struct {
	runners    map[string]*Runner
	sampleRate int

	rngMu sync.Mutex
	rng   *rand.Rand

	past map[string]*Tensor
}

var (
	_ csm.Model      = (*Engine)(nil)
	_ csm.AudioCodec = (*Engine)(nil)
)

// NewEngine loads the graph manifest and creates one ORT session per
// required graph.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 24000
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	sm, err := NewSessionManager(cfg.ManifestPath)
	if err != nil {
		return nil, err
	}

	runnerCfg := RunnerConfig{LibraryPath: cfg.LibraryPath, APIVersion: cfg.APIVersion}

	e := &Engine{
		runners:    make(map[string]*Runner, 3),
		sampleRate: cfg.SampleRate,
		rng:        rand.New(rand.NewSource(seed)),
		past:       make(map[string]*Tensor),
	}

	for _, name := range []string{GraphBackboneStep, GraphAudioEncoder, GraphAudioDecoder} {
		meta, err := sm.Get(name)
		if err != nil {
			e.Close()
			return nil, err
		}

		runner, err := NewRunner(meta, runnerCfg)
		if err != nil {
			e.Close()
			return nil, err
		}

		e.runners[name] = runner
	}

	return e, nil
}

// Close releases all ORT sessions.
func (e *Engine) Close() {
	for _, r := range e.runners {
		r.Close()
	}

	e.runners = nil
	e.past = nil
}

// SampleRate reports the codec's canonical PCM sample rate.
func (e *Engine) SampleRate() int {
	return e.sampleRate
}

// ResetCaches drops the host-side incremental-decode cache.
func (e *Engine) ResetCaches() {
	e.past = make(map[string]*Tensor)
}

// SampleFrame runs one transformer step over the given token frames and
// samples one value per codebook from the returned logits.
func (e *Engine) SampleFrame(ctx context.Context, frames *csm.FrameBuffer, positions []int64, temperature float64, topK int) ([]float32, error) {
	runner, ok := e.runners[GraphBackboneStep]
	if !ok {
		return nil, errors.New("engine is closed")
	}

	rows := frames.Len()
	if rows == 0 {
		return nil, errors.New("sample frame: empty token frames")
	}

	if len(positions) != rows {
		return nil, fmt.Errorf("sample frame: %d positions for %d rows", len(positions), rows)
	}

	width := len(frames.Tokens()) / rows

	tokens, err := NewTensor(frames.Tokens(), []int64{1, int64(rows), int64(width)})
	if err != nil {
		return nil, fmt.Errorf("tokens tensor: %w", err)
	}

	maskData := make([]int64, len(frames.Mask()))
	for i, m := range frames.Mask() {
		if m {
			maskData[i] = 1
		}
	}

	mask, err := NewTensor(maskData, []int64{1, int64(rows), int64(width)})
	if err != nil {
		return nil, fmt.Errorf("mask tensor: %w", err)
	}

	pos, err := NewTensor(positions, []int64{1, int64(rows)})
	if err != nil {
		return nil, fmt.Errorf("positions tensor: %w", err)
	}

	inputs := map[string]*Tensor{
		inputTokens:     tokens,
		inputTokensMask: mask,
		inputPositions:  pos,
	}

	if err := e.attachCache(runner, inputs); err != nil {
		return nil, err
	}

	outputs, err := runner.Run(ctx, inputs)
	if err != nil {
		return nil, err
	}

	e.storeCache(outputs)

	logits, ok := outputs[outputLogits]
	if !ok {
		return nil, fmt.Errorf("graph %q produced no %q output", GraphBackboneStep, outputLogits)
	}

	return e.sampleCodebooks(logits, temperature, topK)
}

// attachCache feeds every past_* graph input, from the stored cache when
// present and from a manifest-shaped zero tensor on the first step.
func (e *Engine) attachCache(runner *Runner, inputs map[string]*Tensor) error {
	for _, in := range runner.Inputs() {
		if !strings.HasPrefix(in.Name, pastPrefix) {
			continue
		}

		if cached, ok := e.past[in.Name]; ok {
			inputs[in.Name] = cached
			continue
		}

		zero, err := NewZeroTensor(in.DType, in.Shape)
		if err != nil {
			return fmt.Errorf("init cache %q: %w", in.Name, err)
		}

		inputs[in.Name] = zero
	}

	return nil
}

// storeCache captures present_* outputs as next-step past_* inputs.
func (e *Engine) storeCache(outputs map[string]*Tensor) {
	for name, t := range outputs {
		if suffix, ok := strings.CutPrefix(name, presentPrefix); ok {
			e.past[pastPrefix+suffix] = t
		}
	}
}

// sampleCodebooks draws one token per codebook from logits shaped
// [1, NumCodebooks, vocab].
func (e *Engine) sampleCodebooks(logits *Tensor, temperature float64, topK int) ([]float32, error) {
	shape := logits.Shape()
	if len(shape) != 3 || shape[0] != 1 || shape[1] != csm.NumCodebooks {
		return nil, fmt.Errorf("unexpected logits shape %v, want [1,%d,V]", shape, csm.NumCodebooks)
	}

	vocab := int(shape[2])
	if vocab == 0 {
		return nil, errors.New("logits have empty vocab dim")
	}

	data := logits.Float32s()
	if data == nil {
		return nil, errors.New("logits are not float32")
	}

	frame := make([]float32, csm.NumCodebooks)

	e.rngMu.Lock()
	defer e.rngMu.Unlock()

	for cb := range csm.NumCodebooks {
		row := data[cb*vocab : (cb+1)*vocab]
		frame[cb] = float32(sampleTopK(row, topK, temperature, e.rng))
	}

	return frame, nil
}

// Encode tokenizes mono PCM into frame-major codec codes.
func (e *Engine) Encode(ctx context.Context, pcm []float32) ([][]int64, error) {
	runner, ok := e.runners[GraphAudioEncoder]
	if !ok {
		return nil, errors.New("engine is closed")
	}

	if len(pcm) == 0 {
		return nil, errors.New("encode: empty audio")
	}

	in, err := NewTensor(pcm, []int64{1, 1, int64(len(pcm))})
	if err != nil {
		return nil, fmt.Errorf("audio tensor: %w", err)
	}

	outputs, err := runner.Run(ctx, map[string]*Tensor{inputAudio: in})
	if err != nil {
		return nil, err
	}

	codes, ok := outputs[outputCodes]
	if !ok {
		return nil, fmt.Errorf("graph %q produced no %q output", GraphAudioEncoder, outputCodes)
	}

	shape := codes.Shape()
	if len(shape) != 3 || shape[0] != 1 || shape[1] != csm.NumCodebooks {
		return nil, fmt.Errorf("unexpected codes shape %v, want [1,%d,T]", shape, csm.NumCodebooks)
	}

	// Codebook-major [32, T] to frame-major [T][32].
	steps := int(shape[2])
	data := codes.Int64s()
	frames := make([][]int64, steps)

	for t := range steps {
		frame := make([]int64, csm.NumCodebooks)
		for cb := range csm.NumCodebooks {
			frame[cb] = data[cb*steps+t]
		}

		frames[t] = frame
	}

	slog.Debug("audio encoded", "samples", len(pcm), "frames", steps)

	return frames, nil
}

// Decode converts frame-major codec codes back into mono PCM.
func (e *Engine) Decode(ctx context.Context, frames [][]int64) ([]float32, error) {
	runner, ok := e.runners[GraphAudioDecoder]
	if !ok {
		return nil, errors.New("engine is closed")
	}

	if len(frames) == 0 {
		return nil, errors.New("decode: no frames")
	}

	steps := len(frames)
	data := make([]int64, csm.NumCodebooks*steps)

	for t, frame := range frames {
		if len(frame) != csm.NumCodebooks {
			return nil, fmt.Errorf("decode: frame %d has %d codes, want %d", t, len(frame), csm.NumCodebooks)
		}

		for cb, code := range frame {
			data[cb*steps+t] = code
		}
	}

	in, err := NewTensor(data, []int64{1, int64(csm.NumCodebooks), int64(steps)})
	if err != nil {
		return nil, fmt.Errorf("codes tensor: %w", err)
	}

	outputs, err := runner.Run(ctx, map[string]*Tensor{inputCodes: in})
	if err != nil {
		return nil, err
	}

	audio, ok := outputs[outputAudio]
	if !ok {
		return nil, fmt.Errorf("graph %q produced no %q output", GraphAudioDecoder, outputAudio)
	}

	shape := audio.Shape()
	if len(shape) != 3 || shape[0] != 1 || shape[1] != 1 {
		return nil, fmt.Errorf("unexpected audio shape %v, want [1,1,N]", shape)
	}

	return append([]float32(nil), audio.Float32s()...), nil
}
