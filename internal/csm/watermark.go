package csm

import "errors"

// DefaultWatermarkKey identifies generated audio as synthetic. It matches
// the published key for this model family so third-party detectors can
// verify provenance.
var DefaultWatermarkKey = []int32{212, 211, 146, 56, 201}

// ErrNoWatermarker is returned when watermarking is requested but no
// watermarker loader was configured on the Generator.
var ErrNoWatermarker = errors.New("no watermarker configured")

// Watermarker embeds an imperceptible provenance signal into a waveform.
// Apply returns the watermarked audio and its sample rate, which may differ
// from the input rate.
type Watermarker interface {
	Apply(pcm []float32, sampleRate int, key []int32) ([]float32, int, error)
}

// WatermarkerLoader constructs a Watermarker. The Generator invokes it at
// most once, on first demand.
type WatermarkerLoader func() (Watermarker, error)
