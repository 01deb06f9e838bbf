package audio

import (
	"fmt"

	resampling "github.com/tphakala/go-audio-resampling"
)

// Resample converts mono float32 PCM from one sample rate to another. It
// uses a low-quality preset: the conversion sits on the synthesis hot path
// (after watermarking) and a short filter keeps added latency small.
// Same-rate or empty input is returned as-is.
func Resample(samples []float32, fromRate, toRate int) ([]float32, error) {
	if fromRate <= 0 || toRate <= 0 {
		return nil, fmt.Errorf("invalid sample rates %d -> %d", fromRate, toRate)
	}

	if fromRate == toRate || len(samples) == 0 {
		return samples, nil
	}

	rs, err := resampling.New(&resampling.Config{
		InputRate:  float64(fromRate),
		OutputRate: float64(toRate),
		Channels:   Channels,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityLow},
	})
	if err != nil {
		return nil, fmt.Errorf("create resampler: %w", err)
	}

	input := make([]float64, len(samples))
	for i, s := range samples {
		input[i] = float64(s)
	}

	output, err := rs.Process(input)
	if err != nil {
		return nil, fmt.Errorf("resample %d -> %d: %w", fromRate, toRate, err)
	}

	out := make([]float32, len(output))
	for i, s := range output {
		out[i] = float32(s)
	}

	return out, nil
}
