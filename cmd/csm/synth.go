package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/example/go-csm/internal/audio"
	"github.com/example/go-csm/internal/csm"
	"github.com/example/go-csm/internal/text"
	"github.com/spf13/cobra"
)

func newSynthCmd() *cobra.Command {
	var textFlag string
	var speaker int
	var out string
	var contextSpecs []string
	var maxAudioLengthMs float64
	var temperature float64
	var topk int
	var watermark bool

	cmd := &cobra.Command{
		Use:   "synth",
		Short: "Synthesize speech to WAV",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			inputText, err := readSynthText(textFlag, os.Stdin)
			if err != nil {
				return err
			}

			history, err := loadContextSegments(contextSpecs)
			if err != nil {
				return err
			}

			gen, closeGen, err := buildGenerator(cfg)
			if err != nil {
				return err
			}
			defer closeGen()

			opts := generateOptions(cfg)
			if cmd.Flags().Changed("max-audio-length-ms") {
				opts.MaxAudioLengthMs = maxAudioLengthMs
			}
			if cmd.Flags().Changed("temperature") {
				opts.Temperature = temperature
			}
			if cmd.Flags().Changed("topk") {
				opts.TopK = topk
			}
			if cmd.Flags().Changed("watermark") {
				opts.ApplyWatermark = watermark
			}

			pcm, err := gen.Generate(cmd.Context(), inputText, speaker, history, opts)
			if err != nil {
				return err
			}

			wav, err := audio.EncodeWAV(pcm)
			if err != nil {
				return err
			}

			return writeSynthOutput(out, wav, os.Stdout)
		},
	}

	cmd.Flags().StringVar(&textFlag, "text", "", "Text to synthesize (if empty, read from stdin)")
	cmd.Flags().IntVar(&speaker, "speaker", 0, "Speaker ID for the new utterance")
	cmd.Flags().StringVar(&out, "out", "out.wav", "Output WAV path ('-' for stdout)")
	cmd.Flags().StringArrayVar(&contextSpecs, "context", nil,
		"Context segment as SPEAKER:WAV_PATH:TRANSCRIPT (repeatable, in conversation order)")
	cmd.Flags().Float64Var(&maxAudioLengthMs, "max-audio-length-ms", 90_000, "Maximum generated audio length in milliseconds")
	cmd.Flags().Float64Var(&temperature, "temperature", 0.9, "Sampling temperature")
	cmd.Flags().IntVar(&topk, "topk", 50, "Top-k sampling cutoff")
	cmd.Flags().BoolVar(&watermark, "watermark", false, "Watermark the generated audio")

	return cmd
}

// readSynthText returns the normalized --text value or, when empty, all of
// stdin.
func readSynthText(flagText string, stdin io.Reader) (string, error) {
	raw := flagText
	if raw == "" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read text from stdin: %w", err)
		}

		raw = string(data)
	}

	normalized, err := text.Normalize(raw)
	if err != nil {
		return "", fmt.Errorf("no input text: pass --text or pipe text on stdin")
	}

	return normalized, nil
}

// parseContextSpec splits SPEAKER:WAV_PATH:TRANSCRIPT. The transcript may
// itself contain colons, so only the first two separators split.
func parseContextSpec(spec string) (speaker int, wavPath, transcript string, err error) {
	parts := strings.SplitN(spec, ":", 3)
	if len(parts) != 3 {
		return 0, "", "", fmt.Errorf("invalid context spec %q, want SPEAKER:WAV_PATH:TRANSCRIPT", spec)
	}

	speaker, err = strconv.Atoi(parts[0])
	if err != nil || speaker < 0 {
		return 0, "", "", fmt.Errorf("invalid speaker in context spec %q", spec)
	}

	if parts[1] == "" {
		return 0, "", "", fmt.Errorf("empty WAV path in context spec %q", spec)
	}

	return speaker, parts[1], parts[2], nil
}

func loadContextSegments(specs []string) ([]csm.Segment, error) {
	if len(specs) == 0 {
		return nil, nil
	}

	segments := make([]csm.Segment, 0, len(specs))
	for _, spec := range specs {
		speaker, wavPath, transcript, err := parseContextSpec(spec)
		if err != nil {
			return nil, err
		}

		data, err := os.ReadFile(wavPath)
		if err != nil {
			return nil, fmt.Errorf("read context audio %q: %w", wavPath, err)
		}

		pcm, err := audio.DecodeWAV(data)
		if err != nil {
			return nil, fmt.Errorf("decode context audio %q: %w", wavPath, err)
		}

		segments = append(segments, csm.Segment{
			Speaker: speaker,
			Text:    transcript,
			Audio:   pcm,
		})
	}

	return segments, nil
}

func writeSynthOutput(out string, wav []byte, stdout io.Writer) error {
	if out == "-" {
		_, err := stdout.Write(wav)
		return err
	}

	if err := os.WriteFile(out, wav, 0o644); err != nil {
		return fmt.Errorf("write output WAV: %w", err)
	}

	return nil
}
