package main

import (
	"fmt"

	"github.com/example/go-csm/internal/config"
	"github.com/example/go-csm/internal/csm"
	"github.com/example/go-csm/internal/onnx"
	"github.com/example/go-csm/internal/tokenizer"
)

// buildGenerator assembles the full pipeline from configuration: the ONNX
// engine (transformer + codec), the SentencePiece text tokenizer, and the
// generator wiring them together. The returned close func releases the
// engine's ORT sessions.
func buildGenerator(cfg config.Config) (*csm.Generator, func(), error) {
	tok, err := tokenizer.NewSentencePieceTokenizer(cfg.Paths.TokenizerModel, tokenizer.Framing{
		BOSID: cfg.Generate.BOSTokenID,
		EOSID: cfg.Generate.EOSTokenID,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("load tokenizer: %w", err)
	}

	engine, err := onnx.NewEngine(onnx.Config{
		ManifestPath: cfg.Paths.GraphManifest,
		LibraryPath:  cfg.Runtime.ORTLibraryPath,
		APIVersion:   cfg.Runtime.ORTAPIVersion,
		SampleRate:   cfg.Runtime.SampleRate,
		Seed:         cfg.Runtime.Seed,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("load engine: %w", err)
	}

	gen, err := csm.NewGenerator(tok, engine, engine)
	if err != nil {
		engine.Close()
		return nil, nil, err
	}

	return gen, engine.Close, nil
}

// generateOptions maps the config defaults onto per-call options.
func generateOptions(cfg config.Config) csm.GenerateOptions {
	return csm.GenerateOptions{
		MaxAudioLengthMs: cfg.Generate.MaxAudioLengthMs,
		Temperature:      cfg.Generate.Temperature,
		TopK:             cfg.Generate.TopK,
		ApplyWatermark:   cfg.Generate.Watermark,
	}
}
