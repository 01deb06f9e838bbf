// Package doctor provides environment preflight checks for the synthesis
// pipeline: the ONNX Runtime library, the exported graph bundle, and the
// tokenizer model.
package doctor

import (
	"fmt"
	"io"
	"os"

	"github.com/example/go-csm/internal/onnx"
)

// PassMark and FailMark are the prefix symbols printed for each check result.
const (
	PassMark = "✓"
	FailMark = "✗"
)

// ortCandidates are common install locations probed when no explicit ONNX
// Runtime library path is configured.
var ortCandidates = []string{
	"/usr/lib/libonnxruntime.so",
	"/usr/local/lib/libonnxruntime.so",
	"/usr/lib/x86_64-linux-gnu/libonnxruntime.so",
}

// Config holds the paths each doctor check verifies.
type Config struct {
	// ORTLibraryPath is the configured ONNX Runtime shared library. Empty
	// means probe common system locations.
	ORTLibraryPath string
	// GraphManifest is the path to the exported graph manifest.
	GraphManifest string
	// TokenizerModel is the path to the SentencePiece model.
	TokenizerModel string
}

// Result collects the outcome of all checks.
type Result struct {
	failures []string
}

// Failed returns true if any check failed.
func (r *Result) Failed() bool { return len(r.failures) > 0 }

// Failures returns the list of failure messages.
func (r *Result) Failures() []string { return append([]string(nil), r.failures...) }

func (r *Result) fail(msg string) { r.failures = append(r.failures, msg) }

// Run executes all checks and writes human-readable output to w. Each check
// line is prefixed with PassMark or FailMark.
func Run(cfg Config, w io.Writer) Result {
	var res Result

	// ---- ONNX Runtime library --------------------------------------------
	if cfg.ORTLibraryPath != "" {
		if _, err := os.Stat(cfg.ORTLibraryPath); err != nil {
			res.fail(fmt.Sprintf("onnxruntime library %q: %v", cfg.ORTLibraryPath, err))
			fmt.Fprintf(w, "%s onnxruntime library %s: not found\n", FailMark, cfg.ORTLibraryPath)
		} else {
			fmt.Fprintf(w, "%s onnxruntime library: %s\n", PassMark, cfg.ORTLibraryPath)
		}
	} else if found := probeORT(); found != "" {
		fmt.Fprintf(w, "%s onnxruntime library: %s (probed)\n", PassMark, found)
	} else {
		res.fail("onnxruntime library: not found in common locations; set runtime.ort_library_path")
		fmt.Fprintf(w, "%s onnxruntime library: not found; set runtime.ort_library_path or CSM_ORT_LIB\n", FailMark)
	}

	// ---- graph manifest ---------------------------------------------------
	if sm, err := onnx.NewSessionManager(cfg.GraphManifest); err != nil {
		res.fail(fmt.Sprintf("graph manifest %q: %v", cfg.GraphManifest, err))
		fmt.Fprintf(w, "%s graph manifest %s: %v\n", FailMark, cfg.GraphManifest, err)
	} else {
		ok := true
		for _, name := range []string{onnx.GraphBackboneStep, onnx.GraphAudioEncoder, onnx.GraphAudioDecoder} {
			if _, err := sm.Get(name); err != nil {
				res.fail(fmt.Sprintf("graph %q: %v", name, err))
				fmt.Fprintf(w, "%s graph %s: missing from manifest\n", FailMark, name)
				ok = false
			}
		}

		if ok {
			fmt.Fprintf(w, "%s graph manifest: %s\n", PassMark, cfg.GraphManifest)
		}
	}

	// ---- tokenizer model --------------------------------------------------
	if _, err := os.Stat(cfg.TokenizerModel); err != nil {
		res.fail(fmt.Sprintf("tokenizer model %q: %v", cfg.TokenizerModel, err))
		fmt.Fprintf(w, "%s tokenizer model %s: not found\n", FailMark, cfg.TokenizerModel)
	} else {
		fmt.Fprintf(w, "%s tokenizer model: %s\n", PassMark, cfg.TokenizerModel)
	}

	return res
}

func probeORT() string {
	for _, p := range append([]string{os.Getenv("CSM_ORT_LIB"), os.Getenv("ORT_LIBRARY_PATH")}, ortCandidates...) {
		if p == "" {
			continue
		}

		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}
