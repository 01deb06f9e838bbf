// Package testutil provides shared skip helpers and assertions for
// integration tests.
//
// Each helper calls t.Skip with a clear human-readable reason when the
// named prerequisite is absent, so integration tests remain runnable in
// partial environments without failing noisily.
package testutil

import (
	"os"
	"testing"
)

// ortCandidates mirrors the common install locations the doctor checks.
var ortCandidates = []string{
	"/usr/lib/libonnxruntime.so",
	"/usr/local/lib/libonnxruntime.so",
	"/usr/lib/x86_64-linux-gnu/libonnxruntime.so",
}

// ONNXRuntimePath returns the path of an available ONNX Runtime shared
// library, or empty if none is found. It checks (in order) the
// ORT_LIBRARY_PATH and CSM_ORT_LIB env vars, then common system locations.
func ONNXRuntimePath() string {
	for _, env := range []string{"ORT_LIBRARY_PATH", "CSM_ORT_LIB"} {
		if p := os.Getenv(env); p != "" {
			if _, err := os.Stat(p); err == nil {
				return p
			}

			return ""
		}
	}

	for _, p := range ortCandidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}

// RequireONNXRuntime skips the test if no ONNX Runtime shared library can
// be located, returning its path otherwise.
func RequireONNXRuntime(tb testing.TB) string {
	tb.Helper()

	p := ONNXRuntimePath()
	if p == "" {
		tb.Skip("ONNX Runtime shared library not found; set ORT_LIBRARY_PATH or CSM_ORT_LIB")
	}

	return p
}

// RequireGraphManifest skips the test if no exported graph manifest is
// available at the path in the CSM_GRAPH_MANIFEST env var, returning the
// path otherwise.
func RequireGraphManifest(tb testing.TB) string {
	tb.Helper()

	p := os.Getenv("CSM_GRAPH_MANIFEST")
	if p == "" {
		tb.Skip("graph manifest not available; set CSM_GRAPH_MANIFEST to an exported bundle")
	}

	if _, err := os.Stat(p); err != nil {
		tb.Skipf("graph manifest not found at CSM_GRAPH_MANIFEST=%q", p)
	}

	return p
}
