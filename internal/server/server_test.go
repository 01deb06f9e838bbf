package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/example/go-csm/internal/audio"
	"github.com/example/go-csm/internal/csm"
	"github.com/example/go-csm/internal/testutil"
)

type fakeGenerator struct {
	pcm     []float32
	err     error
	calls   int
	lastTxt string
	lastSpk int
}

func (f *fakeGenerator) Generate(_ context.Context, text string, speaker int, _ []csm.Segment, _ csm.GenerateOptions) ([]float32, error) {
	f.calls++
	f.lastTxt = text
	f.lastSpk = speaker
	if f.err != nil {
		return nil, f.err
	}

	return f.pcm, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(bytes.NewBuffer(nil), nil))
}

func postSpeak(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/speak", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	return rec
}

func TestParseLogLevel(t *testing.T) {
	cases := []struct {
		in   string
		want slog.Level
		ok   bool
	}{
		{"", slog.LevelInfo, true},
		{"debug", slog.LevelDebug, true},
		{"INFO", slog.LevelInfo, true},
		{"warn", slog.LevelWarn, true},
		{"warning", slog.LevelWarn, true},
		{"Error", slog.LevelError, true},
		{"verbose", slog.LevelInfo, false},
	}

	for _, tc := range cases {
		got, err := ParseLogLevel(tc.in)
		if (err == nil) != tc.ok {
			t.Errorf("ParseLogLevel(%q) error = %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestHealthEndpoint(t *testing.T) {
	h := NewHandler(&fakeGenerator{}, WithLogger(quietLogger()))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %q, want ok", body["status"])
	}
}

func TestSpeakSuccess(t *testing.T) {
	gen := &fakeGenerator{pcm: make([]float32, 240)}
	h := NewHandler(gen, WithLogger(quietLogger()))

	rec := postSpeak(t, h, `{"text": "hello world", "speaker": 2}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "audio/wav" {
		t.Errorf("content type = %q, want audio/wav", ct)
	}
	if gen.lastTxt != "hello world" || gen.lastSpk != 2 {
		t.Errorf("generator saw %q/%d", gen.lastTxt, gen.lastSpk)
	}

	testutil.AssertValidWAV(t, rec.Body.Bytes())
	testutil.AssertWAVDurationApprox(t, rec.Body.Bytes(), 0.005, 0.02)

	samples, err := audio.DecodeWAV(rec.Body.Bytes())
	if err != nil {
		t.Fatalf("response is not decodable WAV: %v", err)
	}
	if len(samples) != 240 {
		t.Errorf("got %d samples, want 240", len(samples))
	}
}

func TestSpeakValidation(t *testing.T) {
	t.Run("rejects GET", func(t *testing.T) {
		h := NewHandler(&fakeGenerator{}, WithLogger(quietLogger()))
		req := httptest.NewRequest(http.MethodGet, "/speak", nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("status = %d, want 405", rec.Code)
		}
	})

	t.Run("rejects invalid JSON", func(t *testing.T) {
		h := NewHandler(&fakeGenerator{}, WithLogger(quietLogger()))
		if rec := postSpeak(t, h, "{oops"); rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("rejects empty text", func(t *testing.T) {
		h := NewHandler(&fakeGenerator{}, WithLogger(quietLogger()))
		if rec := postSpeak(t, h, `{"text": ""}`); rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("rejects negative speaker", func(t *testing.T) {
		h := NewHandler(&fakeGenerator{}, WithLogger(quietLogger()))
		if rec := postSpeak(t, h, `{"text": "hi", "speaker": -1}`); rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("rejects oversize text", func(t *testing.T) {
		h := NewHandler(&fakeGenerator{}, WithMaxTextBytes(10), WithLogger(quietLogger()))
		body := fmt.Sprintf(`{"text": %q}`, strings.Repeat("a", 11))
		if rec := postSpeak(t, h, body); rec.Code != http.StatusRequestEntityTooLarge {
			t.Errorf("status = %d, want 413", rec.Code)
		}
	})
}

func TestSpeakErrorMapping(t *testing.T) {
	t.Run("input too long", func(t *testing.T) {
		gen := &fakeGenerator{err: fmt.Errorf("%w: prompt too big", csm.ErrInputTooLong)}
		h := NewHandler(gen, WithLogger(quietLogger()))
		if rec := postSpeak(t, h, `{"text": "hi"}`); rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("deadline exceeded", func(t *testing.T) {
		gen := &fakeGenerator{err: context.DeadlineExceeded}
		h := NewHandler(gen, WithLogger(quietLogger()))
		if rec := postSpeak(t, h, `{"text": "hi"}`); rec.Code != http.StatusGatewayTimeout {
			t.Errorf("status = %d, want 504", rec.Code)
		}
	})

	t.Run("internal failure", func(t *testing.T) {
		gen := &fakeGenerator{err: errors.New("graph exploded")}
		h := NewHandler(gen, WithLogger(quietLogger()))
		if rec := postSpeak(t, h, `{"text": "hi"}`); rec.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", rec.Code)
		}
	})
}

func TestSpeakForwardsOptions(t *testing.T) {
	var gotOpts csm.GenerateOptions
	gen := &optionRecorder{opts: &gotOpts}
	h := NewHandler(gen, WithLogger(quietLogger()))

	body := `{"text": "hi", "max_audio_length_ms": 5000, "temperature": 0.7, "topk": 10, "watermark": true}`
	if rec := postSpeak(t, h, body); rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	if gotOpts.MaxAudioLengthMs != 5000 || gotOpts.Temperature != 0.7 || gotOpts.TopK != 10 || !gotOpts.ApplyWatermark {
		t.Errorf("options = %+v", gotOpts)
	}
}

type optionRecorder struct {
	opts *csm.GenerateOptions
}

func (o *optionRecorder) Generate(_ context.Context, _ string, _ int, _ []csm.Segment, opts csm.GenerateOptions) ([]float32, error) {
	*o.opts = opts
	return []float32{0}, nil
}

func TestServerGracefulShutdown(t *testing.T) {
	srv := New(Config{ListenAddr: "127.0.0.1:0", Workers: 1}, &fakeGenerator{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- srv.Start(ctx)
	}()

	cancel()

	if err := <-done; err != nil {
		t.Fatalf("Start returned %v after cancellation", err)
	}
}
