package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"testing"
)

// makeWAV builds a minimal valid WAV file from parameters for testing.
func makeWAV(sampleRate uint32, numChannels uint16, bitDepth uint16, numSamples int) []byte {
	blockAlign := numChannels * bitDepth / 8
	byteRate := sampleRate * uint32(blockAlign)
	dataSize := uint32(numSamples) * uint32(blockAlign)
	riffSize := 4 + (8 + 16) + (8 + dataSize)

	buf := &bytes.Buffer{}
	buf.WriteString("RIFF")
	_ = binary.Write(buf, binary.LittleEndian, uint32(riffSize))
	buf.WriteString("WAVE")

	// fmt chunk
	buf.WriteString("fmt ")
	_ = binary.Write(buf, binary.LittleEndian, uint32(16)) // chunk size
	_ = binary.Write(buf, binary.LittleEndian, uint16(1))  // PCM
	_ = binary.Write(buf, binary.LittleEndian, numChannels)
	_ = binary.Write(buf, binary.LittleEndian, sampleRate)
	_ = binary.Write(buf, binary.LittleEndian, byteRate)
	_ = binary.Write(buf, binary.LittleEndian, blockAlign)
	_ = binary.Write(buf, binary.LittleEndian, bitDepth)

	// data chunk
	buf.WriteString("data")
	_ = binary.Write(buf, binary.LittleEndian, dataSize)
	for range numSamples {
		_ = binary.Write(buf, binary.LittleEndian, int16(0))
	}

	return buf.Bytes()
}

func TestDecodeWAV(t *testing.T) {
	t.Run("decodes valid 24kHz mono 16-bit WAV", func(t *testing.T) {
		wav := makeWAV(24000, 1, 16, 100)
		samples, err := DecodeWAV(wav)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(samples) != 100 {
			t.Errorf("got %d samples, want 100", len(samples))
		}
	})

	t.Run("rejects wrong sample rate", func(t *testing.T) {
		wav := makeWAV(44100, 1, 16, 10)
		_, err := DecodeWAV(wav)
		if !errors.Is(err, ErrFormatMismatch) {
			t.Fatalf("got %v, want ErrFormatMismatch", err)
		}
	})

	t.Run("rejects stereo", func(t *testing.T) {
		wav := makeWAV(24000, 2, 16, 10)
		_, err := DecodeWAV(wav)
		if !errors.Is(err, ErrFormatMismatch) {
			t.Fatalf("got %v, want ErrFormatMismatch", err)
		}
	})

	t.Run("rejects wrong bit depth", func(t *testing.T) {
		wav := makeWAV(24000, 1, 8, 10)
		_, err := DecodeWAV(wav)
		if !errors.Is(err, ErrFormatMismatch) {
			t.Fatalf("got %v, want ErrFormatMismatch", err)
		}
	})

	t.Run("rejects empty input", func(t *testing.T) {
		if _, err := DecodeWAV(nil); err == nil {
			t.Fatal("expected error for empty input")
		}
	})

	t.Run("rejects garbage", func(t *testing.T) {
		if _, err := DecodeWAV([]byte("not a wav file at all")); err == nil {
			t.Fatal("expected error for garbage input")
		}
	})
}

func TestEncodeWAVRoundTrip(t *testing.T) {
	samples := make([]float32, 240)
	for i := range samples {
		samples[i] = float32(math.Sin(2 * math.Pi * 440 * float64(i) / SampleRate))
	}

	data, err := EncodeWAV(samples)
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}

	if !bytes.HasPrefix(data, []byte("RIFF")) {
		t.Fatal("output is not a RIFF container")
	}

	decoded, err := DecodeWAV(data)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}

	if len(decoded) != len(samples) {
		t.Fatalf("got %d samples, want %d", len(decoded), len(samples))
	}

	// 16-bit quantization loses precision; allow a generous tolerance.
	for i := range samples {
		if math.Abs(float64(decoded[i]-samples[i])) > 0.01 {
			t.Fatalf("sample %d: got %v, want %v", i, decoded[i], samples[i])
		}
	}
}

func TestEncodeWAVEmpty(t *testing.T) {
	data, err := EncodeWAV(nil)
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}

	decoded, err := DecodeWAV(data)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}

	if len(decoded) != 0 {
		t.Errorf("got %d samples, want 0", len(decoded))
	}
}

func TestSeekBuffer(t *testing.T) {
	sb := &seekBuffer{buf: &bytes.Buffer{}}

	if _, err := sb.Write([]byte("abcdef")); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := sb.Seek(2, io.SeekStart); err != nil {
		t.Fatalf("seek: %v", err)
	}

	if _, err := sb.Write([]byte("XY")); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	if got := sb.buf.String(); got != "abXYef" {
		t.Errorf("got %q, want %q", got, "abXYef")
	}

	if _, err := sb.Seek(-1, io.SeekStart); err == nil {
		t.Error("expected error for seek before start")
	}
}
