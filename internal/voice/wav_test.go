package voice

import (
	"testing"
	"time"
)

func TestEncodeWAVRoundTrip(t *testing.T) {
	samples := make([]int16, 16000) // one second at 16 kHz
	for i := range samples {
		samples[i] = int16(i % 500)
	}

	blob := EncodeWAV(samples, 16000)
	if len(blob) != wavHeaderSize+len(samples)*2 {
		t.Fatalf("Unexpected blob size %d", len(blob))
	}

	info, err := ParseWAVInfo(blob)
	if err != nil {
		t.Fatalf("ParseWAVInfo failed: %v", err)
	}
	if info.SampleRate != 16000 {
		t.Errorf("Expected sample rate 16000, got %d", info.SampleRate)
	}
	if info.Channels != 1 {
		t.Errorf("Expected mono, got %d channels", info.Channels)
	}
	if info.Duration != time.Second {
		t.Errorf("Expected 1s duration, got %v", info.Duration)
	}
}

func TestParseWAVInfoRejectsTruncatedHeader(t *testing.T) {
	if _, err := ParseWAVInfo([]byte("RIFF")); err == nil {
		t.Error("Expected error for truncated header")
	}
}

func TestParseWAVInfoRejectsNonRIFF(t *testing.T) {
	blob := make([]byte, wavHeaderSize)
	copy(blob, "OggS")
	if _, err := ParseWAVInfo(blob); err == nil {
		t.Error("Expected error for non-RIFF container")
	}
}

func TestParseWAVInfoRejectsCompressedFormat(t *testing.T) {
	blob := EncodeWAV(make([]int16, 160), 16000)
	blob[20] = 6 // a-law
	if _, err := ParseWAVInfo(blob); err == nil {
		t.Error("Expected error for non-PCM format")
	}
}
