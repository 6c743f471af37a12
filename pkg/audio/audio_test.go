package audio

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"
)

func TestAccumulatorCutsWindows(t *testing.T) {
	// 1s at 16kHz mono 16-bit = 32000 bytes.
	acc := NewAccumulator(16000, time.Second)

	if w := acc.Write(make([]byte, 10000)); w != nil {
		t.Fatal("window cut before enough audio accumulated")
	}
	if w := acc.Write(make([]byte, 10000)); w != nil {
		t.Fatal("window cut before enough audio accumulated")
	}
	w := acc.Write(make([]byte, 15000))
	if w == nil {
		t.Fatal("no window after 35000 bytes")
	}
	if len(w.PCM) != 32000 {
		t.Fatalf("window size = %d, want 32000", len(w.PCM))
	}
	if w.Duration != time.Second {
		t.Fatalf("duration = %v, want %v", w.Duration, time.Second)
	}
	if w.ID == "" {
		t.Fatal("window has no ID")
	}
	if acc.Buffered() != 3000 {
		t.Fatalf("buffered = %d, want 3000", acc.Buffered())
	}
}

func TestAccumulatorFlush(t *testing.T) {
	acc := NewAccumulator(16000, time.Second)
	if w := acc.Flush(); w != nil {
		t.Fatal("flush of empty accumulator returned a window")
	}

	acc.Write(make([]byte, 8000))
	w := acc.Flush()
	if w == nil {
		t.Fatal("flush lost buffered audio")
	}
	if len(w.PCM) != 8000 {
		t.Fatalf("flush size = %d, want 8000", len(w.PCM))
	}
	// 4000 samples at 16kHz.
	if w.Duration != 250*time.Millisecond {
		t.Fatalf("duration = %v, want %v", w.Duration, 250*time.Millisecond)
	}
	if acc.Buffered() != 0 {
		t.Fatalf("buffered after flush = %d, want 0", acc.Buffered())
	}
}

func TestAccumulatorDefaultWindow(t *testing.T) {
	acc := NewAccumulator(16000, 0)
	// 30s at 16kHz = 960000 bytes; one byte short must not cut.
	if w := acc.Write(make([]byte, 960000-1)); w != nil {
		t.Fatal("default window cut early")
	}
	if w := acc.Write(make([]byte, 1)); w == nil {
		t.Fatal("default window not cut at 30s of audio")
	}
}

func TestEncodeWAV(t *testing.T) {
	pcm := []byte{0x01, 0x02, 0x03, 0x04}
	wav := EncodeWAV(pcm, 16000)

	if len(wav) != 44+len(pcm) {
		t.Fatalf("len = %d, want %d", len(wav), 44+len(pcm))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		t.Fatal("missing RIFF/WAVE markers")
	}
	if got := binary.LittleEndian.Uint32(wav[4:8]); got != uint32(36+len(pcm)) {
		t.Fatalf("riff size = %d, want %d", got, 36+len(pcm))
	}
	if got := binary.LittleEndian.Uint16(wav[22:24]); got != 1 {
		t.Fatalf("channels = %d, want 1", got)
	}
	if got := binary.LittleEndian.Uint32(wav[24:28]); got != 16000 {
		t.Fatalf("sample rate = %d, want 16000", got)
	}
	if got := binary.LittleEndian.Uint32(wav[28:32]); got != 32000 {
		t.Fatalf("byte rate = %d, want 32000", got)
	}
	if got := binary.LittleEndian.Uint32(wav[40:44]); got != uint32(len(pcm)) {
		t.Fatalf("data size = %d, want %d", got, len(pcm))
	}
	if !bytes.Equal(wav[44:], pcm) {
		t.Fatal("payload does not round-trip")
	}
}
