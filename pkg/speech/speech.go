// Package speech defines the transcription source contracts the meeting
// pipeline consumes: a streaming diarized recognizer that emits
// speaker-tagged events in real time, and a batch recognizer that turns a
// bounded audio window into plain text.
//
// Backends register with a mux by name, mirroring how HTTP handlers
// register with a ServeMux. The websocket streaming client lives in ws.go
// and the OpenAI batch backend in whisper.go.
package speech

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrTransient marks a provider failure (network, timeout, quota) that the
// caller should treat as "no result for this window" and retry at the next
// natural cadence.
var ErrTransient = errors.New("speech: transient provider error")

// Event is one streaming recognizer result.
type Event struct {
	// SpeakerID is the recognizer's opaque session-stable speaker
	// identifier. Empty when diarization could not attribute the segment.
	SpeakerID string

	// Text is the recognized content so far.
	Text string

	// Final reports whether this segment will not change further.
	Final bool
}

// EventStream delivers streaming recognition events.
//
// Next returns iterator.Done (google.golang.org/api/iterator) once the
// stream is exhausted. A recognizer-side cancellation surfaces as an error
// from Next; it must be logged by the consumer but never corrupts state
// already derived from earlier events.
type EventStream interface {
	Next() (Event, error)
	Close() error
}

// StreamTranscriber opens a live diarized recognition stream over raw PCM
// frames delivered on the frames channel. The stream ends when frames is
// closed or ctx is cancelled.
type StreamTranscriber interface {
	TranscribeStream(ctx context.Context, frames <-chan []byte) (EventStream, error)
}

// BatchTranscriber transcribes one complete audio window (WAV bytes) into
// plain text. Language is fixed per session (e.g., "ko").
type BatchTranscriber interface {
	Transcribe(ctx context.Context, wav []byte, language string) (string, error)
}

// Mux routes transcription requests to backends registered by name.
type Mux struct {
	mu    sync.RWMutex
	strm  map[string]StreamTranscriber
	batch map[string]BatchTranscriber
}

// NewMux creates an empty mux.
func NewMux() *Mux {
	return &Mux{
		strm:  make(map[string]StreamTranscriber),
		batch: make(map[string]BatchTranscriber),
	}
}

// HandleStream registers a streaming backend under name.
func (m *Mux) HandleStream(name string, t StreamTranscriber) {
	m.mu.Lock()
	m.strm[name] = t
	m.mu.Unlock()
}

// HandleBatch registers a batch backend under name.
func (m *Mux) HandleBatch(name string, t BatchTranscriber) {
	m.mu.Lock()
	m.batch[name] = t
	m.mu.Unlock()
}

// TranscribeStream opens a stream via the named backend.
func (m *Mux) TranscribeStream(ctx context.Context, name string, frames <-chan []byte) (EventStream, error) {
	m.mu.RLock()
	t, ok := m.strm[name]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("speech: stream transcriber not found for %s", name)
	}
	return t.TranscribeStream(ctx, frames)
}

// Transcribe transcribes a window via the named backend.
func (m *Mux) Transcribe(ctx context.Context, name string, wav []byte, language string) (string, error) {
	m.mu.RLock()
	t, ok := m.batch[name]
	m.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("speech: batch transcriber not found for %s", name)
	}
	return t.Transcribe(ctx, wav, language)
}
