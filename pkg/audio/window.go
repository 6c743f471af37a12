// Package audio accumulates raw PCM frames into fixed-duration windows for
// batch transcription, and encodes windows as WAV for upload and archival.
//
// Format detection and resampling are the transport's concern; this
// package assumes 16-bit little-endian mono PCM at a known sample rate.
package audio

import (
	"time"

	"github.com/google/uuid"
)

// DefaultWindow is the batch transcription cadence.
const DefaultWindow = 30 * time.Second

// Window is one bounded range of audio ready for batch transcription.
type Window struct {
	// ID identifies the window for archival and logging.
	ID string

	// PCM is 16-bit little-endian mono samples.
	PCM []byte

	// Duration is the audio length represented by PCM.
	Duration time.Duration
}

// Accumulator collects PCM frames and cuts them into fixed-duration
// windows. It is not safe for concurrent use; the session owns it from a
// single goroutine.
type Accumulator struct {
	sampleRate int
	windowLen  int // bytes per full window
	buf        []byte
}

// NewAccumulator creates an accumulator cutting windows of the given
// duration at the given sample rate. A zero duration means DefaultWindow.
func NewAccumulator(sampleRate int, window time.Duration) *Accumulator {
	if window <= 0 {
		window = DefaultWindow
	}
	// 2 bytes per sample, mono.
	windowLen := int(window.Seconds()) * sampleRate * 2
	return &Accumulator{sampleRate: sampleRate, windowLen: windowLen}
}

// Write appends a frame and returns a completed window when enough audio
// has accumulated, or nil otherwise.
func (a *Accumulator) Write(frame []byte) *Window {
	a.buf = append(a.buf, frame...)
	if len(a.buf) < a.windowLen {
		return nil
	}
	pcm := make([]byte, a.windowLen)
	copy(pcm, a.buf[:a.windowLen])
	a.buf = append(a.buf[:0], a.buf[a.windowLen:]...)
	return a.window(pcm)
}

// Flush returns whatever audio remains as a final partial window, or nil
// if the buffer is empty. Called once when the session stops.
func (a *Accumulator) Flush() *Window {
	if len(a.buf) == 0 {
		return nil
	}
	pcm := make([]byte, len(a.buf))
	copy(pcm, a.buf)
	a.buf = a.buf[:0]
	return a.window(pcm)
}

// Buffered returns the number of buffered bytes not yet cut.
func (a *Accumulator) Buffered() int {
	return len(a.buf)
}

func (a *Accumulator) window(pcm []byte) *Window {
	samples := len(pcm) / 2
	return &Window{
		ID:       uuid.NewString(),
		PCM:      pcm,
		Duration: time.Duration(samples) * time.Second / time.Duration(a.sampleRate),
	}
}
