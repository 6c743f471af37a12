package minutes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"google.golang.org/api/iterator"

	"github.com/umeet/scribe/pkg/audio"
	"github.com/umeet/scribe/pkg/jsontime"
	"github.com/umeet/scribe/pkg/speech"
	"github.com/umeet/scribe/pkg/storage"
)

// SessionConfig wires a session's collaborators. Stream, Batch, Judge, and
// Frames are required; everything else has sane defaults.
type SessionConfig struct {
	// Stream is the low-latency diarized recognizer.
	Stream speech.StreamTranscriber

	// Batch is the windowed high-accuracy recognizer.
	Batch speech.BatchTranscriber

	// Judge merges the two transcripts for each window.
	Judge Judge

	// Resolver normalizes speaker labels after finalization. Optional;
	// when nil, opaque labels are kept.
	Resolver Resolver

	// Frames delivers raw 16-bit LE mono PCM from the audio transport.
	// Closing the channel ends the session's input.
	Frames <-chan []byte

	// SampleRate of the PCM frames in Hz. Defaults to 16000.
	SampleRate int

	// Window is the batch transcription cadence. Defaults to 30s.
	Window time.Duration

	// Language is the fixed recognition language (e.g., "ko").
	Language string

	// Archive, when set, receives each window's WAV for later audit.
	Archive storage.FileStore

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Session owns one meeting's log, registry, and producers. Create with
// [NewSession], run with [Session.Start], and shut down with
// [Session.Stop]; the log survives Stop for publishing.
type Session struct {
	cfg SessionConfig
	log *Log
	reg *SpeakerRegistry
	rec *Reconciler

	mu      sync.Mutex
	cancel  context.CancelFunc
	started bool

	wg sync.WaitGroup
}

// NewSession validates the configuration and creates a session. A missing
// required collaborator is the only fatal error class; everything
// discovered after startup is retried or skipped.
func NewSession(cfg SessionConfig) (*Session, error) {
	switch {
	case cfg.Stream == nil:
		return nil, errors.New("minutes: session requires a stream transcriber")
	case cfg.Batch == nil:
		return nil, errors.New("minutes: session requires a batch transcriber")
	case cfg.Judge == nil:
		return nil, errors.New("minutes: session requires a judge")
	case cfg.Frames == nil:
		return nil, errors.New("minutes: session requires a frame source")
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Window <= 0 {
		cfg.Window = audio.DefaultWindow
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	log := NewLog()
	return &Session{
		cfg: cfg,
		log: log,
		reg: NewSpeakerRegistry(),
		rec: NewReconciler(log, cfg.Judge),
	}, nil
}

// Log returns the session's meeting log. Consumers read it via Snapshot.
func (s *Session) Log() *Log { return s.log }

// Registry returns the session's speaker registry.
func (s *Session) Registry() *SpeakerRegistry { return s.reg }

// Start launches the producers. It returns an error if the streaming
// recognizer cannot be opened or the session already ran.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("minutes: session already started")
	}

	ctx, cancel := context.WithCancel(ctx)

	streamCh := make(chan []byte, 64)
	events, err := s.cfg.Stream.TranscribeStream(ctx, streamCh)
	if err != nil {
		cancel()
		return fmt.Errorf("minutes: open stream: %w", err)
	}

	s.started = true
	s.cancel = cancel

	windowCh := make(chan *audio.Window, 4)
	s.wg.Add(3)
	go s.pump(ctx, streamCh, windowCh)
	go s.consumeEvents(events)
	go s.consumeWindows(ctx, windowCh)
	return nil
}

// Stop signals both producers to stop at the next safe boundary and waits
// for the final window flush to complete. It is idempotent.
func (s *Session) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

// pump forwards frames to the streaming recognizer and cuts batch
// windows. On shutdown it flushes the partial window so the tail of the
// meeting is not lost.
func (s *Session) pump(ctx context.Context, streamCh chan<- []byte, windowCh chan<- *audio.Window) {
	defer s.wg.Done()
	defer close(windowCh)
	defer close(streamCh)

	acc := audio.NewAccumulator(s.cfg.SampleRate, s.cfg.Window)
	defer func() {
		if w := acc.Flush(); w != nil {
			windowCh <- w
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-s.cfg.Frames:
			if !ok {
				return
			}
			select {
			case streamCh <- frame:
			case <-ctx.Done():
				return
			}
			if w := acc.Write(frame); w != nil {
				select {
				case windowCh <- w:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

// consumeEvents appends final streaming results to the log as Pending
// entries. A recognizer cancellation is logged and ends the stream; the
// log keeps everything appended so far.
func (s *Session) consumeEvents(events speech.EventStream) {
	defer s.wg.Done()
	defer events.Close()
	for {
		ev, err := events.Next()
		if err != nil {
			if !errors.Is(err, iterator.Done) {
				s.cfg.Logger.Warn("stream recognizer ended with error", "error", err)
			}
			return
		}
		if !ev.Final {
			continue
		}
		text := strings.TrimSpace(ev.Text)
		if text == "" {
			continue
		}
		s.log.Append(Utterance{
			Speaker: s.reg.AssignOrGet(ev.SpeakerID),
			Text:    text,
			Source:  SourceStream,
			Status:  Pending,
			At:      jsontime.NowEpochMilli(),
		})
	}
}

// consumeWindows runs one reconciliation pass per window, sequentially.
// After cancellation, remaining windows (including the final flush) get a
// short detached context so an in-flight meeting tail still lands.
func (s *Session) consumeWindows(ctx context.Context, windowCh <-chan *audio.Window) {
	defer s.wg.Done()
	for w := range windowCh {
		callCtx, cancel := s.windowContext(ctx)
		s.processWindow(callCtx, w)
		cancel()
	}
}

func (s *Session) windowContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx.Err() == nil {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(context.WithoutCancel(ctx), time.Minute)
}

func (s *Session) processWindow(ctx context.Context, w *audio.Window) {
	wav := audio.EncodeWAV(w.PCM, s.cfg.SampleRate)
	s.archive(ctx, w.ID, wav)

	text, err := s.cfg.Batch.Transcribe(ctx, wav, s.cfg.Language)
	if err != nil {
		// No replacement transcript for this window; the Pending
		// entries are judged against the next one.
		s.cfg.Logger.Warn("batch transcription failed", "window", w.ID, "error", err)
		return
	}

	finalized, err := s.rec.Reconcile(ctx, text)
	if err != nil {
		s.cfg.Logger.Warn("reconciliation abandoned", "window", w.ID, "error", err)
		return
	}
	if len(finalized) == 0 || s.cfg.Resolver == nil {
		return
	}

	_, mapping, err := ResolveSpeakers(ctx, s.cfg.Resolver, finalized)
	if err != nil {
		s.cfg.Logger.Warn("speaker resolution failed", "window", w.ID, "error", err)
		return
	}
	s.log.Relabel(mapping)
}

func (s *Session) archive(ctx context.Context, id string, wav []byte) {
	if s.cfg.Archive == nil {
		return
	}
	wc, err := s.cfg.Archive.Write(ctx, "windows/"+id+".wav")
	if err == nil {
		_, err = wc.Write(wav)
		if cerr := wc.Close(); err == nil {
			err = cerr
		}
	}
	if err != nil {
		s.cfg.Logger.Warn("window archive failed", "window", id, "error", err)
	}
}
