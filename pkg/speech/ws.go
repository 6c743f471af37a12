package speech

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"google.golang.org/api/iterator"
)

// WSTranscriber is a streaming recognizer client for websocket endpoints
// that accept binary PCM frames and reply with JSON result events carrying
// a per-session speaker identifier.
type WSTranscriber struct {
	// Endpoint is the ws:// or wss:// URL of the recognizer.
	Endpoint string

	// Header carries authentication (e.g., subscription key) for the dial.
	Header http.Header

	// Language is the recognition language tag (e.g., "ko-KR").
	Language string

	// SampleRate of the PCM frames in Hz. Defaults to 16000.
	SampleRate int
}

var _ StreamTranscriber = (*WSTranscriber)(nil)

// wsStartRequest is the session-open message.
type wsStartRequest struct {
	Language   string `json:"language"`
	SampleRate int    `json:"sample_rate"`
	Format     string `json:"format"`
	Diarize    bool   `json:"diarize"`
}

// wsResult is one recognizer reply.
type wsResult struct {
	SpeakerID string `json:"speaker_id"`
	Text      string `json:"text"`
	Final     bool   `json:"final"`
	Error     string `json:"error,omitempty"`
}

// TranscribeStream dials the endpoint, starts a diarized session, and
// pumps frames until the channel closes or ctx is cancelled.
func (t *WSTranscriber) TranscribeStream(ctx context.Context, frames <-chan []byte) (EventStream, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, t.Endpoint, t.Header)
	if err != nil {
		return nil, fmt.Errorf("speech: connect websocket: %w", err)
	}

	sampleRate := t.SampleRate
	if sampleRate == 0 {
		sampleRate = 16000
	}
	start := wsStartRequest{
		Language:   t.Language,
		SampleRate: sampleRate,
		Format:     "pcm_s16le",
		Diarize:    true,
	}
	if err := conn.WriteJSON(start); err != nil {
		conn.Close()
		return nil, fmt.Errorf("speech: send start request: %w", err)
	}

	s := &wsStream{
		conn:     conn,
		recvChan: make(chan Event, 64),
		errChan:  make(chan error, 1),
		done:     make(chan struct{}),
	}
	go s.sendLoop(ctx, frames)
	go s.receiveLoop()
	return s, nil
}

type wsStream struct {
	conn      *websocket.Conn
	recvChan  chan Event
	errChan   chan error
	done      chan struct{}
	closeOnce sync.Once
}

func (s *wsStream) sendLoop(ctx context.Context, frames <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			s.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case frame, ok := <-frames:
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := s.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}

func (s *wsStream) receiveLoop() {
	defer close(s.recvChan)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				select {
				case s.errChan <- err:
				default:
				}
			}
			return
		}
		var res wsResult
		if err := json.Unmarshal(data, &res); err != nil {
			select {
			case s.errChan <- fmt.Errorf("speech: bad result frame: %w", err):
			default:
			}
			return
		}
		if res.Error != "" {
			select {
			case s.errChan <- fmt.Errorf("speech: recognizer canceled: %s", res.Error):
			default:
			}
			return
		}
		select {
		case s.recvChan <- Event{SpeakerID: res.SpeakerID, Text: res.Text, Final: res.Final}:
		case <-s.done:
			return
		}
	}
}

func (s *wsStream) Next() (Event, error) {
	select {
	case ev, ok := <-s.recvChan:
		if !ok {
			select {
			case err := <-s.errChan:
				return Event{}, err
			default:
				return Event{}, iterator.Done
			}
		}
		return ev, nil
	case err := <-s.errChan:
		return Event{}, err
	case <-s.done:
		return Event{}, iterator.Done
	}
}

func (s *wsStream) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.conn.Close()
	})
	return nil
}
