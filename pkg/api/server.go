// Package api exposes the meeting assistant over HTTP: session start/stop,
// audio ingest, live notes, summarization, wiki publishing, and the
// retrieval chat agent.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/umeet/scribe/pkg/minutes"
	"github.com/umeet/scribe/pkg/msgraph"
	"github.com/umeet/scribe/pkg/rag"
	"github.com/umeet/scribe/pkg/summary"
	"github.com/umeet/scribe/pkg/wiki"
)

// Config wires the server's collaborators. NewSession is required; the
// rest may be nil, in which case the corresponding endpoints report 503.
type Config struct {
	// NewSession builds a meeting session consuming the given PCM frame
	// channel. Called once per /api/start.
	NewSession func(frames <-chan []byte) (*minutes.Session, error)

	Summarizer *summary.Summarizer
	Wiki       *wiki.Client
	Graph      *msgraph.Client
	Store      *rag.Store
	Agent      *rag.Agent

	// AllowedOrigins for CORS. Empty allows any origin.
	AllowedOrigins []string

	Logger *slog.Logger
}

// Server handles the REST and WebSocket endpoints.
type Server struct {
	cfg    Config
	logger *slog.Logger

	upgrader websocket.Upgrader

	mu      sync.Mutex
	session *minutes.Session
	frames  chan []byte
	running bool
}

// New creates a Server. It panics if cfg.NewSession is nil.
func New(cfg Config) *Server {
	if cfg.NewSession == nil {
		panic("api: Config.NewSession is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:    cfg,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	if s.cfg.Agent != nil {
		s.cfg.Agent.Notes = s.liveNotes
	}
	return s
}

// Handler returns the route tree with CORS applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/start", s.handleStart)
	mux.HandleFunc("POST /api/stop", s.handleStop)
	mux.HandleFunc("GET /api/audio", s.handleAudio)
	mux.HandleFunc("GET /api/note", s.handleNote)
	mux.HandleFunc("POST /api/note/summary", s.handleSummary)
	mux.HandleFunc("POST /api/note/summaryall", s.handleSummaryAll)
	mux.HandleFunc("POST /api/note/share", s.handleShare)
	mux.HandleFunc("POST /api/rag/upload", s.handleRagUpload)
	mux.HandleFunc("POST /api/rag/chat", s.handleRagChat)
	mux.HandleFunc("GET /api/comments/{label}", s.handleComments)
	mux.HandleFunc("GET /api/userinfo/{name}", s.handleUserInfo)
	return s.cors(mux)
}

// cors answers preflight requests and stamps the response headers the
// frontend needs.
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	if len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	for _, o := range s.cfg.AllowedOrigins {
		if o == origin || o == "*" {
			return true
		}
	}
	return false
}

// answer is the uniform response envelope.
type answer struct {
	Answer string `json:"answer"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("response encode failed", "error", err)
	}
}

func (s *Server) writeAnswer(w http.ResponseWriter, text string) {
	s.writeJSON(w, http.StatusOK, answer{Answer: text})
}

func (s *Server) readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

// handleStart creates and starts a new meeting session. Starting while a
// session is live is reported, not treated as an error.
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		s.writeAnswer(w, "이미 실행 중입니다.")
		return
	}

	frames := make(chan []byte, 64)
	sess, err := s.cfg.NewSession(frames)
	if err != nil {
		s.logger.Error("session create failed", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	// The session outlives the request; it is stopped via /api/stop,
	// so it must not inherit the request context.
	if err := sess.Start(context.Background()); err != nil {
		s.logger.Error("session start failed", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.session = sess
	s.frames = frames
	s.running = true
	s.logger.Info("meeting session started")
	s.writeAnswer(w, "실시간 회의 시작")
}

// handleStop ends the live session. The log survives for /api/note and
// publishing.
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		s.writeAnswer(w, "실행중인 작업이 없습니다.")
		return
	}
	sess := s.session
	frames := s.frames
	s.frames = nil
	s.running = false
	s.mu.Unlock()

	close(frames)
	sess.Stop()
	s.logger.Info("meeting session stopped")
	s.writeAnswer(w, "실시간 회의 종료 완료")
}

// handleAudio ingests PCM frames over a WebSocket. Binary messages are
// forwarded to the live session; the connection closes when the session
// stops.
func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	frames := s.frames
	running := s.running
	s.mu.Unlock()
	if !running {
		http.Error(w, "no session running", http.StatusConflict)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	for {
		typ, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("audio socket closed", "error", err)
			}
			return
		}
		if typ != websocket.BinaryMessage || len(data) == 0 {
			continue
		}
		if !s.sendFrame(frames, data) {
			return
		}
	}
}

// sendFrame delivers one frame unless the session has stopped underneath.
func (s *Server) sendFrame(frames chan []byte, data []byte) (ok bool) {
	defer func() {
		// Send on a closed channel means the session stopped; drop the
		// frame and end the ingest loop.
		if recover() != nil {
			ok = false
		}
	}()
	s.mu.Lock()
	running := s.running && s.frames != nil
	s.mu.Unlock()
	if !running {
		return false
	}
	frames <- data
	return true
}

// handleNote returns the current meeting log snapshot.
func (s *Server) handleNote(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	sess := s.session
	s.mu.Unlock()
	if sess == nil {
		s.writeJSON(w, http.StatusOK, []minutes.Utterance{})
		return
	}
	snap := sess.Log().Snapshot()
	if snap == nil {
		snap = []minutes.Utterance{}
	}
	s.writeJSON(w, http.StatusOK, snap)
}

// liveNotes renders the current log for the chat agent.
func (s *Server) liveNotes() string {
	s.mu.Lock()
	sess := s.session
	s.mu.Unlock()
	if sess == nil {
		return ""
	}
	return summary.Render(sess.Log().Snapshot())
}

