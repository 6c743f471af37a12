package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"google.golang.org/api/iterator"

	"github.com/umeet/scribe/pkg/kv"
	"github.com/umeet/scribe/pkg/llm"
	"github.com/umeet/scribe/pkg/minutes"
	"github.com/umeet/scribe/pkg/msgraph"
	"github.com/umeet/scribe/pkg/rag"
	"github.com/umeet/scribe/pkg/speech"
	"github.com/umeet/scribe/pkg/summary"
	"github.com/umeet/scribe/pkg/vecstore"
	"github.com/umeet/scribe/pkg/wiki"
)

type testEvents struct {
	events []speech.Event
	i      int
}

func (s *testEvents) Next() (speech.Event, error) {
	if s.i >= len(s.events) {
		return speech.Event{}, iterator.Done
	}
	ev := s.events[s.i]
	s.i++
	return ev, nil
}

func (s *testEvents) Close() error { return nil }

type testStream struct{ events []speech.Event }

func (s *testStream) TranscribeStream(ctx context.Context, frames <-chan []byte) (speech.EventStream, error) {
	go func() {
		for range frames {
		}
	}()
	return &testEvents{events: s.events}, nil
}

type countingBatch struct{ calls atomic.Int32 }

func (b *countingBatch) Transcribe(ctx context.Context, wav []byte, language string) (string, error) {
	b.calls.Add(1)
	return "", nil
}

// testSessionFactory builds sessions with a tiny window so a single audio
// frame cuts a batch window.
func testSessionFactory(stream speech.StreamTranscriber, batch speech.BatchTranscriber) func(frames <-chan []byte) (*minutes.Session, error) {
	return func(frames <-chan []byte) (*minutes.Session, error) {
		return minutes.NewSession(minutes.SessionConfig{
			Stream: stream,
			Batch:  batch,
			Judge: minutes.JudgeFunc(func(ctx context.Context, pending []minutes.Utterance, batchText string) ([]minutes.Utterance, error) {
				return pending, nil
			}),
			Frames:     frames,
			SampleRate: 10,
			Window:     time.Second,
		})
	}
}

type scriptedGen struct {
	dispatch string
	answer   string
}

func (g *scriptedGen) Complete(ctx context.Context, req *llm.Request) (string, error) {
	return g.answer, nil
}

func (g *scriptedGen) Invoke(ctx context.Context, req *llm.Request, tool *llm.FuncTool) (*llm.FuncCall, error) {
	return tool.NewFuncCall(g.dispatch), nil
}

func newTestServer(t *testing.T, cfg Config) (*Server, *httptest.Server) {
	t.Helper()
	if cfg.NewSession == nil {
		cfg.NewSession = testSessionFactory(&testStream{}, &countingBatch{})
	}
	s := New(cfg)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return s, srv
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decodeAnswer(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var a answer
	if err := json.NewDecoder(resp.Body).Decode(&a); err != nil {
		t.Fatalf("decode answer: %v", err)
	}
	return a.Answer
}

func TestStartStopLifecycle(t *testing.T) {
	_, srv := newTestServer(t, Config{})

	if got := decodeAnswer(t, postJSON(t, srv.URL+"/api/start", nil)); got != "실시간 회의 시작" {
		t.Fatalf("start = %q", got)
	}
	if got := decodeAnswer(t, postJSON(t, srv.URL+"/api/start", nil)); got != "이미 실행 중입니다." {
		t.Fatalf("second start = %q", got)
	}
	if got := decodeAnswer(t, postJSON(t, srv.URL+"/api/stop", nil)); got != "실시간 회의 종료 완료" {
		t.Fatalf("stop = %q", got)
	}
	if got := decodeAnswer(t, postJSON(t, srv.URL+"/api/stop", nil)); got != "실행중인 작업이 없습니다." {
		t.Fatalf("second stop = %q", got)
	}
}

func TestNoteSnapshot(t *testing.T) {
	stream := &testStream{events: []speech.Event{
		{SpeakerID: "spk-1", Text: "안녕하세요", Final: true},
	}}
	_, srv := newTestServer(t, Config{
		NewSession: testSessionFactory(stream, &countingBatch{}),
	})

	// Before any session: empty list, not an error.
	resp, err := http.Get(srv.URL + "/api/note")
	if err != nil {
		t.Fatalf("GET note: %v", err)
	}
	var snap []minutes.Utterance
	json.NewDecoder(resp.Body).Decode(&snap)
	resp.Body.Close()
	if len(snap) != 0 {
		t.Fatalf("note before start = %+v, want empty", snap)
	}

	postJSON(t, srv.URL+"/api/start", nil).Body.Close()

	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get(srv.URL + "/api/note")
		if err != nil {
			t.Fatalf("GET note: %v", err)
		}
		snap = nil
		json.NewDecoder(resp.Body).Decode(&snap)
		resp.Body.Close()
		if len(snap) == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("note = %+v, want one entry", snap)
		}
		time.Sleep(5 * time.Millisecond)
	}
	if snap[0].Text != "안녕하세요" || snap[0].Speaker != "A" {
		t.Fatalf("entry = %+v", snap[0])
	}

	// The log survives stop.
	postJSON(t, srv.URL+"/api/stop", nil).Body.Close()
	resp, _ = http.Get(srv.URL + "/api/note")
	snap = nil
	json.NewDecoder(resp.Body).Decode(&snap)
	resp.Body.Close()
	if len(snap) != 1 {
		t.Fatalf("note after stop = %+v, want one entry", snap)
	}
}

func TestAudioIngest(t *testing.T) {
	batch := &countingBatch{}
	_, srv := newTestServer(t, Config{
		NewSession: testSessionFactory(&testStream{}, batch),
	})

	postJSON(t, srv.URL+"/api/start", nil).Body.Close()

	wsAddr := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/audio"
	conn, _, err := websocket.DefaultDialer.Dial(wsAddr, nil)
	if err != nil {
		t.Fatalf("dial audio socket: %v", err)
	}
	defer conn.Close()

	// SampleRate 10 and a 1s window mean 20 bytes cut a window.
	if err := conn.WriteMessage(websocket.BinaryMessage, make([]byte, 40)); err != nil {
		t.Fatalf("send frame: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for batch.calls.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("batch transcriber never saw a window")
		}
		time.Sleep(5 * time.Millisecond)
	}

	postJSON(t, srv.URL+"/api/stop", nil).Body.Close()
}

func TestAudioWithoutSession(t *testing.T) {
	_, srv := newTestServer(t, Config{})
	resp, err := http.Get(srv.URL + "/api/audio")
	if err != nil {
		t.Fatalf("GET audio: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409", resp.StatusCode)
	}
}

func TestRagChat(t *testing.T) {
	gen := &scriptedGen{
		dispatch: `{"action":"full_notes"}`,
	}
	agent := rag.NewAgent(gen, rag.NewStore(nil, vecstore.NewMemory()), kv.NewMemory())
	s, srv := newTestServer(t, Config{Agent: agent})

	// New wires the agent to the live meeting log.
	stream := &testStream{events: []speech.Event{
		{SpeakerID: "spk-1", Text: "예산을 확정합시다", Final: true},
	}}
	s.cfg.NewSession = testSessionFactory(stream, &countingBatch{})
	postJSON(t, srv.URL+"/api/start", nil).Body.Close()

	deadline := time.Now().Add(5 * time.Second)
	var got string
	for {
		got = decodeAnswer(t, postJSON(t, srv.URL+"/api/rag/chat", chatRequest{Question: "회의록 보여줘"}))
		if strings.Contains(got, "예산을 확정합시다") {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("chat = %q, want the live notes", got)
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !strings.Contains(got, "[A | stream]") {
		t.Fatalf("chat = %q, want rendered log lines", got)
	}
}

func TestRagChatValidation(t *testing.T) {
	agent := rag.NewAgent(&scriptedGen{}, rag.NewStore(nil, vecstore.NewMemory()), kv.NewMemory())
	_, srv := newTestServer(t, Config{Agent: agent})

	resp := postJSON(t, srv.URL+"/api/rag/chat", chatRequest{Question: "  "})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestUnconfiguredEndpoints(t *testing.T) {
	_, srv := newTestServer(t, Config{})

	paths := []string{
		"/api/note/summary",
		"/api/note/summaryall",
		"/api/note/share",
		"/api/rag/upload",
		"/api/rag/chat",
	}
	for _, p := range paths {
		resp := postJSON(t, srv.URL+p, map[string]string{})
		resp.Body.Close()
		if resp.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("%s status = %d, want 503", p, resp.StatusCode)
		}
	}

	resp, _ := http.Get(srv.URL + "/api/comments/주간")
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("comments status = %d, want 503", resp.StatusCode)
	}
}

func TestSummaryEndpoint(t *testing.T) {
	gen := &scriptedGen{answer: "[문단별 요약]\n1. 예산 확정"}
	_, srv := newTestServer(t, Config{Summarizer: summary.New(gen, "")})

	got := decodeAnswer(t, postJSON(t, srv.URL+"/api/note/summary", noteRequest{
		Title: "8월 30일 회의",
		Text:  "[A | batch] 예산을 확정합시다",
	}))
	if got != "[문단별 요약]\n1. 예산 확정" {
		t.Fatalf("summary = %q", got)
	}
}

func TestShare(t *testing.T) {
	var mailSent atomic.Bool
	graphSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/oauth2/v2.0/token") {
			json.NewEncoder(w).Encode(map[string]any{"access_token": "tok", "expires_in": 3600})
			return
		}
		if strings.HasSuffix(r.URL.Path, "/sendMail") {
			mailSent.Store(true)
			w.WriteHeader(http.StatusAccepted)
			return
		}
		http.NotFound(w, r)
	}))
	defer graphSrv.Close()

	wikiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/wiki/rest/api/content/search":
			json.NewEncoder(w).Encode(map[string]any{
				"results": []map[string]any{
					{"id": "10", "title": "주간 회의록", "_links": map[string]string{"webui": "/pages/10"}},
				},
			})
		case r.URL.Path == "/wiki/rest/api/content" && r.Method == http.MethodPost:
			json.NewEncoder(w).Encode(map[string]string{"id": "11"})
		case strings.HasPrefix(r.URL.Path, "/wiki/rest/api/content/11"):
			json.NewEncoder(w).Encode(map[string]any{
				"id":     "11",
				"title":  "8월 30일 회의록",
				"_links": map[string]string{"webui": "/pages/11"},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer wikiSrv.Close()

	wc := wiki.New(wikiSrv.URL, "TEAM", "bot@example.com", "token")
	gc := msgraph.New("t", "c", "s", "bot@example.com", msgraph.WithEndpoints(graphSrv.URL, graphSrv.URL))
	_, srv := newTestServer(t, Config{Wiki: wc, Graph: gc})

	got := decodeAnswer(t, postJSON(t, srv.URL+"/api/note/share", shareRequest{
		Label:        "주간",
		Participants: []string{"ayoung@example.com"},
		Title:        "8월 30일 회의록",
		Content:      "<p>본문</p>",
	}))
	if !strings.HasSuffix(got, "/wiki/pages/11") {
		t.Fatalf("share answer = %q, want the page URL", got)
	}
	if !mailSent.Load() {
		t.Fatal("mail was not sent")
	}
}

func TestCORSPreflight(t *testing.T) {
	_, srv := newTestServer(t, Config{AllowedOrigins: []string{"https://app.example.com"}})

	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/api/start", nil)
	req.Header.Set("Origin", "https://app.example.com")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("OPTIONS: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Fatalf("allow-origin = %q", got)
	}

	req, _ = http.NewRequest(http.MethodOptions, srv.URL+"/api/start", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	resp, _ = http.DefaultClient.Do(req)
	resp.Body.Close()
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("allow-origin for denied origin = %q, want empty", got)
	}
}
