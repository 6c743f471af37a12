package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/umeet/scribe/pkg/jsontime"
	"github.com/umeet/scribe/pkg/kv"
	"github.com/umeet/scribe/pkg/llm"
)

// Capability names the agent may dispatch to. Anything else the model
// produces is refused, never executed.
const (
	capSearchNotes  = "search_notes"
	capFullNotes    = "full_notes"
	capSummarize    = "summarize"
	capExtractTasks = "extract_tasks"
)

// RefusalAnswer is returned when the model requests a capability outside
// the fixed set, or when its dispatch output fails schema validation.
const RefusalAnswer = "요청하신 작업은 지원하지 않습니다. 회의록 검색, 전체 조회, 요약, 할 일 추출만 가능합니다."

type dispatchArgs struct {
	// Action selects the capability to run. One of: search_notes,
	// full_notes, summarize, extract_tasks.
	Action string `json:"action"`

	// Query is the search text for search_notes; empty otherwise.
	Query string `json:"query,omitempty"`
}

var dispatchTool = llm.MustNewFuncTool[dispatchArgs]("dispatch",
	"사용자 질문을 처리할 기능을 선택한다")

const dispatchSystem = `너는 회의록 비서의 라우터다. 사용자 질문을 보고 아래 기능 중 하나를 선택하라.

- search_notes: 회의록과 업로드된 문서에서 관련 내용을 검색해 답할 때. query에 검색어를 넣는다.
- full_notes: 현재 회의록 전체를 보여 달라고 할 때.
- summarize: 회의 내용을 요약해 달라고 할 때.
- extract_tasks: 할 일, 액션 아이템을 뽑아 달라고 할 때.

반드시 위 네 가지 중 하나만 선택한다.`

const answerSystem = `너는 회의록 비서다. 아래 참고 자료만 근거로 질문에 답하라.
자료에 없는 내용은 지어내지 말고 모른다고 답하라. 한국어로 간결하게 답한다.`

// Turn is one user/assistant exchange persisted per thread.
type Turn struct {
	Role string         `msgpack:"role"` // "user" or "assistant"
	Text string         `msgpack:"text"`
	At   jsontime.Milli `msgpack:"at"`
}

// Agent answers questions about meeting notes through a fixed capability
// set, keeping per-thread conversation history in a [kv.Store].
type Agent struct {
	gen     llm.Generator
	store   *Store
	history kv.Store

	// Notes returns the rendered live meeting notes; may be nil when no
	// meeting is in progress.
	Notes func() string

	topK       int
	maxHistory int
}

// AgentOption configures an Agent.
type AgentOption func(*Agent)

// WithTopK sets how many chunks search_notes retrieves (default 5).
func WithTopK(k int) AgentOption {
	return func(a *Agent) { a.topK = k }
}

// WithMaxHistory caps how many prior turns are replayed into the prompt
// (default 20).
func WithMaxHistory(n int) AgentOption {
	return func(a *Agent) { a.maxHistory = n }
}

// NewAgent creates an Agent over the given generator, chunk store, and
// history store.
func NewAgent(gen llm.Generator, store *Store, history kv.Store, opts ...AgentOption) *Agent {
	a := &Agent{
		gen:        gen,
		store:      store,
		history:    history,
		topK:       5,
		maxHistory: 20,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Chat answers one question in the given thread. The question and answer
// are appended to the thread history.
func (a *Agent) Chat(ctx context.Context, threadID, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", errors.New("rag: empty question")
	}

	answer, err := a.answer(ctx, threadID, question)
	if err != nil {
		return "", err
	}

	if err := a.appendTurn(ctx, threadID, Turn{Role: "user", Text: question, At: jsontime.NowEpochMilli()}); err != nil {
		return "", err
	}
	if err := a.appendTurn(ctx, threadID, Turn{Role: "assistant", Text: answer, At: jsontime.NowEpochMilli()}); err != nil {
		return "", err
	}
	return answer, nil
}

func (a *Agent) answer(ctx context.Context, threadID, question string) (string, error) {
	call, err := a.gen.Invoke(ctx, &llm.Request{
		System: dispatchSystem,
		User:   question,
	}, dispatchTool)
	if err != nil {
		return "", fmt.Errorf("rag: dispatch: %w", err)
	}
	var args dispatchArgs
	if err := call.Decode(&args); err != nil {
		// Malformed dispatch output is refused rather than guessed at.
		return RefusalAnswer, nil
	}

	var material string
	switch args.Action {
	case capSearchNotes:
		query := args.Query
		if strings.TrimSpace(query) == "" {
			query = question
		}
		chunks, err := a.store.Search(ctx, query, a.topK)
		if err != nil {
			return "", err
		}
		if len(chunks) == 0 {
			return "관련된 내용을 찾지 못했습니다.", nil
		}
		var b strings.Builder
		for _, c := range chunks {
			fmt.Fprintf(&b, "[%s]\n%s\n\n", c.Source, c.Text)
		}
		material = b.String()
	case capFullNotes, capSummarize, capExtractTasks:
		material = a.liveNotes()
		if material == "" {
			return "진행 중인 회의록이 없습니다.", nil
		}
		if args.Action == capFullNotes {
			return material, nil
		}
	default:
		return RefusalAnswer, nil
	}

	user := a.buildPrompt(ctx, threadID, args.Action, material, question)
	answer, err := a.gen.Complete(ctx, &llm.Request{
		System: answerSystem,
		User:   user,
	})
	if err != nil {
		return "", fmt.Errorf("rag: answer: %w", err)
	}
	return strings.TrimSpace(answer), nil
}

func (a *Agent) liveNotes() string {
	if a.Notes == nil {
		return ""
	}
	return strings.TrimSpace(a.Notes())
}

func (a *Agent) buildPrompt(ctx context.Context, threadID, action, material, question string) string {
	var b strings.Builder

	if turns := a.loadHistory(ctx, threadID); len(turns) > 0 {
		b.WriteString("이전 대화:\n")
		for _, t := range turns {
			fmt.Fprintf(&b, "%s: %s\n", t.Role, t.Text)
		}
		b.WriteString("\n")
	}

	b.WriteString("참고 자료:\n")
	b.WriteString(material)
	b.WriteString("\n\n")

	switch action {
	case capSummarize:
		b.WriteString("위 회의 내용을 핵심 위주로 요약하라.\n\n")
	case capExtractTasks:
		b.WriteString("위 회의 내용에서 할 일(액션 아이템)을 담당자와 함께 목록으로 추출하라.\n\n")
	}

	fmt.Fprintf(&b, "질문: %s", question)
	return b.String()
}

// loadHistory replays the most recent turns of a thread. History failures
// degrade to an empty history rather than failing the chat.
func (a *Agent) loadHistory(ctx context.Context, threadID string) []Turn {
	if a.history == nil {
		return nil
	}
	var turns []Turn
	for entry, err := range a.history.List(ctx, kv.Key{"chat", threadID}) {
		if err != nil {
			return nil
		}
		var t Turn
		if err := msgpack.Unmarshal(entry.Value, &t); err != nil {
			continue
		}
		turns = append(turns, t)
	}
	if len(turns) > a.maxHistory {
		turns = turns[len(turns)-a.maxHistory:]
	}
	return turns
}

func (a *Agent) appendTurn(ctx context.Context, threadID string, t Turn) error {
	if a.history == nil {
		return nil
	}
	// Count existing turns to pick the next sequence number. Threads are
	// short; a scan per append is fine.
	n := 0
	for _, err := range a.history.List(ctx, kv.Key{"chat", threadID}) {
		if err != nil {
			return err
		}
		n++
	}
	val, err := msgpack.Marshal(&t)
	if err != nil {
		return err
	}
	key := kv.Key{"chat", threadID, fmt.Sprintf("%06d", n)}
	return a.history.Set(ctx, key, val)
}
