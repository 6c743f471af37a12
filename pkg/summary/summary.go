// Package summary turns a finalized meeting log into human-readable
// summaries: a per-window progress digest and a full-meeting report with
// action items.
package summary

import (
	"context"
	"fmt"
	"strings"

	"github.com/umeet/scribe/pkg/llm"
	"github.com/umeet/scribe/pkg/minutes"
)

const digestSystem = `당신은 전문 회의록 요약가입니다. 아래는 회의록의 원문 로그입니다.
각 발언에는 발언자가 포함되어 있습니다.

요청사항:
1. 문단별 요약:
   - 각 발언 또는 문단을 읽고 핵심 내용만 추려 한두 문장으로 요약합니다.
   - 요약 시 불필요한 중복은 제거합니다.
2. 시간별 요약:
   - 각 5분 단위로 회의 진행 내용을 요약합니다.
   - 발언자 구분은 필요하지만, 핵심 아이디어 중심으로 정리합니다.

출력 형식:
[문단별 요약]
1. 요약 문장
...

[시간별 요약]
00:00~05:00: 요약 내용
...`

const reportSystem = `당신은 전문 회의록 요약가입니다.
제목에는 적절한 이모지를 사용하고, 가독성 있게 작성하세요.

1. 전체 요약:
   - 회의의 주요 논의 내용과 결론을 한두 문단으로 요약합니다.
2. 주제별 요약:
   - 발언들에서 주제를 도출하고 핵심 내용만 한두 문장으로 요약합니다.
   - 발언자 구분은 유지하되, 중복 내용은 제거합니다.
3. 조치사항(Action Items) 도출:
   - 결정된 작업, 후속 조치, 담당자와 기한을 체크리스트로 정리합니다.

출력 형식:
[전체 요약]
...

[주제별 요약]
1. ...

[조치사항(Action Items)]
- 담당자: 작업 내용 (기한)`

// Summarizer produces meeting summaries through a language model.
type Summarizer struct {
	gen   llm.Generator
	model string
}

// New creates a Summarizer. Model may be empty to use the generator's
// default.
func New(gen llm.Generator, model string) *Summarizer {
	return &Summarizer{gen: gen, model: model}
}

// Digest summarizes raw meeting text paragraph-by-paragraph and by time
// slice. Used for mid-meeting progress views.
func (s *Summarizer) Digest(ctx context.Context, text string) (string, error) {
	out, err := s.gen.Complete(ctx, &llm.Request{
		Model:  s.model,
		System: digestSystem,
		User:   fmt.Sprintf("[회의록 원문]\n---\n%s\n---", text),
	})
	if err != nil {
		return "", fmt.Errorf("summary: digest: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// Report produces the full-meeting report with action items.
func (s *Summarizer) Report(ctx context.Context, title, text string) (string, error) {
	out, err := s.gen.Complete(ctx, &llm.Request{
		Model:  s.model,
		System: reportSystem,
		User:   fmt.Sprintf("[회의록 제목]\n%s\n\n[회의록 원문]\n%s", title, text),
	})
	if err != nil {
		return "", fmt.Errorf("summary: report: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// Render formats utterances as the plain-text log the summarizer and the
// wiki page consume: one "[speaker | source] text" line per utterance.
func Render(utts []minutes.Utterance) string {
	var sb strings.Builder
	for _, u := range utts {
		fmt.Fprintf(&sb, "[%s | %s] %s\n", u.Speaker, u.Source, u.Text)
	}
	return sb.String()
}
