// Package judge implements the reconciliation judgment and speaker
// resolution functions on top of a language model.
//
// Both calls request schema-constrained output and parse it strictly: any
// deviation from the expected structure is a parse failure that abandons
// the attempt, never a repair. The merge and ordering logic in
// pkg/minutes stays deterministic; the model is the only source of
// nondeterminism.
package judge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/umeet/scribe/pkg/llm"
	"github.com/umeet/scribe/pkg/minutes"
)

// utteranceList is the schema for both judgment and resolution output.
type utteranceList struct {
	Utterances []utteranceItem `json:"utterances"`
}

type utteranceItem struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
	Source  string `json:"source"`
}

var (
	mergeTool = llm.MustNewFuncTool[utteranceList](
		"merged_transcript",
		"The reconciled meeting transcript for one audio window.")

	resolveTool = llm.MustNewFuncTool[utteranceList](
		"resolved_transcript",
		"The transcript with speaker labels normalized.")
)

const mergeSystem = "당신은 회의록을 교정하는 전문 서기입니다. " +
	"두 음성 인식 결과를 비교해 더 정확한 회의록을 만듭니다."

const mergePrompt = `아래는 실시간 스트리밍 인식기가 생성한 회의록입니다:
%s

아래는 같은 구간을 배치 인식기가 인식한 전체 텍스트입니다:
%s

각 발화를 다음 규칙으로 정리하세요:
1. 배치 인식 텍스트를 우선으로 적용합니다.
2. 배치 텍스트가 명백히 잘못 인식되었거나 무의미한 구간은
   스트리밍 발화를 대신 사용합니다.
3. speaker는 스트리밍 회의록의 화자 라벨을 유지합니다.
4. source는 채택한 쪽에 따라 "batch" 또는 "stream"으로 표기합니다.
5. 발화 내용 외의 설명은 절대 포함하지 마세요.`

const resolveSystem = "당신은 회의록의 화자 이름을 정리하는 전문 서기입니다."

const resolvePrompt = `아래는 회의록입니다:
%s

"speaker" 필드를 다음 규칙에 따라 업데이트하세요:
1. 발화 내용에 자기소개(예: "저는 김아영입니다")가 있으면
   해당 발화를 한 화자에게만 그 이름을 지정합니다.
2. 같은 라벨의 다른 발화에도 그 이름을 소급 적용합니다.
3. 자기소개가 없는 화자는 기존 라벨("A", "B" 등)을 유지합니다.
4. 잘못 인식된 이름 변형(예: "김아", "김아란")은 가장 올바른
   하나의 이름으로 통일합니다.
5. text와 source, 발화 순서는 절대 변경하지 마세요.`

// LLM runs the judgment and resolution functions against a [llm.Generator].
// It implements both [minutes.Judge] and [minutes.Resolver].
type LLM struct {
	gen   llm.Generator
	model string
}

var (
	_ minutes.Judge    = (*LLM)(nil)
	_ minutes.Resolver = (*LLM)(nil)
)

// New creates an LLM judge/resolver. Model may be empty to use the
// generator's default.
func New(gen llm.Generator, model string) *LLM {
	return &LLM{gen: gen, model: model}
}

// Judge merges the streaming entries and the batch transcript for one
// window, preferring the batch text per segment unless it is degenerate.
func (l *LLM) Judge(ctx context.Context, pending []minutes.Utterance, batchText string) ([]minutes.Utterance, error) {
	entries, err := marshalEntries(pending)
	if err != nil {
		return nil, err
	}
	call, err := l.gen.Invoke(ctx, &llm.Request{
		Model:  l.model,
		System: mergeSystem,
		User:   fmt.Sprintf(mergePrompt, entries, batchText),
	}, mergeTool)
	if err != nil {
		return nil, err
	}
	out, err := decodeUtterances(call)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", minutes.ErrBadJudgment, err)
	}
	return out, nil
}

// Resolve rewrites speaker labels using self-introduction cues.
func (l *LLM) Resolve(ctx context.Context, batch []minutes.Utterance) ([]minutes.Utterance, error) {
	entries, err := marshalEntries(batch)
	if err != nil {
		return nil, err
	}
	call, err := l.gen.Invoke(ctx, &llm.Request{
		Model:  l.model,
		System: resolveSystem,
		User:   fmt.Sprintf(resolvePrompt, entries),
	}, resolveTool)
	if err != nil {
		return nil, err
	}
	out, err := decodeUtterances(call)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", minutes.ErrBadResolution, err)
	}
	return out, nil
}

// marshalEntries renders utterances as the compact JSON the prompts embed.
// Status is internal state and stays out of the prompt.
func marshalEntries(utts []minutes.Utterance) (string, error) {
	items := make([]utteranceItem, len(utts))
	for i, u := range utts {
		items[i] = utteranceItem{Speaker: u.Speaker, Text: u.Text, Source: string(u.Source)}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeUtterances(call *llm.FuncCall) ([]minutes.Utterance, error) {
	var list utteranceList
	if err := call.Decode(&list); err != nil {
		return nil, err
	}
	if len(list.Utterances) == 0 {
		return nil, errors.New("empty utterance list")
	}
	out := make([]minutes.Utterance, len(list.Utterances))
	for i, item := range list.Utterances {
		src := minutes.Source(strings.ToLower(strings.TrimSpace(item.Source)))
		if src != minutes.SourceStream {
			src = minutes.SourceBatch
		}
		out[i] = minutes.Utterance{
			Speaker: strings.TrimSpace(item.Speaker),
			Text:    strings.TrimSpace(item.Text),
			Source:  src,
		}
	}
	return out, nil
}
