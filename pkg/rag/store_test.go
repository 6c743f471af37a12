package rag

import (
	"context"
	"strings"
	"testing"

	"github.com/umeet/scribe/pkg/vecstore"
)

// keywordEmbedder scores texts against a fixed keyword list so related
// texts land near each other without a real model.
type keywordEmbedder struct {
	keywords []string
}

func (e *keywordEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, len(e.keywords))
	for i, kw := range e.keywords {
		if strings.Contains(text, kw) {
			vec[i] = 1
		}
	}
	return vec, nil
}

func (e *keywordEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (e *keywordEmbedder) Dimension() int { return len(e.keywords) }

func newTestStore(opts ...StoreOption) *Store {
	emb := &keywordEmbedder{keywords: []string{"예산", "일정", "채용"}}
	return NewStore(emb, vecstore.NewMemory(), opts...)
}

func TestSplitText(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		size    int
		overlap int
		want    []string
	}{
		{"empty", "", 10, 2, nil},
		{"fits one window", "짧은 글", 10, 2, []string{"짧은 글"}},
		{"windows with overlap", "abcdefghij", 4, 2, []string{"abcd", "cdef", "efgh", "ghij"}},
		{"no overlap", "abcdef", 3, 0, []string{"abc", "def"}},
		{"blank pieces dropped", "ab      ", 2, 0, []string{"ab"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitText(tt.text, tt.size, tt.overlap)
			if len(got) != len(tt.want) {
				t.Fatalf("SplitText = %q, want %q", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("piece %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestSplitTextCountsRunes(t *testing.T) {
	// 6 Korean runes, window of 3: two windows, no mid-rune cuts.
	got := SplitText("가나다라마바", 3, 0)
	want := []string{"가나다", "라마바"}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("SplitText = %q, want %q", got, want)
	}
}

func TestStoreAddAndSearch(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	n, err := s.AddDocument(ctx, "8월 30일 회의록", "다음 분기 예산 배정을 논의했다")
	if err != nil {
		t.Fatalf("AddDocument: %v", err)
	}
	if n != 1 {
		t.Fatalf("chunks added = %d, want 1", n)
	}
	if _, err := s.AddDocument(ctx, "채용 회의록", "신규 채용 일정을 확정했다"); err != nil {
		t.Fatalf("AddDocument: %v", err)
	}
	if s.Len() != 2 {
		t.Fatalf("Len = %d, want 2", s.Len())
	}

	got, err := s.Search(ctx, "예산은 어떻게 되었나요", 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("matches = %d, want 1", len(got))
	}
	if got[0].Source != "8월 30일 회의록" {
		t.Fatalf("source = %q, want the budget note", got[0].Source)
	}
}

func TestStoreSearchEmptyQuery(t *testing.T) {
	s := newTestStore()
	got, err := s.Search(context.Background(), "   ", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if got != nil {
		t.Fatalf("Search(blank) = %v, want nil", got)
	}
}

func TestStoreEmptyDocumentNoOp(t *testing.T) {
	s := newTestStore()
	n, err := s.AddDocument(context.Background(), "빈 문서", "   \n  ")
	if err != nil {
		t.Fatalf("AddDocument: %v", err)
	}
	if n != 0 || s.Len() != 0 {
		t.Fatalf("added = %d, Len = %d, want 0, 0", n, s.Len())
	}
}

func TestStoreSources(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(WithChunking(4, 2))
	s.AddDocument(ctx, "나 문서", "예산 예산 예산")
	s.AddDocument(ctx, "가 문서", "일정 일정 일정")

	got := s.Sources()
	if len(got) != 2 || got[0] != "가 문서" || got[1] != "나 문서" {
		t.Fatalf("Sources = %q, want sorted [가 문서 나 문서]", got)
	}
}
