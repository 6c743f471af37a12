package minutes

import (
	"context"
	"errors"
	"testing"
)

// Self-introduction precedence: code A fully replaced by the introduced
// name, B keeps its opaque code.
func TestResolveSpeakersSelfIntroduction(t *testing.T) {
	batch := []Utterance{
		finalUtt("A", "저는 민수입니다"),
		finalUtt("A", "안녕하세요"),
		finalUtt("B", "반갑습니다"),
	}

	resolved, mapping, err := ResolveSpeakers(context.Background(), ResolverFunc(func(ctx context.Context, in []Utterance) ([]Utterance, error) {
		out := make([]Utterance, len(in))
		copy(out, in)
		out[0].Speaker = "민수"
		out[1].Speaker = "민수"
		return out, nil
	}), batch)
	if err != nil {
		t.Fatalf("ResolveSpeakers: %v", err)
	}

	want := []string{"민수", "민수", "B"}
	for i, w := range want {
		if resolved[i].Speaker != w {
			t.Fatalf("speaker[%d] = %q, want %q", i, resolved[i].Speaker, w)
		}
	}
	if mapping["A"] != "민수" {
		t.Fatalf("mapping = %v, want A→민수", mapping)
	}
	if _, ok := mapping["B"]; ok {
		t.Fatalf("mapping touched B: %v", mapping)
	}
	// The input batch is not mutated.
	if batch[0].Speaker != "A" {
		t.Fatalf("input batch mutated: %q", batch[0].Speaker)
	}
}

func TestResolveSpeakersErrorLeavesBatch(t *testing.T) {
	batch := []Utterance{finalUtt("A", "안녕하세요")}

	boom := errors.New("bad response")
	out, mapping, err := ResolveSpeakers(context.Background(), ResolverFunc(func(ctx context.Context, in []Utterance) ([]Utterance, error) {
		return nil, boom
	}), batch)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want resolver error", err)
	}
	if mapping != nil {
		t.Fatalf("mapping = %v, want nil", mapping)
	}
	if out[0].Speaker != "A" {
		t.Fatalf("speaker = %q after failed resolution, want %q", out[0].Speaker, "A")
	}
}

func TestResolveSpeakersContractViolations(t *testing.T) {
	batch := []Utterance{
		finalUtt("A", "하나"),
		finalUtt("A", "둘"),
	}

	tests := []struct {
		name string
		out  []Utterance
	}{
		{"length mismatch", []Utterance{finalUtt("민수", "하나")}},
		{"text changed", []Utterance{finalUtt("민수", "하나"), finalUtt("민수", "바뀜")}},
		{"empty speaker", []Utterance{finalUtt("", "하나"), finalUtt("민수", "둘")}},
		{"inconsistent mapping", []Utterance{finalUtt("민수", "하나"), finalUtt("영수", "둘")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolved, _, err := ResolveSpeakers(context.Background(), ResolverFunc(func(ctx context.Context, in []Utterance) ([]Utterance, error) {
				return tt.out, nil
			}), batch)
			if !errors.Is(err, ErrBadResolution) {
				t.Fatalf("err = %v, want ErrBadResolution", err)
			}
			for i := range batch {
				if resolved[i].Speaker != batch[i].Speaker {
					t.Fatalf("speaker[%d] rewritten by rejected resolution", i)
				}
			}
		})
	}
}

func TestResolveSpeakersEmptyBatch(t *testing.T) {
	out, mapping, err := ResolveSpeakers(context.Background(), ResolverFunc(func(ctx context.Context, in []Utterance) ([]Utterance, error) {
		t.Fatal("resolver called for empty batch")
		return nil, nil
	}), nil)
	if err != nil || out != nil || mapping != nil {
		t.Fatalf("empty batch: out=%v mapping=%v err=%v", out, mapping, err)
	}
}
