package minutes

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestReconcileEmptyWindowNoOp(t *testing.T) {
	log := NewLog()
	log.Append(pendingUtt("A", "안녕하세요"))

	called := false
	rec := NewReconciler(log, JudgeFunc(func(ctx context.Context, pending []Utterance, batchText string) ([]Utterance, error) {
		called = true
		return nil, nil
	}))

	for _, text := range []string{"", "   ", "\n\t"} {
		merged, err := rec.Reconcile(context.Background(), text)
		if err != nil {
			t.Fatalf("Reconcile(%q): %v", text, err)
		}
		if merged != nil {
			t.Fatalf("Reconcile(%q) finalized %d entries, want none", text, len(merged))
		}
	}
	if called {
		t.Fatal("judge called for blank transcript")
	}
	if got := log.Snapshot()[0].Status; got != Pending {
		t.Fatalf("entry status = %q, want %q", got, Pending)
	}
}

func TestReconcileEmptyPendingNoOp(t *testing.T) {
	log := NewLog()

	rec := NewReconciler(log, JudgeFunc(func(ctx context.Context, pending []Utterance, batchText string) ([]Utterance, error) {
		t.Fatal("judge called with no pending entries")
		return nil, nil
	}))
	if _, err := rec.Reconcile(context.Background(), "whatever"); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
}

func TestReconcileJudgeErrorKeepsPending(t *testing.T) {
	log := NewLog()
	log.Append(pendingUtt("A", "안녕하세요"), pendingUtt("B", "반갑습니다"))

	boom := errors.New("model unavailable")
	rec := NewReconciler(log, JudgeFunc(func(ctx context.Context, pending []Utterance, batchText string) ([]Utterance, error) {
		return nil, boom
	}))

	_, err := rec.Reconcile(context.Background(), "안녕하세요 반갑습니다")
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped judge error", err)
	}
	for i, u := range log.Snapshot() {
		if u.Status != Pending {
			t.Fatalf("entry %d finalized by failed pass", i)
		}
	}
}

func TestReconcileRejectsDegenerateJudgment(t *testing.T) {
	tests := []struct {
		name   string
		result []Utterance
	}{
		{"empty result", []Utterance{}},
		{"blank text", []Utterance{{Speaker: "A", Text: "   ", Source: SourceBatch}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := NewLog()
			log.Append(pendingUtt("A", "안녕하세요"))
			rec := NewReconciler(log, JudgeFunc(func(ctx context.Context, pending []Utterance, batchText string) ([]Utterance, error) {
				return tt.result, nil
			}))

			_, err := rec.Reconcile(context.Background(), "text")
			if !errors.Is(err, ErrBadJudgment) {
				t.Fatalf("err = %v, want ErrBadJudgment", err)
			}
			if got := log.Snapshot()[0].Status; got != Pending {
				t.Fatalf("status = %q after rejected judgment, want %q", got, Pending)
			}
		})
	}
}

// The end-to-end shape: one pending streaming entry, one batch window,
// judgment keeps the streaming text. The log length stays 1 and the entry
// is finalized.
func TestReconcileFinalizesRun(t *testing.T) {
	log := NewLog()
	log.Append(Utterance{Speaker: "S1", Text: "안녕하세요, 반갑습니다", Source: SourceStream, Status: Pending})

	rec := NewReconciler(log, JudgeFunc(func(ctx context.Context, pending []Utterance, batchText string) ([]Utterance, error) {
		if batchText != "안녕하세요 반갑습니다" {
			t.Fatalf("batchText = %q", batchText)
		}
		return []Utterance{{Speaker: "S1", Text: "안녕하세요, 반갑습니다", Source: SourceBatch}}, nil
	}))

	merged, err := rec.Reconcile(context.Background(), "안녕하세요 반갑습니다")
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(merged) != 1 {
		t.Fatalf("merged %d entries, want 1", len(merged))
	}

	snap := log.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("log length = %d, want 1", len(snap))
	}
	if snap[0].Status != Final {
		t.Fatalf("status = %q, want %q", snap[0].Status, Final)
	}
	if snap[0].Text != "안녕하세요, 반갑습니다" {
		t.Fatalf("text = %q", snap[0].Text)
	}
	if _, run := log.PendingRun(); len(run) != 0 {
		t.Fatalf("pending run not cleared: %v", run)
	}
}

// The batch may segment differently than the stream: two pending entries
// replaced by one merged entry.
func TestReconcileMergesSegments(t *testing.T) {
	log := NewLog()
	log.Append(pendingUtt("A", "안녕"), pendingUtt("A", "하세요"))

	rec := NewReconciler(log, JudgeFunc(func(ctx context.Context, pending []Utterance, batchText string) ([]Utterance, error) {
		return []Utterance{{Speaker: "A", Text: "안녕하세요", Source: SourceBatch}}, nil
	}))

	if _, err := rec.Reconcile(context.Background(), "안녕하세요"); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	snap := log.Snapshot()
	if len(snap) != 1 || snap[0].Text != "안녕하세요" {
		t.Fatalf("log = %v, want single merged entry", snap)
	}
}

// Two overlapping windows fired concurrently must produce exactly one
// winner: the second pass sees no pending entries and becomes a no-op.
func TestReconcileAtMostOnce(t *testing.T) {
	log := NewLog()
	log.Append(pendingUtt("A", "안녕하세요"))

	var judgeCalls int
	rec := NewReconciler(log, JudgeFunc(func(ctx context.Context, pending []Utterance, batchText string) ([]Utterance, error) {
		judgeCalls++
		return []Utterance{{Speaker: "A", Text: "안녕하세요", Source: SourceBatch}}, nil
	}))

	var wg sync.WaitGroup
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := rec.Reconcile(context.Background(), "안녕하세요")
			if err != nil {
				t.Errorf("Reconcile: %v", err)
			}
		}()
	}
	wg.Wait()

	if judgeCalls != 1 {
		t.Fatalf("judge called %d times, want 1", judgeCalls)
	}
	snap := log.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("log length = %d after concurrent passes, want 1 (no duplication)", len(snap))
	}
	if snap[0].Status != Final {
		t.Fatalf("status = %q, want %q", snap[0].Status, Final)
	}
}

// Appends landing during a pass extend the pending run but are not
// consumed by it.
func TestReconcileLeavesConcurrentAppends(t *testing.T) {
	log := NewLog()
	log.Append(pendingUtt("A", "first"))

	rec := NewReconciler(log, JudgeFunc(func(ctx context.Context, pending []Utterance, batchText string) ([]Utterance, error) {
		// Simulates the streaming producer racing the pass.
		log.Append(pendingUtt("B", "late"))
		out := make([]Utterance, len(pending))
		copy(out, pending)
		for i := range out {
			out[i].Source = SourceBatch
		}
		return out, nil
	}))

	if _, err := rec.Reconcile(context.Background(), "first"); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	snap := log.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("log length = %d, want 2", len(snap))
	}
	if snap[0].Status != Final || snap[0].Text != "first" {
		t.Fatalf("finalized entry = %+v", snap[0])
	}
	if snap[1].Status != Pending || snap[1].Text != "late" {
		t.Fatalf("late append = %+v, want untouched pending", snap[1])
	}
}
