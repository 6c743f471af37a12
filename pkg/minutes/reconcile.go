package minutes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrBadJudgment is returned when the judgment function's output fails to
// parse as the expected structure. The reconciliation pass that received
// it is abandoned; nothing is finalized.
var ErrBadJudgment = errors.New("minutes: judgment output unusable")

// Judge decides, for one reconciliation window, which candidate text wins
// each segment. It is given the Pending entries the streaming recognizer
// produced for the window and the batch recognizer's transcript of the
// same time range, and returns the merged, ordered utterances with
// provenance set.
//
// The returned slice need not have the same cardinality as pending: the
// batch transcript may merge or split segments differently. Any error —
// including output that fails to parse, reported as [ErrBadJudgment] —
// abandons the pass.
type Judge interface {
	Judge(ctx context.Context, pending []Utterance, batchText string) ([]Utterance, error)
}

// JudgeFunc adapts a function to the Judge interface.
type JudgeFunc func(ctx context.Context, pending []Utterance, batchText string) ([]Utterance, error)

// Judge calls the underlying function.
func (f JudgeFunc) Judge(ctx context.Context, pending []Utterance, batchText string) ([]Utterance, error) {
	return f(ctx, pending, batchText)
}

// Reconciler merges batch-window transcripts into the meeting log.
//
// Passes are serialized: two overlapping windows can never apply
// concurrently, so each Pending run is consumed at most once. The judge
// call runs without any lock on the log; the log is locked only to capture
// the Pending run and to apply the replacement.
type Reconciler struct {
	log   *Log
	judge Judge

	mu sync.Mutex // serializes whole passes
}

// NewReconciler creates a Reconciler over the given log.
func NewReconciler(log *Log, judge Judge) *Reconciler {
	return &Reconciler{log: log, judge: judge}
}

// Reconcile runs one pass against the window's batch transcript and
// returns the finalized utterances that replaced the Pending run.
//
// A blank transcript or an empty Pending run is a no-op, not an error:
// the Pending entries stay Pending and are retried when the next window's
// transcript arrives. A judge failure likewise leaves the log untouched.
func (r *Reconciler) Reconcile(ctx context.Context, batchText string) ([]Utterance, error) {
	if strings.TrimSpace(batchText) == "" {
		return nil, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	start, pending := r.log.PendingRun()
	if len(pending) == 0 {
		return nil, nil
	}

	// The external call happens outside the log lock; the run cannot be
	// consumed by anyone else while r.mu is held.
	merged, err := r.judge.Judge(ctx, pending, batchText)
	if err != nil {
		return nil, fmt.Errorf("minutes: reconcile: %w", err)
	}
	if len(merged) == 0 {
		return nil, fmt.Errorf("minutes: reconcile: %w: empty result", ErrBadJudgment)
	}
	for i := range merged {
		if strings.TrimSpace(merged[i].Text) == "" {
			return nil, fmt.Errorf("minutes: reconcile: %w: blank text at %d", ErrBadJudgment, i)
		}
		merged[i].Status = Final
		if merged[i].At.IsZero() && i < len(pending) {
			merged[i].At = pending[i].At
		}
	}

	if err := r.log.ReplaceRange(start, len(pending), merged); err != nil {
		return nil, err
	}
	return merged, nil
}
