package minutes

import (
	"fmt"
	"sync"
)

// Log is the ordered, append-only meeting ledger for one session.
//
// All mutating operations are serialized by an internal mutex, so a
// [Log.Snapshot] never observes a half-applied replacement. Finalized
// entries are never removed or reordered; the only mutation they admit is
// a speaker relabel via [Log.Relabel].
type Log struct {
	mu      sync.Mutex
	entries []Utterance
}

// NewLog creates an empty meeting log.
func NewLog() *Log {
	return &Log{}
}

// Append adds utterances to the end of the log, preserving their relative
// order.
func (l *Log) Append(utts ...Utterance) {
	l.mu.Lock()
	l.entries = append(l.entries, utts...)
	l.mu.Unlock()
}

// Len returns the number of entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Snapshot returns a point-in-time copy of the log for downstream
// consumers. The copy is independent of subsequent mutation.
func (l *Log) Snapshot() []Utterance {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Utterance, len(l.entries))
	copy(out, l.entries)
	return out
}

// PendingRun returns the start index and a copy of the contiguous run of
// Pending entries at the tail of the log. The run is what a reconciliation
// pass competes against; entries appended after the call extend the run
// but do not shift its start, because only reconciliation finalizes
// entries and passes are serialized by the caller.
func (l *Log) PendingRun() (start int, run []Utterance) {
	l.mu.Lock()
	defer l.mu.Unlock()
	start = len(l.entries)
	for start > 0 && l.entries[start-1].Status == Pending {
		start--
	}
	run = make([]Utterance, len(l.entries)-start)
	copy(run, l.entries[start:])
	return start, run
}

// ReplaceRange atomically replaces n entries beginning at start with the
// finalized replacement. Every replaced entry must be Pending; entries
// outside [start, start+n) keep their relative order. Each replacement
// entry is marked Final.
func (l *Log) ReplaceRange(start, n int, finalized []Utterance) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if start < 0 || n < 0 || start+n > len(l.entries) {
		return fmt.Errorf("minutes: replace range [%d,%d) out of bounds (len %d)", start, start+n, len(l.entries))
	}
	for i := start; i < start+n; i++ {
		if l.entries[i].Status != Pending {
			return fmt.Errorf("minutes: entry %d is not pending", i)
		}
	}
	repl := make([]Utterance, len(finalized))
	copy(repl, finalized)
	for i := range repl {
		repl[i].Status = Final
	}
	out := make([]Utterance, 0, len(l.entries)-n+len(repl))
	out = append(out, l.entries[:start]...)
	out = append(out, repl...)
	out = append(out, l.entries[start+n:]...)
	l.entries = out
	return nil
}

// Relabel rewrites the speaker field of every entry whose current label is
// a key in mapping. Order, count, and text are untouched. Applying the
// same mapping twice is a no-op the second time as long as the mapping's
// values are not themselves keys.
func (l *Log) Relabel(mapping map[string]string) {
	if len(mapping) == 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.entries {
		if name, ok := mapping[l.entries[i].Speaker]; ok {
			l.entries[i].Speaker = name
		}
	}
}
