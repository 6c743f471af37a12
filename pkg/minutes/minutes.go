// Package minutes implements the meeting-log core: an append-only ledger of
// speaker-attributed utterances fed by two transcription sources, a
// reconciler that merges the low-latency stream against higher-accuracy
// batch windows, and an identity resolver that normalizes speaker labels
// from self-introductions found in the text.
//
// Two producers feed one [Log] per session: the streaming recognizer appends
// Pending entries as it emits results, and every fixed window the batch
// recognizer triggers a [Reconciler] pass that replaces the Pending suffix
// with Finalized entries. Finalized entries are immutable except for
// speaker relabeling, which never changes text, order, or count.
package minutes

import (
	"strings"
	"sync"

	"github.com/umeet/scribe/pkg/jsontime"
)

// Source records which recognizer produced an utterance.
type Source string

const (
	// SourceStream is the low-latency streaming diarized recognizer.
	SourceStream Source = "stream"

	// SourceBatch is the windowed batch recognizer.
	SourceBatch Source = "batch"
)

// Status is the finalization state of an utterance.
type Status string

const (
	// Pending entries may still be overwritten by a reconciliation pass.
	Pending Status = "pending"

	// Final entries are immutable; only the speaker label may be rewritten.
	Final Status = "final"
)

// Utterance is one attributable unit of speech.
type Utterance struct {
	// Speaker is either an opaque per-session label ("A", "B", …,
	// "Unknown") or a resolved human name.
	Speaker string `json:"speaker"`

	// Text is the trimmed, non-empty content.
	Text string `json:"text"`

	Source Source `json:"source"`
	Status Status `json:"status,omitempty"`

	// At is when the utterance was observed.
	At jsontime.Milli `json:"at,omitzero"`
}

// UnknownSpeaker is the label assigned when the recognizer reports no
// speaker identifier.
const UnknownSpeaker = "Unknown"

// SpeakerRegistry maps opaque recognizer speaker identifiers to short
// display labels assigned deterministically in first-seen order: "A", "B",
// …, "Z", "AA", "AB", and so on. It is scoped to one session and holds no
// cross-session state.
type SpeakerRegistry struct {
	mu     sync.Mutex
	labels map[string]string
}

// NewSpeakerRegistry creates an empty registry.
func NewSpeakerRegistry() *SpeakerRegistry {
	return &SpeakerRegistry{labels: make(map[string]string)}
}

// AssignOrGet returns the display label for the identifier, assigning the
// next label in sequence on first sight. An empty identifier maps to
// [UnknownSpeaker] without consuming a label.
func (r *SpeakerRegistry) AssignOrGet(id string) string {
	if strings.TrimSpace(id) == "" {
		return UnknownSpeaker
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if label, ok := r.labels[id]; ok {
		return label
	}
	label := letterLabel(len(r.labels))
	r.labels[id] = label
	return label
}

// Len returns the number of identifiers seen so far.
func (r *SpeakerRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.labels)
}

// Reset discards all assignments.
func (r *SpeakerRegistry) Reset() {
	r.mu.Lock()
	r.labels = make(map[string]string)
	r.mu.Unlock()
}

// letterLabel converts a zero-based index to a spreadsheet-style column
// label: 0 → "A", 25 → "Z", 26 → "AA".
func letterLabel(n int) string {
	var b []byte
	for n >= 0 {
		b = append([]byte{byte('A' + n%26)}, b...)
		n = n/26 - 1
	}
	return string(b)
}
