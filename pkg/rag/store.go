// Package rag implements retrieval-augmented answering over meeting notes:
// a chunk store that embeds and indexes note text, and a chat agent that
// answers questions through a closed set of capabilities.
package rag

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/umeet/scribe/pkg/embed"
	"github.com/umeet/scribe/pkg/vecstore"
)

// Chunk is one indexed fragment of a document or note.
type Chunk struct {
	ID     string `json:"id"`
	Source string `json:"source"` // document title or note identifier
	Seq    int    `json:"seq"`    // position within the source
	Text   string `json:"text"`
}

const (
	// DefaultChunkSize is the chunk window in runes.
	DefaultChunkSize = 800

	// DefaultChunkOverlap is how many runes consecutive chunks share.
	DefaultChunkOverlap = 200
)

// SplitText splits text into rune windows of the given size with the given
// overlap. Size must be positive and overlap must be smaller than size.
func SplitText(text string, size, overlap int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	var out []string
	step := size - overlap
	for start := 0; start < len(runes); start += step {
		end := min(start+size, len(runes))
		piece := strings.TrimSpace(string(runes[start:end]))
		if piece != "" {
			out = append(out, piece)
		}
		if end == len(runes) {
			break
		}
	}
	return out
}

// Store embeds and indexes text chunks for similarity search.
//
// It keeps chunk text in memory alongside a [vecstore.Index] of their
// embeddings. Safe for concurrent use.
type Store struct {
	embedder embed.Embedder
	index    vecstore.Index

	size    int
	overlap int

	mu     sync.RWMutex
	chunks map[string]Chunk
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithChunking overrides the chunk window size and overlap (in runes).
func WithChunking(size, overlap int) StoreOption {
	return func(s *Store) {
		s.size = size
		s.overlap = overlap
	}
}

// NewStore creates an empty Store over the given embedder and index.
func NewStore(embedder embed.Embedder, index vecstore.Index, opts ...StoreOption) *Store {
	s := &Store{
		embedder: embedder,
		index:    index,
		size:     DefaultChunkSize,
		overlap:  DefaultChunkOverlap,
		chunks:   make(map[string]Chunk),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// AddDocument splits text into chunks, embeds them, and adds them to the
// index under the given source name. Returns the number of chunks added.
func (s *Store) AddDocument(ctx context.Context, source, text string) (int, error) {
	pieces := SplitText(text, s.size, s.overlap)
	if len(pieces) == 0 {
		return 0, nil
	}

	vecs, err := s.embedder.EmbedBatch(ctx, pieces)
	if err != nil {
		return 0, fmt.Errorf("rag: embed %q: %w", source, err)
	}

	ids := make([]string, len(pieces))
	chunks := make([]Chunk, len(pieces))
	for i, piece := range pieces {
		id := uuid.NewString()
		ids[i] = id
		chunks[i] = Chunk{ID: id, Source: source, Seq: i, Text: piece}
	}
	if err := s.index.BatchInsert(ids, vecs); err != nil {
		return 0, fmt.Errorf("rag: index %q: %w", source, err)
	}

	s.mu.Lock()
	for _, c := range chunks {
		s.chunks[c.ID] = c
	}
	s.mu.Unlock()
	return len(chunks), nil
}

// Search returns up to topK chunks most similar to the query, closest
// first.
func (s *Store) Search(ctx context.Context, query string, topK int) ([]Chunk, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("rag: embed query: %w", err)
	}
	matches, err := s.index.Search(vec, topK)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Chunk, 0, len(matches))
	for _, m := range matches {
		if c, ok := s.chunks[m.ID]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

// Sources returns the distinct source names currently indexed, sorted.
func (s *Store) Sources() []string {
	s.mu.RLock()
	seen := make(map[string]bool)
	for _, c := range s.chunks {
		seen[c.Source] = true
	}
	s.mu.RUnlock()

	out := make([]string, 0, len(seen))
	for src := range seen {
		out = append(out, src)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of indexed chunks.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}
