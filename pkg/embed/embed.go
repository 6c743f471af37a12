// Package embed provides a text embedding interface for semantic search
// over meeting notes and uploaded documents.
//
// An Embedder converts text into dense vector representations suitable for
// similarity search. One remote implementation is provided: [OpenAI], which
// also works with any OpenAI-compatible provider via WithBaseURL.
package embed

import (
	"context"
	"errors"
)

// Embedder converts text into dense float32 vectors.
type Embedder interface {
	// Embed returns the embedding vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns embedding vectors for multiple texts.
	// Implementations may split large batches into smaller API calls
	// transparently.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the dimensionality of the output vectors.
	Dimension() int
}

// ErrEmptyInput is returned when the input text is empty.
var ErrEmptyInput = errors.New("embed: empty input")
