package minutes

import (
	"context"
	"errors"
	"fmt"
)

// ErrBadResolution is returned when the resolution function's output fails
// to parse or violates the resolution contract. The batch is left
// unchanged; the unresolved opaque labels remain usable.
var ErrBadResolution = errors.New("minutes: resolution output unusable")

// Resolver rewrites the speaker labels of a batch of utterances, binding
// self-introduced names to their speakers and collapsing misrecognized
// name variants. Text, source, and ordering must come back untouched.
type Resolver interface {
	Resolve(ctx context.Context, batch []Utterance) ([]Utterance, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, batch []Utterance) ([]Utterance, error)

// Resolve calls the underlying function.
func (f ResolverFunc) Resolve(ctx context.Context, batch []Utterance) ([]Utterance, error) {
	return f(ctx, batch)
}

// ResolveSpeakers runs the resolver over the batch and returns the batch
// with speaker labels rewritten, plus the label mapping that was applied.
//
// The resolver's output is checked against the contract before anything is
// accepted: same length, same texts in the same order, and no opaque label
// mapped to two different display names within the pass. Any violation
// returns the input batch unchanged together with [ErrBadResolution]; the
// caller logs the failure and carries on with the opaque labels.
func ResolveSpeakers(ctx context.Context, r Resolver, batch []Utterance) ([]Utterance, map[string]string, error) {
	if len(batch) == 0 {
		return batch, nil, nil
	}
	out, err := r.Resolve(ctx, batch)
	if err != nil {
		return batch, nil, fmt.Errorf("minutes: resolve: %w", err)
	}
	mapping, err := resolutionMapping(batch, out)
	if err != nil {
		return batch, nil, err
	}

	resolved := make([]Utterance, len(batch))
	copy(resolved, batch)
	for i := range resolved {
		if name, ok := mapping[resolved[i].Speaker]; ok {
			resolved[i].Speaker = name
		}
	}
	return resolved, mapping, nil
}

// resolutionMapping validates the resolver output against the input and
// derives the old-label → new-label mapping. Labels the resolver left
// alone are absent from the mapping.
func resolutionMapping(in, out []Utterance) (map[string]string, error) {
	if len(out) != len(in) {
		return nil, fmt.Errorf("%w: got %d entries, want %d", ErrBadResolution, len(out), len(in))
	}
	mapping := make(map[string]string)
	for i := range in {
		if out[i].Text != in[i].Text {
			return nil, fmt.Errorf("%w: text changed at %d", ErrBadResolution, i)
		}
		old, name := in[i].Speaker, out[i].Speaker
		if name == "" {
			return nil, fmt.Errorf("%w: empty speaker at %d", ErrBadResolution, i)
		}
		if old == name {
			continue
		}
		if prev, ok := mapping[old]; ok && prev != name {
			return nil, fmt.Errorf("%w: label %q mapped to both %q and %q", ErrBadResolution, old, prev, name)
		}
		mapping[old] = name
	}
	return mapping, nil
}
