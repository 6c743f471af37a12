// Package kv provides a small key-value store with hierarchical path-based
// keys, used for chat-agent thread history and archived meeting notes.
// Keys are string slices (e.g., ["chat", "thread-1", "0017"]) joined with
// ':' for storage.
//
// A BadgerDB-backed implementation serves production; an in-memory
// implementation serves tests.
package kv

import (
	"context"
	"errors"
	"iter"
	"strings"
)

// ErrNotFound is returned when a key does not exist in the store.
var ErrNotFound = errors.New("kv: not found")

// Key is a hierarchical path represented as string segments. Segments
// must not contain ':'.
type Key []string

// String returns the encoded form of the key.
func (k Key) String() string {
	return strings.Join(k, ":")
}

// Entry is a key-value pair yielded by List.
type Entry struct {
	Key   Key
	Value []byte
}

// Store is a key-value store with path-based keys.
type Store interface {
	// Get retrieves the value for a key. Returns ErrNotFound if absent.
	Get(ctx context.Context, key Key) ([]byte, error)

	// Set stores a key-value pair, overwriting any existing value.
	Set(ctx context.Context, key Key, value []byte) error

	// Delete removes a key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key Key) error

	// List iterates entries whose key starts with prefix, in
	// lexicographic order of the encoded key.
	List(ctx context.Context, prefix Key) iter.Seq2[Entry, error]

	// Close releases resources held by the store.
	Close() error
}

func encode(k Key) []byte {
	return []byte(strings.Join(k, ":"))
}

func decode(b []byte) Key {
	return Key(strings.Split(string(b), ":"))
}

// prefixBytes returns the encoded prefix with a trailing separator so
// ["a","b"] does not match ["a","bc"]. An empty prefix matches everything.
func prefixBytes(prefix Key) []byte {
	if len(prefix) == 0 {
		return nil
	}
	return append(encode(prefix), ':')
}
