// Package store implements the snippet store: the thin serializer layer
// spec.md §1 describes sitting directly on top of internal/engine's
// B+Tree/buffer-pool/WAL stack.
package store

import (
	"time"

	"github.com/google/uuid"
)

// Snippet is one stored code snippet.
type Snippet struct {
	ID        uuid.UUID
	Name      string
	Language  string
	Content   []byte
	Tags      []string
	CreatedAt int64 // unix seconds
	UpdatedAt int64
}

// NewSnippet builds a Snippet with a fresh id and current timestamps.
func NewSnippet(name, language string, content []byte, tags []string) Snippet {
	now := time.Now().Unix()
	return Snippet{
		ID:        uuid.New(),
		Name:      name,
		Language:  language,
		Content:   content,
		Tags:      append([]string(nil), tags...),
		CreatedAt: now,
		UpdatedAt: now,
	}
}
