// Package memory is an in-process EntryWriter used in tests and when the
// Google Sheets backup is not configured but a writer is still wanted.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/Phyllis9783/spendy-map-joy/internal/core"
	ports "github.com/Phyllis9783/spendy-map-joy/internal/sheets"
)

type Store struct {
	mu      sync.Mutex
	entries []core.LedgerEntry
}

var _ ports.EntryWriter = (*Store)(nil)

func New() *Store {
	return &Store{}
}

func (s *Store) Append(_ context.Context, e core.LedgerEntry) (string, error) {
	if err := e.Validate(); err != nil {
		return "", fmt.Errorf("validation failed: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return fmt.Sprintf("row-%d", len(s.entries)), nil
}

// Entries returns a copy of everything appended so far.
func (s *Store) Entries() []core.LedgerEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.LedgerEntry, len(s.entries))
	copy(out, s.entries)
	return out
}
