package journal

import (
	"context"
	"errors"
	"sort"
	"sync"

	"tiendapos/client/internal/domain"
)

var ErrNotFound = errors.New("journal entry not found")

// Journal records every order submission attempt on the local till, with its
// idempotency token and outcome, so the till can be audited after a network
// incident. It is written best-effort: a journal failure never blocks a sale.
type Journal interface {
	Append(ctx context.Context, entry domain.JournalEntry) error
	UpdateStatus(ctx context.Context, id string, status string, serverOrderID int64, detail string) error
	ListByShop(ctx context.Context, shopID int64, limit int) ([]domain.JournalEntry, error)
}

// MemoryJournal is the in-process implementation used without DATABASE_URL
// and in tests.
type MemoryJournal struct {
	mu      sync.RWMutex
	entries map[string]domain.JournalEntry
}

func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{entries: make(map[string]domain.JournalEntry)}
}

func (j *MemoryJournal) Append(_ context.Context, entry domain.JournalEntry) error {
	if entry.ID == "" {
		return ErrNotFound
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries[entry.ID] = entry
	return nil
}

func (j *MemoryJournal) UpdateStatus(_ context.Context, id string, status string, serverOrderID int64, detail string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	entry, ok := j.entries[id]
	if !ok {
		return ErrNotFound
	}
	entry.Status = status
	entry.ServerOrderID = serverOrderID
	entry.Detail = detail
	j.entries[id] = entry
	return nil
}

func (j *MemoryJournal) ListByShop(_ context.Context, shopID int64, limit int) ([]domain.JournalEntry, error) {
	if limit < 1 {
		limit = 100
	}

	j.mu.RLock()
	defer j.mu.RUnlock()

	out := make([]domain.JournalEntry, 0, len(j.entries))
	for _, entry := range j.entries {
		if entry.ShopID == shopID {
			out = append(out, entry)
		}
	}
	sort.Slice(out, func(i, k int) bool {
		return out[i].CreatedAt.After(out[k].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
