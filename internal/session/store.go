package session

import (
	"context"
	"fmt"
	"sync"

	"tiendapos/client/internal/domain"
)

// Store persists the per-shop cart snapshot at the process edge. The engine
// itself never touches storage directly; the checkout session calls Save and
// Clear at its persist boundary and Load once on restore.
type Store interface {
	Save(ctx context.Context, snapshot domain.CartSnapshot) error
	Load(ctx context.Context, shopID int64) (*domain.CartSnapshot, bool, error)
	Clear(ctx context.Context, shopID int64) error
}

// Key returns the storage key for a shop's cart snapshot.
func Key(shopID int64) string {
	return fmt.Sprintf("cart_shop_%d", shopID)
}

// MemoryStore keeps snapshots in-process. Used when no redis is configured
// and in tests.
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[string]domain.CartSnapshot
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snapshots: make(map[string]domain.CartSnapshot)}
}

func (s *MemoryStore) Save(_ context.Context, snapshot domain.CartSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[Key(snapshot.ShopID)] = snapshot
	return nil
}

func (s *MemoryStore) Load(_ context.Context, shopID int64) (*domain.CartSnapshot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot, ok := s.snapshots[Key(shopID)]
	if !ok {
		return nil, false, nil
	}
	copied := snapshot
	return &copied, true, nil
}

func (s *MemoryStore) Clear(_ context.Context, shopID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snapshots, Key(shopID))
	return nil
}
