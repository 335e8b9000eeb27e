package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/cardroomd/cardroomd/internal/game"
)

// MemoryStore is a process-local Store for tests and single-node runs
// without Redis. Documents are stored as JSON so reads return independent
// copies, matching the Redis-backed behavior.
type MemoryStore struct {
	mu       sync.RWMutex
	tables   map[string][]byte
	accounts map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tables:   make(map[string][]byte),
		accounts: make(map[string][]byte),
	}
}

// SeedAccount installs an account directly, for tests.
func (s *MemoryStore) SeedAccount(userID string, balance int) {
	data, _ := json.Marshal(&game.Account{ID: userID, Balance: balance})
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[userID] = data
}

func (s *MemoryStore) CreateTable(_ context.Context, table *game.Table) error {
	return s.putTable(table)
}

func (s *MemoryStore) FindTableByID(_ context.Context, tableID string) (*game.Table, error) {
	s.mu.RLock()
	data, ok := s.tables[tableID]
	s.mu.RUnlock()
	if !ok {
		return nil, game.ErrTableNotFound
	}
	var table game.Table
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("decode table %s: %w", tableID, err)
	}
	return &table, nil
}

func (s *MemoryStore) UpdateTableByID(_ context.Context, tableID string, table *game.Table) error {
	s.mu.RLock()
	_, ok := s.tables[tableID]
	s.mu.RUnlock()
	if !ok {
		return game.ErrTableNotFound
	}
	return s.putTable(table)
}

func (s *MemoryStore) FindTables(ctx context.Context, filter game.TableFilter) ([]*game.Table, error) {
	s.mu.RLock()
	ids := make([]string, 0, len(s.tables))
	for id := range s.tables {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	tables := make([]*game.Table, 0, len(ids))
	for _, id := range ids {
		table, err := s.FindTableByID(ctx, id)
		if err != nil {
			continue
		}
		if filter.GameOver != nil && table.GameOver != *filter.GameOver {
			continue
		}
		tables = append(tables, table)
	}
	return tables, nil
}

func (s *MemoryStore) FindAccountByID(_ context.Context, userID string) (*game.Account, error) {
	s.mu.RLock()
	data, ok := s.accounts[userID]
	s.mu.RUnlock()
	if !ok {
		return nil, game.ErrAccountNotFound
	}
	var account game.Account
	if err := json.Unmarshal(data, &account); err != nil {
		return nil, fmt.Errorf("decode account %s: %w", userID, err)
	}
	return &account, nil
}

func (s *MemoryStore) UpdateAccountByID(_ context.Context, userID string, account *game.Account) error {
	data, err := json.Marshal(account)
	if err != nil {
		return fmt.Errorf("encode account %s: %w", userID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[userID] = data
	return nil
}

func (s *MemoryStore) putTable(table *game.Table) error {
	data, err := json.Marshal(table)
	if err != nil {
		return fmt.Errorf("encode table %s: %w", table.ID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[table.ID] = data
	return nil
}
