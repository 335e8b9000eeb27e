package game

import (
	"context"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
)

// Registry owns every live table engine, keyed by table id. It is the
// single path from a table id to its engine for the connection layer.
type Registry struct {
	mu      sync.RWMutex
	engines map[string]*Engine

	store       Store
	broadcaster Broadcaster
	logger      *log.Logger
	engineOpts  []Option
}

// NewRegistry creates an empty registry. The given options are applied to
// every engine it builds.
func NewRegistry(store Store, broadcaster Broadcaster, logger *log.Logger, opts ...Option) *Registry {
	return &Registry{
		engines:     make(map[string]*Engine),
		store:       store,
		broadcaster: broadcaster,
		logger:      logger.WithPrefix("registry"),
		engineOpts:  opts,
	}
}

// Get returns the engine for a table id.
func (r *Registry) Get(tableID string) (*Engine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	engine, ok := r.engines[tableID]
	return engine, ok
}

// TableInfos returns a sanitized snapshot of every live table, for
// lobby listings.
func (r *Registry) TableInfos() []Snapshot {
	r.mu.RLock()
	engines := make([]*Engine, 0, len(r.engines))
	for _, engine := range r.engines {
		engines = append(engines, engine)
	}
	r.mu.RUnlock()

	infos := make([]Snapshot, 0, len(engines))
	for _, engine := range engines {
		infos = append(infos, engine.State())
	}
	return infos
}

// Count returns the number of live tables.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.engines)
}

// CreateTable persists a fresh table owned by ownerID and registers an
// engine for it.
func (r *Registry) CreateTable(ctx context.Context, ownerID string, opts Options) (*Engine, error) {
	table := NewTable(ownerID, opts)
	if err := r.store.CreateTable(ctx, table); err != nil {
		return nil, fmt.Errorf("create table: %w", err)
	}
	engine := r.register(table)
	r.logger.Info("table created", "table", table.ID, "owner", ownerID)
	return engine, nil
}

// Bootstrap loads every unfinished table from the store and registers an
// engine for each, so tables survive a process restart.
func (r *Registry) Bootstrap(ctx context.Context) error {
	gameOver := false
	tables, err := r.store.FindTables(ctx, TableFilter{GameOver: &gameOver})
	if err != nil {
		return fmt.Errorf("bootstrap tables: %w", err)
	}
	for _, table := range tables {
		// Nobody is connected after a restart.
		for _, p := range table.Players {
			p.Connected = false
		}
		r.register(table)
	}
	r.logger.Info("bootstrapped tables", "count", len(tables))
	return nil
}

func (r *Registry) register(table *Table) *Engine {
	opts := append([]Option{WithGameOverHook(r.remove)}, r.engineOpts...)
	engine := NewEngine(table, r.store, r.broadcaster, r.logger, opts...)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.engines[table.ID] = engine
	return engine
}

// Delete tears a table down: refunds every seat, persists the final state,
// announces the end and unregisters the engine. Only the owner may delete.
func (r *Registry) Delete(ctx context.Context, tableID, userID string) error {
	engine, ok := r.Get(tableID)
	if !ok {
		return ErrTableNotFound
	}
	if engine.table.OwnerID != userID {
		return fmt.Errorf("table %s: only the owner may delete", tableID)
	}
	if err := engine.Teardown(ctx); err != nil {
		return fmt.Errorf("teardown table %s: %w", tableID, err)
	}
	r.broadcaster.PublishToTable(tableID, Event{Name: EventGameEnded}, engine.State())
	r.remove(tableID)
	r.logger.Info("table deleted", "table", tableID)
	return nil
}

// Abandon refunds a single player out of a table and pushes the new state
// to the remaining seats.
func (r *Registry) Abandon(ctx context.Context, tableID, userID string) error {
	engine, ok := r.Get(tableID)
	if !ok {
		return ErrTableNotFound
	}
	state, err := engine.AbandonPlayer(ctx, userID)
	if err != nil {
		return fmt.Errorf("abandon %s from table %s: %w", userID, tableID, err)
	}
	r.broadcaster.PublishToTable(tableID, Event{Name: EventForceUpdate}, state)
	return nil
}

func (r *Registry) remove(tableID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.engines, tableID)
}
