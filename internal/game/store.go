package game

import (
	"context"
	"errors"
)

var (
	// ErrTableNotFound is returned when no persisted table matches an id.
	ErrTableNotFound = errors.New("game: table not found")
	// ErrAccountNotFound is returned when no account matches a user id.
	ErrAccountNotFound = errors.New("game: account not found")
)

// Account is the externally tracked bankroll a player buys in from.
type Account struct {
	ID      string `json:"id"`
	Balance int    `json:"balance"`
}

// TableFilter narrows FindTables. Nil fields match everything.
type TableFilter struct {
	GameOver *bool
}

// Store is the document-store collaborator the engine persists through.
// Implementations must honour context deadlines; the engine bounds every
// call.
type Store interface {
	CreateTable(ctx context.Context, table *Table) error
	FindTableByID(ctx context.Context, id string) (*Table, error)
	UpdateTableByID(ctx context.Context, id string, table *Table) error
	FindTables(ctx context.Context, filter TableFilter) ([]*Table, error)

	FindAccountByID(ctx context.Context, userID string) (*Account, error)
	UpdateAccountByID(ctx context.Context, userID string, account *Account) error
}

// Broadcaster is the real-time transport collaborator. PublishToTable
// reaches every subscriber of the table's room; PublishToPlayer reaches
// only that player's private channel.
type Broadcaster interface {
	PublishToTable(tableID string, event Event, state Snapshot)
	PublishToPlayer(tableID, userID string, event Event)
}

// NopBroadcaster drops every publish. Useful in tests and tools.
type NopBroadcaster struct{}

func (NopBroadcaster) PublishToTable(string, Event, Snapshot) {}
func (NopBroadcaster) PublishToPlayer(string, string, Event)  {}
