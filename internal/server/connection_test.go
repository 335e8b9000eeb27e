package server

import (
	"context"
	"io"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardroomd/cardroomd/internal/game"
	"github.com/cardroomd/cardroomd/internal/store"
)

func TestJoinRejectedLeavesConnectionUnsubscribed(t *testing.T) {
	logger := log.New(io.Discard)
	srv := NewServer("127.0.0.1:0", logger)
	st := store.NewMemoryStore()
	registry := game.NewRegistry(st, srv, logger)
	srv.SetRegistry(registry)

	engine, err := registry.CreateTable(context.Background(), "alice", game.Options{
		MaxPlayers: 6,
		MaxRaises:  4,
		IsPublic:   false,
	})
	require.NoError(t, err)

	// A user outside the whitelist must not end up attached to the table,
	// or every later broadcast of the private table would reach them.
	intruder := NewConnection(nil, logger, registry, srv)
	intruder.setUser("mallory")
	intruder.handleJoinTable(JoinTableData{TableID: engine.TableID()})
	assert.Empty(t, intruder.GetTable())

	for _, p := range engine.State().Players {
		assert.NotEqual(t, "mallory", p.UserID)
	}

	owner := NewConnection(nil, logger, registry, srv)
	owner.setUser("alice")
	owner.handleJoinTable(JoinTableData{TableID: engine.TableID()})
	assert.Equal(t, engine.TableID(), owner.GetTable())
}
