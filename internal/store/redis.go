package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/cardroomd/cardroomd/internal/game"
)

const (
	tableKeyPrefix   = "table:"
	accountKeyPrefix = "account:"
	tableIndexKey    = "tables"
)

// RedisStore persists tables and accounts as JSON documents in Redis.
// Table ids are additionally tracked in a set so FindTables can scan
// without KEYS.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisStore{client: client}, nil
}

// Close releases the underlying connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) CreateTable(ctx context.Context, table *game.Table) error {
	if err := s.writeTable(ctx, table); err != nil {
		return err
	}
	return s.client.SAdd(ctx, tableIndexKey, table.ID).Err()
}

func (s *RedisStore) FindTableByID(ctx context.Context, tableID string) (*game.Table, error) {
	data, err := s.client.Get(ctx, tableKeyPrefix+tableID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, game.ErrTableNotFound
		}
		return nil, fmt.Errorf("get table %s: %w", tableID, err)
	}
	var table game.Table
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("decode table %s: %w", tableID, err)
	}
	return &table, nil
}

func (s *RedisStore) UpdateTableByID(ctx context.Context, tableID string, table *game.Table) error {
	exists, err := s.client.Exists(ctx, tableKeyPrefix+tableID).Result()
	if err != nil {
		return fmt.Errorf("check table %s: %w", tableID, err)
	}
	if exists == 0 {
		return game.ErrTableNotFound
	}
	return s.writeTable(ctx, table)
}

func (s *RedisStore) FindTables(ctx context.Context, filter game.TableFilter) ([]*game.Table, error) {
	ids, err := s.client.SMembers(ctx, tableIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	tables := make([]*game.Table, 0, len(ids))
	for _, id := range ids {
		table, err := s.FindTableByID(ctx, id)
		if errors.Is(err, game.ErrTableNotFound) {
			// Index entry outlived the document; drop it.
			s.client.SRem(ctx, tableIndexKey, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		if filter.GameOver != nil && table.GameOver != *filter.GameOver {
			continue
		}
		tables = append(tables, table)
	}
	return tables, nil
}

func (s *RedisStore) FindAccountByID(ctx context.Context, userID string) (*game.Account, error) {
	data, err := s.client.Get(ctx, accountKeyPrefix+userID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, game.ErrAccountNotFound
		}
		return nil, fmt.Errorf("get account %s: %w", userID, err)
	}
	var account game.Account
	if err := json.Unmarshal(data, &account); err != nil {
		return nil, fmt.Errorf("decode account %s: %w", userID, err)
	}
	return &account, nil
}

func (s *RedisStore) UpdateAccountByID(ctx context.Context, userID string, account *game.Account) error {
	data, err := json.Marshal(account)
	if err != nil {
		return fmt.Errorf("encode account %s: %w", userID, err)
	}
	return s.client.Set(ctx, accountKeyPrefix+userID, data, 0).Err()
}

func (s *RedisStore) writeTable(ctx context.Context, table *game.Table) error {
	data, err := json.Marshal(table)
	if err != nil {
		return fmt.Errorf("encode table %s: %w", table.ID, err)
	}
	return s.client.Set(ctx, tableKeyPrefix+table.ID, data, 0).Err()
}
