package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/cardroomd/cardroomd/internal/game"
	"github.com/cardroomd/cardroomd/internal/server"
	"github.com/cardroomd/cardroomd/internal/store"
)

// ServeCmd runs the card room server
type ServeCmd struct {
	Config string `kong:"default='cardroomd.hcl',help='Path to HCL config file'"`
	Addr   string `kong:"help='Listen address, overrides config'"`
	Debug  bool   `kong:"help='Enable debug logging'"`
}

func (c *ServeCmd) Run() error {
	logger := setupLogger(c.Debug)

	cfg, err := server.LoadConfig(c.Config)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	addr := cfg.ListenAddress()
	if c.Addr != "" {
		addr = c.Addr
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	gameStore, closeStore, err := buildStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	wsServer := server.NewServer(addr, logger)
	registry := game.NewRegistry(gameStore, wsServer, logger,
		game.WithTurnTimeout(time.Duration(cfg.Game.TurnTimeoutSeconds)*time.Second),
		game.WithPersistTimeout(time.Duration(cfg.Game.PersistTimeoutMillis)*time.Millisecond),
	)
	wsServer.SetRegistry(registry)

	if err := registry.Bootstrap(ctx); err != nil {
		return fmt.Errorf("bootstrap registry: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return wsServer.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutting down")
		return wsServer.Stop()
	})

	return g.Wait()
}

// buildStore picks Redis when an address is configured, the in-memory
// store otherwise.
func buildStore(ctx context.Context, cfg *server.Config, logger *log.Logger) (game.Store, func(), error) {
	if cfg.Redis.Address == "" {
		logger.Warn("No redis address configured, tables will not survive restarts")
		return store.NewMemoryStore(), func() {}, nil
	}

	redisStore, err := store.NewRedisStore(ctx, cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	logger.Info("Connected to redis", "addr", cfg.Redis.Address, "db", cfg.Redis.DB)
	return redisStore, func() { _ = redisStore.Close() }, nil
}

func setupLogger(debug bool) *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
	})
	if debug {
		logger.SetLevel(log.DebugLevel)
	}
	return logger
}
