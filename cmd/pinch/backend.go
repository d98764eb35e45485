package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/gcoo-labs/pinch/internal/cache"
	"github.com/gcoo-labs/pinch/internal/database"
	"github.com/gcoo-labs/pinch/internal/storage"
	"github.com/spf13/viper"
)

// Supported state backends
const (
	backendSQLite   = "sqlite"
	backendMemory   = "memory"
	backendRedis    = "redis"
	backendPostgres = "postgres"
	backendSpaces   = "spaces"
)

// openStateBackend returns the storage persisted CLI state lives in. The
// sqlite backend shares the local storage database. The returned close
// function releases anything opened here.
func openStateBackend(ctx context.Context, v *viper.Viper, local *storage.SQLite) (storage.Store, func() error, error) {
	noop := func() error { return nil }

	switch backend := strings.ToLower(v.GetString(cfgKeyStateBackend)); backend {
	case "", backendSQLite:
		return local, noop, nil

	case backendMemory:
		return storage.NewMemory(), noop, nil

	case backendRedis:
		cfg, err := cache.NewConfigFromEnv()
		if err != nil {
			return nil, nil, fmt.Errorf("redis config: %w", err)
		}
		rc, err := cache.NewRedisCache(cfg)
		if err != nil {
			return nil, nil, err
		}
		s := cache.NewStore(rc, "state:")
		return s, s.Close, nil

	case backendPostgres:
		cfg, err := database.NewConfigFromEnv()
		if err != nil {
			return nil, nil, fmt.Errorf("postgres config: %w", err)
		}
		db, err := database.NewDB(cfg)
		if err != nil {
			return nil, nil, err
		}
		repo, err := database.NewStateRepository(ctx, db)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		return repo, repo.Close, nil

	case backendSpaces:
		s, err := storage.NewSpaces(storage.SpacesConfig{
			Endpoint:  v.GetString(cfgKeySpacesEndpoint),
			Region:    v.GetString(cfgKeySpacesRegion),
			Bucket:    v.GetString(cfgKeySpacesBucket),
			AccessKey: v.GetString(cfgKeySpacesAccessKey),
			SecretKey: v.GetString(cfgKeySpacesSecretKey),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("spaces: %w", err)
		}
		return s, s.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown state backend %q (valid: sqlite, memory, redis, postgres, spaces)", backend)
	}
}
