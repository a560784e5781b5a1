// Package storage persists settings records as opaque JSON blobs keyed by
// name, the way the site's option table did. Backends: memory, local files,
// PostgreSQL, SQLite, DynamoDB and S3.
package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ignite/campaignsync/internal/config"
)

// ErrNotFound is returned by Get for a key that was never set or was deleted.
var ErrNotFound = errors.New("storage: key not found")

// Store is a flat key/value store.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// Keys lists keys starting with prefix, sorted.
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// New builds the backend selected by cfg.Type.
func New(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch strings.ToLower(cfg.Type) {
	case "memory":
		return NewMemory(), nil
	case "", "local":
		return NewLocal(cfg.LocalPath)
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("storage: postgres requires database_url")
		}
		return OpenSQL(ctx, DialectPostgres, cfg.DatabaseURL, cfg.Table)
	case "sqlite":
		path := cfg.SQLitePath
		if path == "" {
			path = "campaignsync.db"
		}
		return OpenSQL(ctx, DialectSQLite, path, cfg.Table)
	case "dynamodb":
		if cfg.DynamoDBTable == "" {
			return nil, fmt.Errorf("storage: dynamodb requires dynamodb_table")
		}
		awsCfg, err := loadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return NewDynamoDBFromConfig(awsCfg, cfg.DynamoDBTable), nil
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("storage: s3 requires s3_bucket")
		}
		awsCfg, err := loadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return NewS3FromConfig(awsCfg, cfg.S3Bucket, cfg.S3Prefix), nil
	}
	return nil, fmt.Errorf("storage: unknown type %q", cfg.Type)
}

// Memory is an in-process Store.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	m.data[key] = append([]byte(nil), value...)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Keys(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var keys []string
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}
