// Package store persists snapshots of the PubSub configuration tree in
// SQLite, so a restarted server can restore its declarative configuration.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	logging "github.com/ipfs/go-log/v2"
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/opcmesh/uapubsub/internal/pubsub"
)

var log = logging.Logger("ua-store")

// ErrNoSnapshot is returned by Load when no snapshot has been saved yet.
var ErrNoSnapshot = errors.New("no configuration snapshot stored")

// ConfigStore is a SQLite-backed store of configuration snapshots.
type ConfigStore struct {
	db     *sql.DB
	dbPath string
	mu     sync.Mutex
}

// NewConfigStore opens (or creates) the store under basePath.
func NewConfigStore(basePath string) (*ConfigStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	dbPath := filepath.Join(basePath, "pubsub.db")
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &ConfigStore{db: db, dbPath: dbPath}
	if err := s.initTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize tables: %w", err)
	}
	return s, nil
}

func (s *ConfigStore) initTables() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS pubsub_config (
			version INTEGER PRIMARY KEY AUTOINCREMENT,
			saved_at INTEGER NOT NULL,
			snapshot TEXT NOT NULL
		)
	`)
	return err
}

// Save stores a snapshot as the newest version.
func (s *ConfigStore) Save(ctx context.Context, snap *pubsub.ConfigSnapshot) error {
	if snap == nil {
		return errors.New("nil snapshot")
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO pubsub_config (saved_at, snapshot) VALUES (?, ?)",
		time.Now().Unix(), string(data),
	)
	if err != nil {
		return fmt.Errorf("failed to store snapshot: %w", err)
	}
	log.Debugf("saved configuration snapshot (%d connections)", len(snap.Connections))
	return nil
}

// Load returns the newest stored snapshot.
func (s *ConfigStore) Load(ctx context.Context) (*pubsub.ConfigSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var data string
	err := s.db.QueryRowContext(ctx,
		"SELECT snapshot FROM pubsub_config ORDER BY version DESC LIMIT 1",
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}

	var snap pubsub.ConfigSnapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &snap, nil
}

// Prune removes all but the newest keep versions.
func (s *ConfigStore) Prune(ctx context.Context, keep int) (int64, error) {
	if keep < 1 {
		keep = 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, `
		DELETE FROM pubsub_config WHERE version NOT IN (
			SELECT version FROM pubsub_config ORDER BY version DESC LIMIT ?
		)`, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune snapshots: %w", err)
	}
	return result.RowsAffected()
}

// Close closes the underlying database.
func (s *ConfigStore) Close() error {
	return s.db.Close()
}
