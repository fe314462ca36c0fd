package sink

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/vera-bridge/internal/infrastructure/database"
)

// settingSinkIP is the settings key holding the announced sink address.
const settingSinkIP = "sink.ip"

// SQLiteStore keeps the sink address in the settings table.
type SQLiteStore struct {
	db *database.DB
}

// NewSQLiteStore creates a store on a migrated database.
func NewSQLiteStore(db *database.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// LoadSinkIP returns the persisted address, if any.
func (s *SQLiteStore) LoadSinkIP(ctx context.Context) (string, bool, error) {
	var ip string
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM settings WHERE key = ?", settingSinkIP,
	).Scan(&ip)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("querying sink address: %w", err)
	}
	return ip, true, nil
}

// SaveSinkIP stores ip, replacing any previous value.
func (s *SQLiteStore) SaveSinkIP(ctx context.Context, ip string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, settingSinkIP, ip, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("saving sink address: %w", err)
	}
	return nil
}
