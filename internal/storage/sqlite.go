package storage

import (
	"database/sql"
	"fmt"

	"github.com/ignatij/exectrack/pkg/models"
	"github.com/ignatij/exectrack/pkg/storage"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore keeps tracking slots in a local SQLite file. The schema is
// created on open, there is no separate migration step.
type SQLiteStore struct {
	db *sqlx.DB
}

func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// one writer keeps ":memory:" databases on a single connection
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite database: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS tracking_slots (
			slot TEXT PRIMARY KEY,
			execution_id TEXT NOT NULL,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	}
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Load(slot string) (string, error) {
	var executionID string
	err := s.db.Get(&executionID, "SELECT execution_id FROM tracking_slots WHERE slot = ?", slot)
	if err == sql.ErrNoRows {
		return "", storage.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("load slot %s: %w", slot, err)
	}
	if executionID == "" {
		return "", storage.ErrNotFound
	}
	return executionID, nil
}

func (s *SQLiteStore) Save(slot, executionID string) error {
	_, err := s.db.Exec(`
		INSERT INTO tracking_slots (slot, execution_id, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (slot) DO UPDATE SET execution_id = excluded.execution_id, updated_at = CURRENT_TIMESTAMP`,
		slot, executionID)
	if err != nil {
		return fmt.Errorf("save slot %s: %w", slot, err)
	}
	return nil
}

func (s *SQLiteStore) Clear(slot string) error {
	if _, err := s.db.Exec("DELETE FROM tracking_slots WHERE slot = ?", slot); err != nil {
		return fmt.Errorf("clear slot %s: %w", slot, err)
	}
	return nil
}

func (s *SQLiteStore) ListSlots() ([]models.TrackingSlot, error) {
	slots := []models.TrackingSlot{}
	err := s.db.Select(&slots, "SELECT slot, execution_id, updated_at FROM tracking_slots ORDER BY updated_at DESC, slot")
	if err != nil {
		return nil, err
	}
	return slots, nil
}
