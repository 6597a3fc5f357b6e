package storage

import (
	"database/sql"
	"fmt"

	"github.com/ignatij/exectrack/pkg/models"
	"github.com/ignatij/exectrack/pkg/storage"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

type DBInterface interface {
	Get(dest interface{}, query string, args ...interface{}) error
	Select(dest interface{}, query string, args ...interface{}) error
	Exec(query string, args ...interface{}) (sql.Result, error)
}

// PostgresStore keeps tracking slots in the tracking_slots table created by
// the migrations under migrations/.
type PostgresStore struct {
	db DBInterface
}

func NewPostgresStore(connStr string) (*PostgresStore, error) {
	db, err := sqlx.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Close() error {
	if db, ok := s.db.(*sqlx.DB); ok {
		return db.Close()
	}
	return nil
}

// Load returns the execution ID held by slot
func (s *PostgresStore) Load(slot string) (string, error) {
	var executionID string
	err := s.db.Get(&executionID, "SELECT execution_id FROM tracking_slots WHERE slot = $1", slot)
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

// Save points slot at executionID, replacing the previous value
func (s *PostgresStore) Save(slot, executionID string) error {
	_, err := s.db.Exec(`
		INSERT INTO tracking_slots (slot, execution_id, updated_at) VALUES ($1, $2, CURRENT_TIMESTAMP)
		ON CONFLICT (slot) DO UPDATE SET execution_id = EXCLUDED.execution_id, updated_at = CURRENT_TIMESTAMP`,
		slot, executionID)
	if err != nil {
		return fmt.Errorf("save slot %s: %w", slot, err)
	}
	return nil
}

func (s *PostgresStore) Clear(slot string) error {
	_, err := s.db.Exec("DELETE FROM tracking_slots WHERE slot = $1", slot)
	if err != nil {
		return fmt.Errorf("clear slot %s: %w", slot, err)
	}
	return nil
}

// ListSlots returns every occupied slot, most recently updated first
func (s *PostgresStore) ListSlots() ([]models.TrackingSlot, error) {
	slots := []models.TrackingSlot{}
	err := s.db.Select(&slots, "SELECT slot, execution_id, updated_at FROM tracking_slots ORDER BY updated_at DESC, slot")
	if err != nil {
		return nil, err
	}
	return slots, nil
}
