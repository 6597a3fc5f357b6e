package storage

import (
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Begin returns a store bound to a new transaction, so each test can roll
// back what it wrote.
func (s *PostgresStore) Begin() (*PostgresStore, error) {
	db, ok := s.db.(*sqlx.DB)
	if !ok {
		return nil, fmt.Errorf("store is already in a transaction")
	}
	tx, err := db.Beginx()
	if err != nil {
		return nil, err
	}
	return &PostgresStore{db: tx}, nil
}

func (s *PostgresStore) Rollback() error {
	if tx, ok := s.db.(*sqlx.Tx); ok {
		return tx.Rollback()
	}
	return fmt.Errorf("cannot rollback: not a transaction")
}
