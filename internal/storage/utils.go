package storage

import (
	"strings"

	"github.com/ignatij/exectrack/pkg/storage"
	"github.com/pkg/errors"
)

// InitStore opens the session store named by dsn: "memory" (or empty),
// a postgres:// connection string, or sqlite://<path>.
func InitStore(dsn string) (storage.SessionStore, error) {
	switch {
	case dsn == "" || dsn == "memory":
		return storage.NewMemoryStore(), nil
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		store, err := NewPostgresStore(dsn)
		if err != nil {
			return nil, errors.Wrap(err, "connect to postgres")
		}
		return store, nil
	case strings.HasPrefix(dsn, "sqlite://"):
		store, err := NewSQLiteStore(strings.TrimPrefix(dsn, "sqlite://"))
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, errors.Errorf("unsupported store %q", dsn)
	}
}

var (
	_ storage.SessionStore = (*PostgresStore)(nil)
	_ storage.SessionStore = (*SQLiteStore)(nil)
	_ storage.SlotLister   = (*PostgresStore)(nil)
	_ storage.SlotLister   = (*SQLiteStore)(nil)
)
