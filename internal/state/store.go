package state

import (
	"fmt"
	"strings"

	"github.com/debussylabs/debussy/internal/db"
	"github.com/debussylabs/debussy/internal/db/driver"
)

// Store provides transactional access to the run state database.
type Store struct {
	db *db.DB
}

// Open opens (and migrates) the SQLite store at path, creating it if needed.
func Open(path string) (*Store, error) {
	d, err := db.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return wrap(d)
}

// OpenWithDialect opens a store against an arbitrary dialect/DSN. Used when
// store.dialect is set to postgres in config.
func OpenWithDialect(dsn string, dialect driver.Dialect) (*Store, error) {
	d, err := db.OpenWithDialect(dsn, dialect)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return wrap(d)
}

// OpenInMemory opens an isolated in-memory store. Used by tests.
func OpenInMemory() (*Store, error) {
	d, err := db.OpenInMemory()
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return wrap(d)
}

func wrap(d *db.DB) (*Store, error) {
	if err := d.Migrate("store"); err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}
	return &Store{db: d}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the store's DSN/path.
func (s *Store) Path() string {
	return s.db.Path()
}

// rebind rewrites ?-style placeholders into the active dialect's form.
// Queries are written sqlite-style; postgres gets $1..$N.
func (s *Store) rebind(query string) string {
	if s.db.Dialect() != driver.DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString(s.db.Placeholder(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
