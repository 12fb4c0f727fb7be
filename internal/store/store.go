package store

import (
	"context"
	"errors"
	"time"
)

// ErrNoDatabase is returned when a collection is requested before a
// database has been selected.
var ErrNoDatabase = errors.New("no database selected")

// Record is a persisted prompt: a prefix/suffix pair plus the token counts
// derived from it and the time it was inserted.
type Record struct {
	ID               string
	Prefix           string
	Suffix           string
	PrefixTokenCount int
	SuffixTokenCount int
	Date             time.Time
}

// Query is a set of field equality conditions, all of which must hold.
// Keys are persisted field names (prefix, suffix, ...). An empty Query
// matches every record.
type Query map[string]any

// Store is the storage port for prompt records. Records are partitioned
// into named collections inside a selected database.
type Store interface {
	// SelectDatabase switches the database later collections are taken from.
	SelectDatabase(name string) error

	// Database returns the selected database name, or "" if none.
	Database() string

	// Collection returns the named collection, creating it if the backend
	// needs that. Calling it repeatedly with the same name is safe.
	Collection(ctx context.Context, name string) (Collection, error)

	// Close releases any resources held by the store.
	Close(ctx context.Context) error
}

// Collection is one namespace of prompt records. Operations propagate
// connectivity and auth failures unchanged; nothing is retried.
type Collection interface {
	Name() string

	// InsertOne appends a record and returns its generated identifier.
	InsertOne(ctx context.Context, rec Record) (string, error)

	// InsertMany appends records and returns their identifiers in input order.
	InsertMany(ctx context.Context, recs []Record) ([]string, error)

	// FindAll returns every record of the collection, fully materialized.
	FindAll(ctx context.Context) ([]Record, error)

	// DeleteMany removes all records matching q and returns how many went.
	DeleteMany(ctx context.Context, q Query) (int64, error)
}
