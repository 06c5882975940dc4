// Package cache remembers enrichment lookups between runs so that a re-run only
// fetches the titles it has not seen recently.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"dealcatalog/internal/catalog"
	"dealcatalog/internal/chrono"

	_ "embed"
)

//go:embed schema.sql
var Schema string

// Entry is the stored outcome of one lookup id, a miss is stored as well so that
// titles the source does not know are not retried on every run.
type Entry struct {
	LookupId string
	Found    bool
	// Record is only meaningful when Found is true.
	Record   catalog.Enrichment
	StoredAt time.Time
}

type Cache struct {
	db    *sql.DB
	ttl   time.Duration
	clock chrono.TimeAPI
}

// Open applies the schema and returns a cache whose entries expire after ttl,
// a ttl of 0 keeps entries forever.
func Open(ctx context.Context, db *sql.DB, ttl time.Duration, clock chrono.TimeAPI) (*Cache, error) {
	for _, stmt := range strings.Split(Schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		_, err := db.ExecContext(ctx, stmt)
		if err != nil {
			return nil, fmt.Errorf("apply cache schema: %w", err)
		}
	}
	return &Cache{db: db, ttl: ttl, clock: clock}, nil
}

func (c *Cache) expired(storedAt time.Time) bool {
	return c.ttl > 0 && c.clock.Now().Sub(storedAt) > c.ttl
}

// Get returns the entry of a lookup id, ok is false when there is none or it expired.
func (c *Cache) Get(ctx context.Context, lookupId string) (Entry, bool, error) {
	row := c.db.QueryRowContext(
		ctx,
		"select found, record, stored_at from lookup where lookup_id = ?",
		lookupId,
	)

	var found int64
	var record sql.NullString
	var storedAt int64
	err := row.Scan(&found, &record, &storedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("get %s: %w", lookupId, err)
	}

	entry := Entry{
		LookupId: lookupId,
		Found:    found != 0,
		StoredAt: time.Unix(storedAt, 0),
	}
	if c.expired(entry.StoredAt) {
		return Entry{}, false, nil
	}
	if entry.Found && record.Valid {
		err = json.Unmarshal([]byte(record.String), &entry.Record)
		if err != nil {
			return Entry{}, false, fmt.Errorf("decode %s: %w", lookupId, err)
		}
	}
	return entry, true, nil
}

// PutFound stores the record a lookup id resolved to.
func (c *Cache) PutFound(ctx context.Context, lookupId string, record catalog.Enrichment) error {
	serialized, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return c.put(ctx, lookupId, true, sql.NullString{String: string(serialized), Valid: true})
}

// PutMissing stores that a lookup id is not a game page.
func (c *Cache) PutMissing(ctx context.Context, lookupId string) error {
	return c.put(ctx, lookupId, false, sql.NullString{})
}

func (c *Cache) put(ctx context.Context, lookupId string, found bool, record sql.NullString) error {
	foundInt := 0
	if found {
		foundInt = 1
	}
	_, err := c.db.ExecContext(
		ctx,
		`insert into lookup (lookup_id, found, record, stored_at) values (?, ?, ?, ?)
		on conflict (lookup_id) do update set
			found = excluded.found,
			record = excluded.record,
			stored_at = excluded.stored_at`,
		lookupId,
		foundInt,
		record,
		c.clock.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("put %s: %w", lookupId, err)
	}
	return nil
}

// Prune deletes expired entries and returns how many were removed.
func (c *Cache) Prune(ctx context.Context) (int64, error) {
	if c.ttl <= 0 {
		return 0, nil
	}
	cutoff := c.clock.Now().Add(-c.ttl).Unix()
	res, err := c.db.ExecContext(ctx, "delete from lookup where stored_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune: %w", err)
	}
	return res.RowsAffected()
}
