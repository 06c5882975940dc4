package testutil

import (
	"database/sql"
	"strings"
	"sync"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

// OpenMemoryDB opens a private in-memory sqlite database and applies the schema to it.
func OpenMemoryDB(t testing.TB, schema string) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	// every connection to :memory: is its own database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() {
		db.Close()
	})

	if schema == "" {
		return db
	}
	_, err = db.Exec(schema)
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		t.Fatal(err)
	}
	return db
}

// InstantTimer is a backoff timer that fires immediately and remembers every wait
// it was asked for, so retry tests neither sleep nor lose the schedule.
type InstantTimer struct {
	mutex sync.Mutex
	c     chan time.Time
	waits []time.Duration
}

func NewInstantTimer() *InstantTimer {
	return &InstantTimer{c: make(chan time.Time, 1)}
}

func (t *InstantTimer) Start(d time.Duration) {
	t.mutex.Lock()
	t.waits = append(t.waits, d)
	t.mutex.Unlock()
	t.c <- time.Now()
}

func (t *InstantTimer) Stop() {}

func (t *InstantTimer) C() <-chan time.Time {
	return t.c
}

// Waits returns the requested waits in order.
func (t *InstantTimer) Waits() []time.Duration {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	out := make([]time.Duration, len(t.waits))
	copy(out, t.waits)
	return out
}
