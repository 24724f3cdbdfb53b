// Package sensordb is the storage manager's SQL layer: it owns the
// *sql.DB handle, the table lifecycle (exists-check, create, optional
// clear), and the gated consume loop that drains the shared buffer's head
// into SQL rows.
package sensordb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // registers the "sqlite3" driver

	"go.uber.org/zap"

	"github.com/sensorgw/gateway/internal/sbuffer"
	"github.com/sensorgw/gateway/internal/types"
)

// Open opens (creating if necessary) the SQLite database at path, ensures
// the reading table exists, and truncates it if clear is true. This is
// the Go shape of the source's init_connection(): one successful call
// establishes the connection the storage manager will use for the rest of
// its life.
func Open(path, tableName string, clear bool, log *zap.SugaredLogger) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("sensordb: open %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sensordb: ping %s: %w", path, err)
	}
	log.Infow("connection to SQL server established", "db_file", path)

	exists, err := tableExists(db, tableName)
	if err != nil {
		db.Close()
		return nil, err
	}

	if !exists {
		schema := fmt.Sprintf(`CREATE TABLE %s (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			sensor_id      INT,
			sensor_value   DECIMAL(4,2),
			timestamp      TIMESTAMP
		);`, tableName)
		if _, err := db.Exec(schema); err != nil {
			db.Close()
			return nil, fmt.Errorf("sensordb: create table %s: %w", tableName, err)
		}
		log.Infow("created table", "table", tableName)
	} else if clear {
		if _, err := db.Exec(fmt.Sprintf("DELETE FROM %s;", tableName)); err != nil {
			db.Close()
			return nil, fmt.Errorf("sensordb: clear table %s: %w", tableName, err)
		}
		log.Infow("cleared table", "table", tableName)
	}

	return db, nil
}

func tableExists(db *sql.DB, tableName string) (bool, error) {
	row := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?;", tableName)
	var name string
	switch err := row.Scan(&name); err {
	case nil:
		return true, nil
	case sql.ErrNoRows:
		return false, nil
	default:
		return false, fmt.Errorf("sensordb: checking table %s: %w", tableName, err)
	}
}

// OpenWithRetry makes up to attempts connection tries, each allowed the
// full timeout window to keep retrying before moving to the next attempt.
// It returns (db, true) on the first success.
//
// This deliberately preserves a source behavior: once an attempt
// succeeds, the storage manager commits to that connection
// for the rest of its life — SQL_ATTEMPT only bounds the *startup* phase,
// not later runtime failures. A runtime insert failure after a successful
// start is still fatal to the consume loop (see ConsumeLoop), it just
// never re-enters this retry function.
func OpenWithRetry(ctx context.Context, path, tableName string, clear bool, attempts int, timeout time.Duration, log *zap.SugaredLogger) (*sql.DB, bool) {
	for attempt := 1; attempt <= attempts; attempt++ {
		log.Infow("trying to connect to SQL server", "attempt", attempt)

		deadline := time.Now().Add(timeout)
		for time.Now().Before(deadline) {
			select {
			case <-ctx.Done():
				return nil, false
			default:
			}
			db, err := Open(path, tableName, clear, log)
			if err == nil {
				return db, true
			}
			time.Sleep(50 * time.Millisecond)
		}
	}
	log.Warn("unable to connect to SQL server")
	return nil, false
}

// InsertReading writes one reading as a row.
func InsertReading(db *sql.DB, tableName string, r types.SensorReading) error {
	_, err := db.Exec(
		fmt.Sprintf("INSERT INTO %s (sensor_id, sensor_value, timestamp) VALUES (?, ?, ?);", tableName),
		r.SensorID, r.Value, r.Timestamp,
	)
	return err
}

// Manager is the storage manager: the second buffer consumer, the one
// permitted to physically remove nodes.
type Manager struct {
	db        *sql.DB
	tableName string
	buf       *sbuffer.SharedBuffer
	log       *zap.SugaredLogger
}

// NewManager builds a storage manager bound to an already-open database.
func NewManager(db *sql.DB, tableName string, buf *sbuffer.SharedBuffer, log *zap.SugaredLogger) *Manager {
	return &Manager{db: db, tableName: tableName, buf: buf, log: log}
}

// ConsumeLoop removes readings in FIFO order (gated on the data manager
// having already read each one) and persists them. An SQL error on insert
// is treated as connection-lost and is fatal to the loop.
func (m *Manager) ConsumeLoop() {
	for {
		if !m.buf.WaitNotEmpty(sbuffer.CursorHead) {
			return
		}
		reading, ok := m.buf.Remove()
		if !ok {
			continue
		}
		if err := InsertReading(m.db, m.tableName, reading); err != nil {
			m.log.Errorw("connection to SQL server lost", "error", err)
			return
		}
	}
}

// Close closes the underlying database handle.
func (m *Manager) Close() error {
	return m.db.Close()
}
