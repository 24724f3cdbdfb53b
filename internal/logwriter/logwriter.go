// Package logwriter implements the gateway's operational log channel:
// sensor-facing and lifecycle messages ("sensor opened a connection",
// "too cold", "connection to SQL server lost", ...) are framed as lines
// of at most LOG_LENGTH characters,
// each stamped with a monotonically increasing sequence number and a
// "YYYY-MM-DD HH:MM:SS" local timestamp, and appended to one log file.
//
// The source runs this as a separate process reached over a named pipe so
// a slow or crashing log consumer cannot block the gateway's threads; that
// cross-process transport is a named external collaborator and is
// deliberately not reproduced here. What this package preserves is the
// line-framing contract and the single-writer discipline (one lock, one
// atomic flushed write per line) — multiple goroutines write to the same
// channel concurrently, exactly as the source's multi-threaded
// log_write() does against its FIFO handle.
package logwriter

import (
	"fmt"
	"os"
	"sync"
	"time"
)

// Channel is the explicit, cloneable log-writer handle every manager gets
// at construction, replacing the source's process-wide FIFO singleton.
type Channel struct {
	mu       sync.Mutex
	file     *os.File
	sequence int
	maxLen   int
	closed   bool
}

// Open creates (or truncates) the log file at path and returns a ready
// Channel. maxLen is the LOG_LENGTH tunable.
func Open(path string, maxLen int) (*Channel, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("logwriter: open %s: %w", path, err)
	}
	return &Channel{file: f, maxLen: maxLen}, nil
}

// Write appends one framed line. Long lines are truncated to maxLen,
// matching the source's snprintf(log, LOG_LENGTH, ...) bound.
func (c *Channel) Write(line string) error {
	if len(line) > c.maxLen {
		line = line[:c.maxLen]
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.sequence++
	_, err := fmt.Fprintf(c.file, "%d %s %s\n", c.sequence, time.Now().Local().Format("2006-01-02 15:04:05"), line)
	if err != nil {
		return fmt.Errorf("logwriter: write: %w", err)
	}
	return c.file.Sync()
}

// Close drains nothing further and closes the underlying file. Analogous
// to the source writing its sentinel shutdown integer down the control
// pipe and waiting for the log process to drain and exit.
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.file.Close()
}
