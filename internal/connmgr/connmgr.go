// Package connmgr is the connection manager: the sole producer into the
// shared buffer. It is single-threaded in spirit — one event loop
// multiplexes every sensor socket — but the multiplexing itself is done by
// github.com/xtaci/gaio's readiness-polling watcher instead of a raw
// poll(2) vector, which is this gateway's teacher library for exactly this
// job. The connection manager is a thin domain layer on top: it owns the
// per-connection inactivity clock, the streaming record decoder, and the
// one-reading-in at-a-time handoff into the buffer.
package connmgr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/xtaci/gaio"
	"go.uber.org/zap"

	"github.com/sensorgw/gateway/internal/logwriter"
	"github.com/sensorgw/gateway/internal/sbuffer"
	"github.com/sensorgw/gateway/internal/types"
)

// connState is one active TCP client, the Go analogue of the source's
// ConnectionEntry: socket, last-seen clock, and the scratch buffer holding
// a not-yet-complete record (gaio delivers whatever bytes are ready, not
// whole records).
type connState struct {
	id       uuid.UUID
	conn     net.Conn
	lastSeen atomic.Int64 // unix seconds, updated on accept and each read
	scratch  []byte
	seenOne  bool // true once the first reading has been logged
}

// Manager multiplexes every sensor connection and produces readings into
// the shared buffer.
type Manager struct {
	port    int
	timeout time.Duration
	buf     *sbuffer.SharedBuffer
	log     *zap.SugaredLogger
	alerts  *logwriter.Channel

	watcher *gaio.Watcher

	mu    sync.Mutex
	conns map[uuid.UUID]*connState
}

// New builds a connection manager. Call Listen to run it; Listen blocks
// until the session expires (no poll activity with an empty connection
// table) or ctx is canceled.
func New(port int, timeout time.Duration, buf *sbuffer.SharedBuffer, log *zap.SugaredLogger, alerts *logwriter.Channel) (*Manager, error) {
	w, err := gaio.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("connmgr: creating watcher: %w", err)
	}
	return &Manager{
		port:    port,
		timeout: timeout,
		buf:     buf,
		log:     log,
		alerts:  alerts,
		watcher: w,
		conns:   make(map[uuid.UUID]*connState),
	}, nil
}

// Listen accepts sensor connections and drains their readings into the
// shared buffer until the session expires: a poll timeout with an empty
// connection table, here implemented as an idle-sweep ticker finding zero
// live connections.
func (m *Manager) Listen(ctx context.Context) error {
	ln, err := listen(ctx, m.port, fmt.Sprintf(":%d", m.port))
	if err != nil {
		return fmt.Errorf("connmgr: listen on port %d: %w", m.port, err)
	}
	defer ln.Close()
	defer m.watcher.Close()

	acceptCtx, cancelAccept := context.WithCancel(ctx)
	defer cancelAccept()

	newConns := make(chan net.Conn)
	acceptErrs := make(chan error, 1)
	go m.acceptLoop(acceptCtx, ln, newConns, acceptErrs)

	ioErrs := make(chan error, 1)
	go m.ioLoop(ioErrs)

	idle := time.NewTicker(m.timeout)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case err := <-acceptErrs:
			return err

		case conn := <-newConns:
			m.register(conn)

		case err := <-ioErrs:
			return fmt.Errorf("connmgr: watcher: %w", err)

		case <-idle.C:
			m.sweepInactive()
			if m.connectionCount() == 0 {
				m.log.Info("your session has expired")
				return nil
			}
		}
	}
}

func (m *Manager) acceptLoop(ctx context.Context, ln net.Listener, out chan<- net.Conn, errs chan<- error) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			errs <- fmt.Errorf("connmgr: accept: %w", err)
			return
		}
		select {
		case out <- conn:
		case <-ctx.Done():
			conn.Close()
			return
		}
	}
}

// ioLoop owns gaio's WaitIO/process cycle end to end in a single
// goroutine. gaio only guarantees a result batch and its nil-buffer swap
// payloads are valid up to the next WaitIO call, so results must be fully
// consumed here before looping back — handing them off to another
// goroutine to process concurrently with the next WaitIO would race that
// swap buffer.
func (m *Manager) ioLoop(errs chan<- error) {
	for {
		results, err := m.watcher.WaitIO()
		if err != nil {
			errs <- err
			return
		}
		if err := m.handleResults(results); err != nil {
			errs <- err
			return
		}
	}
}

func (m *Manager) register(conn net.Conn) {
	st := &connState{id: uuid.New(), conn: conn, scratch: make([]byte, 0, types.RecordSize*2)}
	st.lastSeen.Store(time.Now().Unix())

	m.mu.Lock()
	m.conns[st.id] = st
	m.mu.Unlock()

	if err := m.watcher.Read(st.id, conn, nil); err != nil {
		m.log.Errorw("failed to watch new connection", "error", err)
		m.drop(st.id)
	}
}

// handleResults processes one WaitIO batch. A clean peer close (io.EOF)
// just drops that one connection; any other I/O error is fatal to the
// whole connection manager, matching the source's read-loop contract
// ("else TCP_ERR(rc)" is fatal, not per-connection).
func (m *Manager) handleResults(results []gaio.OpResult) error {
	for _, res := range results {
		id, ok := res.Context.(uuid.UUID)
		if !ok {
			continue
		}
		m.mu.Lock()
		st := m.conns[id]
		m.mu.Unlock()
		if st == nil {
			continue
		}

		if res.Error != nil {
			if errors.Is(res.Error, io.EOF) {
				m.closeConnection(st, "closed the connection")
				continue
			}
			return fmt.Errorf("connmgr: I/O error on connection %s: %w", st.id, res.Error)
		}

		st.lastSeen.Store(time.Now().Unix())
		m.onData(st, res.Buffer[:res.Size])

		// Re-arm the read for the next chunk; gaio delivers one
		// completion per Read() call, not a persistent subscription.
		if err := m.watcher.Read(st.id, st.conn, nil); err != nil {
			m.closeConnection(st, "closed the connection")
		}
	}
	return nil
}

func (m *Manager) onData(st *connState, chunk []byte) {
	st.scratch = append(st.scratch, chunk...)
	for len(st.scratch) >= types.RecordSize {
		reading, err := types.DecodeReading(st.scratch[:types.RecordSize])
		st.scratch = st.scratch[types.RecordSize:]
		if err != nil {
			m.log.Errorw("failed to decode sensor record", "error", err)
			continue
		}

		if !st.seenOne {
			st.seenOne = true
			m.logLine("sensor %d opened a connection", reading.SensorID)
		}

		fmt.Printf("\tSensor id = %d\tTemperature = %g\tTimestamp = %d\n", reading.SensorID, reading.Value, reading.Timestamp)
		m.buf.Insert(reading)
	}
}

func (m *Manager) closeConnection(st *connState, reason string) {
	m.logLine("sensor node %s %s", st.id, reason)
	m.drop(st.id)
}

func (m *Manager) drop(id uuid.UUID) {
	m.mu.Lock()
	st, ok := m.conns[id]
	delete(m.conns, id)
	m.mu.Unlock()
	if !ok {
		return
	}
	m.watcher.Free(st.conn)
	st.conn.Close()
}

func (m *Manager) sweepInactive() {
	now := time.Now().Unix()
	m.mu.Lock()
	stale := make([]*connState, 0)
	for _, st := range m.conns {
		if now-st.lastSeen.Load() >= int64(m.timeout/time.Second) {
			stale = append(stale, st)
		}
	}
	m.mu.Unlock()

	for _, st := range stale {
		m.logLine("connection from sensor %s timed out after %s of inactivity", st.id, m.timeout)
		m.drop(st.id)
	}
}

func (m *Manager) connectionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.conns)
}

func (m *Manager) logLine(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	m.log.Info(line)
	if m.alerts != nil {
		_ = m.alerts.Write(line)
	}
}
