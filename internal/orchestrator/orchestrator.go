// Package orchestrator runs the gateway's startup/shutdown state machine:
// Starting, Ready, Draining, Stopped, Aborted. It brings the storage
// manager up first behind a two-party barrier — the connection manager
// and data manager are only started once the storage manager has
// reported a working SQL connection — and drives termination once the
// connection manager's accept loop exits or an OS signal arrives.
package orchestrator

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sensorgw/gateway/internal/connmgr"
	"github.com/sensorgw/gateway/internal/datamgr"
	"github.com/sensorgw/gateway/internal/logwriter"
	"github.com/sensorgw/gateway/internal/sbuffer"
	"github.com/sensorgw/gateway/internal/sensordb"
)

// State is one of the orchestrator's one-way lifecycle states.
type State int

const (
	Starting State = iota
	Ready
	Draining
	Stopped
	Aborted
)

func (s State) String() string {
	switch s {
	case Starting:
		return "starting"
	case Ready:
		return "ready"
	case Draining:
		return "draining"
	case Stopped:
		return "stopped"
	case Aborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Config bundles everything the orchestrator needs to bring the gateway
// up: the already-resolved tunables and the already-open handles its
// managers are built from.
type Config struct {
	Port    int
	Timeout time.Duration

	DBPath      string
	TableName   string
	ClearDB     bool
	SQLAttempts int

	RoomMap map[uint16]uint16

	RunAvgLength int
	MinTemp      float64
	MaxTemp      float64

	Log    *zap.Logger
	Alerts *logwriter.Channel
}

// Orchestrator owns the shared buffer and the three manager goroutines
// built on top of it. Run blocks until the gateway reaches Stopped or
// Aborted.
type Orchestrator struct {
	cfg   Config
	log   *zap.SugaredLogger
	buf   *sbuffer.SharedBuffer
	state State
}

// New builds an orchestrator. Call Run to bring the gateway up.
func New(cfg Config) *Orchestrator {
	return &Orchestrator{
		cfg:   cfg,
		log:   cfg.Log.Named("orchestrator").Sugar(),
		buf:   sbuffer.New(),
		state: Starting,
	}
}

// State returns the orchestrator's current lifecycle state.
func (o *Orchestrator) State() State {
	return o.state
}

// Run executes the full lifecycle: Starting -> (Ready|Aborted) ->
// Draining -> Stopped. It returns once every spawned manager has joined.
// ctx cancellation (SIGINT/SIGTERM in the real entry point) is an
// additional trigger into Draining alongside the connection manager's
// accept loop returning on its own.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.log.Infow("starting storage manager", "db", o.cfg.DBPath)

	db, ready := sensordb.OpenWithRetry(ctx, o.cfg.DBPath, o.cfg.TableName, o.cfg.ClearDB, o.cfg.SQLAttempts, o.cfg.Timeout, o.log)
	if !ready {
		o.state = Aborted
		o.log.Warn("storage manager never reported a working SQL connection; aborting startup")
		return nil
	}
	defer db.Close()

	o.state = Ready
	o.log.Info("storage manager ready; starting connection and data managers")

	storage := sensordb.NewManager(db, o.cfg.TableName, o.buf, o.log.Named("storagemgr"))
	data := datamgr.New(o.buf, o.cfg.RoomMap, o.cfg.RunAvgLength, o.cfg.MinTemp, o.cfg.MaxTemp, o.log.Named("datamgr"), o.cfg.Alerts)
	conn, err := connmgr.New(o.cfg.Port, o.cfg.Timeout, o.buf, o.log.Named("connmgr"), o.cfg.Alerts)
	if err != nil {
		o.state = Aborted
		return err
	}

	storageDone := make(chan struct{})
	go func() {
		storage.ConsumeLoop()
		close(storageDone)
	}()

	dataDone := make(chan struct{})
	go func() {
		data.Run()
		close(dataDone)
	}()

	connErr := make(chan error, 1)
	go func() { connErr <- conn.Listen(ctx) }()

	// Draining begins the moment either the connection manager's accept
	// loop returns on its own (no active sensors, session expired) or the
	// caller's context is canceled (operator-requested shutdown). Either
	// way the response is the same: terminate the buffer and join the two
	// consumers.
	var listenErr error
	select {
	case listenErr = <-connErr:
	case <-ctx.Done():
		listenErr = <-connErr
	}

	o.state = Draining
	o.log.Info("draining: terminating shared buffer and joining consumers")
	o.buf.Terminate()

	<-dataDone
	<-storageDone

	o.state = Stopped
	o.log.Info("stopped")
	return listenErr
}
