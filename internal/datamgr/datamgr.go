// Package datamgr is the first buffer consumer: it reads every reading
// non-destructively, maintains a per-sensor running average over the last
// RUN_AVG_LENGTH values, and emits threshold alerts. It never removes
// anything from the buffer — that is the storage manager's job, gated on
// this manager having already seen the node (see internal/sbuffer).
package datamgr

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/sensorgw/gateway/internal/logwriter"
	"github.com/sensorgw/gateway/internal/sbuffer"
	"github.com/sensorgw/gateway/internal/types"
)

// sensorState is one sensor's running-average window, keyed by sensor ID
// in the Manager's map — a direct mapping in place of a linked-list-plus-
// comparator lookup.
type sensorState struct {
	roomID       uint16
	window       []float64
	insertAt     int
	full         bool
	runningAvg   float64
	lastModified int64
}

// Manager is the data manager. Construct with New, then run Run in its own
// goroutine.
type Manager struct {
	buf          *sbuffer.SharedBuffer
	log          *zap.SugaredLogger
	alerts       *logwriter.Channel
	runAvgLength int
	minTemp      float64
	maxTemp      float64

	sensors map[uint16]*sensorState
}

// New builds a data manager from an already-parsed sensor->room map.
func New(buf *sbuffer.SharedBuffer, rooms map[uint16]uint16, runAvgLength int, minTemp, maxTemp float64, log *zap.SugaredLogger, alerts *logwriter.Channel) *Manager {
	sensors := make(map[uint16]*sensorState, len(rooms))
	for sensorID, roomID := range rooms {
		sensors[sensorID] = &sensorState{
			roomID: roomID,
			window: make([]float64, runAvgLength),
		}
	}
	return &Manager{
		buf:          buf,
		log:          log,
		alerts:       alerts,
		runAvgLength: runAvgLength,
		minTemp:      minTemp,
		maxTemp:      maxTemp,
		sensors:      sensors,
	}
}

// Run consumes readings until the buffer terminates and drains: wait for
// mid to be non-empty, read one reading, discard unknown sensors,
// otherwise update the running average and fire threshold alerts on every
// reading whose average crosses a bound (no debouncing).
func (m *Manager) Run() {
	for {
		if !m.buf.WaitNotEmpty(sbuffer.CursorMid) {
			return
		}
		reading, ok := m.buf.Read()
		if !ok {
			continue
		}
		m.process(reading)
	}
}

func (m *Manager) process(reading types.SensorReading) {
	state, known := m.sensors[reading.SensorID]
	if !known {
		m.log.Infow("received reading for unknown sensor", "sensor_id", reading.SensorID)
		m.logAlert("Received sensor data with invalid sensor node ID %d", reading.SensorID)
		return
	}

	state.lastModified = reading.Timestamp
	state.window[state.insertAt] = reading.Value
	state.insertAt = (state.insertAt + 1) % m.runAvgLength
	if state.insertAt == 0 {
		state.full = true
	}

	var sum float64
	count := m.runAvgLength
	if !state.full {
		count = state.insertAt
	}
	for i := 0; i < count; i++ {
		sum += state.window[i]
	}
	state.runningAvg = sum / float64(count)

	if state.runningAvg < m.minTemp {
		m.logAlert("sensor %d reports it's too cold (running avg temperature = %.3f)", reading.SensorID, state.runningAvg)
	}
	if state.runningAvg > m.maxTemp {
		m.logAlert("sensor %d reports it's too hot (running avg temperature = %.3f)", reading.SensorID, state.runningAvg)
	}
}

func (m *Manager) logAlert(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	m.log.Info(line)
	if m.alerts != nil {
		_ = m.alerts.Write(line)
	}
}

// RoomID returns the room a sensor is assigned to and whether it is known.
func (m *Manager) RoomID(sensorID uint16) (uint16, bool) {
	s, ok := m.sensors[sensorID]
	if !ok {
		return 0, false
	}
	return s.roomID, true
}

// Average returns a sensor's current running average and whether it is
// known.
func (m *Manager) Average(sensorID uint16) (float64, bool) {
	s, ok := m.sensors[sensorID]
	if !ok {
		return 0, false
	}
	return s.runningAvg, true
}

// LastModified returns the timestamp of a sensor's most recent reading and
// whether it is known.
func (m *Manager) LastModified(sensorID uint16) (int64, bool) {
	s, ok := m.sensors[sensorID]
	if !ok {
		return 0, false
	}
	return s.lastModified, true
}

// TotalSensors returns how many sensors the map file declared.
func (m *Manager) TotalSensors() int {
	return len(m.sensors)
}
