package datamgr

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/sensorgw/gateway/internal/logwriter"
	"github.com/sensorgw/gateway/internal/sbuffer"
	"github.com/sensorgw/gateway/internal/types"
)

func noopLogger(t *testing.T) *zap.SugaredLogger {
	t.Helper()
	l, err := zap.NewDevelopment()
	if err != nil {
		t.Fatal(err)
	}
	return l.Sugar()
}

// alertLog opens an operational log channel in a temp dir and returns it
// together with a function that closes it and returns what was written.
func alertLog(t *testing.T) (*logwriter.Channel, func() string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gateway.log")
	ch, err := logwriter.Open(path, 500)
	if err != nil {
		t.Fatal(err)
	}
	return ch, func() string {
		ch.Close()
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		return string(data)
	}
}

func TestParseMapFile(t *testing.T) {
	rooms, err := ParseMapFile(strings.NewReader("1 15\n3 20\n"))
	if err != nil {
		t.Fatal(err)
	}
	if rooms[15] != 1 || rooms[20] != 3 {
		t.Fatalf("unexpected map: %+v", rooms)
	}
}

func TestRunningAverageOverWindow(t *testing.T) {
	buf := sbuffer.New()
	rooms := map[uint16]uint16{10: 1}
	m := New(buf, rooms, 2, 18, 30, noopLogger(t), nil)

	m.process(types.SensorReading{SensorID: 10, Value: 10.0, Timestamp: 1})
	avg, _ := m.Average(10)
	if avg != 10.0 {
		t.Fatalf("want 10.0 after first reading, got %v", avg)
	}

	m.process(types.SensorReading{SensorID: 10, Value: 12.0, Timestamp: 2})
	avg, _ = m.Average(10)
	if avg != 11.0 {
		t.Fatalf("want 11.000 after second reading, got %v", avg)
	}
}

func TestUnknownSensorIsDiscardedAndLogged(t *testing.T) {
	buf := sbuffer.New()
	alerts, logged := alertLog(t)
	m := New(buf, map[uint16]uint16{7: 1}, 5, 0, 100, noopLogger(t), alerts)

	m.process(types.SensorReading{SensorID: 99, Value: 20, Timestamp: 1})
	if _, ok := m.Average(99); ok {
		t.Fatal("unknown sensor should not gain state")
	}
	if got, ok := m.Average(7); !ok || got != 0 {
		t.Fatalf("known sensor 7 should be untouched, got %v ok=%v", got, ok)
	}
	if out := logged(); !strings.Contains(out, "Received sensor data with invalid sensor node ID 99") {
		t.Fatalf("expected invalid-sensor log line, got %q", out)
	}
}

func TestThresholdAlertsFireOnEveryCrossingReading(t *testing.T) {
	buf := sbuffer.New()
	alerts, logged := alertLog(t)
	m := New(buf, map[uint16]uint16{1: 1}, 1, 18, 25, noopLogger(t), alerts)

	m.process(types.SensorReading{SensorID: 1, Value: 10, Timestamp: 1})
	avg, _ := m.Average(1)
	if avg >= m.minTemp {
		t.Fatalf("expected below-threshold average, got %v", avg)
	}

	m.process(types.SensorReading{SensorID: 1, Value: 30, Timestamp: 2})
	avg, _ = m.Average(1)
	if avg <= m.maxTemp {
		t.Fatalf("expected above-threshold average, got %v", avg)
	}

	out := logged()
	if !strings.Contains(out, "sensor 1 reports it's too cold (running avg temperature = 10.000)") {
		t.Fatalf("expected too-cold alert, got %q", out)
	}
	if !strings.Contains(out, "sensor 1 reports it's too hot (running avg temperature = 30.000)") {
		t.Fatalf("expected too-hot alert, got %q", out)
	}
}
