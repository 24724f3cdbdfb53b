package connmgr

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/sensorgw/gateway/internal/sbuffer"
	"github.com/sensorgw/gateway/internal/types"
)

func testLog(t *testing.T) *zap.SugaredLogger {
	t.Helper()
	l, err := zap.NewDevelopment()
	if err != nil {
		t.Fatal(err)
	}
	return l.Sugar()
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

// TestListenDecodesRecordsFromOneSensor dials the gateway, writes three
// back-to-back records in one write (so the decoder must split a single
// chunk into three readings), and checks they land in the shared buffer
// in order.
func TestListenDecodesRecordsFromOneSensor(t *testing.T) {
	port := freePort(t)
	buf := sbuffer.New()
	mgr, err := New(port, time.Second, buf, testLog(t), nil)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- mgr.Listen(ctx) }()

	conn := dialUntilReady(t, port)
	defer conn.Close()

	var payload []byte
	for i, v := range []float64{18.5, 19.0, 19.5} {
		payload = append(payload, types.EncodeReading(types.SensorReading{
			SensorID: 7, Value: v, Timestamp: int64(1000 + i),
		})...)
	}
	if _, err := conn.Write(payload); err != nil {
		t.Fatal(err)
	}

	for i, want := range []float64{18.5, 19.0, 19.5} {
		r, ok := waitRead(t, buf, 2*time.Second)
		if !ok {
			t.Fatalf("reading %d: did not arrive", i)
		}
		if r.SensorID != 7 || r.Value != want {
			t.Fatalf("reading %d: got %+v, want sensor 7 value %v", i, r, want)
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Listen did not return after ctx cancel")
	}
}

// TestListenClosesInactiveConnection checks that a connection with no
// traffic for longer than the timeout is dropped, and that Listen itself
// exits once the connection table is empty again.
func TestListenClosesInactiveConnection(t *testing.T) {
	port := freePort(t)
	buf := sbuffer.New()
	mgr, err := New(port, 150*time.Millisecond, buf, testLog(t), nil)
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() { done <- mgr.Listen(context.Background()) }()

	conn := dialUntilReady(t, port)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Listen did not exit after its only connection went idle")
	}
	conn.Close()
}

func dialUntilReady(t *testing.T, port int) net.Conn {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	var lastErr error
	for time.Now().Before(deadline) {
		conn, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
		if err == nil {
			return conn
		}
		lastErr = err
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("could not dial gateway: %v", lastErr)
	return nil
}

func waitRead(t *testing.T, buf *sbuffer.SharedBuffer, timeout time.Duration) (types.SensorReading, bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if r, ok := buf.Read(); ok {
			return r, true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return types.SensorReading{}, false
}
