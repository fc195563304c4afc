package serial

import (
	"io"
	"testing"
	"time"

	goserial "go.bug.st/serial"
)

// flakyPort fails a scripted number of writes before succeeding. Unused
// goserial.Port methods panic through the embedded nil interface.
type flakyPort struct {
	goserial.Port
	failWrites int
	writes     int
	closed     int
}

func (p *flakyPort) Write(data []byte) (int, error) {
	p.writes++
	if p.failWrites > 0 {
		p.failWrites--
		return 0, io.ErrClosedPipe
	}
	return len(data), nil
}

func (p *flakyPort) Drain() error             { return nil }
func (p *flakyPort) ResetInputBuffer() error  { return nil }
func (p *flakyPort) ResetOutputBuffer() error { return nil }
func (p *flakyPort) Close() error             { p.closed++; return nil }

func newTestFailSafe(port *flakyPort, opens *int) *FailSafe {
	f := NewFailSafe(Descriptor{PortPath: "/dev/null"}, Configuration{BaudRate: 115200}, 3, time.Millisecond)
	f.open = func() (*Port, error) {
		*opens++
		return &Port{port: port}, nil
	}
	return f
}

func TestFailSafeRetriesAndRecovers(t *testing.T) {
	port := &flakyPort{failWrites: 2}
	opens := 0
	f := newTestFailSafe(port, &opens)

	if err := f.Write([]byte("x")); err != nil {
		t.Fatalf("write should recover: %v", err)
	}
	if port.writes != 3 {
		t.Fatalf("writes = %d, want 3", port.writes)
	}
	// Each failure released and re-opened the port.
	if opens != 3 || port.closed != 2 {
		t.Fatalf("opens = %d, closed = %d", opens, port.closed)
	}
}

func TestFailSafeExhaustionAggregatesErrors(t *testing.T) {
	port := &flakyPort{failWrites: 99}
	opens := 0
	f := newTestFailSafe(port, &opens)

	err := f.Write([]byte("x"))
	if err == nil {
		t.Fatal("expected aggregate failure")
	}
	if port.writes != 3 {
		t.Fatalf("writes = %d, want retry count 3", port.writes)
	}
}

func TestMultiErrorUnwrapsLast(t *testing.T) {
	m := MultiError{io.EOF, io.ErrClosedPipe}
	if m.Unwrap() != io.ErrClosedPipe {
		t.Fatalf("unwrap = %v", m.Unwrap())
	}
}
