package transport

import (
	"errors"
	"net"
	"testing"
	"time"
)

func TestReadUntilStopsAtTerminator(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		server.Write([]byte("0011740"))
		server.Write([]byte("06100023025\rleftover"))
	}()

	got, err := ReadUntil(client, '\r', time.Second)
	if err != nil {
		t.Fatalf("read until: %v", err)
	}
	if string(got) != "001174006100023025\r" {
		t.Fatalf("unexpected response %q", got)
	}
}

func TestReadUntilTimesOut(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	start := time.Now()
	_, err := ReadUntil(client, '\n', 30*time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("timeout took too long: %s", time.Since(start))
	}
}

// tricklePort mimics a serial port whose per-read timeout restarts with
// every byte it delivers.
type tricklePort struct{ every time.Duration }

func (p *tricklePort) SetReadTimeout(time.Duration) error { return nil }

func (p *tricklePort) Read(b []byte) (int, error) {
	time.Sleep(p.every)
	b[0] = 'x'
	return 1, nil
}

func TestReadUntilBoundsTricklingPort(t *testing.T) {
	start := time.Now()
	got, err := ReadUntil(&tricklePort{every: 5 * time.Millisecond}, '\r', 40*time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if took := time.Since(start); took > 500*time.Millisecond {
		t.Fatalf("call outlived its deadline: %s", took)
	}
	if len(got) == 0 {
		t.Fatalf("expected partial data")
	}
}

func TestReadFullBoundsTricklingPort(t *testing.T) {
	buf := make([]byte, 1<<12)
	start := time.Now()
	if err := ReadFull(&tricklePort{every: 5 * time.Millisecond}, buf, 40*time.Millisecond); !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if took := time.Since(start); took > 500*time.Millisecond {
		t.Fatalf("call outlived its deadline: %s", took)
	}
}

func TestReadFull(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go server.Write([]byte{1, 2, 3, 4})

	buf := make([]byte, 4)
	if err := ReadFull(client, buf, time.Second); err != nil {
		t.Fatalf("read full: %v", err)
	}
	if buf[3] != 4 {
		t.Fatalf("unexpected bytes %v", buf)
	}
}

func TestSerialConfigDefaultsAndValidate(t *testing.T) {
	c := SerialConfig{Port: "/dev/ttyUSB0"}
	c.ApplyDefaults()
	if c.Baudrate != 9600 || c.Bytesize != 8 || c.Parity != "N" || c.Stopbits != 1 || c.Timeout != 3*time.Second {
		t.Fatalf("unexpected defaults: %+v", c)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	c.Parity = "X"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected invalid parity to fail validation")
	}
	if err := (&SerialConfig{}).Validate(); err == nil {
		t.Fatalf("expected missing port to fail validation")
	}
}
