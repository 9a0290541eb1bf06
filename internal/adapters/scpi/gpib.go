package scpi

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/gotmc/prologix"

	"github.com/subradiance/daqlog/internal/adapters/transport"
)

// GPIB is a link through a Prologix GPIB-USB controller. Text queries go
// through the controller; binary blocks are read directly off the port since
// the payload may contain the controller's EOT character.
type GPIB struct {
	mu      sync.Mutex
	port    io.ReadWriter
	ctrl    *prologix.Controller
	timeout time.Duration
}

var _ Link = (*GPIB)(nil)

// OpenGPIB opens the controller's virtual COM port and addresses the instrument.
func OpenGPIB(sc transport.SerialConfig, addr int) (*GPIB, error) {
	if sc.Baudrate == 0 {
		sc.Baudrate = 115200
	}
	sc.ApplyDefaults()
	port, err := transport.OpenSerial(sc)
	if err != nil {
		return nil, err
	}
	g, err := NewGPIB(port, addr, sc.Timeout)
	if err != nil {
		port.Close()
		return nil, err
	}
	return g, nil
}

// NewGPIB configures the controller on an open port.
func NewGPIB(port io.ReadWriter, addr int, timeout time.Duration) (*GPIB, error) {
	ctrl, err := prologix.NewController(port, addr, true)
	if err != nil {
		return nil, fmt.Errorf("prologix controller: %w", err)
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &GPIB{port: port, ctrl: ctrl, timeout: timeout}, nil
}

func (g *GPIB) Command(format string, a ...any) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(a) == 0 {
		return g.ctrl.Command(format)
	}
	return g.ctrl.Command(format, a...)
}

func (g *GPIB) Query(cmd string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, err := g.ctrl.Query(cmd)
	if err != nil {
		return "", fmt.Errorf("query %q: %w", cmd, err)
	}
	return strings.TrimSpace(s), nil
}

func (g *GPIB) QueryBlock(cmd string) ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.ctrl.Command(cmd); err != nil {
		return nil, fmt.Errorf("send %q: %w", cmd, err)
	}
	if err := g.ctrl.CommandController("read eoi"); err != nil {
		return nil, fmt.Errorf("read eoi: %w", err)
	}
	data, err := ReadBlock(g.port, g.timeout)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", cmd, err)
	}
	if _, err := transport.ReadUntil(g.port, '\n', g.timeout); err != nil {
		return nil, fmt.Errorf("query %q: block terminator: %w", cmd, err)
	}
	return data, nil
}

func (g *GPIB) Close() error {
	if c, ok := g.port.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
