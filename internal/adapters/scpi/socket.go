package scpi

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/subradiance/daqlog/internal/adapters/transport"
)

// Socket is a raw SCPI link over TCP (port 5025 on most analyzers).
type Socket struct {
	mu      sync.Mutex
	rw      io.ReadWriter
	timeout time.Duration
}

var _ Link = (*Socket)(nil)

// DialSocket connects to host:port.
func DialSocket(addr string, timeout time.Duration) (*Socket, error) {
	conn, err := transport.DialTCP(addr, timeout)
	if err != nil {
		return nil, err
	}
	return NewSocket(conn, timeout), nil
}

// NewSocket wraps an established stream.
func NewSocket(rw io.ReadWriter, timeout time.Duration) *Socket {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Socket{rw: rw, timeout: timeout}
}

func (s *Socket) Command(format string, a ...any) error {
	cmd := format
	if len(a) > 0 {
		cmd = fmt.Sprintf(format, a...)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.send(cmd)
}

func (s *Socket) Query(cmd string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.send(cmd); err != nil {
		return "", err
	}
	line, err := transport.ReadUntil(s.rw, '\n', s.timeout)
	if err != nil {
		return "", fmt.Errorf("query %q: %w", cmd, err)
	}
	return strings.TrimSpace(string(line)), nil
}

func (s *Socket) QueryBlock(cmd string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.send(cmd); err != nil {
		return nil, err
	}
	data, err := ReadBlock(s.rw, s.timeout)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", cmd, err)
	}
	// consume the message terminator
	if _, err := transport.ReadUntil(s.rw, '\n', s.timeout); err != nil {
		return nil, fmt.Errorf("query %q: block terminator: %w", cmd, err)
	}
	return data, nil
}

func (s *Socket) send(cmd string) error {
	if _, err := io.WriteString(s.rw, strings.TrimSpace(cmd)+"\n"); err != nil {
		return fmt.Errorf("send %q: %w", cmd, err)
	}
	return nil
}

func (s *Socket) Close() error {
	if c, ok := s.rw.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
