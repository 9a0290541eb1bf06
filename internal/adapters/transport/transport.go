// Package transport opens the byte links below the device adapters and
// provides the terminator-delimited read both adapters share.
package transport

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"
)

// ErrTimeout is returned when no terminator arrives before the deadline.
var ErrTimeout = errors.New("transport: read timed out")

// MaxResponse bounds a single terminator-delimited response.
const MaxResponse = 1 << 16

type readTimeouter interface {
	SetReadTimeout(time.Duration) error
}

type readDeadliner interface {
	SetReadDeadline(time.Time) error
}

type inputResetter interface {
	ResetInputBuffer() error
}

// ReadUntil reads byte by byte until term, so nothing past the terminator is
// consumed. Serial ports signal a timeout with a zero-length read, network
// links with a deadline error; both end up as ErrTimeout.
func ReadUntil(r io.Reader, term byte, timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)
	switch t := r.(type) {
	case readDeadliner:
		if err := t.SetReadDeadline(deadline); err != nil {
			return nil, err
		}
		defer t.SetReadDeadline(time.Time{})
	case readTimeouter:
		if err := t.SetReadTimeout(timeout); err != nil {
			return nil, err
		}
	}

	var (
		out []byte
		b   [1]byte
	)
	for {
		n, err := r.Read(b[:])
		if n == 1 {
			out = append(out, b[0])
			if b[0] == term {
				return out, nil
			}
			if len(out) >= MaxResponse {
				return out, fmt.Errorf("transport: response exceeds %d bytes", MaxResponse)
			}
			// serial read timeouts restart per byte; the call deadline does not
			if time.Now().After(deadline) {
				return out, ErrTimeout
			}
			continue
		}
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				return out, ErrTimeout
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				return out, ErrTimeout
			}
			return out, err
		}
		if time.Now().After(deadline) {
			return out, ErrTimeout
		}
	}
}

// ReadFull reads exactly len(p) bytes before the deadline.
func ReadFull(r io.Reader, p []byte, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	switch t := r.(type) {
	case readDeadliner:
		if err := t.SetReadDeadline(deadline); err != nil {
			return err
		}
		defer t.SetReadDeadline(time.Time{})
	case readTimeouter:
		if err := t.SetReadTimeout(timeout); err != nil {
			return err
		}
	}
	for got := 0; got < len(p); {
		n, err := r.Read(p[got:])
		got += n
		if err != nil && got < len(p) {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				return ErrTimeout
			}
			if errors.Is(err, io.EOF) {
				return io.ErrUnexpectedEOF
			}
			return err
		}
		if got < len(p) && time.Now().After(deadline) {
			return ErrTimeout
		}
	}
	return nil
}

// DiscardInput drops stale bytes when the link supports it.
func DiscardInput(rw any) error {
	if r, ok := rw.(inputResetter); ok {
		return r.ResetInputBuffer()
	}
	return nil
}

// DialTCP opens a raw socket instrument link.
func DialTCP(addr string, timeout time.Duration) (net.Conn, error) {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return conn, nil
}
