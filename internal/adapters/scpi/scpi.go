// Package scpi provides instrument links that speak SCPI text commands and
// return IEEE 488.2 definite-length binary blocks.
package scpi

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/subradiance/daqlog/internal/adapters/transport"
)

// Link is a command/response channel to one instrument. Query satisfies
// github.com/gotmc/query.Querier.
type Link interface {
	Command(format string, a ...any) error
	Query(cmd string) (string, error)
	QueryBlock(cmd string) ([]byte, error)
	Close() error
}

// ErrBlock marks a malformed definite-length block.
var ErrBlock = errors.New("malformed binary block")

// MaxBlock bounds the payload a block header may announce.
const MaxBlock = 1 << 24

// blockLength parses the decimal length field of a block header.
func blockLength(field []byte) (int, error) {
	for _, c := range field {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("%w: length %q", ErrBlock, field)
		}
	}
	n, err := strconv.Atoi(string(field))
	if err != nil {
		return 0, fmt.Errorf("%w: length %q", ErrBlock, field)
	}
	if n > MaxBlock {
		return 0, fmt.Errorf("%w: length %d exceeds %d bytes", ErrBlock, n, MaxBlock)
	}
	return n, nil
}

// ReadBlock reads "#<n><len><data>" from r and returns data. A trailing
// newline, if present, is left for the caller to discard.
func ReadBlock(r io.Reader, timeout time.Duration) ([]byte, error) {
	var head [2]byte
	if err := transport.ReadFull(r, head[:], timeout); err != nil {
		return nil, err
	}
	if head[0] != '#' {
		return nil, fmt.Errorf("%w: starts with %q", ErrBlock, head[0])
	}
	digits := int(head[1] - '0')
	if digits < 1 || digits > 9 {
		return nil, fmt.Errorf("%w: length digit %q", ErrBlock, head[1])
	}
	lenField := make([]byte, digits)
	if err := transport.ReadFull(r, lenField, timeout); err != nil {
		return nil, err
	}
	n, err := blockLength(lenField)
	if err != nil {
		return nil, err
	}
	data := make([]byte, n)
	if err := transport.ReadFull(r, data, timeout); err != nil {
		return nil, err
	}
	return data, nil
}

// ParseBlock decodes a complete block held in memory.
func ParseBlock(b []byte) ([]byte, error) {
	if len(b) < 2 || b[0] != '#' {
		return nil, fmt.Errorf("%w: missing header", ErrBlock)
	}
	digits := int(b[1] - '0')
	if digits < 1 || digits > 9 || len(b) < 2+digits {
		return nil, fmt.Errorf("%w: length digit %q", ErrBlock, b[1])
	}
	n, err := blockLength(b[2 : 2+digits])
	if err != nil {
		return nil, err
	}
	data := b[2+digits:]
	if len(data) < n {
		return nil, fmt.Errorf("%w: %d bytes, header says %d", ErrBlock, len(data), n)
	}
	return data[:n], nil
}

// FormatBlock wraps data in a definite-length block header.
func FormatBlock(data []byte) []byte {
	n := strconv.Itoa(len(data))
	out := make([]byte, 0, 2+len(n)+len(data))
	out = append(out, '#', byte('0'+len(n)))
	out = append(out, n...)
	return append(out, data...)
}
