package scpi

import (
	"bufio"
	"bytes"
	"errors"
	"net"
	"strings"
	"testing"
	"time"
)

func TestParseBlockRoundTrip(t *testing.T) {
	data := []byte{0, 1, '\n', 3, '#'}
	got, err := ParseBlock(FormatBlock(data))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("got %v, want %v", got, data)
	}
}

func TestParseBlockRejectsMalformed(t *testing.T) {
	for _, in := range []string{"", "12", "#0", "#3ab", "#210abc", "#2-1ab", "#3+01a", "#9999999999"} {
		if _, err := ParseBlock([]byte(in)); !errors.Is(err, ErrBlock) {
			t.Fatalf("%q: expected ErrBlock, got %v", in, err)
		}
	}
}

func TestReadBlock(t *testing.T) {
	r := bytes.NewReader(append(FormatBlock([]byte("abcdefghijkl")), '\n'))
	got, err := ReadBlock(r, time.Second)
	if err != nil {
		t.Fatalf("read block: %v", err)
	}
	if string(got) != "abcdefghijkl" {
		t.Fatalf("unexpected data %q", got)
	}
}

func TestReadBlockRejectsMalformed(t *testing.T) {
	for _, in := range []string{"#3-12abcdefghijkl\n", "#9999999999\n", "x3012abc\n", "#0\n"} {
		if _, err := ReadBlock(bytes.NewReader([]byte(in)), 50*time.Millisecond); !errors.Is(err, ErrBlock) {
			t.Fatalf("%q: expected ErrBlock, got %v", in, err)
		}
	}
}

// instrument answers SCPI lines on the far end of a pipe.
func instrument(t *testing.T, conn net.Conn, answers map[string][]byte) {
	t.Helper()
	go func() {
		sc := bufio.NewScanner(conn)
		for sc.Scan() {
			resp, ok := answers[strings.TrimSpace(sc.Text())]
			if !ok {
				continue
			}
			conn.Write(append(resp, '\n'))
		}
	}()
}

func TestSocketQueryAndBlock(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	instrument(t, server, map[string][]byte{
		"FREQ:STAR?":   []byte("1.0E+09"),
		"TRAC? TRACE1": FormatBlock([]byte{1, 2, '\n', 4}),
	})

	s := NewSocket(client, time.Second)
	if err := s.Command("FREQ:CENT %d", 1500000000); err != nil {
		t.Fatalf("command: %v", err)
	}
	got, err := s.Query("FREQ:STAR?")
	if err != nil || got != "1.0E+09" {
		t.Fatalf("query: %q %v", got, err)
	}
	block, err := s.QueryBlock("TRAC? TRACE1")
	if err != nil {
		t.Fatalf("query block: %v", err)
	}
	if !bytes.Equal(block, []byte{1, 2, '\n', 4}) {
		t.Fatalf("unexpected block %v", block)
	}
}

func TestSocketQueryTimeout(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()
	instrument(t, server, nil)

	s := NewSocket(client, 30*time.Millisecond)
	if _, err := s.Query("*IDN?"); err == nil {
		t.Fatalf("expected timeout")
	}
}
