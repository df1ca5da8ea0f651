package proxy

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"
)

func TestReadExact(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   []byte
		size    int
		wantErr error
	}{
		{name: "exact", input: []byte("0123456789"), size: 10},
		{name: "longer", input: []byte("0123456789abc"), size: 10},
		{name: "short", input: []byte("01234"), size: 10, wantErr: ErrTransport},
		{name: "empty", input: nil, size: 10, wantErr: ErrTransport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := make([]byte, tt.size)
			err := ReadExact(bytes.NewReader(tt.input), buf)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("got %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(buf, tt.input[:tt.size]) {
				t.Fatalf("got %q", buf)
			}
		})
	}
}

func TestReadExactTimeout(t *testing.T) {
	t.Parallel()

	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	start := time.Now()
	err := ReadExactTimeout(a, make([]byte, 4), 50*time.Millisecond)
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("got %v, want ErrTransport", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatal("deadline not applied")
	}

	// The deadline is cleared afterwards.
	go func() { _, _ = b.Write([]byte("ping")) }()
	if err := ReadExactTimeout(a, make([]byte, 4), 0); err != nil {
		t.Fatal(err)
	}
}

func TestKind(t *testing.T) {
	t.Parallel()

	tests := map[string]error{
		"protocol":  fmt.Errorf("greeting: %w", ErrProtocol),
		"lookup":    fmt.Errorf("%w: invalid service id", ErrLookup),
		"connect":   fmt.Errorf("%w: dial", ErrConnect),
		"transport": ReadExact(bytes.NewReader(nil), make([]byte, 1)),
		"other":     errors.New("boom"),
	}
	for want, err := range tests {
		if got := Kind(err); got != want {
			t.Errorf("Kind(%v) = %q, want %q", err, got, want)
		}
	}
}
