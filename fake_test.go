package smsgate

import (
	"bytes"
	"io"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeModem implements io.ReadWriteCloser. Every complete line written to it
// is passed to respond and the returned text is queued for reading.
type fakeModem struct {
	mu        sync.Mutex
	in        chan []byte
	writes    bytes.Buffer
	pending   bytes.Buffer
	respond   func(line string) string
	closed    chan struct{}
	closeOnce sync.Once
	resets    int
}

func newFakeModem(respond func(line string) string) *fakeModem {
	return &fakeModem{
		in:      make(chan []byte, 256),
		respond: respond,
		closed:  make(chan struct{}),
	}
}

// okModem answers every command with OK and no echo.
func okModem() *fakeModem {
	return newFakeModem(func(string) string { return "\r\nOK\r\n" })
}

func (f *fakeModem) Read(p []byte) (int, error) {
	select {
	case b := <-f.in:
		return copy(p, b), nil
	case <-f.closed:
		return 0, io.EOF
	}
}

func (f *fakeModem) Write(p []byte) (int, error) {
	select {
	case <-f.closed:
		return 0, io.ErrClosedPipe
	default:
	}
	f.mu.Lock()
	f.writes.Write(p)
	f.pending.Write(p)
	var lines []string
	for {
		s := f.pending.String()
		i := strings.Index(s, "\r\n")
		if i < 0 {
			break
		}
		lines = append(lines, s[:i])
		f.pending.Next(i + 2)
	}
	respond := f.respond
	f.mu.Unlock()
	if respond != nil {
		for _, l := range lines {
			f.Push(respond(l))
		}
	}
	return len(p), nil
}

// Push queues s for reading in chunks the stream reader can take at once.
func (f *fakeModem) Push(s string) {
	for len(s) > 0 {
		n := min(len(s), 64)
		f.in <- []byte(s[:n])
		s = s[n:]
	}
}

func (f *fakeModem) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeModem) ResetInputBuffer() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	return nil
}

func (f *fakeModem) Written() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes.String()
}

// waitBuffered waits until s holds at least n bytes.
func waitBuffered(t *testing.T, s *Stream, n int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for s.Buffered() < n {
		if time.Now().After(deadline) {
			t.Fatalf("stream buffered %d bytes, want at least %d", s.Buffered(), n)
		}
		time.Sleep(time.Millisecond)
	}
}

// recordingRelay remembers every level set.
type recordingRelay struct {
	mu     sync.Mutex
	levels []bool
}

func (r *recordingRelay) Set(on bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.levels = append(r.levels, on)
	return nil
}

func (r *recordingRelay) Levels() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.levels...)
}
