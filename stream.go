package smsgate

import (
	"bytes"
	"io"
	"sync"

	"github.com/rs/zerolog"
)

// inputResetter is implemented by serial ports able to flush the OS input
// buffer (go.bug.st/serial.Port does).
type inputResetter interface {
	ResetInputBuffer() error
}

// Token identifies the current exclusive owner of a Stream.
type Token uint64

// Stream is the duplex byte channel to the modem. A background task moves
// bytes from the transport into an internal buffer so readers only ever
// consume what is already available and never block.
//
// Two logical readers share a Stream: the Engine, which takes exclusive
// ownership for the duration of a transaction, and the Parser, which only
// reads while nobody owns the stream.
type Stream struct {
	mu      sync.Mutex
	tr      io.ReadWriteCloser
	buf     bytes.Buffer
	owner   Token
	nextTok Token
	err     error
	ready   chan struct{}
	done    chan struct{}
	closed  bool
	log     zerolog.Logger
	rxBytes int
	txBytes int
}

// NewStream wraps a transport and starts its reader task.
func NewStream(tr io.ReadWriteCloser, logger zerolog.Logger) *Stream {
	s := &Stream{
		tr:    tr,
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
		log:   logger,
	}
	go s.readTask()
	return s
}

func (s *Stream) readTask() {
	chunk := make([]byte, 256)
	for {
		n, err := s.tr.Read(chunk)
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return
		}
		if n > 0 {
			s.buf.Write(chunk[:n])
			s.rxBytes += n
		}
		if err != nil {
			s.err = err
			s.closed = true
			s.mu.Unlock()
			close(s.done)
			s.signal()
			s.log.Debug().Err(err).Msg("transport read task finished")
			return
		}
		s.mu.Unlock()
		// Serial ports with a read timeout return (0, nil) when idle.
		if n > 0 {
			s.signal()
		}
	}
}

func (s *Stream) signal() {
	select {
	case s.ready <- struct{}{}:
	default:
	}
}

// Ready is signalled whenever new bytes become available.
func (s *Stream) Ready() <-chan struct{} {
	return s.ready
}

// Done is closed once the transport fails or the stream is closed.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Err returns the error that stopped the reader task, if any.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Buffered returns the number of bytes available for reading.
func (s *Stream) Buffered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Len()
}

// NextByte returns the next available byte. ok is false when nothing is
// buffered.
func (s *Stream) NextByte() (b byte, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buf.Len() == 0 {
		return 0, false
	}
	b, _ = s.buf.ReadByte()
	return b, true
}

// Discard drops every buffered byte and returns how many were dropped.
func (s *Stream) Discard() int {
	s.mu.Lock()
	n := s.buf.Len()
	s.buf.Reset()
	s.mu.Unlock()
	if r, ok := s.tr.(inputResetter); ok {
		if err := r.ResetInputBuffer(); err != nil {
			s.log.Debug().Err(err).Msg("reset input buffer failed")
		}
	}
	return n
}

// Write sends raw bytes to the transport.
func (s *Stream) Write(p []byte) (int, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, ErrStreamClosed
	}
	s.mu.Unlock()
	n, err := s.tr.Write(p)
	s.mu.Lock()
	s.txBytes += n
	s.mu.Unlock()
	return n, err
}

// Acquire takes exclusive ownership of the stream. It fails with
// ErrStreamBusy if another owner holds it.
func (s *Stream) Acquire() (Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.owner != 0 {
		return 0, ErrStreamBusy
	}
	s.nextTok++
	s.owner = s.nextTok
	return s.owner, nil
}

// Release gives ownership back. Releasing with a stale token is a no-op.
func (s *Stream) Release(tok Token) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.owner == tok {
		s.owner = 0
	}
}

// Owned reports whether a transaction currently holds the stream.
func (s *Stream) Owned() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.owner != 0
}

// Counters returns the total bytes received from and sent to the transport.
func (s *Stream) Counters() (rx, tx int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rxBytes, s.txBytes
}

// Close stops the reader task and closes the transport.
func (s *Stream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.err = ErrStreamClosed
	s.mu.Unlock()
	close(s.done)
	return s.tr.Close()
}
