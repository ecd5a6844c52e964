package smsgate

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// TxState is the terminal state of a modem transaction.
type TxState int

const (
	// TxPending means the transaction is still collecting bytes
	TxPending TxState = iota
	// TxCompleted means the response ended with a terminal marker
	TxCompleted
	// TxTimedOut means the deadline elapsed before a terminal marker arrived
	TxTimedOut
)

// String returns a human-readable string representation of the state.
func (ts TxState) String() string {
	switch ts {
	case TxPending:
		return "Pending"
	case TxCompleted:
		return "Completed"
	case TxTimedOut:
		return "TimedOut"
	default:
		return "Unknown"
	}
}

// Response is the outcome of Engine.Execute. Text is trimmed and ends with
// exactly one newline whatever the State.
type Response struct {
	Text  string
	State TxState
}

// transaction is owned by a single Execute call.
type transaction struct {
	command  string
	started  time.Time
	deadline time.Time
	buf      bytes.Buffer
	state    TxState
}

func newTransaction(command string, timeout time.Duration) *transaction {
	now := time.Now()
	return &transaction{
		command:  command,
		started:  now,
		deadline: now.Add(timeout),
		state:    TxPending,
	}
}

// collect moves available bytes into the response buffer. It stops right
// after a terminal marker so whatever follows stays in the stream for the
// parser.
func (tx *transaction) collect(s *Stream) {
	for {
		b, ok := s.NextByte()
		if !ok {
			return
		}
		tx.buf.WriteByte(b)
		if b == '\n' && tx.terminated() {
			tx.state = TxCompleted
			return
		}
	}
}

func (tx *transaction) terminated() bool {
	data := tx.buf.Bytes()
	return bytes.HasSuffix(data, []byte(MarkerOK)) || bytes.HasSuffix(data, []byte(MarkerError))
}

func (tx *transaction) response() Response {
	return Response{
		Text:  strings.TrimSpace(tx.buf.String()) + "\n",
		State: tx.state,
	}
}

// Stats contains runtime statistics of an Engine.
type Stats struct {
	// Transactions is the total number of transactions executed
	Transactions int
	// Completed is the number of transactions that saw a terminal marker
	Completed int
	// TimedOut is the number of transactions that hit their deadline
	TimedOut int
	// RxBytes is the total number of bytes received from the modem
	RxBytes int
	// TxBytes is the total number of bytes sent to the modem
	TxBytes int
	// LastCommand is the text of the last executed command
	LastCommand string
	// LastTxTime is the start time of the last transaction
	LastTxTime time.Time
}

// EngineConfig contains the configuration parameters of an Engine.
type EngineConfig struct {
	// Stream is the shared modem stream (required)
	Stream *Stream
	// LineEnding terminates each command (default: "\r\n")
	LineEnding string
	// Timeout is the default transaction deadline (default: 5s)
	Timeout time.Duration
	// Metrics receives transaction observations (optional)
	Metrics *Metrics
	// Logger is used for transaction logging (default: no logging)
	Logger *zerolog.Logger
}

// Engine executes one modem command at a time. It is not safe for
// concurrent use; the Controller loop is its only caller.
type Engine struct {
	stream     *Stream
	lineEnding string
	timeout    time.Duration
	metrics    *Metrics
	log        zerolog.Logger
	stats      Stats
}

// NewEngine creates an Engine. Returns ErrConfigRequired if config or its
// Stream is nil.
func NewEngine(config *EngineConfig) (*Engine, error) {
	if config == nil || config.Stream == nil {
		return nil, ErrConfigRequired
	}
	e := &Engine{
		stream:     config.Stream,
		lineEnding: config.LineEnding,
		timeout:    config.Timeout,
		metrics:    config.Metrics,
		log:        zerolog.Nop(),
	}
	if config.Logger != nil {
		e.log = *config.Logger
	}
	if e.lineEnding == "" {
		e.lineEnding = DefaultLineEnding
	}
	if e.timeout <= 0 {
		e.timeout = DefaultTimeout
	}
	return e, nil
}

// Timeout returns the default transaction deadline.
func (e *Engine) Timeout() time.Duration {
	return e.timeout
}

// Execute sends command to the modem and collects the response until an
// OK/ERROR marker arrives or timeout elapses. A timeout is not an error:
// the partial response is returned tagged TxTimedOut. A non-positive
// timeout selects the engine default.
//
// The stream is owned exclusively for the whole call, so the parser never
// sees bytes that belong to the transaction.
func (e *Engine) Execute(command string, timeout time.Duration) (Response, error) {
	if timeout <= 0 {
		timeout = e.timeout
	}
	tok, err := e.stream.Acquire()
	if err != nil {
		return Response{}, err
	}
	defer e.stream.Release(tok)

	tx := newTransaction(command, timeout)
	if n := e.stream.Discard(); n > 0 {
		e.log.Debug().Int("bytes", n).Msg("discarded stale modem output")
	}
	e.log.Debug().Str("cmd", command).Msg("modem transaction start")
	if _, err := e.stream.Write([]byte(command + e.lineEnding)); err != nil {
		return Response{}, fmt.Errorf("write command %q: %w", command, err)
	}

	timer := time.NewTimer(time.Until(tx.deadline))
	defer timer.Stop()
	for tx.state == TxPending {
		tx.collect(e.stream)
		if tx.state != TxPending {
			break
		}
		select {
		case <-e.stream.Ready():
		case <-timer.C:
			tx.collect(e.stream)
			if tx.state == TxPending {
				tx.state = TxTimedOut
			}
		case <-e.stream.Done():
			tx.collect(e.stream)
			if tx.state == TxPending {
				tx.state = TxTimedOut
			}
		}
	}

	resp := tx.response()
	e.record(tx)
	e.log.Debug().Str("cmd", command).Str("state", tx.state.String()).
		Dur("elapsed", time.Since(tx.started)).Msg("modem transaction end")
	return resp, nil
}

func (e *Engine) record(tx *transaction) {
	e.stats.Transactions++
	switch tx.state {
	case TxCompleted:
		e.stats.Completed++
	case TxTimedOut:
		e.stats.TimedOut++
	}
	e.stats.LastCommand = tx.command
	e.stats.LastTxTime = tx.started
	e.metrics.observeTransaction(tx.state, time.Since(tx.started))
}

// Stats returns a copy of the engine statistics.
func (e *Engine) Stats() Stats {
	st := e.stats
	st.RxBytes, st.TxBytes = e.stream.Counters()
	return st
}
