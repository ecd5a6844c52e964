package smsgate

import (
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Bridge is a single-slot mailbox between callers that must not block
// (HTTP handlers) and the loop that runs modem transactions.
//
// At most one command is pending. A submission while the slot is occupied
// is rejected, never queued. A result is handed out once and then cleared.
type Bridge struct {
	mu        sync.Mutex
	command   *string
	result    *string
	submitted chan struct{}
	metrics   *Metrics
	log       zerolog.Logger
}

// NewBridge creates an empty Bridge.
func NewBridge(metrics *Metrics, logger zerolog.Logger) *Bridge {
	return &Bridge{
		submitted: make(chan struct{}, 1),
		metrics:   metrics,
		log:       logger,
	}
}

// Submit places command in the slot. It returns ErrEmptyCommand for blank
// input and ErrBridgeBusy when a command is already pending. It never
// blocks.
func (b *Bridge) Submit(command string) error {
	command = strings.TrimSpace(command)
	if command == "" {
		return ErrEmptyCommand
	}
	b.mu.Lock()
	if b.command != nil {
		b.mu.Unlock()
		b.metrics.bridgeRejectedInc()
		b.log.Debug().Str("cmd", command).Msg("bridge busy, command rejected")
		return ErrBridgeBusy
	}
	b.command = &command
	b.mu.Unlock()
	select {
	case b.submitted <- struct{}{}:
	default:
	}
	return nil
}

// Submitted is signalled after each accepted submission.
func (b *Bridge) Submitted() <-chan struct{} {
	return b.submitted
}

// Pending reports whether a command waits for execution.
func (b *Bridge) Pending() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.command != nil
}

// DrainAndExecute runs the pending command, if any, through handle, stores
// its result and frees the command slot. It reports whether a command ran.
// The slot stays occupied while handle runs, so submissions made meanwhile
// are rejected.
func (b *Bridge) DrainAndExecute(handle func(command string) string) bool {
	b.mu.Lock()
	if b.command == nil {
		b.mu.Unlock()
		return false
	}
	command := *b.command
	b.mu.Unlock()

	result := handle(command)

	b.mu.Lock()
	b.result = &result
	b.command = nil
	b.mu.Unlock()
	return true
}

// FetchResult returns the stored result and clears it. It returns "" when
// no result is ready.
func (b *Bridge) FetchResult() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.result == nil {
		return ""
	}
	r := *b.result
	b.result = nil
	return r
}
