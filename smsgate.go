// Package smsgate bridges a text-mode cellular modem and an HTTP control
// surface, and drives a relay output when an authorized SMS arrives.
//
// The core pieces are:
//
//   - Stream: the byte channel to the modem, shared by two readers.
//   - Engine: turns the echo-and-terminator AT protocol into bounded
//     request/response transactions.
//   - Parser: extracts unsolicited inbound-message notifications from the
//     same stream while no transaction is in flight.
//   - Gate: compares a notification against the admin identity and secret
//     phrase and pulses the relay on a match.
//   - Bridge: single-slot mailbox between non-blocking HTTP handlers and
//     the loop that performs the blocking modem I/O.
//   - Controller: the cooperative loop tying all of the above together.
//
// Example usage:
//
//	ctl, err := smsgate.NewController(&smsgate.ControllerConfig{
//		Transport: port,
//		Auth:      smsgate.AuthorizationRecord{AdminIdentity: "+38160123456789", SecretPhrase: "openrelay"},
//		Relay:     smsgate.NewLogRelay(logger),
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer ctl.Close()
//	ctl.Init()
//	ctl.Run(ctx)
package smsgate

import (
	"errors"
	"time"
)

var (
	// ErrConfigRequired is returned when a required configuration parameter is missing
	ErrConfigRequired = errors.New("config required")
	// ErrStreamBusy is returned when the stream is already owned by a transaction
	ErrStreamBusy = errors.New("stream busy")
	// ErrStreamClosed is returned when the underlying transport has been closed
	ErrStreamClosed = errors.New("stream closed")
	// ErrBridgeBusy is returned when a command is submitted while another one is pending
	ErrBridgeBusy = errors.New("bridge busy")
	// ErrEmptyCommand is returned when an empty command is submitted
	ErrEmptyCommand = errors.New("empty command")
)

const (
	// DefaultTimeout is the transaction deadline used when none is given.
	DefaultTimeout = 5000 * time.Millisecond
	// DefaultPulse is how long the relay stays energized on a trigger.
	DefaultPulse = 1000 * time.Millisecond
	// DefaultLineEnding terminates every command written to the modem.
	DefaultLineEnding = "\r\n"
	// DefaultNotifyPrefix starts the header line of an inbound SMS.
	DefaultNotifyPrefix = "+CMT:"

	// MarkerOK ends a successful modem response.
	MarkerOK = "OK\r\n"
	// MarkerError ends a failed modem response.
	MarkerError = "ERROR\r\n"
)

// DefaultInitCommands prepare the modem for text mode SMS with direct
// +CMT delivery.
var DefaultInitCommands = []string{"AT", "ATE0", "AT+CMGF=1", "AT+CNMI=2,2,0,0,0"}
