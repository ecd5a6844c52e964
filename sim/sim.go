// Package sim provides a simulated text-mode cellular modem. It answers AT
// command lines on a TTY the way a SIM800-class module does and can push
// unsolicited +CMT notifications, which makes it possible to exercise a
// gateway without hardware.
//
// Example usage:
//
//	tty, _ := pty.New()
//	m, err := sim.NewModem(&sim.ModemConfig{
//		TTY:            tty,
//		DirectDelivery: true,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer m.CloseSync()
//	m.InjectMessageSync("+38160123456789", "openrelay")
package sim

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	// ErrConfigRequired is returned when a required configuration parameter is missing
	ErrConfigRequired = errors.New("config required")
	// ErrClosed is returned when the modem has been closed
	ErrClosed = errors.New("modem closed")
	// ErrDeliveryDisabled is returned when messages cannot be pushed because
	// text mode or direct delivery (AT+CNMI=2,2) is not configured
	ErrDeliveryDisabled = errors.New("direct message delivery disabled")
)

// ModemStatus represents the operational state of the simulated modem.
type ModemStatus int

const (
	// StatusIdle means the modem accepts commands
	StatusIdle ModemStatus = iota
	// StatusClosed is terminal; the TTY has been closed
	StatusClosed
)

// String returns a human-readable string representation of the modem status.
func (ms ModemStatus) String() string {
	switch ms {
	case StatusIdle:
		return "Idle"
	case StatusClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// RetCode is the final result code of a command line.
type RetCode int

const (
	// RetCodeOk prints OK
	RetCodeOk RetCode = iota
	// RetCodeError prints ERROR
	RetCodeError
	// RetCodeSilent prints nothing
	RetCodeSilent
	// RetCodeSkip lets the built-in command handling run
	RetCodeSkip
)

// LineHookType handles a complete command line (without the "AT" prefix).
// Returning RetCodeSkip falls back to the built-in handling.
type LineHookType func(m *Modem, line string) RetCode

// ModemConfig contains the configuration parameters of a simulated modem.
type ModemConfig struct {
	// Id identifies the modem in logs
	Id string
	// TTY is the terminal device the gateway talks to (required)
	TTY io.ReadWriteCloser
	// LineHook is an optional callback for custom command lines
	LineHook LineHookType
	// Echo starts the modem with echo enabled, like real hardware after reset
	Echo bool
	// DirectDelivery starts the modem in text mode with AT+CNMI=2,2 applied
	DirectDelivery bool
	// SignalQuality is reported by AT+CSQ (default: 20)
	SignalQuality int
	// Now supplies the service-center timestamp (default: time.Now)
	Now func() time.Time
	// Logger (default: no logging)
	Logger *zerolog.Logger
}

// Metrics contains runtime statistics of a simulated modem.
type Metrics struct {
	// Status is the current operational status
	Status ModemStatus
	// TtyTxBytes is the total number of bytes written to the TTY
	TtyTxBytes int
	// TtyRxBytes is the total number of bytes read from the TTY
	TtyRxBytes int
	// Commands is the number of command lines processed
	Commands int
	// Injected is the number of notifications pushed
	Injected int
	// LastAtCmdTime is the timestamp of the last command line
	LastAtCmdTime time.Time
}

// Modem is a simulated cellular modem. It is safe for concurrent use; the
// plain methods require the caller to hold the lock and the Sync variants
// take it themselves.
type Modem struct {
	sync.Mutex
	st       ModemStatus
	id       string
	tty      io.ReadWriteCloser
	lineHook LineHookType
	echo     bool
	textMode bool
	cnmi     []int
	csq      int
	now      func() time.Time
	log      zerolog.Logger
	metrics  *Metrics
}

const crlf = "\r\n"

func (m *Modem) checkLock() {
	if m.TryLock() {
		panic("Modem lock not held")
	}
}

func (m *Modem) ttyWrite(b []byte) {
	if m.st == StatusClosed {
		return
	}
	n, err := m.tty.Write(b)
	if err != nil || n == 0 {
		m.close()
		return
	}
	m.metrics.TtyTxBytes += n
}

func (m *Modem) ttyWriteStr(s string) {
	m.ttyWrite([]byte(s))
}

// Id returns the modem identifier.
func (m *Modem) Id() string {
	return m.id
}

func (m *Modem) printRetCode(ret RetCode) {
	switch ret {
	case RetCodeOk:
		m.ttyWriteStr(crlf + "OK" + crlf)
	case RetCodeError:
		m.ttyWriteStr(crlf + "ERROR" + crlf)
	}
}

// Info writes an information response line, e.g. "+CSQ: 20,0". The modem
// lock must be held; line hooks run with it held.
func (m *Modem) Info(line string) {
	m.checkLock()
	m.info(line)
}

func (m *Modem) info(line string) {
	m.ttyWriteStr(crlf + line + crlf)
}

func (m *Modem) status() ModemStatus {
	return m.st
}

// Status returns the current status. The modem lock must be held.
func (m *Modem) Status() ModemStatus {
	m.checkLock()
	return m.status()
}

// StatusSync returns the current status with automatic lock management.
func (m *Modem) StatusSync() ModemStatus {
	m.Lock()
	defer m.Unlock()
	return m.status()
}

func (m *Modem) close() {
	if m.st == StatusClosed {
		return
	}
	m.st = StatusClosed
	m.tty.Close()
	m.log.Debug().Str("id", m.id).Msg("simulated modem closed")
}

// Close closes the modem and its TTY. The modem lock must be held.
func (m *Modem) Close() {
	m.checkLock()
	m.close()
}

// CloseSync closes the modem with automatic lock management.
func (m *Modem) CloseSync() {
	m.Lock()
	defer m.Unlock()
	m.close()
}

func (m *Modem) directDelivery() bool {
	return m.textMode && len(m.cnmi) >= 2 && m.cnmi[1] == 2
}

func (m *Modem) injectMessage(sender, body string) error {
	if m.status() == StatusClosed {
		return ErrClosed
	}
	if !m.directDelivery() {
		return ErrDeliveryDisabled
	}
	ts := m.now().UTC().Format("06/01/02,15:04:05") + "+00"
	m.ttyWriteStr(fmt.Sprintf("%s+CMT: \"%s\",\"\",\"%s\"%s%s%s", crlf, sender, ts, crlf, body, crlf))
	m.metrics.Injected++
	return nil
}

// InjectMessage pushes an incoming SMS notification to the TTY. The modem
// lock must be held.
func (m *Modem) InjectMessage(sender, body string) error {
	m.checkLock()
	return m.injectMessage(sender, body)
}

// InjectMessageSync pushes an incoming SMS notification with automatic lock
// management.
func (m *Modem) InjectMessageSync(sender, body string) error {
	m.Lock()
	defer m.Unlock()
	return m.injectMessage(sender, body)
}

// MetricsSync returns a copy of the modem statistics.
func (m *Modem) MetricsSync() *Metrics {
	m.Lock()
	defer m.Unlock()
	copy := *m.metrics
	copy.Status = m.status()
	return &copy
}

func parseInts(s string) ([]int, bool) {
	var out []int
	for _, f := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return nil, false
		}
		out = append(out, n)
	}
	return out, true
}

// processCommand handles one command of a line, upper-cased and without
// the AT prefix.
func (m *Modem) processCommand(cmd string) RetCode {
	switch {
	case cmd == "":
		return RetCodeOk
	case cmd == "E0" || cmd == "E":
		m.echo = false
	case cmd == "E1":
		m.echo = true
	case cmd == "Z" || cmd == "&F":
		m.echo = true
		m.textMode = false
		m.cnmi = nil
	case cmd == "I":
		m.info("SIMCOM_SIM800L")
	case cmd == "+CSQ":
		m.info(fmt.Sprintf("+CSQ: %d,0", m.csq))
	case cmd == "+CMGF?":
		mode := 0
		if m.textMode {
			mode = 1
		}
		m.info(fmt.Sprintf("+CMGF: %d", mode))
	case strings.HasPrefix(cmd, "+CMGF="):
		switch cmd[len("+CMGF="):] {
		case "0":
			m.textMode = false
		case "1":
			m.textMode = true
		default:
			return RetCodeError
		}
	case cmd == "+CNMI?":
		vals := make([]string, 0, len(m.cnmi))
		for _, v := range m.cnmi {
			vals = append(vals, strconv.Itoa(v))
		}
		m.info("+CNMI: " + strings.Join(vals, ","))
	case strings.HasPrefix(cmd, "+CNMI="):
		vals, ok := parseInts(cmd[len("+CNMI="):])
		if !ok || len(vals) == 0 || len(vals) > 5 {
			return RetCodeError
		}
		m.cnmi = vals
	default:
		return RetCodeError
	}
	return RetCodeOk
}

func (m *Modem) processAtCommand(line string) RetCode {
	if m.status() != StatusIdle {
		return RetCodeError
	}
	m.metrics.LastAtCmdTime = m.now()
	m.metrics.Commands++
	if m.lineHook != nil {
		r := m.lineHook(m, line)
		if r != RetCodeSkip {
			return r
		}
	}
	// Basic commands (E0, Z) may be chained with ';' like real hardware.
	for _, cmd := range strings.Split(line, ";") {
		if r := m.processCommand(strings.ToUpper(strings.TrimSpace(cmd))); r != RetCodeOk {
			return r
		}
	}
	return RetCodeOk
}

// ProcessAtCommandSync processes a command line (without the AT prefix)
// and returns its result code without printing it.
func (m *Modem) ProcessAtCommandSync(line string) RetCode {
	m.Lock()
	defer m.Unlock()
	return m.processAtCommand(line)
}

func (m *Modem) ttyReadTask() {
	aFlag := false
	atFlag := false
	buffer := bytes.NewBuffer(nil)
	byteBuff := make([]byte, 1)
	lastCmd := ""

	m.Lock()
	for m.status() != StatusClosed {
		m.Unlock()
		n, err := m.tty.Read(byteBuff)
		m.Lock()
		if m.status() == StatusClosed {
			break
		}
		if err != nil || n == 0 {
			m.close()
			break
		}
		m.metrics.TtyRxBytes += n
		b := byteBuff[0]

		if !atFlag {
			if m.echo {
				m.ttyWrite(byteBuff)
			}
			upper := bytes.ToUpper(byteBuff)[0]
			if upper == 'A' {
				aFlag = true
				continue
			}
			if aFlag && b == '/' {
				aFlag = false
				m.printRetCode(m.processAtCommand(lastCmd))
				continue
			}
			if aFlag && upper == 'T' {
				atFlag = true
				aFlag = false
				continue
			}
			aFlag = false
			continue
		}

		switch {
		case b == 0x7f || b == 0x08:
			if buffer.Len() > 0 {
				buffer.Truncate(buffer.Len() - 1)
			}
		case b == '\r':
			atFlag = false
			if m.echo {
				m.ttyWriteStr("\r")
			}
			lastCmd = buffer.String()
			buffer.Reset()
			m.printRetCode(m.processAtCommand(lastCmd))
		case buffer.Len() < 256 && strconv.IsPrint(rune(b)):
			buffer.WriteByte(b)
			if m.echo {
				m.ttyWrite(byteBuff)
			}
		}
	}
	m.Unlock()
}

// NewModem creates a simulated modem and starts reading its TTY.
//
// Returns ErrConfigRequired if config or its TTY is nil.
func NewModem(config *ModemConfig) (*Modem, error) {
	if config == nil || config.TTY == nil {
		return nil, ErrConfigRequired
	}
	m := &Modem{
		st:       StatusIdle,
		id:       config.Id,
		tty:      config.TTY,
		lineHook: config.LineHook,
		echo:     config.Echo,
		csq:      config.SignalQuality,
		now:      config.Now,
		log:      zerolog.Nop(),
		metrics:  &Metrics{},
	}
	if config.Logger != nil {
		m.log = *config.Logger
	}
	if m.csq == 0 {
		m.csq = 20
	}
	if m.now == nil {
		m.now = time.Now
	}
	if config.DirectDelivery {
		m.textMode = true
		m.cnmi = []int{2, 2, 0, 0, 0}
	}
	go m.ttyReadTask()
	return m, nil
}
