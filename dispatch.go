package smsgate

import (
	"fmt"
	"strings"
	"time"
)

// LocalFunc generates a result without touching the modem.
type LocalFunc func() string

// Dispatcher maps a textual command to a local generator or a modem
// transaction.
type Dispatcher struct {
	engine  *Engine
	timeout time.Duration
	local   map[string]LocalFunc
}

// NewDispatcher creates a Dispatcher forwarding unknown commands to engine.
// The "status" command is registered by default.
func NewDispatcher(engine *Engine, timeout time.Duration) *Dispatcher {
	d := &Dispatcher{
		engine:  engine,
		timeout: timeout,
		local:   make(map[string]LocalFunc),
	}
	d.Register("status", d.status)
	return d
}

// Register binds name (case insensitive) to a local generator, replacing
// any previous binding.
func (d *Dispatcher) Register(name string, fn LocalFunc) {
	d.local[strings.ToLower(strings.TrimSpace(name))] = fn
}

// Handle returns the textual result of command. It is the handler the
// Controller passes to Bridge.DrainAndExecute.
func (d *Dispatcher) Handle(command string) string {
	command = strings.TrimSpace(command)
	if fn, ok := d.local[strings.ToLower(command)]; ok {
		return fn()
	}
	resp, err := d.engine.Execute(command, d.timeout)
	if err != nil {
		return fmt.Sprintf("ERROR: %v\n", err)
	}
	return resp.Text
}

func (d *Dispatcher) status() string {
	st := d.engine.Stats()
	last := "never"
	if !st.LastTxTime.IsZero() {
		last = st.LastTxTime.Format(time.RFC3339)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "transactions: %d\n", st.Transactions)
	fmt.Fprintf(&sb, "completed: %d\n", st.Completed)
	fmt.Fprintf(&sb, "timed out: %d\n", st.TimedOut)
	fmt.Fprintf(&sb, "rx bytes: %d\n", st.RxBytes)
	fmt.Fprintf(&sb, "tx bytes: %d\n", st.TxBytes)
	fmt.Fprintf(&sb, "last command: %q at %s\n", st.LastCommand, last)
	return sb.String()
}
