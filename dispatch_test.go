package smsgate

import (
	"strings"
	"testing"
	"time"
)

func TestDispatcher_Handle(t *testing.T) {
	f := newFakeModem(func(line string) string {
		if line == "AT+CSQ" {
			return "\r\n+CSQ: 17,0\r\n\r\nOK\r\n"
		}
		return "\r\nERROR\r\n"
	})
	e, _ := newTestEngine(t, f, nil)
	d := NewDispatcher(e, time.Second)
	d.Register("Ping", func() string { return "pong\n" })

	tests := []struct {
		name     string
		command  string
		expected string
	}{
		{"modem command", "AT+CSQ", "+CSQ: 17,0\r\n\r\nOK\n"},
		{"modem error", "AT+BOGUS", "ERROR\n"},
		{"local command", "ping", "pong\n"},
		{"local command case and space", "  PING ", "pong\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := d.Handle(tt.command); got != tt.expected {
				t.Errorf("Handle(%q) = %q, want %q", tt.command, got, tt.expected)
			}
		})
	}
	if got := f.Written(); got != "AT+CSQ\r\nAT+BOGUS\r\n" {
		t.Errorf("written = %q, local commands must not reach the modem", got)
	}
}

func TestDispatcher_Status(t *testing.T) {
	e, _ := newTestEngine(t, okModem(), nil)
	d := NewDispatcher(e, time.Second)

	if out := d.Handle("status"); !strings.Contains(out, "transactions: 0") || !strings.Contains(out, "never") {
		t.Errorf("status before any transaction = %q", out)
	}
	d.Handle("AT")
	out := d.Handle("STATUS")
	for _, want := range []string{"transactions: 1", "completed: 1", "timed out: 0", `last command: "AT"`} {
		if !strings.Contains(out, want) {
			t.Errorf("status = %q, missing %q", out, want)
		}
	}
}

func TestDispatcher_EngineError(t *testing.T) {
	e, s := newTestEngine(t, okModem(), nil)
	d := NewDispatcher(e, time.Second)
	s.Close()
	if out := d.Handle("AT"); !strings.HasPrefix(out, "ERROR: ") {
		t.Errorf("Handle() on closed stream = %q, want an ERROR line", out)
	}
}
