package smsgate

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
)

func TestBridge_SubmitExecuteFetch(t *testing.T) {
	b := NewBridge(nil, zerolog.Nop())

	if err := b.Submit("AT"); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if !b.Pending() {
		t.Error("Pending() = false after Submit")
	}
	var got []string
	ran := b.DrainAndExecute(func(cmd string) string {
		got = append(got, cmd)
		return "OK\n"
	})
	if !ran || len(got) != 1 || got[0] != "AT" {
		t.Errorf("DrainAndExecute() ran=%v commands=%v", ran, got)
	}
	if b.Pending() {
		t.Error("Pending() = true after execution")
	}
	if r := b.FetchResult(); r != "OK\n" {
		t.Errorf("FetchResult() = %q, want %q", r, "OK\n")
	}
	if r := b.FetchResult(); r != "" {
		t.Errorf("second FetchResult() = %q, want empty", r)
	}
}

func TestBridge_RejectsWhileOccupied(t *testing.T) {
	metrics := NewMetrics()
	b := NewBridge(metrics, zerolog.Nop())
	if err := b.Submit("AT+CSQ"); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if err := b.Submit("AT+CREG?"); !errors.Is(err, ErrBridgeBusy) {
		t.Errorf("Submit() while occupied error = %v, want %v", err, ErrBridgeBusy)
	}
	var got string
	b.DrainAndExecute(func(cmd string) string { got = cmd; return "x" })
	if got != "AT+CSQ" {
		t.Errorf("executed %q, want the first command", got)
	}
	if v := testutil.ToFloat64(metrics.bridgeRejected); v != 1 {
		t.Errorf("rejected metric = %v, want 1", v)
	}
}

func TestBridge_RejectsDuringExecution(t *testing.T) {
	b := NewBridge(nil, zerolog.Nop())
	b.Submit("AT")
	b.DrainAndExecute(func(string) string {
		if err := b.Submit("ATI"); !errors.Is(err, ErrBridgeBusy) {
			t.Errorf("Submit() during execution error = %v, want %v", err, ErrBridgeBusy)
		}
		return "OK\n"
	})
	if err := b.Submit("ATI"); err != nil {
		t.Errorf("Submit() after execution error = %v", err)
	}
}

func TestBridge_EmptyCommand(t *testing.T) {
	b := NewBridge(nil, zerolog.Nop())
	for _, cmd := range []string{"", "   ", "\r\n"} {
		if err := b.Submit(cmd); !errors.Is(err, ErrEmptyCommand) {
			t.Errorf("Submit(%q) error = %v, want %v", cmd, err, ErrEmptyCommand)
		}
	}
	if b.Pending() {
		t.Error("empty command occupied the slot")
	}
}

func TestBridge_DrainEmpty(t *testing.T) {
	b := NewBridge(nil, zerolog.Nop())
	called := false
	if b.DrainAndExecute(func(string) string { called = true; return "" }) || called {
		t.Error("DrainAndExecute() ran with an empty slot")
	}
	if r := b.FetchResult(); r != "" {
		t.Errorf("FetchResult() = %q, want empty", r)
	}
}

func TestBridge_ResultOverwrittenByNextCommand(t *testing.T) {
	b := NewBridge(nil, zerolog.Nop())
	b.Submit("one")
	b.DrainAndExecute(func(c string) string { return c })
	b.Submit("two")
	b.DrainAndExecute(func(c string) string { return c })
	if r := b.FetchResult(); r != "two" {
		t.Errorf("FetchResult() = %q, want %q", r, "two")
	}
}

func TestBridge_Submitted(t *testing.T) {
	b := NewBridge(nil, zerolog.Nop())
	b.Submit("AT")
	select {
	case <-b.Submitted():
	default:
		t.Error("Submitted() not signalled")
	}
}

func TestBridge_ConcurrentSubmit(t *testing.T) {
	b := NewBridge(nil, zerolog.Nop())
	var accepted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if b.Submit("AT") == nil {
				accepted.Add(1)
			}
		}()
	}
	wg.Wait()
	if accepted.Load() != 1 {
		t.Errorf("accepted submissions = %d, want 1", accepted.Load())
	}
}
