package smsgate

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ControllerConfig contains the configuration parameters for creating a new
// Controller. Transport, Auth and Relay are required, the other fields have
// reasonable defaults.
type ControllerConfig struct {
	// Transport is the byte channel to the modem (required)
	Transport io.ReadWriteCloser
	// Auth holds the admin identity and secret phrase (required)
	Auth AuthorizationRecord
	// Relay is the actuated output (required)
	Relay Relay
	// Timeout is the modem transaction deadline (default: 5s)
	Timeout time.Duration
	// Pulse is how long the relay stays energized (default: 1s)
	Pulse time.Duration
	// LineEnding terminates each command (default: "\r\n")
	LineEnding string
	// NotifyPrefix starts an inbound message header (default: "+CMT:")
	NotifyPrefix string
	// InitCommands run once by Init (default: DefaultInitCommands)
	InitCommands []string
	// Tick bounds how long the loop idles without events (default: 50ms)
	Tick time.Duration
	// Housekeeping functions run once per loop iteration, e.g. a watchdog feed
	Housekeeping []func()
	// Metrics collectors (optional)
	Metrics *Metrics
	// Logger (default: no logging)
	Logger *zerolog.Logger
}

// Controller runs the cooperative main loop. Everything touching the modem
// happens on the goroutine calling Step or Run; other goroutines only talk to
// the Bridge.
type Controller struct {
	stream       *Stream
	engine       *Engine
	parser       *Parser
	gate         *Gate
	bridge       *Bridge
	dispatcher   *Dispatcher
	initCommands []string
	tick         time.Duration
	housekeeping []func()
	log          zerolog.Logger
}

// NewController wires a Controller. The stream reader starts immediately.
//
// Returns ErrConfigRequired if config is nil or required fields are missing.
func NewController(config *ControllerConfig) (*Controller, error) {
	if config == nil || config.Transport == nil {
		return nil, ErrConfigRequired
	}
	logger := zerolog.Nop()
	if config.Logger != nil {
		logger = *config.Logger
	}
	gate, err := NewGate(&GateConfig{
		Auth:    config.Auth,
		Relay:   config.Relay,
		Pulse:   config.Pulse,
		Metrics: config.Metrics,
		Logger:  &logger,
	})
	if err != nil {
		return nil, err
	}

	stream := NewStream(config.Transport, logger)
	engine, err := NewEngine(&EngineConfig{
		Stream:     stream,
		LineEnding: config.LineEnding,
		Timeout:    config.Timeout,
		Metrics:    config.Metrics,
		Logger:     &logger,
	})
	if err != nil {
		stream.Close()
		return nil, err
	}

	c := &Controller{
		stream:       stream,
		engine:       engine,
		parser:       NewParser(config.NotifyPrefix, config.Metrics, logger),
		gate:         gate,
		bridge:       NewBridge(config.Metrics, logger),
		dispatcher:   NewDispatcher(engine, engine.Timeout()),
		initCommands: config.InitCommands,
		tick:         config.Tick,
		housekeeping: config.Housekeeping,
		log:          logger,
	}
	if c.initCommands == nil {
		c.initCommands = DefaultInitCommands
	}
	if c.tick <= 0 {
		c.tick = 50 * time.Millisecond
	}
	return c, nil
}

// Bridge returns the mailbox used by the HTTP boundary.
func (c *Controller) Bridge() *Bridge {
	return c.bridge
}

// Dispatcher returns the command dispatcher, e.g. to register local commands.
func (c *Controller) Dispatcher() *Dispatcher {
	return c.dispatcher
}

// Engine returns the modem transaction engine.
func (c *Controller) Engine() *Engine {
	return c.engine
}

// Init runs the modem setup commands. A failing command is logged and the
// remaining ones still run.
func (c *Controller) Init() {
	for _, cmd := range c.initCommands {
		resp, err := c.engine.Execute(cmd, 0)
		if err != nil {
			c.log.Error().Err(err).Str("cmd", cmd).Msg("modem init command failed")
			continue
		}
		if resp.State != TxCompleted || !strings.HasSuffix(resp.Text, "OK\n") {
			c.log.Warn().Str("cmd", cmd).Str("state", resp.State.String()).Str("resp", resp.Text).Msg("unexpected modem init response")
			continue
		}
		c.log.Debug().Str("cmd", cmd).Msg("modem init command ok")
	}
}

// Step runs one loop iteration: housekeeping, buffered notifications, the
// pending bridge command and the notifications that arrived after it. It
// reports whether it did any work.
func (c *Controller) Step() bool {
	for _, fn := range c.housekeeping {
		fn()
	}
	worked := c.handleNotifications()
	if c.bridge.DrainAndExecute(c.dispatcher.Handle) {
		worked = true
		// The transaction discarded whatever was buffered, so a frame
		// started before it can no longer complete correctly.
		if c.parser.State() != AwaitingHeader {
			c.log.Debug().Msg("partial notification dropped by transaction")
		}
		c.parser.Reset()
	}
	if c.handleNotifications() {
		worked = true
	}
	return worked
}

func (c *Controller) handleNotifications() bool {
	frames := c.parser.Poll(c.stream)
	for _, frame := range frames {
		c.log.Info().Str("sender", frame.Sender).Msg("inbound message")
		c.gate.Evaluate(frame)
	}
	return len(frames) > 0
}

// Run loops until ctx is cancelled or the transport fails. Between
// iterations it waits for modem bytes, a bridge submission or the tick.
func (c *Controller) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.tick)
	defer ticker.Stop()
	for {
		c.Step()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stream.Done():
			c.Step()
			return c.stream.Err()
		case <-c.stream.Ready():
		case <-c.bridge.Submitted():
		case <-ticker.C:
		}
	}
}

// Close closes the modem stream.
func (c *Controller) Close() error {
	return c.stream.Close()
}
