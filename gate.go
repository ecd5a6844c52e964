package smsgate

import (
	"time"

	"github.com/rs/zerolog"
)

// AuthorizationRecord holds the two values an inbound message must match.
// It is built once at startup and never mutated.
type AuthorizationRecord struct {
	AdminIdentity string
	SecretPhrase  string
}

// Matches reports whether frame carries exactly the admin identity and the
// secret phrase. Comparison is case sensitive with no normalization.
func (a AuthorizationRecord) Matches(frame NotificationFrame) bool {
	return frame.Sender == a.AdminIdentity && frame.Body == a.SecretPhrase
}

// GateConfig contains the configuration parameters of a Gate.
type GateConfig struct {
	// Auth is the authorization record (required, both fields non-empty)
	Auth AuthorizationRecord
	// Relay is the actuated output (required)
	Relay Relay
	// Pulse is how long the relay stays energized (default: 1s)
	Pulse time.Duration
	// Sleep waits between assert and deassert (default: time.Sleep)
	Sleep func(time.Duration)
	// Metrics receives auth decisions (optional)
	Metrics *Metrics
	// Logger (default: no logging)
	Logger *zerolog.Logger
}

// Gate decides whether a notification may actuate the relay.
type Gate struct {
	auth    AuthorizationRecord
	relay   Relay
	pulse   time.Duration
	sleep   func(time.Duration)
	metrics *Metrics
	log     zerolog.Logger
}

// NewGate creates a Gate. Returns ErrConfigRequired when the relay or one of
// the authorization values is missing.
func NewGate(config *GateConfig) (*Gate, error) {
	if config == nil || config.Relay == nil {
		return nil, ErrConfigRequired
	}
	if config.Auth.AdminIdentity == "" || config.Auth.SecretPhrase == "" {
		return nil, ErrConfigRequired
	}
	g := &Gate{
		auth:    config.Auth,
		relay:   config.Relay,
		pulse:   config.Pulse,
		sleep:   config.Sleep,
		metrics: config.Metrics,
		log:     zerolog.Nop(),
	}
	if config.Logger != nil {
		g.log = *config.Logger
	}
	if g.pulse <= 0 {
		g.pulse = DefaultPulse
	}
	if g.sleep == nil {
		g.sleep = time.Sleep
	}
	return g, nil
}

// Evaluate pulses the relay when frame is authorized and reports whether it
// did. Mismatches are silent. The pulse blocks the caller for its whole
// duration.
func (g *Gate) Evaluate(frame NotificationFrame) bool {
	triggered := g.auth.Matches(frame)
	g.metrics.authResult(triggered)
	if !triggered {
		g.log.Debug().Str("sender", frame.Sender).Msg("notification not authorized")
		return false
	}
	g.log.Info().Str("sender", frame.Sender).Dur("pulse", g.pulse).Msg("authorized, pulsing relay")
	g.Pulse()
	return true
}

// Pulse asserts the relay, waits the pulse duration and deasserts it. The
// output is left low even if asserting failed.
func (g *Gate) Pulse() {
	if err := g.relay.Set(true); err != nil {
		g.log.Error().Err(err).Msg("relay assert failed")
	} else {
		g.sleep(g.pulse)
	}
	if err := g.relay.Set(false); err != nil {
		g.log.Error().Err(err).Msg("relay deassert failed")
	}
}
