package smsgate

import (
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// Relay is a single binary output, active high.
type Relay interface {
	Set(on bool) error
}

// FileRelay drives a GPIO through its value file, e.g.
// /sys/class/gpio/gpio17/value. The pin must already be exported and
// configured as an output.
type FileRelay struct {
	Path string
}

// Set writes "1" or "0" to the value file.
func (r *FileRelay) Set(on bool) error {
	v := []byte("0")
	if on {
		v = []byte("1")
	}
	return os.WriteFile(r.Path, v, 0)
}

// LogRelay only logs transitions. Useful for dry runs.
type LogRelay struct {
	mu  sync.Mutex
	on  bool
	log zerolog.Logger
}

// NewLogRelay creates a LogRelay writing to logger.
func NewLogRelay(logger zerolog.Logger) *LogRelay {
	return &LogRelay{log: logger}
}

// Set records the new level.
func (r *LogRelay) Set(on bool) error {
	r.mu.Lock()
	r.on = on
	r.mu.Unlock()
	r.log.Info().Bool("on", on).Msg("relay")
	return nil
}

// On returns the last level set.
func (r *LogRelay) On() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.on
}
