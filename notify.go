package smsgate

import (
	"bytes"
	"strings"

	"github.com/rs/zerolog"
)

// FrameState is the arrival state of the notification being parsed.
type FrameState int

const (
	// AwaitingHeader waits for a line starting with the notification prefix
	AwaitingHeader FrameState = iota
	// AwaitingBody waits for the message text line following a header
	AwaitingBody
)

// String returns a human-readable string representation of the state.
func (fs FrameState) String() string {
	switch fs {
	case AwaitingHeader:
		return "AwaitingHeader"
	case AwaitingBody:
		return "AwaitingBody"
	default:
		return "Unknown"
	}
}

// NotificationFrame is one decoded inbound message.
type NotificationFrame struct {
	Sender string
	Body   string
}

// maxLine bounds a pending line so garbage without terminators cannot grow
// the buffer forever.
const maxLine = 1024

// Parser extracts notification frames from modem output. It owns the one
// frame in progress and never emits a frame before both its header and its
// body line have been seen.
type Parser struct {
	prefix  string
	state   FrameState
	line    bytes.Buffer
	sender  string
	metrics *Metrics
	log     zerolog.Logger
}

// NewParser creates a Parser for header lines starting with prefix. An
// empty prefix selects DefaultNotifyPrefix.
func NewParser(prefix string, metrics *Metrics, logger zerolog.Logger) *Parser {
	if prefix == "" {
		prefix = DefaultNotifyPrefix
	}
	return &Parser{
		prefix:  prefix,
		metrics: metrics,
		log:     logger,
	}
}

// State returns the current arrival state.
func (p *Parser) State() FrameState {
	return p.state
}

// Reset drops any partial line and frame.
func (p *Parser) Reset() {
	p.state = AwaitingHeader
	p.sender = ""
	p.line.Reset()
}

// Feed consumes one byte. It returns a frame once a body line completes.
func (p *Parser) Feed(b byte) (NotificationFrame, bool) {
	if b != '\n' {
		if p.line.Len() < maxLine {
			p.line.WriteByte(b)
		}
		return NotificationFrame{}, false
	}
	line := strings.TrimRight(p.line.String(), "\r")
	p.line.Reset()
	return p.handleLine(line)
}

func (p *Parser) handleLine(line string) (NotificationFrame, bool) {
	switch p.state {
	case AwaitingHeader:
		if !strings.HasPrefix(line, p.prefix) {
			return NotificationFrame{}, false
		}
		sender, ok := quoted(line)
		if !ok {
			p.log.Debug().Str("line", line).Msg("malformed notification header dropped")
			p.metrics.droppedInc()
			p.Reset()
			return NotificationFrame{}, false
		}
		p.sender = sender
		p.state = AwaitingBody
		return NotificationFrame{}, false
	case AwaitingBody:
		frame := NotificationFrame{Sender: p.sender, Body: strings.TrimSpace(line)}
		p.Reset()
		p.metrics.notificationInc()
		return frame, true
	}
	p.Reset()
	return NotificationFrame{}, false
}

// quoted returns the text between the first and second double quote.
func quoted(line string) (string, bool) {
	start := strings.IndexByte(line, '"')
	if start < 0 {
		return "", false
	}
	end := strings.IndexByte(line[start+1:], '"')
	if end < 0 {
		return "", false
	}
	return line[start+1 : start+1+end], true
}

// Poll drains the bytes currently available on s and returns the frames
// completed by them. It returns immediately, and reads nothing while a
// transaction owns the stream.
func (p *Parser) Poll(s *Stream) []NotificationFrame {
	var frames []NotificationFrame
	for !s.Owned() {
		b, ok := s.NextByte()
		if !ok {
			break
		}
		if frame, done := p.Feed(b); done {
			frames = append(frames, frame)
		}
	}
	return frames
}
