package bridge

import (
	"io"
	"log/slog"
	"strings"

	"github.com/acolita/ovpn-authbridge/internal/transcript"
)

// controlQueueSize bounds the lines waiting for a slow operator client.
// Lines beyond it are dropped.
const controlQueueSize = 256

// ControlChannel is the operator-facing stream. It receives a copy of
// everything the management interface says and forwards operator
// commands back to it.
//
// Output is queued and written by the channel's own goroutine, so an
// operator that stops reading never holds up the management side.
type ControlChannel struct {
	bridge *Bridge
	out    io.Writer
	queue  chan string
	done   chan struct{}

	// Guarded by the state lock.
	opened  bool
	closed  bool
	dropped int
}

// NewControlChannel creates a channel echoing management output to out.
// It is not registered until Open.
func (b *Bridge) NewControlChannel(out io.Writer) *ControlChannel {
	return &ControlChannel{
		bridge: b,
		out:    out,
		queue:  make(chan string, controlQueueSize),
		done:   make(chan struct{}),
	}
}

// Open registers the channel, resets the failure count and, the first
// time any control channel opens, starts connecting to the management
// socket.
func (c *ControlChannel) Open() {
	s := c.bridge.state
	s.mu.Lock()
	if c.closed {
		s.mu.Unlock()
		return
	}
	if !c.opened {
		c.opened = true
		go c.drain()
	}
	s.authFailures = 0
	s.control = c
	s.mu.Unlock()

	slog.Info("control channel opened")
	c.bridge.connect()
}

// Close unregisters the channel and stops its writer once the lines
// already queued have been written. The bridge keeps running.
func (c *ControlChannel) Close() {
	s := c.bridge.state
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	if s.control == c {
		s.control = nil
	}
	close(c.done)

	slog.Info("control channel closed")
}

// HandleLine processes one operator line.
func (c *ControlChannel) HandleLine(line string) {
	line = strings.TrimRight(line, "\r\n")

	s := c.bridge.state
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.closed || s.control != c || c.bridge.stopped() {
		return
	}
	c.bridge.record(transcript.FromControl, line)

	switch line {
	case VerbDown:
		s.holdRequested = true
		slog.Info("operator requested disconnect")
		c.relay(CmdHoldOn)
		c.relay(CmdReconnect)
	case VerbUp:
		s.holdRequested = false
		slog.Info("operator requested connect")
		c.relay(CmdHoldRelease)
	default:
		if f := c.bridge.filter; f != nil {
			if ok, reason := f.IsAllowed(line); !ok {
				slog.Warn("operator command blocked",
					slog.String("line", transcript.Mask(line)),
					slog.String("reason", reason))
				c.send("ERROR: " + reason)
				return
			}
		}
		c.relay(line)
	}
}

// relay forwards a command to the live management channel, if any.
func (c *ControlChannel) relay(line string) {
	m := c.bridge.state.management
	if m == nil {
		slog.Debug("no management connection, dropping command", slog.String("line", transcript.Mask(line)))
		return
	}
	m.send(line)
}

// send queues a line for the operator. Callers hold the state lock.
func (c *ControlChannel) send(line string) {
	if c.closed {
		return
	}
	select {
	case c.queue <- line:
		if c.dropped > 0 {
			slog.Info("control client caught up", slog.Int("dropped", c.dropped))
			c.dropped = 0
		}
	default:
		if c.dropped == 0 {
			slog.Warn("control client is not reading, dropping output")
		}
		c.dropped++
	}
}

// drain writes queued lines until the channel closes, then flushes what
// is left.
func (c *ControlChannel) drain() {
	for {
		select {
		case line := <-c.queue:
			c.write(line)
		case <-c.done:
			for {
				select {
				case line := <-c.queue:
					c.write(line)
				default:
					return
				}
			}
		}
	}
}

func (c *ControlChannel) write(line string) {
	if err := writeLine(c.out, line); err != nil {
		slog.Debug("failed to write to control channel", slog.String("error", err.Error()))
	}
}
