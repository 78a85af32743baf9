// Package transcript records the management protocol exchange as JSON lines.
//
// The first line is a header object; every following line is an event
// array [seconds-since-start, kind, line]. Password submissions are stored
// masked, so a transcript never holds the VPN password.
package transcript

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/acolita/ovpn-authbridge/internal/ports"
)

// Kind identifies the direction of a recorded line.
type Kind string

const (
	// FromManagement is a line read from the management socket.
	FromManagement Kind = "m<"
	// ToManagement is a line written to the management socket.
	ToManagement Kind = "m>"
	// FromControl is a line read from the operator-control stream.
	FromControl Kind = "c<"
)

const maskedSuffix = "********"

// Recorder appends protocol events to a transcript file.
type Recorder struct {
	mu        sync.Mutex
	file      ports.FileHandle
	startTime time.Time
	closed    bool
	clock     ports.Clock
}

// Header is the first line of every transcript session.
type Header struct {
	Version   int    `json:"version"`
	Timestamp int64  `json:"timestamp"`
	Socket    string `json:"socket,omitempty"`
}

// Event is a transcript entry [time, kind, line].
type Event struct {
	Time float64
	Kind Kind
	Line string
}

// MarshalJSON implements custom JSON marshaling for Event. Protocol lines
// are kept verbatim, so '<', '>' and '&' are not HTML-escaped.
func (e Event) MarshalJSON() ([]byte, error) {
	return encodeLine([]interface{}{e.Time, e.Kind, e.Line})
}

// encodeLine encodes v as a single JSON line without a trailing newline.
func encodeLine(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// NewRecorder opens path for appending (creating its directory 0700 and the
// file 0600) and writes a session header.
func NewRecorder(path, socket string, fs ports.FileSystem, clock ports.Clock) (*Recorder, error) {
	if err := fs.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create transcript directory: %w", err)
	}

	file, err := fs.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("open transcript file: %w", err)
	}

	r := &Recorder{
		file:      file,
		startTime: clock.Now(),
		clock:     clock,
	}

	headerJSON, err := encodeLine(Header{
		Version:   1,
		Timestamp: r.startTime.Unix(),
		Socket:    socket,
	})
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("marshal header: %w", err)
	}

	if _, err := file.Write(append(headerJSON, '\n')); err != nil {
		file.Close()
		return nil, fmt.Errorf("write header: %w", err)
	}

	return r, nil
}

// Record writes one event. A password command is masked before it reaches
// the file, whichever direction it travelled.
func (r *Recorder) Record(kind Kind, line string) error {
	line = Mask(line)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}

	ev := Event{
		Time: r.clock.Now().Sub(r.startTime).Seconds(),
		Kind: kind,
		Line: line,
	}
	eventJSON, err := ev.MarshalJSON()
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if _, err := r.file.Write(append(eventJSON, '\n')); err != nil {
		return fmt.Errorf("write event: %w", err)
	}

	return nil
}

// Mask hides the value of a "password <type> <value>" command. The type
// may be quoted ("Private Key"). A line whose type cannot be parsed is
// masked after the keyword.
func Mask(line string) string {
	rest, ok := strings.CutPrefix(line, "password")
	if !ok || rest == "" || (rest[0] != ' ' && rest[0] != '\t') {
		return line
	}
	rest = strings.TrimLeft(rest, " \t")

	end := argEnd(rest)
	if end < 0 {
		return "password " + maskedSuffix
	}
	if strings.TrimSpace(rest[end:]) == "" {
		return line
	}
	return "password " + rest[:end] + " " + maskedSuffix
}

// argEnd returns the index just past the first argument of s, honouring
// single or double quotes and backslash escapes inside them. It returns -1
// for an unterminated quote.
func argEnd(s string) int {
	if s == "" {
		return 0
	}
	if q := s[0]; q == '"' || q == '\'' {
		for i := 1; i < len(s); i++ {
			switch s[i] {
			case '\\':
				i++
			case q:
				return i + 1
			}
		}
		return -1
	}
	if i := strings.IndexAny(s, " \t"); i >= 0 {
		return i
	}
	return len(s)
}

// Close closes the transcript file.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	return r.file.Close()
}

// Path returns the path to the transcript file.
func (r *Recorder) Path() string {
	if r.file == nil {
		return ""
	}
	return r.file.Name()
}
