package decode

import (
	"bufio"
	"io"
	"log/slog"
	"os"
	"strings"
	"unicode/utf8"
)

// Severity classifies one line of decoder diagnostic output.
type Severity int

const (
	// SeverityInfo lines are passed through to the diagnostic sink unmodified.
	SeverityInfo Severity = iota
	// SeverityWarning lines are known benign noise and are suppressed.
	SeverityWarning
	// SeverityFatal lines indicate the decode produced bad output.
	SeverityFatal
)

var warningLines = []string{
	"Header missing",
	"Estimating duration from birate, this may be inaccurate",
	"Using AVStream.codec to pass codec parameters to muxers is deprecated, use AVStream.codecpar instead.",
	"Application provided invalid, non monotonically increasing dts to muxer in stream",
	"Last message repeated",
	"Failed to send close message",
	"decode_band_types: Input buffer exhausted before END element found",
}

var errorLines = []string{
	"Invalid data found when processing input",
}

// Classify decides what to do with one stderr line. Lines that are not valid
// UTF-8 can't be matched and are treated as pass-through.
func Classify(line string) Severity {
	if !utf8.ValidString(line) {
		return SeverityInfo
	}
	for _, msg := range warningLines {
		if strings.Contains(line, msg) {
			return SeverityWarning
		}
	}
	for _, msg := range errorLines {
		if strings.Contains(line, msg) {
			return SeverityFatal
		}
	}
	return SeverityInfo
}

// StreamError is a fatal diagnostic line captured from the decode process.
type StreamError struct {
	Line string
}

func (e *StreamError) Error() string {
	return "decoder: " + strings.TrimSpace(e.Line)
}

// Supervisor drains a decode process's diagnostic stream and resolves a
// single outcome once the stream closes. It never short-circuits: ffmpeg
// keeps writing trailing diagnostics after an error, and when several fatal
// lines appear the last one wins.
type Supervisor struct {
	done chan struct{}
	err  error
}

// Supervise starts draining r on its own goroutine. Pass-through lines are
// written to sink; a nil sink means os.Stderr.
func Supervise(r io.Reader, sink io.Writer) *Supervisor {
	if sink == nil {
		sink = os.Stderr
	}
	s := &Supervisor{done: make(chan struct{})}
	go s.drain(r, sink)
	return s
}

func (s *Supervisor) drain(r io.Reader, sink io.Writer) {
	defer close(s.done)

	var lastErr *StreamError
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		switch Classify(line) {
		case SeverityFatal:
			slog.Debug("fatal decoder diagnostic", "line", line)
			lastErr = &StreamError{Line: line}
		case SeverityWarning:
			// known benign noise
		default:
			if _, err := io.WriteString(sink, line+"\n"); err != nil {
				slog.Debug("diagnostic sink write failed", "err", err)
			}
		}
	}
	if err := sc.Err(); err != nil {
		slog.Debug("diagnostic stream read ended", "err", err)
	}
	if lastErr != nil {
		s.err = lastErr
	}
}

// Wait blocks until the stream has been fully drained and returns the
// resolved outcome: nil on success, the last fatal diagnostic otherwise.
func (s *Supervisor) Wait() error {
	<-s.done
	return s.err
}

// Outcome reports the resolution without blocking. ok is false while the
// stream is still being drained.
func (s *Supervisor) Outcome() (err error, ok bool) {
	select {
	case <-s.done:
		return s.err, true
	default:
		return nil, false
	}
}
