// Package runlog writes the two line-oriented logs of a migration run: the
// progress log (per-schema, per-table counts and timings) and the error log
// (one line per non-fatal failure). Each log is drained by its own goroutine
// so callers never block on terminal or file output.
package runlog

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

type opKind int

const (
	opPrint opKind = iota
	opPrintln
	opNewline
	opFlush
)

type op struct {
	kind opKind
	text string
	ack  chan struct{}
}

// sink is a channel-fed writer goroutine shared by both logs.
type sink struct {
	ops    chan op
	done   chan struct{}
	start  time.Time
	file   io.Writer
	echo   io.Writer
	closer io.Closer

	mu     sync.Mutex
	closed bool
	err    error
}

func newSink(file, echo io.Writer, closer io.Closer, now time.Time) *sink {
	s := &sink{
		ops:    make(chan op, 256),
		done:   make(chan struct{}),
		start:  now,
		file:   file,
		echo:   echo,
		closer: closer,
	}
	go s.loop()
	return s
}

func (s *sink) loop() {
	defer close(s.done)
	for o := range s.ops {
		switch o.kind {
		case opPrint:
			s.write(o.text)
		case opPrintln:
			s.write(o.text + "\n")
		case opNewline:
			s.write("\n")
		case opFlush:
			if f, ok := s.echo.(interface{ Sync() error }); ok {
				_ = f.Sync()
			}
			close(o.ack)
		}
	}
}

func (s *sink) write(text string) {
	if s.echo != nil {
		_, _ = io.WriteString(s.echo, text)
	}
	if _, err := io.WriteString(s.file, text); err != nil && s.err == nil {
		s.err = err
	}
}

func (s *sink) send(o op) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		if o.ack != nil {
			close(o.ack)
		}
		return
	}
	s.ops <- o
}

// flush blocks until every message queued before it has been written.
func (s *sink) flush() {
	ack := make(chan struct{})
	s.send(op{kind: opFlush, ack: ack})
	<-ack
}

// close writes the TOTAL line, stops the goroutine and closes the file.
func (s *sink) close(echoTotal bool, now time.Time) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.ops)
	s.mu.Unlock()
	<-s.done

	total := Total(now.Sub(s.start))
	if echoTotal && s.echo != nil {
		_, _ = io.WriteString(s.echo, total+"\n")
	}
	if _, err := io.WriteString(s.file, total+"\n"); err != nil && s.err == nil {
		s.err = err
	}
	if s.closer != nil {
		if err := s.closer.Close(); err != nil && s.err == nil {
			s.err = err
		}
	}
	return s.err
}

// Logger is the progress log. Text goes to the echo writer (normally
// stdout) and to the log file.
type Logger struct {
	s   *sink
	now func() time.Time
}

// New creates dir/name and starts a progress log writing to it and to echo.
func New(dir, name string, echo io.Writer) (*Logger, error) {
	f, err := create(dir, name)
	if err != nil {
		return nil, err
	}
	return newLogger(f, echo, f, time.Now), nil
}

// NewWriter starts a progress log over w without a backing file.
func NewWriter(w, echo io.Writer) *Logger {
	return newLogger(w, echo, nil, time.Now)
}

func newLogger(w, echo io.Writer, c io.Closer, now func() time.Time) *Logger {
	start := now()
	_, _ = fmt.Fprintf(w, "migration start at %s\n", start.Format(time.RFC3339))
	return &Logger{s: newSink(w, echo, c, start), now: now}
}

func (l *Logger) Print(text string)   { l.s.send(op{kind: opPrint, text: text}) }
func (l *Logger) Println(text string) { l.s.send(op{kind: opPrintln, text: text}) }
func (l *Logger) Newline()            { l.s.send(op{kind: opNewline}) }

// Flush waits until everything logged so far has been written.
func (l *Logger) Flush() { l.s.flush() }

// Close drains the log and appends the TOTAL line.
func (l *Logger) Close() error { return l.s.close(true, l.now()) }

// ErrorLog is the log of non-fatal failures. Every line is also echoed and
// reported through slog at WARN.
type ErrorLog struct {
	s      *sink
	logger *slog.Logger
	now    func() time.Time

	mu    sync.Mutex
	count int
}

// NewErrorLog creates dir/name and starts an error log writing to it.
func NewErrorLog(dir, name string, echo io.Writer, logger *slog.Logger) (*ErrorLog, error) {
	f, err := create(dir, name)
	if err != nil {
		return nil, err
	}
	return newErrorLog(f, echo, f, logger, time.Now), nil
}

// NewErrorWriter starts an error log over w without a backing file.
func NewErrorWriter(w, echo io.Writer, logger *slog.Logger) *ErrorLog {
	return newErrorLog(w, echo, nil, logger, time.Now)
}

func newErrorLog(w, echo io.Writer, c io.Closer, logger *slog.Logger, now func() time.Time) *ErrorLog {
	start := now()
	_, _ = fmt.Fprintf(w, "migration start at %s\n", start.Format(time.RFC3339))
	return &ErrorLog{s: newSink(w, echo, c, start), logger: logger, now: now}
}

// Error records one failure line.
func (e *ErrorLog) Error(msg string) {
	e.mu.Lock()
	e.count++
	e.mu.Unlock()
	if e.logger != nil {
		e.logger.Warn("migration error", "error", msg)
	}
	e.s.send(op{kind: opPrintln, text: msg})
}

// Count returns the number of lines recorded so far.
func (e *ErrorLog) Count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.count
}

// Flush waits until every recorded line has been written.
func (e *ErrorLog) Flush() { e.s.flush() }

// Close drains the log and appends the TOTAL line to the file only.
func (e *ErrorLog) Close() error { return e.s.close(false, e.now()) }

func create(dir, name string) (*os.File, error) {
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating log directory: %w", err)
		}
	}
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return nil, fmt.Errorf("can not open log file: %w", err)
	}
	return f, nil
}

// Total renders an elapsed run time as the closing line of both logs.
func Total(d time.Duration) string {
	secs := int64(d / time.Second)
	minutes := secs / 60
	secs -= minutes * 60
	hours := minutes / 60
	minutes -= hours * 60
	return fmt.Sprintf("TOTAL: %d hours, %d minutes, %d seconds", hours, minutes, secs)
}

// RPad pads text with blanks on the right to n bytes. Longer text is
// returned unchanged.
func RPad(text string, n int) string {
	if len(text) >= n {
		return text
	}
	return text + strings.Repeat(" ", n-len(text))
}

// LPad pads text with blanks on the left to n bytes.
func LPad(text string, n int) string {
	if len(text) >= n {
		return text
	}
	return strings.Repeat(" ", n-len(text)) + text
}

// Elapsed renders a table transfer time as " M mins, S secs"; minutes are
// left out when zero and the whole text is empty for sub-second times.
func Elapsed(d time.Duration) string {
	secs := int64(d / time.Second)
	if secs == 0 {
		return ""
	}
	minutes := secs / 60
	secs -= minutes * 60
	if minutes == 0 {
		return fmt.Sprintf(" %d secs", secs)
	}
	return fmt.Sprintf(" %d mins, %d secs", minutes, secs)
}
