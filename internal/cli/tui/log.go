package tui

import (
	"bytes"
	"strings"
	"sync"
)

// MaxLogLine caps a single log line shown in the TUI
const MaxLogLine = 2000

// LogMsg is emitted when a log line should be appended to the TUI.
type LogMsg struct {
	Line string
}

// LogWriter is an io.Writer that turns log output into LogMsgs so stray
// log.Printf calls don't tear the alt screen.
type LogWriter struct {
	mu      sync.Mutex
	partial []byte
	lines   chan string
	once    sync.Once
}

// NewLogWriter creates a LogWriter that sends complete lines into program,
// in order, from a single goroutine. Lines are dropped while the program
// is backed up.
func NewLogWriter(program Sender) *LogWriter {
	lines := make(chan string, 200)
	go func() {
		for line := range lines {
			if program != nil {
				program.Send(LogMsg{Line: line})
			}
		}
	}()
	return &LogWriter{lines: lines}
}

// Close stops the writer. Writes after Close are discarded.
func (w *LogWriter) Close() {
	w.once.Do(func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		close(w.lines)
		w.lines = nil
	})
}

// Write implements io.Writer. Incomplete trailing data is held until the
// next newline or Flush.
func (w *LogWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	data := append(w.partial, p...)
	var lines []string
	for {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			break
		}
		lines = append(lines, string(data[:i]))
		data = data[i+1:]
	}
	w.partial = append([]byte(nil), data...)

	for _, line := range lines {
		w.send(line)
	}
	return len(p), nil
}

// Flush sends any buffered partial line.
func (w *LogWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()

	line := string(w.partial)
	w.partial = nil
	w.send(line)
}

// send queues a line; the caller holds mu
func (w *LogWriter) send(line string) {
	line = strings.TrimRight(line, "\r")
	if line == "" || w.lines == nil {
		return
	}
	if len(line) > MaxLogLine {
		line = line[:MaxLogLine] + "..."
	}
	select {
	case w.lines <- line:
	default:
	}
}
