package logging

import (
	"fmt"
	"io"
	"log/slog"
	"log/syslog"
	"os"
	"sync"
)

// Severity is the crash handler's log severity scale: lower values are
// more severe, and a threshold of SeverityDisabled turns a sink off
// entirely. This mirrors the configuration's three independent log
// thresholds (stderr, syslog, info stream) described in the error
// handling design, and is deliberately distinct from slog.Level's
// ascending scale.
type Severity int

// Severity levels, most to least severe.
const (
	SeverityCritical Severity = 0
	SeverityError    Severity = 1
	SeverityWarning  Severity = 2
	SeverityNotice   Severity = 3
	SeverityInfo     Severity = 4
	SeverityDebug    Severity = 5

	// SeverityDisabled, used only as a threshold, disables a sink.
	SeverityDisabled Severity = -1
)

// Level converts a severity threshold to the minimum slog level for
// the diagnostic logger, so both surfaces honor the same stderr
// setting. The scale is coarser on the slog side: critical and error
// collapse onto LevelError, notice and info onto LevelInfo. Disabled
// maps above every level slog emits.
func (s Severity) Level() slog.Level {
	switch {
	case s == SeverityDisabled:
		return slog.LevelError + 4
	case s <= SeverityError:
		return slog.LevelError
	case s == SeverityWarning:
		return slog.LevelWarn
	case s <= SeverityInfo:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}

// StreamSink is implemented by the info stream's writer. Declared here
// (rather than imported) to avoid a cycle, since the info stream
// itself logs through this package.
type StreamSink interface {
	WriteLogLine(line string) error
}

// MultiSink fans a single log call out to standard error, syslog, and
// an optional info-stream writer, each gated by its own threshold.
// Each log call is routed independently to every configured sink, as
// the error handling design requires.
type MultiSink struct {
	mu sync.Mutex

	stderrThreshold Severity
	syslogThreshold Severity
	streamThreshold Severity

	stderr io.Writer
	syslog *syslog.Writer
	stream StreamSink
}

// NewMultiSink builds a MultiSink from three independent thresholds.
// A threshold of SeverityDisabled (-1) disables that sink; passing
// SeverityDisabled for syslogThreshold also skips dialing syslog.
func NewMultiSink(stderrThreshold, syslogThreshold, streamThreshold Severity) *MultiSink {
	m := &MultiSink{
		stderrThreshold: stderrThreshold,
		syslogThreshold: syslogThreshold,
		streamThreshold: streamThreshold,
		stderr:          os.Stderr,
	}
	if syslogThreshold != SeverityDisabled {
		if w, err := syslog.New(syslog.LOG_CRIT|syslog.LOG_DAEMON, "crashinfo"); err == nil {
			m.syslog = w
		}
	}
	return m
}

// SetStream attaches the info-stream sink once the info output channel
// has been opened. Before this is called, stream-gated log lines are
// simply dropped, matching the pipeline's "not open yet" state.
func (m *MultiSink) SetStream(w StreamSink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stream = w
}

// Log routes msg at the given severity to every sink whose threshold
// admits it.
func (m *MultiSink) Log(sev Severity, msg string) {
	m.mu.Lock()
	stream := m.stream
	m.mu.Unlock()

	if m.stderrThreshold != SeverityDisabled && sev <= m.stderrThreshold {
		fmt.Fprintln(m.stderr, msg)
	}
	if m.syslog != nil && m.syslogThreshold != SeverityDisabled && sev <= m.syslogThreshold {
		m.writeSyslog(sev, msg)
	}
	if stream != nil && m.streamThreshold != SeverityDisabled && sev <= m.streamThreshold {
		// Log lines embedded in the info stream are prefixed with "# "
		// so they remain valid comments in that document.
		stream.WriteLogLine("# " + msg)
	}
}

func (m *MultiSink) writeSyslog(sev Severity, msg string) {
	switch sev {
	case SeverityCritical:
		m.syslog.Crit(msg)
	case SeverityError:
		m.syslog.Err(msg)
	case SeverityWarning:
		m.syslog.Warning(msg)
	case SeverityNotice:
		m.syslog.Notice(msg)
	case SeverityInfo:
		m.syslog.Info(msg)
	default:
		m.syslog.Debug(msg)
	}
}

// Critical logs a critical message (used for e.g. sequence-exhausted,
// path-too-long conditions that disable an output channel).
func (m *MultiSink) Critical(format string, args ...any) {
	m.Log(SeverityCritical, fmt.Sprintf(format, args...))
}

// Warning logs a warning message (stream errors that don't abort a run).
func (m *MultiSink) Warning(format string, args ...any) {
	m.Log(SeverityWarning, fmt.Sprintf(format, args...))
}

// Notice logs an informational notice (path-expander substitution notes).
func (m *MultiSink) Notice(format string, args ...any) {
	m.Log(SeverityNotice, fmt.Sprintf(format, args...))
}

// Close releases resources held by the sink (currently just syslog).
func (m *MultiSink) Close() {
	if m.syslog != nil {
		m.syslog.Close()
	}
}
