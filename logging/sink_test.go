package logging

import (
	"bytes"
	"testing"
)

type recordingStream struct {
	lines []string
}

func (r *recordingStream) WriteLogLine(line string) error {
	r.lines = append(r.lines, line)
	return nil
}

func TestMultiSink_StderrThreshold(t *testing.T) {
	var buf bytes.Buffer
	m := NewMultiSink(SeverityWarning, SeverityDisabled, SeverityDisabled)
	m.stderr = &buf

	m.Log(SeverityInfo, "should be suppressed")
	if buf.Len() != 0 {
		t.Fatalf("expected info to be suppressed at warning threshold, got %q", buf.String())
	}

	m.Log(SeverityCritical, "should appear")
	if !bytes.Contains(buf.Bytes(), []byte("should appear")) {
		t.Fatalf("expected critical message in stderr output, got %q", buf.String())
	}
}

func TestMultiSink_StreamGatedUntilAttached(t *testing.T) {
	m := NewMultiSink(SeverityDisabled, SeverityDisabled, SeverityNotice)
	m.Log(SeverityNotice, "dropped, no stream yet")

	s := &recordingStream{}
	m.SetStream(s)
	m.Log(SeverityNotice, "hello")

	if len(s.lines) != 1 || s.lines[0] != "# hello" {
		t.Fatalf("expected one prefixed line, got %v", s.lines)
	}
}

func TestMultiSink_StreamThresholdGating(t *testing.T) {
	m := NewMultiSink(SeverityDisabled, SeverityDisabled, SeverityError)
	s := &recordingStream{}
	m.SetStream(s)

	m.Log(SeverityDebug, "too quiet")
	if len(s.lines) != 0 {
		t.Fatalf("expected debug line to be gated out, got %v", s.lines)
	}

	m.Log(SeverityCritical, "urgent")
	if len(s.lines) != 1 {
		t.Fatalf("expected critical line through, got %v", s.lines)
	}
}

func TestMultiSink_DisabledSyslogDoesNotDial(t *testing.T) {
	m := NewMultiSink(SeverityDisabled, SeverityDisabled, SeverityDisabled)
	if m.syslog != nil {
		t.Fatal("expected syslog writer to be nil when disabled")
	}
}
