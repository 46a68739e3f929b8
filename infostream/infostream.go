// Package infostream emits the structured sidecar document ("info
// stream") describing a crash: the executable, its command line,
// memory mappings, snapshots of selected /proc files, and per-thread
// register/backtrace data.
//
// The document is built as a gopkg.in/yaml.v3 Node tree so record
// order and per-scalar quoting style are fully controlled, then
// written through a single mutex-guarded Writer: both the main
// pipeline thread (via the logging sink) and the unwinder thread may
// write to the same open file, so every composite write is
// serialized.
package infostream

import (
	"bufio"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Writer wraps the open info-output file with buffering and a mutex,
// satisfying logging.StreamSink so log lines can be interleaved with
// document records, each prefixed "# " to stay valid YAML comments.
type Writer struct {
	mu sync.Mutex
	bw *bufio.Writer
	f  *os.File
}

// NewWriter wraps f for structured writes. f is not closed by Writer;
// the caller (outputchannel.Channel) owns its lifecycle.
func NewWriter(f *os.File) *Writer {
	return &Writer{bw: bufio.NewWriterSize(f, 64*1024), f: f}
}

// WriteLogLine implements logging.StreamSink.
func (w *Writer) WriteLogLine(line string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := fmt.Fprintln(w.bw, line)
	return err
}

// WriteDocument writes the leading "---" separator followed by doc
// encoded as a single YAML document.
func (w *Writer) WriteDocument(doc *yaml.Node) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.bw.WriteString("---\n"); err != nil {
		return err
	}

	enc := yaml.NewEncoder(w.bw)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Close()
}

// Flush flushes buffered writes and fsyncs the underlying file.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.bw.Flush(); err != nil {
		return err
	}
	return w.f.Sync()
}
