package pipeline

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"crashinfo-go/config"
	"crashinfo-go/logging"
	"crashinfo-go/unwind"
)

// stubDumper stands in for the unwinder: Prepare reports a fixed PID
// (or failure) without consuming the core stream, Dump emits a fixed
// thread list.
type stubDumper struct {
	pid     int
	prepErr error
	threads []unwind.Thread

	prepared bool
	mappings []unwind.Mapping
}

func (d *stubDumper) Prepare(core io.Reader) (int, error) {
	d.prepared = true
	if d.prepErr != nil {
		return -1, d.prepErr
	}
	return d.pid, nil
}

func (d *stubDumper) AddMappings(mappings []unwind.Mapping) {
	d.mappings = append(d.mappings, mappings...)
}

func (d *stubDumper) Dump(taskCB unwind.TaskCallback, emit func(unwind.Thread)) error {
	for _, th := range d.threads {
		taskCB(th.PID)
		emit(th)
	}
	return nil
}

func failingDumper() *stubDumper {
	return &stubDumper{prepErr: fmt.Errorf("no unwinder library available")}
}

func newSink() *logging.MultiSink {
	return logging.NewMultiSink(logging.SeverityDisabled, logging.SeverityDisabled, logging.SeverityDisabled)
}

func newPipeline(cfg *config.Config) *Pipeline {
	return New(cfg, newSink())
}

func coreConfig(template string, policy config.CollisionPolicy) *config.Config {
	cfg := config.Default()
	cfg.CoreOutput.Template = template
	cfg.CoreOutput.Policy = policy
	cfg.Proc.Ignore = true
	return cfg
}

func TestRun_IdentityPipeline(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "c")
	cfg := coreConfig(path, config.Overwrite)

	err := newPipeline(cfg).Run(strings.NewReader("ABCDEFGH"), failingDumper())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != "ABCDEFGH" {
		t.Fatalf("got %q, want ABCDEFGH", got)
	}
}

func TestRun_IdentityPipelineLargeInput(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "c")
	cfg := coreConfig(path, config.Overwrite)

	// Larger than both the priming buffer and the kernel pipe buffer,
	// so the drain loop and the unwinder-pipe overflow path are both
	// exercised.
	input := bytes.Repeat([]byte("0123456789abcdef"), 16*1024)

	err := newPipeline(cfg).Run(bytes.NewReader(input), failingDumper())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, input) {
		t.Fatalf("core file differs from input: got %d bytes, want %d", len(got), len(input))
	}
}

func TestRun_FilterChain(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "c")
	cfg := coreConfig(path, config.Overwrite)
	cfg.CoreOutput.Filters = []string{"tr A X", "tr B Y"}

	err := newPipeline(cfg).Run(strings.NewReader("ABBA"), failingDumper())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != "XYYX" {
		t.Fatalf("got %q, want XYYX", got)
	}
}

func TestRun_SequenceCollision(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "c0"), []byte("old0"), 0600)
	os.WriteFile(filepath.Join(dir, "c1"), []byte("old1"), 0600)

	cfg := coreConfig(filepath.Join(dir, "c@Q"), config.Sequence)
	cfg.CoreOutput.SequenceCeiling = 3

	err := newPipeline(cfg).Run(strings.NewReader("X"), failingDumper())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(dir, "c2"))
	if err != nil {
		t.Fatalf("read c2: %v", err)
	}
	if string(got) != "X" {
		t.Fatalf("got %q, want X", got)
	}
}

func TestRun_SequenceExhaustedStillCompletes(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "c0"), []byte("old0"), 0600)
	os.WriteFile(filepath.Join(dir, "c1"), []byte("old1"), 0600)

	cfg := coreConfig(filepath.Join(dir, "c@Q"), config.Sequence)
	cfg.CoreOutput.SequenceCeiling = 2

	// The channel is disabled but the run still completes cleanly.
	err := newPipeline(cfg).Run(strings.NewReader("X"), failingDumper())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if _, statErr := os.Stat(filepath.Join(dir, "c2")); !os.IsNotExist(statErr) {
		t.Fatal("no file beyond the ceiling should be created")
	}
	if string(mustRead(t, filepath.Join(dir, "c0"))) != "old0" {
		t.Fatal("pre-existing sequence files must be untouched")
	}
}

func TestRun_KeepCollisionPreservesExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "c")
	os.WriteFile(path, []byte("OLD"), 0600)

	cfg := coreConfig(path, config.Keep)

	err := newPipeline(cfg).Run(strings.NewReader("NEW"), failingDumper())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if string(mustRead(t, path)) != "OLD" {
		t.Fatalf("got %q, want OLD preserved", mustRead(t, path))
	}
}

func TestRun_InfoDocumentWritten(t *testing.T) {
	dir := t.TempDir()
	corePath := filepath.Join(dir, "c")
	infoPath := filepath.Join(dir, "info")

	cfg := coreConfig(corePath, config.Overwrite)
	cfg.InfoOutput.Template = infoPath
	cfg.InfoOutput.Policy = config.Overwrite
	cfg.Proc.Ignore = false
	cfg.Proc.Exe = "/usr/bin/victim"

	dumper := &stubDumper{
		pid:     os.Getpid(),
		threads: []unwind.Thread{{PID: 4242}},
	}

	err := newPipeline(cfg).Run(strings.NewReader("CORE"), dumper)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	doc := string(mustRead(t, infoPath))
	if !strings.HasPrefix(doc, "---") {
		t.Fatalf("document must start with the separator, got %q", doc[:min(len(doc), 16)])
	}
	for _, want := range []string{"exe:", `"/usr/bin/victim"`, "tid: 4242", "processing_time:"} {
		if !strings.Contains(doc, want) {
			t.Fatalf("document missing %q:\n%s", want, doc)
		}
	}

	if string(mustRead(t, corePath)) != "CORE" {
		t.Fatal("core bytes must be preserved while the info document is emitted")
	}
	if !dumper.prepared {
		t.Fatal("Prepare must have been called on the unwinder thread")
	}
}

func TestRun_NoOutputsConfigured(t *testing.T) {
	cfg := config.Default()
	cfg.Proc.Ignore = true

	err := newPipeline(cfg).Run(strings.NewReader("ABC"), failingDumper())
	if err != nil {
		t.Fatalf("Run with no outputs must still drain stdin: %v", err)
	}
}

func TestRun_PIDTransitionsAtMostOnce(t *testing.T) {
	cfg := config.Default()
	cfg.Proc.Ignore = true

	p := newPipeline(cfg)
	if err := p.Run(strings.NewReader("ABC"), &stubDumper{pid: 1234}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := p.victimPID.Load(); got != 1234 {
		t.Fatalf("victim pid = %d, want 1234", got)
	}

	// A later transition attempt must not displace the resolved value.
	if p.victimPID.CompareAndSwap(pidUnknown, pidFailed) {
		t.Fatal("pid word must not transition twice")
	}
}

func mustRead(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return data
}
