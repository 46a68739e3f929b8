package outputchannel

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"crashinfo-go/config"
	"crashinfo-go/logging"
)

func newSink() *logging.MultiSink {
	return logging.NewMultiSink(logging.SeverityDisabled, logging.SeverityDisabled, logging.SeverityDisabled)
}

func TestOpen_OverwriteIdentity(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "c")

	ch, err := Open("core", config.OutputSpec{Template: path, Policy: config.Overwrite}, "/bin/foo", time.Now(), newSink())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := ch.File.Write([]byte("ABCDEFGH")); err != nil {
		t.Fatalf("write: %v", err)
	}
	ch.Close()

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != "ABCDEFGH" {
		t.Fatalf("got %q, want ABCDEFGH", got)
	}
}

func TestOpen_SequenceCollision(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "c0"), []byte("old0"), 0600)
	os.WriteFile(filepath.Join(dir, "c1"), []byte("old1"), 0600)

	ch, err := Open("core", config.OutputSpec{
		Template:        filepath.Join(dir, "c@Q"),
		Policy:          config.Sequence,
		SequenceCeiling: 3,
	}, "/bin/foo", time.Now(), newSink())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ch.File.Write([]byte("X"))
	ch.Close()

	if ch.Filename != filepath.Join(dir, "c2") {
		t.Fatalf("got filename %q, want c2", ch.Filename)
	}
	got, _ := os.ReadFile(filepath.Join(dir, "c2"))
	if string(got) != "X" {
		t.Fatalf("got %q, want X", got)
	}
}

func TestOpen_SequenceExhausted(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "c0"), []byte("old0"), 0600)
	os.WriteFile(filepath.Join(dir, "c1"), []byte("old1"), 0600)

	_, err := Open("core", config.OutputSpec{
		Template:        filepath.Join(dir, "c@Q"),
		Policy:          config.Sequence,
		SequenceCeiling: 2,
	}, "/bin/foo", time.Now(), newSink())
	if err == nil {
		t.Fatal("expected sequence-exhausted error")
	}
}

func TestOpen_KeepCollisionPreservesExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "c")
	os.WriteFile(path, []byte("OLD"), 0600)

	ch, err := Open("core", config.OutputSpec{Template: path, Policy: config.Keep}, "/bin/foo", time.Now(), newSink())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ch.File.Write([]byte("NEW"))
	ch.Close()

	got, _ := os.ReadFile(path)
	if string(got) != "OLD" {
		t.Fatalf("got %q, want OLD (unchanged)", got)
	}
}

func TestOpen_WildcardExecutablePath(t *testing.T) {
	dir := t.TempDir()
	ch, err := Open("core", config.OutputSpec{
		Template: filepath.Join(dir, "@E.core"),
		Policy:   config.Overwrite,
	}, "/usr/bin/foo", time.Now(), newSink())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ch.Close()

	want := filepath.Join(dir, "!usr!bin!foo.core")
	if ch.Filename != want {
		t.Fatalf("got %q, want %q", ch.Filename, want)
	}
}

func TestOpen_NotAbsoluteRejected(t *testing.T) {
	_, err := Open("core", config.OutputSpec{Template: "relative/path", Policy: config.Overwrite}, "/bin/foo", time.Now(), newSink())
	if err == nil {
		t.Fatal("expected not-absolute error")
	}
}

func TestOpen_MakeParentDirs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "deep", "c")

	ch, err := Open("core", config.OutputSpec{
		Template:       path,
		Policy:         config.Overwrite,
		MakeParentDirs: true,
	}, "/bin/foo", time.Now(), newSink())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ch.Close()

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected file to exist: %v", err)
	}
}
