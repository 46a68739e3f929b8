package procread

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseMaps_RetainsExecAbsolute(t *testing.T) {
	dir := t.TempDir()
	maps := "00400000-00452000 r-xp 00000000 08:02 123456 /usr/bin/foo\n" +
		"00651000-00652000 rw-p 00051000 08:02 123456 /usr/bin/foo\n" +
		"7f0000000000-7f0000021000 r-xp 00000000 00:00 0 \n" +
		"7f1000000000-7f1000010000 r-xp 00000000 08:02 99 [heap]\n"
	if err := os.WriteFile(filepath.Join(dir, "maps"), []byte(maps), 0600); err != nil {
		t.Fatalf("write maps: %v", err)
	}

	got, err := ParseMaps(dir)
	if err != nil {
		t.Fatalf("ParseMaps: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d mappings, want 1: %+v", len(got), got)
	}
	if got[0].Path != "/usr/bin/foo" || got[0].VAddr != 0x400000 {
		t.Fatalf("got %+v", got[0])
	}
}

func TestBuildNSPidTable(t *testing.T) {
	dir := t.TempDir()
	taskDir := filepath.Join(dir, "task", "42")
	if err := os.MkdirAll(taskDir, 0700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	status := "Name:\tfoo\nPid:\t42\nNSpid:\t42\t7\n"
	if err := os.WriteFile(filepath.Join(taskDir, "status"), []byte(status), 0600); err != nil {
		t.Fatalf("write status: %v", err)
	}

	table, err := BuildNSPidTable(dir)
	if err != nil {
		t.Fatalf("BuildNSPidTable: %v", err)
	}
	if table[7] != 42 {
		t.Fatalf("got table[7]=%d, want 42", table[7])
	}
}

func TestBuildNSPidTable_MalformedAborts(t *testing.T) {
	dir := t.TempDir()
	taskDir := filepath.Join(dir, "task", "42")
	if err := os.MkdirAll(taskDir, 0700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	status := "Name:\tfoo\nNSpid:\tnotanumber\n"
	if err := os.WriteFile(filepath.Join(taskDir, "status"), []byte(status), 0600); err != nil {
		t.Fatalf("write status: %v", err)
	}

	if _, err := BuildNSPidTable(dir); err == nil {
		t.Fatal("expected malformed NSpid error")
	}
}

func TestMapPID_Fallback(t *testing.T) {
	table := map[int]int{1: 100}
	if got := MapPID(table, 1); got != 100 {
		t.Fatalf("got %d, want 100", got)
	}
	if got := MapPID(table, 99); got != 99 {
		t.Fatalf("got %d, want 99 (unchanged fallback)", got)
	}
}
