package filterchain

import (
	"io"
	"os"
	"os/exec"
	"testing"
)

func TestTokenize_Substitution(t *testing.T) {
	got := Tokenize("notify-send @1 @2", "core.file", "info.file")
	want := []string{"notify-send", "core.file", "info.file"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestTokenize_NoSubstitutionWhenEmpty(t *testing.T) {
	got := Tokenize("echo @1", "", "")
	if len(got) != 2 || got[1] != "@1" {
		t.Fatalf("expected literal @1 preserved, got %v", got)
	}
}

func TestBuild_SingleFilterTransformsBytes(t *testing.T) {
	if _, err := exec.LookPath("tr"); err != nil {
		t.Skip("tr not available")
	}

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	outR, outW, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}

	head, err := Build([]string{"tr A X"}, r, outW)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	outW.Close()
	r.Close()

	go func() {
		w.Write([]byte("AB"))
		w.Close()
	}()

	got, err := io.ReadAll(outR)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != "XB" {
		t.Fatalf("got %q, want %q", got, "XB")
	}

	if err := Close(head); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestBuild_TwoFilterChain(t *testing.T) {
	if _, err := exec.LookPath("tr"); err != nil {
		t.Skip("tr not available")
	}

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	outR, outW, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}

	head, err := Build([]string{"tr A X", "tr B Y"}, r, outW)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	outW.Close()
	r.Close()

	go func() {
		w.Write([]byte("ABBA"))
		w.Close()
	}()

	got, err := io.ReadAll(outR)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != "XYYX" {
		t.Fatalf("got %q, want %q", got, "XYYX")
	}

	if err := Close(head); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestBuild_FailureLeavesNoOrphans(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer w.Close()
	outR, outW, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer outR.Close()

	_, err = Build([]string{"true", "this-binary-does-not-exist-xyz"}, r, outW)
	if err == nil {
		t.Fatal("expected error for missing binary")
	}
}
