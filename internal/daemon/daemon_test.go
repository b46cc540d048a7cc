package daemon

import (
	"os"
	"testing"
)

func TestPIDFileRoundTrip(t *testing.T) {
	dir := t.TempDir()

	pid, err := ReadPID(dir)
	if err != nil {
		t.Fatal(err)
	}
	if pid != 0 {
		t.Fatalf("missing file: pid = %d, want 0", pid)
	}

	if err := WritePID(dir, 4321); err != nil {
		t.Fatal(err)
	}
	pid, err = ReadPID(dir)
	if err != nil {
		t.Fatal(err)
	}
	if pid != 4321 {
		t.Fatalf("pid = %d, want 4321", pid)
	}

	if err := RemovePID(dir); err != nil {
		t.Fatal(err)
	}
	if err := RemovePID(dir); err != nil {
		t.Fatalf("double remove: %v", err)
	}
}

func TestIsRunning(t *testing.T) {
	if !IsRunning(os.Getpid()) {
		t.Fatal("own pid reported not running")
	}
	if IsRunning(0) || IsRunning(-1) {
		t.Fatal("invalid pid reported running")
	}
}
