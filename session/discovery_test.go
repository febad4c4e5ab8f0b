package session

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteAndRemove(t *testing.T) {
	dir := t.TempDir()
	info := DiscoveryInfo{
		SessionID:       "sess-1",
		Port:            4040,
		PID:             os.Getpid(),
		ProtocolVersion: ProtocolVersion,
	}
	path, err := Write(dir, info)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("discovery file missing: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if got := string(data); contains(got, "token") {
		t.Fatalf("discovery file must never carry the token, got %s", got)
	}
	if err := Remove(dir, info.SessionID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected discovery file removed, stat err = %v", err)
	}
}

func TestRemoveMissingIsNotError(t *testing.T) {
	dir := t.TempDir()
	if err := Remove(dir, "does-not-exist"); err != nil {
		t.Fatalf("Remove on missing file: %v", err)
	}
}

func TestSweepStaleRemovesDeadPID(t *testing.T) {
	dir := t.TempDir()
	// A pid no live process will ever hold.
	dead := DiscoveryInfo{SessionID: "dead", PID: 999999, ProtocolVersion: ProtocolVersion}
	deadPath, err := Write(dir, dead)
	if err != nil {
		t.Fatalf("Write dead: %v", err)
	}
	alive := DiscoveryInfo{SessionID: "alive", PID: os.Getpid(), ProtocolVersion: ProtocolVersion}
	alivePath, err := Write(dir, alive)
	if err != nil {
		t.Fatalf("Write alive: %v", err)
	}

	if err := SweepStale(dir); err != nil {
		t.Fatalf("SweepStale: %v", err)
	}
	if _, err := os.Stat(deadPath); !os.IsNotExist(err) {
		t.Fatalf("expected stale discovery file removed")
	}
	if _, err := os.Stat(alivePath); err != nil {
		t.Fatalf("expected live discovery file kept, got %v", err)
	}
}

func TestSweepStaleOnMissingDir(t *testing.T) {
	if err := SweepStale(filepath.Join(t.TempDir(), "nonexistent")); err != nil {
		t.Fatalf("SweepStale on missing dir should be a no-op, got %v", err)
	}
}

func contains(haystack, needle string) bool {
	return len(haystack) >= len(needle) && indexOf(haystack, needle) >= 0
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}
