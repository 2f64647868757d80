package session

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLiveness(t *testing.T) {
	t.Run("round-trips the current pid", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "daemon.pid")
		if err := WritePID(path); err != nil {
			t.Fatalf("WritePID failed: %v", err)
		}
		pid, err := ReadPID(path)
		if err != nil {
			t.Fatalf("ReadPID failed: %v", err)
		}
		if pid != os.Getpid() {
			t.Errorf("expected pid %d, got %d", os.Getpid(), pid)
		}
		if !Alive(path) {
			t.Error("expected current process to be reported alive")
		}
	})

	t.Run("missing file means no daemon", func(t *testing.T) {
		if Alive(filepath.Join(t.TempDir(), "absent.pid")) {
			t.Error("expected missing pid file to report not alive")
		}
	})

	t.Run("stale record is reclaimed", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "stale.pid")
		// Huge pid that cannot belong to a live process.
		if err := os.WriteFile(path, []byte("999999999\n"), 0o600); err != nil {
			t.Fatal(err)
		}
		if Alive(path) {
			t.Error("expected dead pid to report not alive")
		}
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Error("expected stale pid file to be removed")
		}
	})

	t.Run("malformed record is not alive", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "garbage.pid")
		if err := os.WriteFile(path, []byte("not-a-pid"), 0o600); err != nil {
			t.Fatal(err)
		}
		if Alive(path) {
			t.Error("expected malformed pid file to report not alive")
		}
	})
}
