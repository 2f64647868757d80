package session

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
)

// WritePID records the current process id at path with owner-only
// permissions. Called after the daemon binds its address.
func WritePID(path string) error {
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o600)
}

// ReadPID returns the process id recorded at path.
func ReadPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("malformed pid file %s: %w", path, err)
	}
	return pid, nil
}

// Alive reports whether the pid file at path refers to a running process.
// A missing file means no daemon; a record pointing at a dead process is
// stale and is removed so a new daemon can claim the identity.
func Alive(path string) bool {
	pid, err := ReadPID(path)
	if err != nil {
		return false
	}
	if processAlive(pid) {
		return true
	}
	_ = os.Remove(path)
	return false
}

// processAlive probes a pid with signal 0. FindProcess always succeeds on
// unix, so the signal result is the real check.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
