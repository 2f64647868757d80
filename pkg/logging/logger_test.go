package logging

import (
	"os"
	"strings"
	"testing"
)

func TestLogger(t *testing.T) {
	// The log directory is resolved once per process, so a single HOME
	// covers every subtest.
	t.Setenv("HOME", t.TempDir())

	t.Run("writes leveled entries to the run file", func(t *testing.T) {
		logger, err := NewLogger("daemon", false)
		if err != nil {
			t.Fatalf("NewLogger failed: %v", err)
		}
		defer logger.Close()

		logger.Infof("listening on %s", "/tmp/agent-browser-default.sock")
		logger.Warnf("auto-save failed: %v", os.ErrPermission)

		data, err := os.ReadFile(logger.LogPath())
		if err != nil {
			t.Fatalf("failed to read log file: %v", err)
		}
		content := string(data)

		if !strings.Contains(content, "[INFO] listening on") {
			t.Error("missing info entry")
		}
		if !strings.Contains(content, "[WARN] auto-save failed") {
			t.Error("missing warn entry")
		}
		if !strings.Contains(content, "[daemon]") {
			t.Error("missing component tag")
		}
	})

	t.Run("debug entries are gated by the toggle", func(t *testing.T) {
		quiet, err := NewLogger("quiet", false)
		if err != nil {
			t.Fatalf("NewLogger failed: %v", err)
		}
		defer quiet.Close()
		quiet.Debugf("suppressed debug line")

		verbose, err := NewLogger("verbose", true)
		if err != nil {
			t.Fatalf("NewLogger failed: %v", err)
		}
		defer verbose.Close()
		verbose.Debugf("emitted debug line")

		data, err := os.ReadFile(verbose.LogPath())
		if err != nil {
			t.Fatalf("failed to read log file: %v", err)
		}
		content := string(data)

		if strings.Contains(content, "suppressed debug line") {
			t.Error("debug entry emitted with toggle off")
		}
		if !strings.Contains(content, "emitted debug line") {
			t.Error("debug entry suppressed with toggle on")
		}
	})

	t.Run("close is idempotent", func(t *testing.T) {
		logger, err := NewLogger("daemon", false)
		if err != nil {
			t.Fatalf("NewLogger failed: %v", err)
		}
		if err := logger.Close(); err != nil {
			t.Errorf("first Close failed: %v", err)
		}
		if err := logger.Close(); err != nil {
			t.Errorf("second Close failed: %v", err)
		}
	})
}
