package state

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeAged(t *testing.T, dir, name string, ageDays int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(`{"cookies":[],"origins":[]}`), 0o600); err != nil {
		t.Fatal(err)
	}
	mod := time.Now().AddDate(0, 0, -ageDays)
	if err := os.Chtimes(path, mod, mod); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestSweep(t *testing.T) {
	t.Run("deletes past the threshold, retains within it", func(t *testing.T) {
		dir := t.TempDir()
		old := writeAged(t, dir, "old-default.json", 8)
		fresh := writeAged(t, dir, "fresh-default.json", 6)

		deleted := Sweep(dir, 7)

		if len(deleted) != 1 || deleted[0] != "old-default.json" {
			t.Errorf("expected only old-default.json deleted, got %v", deleted)
		}
		if _, err := os.Stat(old); !os.IsNotExist(err) {
			t.Error("8-day-old file survived a 7-day sweep")
		}
		if _, err := os.Stat(fresh); err != nil {
			t.Error("6-day-old file deleted by a 7-day sweep")
		}
	})

	t.Run("zero threshold deletes nothing regardless of age", func(t *testing.T) {
		dir := t.TempDir()
		path := writeAged(t, dir, "ancient-default.json", 365)

		if deleted := Sweep(dir, 0); deleted != nil {
			t.Errorf("expected no deletions, got %v", deleted)
		}
		if _, err := os.Stat(path); err != nil {
			t.Error("file deleted despite disabled sweep")
		}
	})

	t.Run("negative threshold is a no-op", func(t *testing.T) {
		dir := t.TempDir()
		writeAged(t, dir, "x-default.json", 100)
		if deleted := Sweep(dir, -3); deleted != nil {
			t.Errorf("expected no deletions, got %v", deleted)
		}
	})

	t.Run("missing directory is harmless", func(t *testing.T) {
		if deleted := Sweep(filepath.Join(t.TempDir(), "absent"), 7); deleted != nil {
			t.Errorf("expected no deletions, got %v", deleted)
		}
	})
}
