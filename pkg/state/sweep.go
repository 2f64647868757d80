package state

import (
	"os"
	"path/filepath"
	"time"
)

// Sweep deletes every file in dir whose last-modified time is older than
// maxAgeDays days. A threshold of zero or less is an explicit opt-out and
// deletes nothing. Per-file failures are swallowed; the sweep is
// best-effort and never aborts daemon startup. Returns the deleted names.
//
// The daemon runs this exactly once, before the control channel accepts its
// first connection, so cleanup happens at a deterministic point instead of
// racing reads in the background.
func Sweep(dir string, maxAgeDays int) []string {
	if maxAgeDays <= 0 {
		return nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	cutoff := time.Now().AddDate(0, 0, -maxAgeDays)
	var deleted []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if !expired(info.ModTime(), cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
			continue
		}
		deleted = append(deleted, entry.Name())
	}
	return deleted
}

// expired is the single age predicate shared by Sweep and Store.Clean.
func expired(modTime, cutoff time.Time) bool {
	return modTime.Before(cutoff)
}
