// Package state implements the persistent session-state subsystem: a
// permission-hardened file store for browser storage-state blobs, an
// AES-256-GCM codec for encryption at rest, and a startup expiration sweep.
//
// A state blob is the JSON serialization of captured cookies and per-origin
// storage. The store treats it as opaque beyond structural counting for the
// Show operation; interpretation belongs to the browser collaborator.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gobwas/glob"

	"github.com/entrhq/browserd/pkg/session"
)

// Store persists per-session state blobs under a single directory,
// transparently encrypting when a key is configured.
type Store struct {
	dir string
	key []byte // nil means plaintext persistence
}

// FileRecord is a read-only view of one stored state file.
type FileRecord struct {
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	ModTime   time.Time `json:"modified"`
	Encrypted bool      `json:"encrypted"`
}

// Summary describes a stored state file for inspection. Known is false when
// the file is encrypted and no key is configured; the counts are then zero
// and the contents are reported as unknown rather than failing the call.
type Summary struct {
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	ModTime   time.Time `json:"modified"`
	Encrypted bool      `json:"encrypted"`
	Known     bool      `json:"known"`
	Cookies   int       `json:"cookies"`
	Origins   int       `json:"origins"`
}

// DefaultDir returns the canonical sessions directory,
// ~/.agent-browser/sessions.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".agent-browser", "sessions"), nil
}

// NewStore creates a store rooted at dir. A nil key means blobs are written
// as plain JSON. The directory is created lazily on first write.
func NewStore(dir string, key []byte) *Store {
	return &Store{dir: dir, key: key}
}

// Dir returns the sessions directory.
func (s *Store) Dir() string {
	return s.dir
}

// Encrypting reports whether a key is configured.
func (s *Store) Encrypting() bool {
	return s.key != nil
}

// ResolvePath maps a (persistence label, isolation label) pair to its state
// file path. An empty sessionName means persistence is not configured and
// resolves to "". Both labels are validated before path construction.
func (s *Store) ResolvePath(sessionName, sessionID string) (string, error) {
	if sessionName == "" {
		return "", nil
	}
	if err := session.Validate(sessionName); err != nil {
		return "", err
	}
	if err := session.Validate(sessionID); err != nil {
		return "", err
	}
	if err := s.ensureDir(); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, fmt.Sprintf("%s-%s.json", sessionName, sessionID)), nil
}

// Save writes blob to path, wrapping it in an encrypted envelope when a key
// is configured. The write is atomic from a reader's perspective: data goes
// to a temp file in the same directory which is then renamed over the
// target. Reports whether the written file is encrypted.
func (s *Store) Save(path string, blob []byte) (bool, error) {
	if err := s.ensureDir(); err != nil {
		return false, err
	}

	data := blob
	encrypted := false
	if s.key != nil {
		env, err := Encrypt(blob, s.key)
		if err != nil {
			return false, fmt.Errorf("failed to encrypt state: %w", err)
		}
		data, err = json.Marshal(env)
		if err != nil {
			return false, fmt.Errorf("failed to serialize envelope: %w", err)
		}
		encrypted = true
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return false, fmt.Errorf("failed to write state file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return false, fmt.Errorf("failed to finalize state file: %w", err)
	}
	return encrypted, nil
}

// Load reads the blob at path. Encrypted files require a configured key:
// missing key fails with ErrKeyMissing, integrity failure with
// ErrAuthentication. Plaintext files are returned as-is. Partially
// decrypted or tampered content is never returned.
func (s *Store) Load(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("state file not found: %s: %w", path, err)
		}
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	env := detectEnvelope(data)
	if env == nil {
		return data, nil
	}
	if s.key == nil {
		return nil, ErrKeyMissing
	}
	return Decrypt(env, s.key)
}

// List enumerates stored state files sorted by name, with the encrypted
// flag determined the same way Load detects envelopes, without requiring
// the key.
func (s *Store) List() ([]FileRecord, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read sessions directory: %w", err)
	}

	var records []FileRecord
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			continue
		}
		records = append(records, FileRecord{
			Name:      entry.Name(),
			Size:      info.Size(),
			ModTime:   info.ModTime(),
			Encrypted: IsEncrypted(data),
		})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Name < records[j].Name })
	return records, nil
}

// Show summarizes one stored file: metadata plus cookie and origin counts.
// An encrypted file without a configured key is reported as encrypted with
// unknown contents instead of failing.
func (s *Store) Show(filename string) (*Summary, error) {
	path, err := s.resolveFile(filename)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("state file not found: %s: %w", filename, err)
		}
		return nil, fmt.Errorf("failed to stat state file: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	summary := &Summary{
		Name:      filename,
		Size:      info.Size(),
		ModTime:   info.ModTime(),
		Encrypted: IsEncrypted(data),
	}

	if summary.Encrypted {
		if s.key == nil {
			return summary, nil
		}
		env := detectEnvelope(data)
		data, err = Decrypt(env, s.key)
		if err != nil {
			return nil, err
		}
	}

	cookies, origins, err := countBlob(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse state file: %w", err)
	}
	summary.Known = true
	summary.Cookies = cookies
	summary.Origins = origins
	return summary, nil
}

// Rename moves one stored file to a new name. Both names must resolve
// inside the sessions directory and the target must not already exist.
func (s *Store) Rename(oldName, newName string) error {
	oldPath, err := s.resolveFile(oldName)
	if err != nil {
		return err
	}
	newPath, err := s.resolveFile(newName)
	if err != nil {
		return err
	}

	if _, err := os.Stat(oldPath); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("state file not found: %s: %w", oldName, err)
		}
		return fmt.Errorf("failed to stat state file: %w", err)
	}
	if _, err := os.Stat(newPath); err == nil {
		return fmt.Errorf("%w: %s", ErrExists, newName)
	}
	if err := os.Rename(oldPath, newPath); err != nil {
		return fmt.Errorf("failed to rename state file: %w", err)
	}
	return nil
}

// ClearByName deletes every file named {sessionName}-{label}.json where
// label is a valid isolation label. Returns the deleted file names.
func (s *Store) ClearByName(sessionName string) ([]string, error) {
	if err := session.Validate(sessionName); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read sessions directory: %w", err)
	}

	pattern := glob.MustCompile(sessionName + "-*.json")
	prefix := sessionName + "-"

	var deleted []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !pattern.Match(name) {
			continue
		}
		label := strings.TrimSuffix(strings.TrimPrefix(name, prefix), ".json")
		if !session.IsValid(label) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil {
			return deleted, fmt.Errorf("failed to delete %s: %w", name, err)
		}
		deleted = append(deleted, name)
	}
	return deleted, nil
}

// ClearAll deletes every file in the sessions directory and returns the
// deleted names.
func (s *Store) ClearAll() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read sessions directory: %w", err)
	}

	var deleted []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil {
			return deleted, fmt.Errorf("failed to delete %s: %w", entry.Name(), err)
		}
		deleted = append(deleted, entry.Name())
	}
	return deleted, nil
}

// Clean deletes files older than olderThanDays using the sweeper's age
// predicate and returns the deleted names. Zero or negative thresholds
// delete nothing.
func (s *Store) Clean(olderThanDays int) ([]string, error) {
	return Sweep(s.dir, olderThanDays), nil
}

// resolveFile confines a caller-supplied filename to the sessions
// directory. Any separator or traversal component is rejected.
func (s *Store) resolveFile(name string) (string, error) {
	if name == "" || name == "." || name == ".." || name != filepath.Base(name) {
		return "", fmt.Errorf("invalid state file name %q", name)
	}
	return filepath.Join(s.dir, name), nil
}

func (s *Store) ensureDir() error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("failed to create sessions directory: %w", err)
	}
	return nil
}

// countBlob counts cookies and origins structurally without interpreting
// record contents.
func countBlob(data []byte) (cookies, origins int, err error) {
	var blob struct {
		Cookies []json.RawMessage `json:"cookies"`
		Origins []json.RawMessage `json:"origins"`
	}
	if err := json.Unmarshal(data, &blob); err != nil {
		return 0, 0, err
	}
	return len(blob.Cookies), len(blob.Origins), nil
}
