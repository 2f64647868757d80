package state

import "errors"

var (
	// ErrKeyMissing indicates an encrypted state file was encountered with
	// no encryption key configured. The caller must supply the key that
	// wrote the file; there is no plaintext fallback.
	ErrKeyMissing = errors.New("state file is encrypted but no encryption key is configured; set AGENT_BROWSER_STATE_KEY")

	// ErrAuthentication indicates the AEAD integrity check failed: wrong
	// key or tampered file.
	ErrAuthentication = errors.New("failed to decrypt state file: wrong key or corrupted data")

	// ErrExists indicates a rename target that already exists.
	ErrExists = errors.New("target state file already exists")
)
