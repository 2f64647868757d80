// Package browser wraps the Playwright-driven browser session the daemon
// drives. The daemon owns exactly one handle; launch, storage-state
// capture/restore, and command forwarding all go through the Browser
// interface so the daemon can be tested against a fake.
package browser

// Default session parameters applied when a launch does not specify them.
const (
	DefaultViewportWidth  = 1280
	DefaultViewportHeight = 720

	// DefaultTimeout is the default per-operation timeout in milliseconds.
	DefaultTimeout = 30000.0

	// maxSnapshotLength bounds the body text returned by snapshot.
	maxSnapshotLength = 100000
)

// LaunchOptions configures a new browser session.
type LaunchOptions struct {
	// Headless controls whether the browser runs without a visible window.
	Headless bool

	// ExecutablePath points at a custom Chromium binary. Empty uses the
	// Playwright-managed installation.
	ExecutablePath string

	// StorageState is the serialized cookies/origins JSON to restore into
	// the new context. Nil launches a fresh session.
	StorageState []byte
}

// Browser is the external collaborator the daemon forwards commands to.
type Browser interface {
	// Launch starts the browser session. Exactly one session may be
	// active per handle.
	Launch(opts LaunchOptions) error

	// Active reports whether a session is currently running.
	Active() bool

	// CaptureState serializes the session's current cookies and
	// per-origin storage.
	CaptureState() ([]byte, error)

	// Do executes one forwarded command against the active session and
	// returns its result verbatim.
	Do(action string, params map[string]any) (any, error)

	// Close tears the session down. Safe to call when inactive.
	Close() error
}
