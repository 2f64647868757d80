// Package daemon implements the control daemon: it accepts client
// connections on the session's resolved address, reassembles and dispatches
// newline-delimited JSON command frames, owns the single browser-session
// handle, and orchestrates auto-load on first use and auto-save on close.
package daemon

// Context is the daemon's immutable per-process configuration, constructed
// once at startup and passed by reference into every component. No
// component reads ambient process state.
type Context struct {
	// SessionID is the isolation label this daemon serves.
	SessionID string

	// SessionName is the persistence label. Empty disables auto
	// save/load entirely.
	SessionName string

	// MaxAgeDays is the expiration threshold for the startup sweep.
	// Zero disables the sweep.
	MaxAgeDays int

	// Headed launches a visible browser window.
	Headed bool

	// ExecutablePath points at a custom Chromium binary, empty for the
	// managed installation.
	ExecutablePath string

	// Debug toggles diagnostic emission only.
	Debug bool
}

// Phase is the daemon's lifecycle state. Transitions happen only while the
// global command gate is held, so concurrent frames can never observe or
// cause a half-completed transition.
type Phase int

const (
	// PhaseIdle: no browser session exists yet.
	PhaseIdle Phase = iota

	// PhaseLaunching: a launch is in flight.
	PhaseLaunching

	// PhaseLaunched: the browser session is active.
	PhaseLaunched

	// PhaseClosing: close has been accepted; the process is about to
	// exit.
	PhaseClosing
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseLaunching:
		return "launching"
	case PhaseLaunched:
		return "launched"
	case PhaseClosing:
		return "closing"
	default:
		return "unknown"
	}
}
