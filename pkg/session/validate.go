// Package session provides session identity handling for the browser daemon:
// whitelist validation of session labels, deterministic resolution of the
// per-session control-channel address, and process liveness records.
//
// Session labels come from external input (environment variables or flags)
// and are interpolated into filesystem paths, so validation is a positive
// whitelist rather than a blacklist of known-bad sequences.
package session

import "fmt"

// InvalidNameError indicates a session label that failed whitelist validation.
type InvalidNameError struct {
	Name string
}

func (e *InvalidNameError) Error() string {
	return fmt.Sprintf("invalid session name %q: only alphanumeric characters, hyphens, and underscores are allowed", e.Name)
}

// IsValid reports whether name is safe for use in file paths and derived
// addresses. Must be non-empty and composed of ASCII letters, digits,
// hyphens, and underscores.
//
// A single byte-level pass checks every constraint at once: dots, slashes,
// backslashes, whitespace, and every other special character fall out of the
// whitelist without being enumerated.
func IsValid(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		b := name[i]
		ok := (b >= 'a' && b <= 'z') ||
			(b >= 'A' && b <= 'Z') ||
			(b >= '0' && b <= '9') ||
			b == '-' || b == '_'
		if !ok {
			return false
		}
	}
	return true
}

// Validate returns an InvalidNameError if name fails the whitelist.
// It never modifies the name; invalid input is rejected, not sanitized.
func Validate(name string) error {
	if !IsValid(name) {
		return &InvalidNameError{Name: name}
	}
	return nil
}
