package daemon

import (
	"errors"
	"io/fs"

	"github.com/entrhq/browserd/pkg/session"
	"github.com/entrhq/browserd/pkg/state"
)

// Wire error codes, one per error class in the taxonomy.
const (
	CodeParseError   = "PARSE_ERROR"
	CodeInvalidName  = "INVALID_NAME"
	CodeNotFound     = "NOT_FOUND"
	CodeKeyMissing   = "KEY_MISSING"
	CodeAuthFailed   = "AUTH_FAILED"
	CodeIOError      = "IO_ERROR"
	CodeBrowserError = "BROWSER_ERROR"
)

// codeFor maps a store/session error onto its wire code. Browser
// collaborator errors are tagged CodeBrowserError at the call site since
// they are opaque here.
func codeFor(err error) string {
	var nameErr *session.InvalidNameError
	switch {
	case errors.As(err, &nameErr):
		return CodeInvalidName
	case errors.Is(err, state.ErrKeyMissing):
		return CodeKeyMissing
	case errors.Is(err, state.ErrAuthentication):
		return CodeAuthFailed
	case errors.Is(err, fs.ErrNotExist):
		return CodeNotFound
	default:
		return CodeIOError
	}
}
