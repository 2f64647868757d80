package daemon

import (
	"errors"
	"fmt"
	"os"

	"github.com/entrhq/browserd/pkg/browser"
	"github.com/entrhq/browserd/pkg/state"
)

// dispatch executes one frame under the global command gate and returns the
// response plus whether the daemon should terminate after delivering it.
func (s *Server) dispatch(line []byte) (Response, bool) {
	req, err := ParseFrame(line)
	if err != nil {
		return fail(recoverID(line), fmt.Errorf("malformed frame: %w", err), CodeParseError, nil), false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.log.Debugf("dispatch %s action=%s phase=%s", req.ID, req.Action, s.phase)

	if s.phase == PhaseClosing {
		return fail(req.ID, errors.New("daemon is shutting down"), CodeBrowserError, nil), false
	}

	switch req.Action {
	case "launch":
		return s.handleLaunch(req), false
	case "close":
		return s.handleClose(req), true
	case "status":
		return s.handleStatus(req), false
	case "state_save":
		return s.handleStateSave(req), false
	case "state_load":
		return s.handleStateLoad(req), false
	case "state_list":
		return s.handleStateList(req), false
	case "state_show":
		return s.handleStateShow(req), false
	case "state_rename":
		return s.handleStateRename(req), false
	case "state_clear":
		return s.handleStateClear(req), false
	case "state_clean":
		return s.handleStateClean(req), false
	default:
		return s.handleForward(req), false
	}
}

// handleLaunch starts the browser explicitly. An explicit "state" path is a
// hard requirement; the configured auto-load path is best-effort.
func (s *Server) handleLaunch(req *Request) Response {
	if s.phase == PhaseLaunched {
		return fail(req.ID, errors.New("browser session already active"), CodeBrowserError, nil)
	}

	var warnings []string
	var blob []byte
	restored := false

	if path := optionalString(req.Params, "state"); path != "" {
		data, err := s.store.Load(path)
		if err != nil {
			return fail(req.ID, err, codeFor(err), nil)
		}
		blob = data
		restored = true
	} else if data, warning := s.autoLoad(); warning != "" {
		warnings = append(warnings, warning)
	} else if data != nil {
		blob = data
		restored = true
	}

	if err := s.launch(blob); err != nil {
		return fail(req.ID, err, CodeBrowserError, warnings)
	}
	return ok(req.ID, map[string]any{"launched": true, "restored": restored}, warnings)
}

// handleClose saves state best-effort, tears the browser down, and marks
// the daemon closing. The response must still be delivered, so the caller
// schedules shutdown only after the flush.
func (s *Server) handleClose(req *Request) Response {
	var warnings []string

	if s.phase == PhaseLaunched && s.browser.Active() {
		if path, err := s.autoStatePath(); err == nil && path != "" {
			if warning := s.saveState(path); warning != "" {
				warnings = append(warnings, warning)
			}
		}
		if err := s.browser.Close(); err != nil {
			s.log.Warnf("browser close failed: %v", err)
			warnings = append(warnings, fmt.Sprintf("browser close failed: %v", err))
		}
	}

	s.phase = PhaseClosing
	s.log.Infof("close accepted, shutting down")
	return ok(req.ID, map[string]any{"closed": true}, warnings)
}

func (s *Server) handleStatus(req *Request) Response {
	return ok(req.ID, map[string]any{
		"phase":        s.phase.String(),
		"session":      s.ctx.SessionID,
		"session_name": s.ctx.SessionName,
		"persistence":  s.ctx.SessionName != "",
		"encrypted":    s.store.Encrypting(),
		"pid":          os.Getpid(),
	}, nil)
}

func (s *Server) handleStateSave(req *Request) Response {
	var warnings []string
	if err := s.ensureLaunched(&warnings); err != nil {
		return fail(req.ID, err, CodeBrowserError, warnings)
	}

	path, err := s.statePath(req)
	if err != nil {
		return fail(req.ID, err, codeFor(err), warnings)
	}

	blob, err := s.browser.CaptureState()
	if err != nil {
		return fail(req.ID, err, CodeBrowserError, warnings)
	}
	encrypted, err := s.store.Save(path, blob)
	if err != nil {
		return fail(req.ID, err, codeFor(err), warnings)
	}
	s.log.Infof("state saved to %s (encrypted=%v)", path, encrypted)
	return ok(req.ID, map[string]any{"path": path, "encrypted": encrypted}, warnings)
}

// handleStateLoad replaces the running session with one restored from the
// given (or configured) state file. Load failures are hard errors here,
// unlike the auto-load path.
func (s *Server) handleStateLoad(req *Request) Response {
	path, err := s.statePath(req)
	if err != nil {
		return fail(req.ID, err, codeFor(err), nil)
	}

	blob, err := s.store.Load(path)
	if err != nil {
		return fail(req.ID, err, codeFor(err), nil)
	}

	if s.phase == PhaseLaunched {
		if err := s.browser.Close(); err != nil {
			s.log.Warnf("browser close before reload failed: %v", err)
		}
		s.phase = PhaseIdle
	}
	if err := s.launch(blob); err != nil {
		return fail(req.ID, err, CodeBrowserError, nil)
	}
	s.log.Infof("state loaded from %s", path)
	return ok(req.ID, map[string]any{"path": path, "restored": true}, nil)
}

func (s *Server) handleStateList(req *Request) Response {
	records, err := s.store.List()
	if err != nil {
		return fail(req.ID, err, codeFor(err), nil)
	}
	if records == nil {
		records = []state.FileRecord{} // keep "files" as [] not null
	}
	return ok(req.ID, map[string]any{"files": records}, nil)
}

func (s *Server) handleStateShow(req *Request) Response {
	name := optionalString(req.Params, "filename")
	if name == "" {
		return fail(req.ID, errors.New("missing required parameter \"filename\""), CodeParseError, nil)
	}
	summary, err := s.store.Show(name)
	if err != nil {
		return fail(req.ID, err, codeFor(err), nil)
	}
	return ok(req.ID, summary, nil)
}

func (s *Server) handleStateRename(req *Request) Response {
	oldName := optionalString(req.Params, "old")
	newName := optionalString(req.Params, "new")
	if oldName == "" || newName == "" {
		return fail(req.ID, errors.New("rename requires \"old\" and \"new\""), CodeParseError, nil)
	}
	if err := s.store.Rename(oldName, newName); err != nil {
		return fail(req.ID, err, codeFor(err), nil)
	}
	return ok(req.ID, map[string]any{"old": oldName, "new": newName}, nil)
}

func (s *Server) handleStateClear(req *Request) Response {
	var deleted []string
	var err error

	if all, _ := req.Params["all"].(bool); all {
		deleted, err = s.store.ClearAll()
	} else if name := optionalString(req.Params, "name"); name != "" {
		deleted, err = s.store.ClearByName(name)
	} else {
		return fail(req.ID, errors.New("clear requires \"name\" or \"all\""), CodeParseError, nil)
	}
	if err != nil {
		return fail(req.ID, err, codeFor(err), nil)
	}
	if deleted == nil {
		deleted = []string{}
	}
	return ok(req.ID, map[string]any{"deleted": deleted}, nil)
}

func (s *Server) handleStateClean(req *Request) Response {
	days := s.ctx.MaxAgeDays
	if v, isNumber := req.Params["days"].(float64); isNumber {
		days = int(v)
	}
	deleted, err := s.store.Clean(days)
	if err != nil {
		return fail(req.ID, err, codeFor(err), nil)
	}
	if deleted == nil {
		deleted = []string{}
	}
	return ok(req.ID, map[string]any{"deleted": deleted, "days": days}, nil)
}

// handleForward runs any other action against the browser, launching it
// first if this is the session's first browser-bound command.
func (s *Server) handleForward(req *Request) Response {
	var warnings []string
	if err := s.ensureLaunched(&warnings); err != nil {
		return fail(req.ID, err, CodeBrowserError, warnings)
	}

	data, err := s.browser.Do(req.Action, req.Params)
	if err != nil {
		return fail(req.ID, err, CodeBrowserError, warnings)
	}
	return ok(req.ID, data, warnings)
}

// ensureLaunched brings an idle daemon to Launched, restoring the
// configured state file when one exists. Restore failures degrade to
// warnings; a fresh session is better than no session.
func (s *Server) ensureLaunched(warnings *[]string) error {
	if s.phase == PhaseLaunched {
		return nil
	}

	blob, warning := s.autoLoad()
	if warning != "" {
		*warnings = append(*warnings, warning)
	}
	return s.launch(blob)
}

// autoLoad reads the configured state file if persistence is set up and the
// file exists. Failures come back as a warning string, never an error.
func (s *Server) autoLoad() ([]byte, string) {
	path, err := s.autoStatePath()
	if err != nil || path == "" {
		return nil, ""
	}
	if _, err := os.Stat(path); err != nil {
		return nil, ""
	}
	blob, err := s.store.Load(path)
	if err != nil {
		s.log.Warnf("auto-load of %s failed: %v", path, err)
		return nil, fmt.Sprintf("auto-load failed: %v", err)
	}
	s.log.Debugf("auto-load restored %d bytes from %s", len(blob), path)
	return blob, ""
}

// saveState captures and persists the current session, returning a warning
// string on failure.
func (s *Server) saveState(path string) string {
	blob, err := s.browser.CaptureState()
	if err != nil {
		s.log.Warnf("auto-save capture failed: %v", err)
		return fmt.Sprintf("auto-save failed: %v", err)
	}
	encrypted, err := s.store.Save(path, blob)
	if err != nil {
		s.log.Warnf("auto-save write failed: %v", err)
		return fmt.Sprintf("auto-save failed: %v", err)
	}
	s.log.Infof("auto-saved state to %s (encrypted=%v)", path, encrypted)
	return ""
}

// launch moves Idle -> Launching -> Launched, rolling back to Idle on
// failure.
func (s *Server) launch(blob []byte) error {
	s.phase = PhaseLaunching
	err := s.browser.Launch(browser.LaunchOptions{
		Headless:       !s.ctx.Headed,
		ExecutablePath: s.ctx.ExecutablePath,
		StorageState:   blob,
	})
	if err != nil {
		s.phase = PhaseIdle
		return fmt.Errorf("failed to launch browser: %w", err)
	}
	s.phase = PhaseLaunched
	s.log.Infof("browser launched (headed=%v restored=%v)", s.ctx.Headed, len(blob) > 0)
	return nil
}

// statePath resolves the target file for state_save/state_load: an explicit
// "path" parameter wins, otherwise the configured persistence label.
func (s *Server) statePath(req *Request) (string, error) {
	if path := optionalString(req.Params, "path"); path != "" {
		return path, nil
	}
	path, err := s.autoStatePath()
	if err != nil {
		return "", err
	}
	if path == "" {
		return "", errors.New("no session name configured and no path given")
	}
	return path, nil
}

func (s *Server) autoStatePath() (string, error) {
	return s.store.ResolvePath(s.ctx.SessionName, s.ctx.SessionID)
}

func optionalString(params map[string]any, key string) string {
	if value, isString := params[key].(string); isString {
		return value
	}
	return ""
}
