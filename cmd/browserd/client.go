package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"os/exec"
	"time"

	"github.com/google/uuid"

	"github.com/entrhq/browserd/pkg/config"
	"github.com/entrhq/browserd/pkg/daemon"
	"github.com/entrhq/browserd/pkg/session"
	"github.com/entrhq/browserd/pkg/state"
)

// spawnTimeout bounds how long the client waits for an auto-spawned daemon
// to accept connections.
const spawnTimeout = 10 * time.Second

// call sends one command to the session's daemon, starting a daemon first
// when none is running, and renders the response.
func call(cfg *config.Config, action string, params map[string]any) error {
	addr, err := session.Resolve(cfg.Session)
	if err != nil {
		return err
	}

	if !session.Alive(addr.PIDFile) {
		if err := spawnDaemon(cfg); err != nil {
			return err
		}
	}

	conn, err := dialDaemon(addr, spawnTimeout)
	if err != nil {
		return fmt.Errorf("failed to reach daemon for session %q: %w", cfg.Session, err)
	}
	defer conn.Close()

	frame := map[string]any{"id": uuid.NewString(), "action": action}
	for key, value := range params {
		frame[key] = value
	}
	payload, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	if _, err := conn.Write(append(payload, '\n')); err != nil {
		return fmt.Errorf("failed to send command: %w", err)
	}

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	var resp daemon.Response
	if err := json.Unmarshal(line, &resp); err != nil {
		return fmt.Errorf("malformed response: %w", err)
	}
	return render(&resp)
}

// render prints warnings to stderr and the data payload to stdout. An error
// response becomes the command's exit error.
func render(resp *daemon.Response) error {
	for _, warning := range resp.Warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", warning)
	}
	if !resp.Success {
		if resp.Code != "" {
			return fmt.Errorf("%s: %s", resp.Code, resp.Error)
		}
		return fmt.Errorf("%s", resp.Error)
	}
	if resp.Data != nil {
		out, err := json.MarshalIndent(resp.Data, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
	}
	return nil
}

// spawnDaemon re-executes this binary as a detached foreground daemon. The
// merged configuration travels through the environment so the daemon sees
// exactly what the client resolved, command-line overrides included.
func spawnDaemon(cfg *config.Config) error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to locate executable: %w", err)
	}

	cmd := exec.Command(exe, "daemon")
	detach(cmd)
	cmd.Env = append(os.Environ(),
		"AGENT_BROWSER_SESSION="+cfg.Session,
		"AGENT_BROWSER_SESSION_NAME="+cfg.SessionName,
		"AGENT_BROWSER_STATE_KEY="+cfg.StateKey,
		"AGENT_BROWSER_STATE_MAX_AGE_DAYS="+cfg.StateMaxAge,
		fmt.Sprintf("AGENT_BROWSER_DEBUG=%v", cfg.Debug),
		fmt.Sprintf("AGENT_BROWSER_HEADED=%v", cfg.Headed),
		"AGENT_BROWSER_EXECUTABLE_PATH="+cfg.ExecutablePath,
	)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}
	// The daemon outlives this client; reap it in the background so it
	// never lingers as a zombie while the client is still running.
	go func() { _ = cmd.Wait() }()
	return nil
}

// dialDaemon connects to the daemon's control channel, retrying while an
// auto-spawned daemon is still binding its address. On socketless platforms
// the discovery file is authoritative for the port.
func dialDaemon(addr *session.Address, timeout time.Duration) (net.Conn, error) {
	target := addr.Addr
	if addr.PortFile != "" {
		if port, err := addr.ReadDiscovery(); err == nil {
			target = fmt.Sprintf("127.0.0.1:%d", port)
		}
	}

	deadline := time.Now().Add(timeout)
	for {
		conn, err := net.Dial(addr.Network, target)
		if err == nil {
			return conn, nil
		}
		if time.Now().After(deadline) {
			return nil, err
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// stateAction routes a state command to the running daemon, or executes it
// directly against the store when no daemon is up. File-level operations do
// not justify spawning a browser daemon.
func stateAction(cfg *config.Config, action string, params map[string]any) error {
	addr, err := session.Resolve(cfg.Session)
	if err != nil {
		return err
	}
	if session.Alive(addr.PIDFile) {
		return call(cfg, action, params)
	}

	key, err := cfg.Key()
	if err != nil {
		return err
	}
	dir, err := state.DefaultDir()
	if err != nil {
		return err
	}
	store := state.NewStore(dir, key)

	switch action {
	case "state_list":
		records, err := store.List()
		if err != nil {
			return err
		}
		if records == nil {
			records = []state.FileRecord{}
		}
		return printJSON(map[string]any{"files": records})
	case "state_show":
		summary, err := store.Show(params["filename"].(string))
		if err != nil {
			return err
		}
		return printJSON(summary)
	case "state_rename":
		if err := store.Rename(params["old"].(string), params["new"].(string)); err != nil {
			return err
		}
		return printJSON(map[string]any{"old": params["old"], "new": params["new"]})
	case "state_clear":
		var deleted []string
		if all, _ := params["all"].(bool); all {
			deleted, err = store.ClearAll()
		} else {
			deleted, err = store.ClearByName(params["name"].(string))
		}
		if err != nil {
			return err
		}
		if deleted == nil {
			deleted = []string{}
		}
		return printJSON(map[string]any{"deleted": deleted})
	case "state_clean":
		days := cfg.MaxAgeDays()
		if v, isInt := params["days"].(int); isInt {
			days = v
		}
		deleted, err := store.Clean(days)
		if err != nil {
			return err
		}
		if deleted == nil {
			deleted = []string{}
		}
		return printJSON(map[string]any{"deleted": deleted, "days": days})
	default:
		return fmt.Errorf("%s requires a running daemon", action)
	}
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
