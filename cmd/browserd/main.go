// Command browserd is the browser-session daemon and its client CLI. Every
// subcommand except "daemon" talks to the daemon for the configured session
// over its control channel, starting one transparently when none is
// running.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/entrhq/browserd/pkg/browser"
	"github.com/entrhq/browserd/pkg/config"
	"github.com/entrhq/browserd/pkg/daemon"
	"github.com/entrhq/browserd/pkg/logging"
	"github.com/entrhq/browserd/pkg/session"
	"github.com/entrhq/browserd/pkg/state"
)

var cli struct {
	Session        string `help:"Isolation label, overrides AGENT_BROWSER_SESSION."`
	SessionName    string `help:"Persistence label, overrides AGENT_BROWSER_SESSION_NAME."`
	Debug          bool   `help:"Enable debug logging."`
	Headed         bool   `help:"Launch a visible browser window."`
	ExecutablePath string `help:"Custom Chromium binary path."`

	Daemon DaemonCmd `cmd:"" help:"Run the browser daemon in the foreground."`

	Launch LaunchCmd `cmd:"" help:"Launch the browser session."`
	Close  CloseCmd  `cmd:"" help:"Save state, close the browser, and stop the daemon."`
	Status StatusCmd `cmd:"" help:"Report daemon status."`

	Open       OpenCmd       `cmd:"" help:"Navigate to a URL."`
	Click      ClickCmd      `cmd:"" help:"Click the element matching a selector."`
	Fill       FillCmd       `cmd:"" help:"Fill the element matching a selector with a value."`
	Press      PressCmd      `cmd:"" help:"Press a key on the element matching a selector."`
	Wait       WaitCmd       `cmd:"" help:"Wait for a selector to appear."`
	Eval       EvalCmd       `cmd:"" help:"Evaluate JavaScript in the page."`
	Snapshot   SnapshotCmd   `cmd:"" help:"Capture page title, URL, and body text."`
	Screenshot ScreenshotCmd `cmd:"" help:"Capture a screenshot."`

	State StateCmd `cmd:"" help:"Manage saved session state."`
}

func main() {
	ctx := kong.Parse(&cli,
		kong.Name("browserd"),
		kong.Description("Persistent browser sessions for automation agents."),
		kong.UsageOnError(),
	)

	cfg, err := loadConfig()
	ctx.FatalIfErrorf(err)
	ctx.FatalIfErrorf(ctx.Run(cfg))
}

// loadConfig merges file/env configuration with command-line overrides,
// revalidating after the overrides land.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if cli.Session != "" {
		cfg.Session = cli.Session
	}
	if cli.SessionName != "" {
		cfg.SessionName = cli.SessionName
	}
	if cli.Debug {
		cfg.Debug = true
	}
	if cli.Headed {
		cfg.Headed = true
	}
	if cli.ExecutablePath != "" {
		cfg.ExecutablePath = cli.ExecutablePath
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DaemonCmd runs the daemon in the foreground until a close command or a
// termination signal arrives.
type DaemonCmd struct{}

func (d *DaemonCmd) Run(cfg *config.Config) error {
	log, logErr := logging.NewLogger("daemon", cfg.Debug)
	if logErr != nil {
		fmt.Fprintf(os.Stderr, "warning: file logging unavailable: %v\n", logErr)
	}
	defer log.Close()

	key, err := cfg.Key()
	if err != nil {
		return err
	}
	dir, err := state.DefaultDir()
	if err != nil {
		return err
	}
	addr, err := session.Resolve(cfg.Session)
	if err != nil {
		return err
	}

	ctx := &daemon.Context{
		SessionID:      cfg.Session,
		SessionName:    cfg.SessionName,
		MaxAgeDays:     cfg.MaxAgeDays(),
		Headed:         cfg.Headed,
		ExecutablePath: cfg.ExecutablePath,
		Debug:          cfg.Debug,
	}
	srv := daemon.New(ctx, addr, state.NewStore(dir, key), browser.NewPlaywright(), log)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Infof("received %v, shutting down", sig)
		srv.Shutdown()
	}()

	return srv.Run()
}

type LaunchCmd struct {
	State string `help:"State file to restore instead of the configured one."`
}

func (c *LaunchCmd) Run(cfg *config.Config) error {
	params := map[string]any{}
	if c.State != "" {
		params["state"] = c.State
	}
	return call(cfg, "launch", params)
}

type CloseCmd struct{}

func (c *CloseCmd) Run(cfg *config.Config) error {
	addr, err := session.Resolve(cfg.Session)
	if err != nil {
		return err
	}
	if !session.Alive(addr.PIDFile) {
		fmt.Printf("no daemon running for session %q\n", cfg.Session)
		return nil
	}
	return call(cfg, "close", nil)
}

type StatusCmd struct{}

func (c *StatusCmd) Run(cfg *config.Config) error {
	addr, err := session.Resolve(cfg.Session)
	if err != nil {
		return err
	}
	if !session.Alive(addr.PIDFile) {
		fmt.Printf("no daemon running for session %q\n", cfg.Session)
		return nil
	}
	return call(cfg, "status", nil)
}

type OpenCmd struct {
	URL string `arg:"" help:"URL to open."`
}

func (c *OpenCmd) Run(cfg *config.Config) error {
	return call(cfg, "open", map[string]any{"url": c.URL})
}

type ClickCmd struct {
	Selector string `arg:"" help:"CSS selector."`
}

func (c *ClickCmd) Run(cfg *config.Config) error {
	return call(cfg, "click", map[string]any{"selector": c.Selector})
}

type FillCmd struct {
	Selector string `arg:"" help:"CSS selector."`
	Value    string `arg:"" help:"Value to fill."`
}

func (c *FillCmd) Run(cfg *config.Config) error {
	return call(cfg, "fill", map[string]any{"selector": c.Selector, "value": c.Value})
}

type PressCmd struct {
	Selector string `arg:"" help:"CSS selector."`
	Key      string `arg:"" help:"Key to press, e.g. Enter."`
}

func (c *PressCmd) Run(cfg *config.Config) error {
	return call(cfg, "press", map[string]any{"selector": c.Selector, "key": c.Key})
}

type WaitCmd struct {
	Selector string `arg:"" help:"CSS selector to wait for."`
}

func (c *WaitCmd) Run(cfg *config.Config) error {
	return call(cfg, "wait", map[string]any{"selector": c.Selector})
}

type EvalCmd struct {
	Code string `arg:"" help:"JavaScript expression."`
}

func (c *EvalCmd) Run(cfg *config.Config) error {
	return call(cfg, "evaluate", map[string]any{"code": c.Code})
}

type SnapshotCmd struct{}

func (c *SnapshotCmd) Run(cfg *config.Config) error {
	return call(cfg, "snapshot", nil)
}

type ScreenshotCmd struct {
	Path string `help:"Write the image to this file."`
}

func (c *ScreenshotCmd) Run(cfg *config.Config) error {
	params := map[string]any{}
	if c.Path != "" {
		params["path"] = c.Path
	}
	return call(cfg, "screenshot", params)
}

type StateCmd struct {
	Save   StateSaveCmd   `cmd:"" help:"Capture and persist the current session state."`
	Load   StateLoadCmd   `cmd:"" help:"Restore the session from a saved state file."`
	List   StateListCmd   `cmd:"" help:"List saved state files."`
	Show   StateShowCmd   `cmd:"" help:"Summarize one saved state file."`
	Rename StateRenameCmd `cmd:"" help:"Rename a saved state file."`
	Clear  StateClearCmd  `cmd:"" help:"Delete saved state files."`
	Clean  StateCleanCmd  `cmd:"" help:"Delete state files older than a threshold."`
}

type StateSaveCmd struct {
	Path string `arg:"" optional:"" help:"Target file, defaults to the configured session name."`
}

func (c *StateSaveCmd) Run(cfg *config.Config) error {
	params := map[string]any{}
	if c.Path != "" {
		params["path"] = c.Path
	}
	return call(cfg, "state_save", params)
}

type StateLoadCmd struct {
	Path string `arg:"" optional:"" help:"Source file, defaults to the configured session name."`
}

func (c *StateLoadCmd) Run(cfg *config.Config) error {
	params := map[string]any{}
	if c.Path != "" {
		params["path"] = c.Path
	}
	return call(cfg, "state_load", params)
}

type StateListCmd struct{}

func (c *StateListCmd) Run(cfg *config.Config) error {
	return stateAction(cfg, "state_list", nil)
}

type StateShowCmd struct {
	Filename string `arg:"" help:"State file name inside the sessions directory."`
}

func (c *StateShowCmd) Run(cfg *config.Config) error {
	return stateAction(cfg, "state_show", map[string]any{"filename": c.Filename})
}

type StateRenameCmd struct {
	Old string `arg:"" help:"Current file name."`
	New string `arg:"" help:"New file name."`
}

func (c *StateRenameCmd) Run(cfg *config.Config) error {
	return stateAction(cfg, "state_rename", map[string]any{"old": c.Old, "new": c.New})
}

type StateClearCmd struct {
	Name string `arg:"" optional:"" help:"Persistence label whose files to delete."`
	All  bool   `help:"Delete every saved state file."`
}

func (c *StateClearCmd) Run(cfg *config.Config) error {
	if !c.All && c.Name == "" {
		return fmt.Errorf("state clear requires a name or --all")
	}
	params := map[string]any{}
	if c.All {
		params["all"] = true
	} else {
		params["name"] = c.Name
	}
	return stateAction(cfg, "state_clear", params)
}

type StateCleanCmd struct {
	Days int `arg:"" optional:"" default:"-1" help:"Age threshold in days, defaults to the configured maximum."`
}

func (c *StateCleanCmd) Run(cfg *config.Config) error {
	params := map[string]any{}
	if c.Days >= 0 {
		params["days"] = c.Days
	}
	return stateAction(cfg, "state_clean", params)
}
