package browser

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/playwright-community/playwright-go"
)

// Playwright is the production Browser implementation. It owns the driver
// process plus the browser/context/page triple for the single session.
type Playwright struct {
	mu      sync.Mutex
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page
	active  bool
}

// NewPlaywright creates an idle handle. Nothing is installed or started
// until Launch.
func NewPlaywright() *Playwright {
	return &Playwright{}
}

// Launch installs and starts the Playwright driver, launches Chromium, and
// creates the session context. When opts.StorageState is set, the captured
// cookies and origin storage are restored into the new context before any
// page loads.
func (p *Playwright) Launch(opts LaunchOptions) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.active {
		return fmt.Errorf("browser session already active")
	}

	// Discard driver output so it cannot interleave with protocol frames
	// on stdio.
	runOpts := &playwright.RunOptions{
		Verbose: false,
		Stdout:  io.Discard,
		Stderr:  io.Discard,
	}
	if err := playwright.Install(runOpts); err != nil {
		return fmt.Errorf("failed to install playwright: %w", err)
	}
	pw, err := playwright.Run(runOpts)
	if err != nil {
		return fmt.Errorf("failed to start playwright: %w", err)
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
	}
	if opts.ExecutablePath != "" {
		launchOpts.ExecutablePath = playwright.String(opts.ExecutablePath)
	}
	browser, err := pw.Chromium.Launch(launchOpts)
	if err != nil {
		pw.Stop()
		return fmt.Errorf("failed to launch browser: %w", err)
	}

	contextOpts := playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  DefaultViewportWidth,
			Height: DefaultViewportHeight,
		},
	}
	if len(opts.StorageState) > 0 {
		var restored playwright.OptionalStorageState
		if err := json.Unmarshal(opts.StorageState, &restored); err != nil {
			browser.Close()
			pw.Stop()
			return fmt.Errorf("failed to parse storage state: %w", err)
		}
		contextOpts.StorageState = &restored
	}
	context, err := browser.NewContext(contextOpts)
	if err != nil {
		browser.Close()
		pw.Stop()
		return fmt.Errorf("failed to create context: %w", err)
	}

	page, err := context.NewPage()
	if err != nil {
		context.Close()
		browser.Close()
		pw.Stop()
		return fmt.Errorf("failed to create page: %w", err)
	}
	page.SetDefaultTimeout(DefaultTimeout)

	p.pw = pw
	p.browser = browser
	p.context = context
	p.page = page
	p.active = true
	return nil
}

// Active reports whether a session is running.
func (p *Playwright) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// CaptureState serializes the context's current cookies and per-origin
// storage as storage-state JSON.
func (p *Playwright) CaptureState() ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.active {
		return nil, fmt.Errorf("no active browser session")
	}
	state, err := p.context.StorageState()
	if err != nil {
		return nil, fmt.Errorf("failed to capture storage state: %w", err)
	}
	blob, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize storage state: %w", err)
	}
	return blob, nil
}

// Do executes one forwarded command against the active page.
func (p *Playwright) Do(action string, params map[string]any) (any, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.active {
		return nil, fmt.Errorf("no active browser session")
	}

	switch action {
	case "open":
		return p.open(params)
	case "click":
		return p.click(params)
	case "fill":
		return p.fill(params)
	case "press":
		return p.press(params)
	case "wait":
		return p.wait(params)
	case "evaluate":
		return p.evaluate(params)
	case "snapshot":
		return p.snapshot()
	case "screenshot":
		return p.screenshot(params)
	default:
		return nil, fmt.Errorf("unknown action %q", action)
	}
}

// Close tears down page, context, browser, and driver in order. Cleanup is
// best-effort; a half-dead session must still release the driver process.
func (p *Playwright) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.active {
		return nil
	}
	_ = p.page.Close()
	_ = p.context.Close()
	_ = p.browser.Close()

	var err error
	if p.pw != nil {
		err = p.pw.Stop()
	}
	p.pw = nil
	p.browser = nil
	p.context = nil
	p.page = nil
	p.active = false
	if err != nil {
		return fmt.Errorf("failed to stop playwright: %w", err)
	}
	return nil
}

func (p *Playwright) open(params map[string]any) (any, error) {
	url, err := stringParam(params, "url")
	if err != nil {
		return nil, err
	}
	if _, err := p.page.Goto(url); err != nil {
		return nil, fmt.Errorf("navigation failed: %w", err)
	}
	title, _ := p.page.Title()
	return map[string]any{"url": p.page.URL(), "title": title}, nil
}

func (p *Playwright) click(params map[string]any) (any, error) {
	selector, err := stringParam(params, "selector")
	if err != nil {
		return nil, err
	}
	if err := p.page.Click(selector); err != nil {
		return nil, fmt.Errorf("click failed: %w", err)
	}
	// The click may have navigated.
	return map[string]any{"url": p.page.URL()}, nil
}

func (p *Playwright) fill(params map[string]any) (any, error) {
	selector, err := stringParam(params, "selector")
	if err != nil {
		return nil, err
	}
	value, err := stringParam(params, "value")
	if err != nil {
		return nil, err
	}
	if err := p.page.Fill(selector, value); err != nil {
		return nil, fmt.Errorf("fill failed: %w", err)
	}
	return map[string]any{"selector": selector}, nil
}

func (p *Playwright) press(params map[string]any) (any, error) {
	selector, err := stringParam(params, "selector")
	if err != nil {
		return nil, err
	}
	key, err := stringParam(params, "key")
	if err != nil {
		return nil, err
	}
	if err := p.page.Press(selector, key); err != nil {
		return nil, fmt.Errorf("press failed: %w", err)
	}
	return map[string]any{"selector": selector, "key": key}, nil
}

func (p *Playwright) wait(params map[string]any) (any, error) {
	selector, err := stringParam(params, "selector")
	if err != nil {
		return nil, err
	}
	if _, err := p.page.WaitForSelector(selector); err != nil {
		return nil, fmt.Errorf("wait failed: %w", err)
	}
	return map[string]any{"selector": selector}, nil
}

func (p *Playwright) evaluate(params map[string]any) (any, error) {
	code, err := stringParam(params, "code")
	if err != nil {
		return nil, err
	}
	result, err := p.page.Evaluate(code)
	if err != nil {
		return nil, fmt.Errorf("evaluate failed: %w", err)
	}
	return map[string]any{"result": result}, nil
}

// snapshot returns page title, URL, meta description, and the cleaned
// visible text of the document.
func (p *Playwright) snapshot() (any, error) {
	raw, err := p.page.Content()
	if err != nil {
		return nil, fmt.Errorf("content capture failed: %w", err)
	}
	page, err := extractText(raw, maxSnapshotLength)
	if err != nil {
		return nil, fmt.Errorf("content extraction failed: %w", err)
	}

	title := page.Title
	if title == "" {
		title, _ = p.page.Title()
	}
	result := map[string]any{
		"title":     title,
		"url":       p.page.URL(),
		"text":      page.Text,
		"truncated": page.Truncated,
	}
	if page.Description != "" {
		result["description"] = page.Description
	}
	return result, nil
}

func (p *Playwright) screenshot(params map[string]any) (any, error) {
	opts := playwright.PageScreenshotOptions{}
	path := optionalString(params, "path")
	if path != "" {
		opts.Path = playwright.String(path)
	}
	data, err := p.page.Screenshot(opts)
	if err != nil {
		return nil, fmt.Errorf("screenshot failed: %w", err)
	}
	result := map[string]any{"bytes": len(data)}
	if path != "" {
		result["path"] = path
	}
	return result, nil
}

func stringParam(params map[string]any, key string) (string, error) {
	value, ok := params[key]
	if !ok {
		return "", fmt.Errorf("missing required parameter %q", key)
	}
	s, ok := value.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("parameter %q must be a non-empty string", key)
	}
	return s, nil
}

func optionalString(params map[string]any, key string) string {
	if value, ok := params[key].(string); ok {
		return value
	}
	return ""
}
