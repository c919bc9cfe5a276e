// Package browser implements the Browser Manager: a process-wide
// singleton owning the browser, its named contexts, and their named
// pages for every approach the orchestrator runs.
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/rs/zerolog"
)

const (
	defaultTimeout = 30 * time.Second
)

// Options configure (or reconfigure) the Manager.
type Options struct {
	Headless  bool
	Viewport  Viewport
	UserAgent string
	Timeout   time.Duration
}

// Viewport is a browser context's width/height in CSS pixels.
type Viewport struct {
	Width  int
	Height int
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if o.Viewport.Width == 0 {
		o.Viewport.Width = 1280
	}
	if o.Viewport.Height == 0 {
		o.Viewport.Height = 800
	}
	return o
}

// Info describes the Manager's current settings and open resources.
type Info struct {
	Headless bool
	Contexts []string
	Pages    map[string][]string // context name -> page names
}

// Manager is the singleton Browser Manager (C1). All public methods are
// safe for concurrent use; a single mutex guards initialization and the
// contexts/pages maps.
type Manager struct {
	mu  sync.Mutex
	log zerolog.Logger

	pw      *playwright.Playwright
	browser playwright.Browser
	opts    Options

	contexts map[string]playwright.BrowserContext
	pages    map[string]map[string]playwright.Page
}

// NewManager constructs an uninitialized Manager. Call Initialize before
// requesting any context or page.
func NewManager(logger zerolog.Logger) *Manager {
	return &Manager{
		log:      logger.With().Str("component", "browser_manager").Logger(),
		contexts: make(map[string]playwright.BrowserContext),
		pages:    make(map[string]map[string]playwright.Page),
	}
}

// Initialize launches the browser if needed. It is idempotent: calling
// it again with the same Headless flag is a no-op beyond refreshing
// Viewport/UserAgent/Timeout for future contexts. If Headless changes,
// the current browser (and everything under it) is torn down first and
// replaced.
func (m *Manager) Initialize(ctx context.Context, opts Options) error {
	opts = opts.withDefaults()
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.browser != nil && m.opts.Headless == opts.Headless {
		m.opts = opts
		return nil
	}
	if m.browser != nil {
		m.log.Info().Msg("headless flag changed, tearing down existing browser")
		if err := m.closeAllLocked(); err != nil {
			m.log.Warn().Err(err).Msg("error while tearing down browser for reinitialization")
		}
	}

	pw, err := playwright.Run()
	if err != nil {
		return fmt.Errorf("browser manager: start playwright: %w", err)
	}
	b, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		Args: []string{
			"--disable-dev-shm-usage",
			"--no-sandbox",
		},
	})
	if err != nil {
		_ = pw.Stop()
		return fmt.Errorf("browser manager: launch chromium: %w", err)
	}

	m.pw = pw
	m.browser = b
	m.opts = opts
	m.log.Info().Bool("headless", opts.Headless).Msg("browser initialized")
	return nil
}

// GetContext lazily creates (or returns) the named browser context.
func (m *Manager) GetContext(name string) (playwright.BrowserContext, error) {
	return m.getOrCreateContext(name, "")
}

// GetContextWithState is GetContext, but when the context does not yet
// exist and state is non-empty, the new context is seeded with a
// previously saved Playwright storage state (cookies + localStorage
// origins) so the caller starts already authenticated. Seeding only
// happens at context-creation time; it is a no-op if the named context
// already exists.
func (m *Manager) GetContextWithState(name string, state json.RawMessage) (playwright.BrowserContext, error) {
	if len(state) == 0 {
		return m.GetContext(name)
	}
	f, err := os.CreateTemp("", "storage-state-*.json")
	if err != nil {
		return nil, fmt.Errorf("browser manager: write storage state: %w", err)
	}
	defer os.Remove(f.Name())
	if _, err := f.Write(state); err != nil {
		f.Close()
		return nil, fmt.Errorf("browser manager: write storage state: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("browser manager: write storage state: %w", err)
	}
	return m.getOrCreateContext(name, f.Name())
}

func (m *Manager) getOrCreateContext(name, statePath string) (playwright.BrowserContext, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.browser == nil {
		return nil, fmt.Errorf("browser manager: not initialized")
	}
	if c, ok := m.contexts[name]; ok {
		return c, nil
	}
	newCtxOpts := playwright.BrowserNewContextOptions{
		IgnoreHttpsErrors: playwright.Bool(true),
		Viewport: &playwright.Size{
			Width:  m.opts.Viewport.Width,
			Height: m.opts.Viewport.Height,
		},
	}
	if m.opts.UserAgent != "" {
		newCtxOpts.UserAgent = playwright.String(m.opts.UserAgent)
	}
	if statePath != "" {
		newCtxOpts.StorageStatePath = playwright.String(statePath)
	}
	c, err := m.browser.NewContext(newCtxOpts)
	if err != nil {
		return nil, fmt.Errorf("browser manager: new context %q: %w", name, err)
	}
	m.contexts[name] = c
	m.pages[name] = make(map[string]playwright.Page)
	return c, nil
}

// GetPage lazily creates (or returns) a named page within a named
// context, creating the context first if needed.
func (m *Manager) GetPage(contextName, pageName string) (playwright.Page, error) {
	if _, err := m.GetContext(contextName); err != nil {
		return nil, err
	}
	return m.getOrCreatePage(contextName, pageName)
}

// GetPageWithState is GetPage, but seeds a not-yet-created context with
// state exactly as GetContextWithState does.
func (m *Manager) GetPageWithState(contextName, pageName string, state json.RawMessage) (playwright.Page, error) {
	if _, err := m.GetContextWithState(contextName, state); err != nil {
		return nil, err
	}
	return m.getOrCreatePage(contextName, pageName)
}

func (m *Manager) getOrCreatePage(contextName, pageName string) (playwright.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pages := m.pages[contextName]
	if p, ok := pages[pageName]; ok {
		return p, nil
	}
	c := m.contexts[contextName]
	p, err := c.NewPage()
	if err != nil {
		return nil, fmt.Errorf("browser manager: new page %q/%q: %w", contextName, pageName, err)
	}
	p.SetDefaultTimeout(float64(m.opts.Timeout.Milliseconds()))
	pages[pageName] = p
	return p, nil
}

// StorageState captures the named context's current cookies and
// localStorage origins as a Playwright storage-state JSON blob, for
// persisting through the Session Store.
func (m *Manager) StorageState(contextName string) (json.RawMessage, error) {
	m.mu.Lock()
	c, ok := m.contexts[contextName]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("browser manager: context %q not found", contextName)
	}
	state, err := c.StorageState()
	if err != nil {
		return nil, wrap(err)
	}
	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("browser manager: marshal storage state: %w", err)
	}
	return data, nil
}

// ClosePage releases one named page.
func (m *Manager) ClosePage(contextName, pageName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	pages, ok := m.pages[contextName]
	if !ok {
		return nil
	}
	p, ok := pages[pageName]
	if !ok {
		return nil
	}
	delete(pages, pageName)
	return p.Close()
}

// CloseContext releases a named context and every page it owns.
func (m *Manager) CloseContext(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contexts[name]
	if !ok {
		return nil
	}
	delete(m.contexts, name)
	delete(m.pages, name)
	return c.Close()
}

// Close tears down the browser and every context/page it owns. It is
// safe to call multiple times and releases resources even on error.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeAllLocked()
}

func (m *Manager) closeAllLocked() error {
	var firstErr error
	for name, pages := range m.pages {
		for pageName, p := range pages {
			if err := p.Close(); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("close page %s/%s: %w", name, pageName, err)
			}
		}
	}
	m.pages = make(map[string]map[string]playwright.Page)
	for name, c := range m.contexts {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close context %s: %w", name, err)
		}
	}
	m.contexts = make(map[string]playwright.BrowserContext)
	if m.browser != nil {
		if err := m.browser.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close browser: %w", err)
		}
		m.browser = nil
	}
	if m.pw != nil {
		if err := m.pw.Stop(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("stop playwright: %w", err)
		}
		m.pw = nil
	}
	return firstErr
}

// Info reports current settings and open contexts/pages.
func (m *Manager) Info() Info {
	m.mu.Lock()
	defer m.mu.Unlock()
	info := Info{Headless: m.opts.Headless, Pages: make(map[string][]string)}
	for name := range m.contexts {
		info.Contexts = append(info.Contexts, name)
	}
	for ctxName, pages := range m.pages {
		names := make([]string, 0, len(pages))
		for pageName := range pages {
			names = append(names, pageName)
		}
		info.Pages[ctxName] = names
	}
	return info
}

func wrap(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("playwright: %w", err)
}
