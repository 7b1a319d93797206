package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
)

// Status reports whether the underlying browser process is running.
type Status struct {
	Running bool `json:"running"`
	Tabs    int  `json:"tabs"`
}

// TabInfo describes one open tab.
type TabInfo struct {
	TargetID string `json:"targetId"`
	URL      string `json:"url"`
	Title    string `json:"title"`
}

// SnapshotOptions bounds how much of a page's interactive surface a
// snapshot describes.
type SnapshotOptions struct {
	MaxChars    int
	Interactive bool
	Compact     bool
	MaxDepth    int
}

// DefaultSnapshotOptions matches the tool's documented default budget.
func DefaultSnapshotOptions() SnapshotOptions {
	return SnapshotOptions{MaxChars: 8000, MaxDepth: 12}
}

// SnapshotStats summarizes a snapshot's element count.
type SnapshotStats struct {
	Refs        int `json:"refs"`
	Interactive int `json:"interactive"`
}

// Snapshot is a textual, ref-annotated description of a page's interactive
// elements, so a caller can act on an element by ref without re-querying.
type Snapshot struct {
	TargetID string
	Title    string
	URL      string
	Snapshot string
	Stats    SnapshotStats
}

// ClickOpts configures Manager.Click.
type ClickOpts struct {
	DoubleClick bool
	Button      string
}

// TypeOpts configures Manager.Type.
type TypeOpts struct {
	Submit bool
	Slowly bool
}

// WaitOpts configures Manager.Wait; exactly one of these is normally set.
type WaitOpts struct {
	TimeMs   int
	Text     string
	TextGone string
	URL      string
	Fn       string
}

// snapshotSelector lists the elements a snapshot assigns refs to.
const snapshotSelector = "a, button, input, textarea, select, [role], [onclick]"

var keyByName = map[string]input.Key{
	"enter":      input.Enter,
	"tab":        input.Tab,
	"escape":     input.Escape,
	"backspace":  input.Backspace,
	"delete":     input.Delete,
	"arrowup":    input.ArrowUp,
	"arrowdown":  input.ArrowDown,
	"arrowleft":  input.ArrowLeft,
	"arrowright": input.ArrowRight,
	"space":      input.Space,
}

type tab struct {
	page *rod.Page
	refs map[string]*rod.Element
}

// Manager owns one rod.Browser and the tabs opened against it, launched
// lazily on the first Start call. It backs the browser tool exposed to the
// Agent Runner's tool registry.
type Manager struct {
	mu      sync.Mutex
	browser *rod.Browser
	tabs    map[string]*tab
	running bool
}

// New wraps an unconnected rod.Browser; call Start to launch and connect it.
func New(browser *rod.Browser) *Manager {
	return &Manager{browser: browser, tabs: make(map[string]*tab)}
}

// Status reports the running flag and open-tab count.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{Running: m.running, Tabs: len(m.tabs)}
}

// Start connects to (and, if configured for it, launches) the browser. A
// second Start while already running is a no-op.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return nil
	}
	if err := m.browser.Connect(); err != nil {
		return fmt.Errorf("browser: connect: %w", err)
	}
	m.running = true
	return nil
}

// Stop closes the browser and drops every tracked tab.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return nil
	}
	err := m.browser.Close()
	m.tabs = make(map[string]*tab)
	m.running = false
	return err
}

// ListTabs returns every tab this Manager has opened.
func (m *Manager) ListTabs(ctx context.Context) ([]TabInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]TabInfo, 0, len(m.tabs))
	for id, t := range m.tabs {
		info, err := t.page.Info()
		if err != nil {
			continue
		}
		out = append(out, TabInfo{TargetID: id, URL: info.URL, Title: info.Title})
	}
	return out, nil
}

// OpenTab creates a new tab navigated to url.
func (m *Manager) OpenTab(ctx context.Context, url string) (*TabInfo, error) {
	page, err := m.browser.Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		return nil, fmt.Errorf("browser: open tab: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("browser: wait load: %w", err)
	}
	info, err := page.Info()
	if err != nil {
		return nil, fmt.Errorf("browser: tab info: %w", err)
	}

	id := string(info.TargetID)
	m.mu.Lock()
	m.tabs[id] = &tab{page: page, refs: make(map[string]*rod.Element)}
	m.mu.Unlock()

	return &TabInfo{TargetID: id, URL: info.URL, Title: info.Title}, nil
}

// CloseTab closes and forgets a tab.
func (m *Manager) CloseTab(ctx context.Context, targetID string) error {
	t, err := m.tabFor(targetID)
	if err != nil {
		return err
	}
	if err := t.page.Close(); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.tabs, targetID)
	m.mu.Unlock()
	return nil
}

func (m *Manager) tabFor(targetID string) (*tab, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if targetID != "" {
		t, ok := m.tabs[targetID]
		if !ok {
			return nil, fmt.Errorf("browser: unknown tab %s", targetID)
		}
		return t, nil
	}
	for _, t := range m.tabs {
		return t, nil
	}
	return nil, fmt.Errorf("browser: no open tabs")
}

// Navigate sends targetID (or, if empty, the only open tab) to url.
func (m *Manager) Navigate(ctx context.Context, targetID, url string) error {
	t, err := m.tabFor(targetID)
	if err != nil {
		return err
	}
	if err := t.page.Navigate(url); err != nil {
		return err
	}
	return t.page.WaitLoad()
}

// Screenshot captures targetID's current rendering.
func (m *Manager) Screenshot(ctx context.Context, targetID string, fullPage bool) ([]byte, error) {
	t, err := m.tabFor(targetID)
	if err != nil {
		return nil, err
	}
	return t.page.Screenshot(fullPage, nil)
}

// ConsoleMessages returns console output buffered for targetID.
//
// TODO: wire a proto.RuntimeConsoleAPICalled subscription at tab-open time;
// until then this always reports empty.
func (m *Manager) ConsoleMessages(targetID string) []string {
	return nil
}

// Snapshot walks the tab's interactive elements, assigning each a stable
// "eN" ref for subsequent Click/Type/Hover calls.
func (m *Manager) Snapshot(ctx context.Context, targetID string, opts SnapshotOptions) (*Snapshot, error) {
	t, err := m.tabFor(targetID)
	if err != nil {
		return nil, err
	}

	info, err := t.page.Info()
	if err != nil {
		return nil, err
	}

	elements, err := t.page.Elements(snapshotSelector)
	if err != nil {
		return nil, err
	}

	refs := make(map[string]*rod.Element, len(elements))
	var b strings.Builder
	interactiveCount := 0
	for i, el := range elements {
		ref := fmt.Sprintf("e%d", i+1)
		refs[ref] = el

		text, _ := el.Text()
		text = strings.TrimSpace(collapseSpace(text))
		if opts.Compact && text == "" {
			continue
		}

		tagName := "?"
		if obj, err := el.Eval(`() => this.tagName.toLowerCase()`); err == nil && obj != nil {
			tagName = obj.Value.String()
		}

		interactiveCount++
		fmt.Fprintf(&b, "[%s] <%s> %s\n", ref, tagName, truncateRunes(text, 120))
		if b.Len() >= opts.MaxChars {
			break
		}
	}
	t.refs = refs

	out := b.String()
	if opts.MaxChars > 0 && len(out) > opts.MaxChars {
		out = out[:opts.MaxChars]
	}

	return &Snapshot{
		TargetID: string(info.TargetID),
		Title:    info.Title,
		URL:      info.URL,
		Snapshot: out,
		Stats:    SnapshotStats{Refs: len(refs), Interactive: interactiveCount},
	}, nil
}

func (m *Manager) elementFor(targetID, ref string) (*rod.Element, error) {
	t, err := m.tabFor(targetID)
	if err != nil {
		return nil, err
	}
	el, ok := t.refs[ref]
	if !ok {
		return nil, fmt.Errorf("browser: unknown ref %s (snapshot first)", ref)
	}
	return el, nil
}

// Click clicks the element identified by ref.
func (m *Manager) Click(ctx context.Context, targetID, ref string, opts ClickOpts) error {
	el, err := m.elementFor(targetID, ref)
	if err != nil {
		return err
	}
	button := proto.InputMouseButtonLeft
	if opts.Button == "right" {
		button = proto.InputMouseButtonRight
	}
	clicks := 1
	if opts.DoubleClick {
		clicks = 2
	}
	return el.Click(button, clicks)
}

// Type focuses and inserts text into the element identified by ref.
func (m *Manager) Type(ctx context.Context, targetID, ref, text string, opts TypeOpts) error {
	el, err := m.elementFor(targetID, ref)
	if err != nil {
		return err
	}
	if err := el.Input(text); err != nil {
		return err
	}
	if opts.Submit {
		return el.Type(input.Enter)
	}
	return nil
}

// Press sends a named key to the page-level keyboard, falling back to
// inserting a literal single-character key.
func (m *Manager) Press(ctx context.Context, targetID, key string) error {
	t, err := m.tabFor(targetID)
	if err != nil {
		return err
	}
	if k, ok := keyByName[strings.ToLower(key)]; ok {
		return t.page.Keyboard.Type(k)
	}
	if len([]rune(key)) == 1 {
		return t.page.InsertText(key)
	}
	return fmt.Errorf("browser: unknown key %q", key)
}

// Hover moves the pointer over the element identified by ref.
func (m *Manager) Hover(ctx context.Context, targetID, ref string) error {
	el, err := m.elementFor(targetID, ref)
	if err != nil {
		return err
	}
	return el.Hover()
}

// Wait blocks on whichever condition opts names: a fixed delay, page text
// appearing/disappearing, a URL substring, or a custom predicate function.
func (m *Manager) Wait(ctx context.Context, targetID string, opts WaitOpts) error {
	t, err := m.tabFor(targetID)
	if err != nil {
		return err
	}

	if opts.TimeMs > 0 {
		timer := time.NewTimer(time.Duration(opts.TimeMs) * time.Millisecond)
		defer timer.Stop()
		select {
		case <-timer.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	switch {
	case opts.Fn != "":
		return m.pollUntil(ctx, t, opts.Fn)
	case opts.URL != "":
		return m.pollUntil(ctx, t, fmt.Sprintf(`() => location.href.includes(%q)`, opts.URL))
	case opts.Text != "":
		return m.pollUntil(ctx, t, fmt.Sprintf(`() => document.body.innerText.includes(%q)`, opts.Text))
	case opts.TextGone != "":
		return m.pollUntil(ctx, t, fmt.Sprintf(`() => !document.body.innerText.includes(%q)`, opts.TextGone))
	default:
		return fmt.Errorf("browser: wait requires timeMs, text, textGone, url, or fn")
	}
}

func (m *Manager) pollUntil(ctx context.Context, t *tab, js string) error {
	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		res, err := t.page.Eval(js)
		if err == nil && res != nil && res.Value.Bool() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
	return fmt.Errorf("browser: wait timed out")
}

// Evaluate runs fn in the page and returns its stringified result.
func (m *Manager) Evaluate(ctx context.Context, targetID, fn string) (string, error) {
	t, err := m.tabFor(targetID)
	if err != nil {
		return "", err
	}
	res, err := t.page.Eval(fn)
	if err != nil {
		return "", err
	}
	return res.Value.String(), nil
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
