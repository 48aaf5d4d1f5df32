// internal/browser/browsertest/fake.go

// Package browsertest provides an in-memory automation client for tests. The
// fake page keeps a tiny selector-keyed DOM whose elements can be shown,
// hidden, detached, obscured and scripted to fail, so the wait, interaction
// and session layers can be exercised without a real browser.
package browsertest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/xkilldash9x/uiharness/internal/browser"
)

// PNG is the payload returned by Page.Screenshot.
var PNG = []byte("\x89PNG\r\n\x1a\nfake")

// DefaultPollInterval is how often fake waits re-check their condition.
const DefaultPollInterval = 5 * time.Millisecond

// Element is one node of the fake DOM. Presence in the page means attached.
type Element struct {
	Visible bool
	Text    string
	Value   string

	// ObscuredUntil makes clicks fail with ErrElementObscured before this instant.
	ObscuredUntil time.Time
	// ClickErrs are returned, one per click, before clicks start succeeding.
	ClickErrs []error
	// OnClick runs after a successful click, outside the page lock.
	OnClick func(p *Page)

	Clicks     int
	Keystrokes int
	Fills      int
}

// Driver is a browser.Driver whose failures and latency are configurable.
type Driver struct {
	StartErr  error
	LaunchErr error
	PageErr   error
	// Unsupported variants fail Launch with ErrUnsupportedVariant.
	Unsupported map[browser.Variant]bool
	// LaunchDelay blocks every launch, honouring ctx.
	LaunchDelay time.Duration
	// Setup runs against every new page before it is returned.
	Setup func(p *Page)

	PageCloseErr    error
	BrowserCloseErr error
	EngineCloseErr  error

	mu       sync.Mutex
	events   []string
	starts   int
	launches []browser.LaunchOptions
	variants []browser.Variant
	pages    []*Page
	live     int
}

var _ browser.Driver = (*Driver)(nil)

// NewDriver returns a Driver that succeeds at everything.
func NewDriver() *Driver { return &Driver{} }

// Name implements browser.Driver.
func (d *Driver) Name() string { return "fake" }

// Start implements browser.Driver.
func (d *Driver) Start(ctx context.Context) (browser.Engine, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.starts++
	if d.StartErr != nil {
		return nil, d.StartErr
	}
	d.live++
	return &engine{d: d}, nil
}

func (d *Driver) record(event string) {
	d.mu.Lock()
	d.events = append(d.events, event)
	d.mu.Unlock()
}

// Events returns the close events in the order they happened.
func (d *Driver) Events() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.events...)
}

// Starts counts engine starts, including failed ones.
func (d *Driver) Starts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.starts
}

// LiveEngines counts started engines that have not been closed.
func (d *Driver) LiveEngines() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.live
}

// Launches returns the options of every successful launch.
func (d *Driver) Launches() []browser.LaunchOptions {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]browser.LaunchOptions(nil), d.launches...)
}

// Variants returns the variant of every successful launch.
func (d *Driver) Variants() []browser.Variant {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]browser.Variant(nil), d.variants...)
}

// Pages returns every page opened so far.
func (d *Driver) Pages() []*Page {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Page(nil), d.pages...)
}

type engine struct {
	d      *Driver
	closed bool
}

func (e *engine) Launch(ctx context.Context, variant browser.Variant, opts browser.LaunchOptions) (browser.Browser, error) {
	d := e.d
	if d.Unsupported[variant] {
		return nil, fmt.Errorf("fake: %w: %s", browser.ErrUnsupportedVariant, variant)
	}
	if d.LaunchDelay > 0 {
		t := time.NewTimer(d.LaunchDelay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if e.closed {
		return nil, browser.ErrHandleClosed
	}
	if d.LaunchErr != nil {
		return nil, d.LaunchErr
	}
	d.launches = append(d.launches, opts)
	d.variants = append(d.variants, variant)
	return &fakeBrowser{d: d}, nil
}

func (e *engine) Close() error {
	e.d.mu.Lock()
	defer e.d.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.d.live--
	e.d.events = append(e.d.events, "engine.close")
	return e.d.EngineCloseErr
}

type fakeBrowser struct {
	d      *Driver
	closed bool
}

func (b *fakeBrowser) NewPage(ctx context.Context) (browser.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.d.mu.Lock()
	if b.closed {
		b.d.mu.Unlock()
		return nil, browser.ErrHandleClosed
	}
	if b.d.PageErr != nil {
		err := b.d.PageErr
		b.d.mu.Unlock()
		return nil, err
	}
	p := NewPage()
	p.onClose = func() error {
		b.d.record("page.close")
		return b.d.PageCloseErr
	}
	b.d.pages = append(b.d.pages, p)
	setup := b.d.Setup
	b.d.mu.Unlock()

	if setup != nil {
		setup(p)
	}
	return p, nil
}

func (b *fakeBrowser) Version() string { return "fake-1.0" }

func (b *fakeBrowser) Close() error {
	b.d.mu.Lock()
	defer b.d.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	b.d.events = append(b.d.events, "browser.close")
	return b.d.BrowserCloseErr
}

// Page is a fake tab. All exported helpers are safe for concurrent use.
type Page struct {
	mu          sync.Mutex
	elements    map[string]*Element
	url         string
	loaded      bool
	networkIdle bool
	closed      bool
	gotoErr     error
	routes      map[string]func(p *Page)
	onClose     func() error

	// PollInterval is how often waits re-check; DefaultPollInterval when zero.
	PollInterval time.Duration
}

var _ browser.Page = (*Page)(nil)

// NewPage returns an empty, loaded, idle page at about:blank.
func NewPage() *Page {
	return &Page{
		elements:    make(map[string]*Element),
		url:         "about:blank",
		loaded:      true,
		networkIdle: true,
		routes:      make(map[string]func(p *Page)),
	}
}

// Set attaches (or replaces) the element matched by selector.
func (p *Page) Set(selector string, el Element) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.elements[selector] = &el
}

// Remove detaches the element matched by selector.
func (p *Page) Remove(selector string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.elements, selector)
}

// Update mutates an attached element in place. It reports false if the
// selector matches nothing.
func (p *Page) Update(selector string, fn func(el *Element)) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	el, ok := p.elements[selector]
	if ok {
		fn(el)
	}
	return ok
}

// Element returns a copy of the element matched by selector.
func (p *Page) Element(selector string) (Element, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	el, ok := p.elements[selector]
	if !ok {
		return Element{}, false
	}
	return *el, true
}

// Route registers a hook that runs when Goto navigates to url.
func (p *Page) Route(url string, fn func(p *Page)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.routes[url] = fn
}

// SetURL changes the current URL without firing routes.
func (p *Page) SetURL(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = url
}

// SetLoaded controls whether the load state wait holds.
func (p *Page) SetLoaded(loaded bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loaded = loaded
}

// SetNetworkIdle controls whether the network idle wait holds.
func (p *Page) SetNetworkIdle(idle bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.networkIdle = idle
}

// FailGoto makes every subsequent navigation return err.
func (p *Page) FailGoto(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gotoErr = err
}

func (p *Page) Goto(ctx context.Context, url string, _ time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return browser.ErrHandleClosed
	}
	if p.gotoErr != nil {
		err := p.gotoErr
		p.mu.Unlock()
		return err
	}
	p.url = url
	route := p.routes[url]
	p.mu.Unlock()

	if route != nil {
		route(p)
	}
	return nil
}

func (p *Page) WaitForSelector(ctx context.Context, selector string, state browser.ElementState, timeout time.Duration) error {
	return p.poll(ctx, timeout, func() bool {
		el, ok := p.elements[selector]
		switch state {
		case browser.StateVisible:
			return ok && el.Visible
		case browser.StateHidden:
			return !ok || !el.Visible
		case browser.StateAttached:
			return ok
		case browser.StateDetached:
			return !ok
		}
		return false
	})
}

func (p *Page) WaitForLoadState(ctx context.Context, state browser.LoadState, timeout time.Duration) error {
	return p.poll(ctx, timeout, func() bool {
		if state == browser.LoadStateNetworkIdle {
			return p.loaded && p.networkIdle
		}
		return p.loaded
	})
}

func (p *Page) WaitForURL(ctx context.Context, substr string, timeout time.Duration) error {
	return p.poll(ctx, timeout, func() bool { return strings.Contains(p.url, substr) })
}

// poll evaluates cond under the page lock until it holds, the page closes,
// ctx ends or timeout elapses.
func (p *Page) poll(ctx context.Context, timeout time.Duration, cond func() bool) error {
	interval := p.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	deadline := time.Now().Add(timeout)
	for {
		p.mu.Lock()
		closed, ok := p.closed, cond()
		p.mu.Unlock()
		if closed {
			return browser.ErrHandleClosed
		}
		if ok {
			return nil
		}
		if !time.Now().Before(deadline) {
			return fmt.Errorf("fake: condition not met within %s: %w", timeout, browser.ErrDriverTimeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

func (p *Page) Locator(selector string) browser.Locator {
	return &locator{p: p, selector: selector}
}

func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, browser.ErrHandleClosed
	}
	return append([]byte(nil), PNG...), nil
}

func (p *Page) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *Page) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Page) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	onClose := p.onClose
	p.mu.Unlock()

	if onClose != nil {
		return onClose()
	}
	return nil
}

type locator struct {
	p        *Page
	selector string
}

// with runs fn against the attached element under the page lock.
func (l *locator) with(ctx context.Context, fn func(el *Element) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.p.mu.Lock()
	defer l.p.mu.Unlock()
	if l.p.closed {
		return browser.ErrHandleClosed
	}
	el, ok := l.p.elements[l.selector]
	if !ok {
		return fmt.Errorf("fake: %w: %s", browser.ErrElementNotFound, l.selector)
	}
	return fn(el)
}

func (l *locator) Click(ctx context.Context, _ time.Duration) error {
	var after func(p *Page)
	err := l.with(ctx, func(el *Element) error {
		if len(el.ClickErrs) > 0 {
			err := el.ClickErrs[0]
			el.ClickErrs = el.ClickErrs[1:]
			return err
		}
		if time.Now().Before(el.ObscuredUntil) {
			return fmt.Errorf("fake: click %s: %w", l.selector, browser.ErrElementObscured)
		}
		el.Clicks++
		after = el.OnClick
		return nil
	})
	if err == nil && after != nil {
		after(l.p)
	}
	return err
}

func (l *locator) Fill(ctx context.Context, text string, _ time.Duration) error {
	return l.with(ctx, func(el *Element) error {
		el.Value = text
		el.Fills++
		return nil
	})
}

func (l *locator) Clear(ctx context.Context, _ time.Duration) error {
	return l.with(ctx, func(el *Element) error {
		el.Value = ""
		return nil
	})
}

func (l *locator) PressSequentially(ctx context.Context, text string, _ time.Duration) error {
	return l.with(ctx, func(el *Element) error {
		for _, r := range text {
			el.Value += string(r)
			el.Keystrokes++
		}
		return nil
	})
}

func (l *locator) InnerText(ctx context.Context, _ time.Duration) (string, error) {
	var text string
	err := l.with(ctx, func(el *Element) error {
		text = el.Text
		return nil
	})
	return text, err
}

func (l *locator) InputValue(ctx context.Context, _ time.Duration) (string, error) {
	var value string
	err := l.with(ctx, func(el *Element) error {
		value = el.Value
		return nil
	})
	return value, err
}

func (l *locator) IsVisible(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	l.p.mu.Lock()
	defer l.p.mu.Unlock()
	if l.p.closed {
		return false, browser.ErrHandleClosed
	}
	el, ok := l.p.elements[l.selector]
	return ok && el.Visible, nil
}
