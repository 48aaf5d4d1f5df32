package cdpdriver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/uiharness/internal/browser"
)

// pollInterval is how often in-page conditions are re-evaluated.
const pollInterval = 50 * time.Millisecond

// page is one chromedp tab. ctx carries the target; every action runs on a
// context derived from it.
type page struct {
	ctx    context.Context
	cancel context.CancelFunc
}

var _ browser.Page = (*page)(nil)

// run executes actions on the tab under the caller's ctx and an optional timeout.
func (p *page) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if p.ctx.Err() != nil {
		return browser.ErrHandleClosed
	}
	callCtx, cancel := combineContext(p.ctx, ctx)
	defer cancel()
	if timeout > 0 {
		var cancelTimeout context.CancelFunc
		callCtx, cancelTimeout = context.WithTimeout(callCtx, timeout)
		defer cancelTimeout()
	}
	return p.classify(ctx, chromedp.Run(callCtx, actions...))
}

func (p *page) classify(ctx context.Context, err error) error {
	switch {
	case err == nil:
		return nil
	case p.ctx.Err() != nil:
		return fmt.Errorf("%w: %w", browser.ErrHandleClosed, err)
	case ctx.Err() != nil:
		return ctx.Err()
	}
	return mapTimeout(err)
}

func evalOpts(p *runtime.EvaluateParams) *runtime.EvaluateParams {
	return p.WithReturnByValue(true).WithAwaitPromise(true).WithSilent(true)
}

// evaluate calls the JS function fn with args and decodes the result into res.
func (p *page) evaluate(ctx context.Context, timeout time.Duration, res any, fn string, args ...any) error {
	expr, err := invoke(fn, args...)
	if err != nil {
		return err
	}
	return p.run(ctx, timeout, chromedp.Evaluate(expr, res, evalOpts))
}

// poll waits until the JS function fn returns a truthy value.
func (p *page) poll(ctx context.Context, timeout time.Duration, fn string, args ...any) error {
	opts := []chromedp.PollOption{chromedp.WithPollingInterval(pollInterval)}
	if timeout > 0 {
		opts = append(opts, chromedp.WithPollingTimeout(timeout))
	}
	if len(args) > 0 {
		opts = append(opts, chromedp.WithPollingArgs(args...))
	}
	var ok bool
	return p.run(ctx, 0, chromedp.PollFunction(fn, &ok, opts...))
}

func (p *page) Goto(ctx context.Context, url string, timeout time.Duration) error {
	return p.run(ctx, timeout, chromedp.Navigate(url))
}

func (p *page) WaitForSelector(ctx context.Context, selector string, state browser.ElementState, timeout time.Duration) error {
	script, ok := stateScripts[state]
	if !ok {
		return fmt.Errorf("cdp driver: unknown element state %q", state)
	}
	return p.poll(ctx, timeout, script, selector)
}

func (p *page) WaitForLoadState(ctx context.Context, state browser.LoadState, timeout time.Duration) error {
	if state == browser.LoadStateNetworkIdle {
		return p.poll(ctx, timeout, jsNetworkIdle)
	}
	return p.poll(ctx, timeout, jsLoaded)
}

func (p *page) WaitForURL(ctx context.Context, substr string, timeout time.Duration) error {
	return p.poll(ctx, timeout, jsURLContains, substr)
}

func (p *page) Locator(selector string) browser.Locator {
	return &locator{p: p, selector: selector}
}

func (p *page) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	// Quality 100 yields PNG.
	err := p.run(ctx, 0, chromedp.FullScreenshot(&buf, 100))
	return buf, err
}

func (p *page) URL() string {
	var url string
	if err := p.run(context.Background(), defaultURLTimeout, chromedp.Location(&url)); err != nil {
		return ""
	}
	return url
}

func (p *page) IsClosed() bool { return p.ctx.Err() != nil }

func (p *page) Close() error {
	if p.ctx.Err() != nil {
		return nil
	}
	err := chromedp.Cancel(p.ctx)
	p.cancel()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// locator resolves its selector anew on every call.
type locator struct {
	p        *page
	selector string
}

func (l *locator) Click(ctx context.Context, timeout time.Duration) error {
	var hit string
	if err := l.p.evaluate(ctx, timeout, &hit, jsHitTest, l.selector); err != nil {
		return err
	}
	switch hit {
	case "missing":
		return fmt.Errorf("cdp driver: %w: %s", browser.ErrElementNotFound, l.selector)
	case "obscured":
		return fmt.Errorf("cdp driver: click %s: %w", l.selector, browser.ErrElementObscured)
	}
	return l.p.run(ctx, timeout, chromedp.Click(l.selector, chromedp.ByQuery, chromedp.NodeVisible))
}

func (l *locator) setValue(ctx context.Context, value string, timeout time.Duration) error {
	var ok bool
	if err := l.p.evaluate(ctx, timeout, &ok, jsSetValue, l.selector, value); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("cdp driver: %w: %s", browser.ErrElementNotFound, l.selector)
	}
	return nil
}

func (l *locator) Fill(ctx context.Context, text string, timeout time.Duration) error {
	return l.setValue(ctx, text, timeout)
}

func (l *locator) Clear(ctx context.Context, timeout time.Duration) error {
	return l.setValue(ctx, "", timeout)
}

func (l *locator) PressSequentially(ctx context.Context, text string, timeout time.Duration) error {
	return l.p.run(ctx, timeout, chromedp.SendKeys(l.selector, text, chromedp.ByQuery))
}

func (l *locator) InnerText(ctx context.Context, timeout time.Duration) (string, error) {
	var text *string
	if err := l.p.evaluate(ctx, timeout, &text, jsInnerText, l.selector); err != nil {
		return "", err
	}
	if text == nil {
		return "", fmt.Errorf("cdp driver: %w: %s", browser.ErrElementNotFound, l.selector)
	}
	return *text, nil
}

func (l *locator) InputValue(ctx context.Context, timeout time.Duration) (string, error) {
	var value *string
	if err := l.p.evaluate(ctx, timeout, &value, jsInputValue, l.selector); err != nil {
		return "", err
	}
	if value == nil {
		return "", fmt.Errorf("cdp driver: %w: %s has no value", browser.ErrElementNotFound, l.selector)
	}
	return *value, nil
}

func (l *locator) IsVisible(ctx context.Context) (bool, error) {
	var visible bool
	err := l.p.evaluate(ctx, 0, &visible, jsIsVisible, l.selector)
	return visible, err
}
