package pwdriver

import (
	"context"
	"regexp"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/xkilldash9x/uiharness/internal/browser"
)

type page struct {
	p playwright.Page
}

var _ browser.Page = (*page)(nil)

var selectorStates = map[browser.ElementState]*playwright.WaitForSelectorState{
	browser.StateVisible:  playwright.WaitForSelectorStateVisible,
	browser.StateHidden:   playwright.WaitForSelectorStateHidden,
	browser.StateAttached: playwright.WaitForSelectorStateAttached,
	browser.StateDetached: playwright.WaitForSelectorStateDetached,
}

func (p *page) Goto(ctx context.Context, url string, timeout time.Duration) error {
	return call(ctx, func() error {
		_, err := p.p.Goto(url, playwright.PageGotoOptions{
			Timeout:   millis(ctx, timeout),
			WaitUntil: playwright.WaitUntilStateCommit,
		})
		return err
	})
}

func (p *page) WaitForSelector(ctx context.Context, selector string, state browser.ElementState, timeout time.Duration) error {
	return call(ctx, func() error {
		_, err := p.p.WaitForSelector(selector, playwright.PageWaitForSelectorOptions{
			State:   selectorStates[state],
			Timeout: millis(ctx, timeout),
		})
		return err
	})
}

func (p *page) WaitForLoadState(ctx context.Context, state browser.LoadState, timeout time.Duration) error {
	ls := playwright.LoadStateLoad
	if state == browser.LoadStateNetworkIdle {
		ls = playwright.LoadStateNetworkidle
	}
	return call(ctx, func() error {
		return p.p.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
			State:   ls,
			Timeout: millis(ctx, timeout),
		})
	})
}

func (p *page) WaitForURL(ctx context.Context, substr string, timeout time.Duration) error {
	pattern := regexp.MustCompile(regexp.QuoteMeta(substr))
	return call(ctx, func() error {
		return p.p.WaitForURL(pattern, playwright.PageWaitForURLOptions{
			Timeout:   millis(ctx, timeout),
			WaitUntil: playwright.WaitUntilStateCommit,
		})
	})
}

func (p *page) Locator(selector string) browser.Locator {
	return &locator{l: p.p.Locator(selector)}
}

func (p *page) Screenshot(ctx context.Context) ([]byte, error) {
	return callValue(ctx, func() ([]byte, error) {
		return p.p.Screenshot(playwright.PageScreenshotOptions{FullPage: playwright.Bool(true)})
	})
}

func (p *page) URL() string { return p.p.URL() }

func (p *page) IsClosed() bool { return p.p.IsClosed() }

func (p *page) Close() error { return mapErr(p.p.Close()) }

// locator re-resolves its selector on every call, as playwright locators do.
type locator struct {
	l playwright.Locator
}

func (l *locator) Click(ctx context.Context, timeout time.Duration) error {
	return call(ctx, func() error {
		return l.l.Click(playwright.LocatorClickOptions{Timeout: millis(ctx, timeout)})
	})
}

func (l *locator) Fill(ctx context.Context, text string, timeout time.Duration) error {
	return call(ctx, func() error {
		return l.l.Fill(text, playwright.LocatorFillOptions{Timeout: millis(ctx, timeout)})
	})
}

func (l *locator) Clear(ctx context.Context, timeout time.Duration) error {
	return call(ctx, func() error {
		return l.l.Clear(playwright.LocatorClearOptions{Timeout: millis(ctx, timeout)})
	})
}

func (l *locator) PressSequentially(ctx context.Context, text string, timeout time.Duration) error {
	return call(ctx, func() error {
		return l.l.PressSequentially(text, playwright.LocatorPressSequentiallyOptions{Timeout: millis(ctx, timeout)})
	})
}

func (l *locator) InnerText(ctx context.Context, timeout time.Duration) (string, error) {
	return callValue(ctx, func() (string, error) {
		return l.l.InnerText(playwright.LocatorInnerTextOptions{Timeout: millis(ctx, timeout)})
	})
}

func (l *locator) InputValue(ctx context.Context, timeout time.Duration) (string, error) {
	return callValue(ctx, func() (string, error) {
		return l.l.InputValue(playwright.LocatorInputValueOptions{Timeout: millis(ctx, timeout)})
	})
}

func (l *locator) IsVisible(ctx context.Context) (bool, error) {
	return callValue(ctx, func() (bool, error) { return l.l.IsVisible() })
}
