package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xkilldash9x/uiharness/internal/browser"
)

// guardedPage ties every page call to the owning context's lifetime. Calls
// made after close fail fast, and calls interrupted by close report
// browser.ErrHandleClosed instead of hanging or surfacing a driver error.
type guardedPage struct {
	inner browser.Page
	life  context.Context
}

var _ browser.Page = (*guardedPage)(nil)

// bind derives a call context that is also cancelled when the owner closes.
func bind(life, ctx context.Context) (context.Context, context.CancelFunc) {
	callCtx, cancel := context.WithCancelCause(ctx)
	stop := context.AfterFunc(life, func() { cancel(browser.ErrHandleClosed) })
	return callCtx, func() {
		stop()
		cancel(nil)
	}
}

// closedErr reports the guard's own sentinel once the owner is gone.
func closedErr(life context.Context, err error) error {
	if err == nil || life.Err() == nil || errors.Is(err, browser.ErrHandleClosed) {
		return err
	}
	return fmt.Errorf("%w: %w", browser.ErrHandleClosed, err)
}

func guard(life, ctx context.Context, call func(ctx context.Context) error) error {
	if life.Err() != nil {
		return browser.ErrHandleClosed
	}
	callCtx, done := bind(life, ctx)
	defer done()
	return closedErr(life, call(callCtx))
}

func (p *guardedPage) Goto(ctx context.Context, url string, timeout time.Duration) error {
	return guard(p.life, ctx, func(ctx context.Context) error { return p.inner.Goto(ctx, url, timeout) })
}

func (p *guardedPage) WaitForSelector(ctx context.Context, selector string, state browser.ElementState, timeout time.Duration) error {
	return guard(p.life, ctx, func(ctx context.Context) error {
		return p.inner.WaitForSelector(ctx, selector, state, timeout)
	})
}

func (p *guardedPage) WaitForLoadState(ctx context.Context, state browser.LoadState, timeout time.Duration) error {
	return guard(p.life, ctx, func(ctx context.Context) error { return p.inner.WaitForLoadState(ctx, state, timeout) })
}

func (p *guardedPage) WaitForURL(ctx context.Context, substr string, timeout time.Duration) error {
	return guard(p.life, ctx, func(ctx context.Context) error { return p.inner.WaitForURL(ctx, substr, timeout) })
}

func (p *guardedPage) Locator(selector string) browser.Locator {
	return &guardedLocator{inner: p.inner.Locator(selector), life: p.life}
}

func (p *guardedPage) Screenshot(ctx context.Context) ([]byte, error) {
	var shot []byte
	err := guard(p.life, ctx, func(ctx context.Context) error {
		var err error
		shot, err = p.inner.Screenshot(ctx)
		return err
	})
	return shot, err
}

func (p *guardedPage) URL() string { return p.inner.URL() }

func (p *guardedPage) IsClosed() bool { return p.life.Err() != nil || p.inner.IsClosed() }

// Close is a no-op: a page is only closed together with its context.
func (p *guardedPage) Close() error { return nil }

type guardedLocator struct {
	inner browser.Locator
	life  context.Context
}

func (l *guardedLocator) Click(ctx context.Context, timeout time.Duration) error {
	return guard(l.life, ctx, func(ctx context.Context) error { return l.inner.Click(ctx, timeout) })
}

func (l *guardedLocator) Fill(ctx context.Context, text string, timeout time.Duration) error {
	return guard(l.life, ctx, func(ctx context.Context) error { return l.inner.Fill(ctx, text, timeout) })
}

func (l *guardedLocator) Clear(ctx context.Context, timeout time.Duration) error {
	return guard(l.life, ctx, func(ctx context.Context) error { return l.inner.Clear(ctx, timeout) })
}

func (l *guardedLocator) PressSequentially(ctx context.Context, text string, timeout time.Duration) error {
	return guard(l.life, ctx, func(ctx context.Context) error { return l.inner.PressSequentially(ctx, text, timeout) })
}

func (l *guardedLocator) InnerText(ctx context.Context, timeout time.Duration) (string, error) {
	var text string
	err := guard(l.life, ctx, func(ctx context.Context) error {
		var err error
		text, err = l.inner.InnerText(ctx, timeout)
		return err
	})
	return text, err
}

func (l *guardedLocator) InputValue(ctx context.Context, timeout time.Duration) (string, error) {
	var value string
	err := guard(l.life, ctx, func(ctx context.Context) error {
		var err error
		value, err = l.inner.InputValue(ctx, timeout)
		return err
	})
	return value, err
}

func (l *guardedLocator) IsVisible(ctx context.Context) (bool, error) {
	var visible bool
	err := guard(l.life, ctx, func(ctx context.Context) error {
		var err error
		visible, err = l.inner.IsVisible(ctx)
		return err
	})
	return visible, err
}
