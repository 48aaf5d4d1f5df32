// internal/browser/pwdriver/driver.go

// Package pwdriver implements the browser contract on playwright-go. It
// drives all three variants and is the default driver.
package pwdriver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/uiharness/internal/browser"
)

// Name is the driver's configuration name.
const Name = "playwright"

// Options configures the playwright driver.
type Options struct {
	// Install downloads the driver and the browsers in Browsers before the
	// first engine starts.
	Install        bool
	InstallTimeout time.Duration
	Browsers       []browser.Variant
	Logger         *zap.Logger
}

// Driver starts playwright engines.
type Driver struct {
	opts   Options
	logger *zap.Logger
}

var _ browser.Driver = (*Driver)(nil)

// New returns a playwright driver.
func New(opts Options) *Driver {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{opts: opts, logger: logger.Named("playwright")}
}

// Name implements browser.Driver.
func (d *Driver) Name() string { return Name }

// Start runs the playwright driver process.
func (d *Driver) Start(ctx context.Context) (browser.Engine, error) {
	if d.opts.Install {
		if err := Install(ctx, d.opts.Browsers, d.opts.InstallTimeout, d.logger); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright driver: %w", err)
	}
	return &engine{pw: pw, logger: d.logger}, nil
}

// Install downloads the playwright driver and the given browsers. The
// download itself cannot be cancelled, so on timeout it is abandoned.
func Install(ctx context.Context, variants []browser.Variant, timeout time.Duration, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	names := make([]string, 0, len(variants))
	for _, v := range variants {
		names = append(names, v.String())
	}
	logger.Info("Verifying Playwright browser installation...", zap.Strings("browsers", names))

	installCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		installCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	errCh := make(chan error, 1)
	go func() {
		if err := playwright.Install(&playwright.RunOptions{Browsers: names}); err != nil {
			errCh <- fmt.Errorf("failed to install playwright browsers: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-installCtx.Done():
		return fmt.Errorf("timeout waiting for Playwright installation: %w", installCtx.Err())
	}
}

type engine struct {
	pw     *playwright.Playwright
	logger *zap.Logger
}

// defaultChromiumArgs keep chromium stable in containers.
var defaultChromiumArgs = []string{
	"--disable-gpu",
	"--no-sandbox",
	"--disable-dev-shm-usage",
}

func (e *engine) Launch(ctx context.Context, variant browser.Variant, opts browser.LaunchOptions) (browser.Browser, error) {
	var bt playwright.BrowserType
	args := opts.Args
	switch variant {
	case browser.Chromium:
		bt = e.pw.Chromium
		args = append(append([]string(nil), defaultChromiumArgs...), opts.Args...)
	case browser.Firefox:
		bt = e.pw.Firefox
	case browser.WebKit:
		bt = e.pw.WebKit
	default:
		return nil, fmt.Errorf("%w: %s", browser.ErrUnsupportedVariant, variant)
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		Args:     args,
	}
	if ms := millis(ctx, opts.Timeout); ms != nil {
		launchOpts.Timeout = ms
	}

	type launched struct {
		b   playwright.Browser
		err error
	}
	resCh := make(chan launched, 1)
	go func() {
		b, err := bt.Launch(launchOpts)
		resCh <- launched{b, err}
	}()

	select {
	case res := <-resCh:
		if res.err != nil {
			return nil, fmt.Errorf("failed to launch %s: %w", variant, mapErr(res.err))
		}
		return &pwBrowser{b: res.b}, nil
	case <-ctx.Done():
		// Nobody will own a browser that finishes launching now.
		go func() {
			if res := <-resCh; res.err == nil {
				if err := res.b.Close(); err != nil {
					e.logger.Warn("Failed to close abandoned browser.", zap.Error(err))
				}
			}
		}()
		return nil, ctx.Err()
	}
}

func (e *engine) Close() error {
	if err := e.pw.Stop(); err != nil {
		return fmt.Errorf("failed to stop playwright driver: %w", err)
	}
	return nil
}

type pwBrowser struct {
	b playwright.Browser
}

func (b *pwBrowser) NewPage(ctx context.Context) (browser.Page, error) {
	var p playwright.Page
	err := call(ctx, func() error {
		var err error
		p, err = b.b.NewPage()
		return err
	})
	if err != nil {
		return nil, err
	}
	return &page{p: p}, nil
}

func (b *pwBrowser) Version() string { return b.b.Version() }

func (b *pwBrowser) Close() error { return mapErr(b.b.Close()) }

// call runs a blocking playwright call, returning early if ctx ends first.
// Playwright calls carry their own timeouts, so an abandoned call finishes
// on its own.
func call(ctx context.Context, fn func() error) error {
	_, err := callValue(ctx, func() (struct{}, error) { return struct{}{}, fn() })
	return err
}

type outcome[T any] struct {
	v   T
	err error
}

// callValue is call for playwright calls that return a value. The value only
// ever crosses the channel, so an abandoned call cannot write to memory the
// caller still reads.
func callValue[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	done := make(chan outcome[T], 1)
	go func() {
		v, err := fn()
		done <- outcome[T]{v: v, err: err}
	}()
	select {
	case o := <-done:
		return o.v, mapErr(o.err)
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// millis converts timeout to playwright's float milliseconds, shortened to
// the ctx deadline if that comes first. It returns nil to keep playwright's
// default when neither bounds the call.
func millis(ctx context.Context, timeout time.Duration) *float64 {
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); timeout <= 0 || left < timeout {
			timeout = max(left, time.Millisecond)
		}
	}
	if timeout <= 0 {
		return nil
	}
	return playwright.Float(float64(timeout.Milliseconds()))
}

// mapErr translates playwright's sentinel errors to the browser package's.
func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, playwright.ErrTimeout):
		return fmt.Errorf("%w: %w", browser.ErrDriverTimeout, err)
	case errors.Is(err, playwright.ErrTargetClosed):
		return fmt.Errorf("%w: %w", browser.ErrHandleClosed, err)
	}
	return err
}
