// internal/browser/cdpdriver/driver.go

// Package cdpdriver implements the browser contract directly on the Chrome
// DevTools Protocol through chromedp. It only drives chromium; firefox and
// webkit fail at launch with browser.ErrUnsupportedVariant.
package cdpdriver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/uiharness/internal/browser"
)

// Name is the driver's configuration name.
const Name = "cdp"

// Driver starts chromedp engines.
type Driver struct {
	// ExecPath overrides chromedp's browser discovery when set.
	ExecPath string
	logger   *zap.Logger
}

var _ browser.Driver = (*Driver)(nil)

// New returns a chromedp driver.
func New(logger *zap.Logger) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{logger: logger.Named("cdp")}
}

// Name implements browser.Driver.
func (d *Driver) Name() string { return Name }

// Start returns an engine. chromedp has no separate driver process, so the
// engine only tracks the browsers it launched.
func (d *Driver) Start(ctx context.Context) (browser.Engine, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &engine{execPath: d.ExecPath, logger: d.logger, browsers: make(map[*cdpBrowser]struct{})}, nil
}

type engine struct {
	execPath string
	logger   *zap.Logger

	mu       sync.Mutex
	browsers map[*cdpBrowser]struct{}
	closed   bool
}

// allocatorOptions builds the exec allocator flags for a launch.
func (e *engine) allocatorOptions(opts browser.LaunchOptions) []chromedp.ExecAllocatorOption {
	allocOpts := append([]chromedp.ExecAllocatorOption(nil), chromedp.DefaultExecAllocatorOptions[:]...)
	allocOpts = append(allocOpts,
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.NoSandbox,
	)
	if e.execPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(e.execPath))
	}
	for _, arg := range opts.Args {
		name, value, hasValue := strings.Cut(strings.TrimPrefix(arg, "--"), "=")
		if hasValue {
			allocOpts = append(allocOpts, chromedp.Flag(name, value))
		} else {
			allocOpts = append(allocOpts, chromedp.Flag(name, true))
		}
	}
	return allocOpts
}

func (e *engine) Launch(ctx context.Context, variant browser.Variant, opts browser.LaunchOptions) (browser.Browser, error) {
	if variant != browser.Chromium {
		return nil, fmt.Errorf("cdp driver: %w: %s", browser.ErrUnsupportedVariant, variant)
	}
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return nil, browser.ErrHandleClosed
	}

	// The browser must outlive the launch call, so its root is Background.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), e.allocatorOptions(opts)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	b := &cdpBrowser{ctx: browserCtx, cancel: browserCancel, allocCancel: allocCancel, engine: e}

	launchCtx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		launchCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	// The first Run allocates the browser and binds it to browserCtx, so it
	// must not see the launch deadline.
	errCh := make(chan error, 1)
	go func() {
		errCh <- chromedp.Run(browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
			_, product, _, _, _, err := cdpbrowser.GetVersion().Do(ctx)
			b.version = product
			return err
		}))
	}()

	select {
	case err := <-errCh:
		if err != nil {
			b.teardown()
			return nil, fmt.Errorf("failed to launch chromium: %w", err)
		}
	case <-launchCtx.Done():
		b.teardown()
		return nil, fmt.Errorf("failed to launch chromium: %w", mapTimeout(launchCtx.Err()))
	}

	e.mu.Lock()
	e.browsers[b] = struct{}{}
	e.mu.Unlock()
	e.logger.Debug("Chromium launched.", zap.String("version", b.version), zap.Bool("headless", opts.Headless))
	return b, nil
}

// Close closes any browser still open.
func (e *engine) Close() error {
	e.mu.Lock()
	e.closed = true
	open := make([]*cdpBrowser, 0, len(e.browsers))
	for b := range e.browsers {
		open = append(open, b)
	}
	e.mu.Unlock()

	var errs []error
	for _, b := range open {
		if err := b.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close browser %s: %w", b.version, err))
		}
	}
	return errors.Join(errs...)
}

type cdpBrowser struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	engine      *engine
	version     string

	closeOnce sync.Once
	closeErr  error
}

func (b *cdpBrowser) NewPage(ctx context.Context) (browser.Page, error) {
	if b.ctx.Err() != nil {
		return nil, browser.ErrHandleClosed
	}
	tabCtx, tabCancel := chromedp.NewContext(b.ctx)

	// As with launch, the first Run creates the target and must not carry
	// the caller's deadline.
	errCh := make(chan error, 1)
	go func() { errCh <- chromedp.Run(tabCtx) }()

	select {
	case err := <-errCh:
		if err != nil {
			tabCancel()
			return nil, fmt.Errorf("failed to open tab: %w", err)
		}
	case <-ctx.Done():
		tabCancel()
		return nil, ctx.Err()
	}
	return &page{ctx: tabCtx, cancel: tabCancel}, nil
}

func (b *cdpBrowser) Version() string { return b.version }

func (b *cdpBrowser) Close() error {
	b.closeOnce.Do(func() {
		// Cancel closes the browser gracefully and waits for it to exit.
		b.closeErr = chromedp.Cancel(b.ctx)
		b.teardown()

		b.engine.mu.Lock()
		delete(b.engine.browsers, b)
		b.engine.mu.Unlock()
	})
	return b.closeErr
}

func (b *cdpBrowser) teardown() {
	b.cancel()
	b.allocCancel()
}

// mapTimeout marks deadline errors as driver timeouts.
func mapTimeout(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, chromedp.ErrPollingTimeout) {
		return fmt.Errorf("%w: %w", browser.ErrDriverTimeout, err)
	}
	return err
}

// defaultURLTimeout bounds URL reads, which have no caller timeout.
const defaultURLTimeout = 2 * time.Second
