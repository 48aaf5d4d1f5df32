// internal/browser/session/context.go

// Package session owns execution contexts: one engine, browser and page per
// execution unit, created on demand by the Registry and torn down exactly
// once in reverse order.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/uiharness/internal/browser"
)

// Construction stages reported in *browser.SessionInitError.
const (
	StageRateLimit = "rate_limit"
	StageEngine    = "engine"
	StageBrowser   = "browser"
	StagePage      = "page"
)

// Context is a fully constructed engine, browser and page triple.
type Context struct {
	ID        string
	Unit      string
	Variant   browser.Variant
	CreatedAt time.Time

	engine  browser.Engine
	browser browser.Browser
	page    *guardedPage

	// life is cancelled when the context closes, which unblocks in-flight calls.
	life   context.Context
	cancel context.CancelFunc

	logger    *zap.Logger
	closeOnce sync.Once
	closeErr  error
}

// Open builds a context for unit. It either returns a complete context or an
// *browser.SessionInitError, having closed whatever it had already started.
func Open(ctx context.Context, driver browser.Driver, unit string, variant browser.Variant, opts browser.LaunchOptions, logger *zap.Logger) (*Context, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	initErr := func(stage string, err error) error {
		return &browser.SessionInitError{Unit: unit, Stage: stage, Err: err}
	}

	engine, err := driver.Start(ctx)
	if err != nil {
		return nil, initErr(StageEngine, err)
	}

	b, err := engine.Launch(ctx, variant, opts)
	if err != nil {
		closeQuietly(logger, "engine", engine.Close)
		return nil, initErr(StageBrowser, err)
	}

	page, err := b.NewPage(ctx)
	if err != nil {
		closeQuietly(logger, "browser", b.Close)
		closeQuietly(logger, "engine", engine.Close)
		return nil, initErr(StagePage, err)
	}

	life, cancel := context.WithCancel(context.Background())
	id := uuid.NewString()
	c := &Context{
		ID:        id,
		Unit:      unit,
		Variant:   variant,
		CreatedAt: time.Now(),
		engine:    engine,
		browser:   b,
		page:      &guardedPage{inner: page, life: life},
		life:      life,
		cancel:    cancel,
		logger:    logger.With(zap.String("context_id", id), zap.String("unit", unit)),
	}
	c.logger.Debug("Execution context opened.",
		zap.String("driver", driver.Name()),
		zap.String("variant", variant.String()),
		zap.String("version", b.Version()),
		zap.Bool("headless", opts.Headless))
	return c, nil
}

func closeQuietly(logger *zap.Logger, what string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logger.Warn("Cleanup after failed construction did not complete.", zap.String("handle", what), zap.Error(err))
	}
}

// Page returns the context's page. After Close every call on it reports
// browser.ErrHandleClosed.
func (c *Context) Page() browser.Page { return c.page }

// Browser returns the context's browser.
func (c *Context) Browser() browser.Browser { return c.browser }

// Done is closed when the context starts closing.
func (c *Context) Done() <-chan struct{} { return c.life.Done() }

// Close tears the context down: in-flight calls are unblocked first, then
// page, browser and engine are closed in that order. Every step runs even if
// an earlier one failed. Only the first call does any work; later calls
// return the same result.
func (c *Context) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		var errs []error
		if err := c.page.inner.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close page: %w", err))
		}
		if err := c.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close browser: %w", err))
		}
		if err := c.engine.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close engine: %w", err))
		}
		c.closeErr = errors.Join(errs...)
		c.logger.Debug("Execution context closed.", zap.Duration("lifetime", time.Since(c.CreatedAt)))
	})
	return c.closeErr
}
