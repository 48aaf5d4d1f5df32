// internal/browser/session/registry.go
package session

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/uiharness/internal/browser"
)

// LifecycleRecorder receives context launch and close events.
// *observability.Metrics satisfies it.
type LifecycleRecorder interface {
	RecordLaunch(result string)
	RecordClose()
}

type nopLifecycle struct{}

func (nopLifecycle) RecordLaunch(string) {}
func (nopLifecycle) RecordClose()        {}

// Launch results passed to LifecycleRecorder.RecordLaunch.
const (
	LaunchOK     = "ok"
	LaunchFailed = "error"
)

// slot holds one unit's context. ready is closed once construction finished;
// ctx and err are immutable after that.
type slot struct {
	ready chan struct{}
	ctx   *Context
	err   error
}

func (s *slot) built() bool {
	select {
	case <-s.ready:
		return s.ctx != nil
	default:
		return false
	}
}

// Registry maps execution units to their contexts. It is the only component
// that starts or stops browser processes. The table lock only guards slot
// insertion and removal; construction and teardown run outside it, so one
// unit never waits on another.
type Registry struct {
	driver  browser.Driver
	variant browser.Variant
	launch  browser.LaunchOptions
	limiter *rate.Limiter
	logger  *zap.Logger
	rec     LifecycleRecorder

	mu    sync.Mutex
	slots map[string]*slot
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithVariant selects the browser variant launched for new contexts.
func WithVariant(v browser.Variant) RegistryOption { return func(r *Registry) { r.variant = v } }

// WithLaunchOptions sets the browser launch options.
func WithLaunchOptions(o browser.LaunchOptions) RegistryOption {
	return func(r *Registry) { r.launch = o }
}

// WithLaunchRate limits context constructions to limit per second with the
// given burst. A non-positive limit disables limiting.
func WithLaunchRate(limit float64, burst int) RegistryOption {
	return func(r *Registry) {
		if limit <= 0 {
			r.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(limit), burst)
	}
}

// WithRegistryLogger sets the logger; the registry names itself "registry".
func WithRegistryLogger(l *zap.Logger) RegistryOption {
	return func(r *Registry) { r.logger = l.Named("registry") }
}

// WithLifecycleRecorder sets the launch and close event recorder.
func WithLifecycleRecorder(rec LifecycleRecorder) RegistryOption {
	return func(r *Registry) {
		if rec != nil {
			r.rec = rec
		}
	}
}

// NewRegistry returns an empty registry launching headed chromium by default.
func NewRegistry(driver browser.Driver, opts ...RegistryOption) *Registry {
	r := &Registry{
		driver:  driver,
		variant: browser.Variants[0],
		logger:  zap.NewNop(),
		rec:     nopLifecycle{},
		slots:   make(map[string]*slot),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Acquire returns unit's context, constructing it on first use. Concurrent
// callers for the same unit share one construction. A failed construction
// returns *browser.SessionInitError and leaves no entry behind.
func (r *Registry) Acquire(ctx context.Context, unit string) (*Context, error) {
	for {
		r.mu.Lock()
		s, ok := r.slots[unit]
		if !ok {
			s = &slot{ready: make(chan struct{})}
			r.slots[unit] = s
			r.mu.Unlock()
			return r.build(ctx, unit, s)
		}
		r.mu.Unlock()

		select {
		case <-s.ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if s.err != nil {
			return nil, s.err
		}
		if s.ctx == nil {
			// Released while under construction; start over.
			continue
		}
		if r.owns(unit, s) {
			return s.ctx, nil
		}
	}
}

func (r *Registry) owns(unit string, s *slot) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.slots[unit] == s
}

// build constructs the context for a slot this caller inserted.
func (r *Registry) build(ctx context.Context, unit string, s *slot) (*Context, error) {
	c, err := r.open(ctx, unit)

	r.mu.Lock()
	current := r.slots[unit] == s
	switch {
	case err != nil && current:
		delete(r.slots, unit)
	case err == nil && current:
		s.ctx = c
	}
	s.err = err
	r.mu.Unlock()
	close(s.ready)

	if err != nil {
		r.rec.RecordLaunch(LaunchFailed)
		r.logger.Warn("Execution context construction failed.", zap.String("unit", unit), zap.Error(err))
		return nil, err
	}
	if !current {
		// Released while under construction.
		r.closeContext(c)
		return nil, &browser.SessionInitError{Unit: unit, Stage: StagePage, Err: fmt.Errorf("released during construction: %w", browser.ErrHandleClosed)}
	}
	r.rec.RecordLaunch(LaunchOK)
	return c, nil
}

func (r *Registry) open(ctx context.Context, unit string) (*Context, error) {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, &browser.SessionInitError{Unit: unit, Stage: StageRateLimit, Err: err}
		}
	}
	return Open(ctx, r.driver, unit, r.variant, r.launch, r.logger)
}

// Release tears down unit's context, if any, and removes the entry. Close
// failures are logged, never returned. Releasing an unknown unit is a no-op.
// A unit released while its context is being built gets that context closed
// as soon as construction finishes.
func (r *Registry) Release(unit string) {
	r.mu.Lock()
	s, ok := r.slots[unit]
	if ok {
		delete(r.slots, unit)
	}
	r.mu.Unlock()

	if ok && s.built() {
		r.closeContext(s.ctx)
		r.rec.RecordClose()
	}
}

func (r *Registry) closeContext(c *Context) {
	if err := c.Close(); err != nil {
		r.logger.Warn("Execution context teardown reported errors.",
			zap.String("unit", c.Unit),
			zap.String("context_id", c.ID),
			zap.Error(err))
	}
}

// GetPage returns the page of unit's context, constructing it if needed.
func (r *Registry) GetPage(ctx context.Context, unit string) (browser.Page, error) {
	c, err := r.Acquire(ctx, unit)
	if err != nil {
		return nil, err
	}
	return c.Page(), nil
}

// Lookup returns unit's context if it is fully constructed. It never builds.
func (r *Registry) Lookup(unit string) (*Context, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[unit]
	if !ok || !s.built() {
		return nil, false
	}
	return s.ctx, true
}

// CloseContext is Release under the name used by runner hooks.
func (r *Registry) CloseContext(unit string) { r.Release(unit) }

// ReleaseAll tears down every context, concurrently. Used at shutdown.
func (r *Registry) ReleaseAll() {
	r.mu.Lock()
	units := make([]string, 0, len(r.slots))
	for unit := range r.slots {
		units = append(units, unit)
	}
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, unit := range units {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Release(unit)
		}()
	}
	wg.Wait()
}

// Len reports the number of fully constructed contexts.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.slots {
		if s.built() {
			n++
		}
	}
	return n
}
