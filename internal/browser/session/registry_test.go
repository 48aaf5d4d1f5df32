package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/uiharness/internal/browser"
	"github.com/xkilldash9x/uiharness/internal/browser/browsertest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type lifecycleCounter struct {
	mu       sync.Mutex
	launches map[string]int
	closes   int
}

func (c *lifecycleCounter) RecordLaunch(result string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.launches == nil {
		c.launches = map[string]int{}
	}
	c.launches[result]++
}

func (c *lifecycleCounter) RecordClose() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
}

func newRegistry(t *testing.T, d *browsertest.Driver, opts ...RegistryOption) *Registry {
	t.Helper()
	opts = append([]RegistryOption{WithRegistryLogger(zaptest.NewLogger(t))}, opts...)
	r := NewRegistry(d, opts...)
	t.Cleanup(r.ReleaseAll)
	return r
}

// -- Acquire / Release --

func TestAcquire_IsIdempotentPerUnit(t *testing.T) {
	d := browsertest.NewDriver()
	r := newRegistry(t, d)
	ctx := context.Background()

	first, err := r.Acquire(ctx, "unit-1")
	require.NoError(t, err)
	second, err := r.Acquire(ctx, "unit-1")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, d.Starts())
	assert.Equal(t, 1, r.Len())
	assert.Equal(t, "unit-1", first.Unit)
	assert.NotEmpty(t, first.ID)
}

func TestRelease_ThenAcquireGivesFreshContext(t *testing.T) {
	d := browsertest.NewDriver()
	r := newRegistry(t, d)
	ctx := context.Background()

	first, err := r.Acquire(ctx, "unit-1")
	require.NoError(t, err)
	r.Release("unit-1")

	assert.Equal(t, []string{"page.close", "browser.close", "engine.close"}, d.Events())
	assert.Zero(t, r.Len())
	assert.Zero(t, d.LiveEngines())

	second, err := r.Acquire(ctx, "unit-1")
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.NotEqual(t, first.ID, second.ID)
	assert.False(t, second.Page().IsClosed())
}

func TestRelease_UnknownUnitIsNoop(t *testing.T) {
	d := browsertest.NewDriver()
	r := newRegistry(t, d)

	assert.NotPanics(t, func() { r.Release("never-acquired") })
	assert.Empty(t, d.Events())

	_, err := r.Acquire(context.Background(), "unit-1")
	require.NoError(t, err)
	r.Release("unit-1")
	r.Release("unit-1")
	assert.Len(t, d.Events(), 3, "a second release closes nothing")
}

func TestRelease_AttemptsEveryStepDespiteFailures(t *testing.T) {
	d := browsertest.NewDriver()
	d.PageCloseErr = errors.New("page crashed")
	d.BrowserCloseErr = errors.New("browser gone")
	r := newRegistry(t, d)

	c, err := r.Acquire(context.Background(), "unit-1")
	require.NoError(t, err)
	r.Release("unit-1")

	assert.Equal(t, []string{"page.close", "browser.close", "engine.close"}, d.Events())
	assert.Zero(t, d.LiveEngines())
	assert.Zero(t, r.Len())

	closeErr := c.Close()
	assert.ErrorIs(t, closeErr, d.PageCloseErr, "close result is remembered")
	assert.ErrorIs(t, closeErr, d.BrowserCloseErr)
}

// -- Construction failures --

func TestAcquire_ConstructionFailures(t *testing.T) {
	cases := []struct {
		name       string
		setup      func(d *browsertest.Driver)
		variant    browser.Variant
		stage      string
		wantEvents []string
		target     error
	}{
		{
			name:    "engine start",
			setup:   func(d *browsertest.Driver) { d.StartErr = errors.New("driver missing") },
			variant: browser.Chromium,
			stage:   StageEngine,
		},
		{
			name:       "browser launch",
			setup:      func(d *browsertest.Driver) { d.LaunchErr = errors.New("executable not found") },
			variant:    browser.Chromium,
			stage:      StageBrowser,
			wantEvents: []string{"engine.close"},
		},
		{
			name:       "unsupported variant",
			setup:      func(d *browsertest.Driver) { d.Unsupported = map[browser.Variant]bool{browser.WebKit: true} },
			variant:    browser.WebKit,
			stage:      StageBrowser,
			wantEvents: []string{"engine.close"},
			target:     browser.ErrUnsupportedVariant,
		},
		{
			name:       "page",
			setup:      func(d *browsertest.Driver) { d.PageErr = errors.New("target crashed") },
			variant:    browser.Chromium,
			stage:      StagePage,
			wantEvents: []string{"browser.close", "engine.close"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := browsertest.NewDriver()
			tc.setup(d)
			rec := &lifecycleCounter{}
			r := newRegistry(t, d, WithVariant(tc.variant), WithLifecycleRecorder(rec))

			c, err := r.Acquire(context.Background(), "unit-1")
			require.Nil(t, c)

			var sie *browser.SessionInitError
			require.ErrorAs(t, err, &sie)
			assert.Equal(t, "unit-1", sie.Unit)
			assert.Equal(t, tc.stage, sie.Stage)
			if tc.target != nil {
				assert.ErrorIs(t, err, tc.target)
			}

			assert.Zero(t, r.Len(), "no partial entry is left behind")
			assert.Zero(t, d.LiveEngines())
			assert.Equal(t, tc.wantEvents, d.Events())
			assert.Equal(t, 1, rec.launches[LaunchFailed])
		})
	}
}

func TestAcquire_PassesVariantAndLaunchOptions(t *testing.T) {
	d := browsertest.NewDriver()
	opts := browser.LaunchOptions{Headless: true, Args: []string{"--mute-audio"}, Timeout: time.Second}
	r := newRegistry(t, d, WithVariant(browser.Firefox), WithLaunchOptions(opts))

	c, err := r.Acquire(context.Background(), "unit-1")
	require.NoError(t, err)

	assert.Equal(t, browser.Firefox, c.Variant)
	assert.Equal(t, []browser.Variant{browser.Firefox}, d.Variants())
	assert.Equal(t, []browser.LaunchOptions{opts}, d.Launches())
}

// -- Concurrency --

func TestAcquire_DistinctUnitsDoNotBlockEachOther(t *testing.T) {
	d := browsertest.NewDriver()
	d.LaunchDelay = 150 * time.Millisecond
	r := newRegistry(t, d)

	var (
		wg       sync.WaitGroup
		contexts [2]*Context
		errs     [2]error
	)
	start := time.Now()
	for i, unit := range []string{"unit-a", "unit-b"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			contexts[i], errs[i] = r.Acquire(context.Background(), unit)
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Less(t, elapsed, 280*time.Millisecond, "constructions ran in parallel")
	assert.NotSame(t, contexts[0], contexts[1])
	assert.Equal(t, 2, r.Len())

	r.Release("unit-a")
	assert.True(t, contexts[0].Page().IsClosed())
	assert.False(t, contexts[1].Page().IsClosed(), "closing one unit leaves the other alive")
	assert.Equal(t, 1, r.Len())
}

func TestAcquire_SameUnitSharesConstruction(t *testing.T) {
	d := browsertest.NewDriver()
	d.LaunchDelay = 50 * time.Millisecond
	r := newRegistry(t, d)

	const callers = 8
	results := make([]*Context, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := r.Acquire(context.Background(), "unit-1")
			assert.NoError(t, err)
			results[i] = c
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, d.Starts())
	for _, c := range results {
		assert.Same(t, results[0], c)
	}
}

func TestRelease_UnblocksInFlightWait(t *testing.T) {
	d := browsertest.NewDriver()
	r := newRegistry(t, d)

	page, err := r.GetPage(context.Background(), "unit-1")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		done <- page.WaitForSelector(context.Background(), "#never", browser.StateVisible, 10*time.Second)
	}()

	time.Sleep(30 * time.Millisecond)
	r.CloseContext("unit-1")

	select {
	case err := <-done:
		assert.ErrorIs(t, err, browser.ErrHandleClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("wait did not observe the release")
	}

	// Calls made after close fail fast.
	assert.ErrorIs(t, page.Goto(context.Background(), "https://shop.test/", time.Second), browser.ErrHandleClosed)
	_, err = page.Locator("#x").IsVisible(context.Background())
	assert.ErrorIs(t, err, browser.ErrHandleClosed)
	assert.True(t, page.IsClosed())
}

func TestRelease_DuringConstruction(t *testing.T) {
	d := browsertest.NewDriver()
	d.LaunchDelay = 100 * time.Millisecond
	r := newRegistry(t, d)

	done := make(chan error, 1)
	go func() {
		_, err := r.Acquire(context.Background(), "unit-1")
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	r.Release("unit-1")

	err := <-done
	require.ErrorIs(t, err, browser.ErrHandleClosed)
	assert.ErrorAs(t, err, new(*browser.SessionInitError))
	assert.Zero(t, d.LiveEngines(), "the late context is torn down")
	assert.Zero(t, r.Len())
}

func TestAcquire_ContextCancelledWhileWaiting(t *testing.T) {
	d := browsertest.NewDriver()
	d.LaunchDelay = 200 * time.Millisecond
	r := newRegistry(t, d)

	go func() { _, _ = r.Acquire(context.Background(), "unit-1") }()
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := r.Acquire(ctx, "unit-1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.Eventually(t, func() bool { return r.Len() == 1 }, time.Second, 10*time.Millisecond)
}

// -- Rate limiting and shutdown --

func TestAcquire_LaunchRateLimit(t *testing.T) {
	d := browsertest.NewDriver()
	r := newRegistry(t, d, WithLaunchRate(0.5, 1))

	_, err := r.Acquire(context.Background(), "unit-a")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = r.Acquire(ctx, "unit-b")

	var sie *browser.SessionInitError
	require.ErrorAs(t, err, &sie)
	assert.Equal(t, StageRateLimit, sie.Stage)
	assert.Equal(t, 1, d.Starts())
}

func TestReleaseAll(t *testing.T) {
	d := browsertest.NewDriver()
	rec := &lifecycleCounter{}
	r := newRegistry(t, d, WithLifecycleRecorder(rec))

	for _, unit := range []string{"a", "b", "c"} {
		_, err := r.Acquire(context.Background(), unit)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, d.LiveEngines())

	r.ReleaseAll()

	assert.Zero(t, r.Len())
	assert.Zero(t, d.LiveEngines())
	assert.Equal(t, 3, rec.launches[LaunchOK])
	assert.Equal(t, 3, rec.closes)
}

func TestLookup_NeverBuilds(t *testing.T) {
	d := browsertest.NewDriver()
	r := newRegistry(t, d)

	_, ok := r.Lookup("unit-1")
	assert.False(t, ok)
	assert.Zero(t, d.Starts())

	built, err := r.Acquire(context.Background(), "unit-1")
	require.NoError(t, err)
	found, ok := r.Lookup("unit-1")
	require.True(t, ok)
	assert.Same(t, built, found)

	r.Release("unit-1")
	_, ok = r.Lookup("unit-1")
	assert.False(t, ok)
}
