// internal/browser/wait/wait.go

// Package wait holds the synchronization primitives: single-shot waits that
// block until an element or page condition holds, or fail with a
// *browser.TimeoutError once the timeout elapses. Waits never retry.
package wait

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xkilldash9x/uiharness/internal/browser"
)

// TimeoutObserver is told about every wait that ended in a timeout. The
// observability metrics satisfy it.
type TimeoutObserver interface {
	WaitTimedOut(condition string)
}

// PageCondition is a page-level wait target.
type PageCondition struct {
	kind    pageKind
	pattern string
}

type pageKind int

const (
	pageLoaded pageKind = iota
	pageNetworkIdle
	pageURLContains
)

// Loaded holds once the page load event has fired.
func Loaded() PageCondition { return PageCondition{kind: pageLoaded} }

// NetworkIdle holds once the page has had no network activity for a short window.
func NetworkIdle() PageCondition { return PageCondition{kind: pageNetworkIdle} }

// URLContains holds once the current URL contains pattern.
func URLContains(pattern string) PageCondition {
	return PageCondition{kind: pageURLContains, pattern: pattern}
}

// Kind is the low-cardinality name of the condition, used as a metric label.
func (c PageCondition) Kind() string {
	switch c.kind {
	case pageNetworkIdle:
		return "network_idle"
	case pageURLContains:
		return "url_contains"
	default:
		return "loaded"
	}
}

// String names the condition the way it appears in timeout errors.
func (c PageCondition) String() string {
	switch c.kind {
	case pageNetworkIdle:
		return "network idle"
	case pageURLContains:
		return fmt.Sprintf("url containing %q", c.pattern)
	default:
		return "loaded"
	}
}

// ForElement blocks until selector reaches state.
func ForElement(ctx context.Context, page browser.Page, selector string, state browser.ElementState, timeout time.Duration) error {
	return ForElementObserved(ctx, page, selector, state, timeout, nil)
}

// ForElementObserved is ForElement reporting timeouts to obs (which may be nil).
func ForElementObserved(ctx context.Context, page browser.Page, selector string, state browser.ElementState, timeout time.Duration, obs TimeoutObserver) error {
	if _, ok := browser.ParseElementState(string(state)); !ok {
		return fmt.Errorf("wait: unknown element state %q", state)
	}
	err := page.WaitForSelector(ctx, selector, state, timeout)
	return classify(err, selector, string(state), string(state), timeout, obs)
}

// ForPage blocks until the page condition holds.
func ForPage(ctx context.Context, page browser.Page, cond PageCondition, timeout time.Duration) error {
	return ForPageObserved(ctx, page, cond, timeout, nil)
}

// ForPageObserved is ForPage reporting timeouts to obs (which may be nil).
func ForPageObserved(ctx context.Context, page browser.Page, cond PageCondition, timeout time.Duration, obs TimeoutObserver) error {
	var err error
	switch cond.kind {
	case pageLoaded:
		err = page.WaitForLoadState(ctx, browser.LoadStateLoad, timeout)
	case pageNetworkIdle:
		err = page.WaitForLoadState(ctx, browser.LoadStateNetworkIdle, timeout)
	case pageURLContains:
		err = page.WaitForURL(ctx, cond.pattern, timeout)
	}
	return classify(err, "", cond.String(), cond.Kind(), timeout, obs)
}

// classify turns driver and deadline timeouts into *browser.TimeoutError.
// Handle-closed and caller cancellation pass through untouched.
func classify(err error, selector, condition, label string, timeout time.Duration, obs TimeoutObserver) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, browser.ErrHandleClosed) || errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, browser.ErrDriverTimeout) || errors.Is(err, context.DeadlineExceeded) {
		if obs != nil {
			obs.WaitTimedOut(label)
		}
		return &browser.TimeoutError{Selector: selector, Condition: condition, Timeout: timeout, Err: err}
	}
	return err
}
