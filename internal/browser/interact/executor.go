// internal/browser/interact/executor.go

// Package interact performs UI interactions on a page. Every action first
// synchronizes on the target element; clicks additionally absorb transient
// failures (overlays, re-renders, detached nodes) with a bounded retry.
package interact

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/uiharness/internal/browser"
	"github.com/xkilldash9x/uiharness/internal/browser/wait"
	"github.com/xkilldash9x/uiharness/internal/retry"
)

// Action names used in errors, logs and metric labels.
const (
	ActionClick            = "click"
	ActionType             = "type"
	ActionTypeSequentially = "type_sequentially"
	ActionReadText         = "read_text"
	ActionReadValue        = "read_value"
	ActionNavigate         = "navigate"
)

// Actions is the capability screens and scripted steps are written against.
type Actions interface {
	Click(ctx context.Context, selector string) error
	Type(ctx context.Context, selector, text string) error
	TypeSequentially(ctx context.Context, selector, text string) error
	ReadText(ctx context.Context, selector string) (string, error)
	ReadValue(ctx context.Context, selector string) (string, error)
	IsVisible(ctx context.Context, selector string) bool
	Navigate(ctx context.Context, url string) error
	WaitFor(ctx context.Context, selector string, state browser.ElementState) error
	WaitForPage(ctx context.Context, cond wait.PageCondition) error
	URL() string
}

// Recorder receives attempt, failure and wait timeout events.
// *observability.Metrics satisfies it.
type Recorder interface {
	wait.TimeoutObserver
	ActionAttempted(action string)
	ActionFailed(action string)
}

type nopRecorder struct{}

func (nopRecorder) WaitTimedOut(string)    {}
func (nopRecorder) ActionAttempted(string) {}
func (nopRecorder) ActionFailed(string)    {}

// Timeouts bounds the executor's waits and protocol calls.
type Timeouts struct {
	// Wait bounds element synchronization.
	Wait time.Duration
	// Navigation bounds page loads.
	Navigation time.Duration
	// Action bounds a single protocol interaction.
	Action time.Duration
}

// DefaultTimeouts mirrors the configuration defaults.
func DefaultTimeouts() Timeouts {
	return Timeouts{Wait: 10 * time.Second, Navigation: 30 * time.Second, Action: 5 * time.Second}
}

// Executor is the resilient action layer over a single page.
type Executor struct {
	page     browser.Page
	policy   retry.Policy
	timeouts Timeouts
	sleep    retry.Sleeper
	logger   *zap.Logger
	rec      Recorder
}

var _ Actions = (*Executor)(nil)

// Option configures an Executor.
type Option func(*Executor)

// WithPolicy sets the click retry policy.
func WithPolicy(p retry.Policy) Option { return func(e *Executor) { e.policy = p } }

// WithTimeouts sets the wait, navigation and action timeouts.
func WithTimeouts(t Timeouts) Option { return func(e *Executor) { e.timeouts = t } }

// WithSleeper replaces the backoff sleeper, mainly for tests.
func WithSleeper(s retry.Sleeper) Option { return func(e *Executor) { e.sleep = s } }

// WithLogger sets the logger; the executor names itself "interact".
func WithLogger(l *zap.Logger) Option { return func(e *Executor) { e.logger = l.Named("interact") } }

// WithRecorder sets the event recorder.
func WithRecorder(r Recorder) Option {
	return func(e *Executor) {
		if r != nil {
			e.rec = r
		}
	}
}

// New returns an Executor with the default policy and timeouts.
func New(page browser.Page, opts ...Option) *Executor {
	e := &Executor{
		page:     page,
		policy:   retry.DefaultPolicy(),
		timeouts: DefaultTimeouts(),
		sleep:    retry.Sleep,
		logger:   zap.NewNop(),
		rec:      nopRecorder{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Page returns the underlying page.
func (e *Executor) Page() browser.Page { return e.page }

// URL returns the page's current URL.
func (e *Executor) URL() string { return e.page.URL() }

// WaitFor blocks until selector reaches state.
func (e *Executor) WaitFor(ctx context.Context, selector string, state browser.ElementState) error {
	return wait.ForElementObserved(ctx, e.page, selector, state, e.timeouts.Wait, e.rec)
}

// WaitForPage blocks until the page condition holds.
func (e *Executor) WaitForPage(ctx context.Context, cond wait.PageCondition) error {
	return wait.ForPageObserved(ctx, e.page, cond, e.timeouts.Navigation, e.rec)
}

// ready waits for the element to be visible and then attached. Visibility
// alone can be reported for a node that is being swapped out by a re-render.
func (e *Executor) ready(ctx context.Context, selector string) error {
	if err := e.WaitFor(ctx, selector, browser.StateVisible); err != nil {
		return err
	}
	return e.WaitFor(ctx, selector, browser.StateAttached)
}

// Click synchronizes on selector and clicks it, retrying transient failures
// under the executor's policy. After the last failed attempt it returns an
// *browser.InteractionError wrapping that attempt's error.
func (e *Executor) Click(ctx context.Context, selector string) error {
	if err := e.ready(ctx, selector); err != nil {
		return err
	}

	res := retry.Do(ctx, e.policy, e.sleep, func(ctx context.Context, attempt int) error {
		e.rec.ActionAttempted(ActionClick)
		err := e.page.Locator(selector).Click(ctx, e.timeouts.Action)
		if err == nil {
			return nil
		}
		if errors.Is(err, browser.ErrHandleClosed) || ctx.Err() != nil {
			return retry.Stop(err)
		}
		e.logger.Debug("Click attempt failed.",
			zap.String("selector", selector),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", e.policy.MaxAttempts),
			zap.Error(err))
		return err
	})
	if res.Err != nil {
		e.rec.ActionFailed(ActionClick)
		return &browser.InteractionError{Action: ActionClick, Selector: selector, Attempts: res.Attempts, Err: res.Err}
	}
	if res.Attempts > 1 {
		e.logger.Debug("Click succeeded after retry.", zap.String("selector", selector), zap.Int("attempts", res.Attempts))
	}
	return nil
}

// Type clears the field and fills it with text in one operation, so
// re-typing never appends to a previous value.
func (e *Executor) Type(ctx context.Context, selector, text string) error {
	return e.input(ctx, ActionType, selector, func(loc browser.Locator) error {
		return loc.Fill(ctx, text, e.timeouts.Action)
	})
}

// TypeSequentially clears the field and types text one key at a time, for
// inputs that react to individual key events.
func (e *Executor) TypeSequentially(ctx context.Context, selector, text string) error {
	return e.input(ctx, ActionTypeSequentially, selector, func(loc browser.Locator) error {
		return loc.PressSequentially(ctx, text, e.timeouts.Action)
	})
}

func (e *Executor) input(ctx context.Context, action, selector string, write func(browser.Locator) error) error {
	if err := e.ready(ctx, selector); err != nil {
		return err
	}
	e.rec.ActionAttempted(action)
	loc := e.page.Locator(selector)
	err := loc.Clear(ctx, e.timeouts.Action)
	if err == nil {
		err = write(loc)
	}
	if err != nil {
		e.rec.ActionFailed(action)
		return &browser.InteractionError{Action: action, Selector: selector, Attempts: 1, Err: err}
	}
	return nil
}

// ReadText returns the rendered text of a visible element. A target that
// never becomes visible or cannot be resolved is an
// *browser.ElementNotFoundError.
func (e *Executor) ReadText(ctx context.Context, selector string) (string, error) {
	if err := e.WaitFor(ctx, selector, browser.StateVisible); err != nil {
		var te *browser.TimeoutError
		if errors.As(err, &te) {
			return "", &browser.ElementNotFoundError{Selector: selector, Err: err}
		}
		return "", err
	}

	text, err := e.page.Locator(selector).InnerText(ctx, e.timeouts.Action)
	if err != nil {
		if errors.Is(err, browser.ErrElementNotFound) || errors.Is(err, browser.ErrDriverTimeout) {
			return "", &browser.ElementNotFoundError{Selector: selector, Err: err}
		}
		return "", fmt.Errorf("%s %q: %w", ActionReadText, selector, err)
	}
	return text, nil
}

// ReadValue returns the current value of a form field. The field only has to
// be attached; hidden inputs are read too. Errors follow ReadText.
func (e *Executor) ReadValue(ctx context.Context, selector string) (string, error) {
	if err := e.WaitFor(ctx, selector, browser.StateAttached); err != nil {
		var te *browser.TimeoutError
		if errors.As(err, &te) {
			return "", &browser.ElementNotFoundError{Selector: selector, Err: err}
		}
		return "", err
	}

	value, err := e.page.Locator(selector).InputValue(ctx, e.timeouts.Action)
	if err != nil {
		if errors.Is(err, browser.ErrElementNotFound) || errors.Is(err, browser.ErrDriverTimeout) {
			return "", &browser.ElementNotFoundError{Selector: selector, Err: err}
		}
		return "", fmt.Errorf("%s %q: %w", ActionReadValue, selector, err)
	}
	return value, nil
}

// Visibility is the outcome of a visibility probe.
type Visibility int

const (
	NotVisible Visibility = iota
	Visible
	// ProbeFailed means the page could not be asked, e.g. it was closed.
	ProbeFailed
)

func (v Visibility) String() string {
	switch v {
	case Visible:
		return "visible"
	case ProbeFailed:
		return "probe failed"
	default:
		return "not visible"
	}
}

// Probe checks visibility right now, without waiting. The check itself is
// bounded by the action timeout, so a hung renderer reports ProbeFailed.
func (e *Executor) Probe(ctx context.Context, selector string) Visibility {
	if e.timeouts.Action > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeouts.Action)
		defer cancel()
	}
	visible, err := e.page.Locator(selector).IsVisible(ctx)
	if err != nil {
		e.logger.Debug("Visibility probe failed.", zap.String("selector", selector), zap.Error(err))
		return ProbeFailed
	}
	if visible {
		return Visible
	}
	return NotVisible
}

// IsVisible reports whether selector is visible right now. It never waits
// and treats any probe error as not visible.
func (e *Executor) IsVisible(ctx context.Context, selector string) bool {
	return e.Probe(ctx, selector) == Visible
}

// Navigate loads url and waits for the load event.
func (e *Executor) Navigate(ctx context.Context, url string) error {
	if err := e.page.Goto(ctx, url, e.timeouts.Navigation); err != nil {
		return fmt.Errorf("%s to %s: %w", ActionNavigate, url, err)
	}
	return e.WaitForPage(ctx, wait.Loaded())
}
