// Package browser defines the automation-client contract the harness core is
// built on. Everything above this package (waits, resilient actions, the
// context registry) talks to a browser only through these interfaces; the
// concrete protocol clients live in pwdriver (playwright-go) and cdpdriver
// (chromedp).
package browser

import (
	"context"
	"time"
)

// Driver starts automation engines. It is the only entry point into a
// protocol client.
type Driver interface {
	// Name identifies the driver in logs and configuration ("playwright", "cdp").
	Name() string
	// Start instantiates an engine (driver process or connection root).
	Start(ctx context.Context) (Engine, error)
}

// Engine owns the browsers it launches.
type Engine interface {
	// Launch starts a browser of the requested variant. Variants the engine
	// cannot drive fail with ErrUnsupportedVariant.
	Launch(ctx context.Context, variant Variant, opts LaunchOptions) (Browser, error)
	Close() error
}

// Browser owns the pages it opens.
type Browser interface {
	NewPage(ctx context.Context) (Page, error)
	Version() string
	Close() error
}

// Page is a single tab. Blocking calls take the caller's context plus an
// explicit timeout; whichever ends first bounds the call.
type Page interface {
	Goto(ctx context.Context, url string, timeout time.Duration) error
	WaitForSelector(ctx context.Context, selector string, state ElementState, timeout time.Duration) error
	WaitForLoadState(ctx context.Context, state LoadState, timeout time.Duration) error
	// WaitForURL waits until the current URL contains substr.
	WaitForURL(ctx context.Context, substr string, timeout time.Duration) error
	Locator(selector string) Locator
	Screenshot(ctx context.Context) ([]byte, error)
	URL() string
	IsClosed() bool
	Close() error
}

// Locator addresses the element(s) matched by a selector at call time.
// Locators never cache a node, so they survive re-renders.
type Locator interface {
	Click(ctx context.Context, timeout time.Duration) error
	// Fill replaces the element value in a single operation.
	Fill(ctx context.Context, text string, timeout time.Duration) error
	Clear(ctx context.Context, timeout time.Duration) error
	// PressSequentially types text one key at a time.
	PressSequentially(ctx context.Context, text string, timeout time.Duration) error
	InnerText(ctx context.Context, timeout time.Duration) (string, error)
	// InputValue returns the current value of an input, textarea or select.
	InputValue(ctx context.Context, timeout time.Duration) (string, error)
	// IsVisible reports the current visibility without waiting.
	IsVisible(ctx context.Context) (bool, error)
}

// LaunchOptions configures a browser launch.
type LaunchOptions struct {
	Headless bool
	Args     []string
	Timeout  time.Duration
}

// ElementState is the target state of an element wait.
type ElementState string

const (
	StateVisible  ElementState = "visible"
	StateHidden   ElementState = "hidden"
	StateAttached ElementState = "attached"
	StateDetached ElementState = "detached"
)

// LoadState is the target state of a page load wait.
type LoadState string

const (
	LoadStateLoad        LoadState = "load"
	LoadStateNetworkIdle LoadState = "networkidle"
)

// ParseElementState maps a configuration or script value to an ElementState.
func ParseElementState(s string) (ElementState, bool) {
	switch ElementState(s) {
	case StateVisible, StateHidden, StateAttached, StateDetached:
		return ElementState(s), true
	}
	return "", false
}

// ParseLoadState maps a script value to a LoadState. "loaded" is accepted as
// an alias of "load".
func ParseLoadState(s string) (LoadState, bool) {
	switch s {
	case "load", "loaded":
		return LoadStateLoad, true
	case "networkidle", "network_idle":
		return LoadStateNetworkIdle, true
	}
	return "", false
}
