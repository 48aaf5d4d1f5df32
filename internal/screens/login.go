// internal/screens/login.go

// Package screens models the storefront under test as screens composed over
// interact.Actions. Screens hold selectors and flows only; synchronization
// and retries belong to the executor underneath.
package screens

import (
	"context"

	"github.com/xkilldash9x/uiharness/internal/browser"
	"github.com/xkilldash9x/uiharness/internal/browser/interact"
	"github.com/xkilldash9x/uiharness/internal/browser/wait"
)

// Login selectors.
const (
	UsernameInput = "[data-test='username']"
	PasswordInput = "[data-test='password']"
	LoginButton   = "[data-test='login-button']"
	LoginError    = "[data-test='error']"
)

// Login is the sign-in screen served at the base URL.
type Login struct {
	ui      interact.Actions
	baseURL string
}

// NewLogin returns the login screen of the store at baseURL.
func NewLogin(ui interact.Actions, baseURL string) *Login {
	return &Login{ui: ui, baseURL: baseURL}
}

// Open navigates to the store and waits for the username field.
func (l *Login) Open(ctx context.Context) error {
	if err := l.ui.Navigate(ctx, l.baseURL); err != nil {
		return err
	}
	return l.ui.WaitFor(ctx, UsernameInput, browser.StateVisible)
}

// LoginAs submits the credentials and waits for the network to settle. It
// does not judge the outcome; callers check for the inventory or the error.
func (l *Login) LoginAs(ctx context.Context, username, password string) error {
	if err := l.ui.Type(ctx, UsernameInput, username); err != nil {
		return err
	}
	if err := l.ui.Type(ctx, PasswordInput, password); err != nil {
		return err
	}
	if err := l.ui.Click(ctx, LoginButton); err != nil {
		return err
	}
	return l.ui.WaitForPage(ctx, wait.NetworkIdle())
}

// ErrorVisible reports whether the login error banner is showing.
func (l *Login) ErrorVisible(ctx context.Context) bool {
	return l.ui.IsVisible(ctx, LoginError)
}

// ErrorText returns the login error banner text.
func (l *Login) ErrorText(ctx context.Context) (string, error) {
	return l.ui.ReadText(ctx, LoginError)
}

// WaitForError blocks until the login error banner is visible.
func (l *Login) WaitForError(ctx context.Context) error {
	return l.ui.WaitFor(ctx, LoginError, browser.StateVisible)
}
