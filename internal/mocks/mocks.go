// File: internal/mocks/mocks.go
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/uiharness/internal/browser"
)

// -- Driver Mocks --

// MockDriver mocks browser.Driver.
type MockDriver struct {
	mock.Mock
}

func (m *MockDriver) Name() string {
	return m.Called().String(0)
}

func (m *MockDriver) Start(ctx context.Context) (browser.Engine, error) {
	args := m.Called(ctx)
	if e := args.Get(0); e != nil {
		return e.(browser.Engine), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockEngine mocks browser.Engine.
type MockEngine struct {
	mock.Mock
}

func (m *MockEngine) Launch(ctx context.Context, variant browser.Variant, opts browser.LaunchOptions) (browser.Browser, error) {
	args := m.Called(ctx, variant, opts)
	if b := args.Get(0); b != nil {
		return b.(browser.Browser), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockEngine) Close() error {
	return m.Called().Error(0)
}

// MockBrowser mocks browser.Browser.
type MockBrowser struct {
	mock.Mock
}

func (m *MockBrowser) NewPage(ctx context.Context) (browser.Page, error) {
	args := m.Called(ctx)
	if p := args.Get(0); p != nil {
		return p.(browser.Page), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockBrowser) Version() string {
	return m.Called().String(0)
}

func (m *MockBrowser) Close() error {
	return m.Called().Error(0)
}

// -- Page Mocks --

// MockPage mocks browser.Page.
type MockPage struct {
	mock.Mock
}

func (m *MockPage) Goto(ctx context.Context, url string, timeout time.Duration) error {
	return m.Called(ctx, url, timeout).Error(0)
}

func (m *MockPage) WaitForSelector(ctx context.Context, selector string, state browser.ElementState, timeout time.Duration) error {
	return m.Called(ctx, selector, state, timeout).Error(0)
}

func (m *MockPage) WaitForLoadState(ctx context.Context, state browser.LoadState, timeout time.Duration) error {
	return m.Called(ctx, state, timeout).Error(0)
}

func (m *MockPage) WaitForURL(ctx context.Context, substr string, timeout time.Duration) error {
	return m.Called(ctx, substr, timeout).Error(0)
}

func (m *MockPage) Locator(selector string) browser.Locator {
	return m.Called(selector).Get(0).(browser.Locator)
}

func (m *MockPage) Screenshot(ctx context.Context) ([]byte, error) {
	args := m.Called(ctx)
	b, _ := args.Get(0).([]byte)
	return b, args.Error(1)
}

func (m *MockPage) URL() string {
	return m.Called().String(0)
}

func (m *MockPage) IsClosed() bool {
	return m.Called().Bool(0)
}

func (m *MockPage) Close() error {
	return m.Called().Error(0)
}

// MockLocator mocks browser.Locator.
type MockLocator struct {
	mock.Mock
}

func (m *MockLocator) Click(ctx context.Context, timeout time.Duration) error {
	return m.Called(ctx, timeout).Error(0)
}

func (m *MockLocator) Fill(ctx context.Context, text string, timeout time.Duration) error {
	return m.Called(ctx, text, timeout).Error(0)
}

func (m *MockLocator) Clear(ctx context.Context, timeout time.Duration) error {
	return m.Called(ctx, timeout).Error(0)
}

func (m *MockLocator) PressSequentially(ctx context.Context, text string, timeout time.Duration) error {
	return m.Called(ctx, text, timeout).Error(0)
}

func (m *MockLocator) InnerText(ctx context.Context, timeout time.Duration) (string, error) {
	args := m.Called(ctx, timeout)
	return args.String(0), args.Error(1)
}

func (m *MockLocator) InputValue(ctx context.Context, timeout time.Duration) (string, error) {
	args := m.Called(ctx, timeout)
	return args.String(0), args.Error(1)
}

func (m *MockLocator) IsVisible(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

var (
	_ browser.Driver  = (*MockDriver)(nil)
	_ browser.Engine  = (*MockEngine)(nil)
	_ browser.Browser = (*MockBrowser)(nil)
	_ browser.Page    = (*MockPage)(nil)
	_ browser.Locator = (*MockLocator)(nil)
)
