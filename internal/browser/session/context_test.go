package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/uiharness/internal/browser"
	"github.com/xkilldash9x/uiharness/internal/mocks"
)

type mockTriple struct {
	driver  *mocks.MockDriver
	engine  *mocks.MockEngine
	browser *mocks.MockBrowser
	page    *mocks.MockPage
}

func newMockTriple() *mockTriple {
	m := &mockTriple{
		driver:  new(mocks.MockDriver),
		engine:  new(mocks.MockEngine),
		browser: new(mocks.MockBrowser),
		page:    new(mocks.MockPage),
	}
	m.driver.On("Name").Return("mock").Maybe()
	m.browser.On("Version").Return("mock-1.0").Maybe()
	return m
}

func (m *mockTriple) assert(t *testing.T) {
	m.driver.AssertExpectations(t)
	m.engine.AssertExpectations(t)
	m.browser.AssertExpectations(t)
	m.page.AssertExpectations(t)
}

func TestOpen_BuildsAndClosesInReverseOrder(t *testing.T) {
	m := newMockTriple()
	opts := browser.LaunchOptions{Headless: true, Timeout: time.Second}
	var order []string
	m.driver.On("Start", mock.Anything).Return(m.engine, nil).Once()
	m.engine.On("Launch", mock.Anything, browser.WebKit, opts).Return(m.browser, nil).Once()
	m.browser.On("NewPage", mock.Anything).Return(m.page, nil).Once()
	m.page.On("Close").Return(nil).Run(func(mock.Arguments) { order = append(order, "page") }).Once()
	m.browser.On("Close").Return(errors.New("browser crashed")).Run(func(mock.Arguments) { order = append(order, "browser") }).Once()
	m.engine.On("Close").Return(nil).Run(func(mock.Arguments) { order = append(order, "engine") }).Once()

	c, err := Open(context.Background(), m.driver, "unit-1", browser.WebKit, opts, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, browser.WebKit, c.Variant)
	assert.Same(t, m.browser, c.Browser())

	err = c.Close()
	assert.ErrorContains(t, err, "close browser: browser crashed")
	assert.Equal(t, []string{"page", "browser", "engine"}, order)

	// Close is idempotent and reports the same outcome.
	assert.Equal(t, err, c.Close())
	m.assert(t)
}

func TestOpen_PageFailureClosesEarlierStages(t *testing.T) {
	m := newMockTriple()
	m.driver.On("Start", mock.Anything).Return(m.engine, nil).Once()
	m.engine.On("Launch", mock.Anything, browser.Chromium, mock.Anything).Return(m.browser, nil).Once()
	m.browser.On("NewPage", mock.Anything).Return(nil, errors.New("tab crashed")).Once()
	m.browser.On("Close").Return(nil).Once()
	m.engine.On("Close").Return(errors.New("already gone")).Once()

	_, err := Open(context.Background(), m.driver, "unit-1", browser.Chromium, browser.LaunchOptions{}, zaptest.NewLogger(t))

	var sie *browser.SessionInitError
	require.ErrorAs(t, err, &sie)
	assert.Equal(t, StagePage, sie.Stage)
	assert.Equal(t, "unit-1", sie.Unit)
	assert.ErrorContains(t, err, "tab crashed")
	m.assert(t)
}

func TestContext_PageReportsClosedAfterClose(t *testing.T) {
	m := newMockTriple()
	m.driver.On("Start", mock.Anything).Return(m.engine, nil)
	m.engine.On("Launch", mock.Anything, mock.Anything, mock.Anything).Return(m.browser, nil)
	m.browser.On("NewPage", mock.Anything).Return(m.page, nil)
	m.page.On("Close").Return(nil)
	m.browser.On("Close").Return(nil)
	m.engine.On("Close").Return(nil)

	c, err := Open(context.Background(), m.driver, "unit-1", browser.Chromium, browser.LaunchOptions{}, nil)
	require.NoError(t, err)
	require.NoError(t, c.Close())

	select {
	case <-c.Done():
	default:
		t.Fatal("Done is not closed after Close")
	}
	assert.True(t, c.Page().IsClosed())
	err = c.Page().Goto(context.Background(), "https://example.test", time.Second)
	assert.ErrorIs(t, err, browser.ErrHandleClosed)
	// The inner page was never asked to navigate.
	m.page.AssertNotCalled(t, "Goto", mock.Anything, mock.Anything, mock.Anything)

	loc := new(mocks.MockLocator)
	m.page.On("Locator", "#zip").Return(loc)
	_, err = c.Page().Locator("#zip").InputValue(context.Background(), time.Second)
	assert.ErrorIs(t, err, browser.ErrHandleClosed)
	loc.AssertNotCalled(t, "InputValue", mock.Anything, mock.Anything)
}
