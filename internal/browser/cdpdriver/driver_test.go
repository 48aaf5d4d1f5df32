package cdpdriver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/uiharness/internal/browser"
	"github.com/xkilldash9x/uiharness/internal/browser/interact"
	"github.com/xkilldash9x/uiharness/internal/browser/session"
)

func TestInvoke_EncodesArguments(t *testing.T) {
	expr, err := invoke(`(a, b) => a + b`, `#it's "quoted"`, 3)
	require.NoError(t, err)
	assert.Equal(t, `((a, b) => a + b)("#it's \"quoted\"", 3)`, expr)

	_, err = invoke(`(x) => x`, make(chan int))
	assert.Error(t, err)
}

func TestMapTimeout(t *testing.T) {
	assert.ErrorIs(t, mapTimeout(context.DeadlineExceeded), browser.ErrDriverTimeout)
	assert.ErrorIs(t, mapTimeout(fmt.Errorf("poll: %w", chromedp.ErrPollingTimeout)), browser.ErrDriverTimeout)

	other := errors.New("boom")
	assert.Same(t, other, mapTimeout(other))
}

func TestEngineClose_ReportsBrowserErrors(t *testing.T) {
	e := &engine{logger: zaptest.NewLogger(t), browsers: make(map[*cdpBrowser]struct{})}
	// A context chromedp never saw makes Cancel fail.
	ctx, cancel := context.WithCancel(context.Background())
	_, allocCancel := context.WithCancel(context.Background())
	b := &cdpBrowser{ctx: ctx, cancel: cancel, allocCancel: allocCancel, engine: e, version: "Chrome/1"}
	e.browsers[b] = struct{}{}

	err := e.Close()
	assert.ErrorIs(t, err, chromedp.ErrInvalidContext)
	assert.ErrorContains(t, err, "close browser Chrome/1")
	assert.Empty(t, e.browsers)
	assert.Error(t, ctx.Err(), "the browser context is cancelled regardless")

	assert.NoError(t, e.Close(), "nothing left to close")
}

func TestLaunch_RejectsNonChromium(t *testing.T) {
	engine, err := New(zaptest.NewLogger(t)).Start(context.Background())
	require.NoError(t, err)
	defer engine.Close()

	for _, v := range []browser.Variant{browser.Firefox, browser.WebKit} {
		_, err := engine.Launch(context.Background(), v, browser.LaunchOptions{Headless: true})
		assert.ErrorIs(t, err, browser.ErrUnsupportedVariant, "variant %s", v)
	}
}

func TestStateScriptsCoverEveryState(t *testing.T) {
	for _, s := range []browser.ElementState{browser.StateVisible, browser.StateHidden, browser.StateAttached, browser.StateDetached} {
		assert.Contains(t, stateScripts, s)
	}
}

const e2ePage = `<!doctype html>
<html><body>
  <input id="user" />
  <button id="submit" onclick="document.getElementById('done').hidden = false">Go</button>
  <div id="overlay" style="position:fixed;inset:0;background:rgba(0,0,0,.4)"></div>
  <p id="done" hidden>Submitted</p>
  <script>setTimeout(() => document.getElementById('overlay').remove(), 250)</script>
</body></html>`

// TestE2E_Chromium needs a local chrome; it only runs when UIHARNESS_E2E is set.
func TestE2E_Chromium(t *testing.T) {
	if os.Getenv("UIHARNESS_E2E") == "" {
		t.Skip("set UIHARNESS_E2E=1 to run browser tests")
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, e2ePage)
	}))
	defer srv.Close()

	logger := zaptest.NewLogger(t)
	reg := session.NewRegistry(New(logger),
		session.WithLaunchOptions(browser.LaunchOptions{Headless: true, Timeout: time.Minute}),
		session.WithRegistryLogger(logger))
	defer reg.ReleaseAll()

	ctx := context.Background()
	page, err := reg.GetPage(ctx, t.Name())
	require.NoError(t, err)

	exec := interact.New(page, interact.WithLogger(logger))
	require.NoError(t, exec.Navigate(ctx, srv.URL))
	require.NoError(t, exec.Click(ctx, "#submit"), "the overlay is gone before the retry budget is spent")

	require.NoError(t, exec.Type(ctx, "#user", ""))
	require.NoError(t, exec.Type(ctx, "#user", "abc"))

	text, err := exec.ReadText(ctx, "#done")
	require.NoError(t, err)
	assert.Equal(t, "Submitted", text)

	shot, err := page.Screenshot(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, shot)
}
