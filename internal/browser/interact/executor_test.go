package interact

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/uiharness/internal/browser"
	"github.com/xkilldash9x/uiharness/internal/browser/browsertest"
	"github.com/xkilldash9x/uiharness/internal/mocks"
	"github.com/xkilldash9x/uiharness/internal/retry"
)

// -- Test Helpers --

type countingRecorder struct {
	mu       sync.Mutex
	attempts map[string]int
	failures map[string]int
	timeouts map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{attempts: map[string]int{}, failures: map[string]int{}, timeouts: map[string]int{}}
}

func (r *countingRecorder) ActionAttempted(a string) { r.mu.Lock(); r.attempts[a]++; r.mu.Unlock() }
func (r *countingRecorder) ActionFailed(a string)    { r.mu.Lock(); r.failures[a]++; r.mu.Unlock() }
func (r *countingRecorder) WaitTimedOut(c string)    { r.mu.Lock(); r.timeouts[c]++; r.mu.Unlock() }

type sleepLog struct{ calls []time.Duration }

func (s *sleepLog) sleep(_ context.Context, d time.Duration) error {
	s.calls = append(s.calls, d)
	return nil
}

var fastTimeouts = Timeouts{Wait: 50 * time.Millisecond, Navigation: 50 * time.Millisecond, Action: 50 * time.Millisecond}

// readyPage returns a mocked page whose element waits succeed and whose
// locator for selector is loc.
func readyPage(selector string, loc *mocks.MockLocator) *mocks.MockPage {
	page := new(mocks.MockPage)
	page.On("WaitForSelector", mock.Anything, selector, browser.StateVisible, mock.Anything).Return(nil)
	page.On("WaitForSelector", mock.Anything, selector, browser.StateAttached, mock.Anything).Return(nil)
	page.On("Locator", selector).Return(loc)
	return page
}

// -- Click --

func TestClick_RetriesThenSucceeds(t *testing.T) {
	loc := new(mocks.MockLocator)
	loc.On("Click", mock.Anything, mock.Anything).Return(errors.New("detached")).Twice()
	loc.On("Click", mock.Anything, mock.Anything).Return(nil).Once()
	page := readyPage("#submit", loc)

	sleeps := &sleepLog{}
	rec := newCountingRecorder()
	exec := New(page, WithSleeper(sleeps.sleep), WithRecorder(rec))

	require.NoError(t, exec.Click(context.Background(), "#submit"))

	loc.AssertNumberOfCalls(t, "Click", 3)
	assert.Equal(t, []time.Duration{retry.DefaultBackoff, retry.DefaultBackoff}, sleeps.calls)
	assert.Equal(t, 3, rec.attempts[ActionClick])
	assert.Zero(t, rec.failures[ActionClick])
	page.AssertExpectations(t)
}

func TestClick_ExhaustedWrapsLastCause(t *testing.T) {
	first, second, last := errors.New("obscured 1"), errors.New("obscured 2"), errors.New("obscured 3")
	loc := new(mocks.MockLocator)
	loc.On("Click", mock.Anything, mock.Anything).Return(first).Once()
	loc.On("Click", mock.Anything, mock.Anything).Return(second).Once()
	loc.On("Click", mock.Anything, mock.Anything).Return(last).Once()
	page := readyPage("#submit", loc)

	rec := newCountingRecorder()
	exec := New(page, WithSleeper((&sleepLog{}).sleep), WithRecorder(rec))

	err := exec.Click(context.Background(), "#submit")

	var ie *browser.InteractionError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, ActionClick, ie.Action)
	assert.Equal(t, "#submit", ie.Selector)
	assert.Equal(t, 3, ie.Attempts)
	assert.Same(t, last, ie.Err)
	assert.ErrorIs(t, err, last)
	assert.NotErrorIs(t, err, first)
	assert.Equal(t, 1, rec.failures[ActionClick])
}

func TestClick_HonoursConfiguredPolicy(t *testing.T) {
	loc := new(mocks.MockLocator)
	loc.On("Click", mock.Anything, mock.Anything).Return(errors.New("nope"))
	page := readyPage("#a", loc)

	sleeps := &sleepLog{}
	exec := New(page, WithPolicy(retry.Policy{MaxAttempts: 5, Backoff: 10 * time.Millisecond}), WithSleeper(sleeps.sleep))

	err := exec.Click(context.Background(), "#a")
	var ie *browser.InteractionError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, 5, ie.Attempts)
	assert.Len(t, sleeps.calls, 4)
}

func TestClick_WaitsBeforeAttempting(t *testing.T) {
	page := browsertest.NewPage()
	page.Set("#hidden", browsertest.Element{Visible: false})
	rec := newCountingRecorder()
	exec := New(page, WithTimeouts(fastTimeouts), WithRecorder(rec))

	err := exec.Click(context.Background(), "#hidden")

	var te *browser.TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "visible", te.Condition)
	assert.Zero(t, rec.attempts[ActionClick], "no click is attempted before the element is ready")
	assert.Equal(t, 1, rec.timeouts["visible"])
}

func TestClick_HandleClosedIsNotRetried(t *testing.T) {
	page := browsertest.NewPage()
	page.Set("#submit", browsertest.Element{Visible: true, ClickErrs: []error{browser.ErrHandleClosed}})
	sleeps := &sleepLog{}
	exec := New(page, WithSleeper(sleeps.sleep))

	err := exec.Click(context.Background(), "#submit")
	require.ErrorIs(t, err, browser.ErrHandleClosed)
	var ie *browser.InteractionError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, 1, ie.Attempts)
	assert.Empty(t, sleeps.calls)
}

func TestClick_AbsorbsTransientOverlay(t *testing.T) {
	page := browsertest.NewPage()
	page.Set("#submit", browsertest.Element{
		Visible:       true,
		ObscuredUntil: time.Now().Add(250 * time.Millisecond),
	})
	rec := newCountingRecorder()
	// Real backoff: 200ms between attempts outlasts the 250ms overlay by the third try.
	exec := New(page, WithRecorder(rec))

	require.NoError(t, exec.Click(context.Background(), "#submit"))

	el, ok := page.Element("#submit")
	require.True(t, ok)
	assert.Equal(t, 1, el.Clicks)
	assert.LessOrEqual(t, rec.attempts[ActionClick], retry.DefaultMaxAttempts)
	assert.GreaterOrEqual(t, rec.attempts[ActionClick], 2)
}

// -- Type --

func TestType_ReplacesPreviousValue(t *testing.T) {
	page := browsertest.NewPage()
	page.Set("#user", browsertest.Element{Visible: true})
	exec := New(page, WithTimeouts(fastTimeouts))
	ctx := context.Background()

	require.NoError(t, exec.Type(ctx, "#user", ""))
	require.NoError(t, exec.Type(ctx, "#user", "abc"))

	el, _ := page.Element("#user")
	assert.Equal(t, "abc", el.Value)
	assert.Equal(t, 2, el.Fills)
	assert.Zero(t, el.Keystrokes, "type fills atomically")

	require.NoError(t, exec.Type(ctx, "#user", "xyz"))
	el, _ = page.Element("#user")
	assert.Equal(t, "xyz", el.Value)
}

func TestTypeSequentially(t *testing.T) {
	page := browsertest.NewPage()
	page.Set("#search", browsertest.Element{Visible: true, Value: "old"})
	exec := New(page, WithTimeouts(fastTimeouts))

	require.NoError(t, exec.TypeSequentially(context.Background(), "#search", "shoe"))

	el, _ := page.Element("#search")
	assert.Equal(t, "shoe", el.Value)
	assert.Equal(t, 4, el.Keystrokes)
}

func TestType_FillFailure(t *testing.T) {
	cause := errors.New("readonly")
	loc := new(mocks.MockLocator)
	loc.On("Clear", mock.Anything, mock.Anything).Return(nil)
	loc.On("Fill", mock.Anything, "abc", mock.Anything).Return(cause)
	page := readyPage("#user", loc)

	err := New(page).Type(context.Background(), "#user", "abc")
	var ie *browser.InteractionError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, ActionType, ie.Action)
	assert.ErrorIs(t, err, cause)
}

// -- ReadText --

func TestReadText(t *testing.T) {
	page := browsertest.NewPage()
	page.Set(".title", browsertest.Element{Visible: true, Text: "Products"})
	exec := New(page, WithTimeouts(fastTimeouts))
	ctx := context.Background()

	text, err := exec.ReadText(ctx, ".title")
	require.NoError(t, err)
	assert.Equal(t, "Products", text)

	_, err = exec.ReadText(ctx, ".missing")
	var nf *browser.ElementNotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, ".missing", nf.Selector)
	assert.ErrorAs(t, err, new(*browser.TimeoutError))
}

func TestReadText_UnresolvedTarget(t *testing.T) {
	loc := new(mocks.MockLocator)
	loc.On("InnerText", mock.Anything, mock.Anything).Return("", browser.ErrElementNotFound)
	page := new(mocks.MockPage)
	page.On("WaitForSelector", mock.Anything, "#gone", browser.StateVisible, mock.Anything).Return(nil)
	page.On("Locator", "#gone").Return(loc)

	_, err := New(page).ReadText(context.Background(), "#gone")
	assert.ErrorAs(t, err, new(*browser.ElementNotFoundError))
}

func TestReadText_ClosedPage(t *testing.T) {
	page := browsertest.NewPage()
	require.NoError(t, page.Close())

	_, err := New(page, WithTimeouts(fastTimeouts)).ReadText(context.Background(), ".title")
	assert.ErrorIs(t, err, browser.ErrHandleClosed)
	assert.False(t, errors.As(err, new(*browser.ElementNotFoundError)))
}

func TestReadValue(t *testing.T) {
	page := browsertest.NewPage()
	page.Set("#zip", browsertest.Element{Visible: true})
	page.Set("#token", browsertest.Element{Visible: false, Value: "abc123"})
	exec := New(page, WithTimeouts(fastTimeouts))
	ctx := context.Background()

	require.NoError(t, exec.Type(ctx, "#zip", "3000"))
	value, err := exec.ReadValue(ctx, "#zip")
	require.NoError(t, err)
	assert.Equal(t, "3000", value)

	value, err = exec.ReadValue(ctx, "#token")
	require.NoError(t, err)
	assert.Equal(t, "abc123", value, "hidden fields are read too")

	_, err = exec.ReadValue(ctx, "#missing")
	var nf *browser.ElementNotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "#missing", nf.Selector)
}

func TestReadValue_DriverFailure(t *testing.T) {
	loc := new(mocks.MockLocator)
	loc.On("InputValue", mock.Anything, fastTimeouts.Action).Return("", errors.New("not an input"))
	page := new(mocks.MockPage)
	page.On("WaitForSelector", mock.Anything, "h1", browser.StateAttached, mock.Anything).Return(nil)
	page.On("Locator", "h1").Return(loc)

	_, err := New(page, WithTimeouts(fastTimeouts)).ReadValue(context.Background(), "h1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `read_value "h1": not an input`)
	assert.False(t, errors.As(err, new(*browser.ElementNotFoundError)))
	loc.AssertExpectations(t)
}

// -- Visibility --

func TestIsVisible(t *testing.T) {
	page := browsertest.NewPage()
	page.Set("#shown", browsertest.Element{Visible: true})
	page.Set("#hidden", browsertest.Element{Visible: false})
	exec := New(page)
	ctx := context.Background()

	assert.True(t, exec.IsVisible(ctx, "#shown"))
	assert.False(t, exec.IsVisible(ctx, "#hidden"))
	assert.False(t, exec.IsVisible(ctx, "#does-not-exist"))
	assert.Equal(t, NotVisible, exec.Probe(ctx, "#does-not-exist"))

	require.NoError(t, page.Close())
	assert.False(t, exec.IsVisible(ctx, "#shown"))
	assert.Equal(t, ProbeFailed, exec.Probe(ctx, "#shown"))
}

func TestIsVisible_DoesNotWait(t *testing.T) {
	page := browsertest.NewPage()
	exec := New(page, WithTimeouts(Timeouts{Wait: time.Hour, Navigation: time.Hour, Action: time.Hour}))

	start := time.Now()
	assert.False(t, exec.IsVisible(context.Background(), "#late"))
	assert.Less(t, time.Since(start), time.Second)
}

func TestProbe_HungRendererIsBounded(t *testing.T) {
	loc := new(mocks.MockLocator)
	loc.On("IsVisible", mock.Anything).
		Run(func(args mock.Arguments) {
			ctx := args.Get(0).(context.Context)
			_, ok := ctx.Deadline()
			assert.True(t, ok, "the check runs under a deadline")
			<-ctx.Done()
		}).
		Return(false, context.DeadlineExceeded)
	page := new(mocks.MockPage)
	page.On("Locator", "#frozen").Return(loc)
	exec := New(page, WithTimeouts(fastTimeouts))

	start := time.Now()
	assert.Equal(t, ProbeFailed, exec.Probe(context.Background(), "#frozen"))
	assert.Less(t, time.Since(start), time.Second)
	assert.False(t, exec.IsVisible(context.Background(), "#frozen"))
	loc.AssertExpectations(t)
}

// -- Navigate --

func TestNavigate(t *testing.T) {
	page := browsertest.NewPage()
	page.Route("https://shop.test/", func(p *browsertest.Page) {
		p.Set("#login", browsertest.Element{Visible: true})
	})
	exec := New(page, WithTimeouts(fastTimeouts))

	require.NoError(t, exec.Navigate(context.Background(), "https://shop.test/"))
	assert.Equal(t, "https://shop.test/", exec.URL())
	assert.True(t, exec.IsVisible(context.Background(), "#login"))
}

func TestNavigate_LoadTimeout(t *testing.T) {
	page := browsertest.NewPage()
	page.SetLoaded(false)
	exec := New(page, WithTimeouts(fastTimeouts))

	err := exec.Navigate(context.Background(), "https://shop.test/slow")
	var te *browser.TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "loaded", te.Condition)
}

func TestNavigate_GotoFailure(t *testing.T) {
	cause := errors.New("net::ERR_NAME_NOT_RESOLVED")
	page := browsertest.NewPage()
	page.FailGoto(cause)

	err := New(page).Navigate(context.Background(), "https://nowhere.test/")
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "navigate to https://nowhere.test/")
}
