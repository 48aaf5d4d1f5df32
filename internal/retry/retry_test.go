package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// recordingSleeper captures every requested backoff without sleeping.
type recordingSleeper struct {
	calls []time.Duration
	err   error
}

func (r *recordingSleeper) sleep(_ context.Context, d time.Duration) error {
	r.calls = append(r.calls, d)
	return r.err
}

// failing returns an op that fails n times before succeeding.
func failing(n int, errs *[]error) Operation {
	return func(_ context.Context, attempt int) error {
		if attempt <= n {
			err := fmt.Errorf("attempt %d failed", attempt)
			*errs = append(*errs, err)
			return err
		}
		return nil
	}
}

func TestDo(t *testing.T) {
	policy := Policy{MaxAttempts: 3, Backoff: 200 * time.Millisecond}

	t.Run("succeeds on third attempt with two backoffs", func(t *testing.T) {
		var errs []error
		s := &recordingSleeper{}

		res := Do(context.Background(), policy, s.sleep, failing(2, &errs))

		require.NoError(t, res.Err)
		assert.Equal(t, 3, res.Attempts)
		assert.Equal(t, []time.Duration{200 * time.Millisecond, 200 * time.Millisecond}, s.calls)
	})

	t.Run("returns the last cause unchanged when exhausted", func(t *testing.T) {
		var errs []error
		s := &recordingSleeper{}

		res := Do(context.Background(), policy, s.sleep, failing(10, &errs))

		require.Error(t, res.Err)
		assert.Equal(t, 3, res.Attempts)
		require.Len(t, errs, 3)
		assert.Same(t, errs[2], res.Err)
		assert.Len(t, s.calls, 2, "no backoff after the final attempt")
	})

	t.Run("stop short-circuits and unwraps", func(t *testing.T) {
		cause := errors.New("closed")
		calls := 0
		res := Do(context.Background(), policy, (&recordingSleeper{}).sleep, func(context.Context, int) error {
			calls++
			return Stop(cause)
		})

		assert.Equal(t, 1, calls)
		assert.Same(t, cause, res.Err)
	})

	t.Run("context cancelled during backoff", func(t *testing.T) {
		cause := errors.New("flaky")
		s := &recordingSleeper{err: context.Canceled}

		res := Do(context.Background(), policy, s.sleep, func(context.Context, int) error { return cause })

		assert.Equal(t, 1, res.Attempts)
		assert.ErrorIs(t, res.Err, cause)
		assert.ErrorIs(t, res.Err, context.Canceled)
	})

	t.Run("zero attempts still runs once", func(t *testing.T) {
		calls := 0
		res := Do(context.Background(), Policy{}, nil, func(context.Context, int) error {
			calls++
			return nil
		})
		require.NoError(t, res.Err)
		assert.Equal(t, 1, calls)
	})
}

func TestDo_Properties(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		maxAttempts := rapid.IntRange(1, 8).Draw(rt, "maxAttempts")
		failures := rapid.IntRange(0, 12).Draw(rt, "failures")
		backoff := time.Duration(rapid.IntRange(0, 500).Draw(rt, "backoffMs")) * time.Millisecond

		var errs []error
		s := &recordingSleeper{}
		res := Do(context.Background(), Policy{MaxAttempts: maxAttempts, Backoff: backoff}, s.sleep, failing(failures, &errs))

		wantAttempts := min(failures+1, maxAttempts)
		if res.Attempts != wantAttempts {
			rt.Fatalf("attempts = %d, want %d", res.Attempts, wantAttempts)
		}
		if len(s.calls) != wantAttempts-1 {
			rt.Fatalf("backoffs = %d, want %d", len(s.calls), wantAttempts-1)
		}
		for _, d := range s.calls {
			if d != backoff {
				rt.Fatalf("backoff = %s, want %s", d, backoff)
			}
		}
		succeeded := failures < maxAttempts
		if succeeded != (res.Err == nil) {
			rt.Fatalf("succeeded = %v but err = %v", succeeded, res.Err)
		}
		if !succeeded && res.Err != errs[len(errs)-1] {
			rt.Fatalf("err = %v, want last cause %v", res.Err, errs[len(errs)-1])
		}
	})
}

func TestPolicyValidate(t *testing.T) {
	assert.NoError(t, DefaultPolicy().Validate())
	assert.Error(t, Policy{MaxAttempts: 0}.Validate())
	assert.Error(t, Policy{MaxAttempts: 1, Backoff: -time.Second}.Validate())
}

func TestSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
	assert.NoError(t, Sleep(context.Background(), time.Millisecond))
}
