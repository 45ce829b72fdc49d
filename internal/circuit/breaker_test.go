package circuit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDependency = errors.New("dependency down")

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testSettings() Settings {
	return Settings{
		FailureRateThreshold: 50,
		WindowSize:           4,
		MinimumCalls:         4,
		OpenTimeout:          10 * time.Second,
		HalfOpenMaxCalls:     2,
		CallTimeout:          time.Second,
	}
}

func fail(context.Context) error    { return errDependency }
func succeed(context.Context) error { return nil }

func TestBreaker_InitialState(t *testing.T) {
	b := New("history", testSettings())
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, "history", b.Name())
}

func TestBreaker_OpensAtFailureRate(t *testing.T) {
	b := New("history", testSettings())
	ctx := context.Background()

	// Below minimum calls the rate is not evaluated
	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, b.Execute(ctx, fail), errDependency)
	}
	assert.Equal(t, StateClosed, b.State())

	// Fourth failure: 4/4 calls failed
	assert.ErrorIs(t, b.Execute(ctx, fail), errDependency)
	assert.Equal(t, StateOpen, b.State())
}

func TestBreaker_StaysClosedBelowRate(t *testing.T) {
	b := New("history", testSettings())
	ctx := context.Background()

	require.NoError(t, b.Execute(ctx, succeed))
	require.NoError(t, b.Execute(ctx, succeed))
	require.NoError(t, b.Execute(ctx, succeed))
	assert.Error(t, b.Execute(ctx, fail))

	// 1/4 = 25% < 50%
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_SlidingWindowForgetsOldOutcomes(t *testing.T) {
	b := New("history", testSettings())
	ctx := context.Background()

	b.Execute(ctx, fail)
	b.Execute(ctx, succeed)
	b.Execute(ctx, succeed)
	b.Execute(ctx, succeed)
	assert.Equal(t, StateClosed, b.State())

	// Window is now [ok ok ok fail] after the oldest failure drops out
	b.Execute(ctx, fail)
	snap := b.Snapshot()
	assert.Equal(t, 4, snap.Calls)
	assert.Equal(t, 1, snap.Failures)

	// [ok ok fail fail] = 50% trips
	b.Execute(ctx, fail)
	assert.Equal(t, StateOpen, b.State())
}

func TestBreaker_OpenShortCircuits(t *testing.T) {
	b := New("history", testSettings())
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		b.Execute(ctx, fail)
	}
	require.Equal(t, StateOpen, b.State())

	called := false
	err := b.Execute(ctx, func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called, "dependency must not be called while open")
}

func TestBreaker_HalfOpenAfterCooldown(t *testing.T) {
	clock := newFakeClock()
	b := New("history", testSettings(), WithClock(clock.Now))
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		b.Execute(ctx, fail)
	}
	require.Equal(t, StateOpen, b.State())

	clock.Advance(9 * time.Second)
	assert.Equal(t, StateOpen, b.State())

	clock.Advance(time.Second)
	assert.Equal(t, StateHalfOpen, b.State())
}

func TestBreaker_HalfOpenClosesAfterTrialSuccesses(t *testing.T) {
	clock := newFakeClock()
	b := New("history", testSettings(), WithClock(clock.Now))
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		b.Execute(ctx, fail)
	}
	clock.Advance(10 * time.Second)

	require.NoError(t, b.Execute(ctx, succeed))
	assert.Equal(t, StateHalfOpen, b.State())

	require.NoError(t, b.Execute(ctx, succeed))
	assert.Equal(t, StateClosed, b.State())

	// Window starts clean after closing
	snap := b.Snapshot()
	assert.Equal(t, 0, snap.Calls)
}

func TestBreaker_HalfOpenReopensOnTrialFailure(t *testing.T) {
	clock := newFakeClock()
	b := New("history", testSettings(), WithClock(clock.Now))
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		b.Execute(ctx, fail)
	}
	clock.Advance(10 * time.Second)

	require.NoError(t, b.Execute(ctx, succeed))
	assert.ErrorIs(t, b.Execute(ctx, fail), errDependency)
	assert.Equal(t, StateOpen, b.State())

	// Cool-down restarts from the trial failure
	clock.Advance(5 * time.Second)
	assert.ErrorIs(t, b.Execute(ctx, succeed), ErrOpen)
}

func TestBreaker_HalfOpenLimitsTrials(t *testing.T) {
	clock := newFakeClock()
	b := New("history", testSettings(), WithClock(clock.Now))
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		b.Execute(ctx, fail)
	}
	clock.Advance(10 * time.Second)

	release := make(chan struct{})
	started := make(chan struct{}, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Execute(ctx, func(context.Context) error {
				started <- struct{}{}
				<-release
				return nil
			})
		}()
	}
	<-started
	<-started

	assert.ErrorIs(t, b.Execute(ctx, succeed), ErrTooManyTrials)

	close(release)
	wg.Wait()
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_TimeoutCountsAsFailure(t *testing.T) {
	s := testSettings()
	s.CallTimeout = 20 * time.Millisecond
	s.MinimumCalls = 1
	s.WindowSize = 1
	b := New("history", s)

	err := b.Execute(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		time.Sleep(10 * time.Millisecond)
		return nil
	})
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, StateOpen, b.State())
}

func TestBreaker_CallerCancellationIsNotAFailure(t *testing.T) {
	b := New("history", testSettings())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	for i := 0; i < 4; i++ {
		err := b.Execute(ctx, func(context.Context) error {
			calls++
			return nil
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.NotErrorIs(t, err, ErrTimeout)
	}

	assert.Zero(t, calls)
	assert.Equal(t, StateClosed, b.State())
	snap := b.Snapshot()
	assert.Equal(t, 0, snap.Calls)
	assert.Equal(t, 0, snap.Failures)
}

func TestBreaker_CancelledDuringCallIsNotAFailure(t *testing.T) {
	b := New("history", testSettings())

	for i := 0; i < 4; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		err := b.Execute(ctx, func(ctx context.Context) error {
			cancel()
			<-ctx.Done()
			return ctx.Err()
		})
		assert.ErrorIs(t, err, context.Canceled)
	}

	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, 0, b.Snapshot().Failures)
}

func TestBreaker_HalfOpenCancellationFreesTrialSlot(t *testing.T) {
	clock := newFakeClock()
	b := New("history", testSettings(), WithClock(clock.Now))
	bg := context.Background()
	for i := 0; i < 4; i++ {
		b.Execute(bg, fail)
	}
	clock.Advance(10 * time.Second)

	for i := 0; i < 2; i++ {
		ctx, cancel := context.WithCancel(bg)
		err := b.Execute(ctx, func(ctx context.Context) error {
			cancel()
			return ctx.Err()
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, StateHalfOpen, b.State())
	}

	require.NoError(t, b.Execute(bg, succeed))
	require.NoError(t, b.Execute(bg, succeed))
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_Reset(t *testing.T) {
	b := New("history", testSettings())
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		b.Execute(ctx, fail)
	}
	require.Equal(t, StateOpen, b.State())

	b.Reset()
	assert.Equal(t, StateClosed, b.State())
	assert.NoError(t, b.Execute(ctx, succeed))
}

func TestBreaker_TransitionHook(t *testing.T) {
	clock := newFakeClock()
	var mu sync.Mutex
	var seen []string
	hook := func(name string, from, to State) {
		mu.Lock()
		seen = append(seen, name+":"+from.String()+"->"+to.String())
		mu.Unlock()
	}

	b := New("history", testSettings(), WithClock(clock.Now), WithTransitionHook(hook))
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		b.Execute(ctx, fail)
	}
	clock.Advance(10 * time.Second)
	b.Execute(ctx, succeed)
	b.Execute(ctx, succeed)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		"history:closed->open",
		"history:open->half_open",
		"history:half_open->closed",
	}, seen)
}

func TestCall_UsesFallbackPerCaller(t *testing.T) {
	b := New("history", testSettings())
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		b.Execute(ctx, fail)
	}

	failing := func(context.Context) (bool, error) { return false, errDependency }

	openFallback := Call(ctx, b, failing, func(error) bool { return false })
	safeFallback := Call(ctx, b, failing, func(error) bool { return true })

	assert.False(t, openFallback)
	assert.True(t, safeFallback)
}

func TestCall_ReturnsValue(t *testing.T) {
	b := New("history", testSettings())
	v := Call(context.Background(), b, func(context.Context) (int, error) {
		return 42, nil
	}, func(error) int { return -1 })
	assert.Equal(t, 42, v)
}

func TestRegistry_SharesBreakerPerName(t *testing.T) {
	r := NewRegistry(testSettings())

	a := r.Get("transactionHistory")
	b := r.Get("transactionHistory")
	c := r.Get("other")

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		a.Execute(ctx, fail)
	}
	assert.Equal(t, StateOpen, b.State())
	assert.Equal(t, StateClosed, c.State())

	assert.True(t, r.Reset("transactionHistory"))
	assert.False(t, r.Reset("missing"))
	assert.Equal(t, StateClosed, b.State())

	snaps := r.Snapshots()
	require.Len(t, snaps, 2)
	assert.Equal(t, "other", snaps[0].Name)
	assert.Equal(t, "transactionHistory", snaps[1].Name)
}
