package scheduler_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cirocosta/rabbitmq-exporter/pkg/scheduler"
)

type countingRefresher struct {
	calls atomic.Int64
	done  chan struct{}
}

func newCountingRefresher() *countingRefresher {
	return &countingRefresher{done: make(chan struct{}, 16)}
}

func (r *countingRefresher) Refresh(_ context.Context) {
	r.calls.Add(1)
	r.done <- struct{}{}
}

// slowRefresher advances the fake clock past the interval while
// refreshing, simulating a cycle that overruns.
type slowRefresher struct {
	*countingRefresher
	clock *clockwork.FakeClock
	by    time.Duration
}

func (r *slowRefresher) Refresh(ctx context.Context) {
	r.clock.Advance(r.by)
	r.countingRefresher.Refresh(ctx)
}

func waitRefresh(t *testing.T, r *countingRefresher) {
	t.Helper()

	select {
	case <-r.done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for refresh")
	}
}

func assertNoRefresh(t *testing.T, r *countingRefresher) {
	t.Helper()

	select {
	case <-r.done:
		t.Fatal("unexpected refresh")
	case <-time.After(50 * time.Millisecond):
	}
}

func run(ctx context.Context, loop *scheduler.Loop) <-chan error {
	errC := make(chan error, 1)

	go func() {
		errC <- loop.Run(ctx)
	}()

	return errC
}

func TestNew_RejectsNonPositiveInterval(t *testing.T) {
	for _, interval := range []time.Duration{0, -time.Second} {
		_, err := scheduler.New(newCountingRefresher(), interval)
		assert.Error(t, err)
	}
}

func TestLoop_RefreshesImmediatelyThenEveryInterval(t *testing.T) {
	const interval = 30 * time.Second

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := clockwork.NewFakeClock()
	refresher := newCountingRefresher()

	loop, err := scheduler.New(refresher, interval, scheduler.WithClock(clock))
	require.NoError(t, err)

	errC := run(ctx, loop)

	waitRefresh(t, refresher)

	for i := 0; i < 3; i++ {
		require.NoError(t, clock.BlockUntilContext(ctx, 1))

		clock.Advance(interval - time.Second)
		assertNoRefresh(t, refresher)

		clock.Advance(time.Second)
		waitRefresh(t, refresher)
	}

	assert.EqualValues(t, 4, refresher.calls.Load())

	cancel()

	select {
	case err := <-errC:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not stop")
	}
}

func TestLoop_OverrunningCycleWaitsFullIntervalAfterward(t *testing.T) {
	const interval = 10 * time.Second

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := clockwork.NewFakeClock()
	refresher := &slowRefresher{
		countingRefresher: newCountingRefresher(),
		clock:             clock,
		by:                3 * interval,
	}

	loop, err := scheduler.New(refresher, interval, scheduler.WithClock(clock))
	require.NoError(t, err)

	_ = run(ctx, loop)

	waitRefresh(t, refresher.countingRefresher)

	// the overrun doesn't trigger catch-up cycles: the next one still
	// needs the full interval to elapse.
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	assertNoRefresh(t, refresher.countingRefresher)

	clock.Advance(interval)
	waitRefresh(t, refresher.countingRefresher)

	assert.EqualValues(t, 2, refresher.calls.Load())
}

func TestLoop_StopsWhenContextIsCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	clock := clockwork.NewFakeClock()
	refresher := newCountingRefresher()

	loop, err := scheduler.New(refresher, time.Minute, scheduler.WithClock(clock))
	require.NoError(t, err)

	errC := run(ctx, loop)
	waitRefresh(t, refresher)

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	cancel()

	select {
	case err := <-errC:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not stop")
	}

	assert.EqualValues(t, 1, refresher.calls.Load())
}
