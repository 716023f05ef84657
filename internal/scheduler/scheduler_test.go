package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shapeeat/sales-service/internal/pipeline"
	"github.com/shapeeat/sales-service/internal/types"
)

func fixedNow() time.Time { return time.Date(2024, 1, 16, 3, 0, 0, 0, time.UTC) }

func nopLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

func TestScheduledOptions(t *testing.T) {
	s := New(nil, nopLogger(), Config{LookbackDays: 2, Now: fixedNow})

	opts := s.ScheduledOptions()
	assert.Equal(t, types.SyncModeIncremental, opts.Mode)
	assert.Equal(t, "2024-01-14", opts.StartDate)
	assert.Equal(t, "2024-01-16", opts.EndDate)
	assert.NoError(t, opts.Validate())
}

func TestRunOnceRejectsConcurrentRun(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	s := New(func(ctx context.Context, _ pipeline.Options) (*pipeline.Result, error) {
		close(started)
		<-release
		return &pipeline.Result{RunID: "r1"}, nil
	}, nopLogger(), Config{Now: fixedNow})

	require.NoError(t, s.Trigger(context.Background(), s.ScheduledOptions()))
	<-started
	assert.True(t, s.Running())

	_, err := s.RunOnce(context.Background(), s.ScheduledOptions())
	assert.ErrorIs(t, err, ErrRunInProgress)
	assert.ErrorIs(t, s.Trigger(context.Background(), s.ScheduledOptions()), ErrRunInProgress)

	close(release)
	s.Stop()
	assert.False(t, s.Running())
}

func TestTriggerOutlivesCallerContext(t *testing.T) {
	var sawCancel atomic.Bool
	finished := make(chan struct{})
	s := New(func(ctx context.Context, _ pipeline.Options) (*pipeline.Result, error) {
		defer close(finished)
		time.Sleep(20 * time.Millisecond)
		sawCancel.Store(ctx.Err() != nil)
		return &pipeline.Result{}, nil
	}, nopLogger(), Config{Now: fixedNow})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Trigger(ctx, pipeline.Options{Mode: types.SyncModeIncremental}))
	cancel()
	<-finished
	s.Stop()

	assert.False(t, sawCancel.Load())
}

func TestStopCancelsTriggeredRun(t *testing.T) {
	started := make(chan struct{})
	s := New(func(ctx context.Context, _ pipeline.Options) (*pipeline.Result, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}, nopLogger(), Config{Now: fixedNow})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Trigger(ctx, s.ScheduledOptions()))
	<-started
	cancel()

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop should cancel the triggered sync")
	}
	assert.False(t, s.Running())
}

func TestStartRunsOnTicks(t *testing.T) {
	var runs atomic.Int32
	s := New(func(ctx context.Context, _ pipeline.Options) (*pipeline.Result, error) {
		if runs.Add(1) == 1 {
			return nil, errors.New("upstream down")
		}
		return &pipeline.Result{}, nil
	}, nopLogger(), Config{Interval: 10 * time.Millisecond, Now: fixedNow})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	// a failed run does not stop the loop
	require.Eventually(t, func() bool { return runs.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestStartDisabled(t *testing.T) {
	s := New(nil, nopLogger(), Config{})
	done := make(chan struct{})
	go func() {
		s.Start(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start should return when the interval is zero")
	}
}
