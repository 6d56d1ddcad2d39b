package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockedby/outreach/internal/logger"
	"github.com/blockedby/outreach/internal/models"
)

func newTestController(job Job) *Controller {
	return New(job, logger.Get())
}

func TestController_StartStop(t *testing.T) {
	c := newTestController(func(ctx context.Context) (models.BatchStats, error) {
		return models.BatchStats{}, nil
	})

	assert.Equal(t, StateIdle, c.Status().State)

	require.NoError(t, c.Start(time.Minute))
	st := c.Status()
	assert.Equal(t, StateRunning, st.State)
	assert.Equal(t, time.Minute, st.Interval)
	assert.False(t, st.NextRun.IsZero())

	err := c.Start(time.Minute)
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	c.Stop()
	st = c.Status()
	assert.Equal(t, StateIdle, st.State)
	assert.True(t, st.NextRun.IsZero())

	// stop while idle is a no-op
	c.Stop()
	assert.Equal(t, StateIdle, c.Status().State)
}

func TestController_InvalidInterval(t *testing.T) {
	c := newTestController(func(ctx context.Context) (models.BatchStats, error) {
		return models.BatchStats{}, nil
	})

	err := c.Start(500 * time.Millisecond)
	assert.ErrorIs(t, err, ErrInvalidInterval)
	assert.Equal(t, StateIdle, c.Status().State)
}

func TestController_Fires(t *testing.T) {
	var calls atomic.Int32
	c := newTestController(func(ctx context.Context) (models.BatchStats, error) {
		calls.Add(1)
		return models.BatchStats{Total: 2, Sent: 2}, nil
	})

	require.NoError(t, c.Start(time.Second))
	defer c.Stop()

	assert.Eventually(t, func() bool { return calls.Load() >= 1 }, 5*time.Second, 50*time.Millisecond)
	assert.Eventually(t, func() bool { return c.Status().Runs >= 1 }, time.Second, 20*time.Millisecond)

	st := c.Status()
	require.NotNil(t, st.LastStats)
	assert.Equal(t, 2, st.LastStats.Sent)
	assert.False(t, st.LastRun.IsZero())
	assert.Empty(t, st.LastError)
}

func TestController_FireRecordsError(t *testing.T) {
	c := newTestController(func(ctx context.Context) (models.BatchStats, error) {
		return models.BatchStats{}, errors.New("smtp down")
	})

	c.fire()

	st := c.Status()
	assert.Equal(t, 1, st.Runs)
	assert.Equal(t, "smtp down", st.LastError)
	assert.False(t, st.InProgress)
}

func TestController_FireRecoversPanic(t *testing.T) {
	c := newTestController(func(ctx context.Context) (models.BatchStats, error) {
		panic("boom")
	})

	assert.NotPanics(t, c.fire)

	st := c.Status()
	assert.Equal(t, 1, st.Runs)
	assert.Contains(t, st.LastError, "boom")
	assert.False(t, st.InProgress)
}

func TestController_SkipsOverlappingRun(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var calls atomic.Int32

	c := newTestController(func(ctx context.Context) (models.BatchStats, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return models.BatchStats{}, nil
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.fire()
	}()
	<-started

	assert.True(t, c.Status().InProgress)
	c.fire()
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, c.Status().Skipped)

	close(release)
	wg.Wait()

	st := c.Status()
	assert.Equal(t, 1, st.Runs)
	assert.False(t, st.InProgress)
}

func TestController_StopDoesNotAbortRun(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan struct{})

	c := newTestController(func(ctx context.Context) (models.BatchStats, error) {
		close(started)
		<-release
		close(done)
		return models.BatchStats{Sent: 1}, nil
	})

	require.NoError(t, c.Start(time.Minute))
	go c.fire()
	<-started

	c.Stop()
	assert.Equal(t, StateIdle, c.Status().State)
	assert.True(t, c.Status().InProgress)

	close(release)
	<-done

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, c.Wait(ctx))
	assert.Eventually(t, func() bool { return c.Status().Runs == 1 }, time.Second, 10*time.Millisecond)
}

func TestController_JobSkipCountsAsSkipped(t *testing.T) {
	c := newTestController(func(ctx context.Context) (models.BatchStats, error) {
		return models.BatchStats{}, fmt.Errorf("%w: manual batch running", ErrSkip)
	})

	c.fire()

	st := c.Status()
	assert.Equal(t, 0, st.Runs)
	assert.Equal(t, 1, st.Skipped)
	assert.Nil(t, st.LastStats)
	assert.Empty(t, st.LastError)
}
