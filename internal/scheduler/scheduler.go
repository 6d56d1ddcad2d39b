// Package scheduler re-runs the dispatch workflow on a fixed interval in the
// background.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/blockedby/outreach/internal/logger"
	"github.com/blockedby/outreach/internal/models"
)

// errors
var (
	ErrAlreadyRunning  = errors.New("schedule is already running")
	ErrInvalidInterval = errors.New("schedule interval must be at least one second")
	// ErrSkip is returned by a Job that declined to run, for example because
	// a run started outside the schedule is still in progress. The firing
	// counts as skipped.
	ErrSkip = errors.New("scheduled run skipped")
)

// State is the controller state.
type State string

// Controller states.
const (
	StateIdle    State = "IDLE"
	StateRunning State = "RUNNING"
)

// Job is one dispatch run fired by the schedule.
type Job func(ctx context.Context) (models.BatchStats, error)

// Status is a snapshot of the controller.
type Status struct {
	State      State
	Interval   time.Duration
	StartedAt  time.Time
	NextRun    time.Time
	InProgress bool
	Runs       int
	Skipped    int
	LastRun    time.Time
	LastStats  *models.BatchStats
	LastError  string
}

// Controller owns the background schedule. Only one firing executes at a
// time; a firing that comes due while the previous run is still in progress
// is skipped. Stop never aborts a run in progress.
type Controller struct {
	job Job
	log *logger.Logger

	mu        sync.Mutex
	cron      *cron.Cron // nil while idle
	entry     cron.EntryID
	interval  time.Duration
	startedAt time.Time
	runs      int
	skipped   int
	lastRun   time.Time
	lastStats *models.BatchStats
	lastErr   string

	inFlight atomic.Bool
}

// New creates an idle controller for job.
func New(job Job, log *logger.Logger) *Controller {
	return &Controller{
		job: job,
		log: log.WithComponent("scheduler"),
	}
}

// Start begins firing job every interval, the first firing one interval from
// now. Returns ErrAlreadyRunning if a schedule is active.
func (c *Controller) Start(interval time.Duration) error {
	if interval < time.Second {
		return fmt.Errorf("%w: %s", ErrInvalidInterval, interval)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cron != nil {
		return ErrAlreadyRunning
	}

	cl := cronLogger{log: c.log}
	cr := cron.New(cron.WithChain(cron.SkipIfStillRunning(cl)), cron.WithLogger(cl))
	c.entry = cr.Schedule(cron.Every(interval), cron.FuncJob(c.fire))
	cr.Start()

	c.cron = cr
	c.interval = interval
	c.startedAt = time.Now()

	c.log.Info().Dur("interval", interval).Msg("schedule started")
	return nil
}

// Stop cancels future firings. A run in progress completes on its own.
// Safe to call when idle.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cron == nil {
		return
	}
	c.cron.Stop()
	c.cron = nil
	c.entry = 0

	c.log.Info().Bool("run_in_progress", c.inFlight.Load()).Msg("schedule stopped")
}

// Wait blocks until no run is in progress or ctx is done.
func (c *Controller) Wait(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for c.inFlight.Load() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// Status returns a snapshot of the controller.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{
		State:      StateIdle,
		InProgress: c.inFlight.Load(),
		Runs:       c.runs,
		Skipped:    c.skipped,
		LastRun:    c.lastRun,
		LastStats:  c.lastStats,
		LastError:  c.lastErr,
	}
	if c.cron != nil {
		st.State = StateRunning
		st.Interval = c.interval
		st.StartedAt = c.startedAt
		st.NextRun = c.cron.Entry(c.entry).Next
	}
	return st
}

// fire runs the job once unless a run is already in progress. Errors and
// panics are logged and recorded; they never stop the schedule.
func (c *Controller) fire() {
	if !c.inFlight.CompareAndSwap(false, true) {
		c.mu.Lock()
		c.skipped++
		c.mu.Unlock()
		c.log.Warn().Msg("previous run still in progress, firing skipped")
		return
	}
	defer c.inFlight.Store(false)

	started := time.Now()
	stats, err := c.runJob()

	if errors.Is(err, ErrSkip) {
		c.mu.Lock()
		c.skipped++
		c.mu.Unlock()
		c.log.Warn().Err(err).Msg("firing skipped")
		return
	}

	c.mu.Lock()
	c.runs++
	c.lastRun = started
	c.lastStats = &stats
	c.lastErr = ""
	if err != nil {
		c.lastErr = err.Error()
	}
	c.mu.Unlock()

	if err != nil {
		c.log.Error().Err(err).Msg("scheduled run failed")
		return
	}
	c.log.Info().
		Int("total", stats.Total).
		Int("sent", stats.Sent).
		Int("failed", stats.Failed).
		Int("skipped", stats.Skipped).
		Msg("scheduled run finished")
}

func (c *Controller) runJob() (stats models.BatchStats, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scheduled run panicked: %v", r)
		}
	}()
	return c.job(context.Background())
}

// cronLogger adapts the zerolog logger to cron.Logger.
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
