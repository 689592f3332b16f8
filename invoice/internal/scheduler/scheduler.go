// Package scheduler fires a job once a day at a configured local time.
//
// The send time lives in runtime settings, so the scheduler supports
// rescheduling while running: Reschedule replaces the pending timer with
// one aimed at the new time.
package scheduler

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

// Job is the work executed at each firing.
type Job func(ctx context.Context)

// Config configures the daily scheduler.
type Config struct {
	// Hour and Minute are the local firing time. 00:00 is a valid
	// firing time; an out-of-range value (e.g. Hour -1) selects the
	// 09:00 default.
	Hour   int
	Minute int
	// Location is the timezone the firing time is evaluated in.
	// Default: Europe/Berlin, falling back to UTC if unavailable.
	Location *time.Location
}

func (c *Config) defaults() {
	if c.Hour < 0 || c.Hour > 23 || c.Minute < 0 || c.Minute > 59 {
		c.Hour, c.Minute = 9, 0
	}
	if c.Location == nil {
		loc, err := time.LoadLocation("Europe/Berlin")
		if err != nil {
			loc = time.UTC
		}
		c.Location = loc
	}
}

// Scheduler runs one Job daily. All methods are safe for concurrent use.
type Scheduler struct {
	job    Job
	logger *slog.Logger

	mu      sync.Mutex
	config  Config
	timer   *time.Timer
	nextRun time.Time
	running bool
	cancel  context.CancelFunc
}

// New creates a Scheduler. The job runs with a context that is cancelled
// on Stop.
func New(job Job, cfg Config, logger *slog.Logger) *Scheduler {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{job: job, config: cfg, logger: logger}
}

// NextAfter returns the next occurrence of hour:minute in loc strictly
// after now. When that time today has already passed, it is tomorrow's.
func NextAfter(now time.Time, hour, minute int, loc *time.Location) time.Time {
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if !next.After(local) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Start arms the timer for the next firing. Calling Start on a running
// scheduler is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.running = true
	s.armLocked(ctx)
	s.logger.Info("scheduler started",
		"next_run", s.nextRun.Format(time.RFC3339),
		"timezone", s.config.Location.String())
}

// Stop cancels the pending timer and the job context. Idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.cancel()
	s.nextRun = time.Time{}
	s.logger.Info("scheduler stopped")
}

// Reschedule changes the firing time and re-arms the pending timer. On a
// stopped scheduler it only updates the config; nothing is armed.
func (s *Scheduler) Reschedule(hour, minute int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config.Hour, s.config.Minute = hour, minute
	if !s.running {
		s.logger.Warn("reschedule on stopped scheduler", "hour", hour, "minute", minute)
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	old := s.cancel
	s.cancel = cancel
	old()
	s.armLocked(ctx)
	s.logger.Info("rescheduled", "next_run", s.nextRun.Format(time.RFC3339))
}

// NextRun returns the next planned firing, or nil when stopped.
func (s *Scheduler) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	t := s.nextRun
	return &t
}

// Running reports whether the scheduler is armed.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// armLocked computes the next firing and sets the timer. Caller holds mu.
func (s *Scheduler) armLocked(ctx context.Context) {
	s.nextRun = NextAfter(time.Now(), s.config.Hour, s.config.Minute, s.config.Location)
	d := time.Until(s.nextRun)
	s.timer = time.AfterFunc(d, func() { s.fire(ctx) })
}

// fire runs the job and re-arms for the next day. A panicking job is
// logged and must not kill the schedule.
func (s *Scheduler) fire(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduled job panicked",
				"panic", r, "stack", string(debug.Stack()))
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		// A cancelled context means Stop or Reschedule superseded this
		// timer chain; the replacement chain owns the re-arm.
		if s.running && ctx.Err() == nil {
			s.armLocked(ctx)
			s.logger.Info("next run scheduled", "next_run", s.nextRun.Format(time.RFC3339))
		}
	}()

	if ctx.Err() != nil {
		return
	}
	s.job(ctx)
}
