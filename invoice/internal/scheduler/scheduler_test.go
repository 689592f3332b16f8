package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNextAfter_SameDay(t *testing.T) {
	// WHAT: Before the firing time, the next run is that time today.
	loc := time.UTC
	now := time.Date(2024, 3, 10, 7, 30, 0, 0, loc)
	next := NextAfter(now, 9, 0, loc)
	want := time.Date(2024, 3, 10, 9, 0, 0, 0, loc)
	if !next.Equal(want) {
		t.Errorf("got %v, want %v", next, want)
	}
}

func TestNextAfter_RollsToTomorrow(t *testing.T) {
	// WHAT: At or past the firing time, the next run rolls to tomorrow.
	loc := time.UTC
	now := time.Date(2024, 3, 10, 9, 0, 0, 0, loc)
	next := NextAfter(now, 9, 0, loc)
	want := time.Date(2024, 3, 11, 9, 0, 0, 0, loc)
	if !next.Equal(want) {
		t.Errorf("exactly at firing time: got %v, want %v", next, want)
	}

	now = time.Date(2024, 3, 10, 23, 59, 0, 0, loc)
	next = NextAfter(now, 9, 0, loc)
	if !next.Equal(want) {
		t.Errorf("late evening: got %v, want %v", next, want)
	}
}

func TestNextAfter_TimezoneConversion(t *testing.T) {
	// WHAT: The firing time is evaluated in the configured zone, not in
	// the zone of the input clock.
	berlin, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	// 08:30 UTC in winter is 09:30 Berlin, so 09:00 Berlin has passed.
	now := time.Date(2024, 1, 15, 8, 30, 0, 0, time.UTC)
	next := NextAfter(now, 9, 0, berlin)
	want := time.Date(2024, 1, 16, 9, 0, 0, 0, berlin)
	if !next.Equal(want) {
		t.Errorf("got %v, want %v", next, want)
	}
}

func TestConfig_MidnightIsValid(t *testing.T) {
	// WHAT: A configured firing time of 00:00 arms at midnight.
	// WHY: 00:00 passes send-time validation, so the zero value must not
	// be mistaken for "unset" and silently rearmed at 09:00.
	s := New(func(context.Context) {}, Config{Hour: 0, Minute: 0, Location: time.UTC}, testLogger())
	s.Start()
	defer s.Stop()

	next := s.NextRun()
	if next == nil {
		t.Fatal("next run nil after start")
	}
	if next.Hour() != 0 || next.Minute() != 0 {
		t.Errorf("configured 00:00 but next run armed at %02d:%02d", next.Hour(), next.Minute())
	}
}

func TestConfig_OutOfRangeFallsBackToNine(t *testing.T) {
	s := New(func(context.Context) {}, Config{Hour: -1, Location: time.UTC}, testLogger())
	s.Start()
	defer s.Stop()

	next := s.NextRun()
	if next == nil || next.Hour() != 9 || next.Minute() != 0 {
		t.Errorf("next run = %v, want 09:00", next)
	}
}

func TestStartStop_Idempotent(t *testing.T) {
	s := New(func(context.Context) {}, Config{Hour: 9, Location: time.UTC}, testLogger())

	if s.Running() {
		t.Fatal("running before start")
	}
	if s.NextRun() != nil {
		t.Fatal("next run set before start")
	}

	s.Start()
	s.Start()
	if !s.Running() {
		t.Fatal("not running after start")
	}
	next := s.NextRun()
	if next == nil || !next.After(time.Now()) {
		t.Fatalf("next run = %v", next)
	}

	s.Stop()
	s.Stop()
	if s.Running() {
		t.Fatal("running after stop")
	}
	if s.NextRun() != nil {
		t.Fatal("next run set after stop")
	}
}

func TestReschedule_UpdatesNextRun(t *testing.T) {
	s := New(func(context.Context) {}, Config{Hour: 9, Location: time.UTC}, testLogger())
	s.Start()
	defer s.Stop()

	before := s.NextRun()
	s.Reschedule(23, 45)
	after := s.NextRun()
	if after == nil {
		t.Fatal("next run nil after reschedule")
	}
	if after.Hour() != 23 || after.Minute() != 45 {
		t.Errorf("next run = %v", after)
	}
	if before != nil && after.Equal(*before) {
		t.Error("next run unchanged by reschedule")
	}
}

func TestReschedule_StoppedIsConfigOnly(t *testing.T) {
	// WHAT: Rescheduling a stopped scheduler arms nothing.
	s := New(func(context.Context) {}, Config{Hour: 9, Location: time.UTC}, testLogger())
	s.Reschedule(10, 0)
	if s.Running() || s.NextRun() != nil {
		t.Error("reschedule started a stopped scheduler")
	}
}

func TestFire_RunsJobAndRearms(t *testing.T) {
	// WHAT: A firing runs the job and schedules the next day.
	var calls atomic.Int32
	s := New(func(context.Context) { calls.Add(1) }, Config{Hour: 9, Location: time.UTC}, testLogger())
	s.Start()
	defer s.Stop()

	s.fire(context.Background())
	if calls.Load() != 1 {
		t.Fatalf("calls = %d", calls.Load())
	}
	if s.NextRun() == nil {
		t.Fatal("not re-armed after firing")
	}
}

func TestFire_SupersededChainDoesNotRearm(t *testing.T) {
	// WHAT: A firing whose context was cancelled by a reschedule leaves
	// the re-arm to the replacement timer chain.
	// WHY: Otherwise an in-flight firing would keep a stale timer chain
	// alive next to the rescheduled one.
	var calls atomic.Int32
	s := New(func(context.Context) { calls.Add(1) }, Config{Hour: 9, Location: time.UTC}, testLogger())
	s.Start()
	defer s.Stop()

	s.Reschedule(23, 45)
	before := s.NextRun()

	stale, cancel := context.WithCancel(context.Background())
	cancel()
	s.fire(stale)

	if calls.Load() != 0 {
		t.Fatalf("job ran on cancelled context, calls = %d", calls.Load())
	}
	after := s.NextRun()
	if after == nil || before == nil || !after.Equal(*before) {
		t.Errorf("stale firing moved next run from %v to %v", before, after)
	}
}

func TestFire_PanicDoesNotKillSchedule(t *testing.T) {
	s := New(func(context.Context) { panic("boom") }, Config{Hour: 9, Location: time.UTC}, testLogger())
	s.Start()
	defer s.Stop()

	s.fire(context.Background())
	if !s.Running() || s.NextRun() == nil {
		t.Fatal("schedule lost after job panic")
	}
}
