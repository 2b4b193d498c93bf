package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestTickerSchedulerRunsImmediatelyAndRepeats(t *testing.T) {
	t.Parallel()

	var runs atomic.Int32
	ran := make(chan struct{}, 16)
	s := NewTickerScheduler(10 * time.Millisecond)
	if err := s.Start(context.Background(), func(time.Time) {
		runs.Add(1)
		select {
		case ran <- struct{}{}:
		default:
		}
	}); err != nil {
		t.Fatalf("Start error: %v", err)
	}

	for i := 0; i < 3; i++ {
		select {
		case <-ran:
		case <-time.After(2 * time.Second):
			t.Fatalf("job ran %d times, expected at least 3", runs.Load())
		}
	}

	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop error: %v", err)
	}
	after := runs.Load()
	time.Sleep(30 * time.Millisecond)
	if runs.Load() != after {
		t.Fatalf("job kept running after Stop")
	}
}

func TestTickerSchedulerStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	s := NewTickerScheduler(time.Hour)
	if err := s.Start(ctx, func(time.Time) {}); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	done := s.Done()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not exit on cancel")
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop after cancel: %v", err)
	}
}

func TestTickerSchedulerRejectsZeroInterval(t *testing.T) {
	t.Parallel()

	if err := NewTickerScheduler(0).Start(context.Background(), func(time.Time) {}); err == nil {
		t.Fatal("expected error for zero interval")
	}
}

func TestTickerSchedulerStopWithoutStart(t *testing.T) {
	t.Parallel()

	if err := NewTickerScheduler(time.Second).Stop(context.Background()); err != nil {
		t.Fatalf("Stop error: %v", err)
	}
}
