package cron

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestSchedulerFiresRegisteredJob(t *testing.T) {
	s := New(10 * time.Millisecond)
	defer s.Stop()

	var count int32
	if err := s.Register("test-job", 20*time.Millisecond, func() {
		atomic.AddInt32(&count, 1)
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	if atomic.LoadInt32(&count) == 0 {
		t.Fatal("expected job to have fired at least once")
	}
}

func TestUnregisterStopsJob(t *testing.T) {
	s := New(10 * time.Millisecond)
	defer s.Stop()

	var count int32
	_ = s.Register("test-job", 10*time.Millisecond, func() {
		atomic.AddInt32(&count, 1)
	})

	time.Sleep(30 * time.Millisecond)
	s.Unregister("test-job")
	after := atomic.LoadInt32(&count)

	time.Sleep(50 * time.Millisecond)
	if atomic.LoadInt32(&count) != after {
		t.Fatalf("expected no further fires after Unregister, before=%d after=%d", after, atomic.LoadInt32(&count))
	}
}

func TestRegisterRejectsNonPositiveInterval(t *testing.T) {
	s := New(10 * time.Millisecond)
	defer s.Stop()

	if err := s.Register("bad", 0, func() {}); err == nil {
		t.Fatal("expected error for zero interval")
	}
}
