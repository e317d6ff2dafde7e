// Package cron runs the node's periodic background work: the storage
// eviction sweep and the custody retransmit timer are both registered jobs
// on a single shared scheduler rather than each owning a raw time.Ticker.
package cron

import (
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

type job struct {
	run      func()
	interval time.Duration
	due      time.Time
}

// Scheduler checks named, interval-based jobs from one ticking goroutine and
// starts each due job in a goroutine of its own.
type Scheduler struct {
	jobs  map[string]*job
	mutex sync.Mutex

	tick     time.Duration
	stopSyn  chan struct{}
	stopOnce sync.Once
	stopped  chan struct{}
}

// New starts a Scheduler which checks its jobs every resolution.
func New(resolution time.Duration) *Scheduler {
	s := &Scheduler{
		jobs:    make(map[string]*job),
		tick:    resolution,
		stopSyn: make(chan struct{}),
		stopped: make(chan struct{}),
	}

	go s.loop()

	return s
}

func (s *Scheduler) loop() {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	defer close(s.stopped)

	for {
		select {
		case <-s.stopSyn:
			return

		case now := <-ticker.C:
			s.fireDue(now)
		}
	}
}

func (s *Scheduler) fireDue(now time.Time) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for name, j := range s.jobs {
		if j.due.After(now) {
			continue
		}

		j.due = now.Add(j.interval)
		go j.run()

		log.WithFields(log.Fields{
			"job":      name,
			"interval": j.interval,
			"next":     j.due,
		}).Debug("cron: job fired")
	}
}

// Register adds a named, recurring job. Re-registering an existing name
// replaces it.
func (s *Scheduler) Register(name string, interval time.Duration, run func()) error {
	if interval <= 0 {
		return fmt.Errorf("cron: interval for %q must be positive", name)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.jobs[name] = &job{run: run, interval: interval, due: time.Now().Add(interval)}
	return nil
}

// Unregister removes a job by name. A no-op if it isn't registered.
func (s *Scheduler) Unregister(name string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.jobs, name)
}

// Stop halts the scheduler. Safe to call more than once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopSyn) })
	<-s.stopped
}
