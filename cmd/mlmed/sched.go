//go:build linux
// +build linux

package main

import (
	"sync"
	"time"

	"github.com/boxwifi/mlme/mlme"
)

type timerFired struct {
	id mlme.EventID
	ev mlme.TimedEvent
}

// scheduler implements mlme.Scheduler on time.AfterFunc. Fired timers
// are funneled into a channel so the event loop remains the only
// goroutine touching the MLME; a canceled timer that already fired is
// suppressed here and, failing that, by the MLME's ID checks.
type scheduler struct {
	mu     sync.Mutex
	nextID mlme.EventID
	timers map[mlme.EventID]*time.Timer
	c      chan timerFired
}

func newScheduler() *scheduler {
	return &scheduler{
		timers: make(map[mlme.EventID]*time.Timer),
		c:      make(chan timerFired, 16),
	}
}

// C is the stream of fired timers for the event loop.
func (s *scheduler) C() <-chan timerFired { return s.c }

func (s *scheduler) Schedule(d time.Duration, ev mlme.TimedEvent) mlme.EventID {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.timers[id] = time.AfterFunc(d, func() { s.fire(id, ev) })
	s.mu.Unlock()
	return id
}

func (s *scheduler) Cancel(id mlme.EventID) {
	s.mu.Lock()
	if t, ok := s.timers[id]; ok {
		t.Stop()
		delete(s.timers, id)
	}
	s.mu.Unlock()
}

func (s *scheduler) fire(id mlme.EventID, ev mlme.TimedEvent) {
	s.mu.Lock()
	_, live := s.timers[id]
	delete(s.timers, id)
	s.mu.Unlock()
	if live {
		s.c <- timerFired{id: id, ev: ev}
	}
}
