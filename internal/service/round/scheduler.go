package round

import (
	"sync"
	"time"

	"github.com/coder/quartz"
)

// Scheduler fires one callback per round at its deadline. Rescheduling a
// round replaces its pending timer; a replaced timer that has already begun
// firing notices it lost the slot and does nothing. The injected clock keeps
// deadline behavior testable without real sleeps.
type Scheduler struct {
	clock  quartz.Clock
	mu     sync.Mutex
	timers map[int64]*quartz.Timer
}

func NewScheduler(clock quartz.Clock) *Scheduler {
	return &Scheduler{
		clock:  clock,
		timers: make(map[int64]*quartz.Timer),
	}
}

// ScheduleAt arranges for fn to run once at the given time. A deadline that
// is already past runs fn on a fresh goroutine immediately, which covers
// rounds whose deadline elapsed while the process was down.
func (s *Scheduler) ScheduleAt(roundID int64, at time.Time, fn func()) {
	s.mu.Lock()
	if prev, ok := s.timers[roundID]; ok {
		prev.Stop()
		delete(s.timers, roundID)
	}

	d := at.Sub(s.clock.Now())
	if d <= 0 {
		s.mu.Unlock()
		go fn()
		return
	}

	var timer *quartz.Timer
	timer = s.clock.AfterFunc(d, func() {
		s.mu.Lock()
		current, ok := s.timers[roundID]
		if ok && current == timer {
			delete(s.timers, roundID)
		}
		s.mu.Unlock()
		if ok && current == timer {
			fn()
		}
	})
	s.timers[roundID] = timer
	s.mu.Unlock()
}

// Cancel drops any pending timer for the round.
func (s *Scheduler) Cancel(roundID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if timer, ok := s.timers[roundID]; ok {
		timer.Stop()
		delete(s.timers, roundID)
	}
}
