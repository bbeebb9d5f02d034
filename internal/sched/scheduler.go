package sched

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Scheduler arms one-shot deferred actions keyed by an opaque token.
// Scheduling an already-armed token replaces the pending action. Actions run
// on their own goroutine; a panicking action is logged and dropped, never
// propagated to whoever armed it.
type Scheduler struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
}

func New() *Scheduler {
	return &Scheduler{
		timers: map[string]*time.Timer{},
	}
}

func (s *Scheduler) Schedule(delay time.Duration, token string, action func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if timer, ok := s.timers[token]; ok {
		timer.Stop()
	}
	s.timers[token] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, token)
		s.mu.Unlock()

		defer func() {
			if r := recover(); r != nil {
				log.WithFields(log.Fields{
					"token": token,
					"panic": r,
				}).Error("scheduled action panicked")
			}
		}()
		action()
	})
}

// Cancel is best-effort: an action that has already started running is not
// interrupted. Callers must keep their actions no-ops against resolved state.
func (s *Scheduler) Cancel(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if timer, ok := s.timers[token]; ok {
		timer.Stop()
		delete(s.timers, token)
	}
}

func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}
