package stream

import (
	"sync"
	"time"
)

// Scheduler runs units of work after a delay. The fetch loop re-submits
// "fetch next batch" to it instead of calling itself.
type Scheduler interface {
	Schedule(delay time.Duration, task func())
	// Wait blocks until every scheduled task has run.
	Wait()
}

// TimerScheduler runs each task on its own goroutine once the delay expires.
type TimerScheduler struct {
	wg sync.WaitGroup
}

func NewTimerScheduler() *TimerScheduler {
	return &TimerScheduler{}
}

func (s *TimerScheduler) Schedule(delay time.Duration, task func()) {
	s.wg.Add(1)
	if delay <= 0 {
		go func() {
			defer s.wg.Done()
			task()
		}()
		return
	}
	time.AfterFunc(delay, func() {
		defer s.wg.Done()
		task()
	})
}

func (s *TimerScheduler) Wait() {
	s.wg.Wait()
}
