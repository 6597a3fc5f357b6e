package service

import (
	"sync"
	"sync/atomic"
	"time"
)

// Task is a handle to a repeating job.
type Task interface {
	// Cancel stops the job. After Cancel returns the job is not invoked
	// again, although an invocation that was already starting may still
	// run. It is safe to call Cancel from inside the job itself.
	Cancel()
}

// Scheduler runs fn repeatedly. The first run happens right away, the
// following ones every interval.
type Scheduler interface {
	Every(interval time.Duration, fn func()) Task
}

// TickerScheduler is the Scheduler backed by time.Ticker. Runs of the same
// task never overlap: a tick that arrives while fn is still running is
// dropped.
type TickerScheduler struct{}

func NewTickerScheduler() *TickerScheduler {
	return &TickerScheduler{}
}

func (TickerScheduler) Every(interval time.Duration, fn func()) Task {
	t := &tickerTask{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go t.run(interval, fn)
	return t
}

type tickerTask struct {
	cancelled atomic.Bool
	stop      chan struct{}
	done      chan struct{}
	once      sync.Once
}

func (t *tickerTask) run(interval time.Duration, fn func()) {
	defer close(t.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if t.cancelled.Load() {
			return
		}
		fn()
		select {
		case <-t.stop:
			return
		case <-ticker.C:
		}
	}
}

func (t *tickerTask) Cancel() {
	t.once.Do(func() {
		t.cancelled.Store(true)
		close(t.stop)
	})
}

// Wait blocks until the task goroutine has returned. It must not be called
// from inside the job.
func (t *tickerTask) Wait() {
	<-t.done
}
