// Package clock — Task 2.3: Injectable time source.
// The gateway's request timeouts and the reflex processor's debounce and
// drain timers all run off this interface, so tests simulate bursts and
// timeout races deterministically with Manual instead of sleeping.
package clock

import (
	"sync"
	"time"
)

// Timer is a pending single-shot callback. Stop reports whether the callback
// was prevented from running (false if it already fired or was stopped).
type Timer interface {
	Stop() bool
}

// Ticker is a repeating callback. Stop is idempotent.
type Ticker interface {
	Stop()
}

// Clock abstracts the ambient time source.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
	// AfterFunc runs fn once after d has elapsed.
	AfterFunc(d time.Duration, fn func()) Timer
	// TickFunc runs fn every d until the returned Ticker is stopped.
	TickFunc(d time.Duration, fn func()) Ticker
}

// System is the wall-clock implementation used in production.
type System struct{}

func NewSystem() System { return System{} }

func (System) Now() time.Time                  { return time.Now() }
func (System) Since(t time.Time) time.Duration { return time.Since(t) }

func (System) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

func (System) TickFunc(d time.Duration, fn func()) Ticker {
	t := &systemTicker{
		ticker: time.NewTicker(d),
		stop:   make(chan struct{}),
	}
	go func() {
		for {
			select {
			case <-t.ticker.C:
				fn()
			case <-t.stop:
				return
			}
		}
	}()
	return t
}

type systemTicker struct {
	ticker *time.Ticker
	stop   chan struct{}
	once   sync.Once
}

func (t *systemTicker) Stop() {
	t.once.Do(func() {
		t.ticker.Stop()
		close(t.stop)
	})
}
