// Task 2.3: Step-controlled clock for tests.
package clock

import (
	"sort"
	"sync"
	"time"
)

// Manual is a Clock whose time only moves when Advance is called. Due timers
// and ticker rounds fire synchronously inside Advance, in due order, so a
// test observes a fully settled state when Advance returns.
type Manual struct {
	mu      sync.Mutex
	now     time.Time
	entries []*manualEntry
}

type manualEntry struct {
	clk     *Manual
	due     time.Time
	period  time.Duration // 0 for single-shot timers
	fn      func()
	stopped bool
}

// NewManual returns a Manual clock starting at start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) Since(t time.Time) time.Duration {
	return m.Now().Sub(t)
}

func (m *Manual) AfterFunc(d time.Duration, fn func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := &manualEntry{clk: m, due: m.now.Add(d), fn: fn}
	m.entries = append(m.entries, e)
	return manualTimer{e}
}

func (m *Manual) TickFunc(d time.Duration, fn func()) Ticker {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := &manualEntry{clk: m, due: m.now.Add(d), period: d, fn: fn}
	m.entries = append(m.entries, e)
	return manualTicker{e}
}

// Advance moves the clock forward by d, firing every timer and ticker round
// that falls due, in chronological order. Callbacks run with the clock set
// to their due instant; callbacks may schedule further timers, which also
// fire if they fall within the same advance window.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)

	for {
		e := m.nextDueLocked(target)
		if e == nil {
			break
		}
		m.now = e.due
		if e.period > 0 {
			e.due = e.due.Add(e.period)
		} else {
			e.stopped = true
		}
		fn := e.fn
		m.mu.Unlock()
		fn()
		m.mu.Lock()
	}

	m.now = target
	m.compactLocked()
	m.mu.Unlock()
}

// nextDueLocked returns the earliest live entry due at or before target.
// Insertion order breaks ties so same-instant callbacks fire in the order
// they were armed.
func (m *Manual) nextDueLocked(target time.Time) *manualEntry {
	var best *manualEntry
	for _, e := range m.entries {
		if e.stopped || e.due.After(target) {
			continue
		}
		if best == nil || e.due.Before(best.due) {
			best = e
		}
	}
	return best
}

func (m *Manual) compactLocked() {
	live := m.entries[:0]
	for _, e := range m.entries {
		if !e.stopped {
			live = append(live, e)
		}
	}
	m.entries = live
	sort.SliceStable(m.entries, func(i, j int) bool {
		return m.entries[i].due.Before(m.entries[j].due)
	})
}

// PendingTimers reports the number of live timers and tickers.
func (m *Manual) PendingTimers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.entries {
		if !e.stopped {
			n++
		}
	}
	return n
}

func (e *manualEntry) stop() bool {
	e.clk.mu.Lock()
	defer e.clk.mu.Unlock()
	was := !e.stopped
	e.stopped = true
	return was
}

// manualTimer and manualTicker adapt one entry to the Timer and Ticker
// interfaces (their Stop signatures differ).
type manualTimer struct{ e *manualEntry }

func (t manualTimer) Stop() bool { return t.e.stop() }

type manualTicker struct{ e *manualEntry }

func (t manualTicker) Stop() { t.e.stop() }
