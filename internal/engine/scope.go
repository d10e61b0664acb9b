package engine

import (
	"context"
	"sync"
)

// Scope is the current phase of a purchase cycle.
type Scope string

const (
	ScopeBefore Scope = "before" // proposals ready, awaiting purchase
	ScopeDuring Scope = "during" // holding an open contract
	ScopeAfter  Scope = "after"  // contract settled
	ScopeStop   Scope = "stop"   // terminal, user requested
)

// Watchable scope names. Entering a scope resolves the mapped watch name
// with the mapped value: "before" stays true until the purchase happens,
// "during" stays true until settlement.
const (
	watchBefore = "before"
	watchDuring = "during"
)

// watchSlot holds at most one pending watcher and at most one stored
// signal for a watch name. The two are mutually exclusive: a signal with
// no watcher is stored, a watcher with no signal blocks.
type watchSlot struct {
	watcher chan bool
	signal  *bool
}

// deliver resolves the pending watcher, or stores the signal for the next
// Watch call. A stored signal is overwritten: only the latest transition
// matters to a late watcher.
func (s *watchSlot) deliver(value bool) {
	if s.watcher != nil {
		s.watcher <- value
		s.watcher = nil
		return
	}
	v := value
	s.signal = &v
}

// scopeMachine tracks the active scope and the two watch slots.
type scopeMachine struct {
	mu      sync.Mutex
	current Scope
	stopped bool
	before  watchSlot
	during  watchSlot
}

func newScopeMachine() *scopeMachine {
	return &scopeMachine{}
}

func (m *scopeMachine) slot(name string) *watchSlot {
	switch name {
	case watchBefore:
		return &m.before
	case watchDuring:
		return &m.during
	default:
		return nil
	}
}

// enter records a scope transition and delivers the associated watch
// resolution: before→(before,true), purchase→(before,false),
// during→(during,true), after→(during,false).
func (m *scopeMachine) enter(scope Scope) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch scope {
	case ScopeBefore:
		m.before.deliver(true)
	case ScopeDuring:
		m.during.deliver(true)
	case ScopeAfter:
		m.during.deliver(false)
	}
	m.current = scope
}

// signalPurchased resolves a waiting before-watcher with false: the
// purchase happened, the before phase is over.
func (m *scopeMachine) signalPurchased() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.before.deliver(false)
}

// stop resolves every pending watcher with false and makes all future
// Watch calls return false immediately.
func (m *scopeMachine) stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	m.current = ScopeStop
	for _, s := range []*watchSlot{&m.before, &m.during} {
		if s.watcher != nil {
			s.watcher <- false
			s.watcher = nil
		}
		s.signal = nil
	}
}

// reset re-arms the machine for a new session after a stop.
func (m *scopeMachine) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = false
	m.current = ""
	m.before = watchSlot{}
	m.during = watchSlot{}
}

// isInside reports whether the machine is currently in scope.
func (m *scopeMachine) isInside(scope Scope) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current == scope
}

// watch suspends until the named scope resolves. It returns immediately
// when a signal is stored or the machine is stopped.
func (m *scopeMachine) watch(ctx context.Context, name string) (bool, error) {
	m.mu.Lock()
	slot := m.slot(name)
	if slot == nil {
		m.mu.Unlock()
		return false, nil
	}
	if m.stopped {
		m.mu.Unlock()
		return false, nil
	}
	if slot.signal != nil {
		v := *slot.signal
		slot.signal = nil
		m.mu.Unlock()
		return v, nil
	}
	if slot.watcher != nil {
		m.mu.Unlock()
		return false, ErrWatchPending
	}
	ch := make(chan bool, 1)
	slot.watcher = ch
	m.mu.Unlock()

	select {
	case v := <-ch:
		return v, nil
	case <-ctx.Done():
		m.mu.Lock()
		if slot.watcher == ch {
			slot.watcher = nil
		}
		m.mu.Unlock()
		return false, ctx.Err()
	}
}
