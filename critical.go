package tickrtos

import "tickrtos/arch"

// CriticalSection is a held kernel-level lock that masks every exception
// at or below the kernel's own priority, grounded on
// original_source/src/Scheduler.hpp's enterCritical/exitCritical pair. In
// C++ that pair is RAII; Go has no destructor, so the caller must call
// Release explicitly — typically via defer, which gives the same
// exception-safety guarantee a destructor would.
//
// A CriticalSection is single-use: only the goroutine that entered it may
// release it, and releasing it more than once is a no-op rather than a
// double-unmask, mirroring the original's "first (and only) valid holder"
// contract. Only one CriticalSection may be active at a time scheduler-wide;
// a nested EnterCritical call still returns a handle (so callers never need
// a nil check) but that handle is already marked released, so its Release
// is a no-op and the first holder remains the only one that actually
// controls the mask.
type CriticalSection struct {
	sched    *Scheduler
	prev     arch.IsrPriority
	released bool
}

// EnterCritical raises the controller's base-priority mask to the
// kernel's service-call level, preventing any task-level code or
// lower-priority exception from running until Release is called.
func (s *Scheduler) EnterCritical() *CriticalSection {
	s.mu.Lock()
	if s.criticalActive {
		s.mu.Unlock()
		return &CriticalSection{sched: s, released: true}
	}
	s.criticalActive = true
	s.mu.Unlock()

	prev := s.ctrl.SetBasePriority(s.cfg.ServiceCallPriority())
	s.hooksImpl.EnterCriticalSection()
	return &CriticalSection{sched: s, prev: prev}
}

// Release restores the base-priority mask to what it was before Enter. A
// second call, or a call on an already-invalid nested handle, is a no-op.
func (cs *CriticalSection) Release() {
	if cs.released {
		return
	}
	cs.released = true
	cs.sched.mu.Lock()
	cs.sched.criticalActive = false
	cs.sched.mu.Unlock()
	cs.sched.ctrl.SetBasePriority(cs.prev)
	cs.sched.hooksImpl.ExitCriticalSection()
}
