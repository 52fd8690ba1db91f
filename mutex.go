package tickrtos

import (
	"tickrtos/arch"
	"tickrtos/internal/kassert"
)

// Mutex is a priority-ceiling mutual-exclusion primitive, grounded on
// original_source/src/PriorityMutex.hpp's three-tier scheme (spec.md
// §4/C7, the priority table's none/P=0/P>0 rows):
//
//   - none: task-only exclusion, with no ISR priority at all — built
//     purely from a CriticalSection (see NewTaskOnlyMutex). Locking or
//     unlocking this variant from simulated ISR context is a programming
//     error, exactly as PriorityMutex.cpp asserts CortexM::ipsr()==0.
//   - ceiling == PriorityHighest (P=0): a "full lock" — every maskable
//     interrupt is disabled outright (CortexM::disableInterrupts()), not
//     merely masked down to a base-priority value, since writing 0 to
//     BASEPRI on real hardware means "masking disabled", the opposite of
//     what a full lock needs.
//   - ceiling >  PriorityHighest (P>0): a priority-raise lock — the mask
//     is raised only to the configured ceiling, so anything more urgent
//     than every possible contender for this mutex still preempts the
//     holder.
//
// Because every task that can contend for a given Mutex is known at
// construction time to run at or below the ceiling, the ceiling protocol
// guarantees Lock never actually has to block: raising the mask (or, for
// the none/full variants, taking the critical section or disabling
// interrupts outright) is sufficient to exclude every contender. Lock
// therefore has no wait queue and cannot deadlock on itself, unlike
// ConditionVariable.
type Mutex struct {
	sched    *Scheduler
	ceiling  Priority
	taskOnly bool

	locked  bool
	holder  *TaskControlBlock
	savedBP arch.IsrPriority
	full    bool
	cs      *CriticalSection
}

// NewMutex constructs a Mutex whose priority ceiling is ceiling. Use
// PriorityHighest for a full lock.
func (s *Scheduler) NewMutex(ceiling Priority) *Mutex {
	return &Mutex{sched: s, ceiling: ceiling}
}

// NewTaskOnlyMutex constructs a Mutex with no ISR priority at all: the
// spec's "none" row, implemented purely as a critical section
// (original_source/src/PriorityMutex.hpp's std::nullopt priority). An
// ISR has nothing to gain from a lock that only ever excludes tasks, so
// locking or unlocking it from simulated ISR context is a kernel contract
// violation rather than a supported configuration.
func (s *Scheduler) NewTaskOnlyMutex() *Mutex {
	return &Mutex{sched: s, taskOnly: true}
}

// Lock acquires the mutex on behalf of t, the calling task (nil if the
// caller has no task identity of its own, as with ConditionVariable's
// internal serialization lock). The mask is never lowered by Lock — if it
// is already raised above (numerically below) this mutex's ceiling by an
// enclosing lock or critical section, Lock leaves it alone, so nested
// locks can never accidentally weaken an outer one's protection.
func (m *Mutex) Lock(t *TaskControlBlock) {
	if m.taskOnly {
		_, inHandler := m.sched.ctrl.CurrentPriority()
		kassert.That(!inHandler, "task-only Mutex locked from simulated ISR context")
		cs := m.sched.EnterCritical()

		m.sched.mu.Lock()
		m.cs = cs
		m.locked = true
		m.holder = t
		m.sched.hooksImpl.MutexStoredForTask(t)
		m.sched.mu.Unlock()
		return
	}

	m.sched.mu.Lock()
	defer m.sched.mu.Unlock()

	m.full = m.ceiling == PriorityHighest
	if m.full {
		m.sched.ctrl.DisableInterrupts()
		m.locked = true
		m.holder = t
		m.sched.hooksImpl.EnterFullLock()
		m.sched.hooksImpl.MutexStoredForTask(t)
		return
	}

	target := m.sched.priorityToIsr(m.ceiling)
	current := m.sched.ctrl.BasePriority()
	m.savedBP = current
	if target < current {
		m.sched.ctrl.SetBasePriority(target)
	}

	m.locked = true
	m.holder = t
	m.sched.hooksImpl.EnterPriorityLock(target.Value())
	m.sched.hooksImpl.MutexStoredForTask(t)
}

// Unlock restores the base-priority mask (or PRIMASK, or the critical
// section) to what it was before the matching Lock.
func (m *Mutex) Unlock() {
	if m.taskOnly {
		_, inHandler := m.sched.ctrl.CurrentPriority()
		kassert.That(!inHandler, "task-only Mutex unlocked from simulated ISR context")
	}
	m.sched.mu.Lock()
	defer m.sched.mu.Unlock()
	m.unlockLocked()
}

// unlockLocked is Unlock's body for callers that already hold sched.mu
// (ConditionVariable.waitCommon, which must release the mutex and
// suspend the task atomically). The taskOnly branch restores the mask
// inline rather than calling CriticalSection.Release, since Release locks
// sched.mu itself and this method is always entered with sched.mu already
// held.
func (m *Mutex) unlockLocked() {
	kassert.That(m.locked, "Unlock called on a mutex that is not held")
	switch {
	case m.taskOnly:
		if m.cs != nil && !m.cs.released {
			m.cs.released = true
			m.sched.criticalActive = false
			m.sched.ctrl.SetBasePriority(m.cs.prev)
			m.sched.hooksImpl.ExitCriticalSection()
		}
		m.cs = nil
	case m.full:
		m.sched.ctrl.EnableInterrupts()
		m.sched.hooksImpl.ExitFullLock()
	default:
		m.sched.ctrl.SetBasePriority(m.savedBP)
		m.sched.hooksImpl.ExitPriorityLock()
	}
	if m.holder != nil {
		m.sched.hooksImpl.MutexRestoredForTask(m.holder)
	}
	m.locked = false
	m.holder = nil
}

// isrCeiling reports the IsrPriority this Mutex's lock ultimately masks
// down to (the highest priority for a full lock, the kernel's own
// service-call priority for a task-only lock). ConditionVariable uses
// this to validate a notifying ISR's priority against its internal
// serialization mutex, per ConditionVariable.cpp's notify_one/notify_all
// preconditions.
func (m *Mutex) isrCeiling(s *Scheduler) arch.IsrPriority {
	switch {
	case m.taskOnly:
		return s.cfg.ServiceCallPriority()
	case m.ceiling == PriorityHighest:
		return arch.HighestPriority
	default:
		return s.priorityToIsr(m.ceiling)
	}
}
