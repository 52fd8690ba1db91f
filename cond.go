package tickrtos

import (
	"tickrtos/internal/ilist"
	"tickrtos/internal/kassert"
)

// ConditionVariable is grounded on original_source/src/ConditionVariable.hpp
// (spec.md §4/C8). Unlike Mutex, waiting here genuinely suspends the
// calling task: a waiter has no way to guarantee the condition it is
// waiting for becomes true just by masking interrupts, so it must give up
// the CPU and be woken by a notifier.
//
// Wait releases the associated Mutex and suspends the task as a single
// atomic step (both happen while the scheduler's internal lock is held),
// exactly as original_source's wait() requires: a notify that lands
// between "unlock" and "suspend" would otherwise be lost.
//
// A ConditionVariable carries its own internal Mutex (ConditionVariable.hpp's
// private m_mutex), serializing NotifyOne/NotifyAll the same way any other
// shared resource would be protected, and letting an ISR notify safely as
// long as its priority doesn't exceed that mutex's ceiling. By default the
// internal mutex is task-only (NewConditionVariable); NewConditionVariableWithCeiling
// gives it an ISR priority, enabling notification from interrupt context.
type ConditionVariable struct {
	sched   *Scheduler
	mu      *Mutex
	waiters *ilist.List[*TaskControlBlock]
}

// NewConditionVariable constructs a ConditionVariable whose notifications
// are restricted to task context (original_source's default, unspecified
// std::optional<IsrPriority> priority).
func (s *Scheduler) NewConditionVariable() *ConditionVariable {
	return newConditionVariable(s, s.NewTaskOnlyMutex())
}

// NewConditionVariableWithCeiling constructs a ConditionVariable whose
// internal serialization mutex is raised to ceiling, permitting
// NotifyOne/NotifyAll to be called from a simulated ISR running at ceiling
// or less urgent. ceiling may not be more urgent than the kernel's own
// service-call priority — original_source/src/ConditionVariable.cpp's
// notify_one/notify_all assert this invariant on every call, but it can
// only ever be true or false once, at construction, so it is checked here
// instead of on every notify.
func (s *Scheduler) NewConditionVariableWithCeiling(ceiling Priority) *ConditionVariable {
	m := s.NewMutex(ceiling)
	kassert.That(m.isrCeiling(s) >= s.cfg.ServiceCallPriority(),
		"ConditionVariable ceiling may not be more urgent than the kernel's service-call priority")
	return newConditionVariable(s, m)
}

func newConditionVariable(s *Scheduler, m *Mutex) *ConditionVariable {
	return &ConditionVariable{
		sched:   s,
		mu:      m,
		waiters: ilist.New(func(t *TaskControlBlock) *ilist.Node[*TaskControlBlock] { return &t.waitNode }),
	}
}

// Wait releases m and suspends the calling task t until a matching
// NotifyOne/NotifyAll call. It re-acquires m before returning. m may be
// nil, matching original_source/src/ConditionVariable.hpp's bare wait()
// overload — a task that needs no exclusion of its own around the
// condition it is waiting on, just the wake-up, can wait without one.
func (cv *ConditionVariable) Wait(t *TaskControlBlock, m *Mutex) {
	cv.waitCommon(t, m, nil)
	if m != nil {
		m.Lock(t)
	}
}

// WaitFor is Wait with a timeout: if no notify arrives within d, the task
// wakes on its own, and t.TimedOut reports true. A zero or negative d
// behaves like SleepFor's clamp — it expires on the very next tick rather
// than waiting forever. m may be nil, as in Wait.
func (cv *ConditionVariable) WaitFor(t *TaskControlBlock, m *Mutex, d Duration) {
	if d < 0 {
		d = 0
	}
	cv.sched.mu.Lock()
	deadline := cv.sched.now.Add(d)
	cv.sched.mu.Unlock()
	cv.WaitUntil(t, m, deadline)
}

// WaitUntil is WaitFor expressed as an absolute deadline. A deadline
// already in the past resolves as "expires on the next tick" — the same
// REDESIGN FLAGS #2 resolution SleepUntil applies. m may be nil, as in
// Wait.
func (cv *ConditionVariable) WaitUntil(t *TaskControlBlock, m *Mutex, deadline TimePoint) {
	cv.waitCommon(t, m, &deadline)
	if m != nil {
		m.Lock(t)
	}
}

func (cv *ConditionVariable) waitCommon(t *TaskControlBlock, m *Mutex, deadline *TimePoint) {
	s := cv.sched
	_, inHandler := s.ctrl.CurrentPriority()
	kassert.That(!inHandler, "ConditionVariable wait called from simulated ISR context")

	s.mu.Lock()
	t.state = stateWaiting
	t.waitingOn = cv
	t.timedOut = false
	cv.waiters.InsertWhen(lessWaiting, t)
	if deadline != nil {
		t.wakeAt = *deadline
		s.timeout.InsertWhen(lessTimeout, t)
	}
	s.hooksImpl.ConditionVariableStartWaiting(cv, t)
	s.hooksImpl.TaskWait(t, cv)
	if m != nil {
		m.unlockLocked()
	}
	s.doSwitch(t)
}

// assertNotifyPriority is the Go realization of
// ConditionVariable.cpp's notify_one/notify_all precondition: a notifying
// ISR's priority must not be more urgent than the internal mutex's
// ceiling, since anything more urgent would preempt the very lock meant
// to serialize the notify against a concurrent waiter registration. In
// task context both sides of the original's comparison default to the
// same value, making the check a tautology, so it is skipped entirely
// outside simulated ISR context.
func (cv *ConditionVariable) assertNotifyPriority() {
	current, inHandler := cv.sched.ctrl.CurrentPriority()
	if !inHandler {
		return
	}
	kassert.That(current >= cv.mu.isrCeiling(cv.sched),
		"ConditionVariable notified from an ISR more urgent than its mutex ceiling")
}

// NotifyOne wakes the highest-priority waiter, if any.
func (cv *ConditionVariable) NotifyOne() {
	cv.assertNotifyPriority()
	cv.mu.Lock(nil)
	defer cv.mu.Unlock()

	s := cv.sched
	s.mu.Lock()
	s.hooksImpl.ConditionVariableNotifyOne(cv)
	if cv.waiters.Empty() {
		s.mu.Unlock()
		return
	}
	t := cv.waiters.PopFront()
	cv.wake(t)
	s.mu.Unlock()
	s.kick()
}

// NotifyAll wakes every waiter.
func (cv *ConditionVariable) NotifyAll() {
	cv.assertNotifyPriority()
	cv.mu.Lock(nil)
	defer cv.mu.Unlock()

	s := cv.sched
	s.mu.Lock()
	s.hooksImpl.ConditionVariableNotifyAll(cv)
	any := !cv.waiters.Empty()
	for !cv.waiters.Empty() {
		t := cv.waiters.PopFront()
		cv.wake(t)
	}
	s.mu.Unlock()
	if any {
		s.kick()
	}
}

// wake moves a waiter from waiting to ready; callers must hold sched.mu.
func (cv *ConditionVariable) wake(t *TaskControlBlock) {
	s := cv.sched
	s.timeout.Erase(t)
	t.waitingOn = nil
	t.state = stateReady
	t.lastStarted = s.now
	s.ready.InsertWhen(lessReady, t)
	s.hooksImpl.TaskReady(t)
}
