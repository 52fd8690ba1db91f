package tickrtos

// kick notifies the idle task that the ready queue may have gained work,
// and triggers the PendSV exception so a real target's context-switch
// trampoline fires.
//
// On hardware, PendSV is what actually performs the switch: it runs at the
// lowest priority, so it fires only once nothing more urgent is pending,
// and its handler is where the outgoing task's context is saved and the
// incoming one restored. In this host simulation the switch instead
// happens synchronously, on the correct goroutine, inside doSwitch — see
// SPEC_FULL.md §4.9 for why a goroutine cannot be asynchronously preempted
// the way a real CPU core can. onPendSV below is consequently a
// best-effort, trace-only stand-in: it exists so Hooks.EnterPendSV still
// fires from a recognizable call site, not because it drives scheduling.
func (s *Scheduler) kick() {
	select {
	case s.wakeIdle <- struct{}{}:
	default:
	}
	s.ctrl.TriggerPendSV()
}

// onPendSV is registered with the interrupt controller as the PendSV
// handler. It performs no switch itself, only the trace hook: even while
// the idle task is "running", it is parked inside idleMain, and handing it
// work from here would race with idleMain's own poll loop picking the same
// work up a moment later. idleMain's poll loop (woken by kick's send on
// wakeIdle) is the sole path that resumes the idle task.
func (s *Scheduler) onPendSV() {
	s.hooksImpl.EnterPendSV()
}
