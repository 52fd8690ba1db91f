package tickrtos

import (
	"fmt"
	"io"
)

// Hooks is the kernel's observation surface: a set of callbacks invoked at
// well-defined points so a caller can add tracing, monitoring-tool
// integration, or (as used by this module's own integration tests)
// deterministic synchronization, without the kernel itself depending on
// any particular logging or tracing library.
//
// Grounded on original_source/src/Hooks.hpp, whose default (empty)
// implementation documents the same intent ("so that ... all calls to
// these are removed by the compiler"). Go has no such dead-code-elimination
// guarantee across an interface call, so NopHooks exists as an explicit,
// allocation-free default instead.
type Hooks interface {
	Starting(idle *IdleTask, coreClockHz uint32)
	EnterPendSV()
	EnterIdle()
	EnterSystick()
	ExitSystick(taskSwitch bool)
	EnterServiceCall()
	ExitServiceCall(taskSwitch bool)
	TaskAdded(task *TaskControlBlock)
	TaskTerminated(task *TaskControlBlock)
	TaskStarted(task *TaskControlBlock)
	TaskSleep(task *TaskControlBlock)
	TaskStopped(task *TaskControlBlock)
	TaskWait(task *TaskControlBlock, cv *ConditionVariable)
	TaskWaitTimeout(task *TaskControlBlock, cv *ConditionVariable, deadline TimePoint)
	TaskReady(task *TaskControlBlock)
	TaskNameChanged(task *TaskControlBlock)
	TaskPriorityChanged(task *TaskControlBlock)
	EnterCriticalSection()
	ExitCriticalSection()
	MutexStoredForTask(task *TaskControlBlock)
	MutexRestoredForTask(task *TaskControlBlock)
	EnterFullLock()
	ExitFullLock()
	EnterPriorityLock(p IsrPriorityLevel)
	ExitPriorityLock()
	ConditionVariableStartWaiting(cv *ConditionVariable, task *TaskControlBlock)
	ConditionVariableNotifyOne(cv *ConditionVariable)
	ConditionVariableNotifyAll(cv *ConditionVariable)
}

// IsrPriorityLevel is the raw uint8 value of an arch.IsrPriority, used at
// the Hooks boundary so callers of this package need not import the arch
// package just to implement Hooks.
type IsrPriorityLevel = uint8

// NopHooks is the default Hooks implementation: every method is a no-op.
type NopHooks struct{}

func (NopHooks) Starting(*IdleTask, uint32)                                 {}
func (NopHooks) EnterPendSV()                                               {}
func (NopHooks) EnterIdle()                                                 {}
func (NopHooks) EnterSystick()                                              {}
func (NopHooks) ExitSystick(bool)                                           {}
func (NopHooks) EnterServiceCall()                                          {}
func (NopHooks) ExitServiceCall(bool)                                       {}
func (NopHooks) TaskAdded(*TaskControlBlock)                                {}
func (NopHooks) TaskTerminated(*TaskControlBlock)                           {}
func (NopHooks) TaskStarted(*TaskControlBlock)                              {}
func (NopHooks) TaskSleep(*TaskControlBlock)                                {}
func (NopHooks) TaskStopped(*TaskControlBlock)                              {}
func (NopHooks) TaskWait(*TaskControlBlock, *ConditionVariable)             {}
func (NopHooks) TaskWaitTimeout(*TaskControlBlock, *ConditionVariable, TimePoint) {}
func (NopHooks) TaskReady(*TaskControlBlock)                                {}
func (NopHooks) TaskNameChanged(*TaskControlBlock)                          {}
func (NopHooks) TaskPriorityChanged(*TaskControlBlock)                      {}
func (NopHooks) EnterCriticalSection()                                      {}
func (NopHooks) ExitCriticalSection()                                       {}
func (NopHooks) MutexStoredForTask(*TaskControlBlock)                       {}
func (NopHooks) MutexRestoredForTask(*TaskControlBlock)                     {}
func (NopHooks) EnterFullLock()                                             {}
func (NopHooks) ExitFullLock()                                              {}
func (NopHooks) EnterPriorityLock(IsrPriorityLevel)                         {}
func (NopHooks) ExitPriorityLock()                                          {}
func (NopHooks) ConditionVariableStartWaiting(*ConditionVariable, *TaskControlBlock) {}
func (NopHooks) ConditionVariableNotifyOne(*ConditionVariable)              {}
func (NopHooks) ConditionVariableNotifyAll(*ConditionVariable)              {}

var _ Hooks = NopHooks{}

// TraceHooks prints a one-line event trace to an io.Writer, mirroring the
// teacher's own handleEvent/StatusEvent CSV-style logging
// (internal/sched/schedulerEvent.go in the original vrunq source) rather
// than reaching for a structured-logging library the rest of the pack
// never uses for this kind of line-per-event trace.
type TraceHooks struct {
	Out    io.Writer
	sched  *Scheduler
	NopHooks
}

// NewTraceHooks constructs a TraceHooks writing to out. It takes no
// Scheduler, since Hooks is wired in via WithHooks while the Scheduler is
// being constructed; set the Scheduler afterwards with AttachScheduler so
// traced lines can report the simulated clock.
func NewTraceHooks(out io.Writer) *TraceHooks {
	return &TraceHooks{Out: out}
}

// AttachScheduler records which Scheduler this TraceHooks is reporting on,
// so trace lines can include the simulated clock.
func (h *TraceHooks) AttachScheduler(s *Scheduler) { h.sched = s }

func (h *TraceHooks) now() TimePoint {
	if h.sched == nil {
		return Startup
	}
	return h.sched.Now()
}

func (h *TraceHooks) line(format string, args ...interface{}) {
	fmt.Fprintf(h.Out, "[t=%d] "+format+"\n", append([]interface{}{h.now()}, args...)...)
}

func (h *TraceHooks) Starting(idle *IdleTask, coreClockHz uint32) {
	h.line("starting core_clock_hz=%d idle=%s", coreClockHz, idle.TCB().Name())
}
func (h *TraceHooks) TaskAdded(t *TaskControlBlock)      { h.line("task added: %s prio=%#x", t.Name(), t.Priority()) }
func (h *TraceHooks) TaskStarted(t *TaskControlBlock)    { h.line("task started: %s", t.Name()) }
func (h *TraceHooks) TaskTerminated(t *TaskControlBlock) { h.line("task terminated: %s", t.Name()) }
func (h *TraceHooks) TaskSleep(t *TaskControlBlock)      { h.line("task sleeping: %s", t.Name()) }
func (h *TraceHooks) TaskReady(t *TaskControlBlock)      { h.line("task ready: %s", t.Name()) }
func (h *TraceHooks) TaskWait(t *TaskControlBlock, cv *ConditionVariable) {
	h.line("task waiting: %s", t.Name())
}
func (h *TraceHooks) TaskWaitTimeout(t *TaskControlBlock, cv *ConditionVariable, deadline TimePoint) {
	h.line("task wait timed out: %s", t.Name())
}

var _ Hooks = (*TraceHooks)(nil)
