package tickrtos

import "tickrtos/internal/ilist"

// Priority is a task priority: lower numeric values run first. The five
// named levels and their numeric values are preserved exactly from
// original_source/src/Task.hpp's priority enum, whose ordering is not the
// naive 0/low..0xFF/high progression a reader might expect.
type Priority uint8

const (
	PriorityHighest Priority = 0x00
	PriorityHigh    Priority = 0x40
	PriorityNormal  Priority = 0x80
	PriorityLow     Priority = 0xC0
	PriorityLowest  Priority = 0xFF
)

// taskState mirrors Task.hpp's internal state enum, used for diagnostics
// and to gate illegal transitions (e.g. double termination).
type taskState uint8

const (
	stateDormant taskState = iota
	stateReady
	stateRunning
	stateSleeping
	stateWaiting
	stateTerminated
)

func (s taskState) String() string {
	switch s {
	case stateDormant:
		return "dormant"
	case stateReady:
		return "ready"
	case stateRunning:
		return "running"
	case stateSleeping:
		return "sleeping"
	case stateWaiting:
		return "waiting"
	case stateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// TaskControlBlock is the kernel's per-task bookkeeping record, grounded on
// original_source/src/Task.hpp's TaskControlBlock. Unlike the C++ original,
// which is mixed into the same object as the task's stack and the CRTP
// intrusive-list hooks, the Go translation keeps three concerns separate:
// the TCB holds scheduling state, an ilist.Node[*TaskControlBlock] embedded
// per queue gives it list membership, and the goroutine/channel pair in
// runState carries the simulated "stack".
type TaskControlBlock struct {
	name     string
	priority Priority
	state    taskState

	// lastStarted breaks priority ties in FIFO order: the ready queue
	// orders by (priority, lastStarted), so among equal-priority tasks the
	// one that has waited longest to run goes first.
	lastStarted TimePoint

	// wakeAt is the TimePoint a sleeping or timed-wait task becomes ready
	// again; only meaningful while queued on the scheduler's timeout list.
	wakeAt TimePoint

	// waitingOn is the condition variable this task is blocked on, or nil.
	waitingOn *ConditionVariable

	// timedOut records whether the most recent ConditionVariable wait
	// ended via its deadline rather than a notify; meaningless otherwise.
	timedOut bool

	entry Entry
	sched *Scheduler

	readyNode   ilist.Node[*TaskControlBlock]
	timeoutNode ilist.Node[*TaskControlBlock]
	waitNode    ilist.Node[*TaskControlBlock]
	allNode     ilist.Node[*TaskControlBlock]

	run runState
}

// runState is the goroutine/channel machinery backing a TaskControlBlock's
// execution, described in SPEC_FULL.md §4.9. resume is signaled exactly
// once per scheduling turn granted to this task; done closes when the
// task's entry function returns (equivalent to SVC_TERMINATE firing
// implicitly at the end of main()).
type runState struct {
	resume  chan struct{}
	done    chan struct{}
	started bool

	// killed is set by TerminateTask when a task other than the calling one
	// is terminated. Since that task's goroutine is necessarily parked on
	// resume (only the current task's goroutine ever runs), setting killed
	// before the wake-up signal and reading it just after establishes a
	// happens-before relationship through the channel send, so no extra
	// synchronization is needed to observe it race-free.
	killed bool
}

// Name returns the task's diagnostic name, empty if never set.
func (t *TaskControlBlock) Name() string { return t.name }

// SetName changes the task's diagnostic name and fires TaskNameChanged.
func (t *TaskControlBlock) SetName(name string) {
	t.name = name
	t.sched.hooks().TaskNameChanged(t)
}

// Priority returns the task's current scheduling priority.
func (t *TaskControlBlock) Priority() Priority { return t.priority }

// State returns a human-readable snapshot of the task's current state, for
// diagnostics only; it is not safe to branch kernel logic on this value
// from outside the scheduler's own critical sections.
func (t *TaskControlBlock) State() string { return t.state.String() }

// lessReady orders the ready queue: strictly by priority, then by
// lastStarted ascending (earlier-started, i.e. longer since it last ran,
// goes first), mirroring Scheduler.cpp's comparator for its ready tree.
func lessReady(a, b *TaskControlBlock) bool {
	if a.priority != b.priority {
		return a.priority < b.priority
	}
	return a.lastStarted < b.lastStarted
}

// lessTimeout orders the timeout queue by wake time ascending.
func lessTimeout(a, b *TaskControlBlock) bool {
	return a.wakeAt < b.wakeAt
}

// lessWaiting orders a condition variable's wait queue by priority, so
// NotifyOne wakes the highest-priority waiter first, matching
// ConditionVariable.cpp's use of the same embedded-list ordering as the
// ready queue.
func lessWaiting(a, b *TaskControlBlock) bool {
	return a.priority < b.priority
}

// TimedOut reports whether the task's most recent ConditionVariable wait
// ended because its deadline elapsed rather than because of a notify.
func (t *TaskControlBlock) TimedOut() bool { return t.timedOut }

// IdleTask is the task the scheduler runs when no other task is ready,
// grounded on original_source/src/Task.hpp's IdleTaskControlBlock. It is a
// thin wrapper rather than a distinct type hierarchy, since Go has no
// CRTP-style specialization to mirror; the idle task is simply a
// TaskControlBlock pinned at PriorityLowest that the scheduler recognizes
// by identity and never places on the ready queue.
type IdleTask struct {
	tcb *TaskControlBlock
}

// TCB returns the underlying control block, for hooks and diagnostics.
func (i *IdleTask) TCB() *TaskControlBlock { return i.tcb }
