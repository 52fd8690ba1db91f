package tickrtos_test

import (
	"testing"
	"time"

	"tickrtos"
	"tickrtos/archsim"
)

func TestConditionVariableNotifyOneWakesWaiter(t *testing.T) {
	cpu := archsim.New()
	sched := tickrtos.New(tickrtos.DefaultConfig(), cpu)
	mu := sched.NewMutex(tickrtos.PriorityNormal)
	cv := sched.NewConditionVariable()

	ready := false
	woke := make(chan struct{})

	// waiter runs first (it has the higher priority): it takes the mutex,
	// finds the condition false, and calls Wait, which is a real
	// scheduling yield — only at that point does the CPU become free for
	// notifier, a lower-priority task, to run at all.
	var waiter *tickrtos.Task
	waiter = sched.Spawn("waiter", tickrtos.PriorityHighest, func() {
		mu.Lock(waiter)
		for !ready {
			cv.Wait(waiter, mu)
		}
		mu.Unlock()
		close(woke)
	})

	var notifier *tickrtos.Task
	notifier = sched.Spawn("notifier", tickrtos.PriorityNormal, func() {
		mu.Lock(notifier)
		ready = true
		cv.NotifyOne()
		mu.Unlock()
	})

	sched.Start(nil)

	select {
	case <-woke:
	case <-time.After(time.Second):
		t.Fatal("waiter was never woken by NotifyOne")
	}

	if waiter.TimedOut() {
		t.Fatal("waiter should have been woken by notify, not a timeout")
	}
}

type waitSyncHooks struct {
	tickrtos.NopHooks
	waiting chan *tickrtos.TaskControlBlock
}

func (h *waitSyncHooks) ConditionVariableStartWaiting(cv *tickrtos.ConditionVariable, t *tickrtos.TaskControlBlock) {
	h.waiting <- t
}

func TestConditionVariableWaitForTimesOut(t *testing.T) {
	cpu := archsim.New()
	hooks := &waitSyncHooks{waiting: make(chan *tickrtos.TaskControlBlock, 1)}
	sched := tickrtos.New(tickrtos.DefaultConfig(), cpu, tickrtos.WithHooks(hooks))
	mu := sched.NewMutex(tickrtos.PriorityNormal)
	cv := sched.NewConditionVariable()

	woke := make(chan struct{})
	var waiter *tickrtos.Task
	waiter = sched.Spawn("waiter", tickrtos.PriorityNormal, func() {
		mu.Lock(waiter)
		cv.WaitFor(waiter, mu, tickrtos.Duration(3))
		mu.Unlock()
		close(woke)
	})
	sched.Start(nil)

	select {
	case <-hooks.waiting:
	case <-time.After(time.Second):
		t.Fatal("waiter never reached WaitFor")
	}

	for i := 0; i < 3; i++ {
		cpu.Tick()
	}

	select {
	case <-woke:
	case <-time.After(time.Second):
		t.Fatal("waiter never timed out of WaitFor")
	}
	if !waiter.TimedOut() {
		t.Fatal("expected waiter.TimedOut() to be true")
	}
}

// TestConditionVariableWaitWithoutMutex verifies the bare wait() overload
// from original_source/src/ConditionVariable.hpp: a task that passes a nil
// Mutex is only waiting for the wake-up, with no lock to release or
// re-acquire around it.
func TestConditionVariableWaitWithoutMutex(t *testing.T) {
	cpu := archsim.New()
	sched := tickrtos.New(tickrtos.DefaultConfig(), cpu)
	cv := sched.NewConditionVariable()

	woke := make(chan struct{})
	var waiter *tickrtos.Task
	waiter = sched.Spawn("waiter", tickrtos.PriorityHighest, func() {
		cv.Wait(waiter, nil)
		close(woke)
	})
	var notifier *tickrtos.Task
	notifier = sched.Spawn("notifier", tickrtos.PriorityNormal, func() {
		cv.NotifyOne()
		_ = notifier
	})
	sched.Start(nil)

	select {
	case <-woke:
	case <-time.After(time.Second):
		t.Fatal("waiter was never woken by a bare (mutex-less) notify")
	}
}
